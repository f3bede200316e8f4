package relay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/mock/gomock"

	"github.com/vehicle-relay/mazda-relay/mocks"
	"github.com/vehicle-relay/mazda-relay/pkg/capability"
	"github.com/vehicle-relay/mazda-relay/pkg/config"
	"github.com/vehicle-relay/mazda-relay/pkg/probe"
	"github.com/vehicle-relay/mazda-relay/pkg/relay"
	"github.com/vehicle-relay/mazda-relay/pkg/upstream"
	"github.com/vehicle-relay/mazda-relay/pkg/upstream/sim"
)

const apiKey = "correct-horse"

func testConfig() config.Config {
	return config.Config{
		Email:    "driver@example.com",
		Password: "hunter2",
		Region:   upstream.DefaultRegion,
		APIKey:   apiKey,
		Driver:   "stub",
	}
}

// connectClient authenticates with connect and exposes its vehicles as a property.
func connectClient() probe.Object {
	return probe.Object{
		"connect":  func() {},
		"vehicles": []map[string]any{{"id": "abc"}},
	}
}

var _ = Describe("Relay", func() {
	var (
		ctrl    *gomock.Controller
		factory *mocks.ClientFactory
		cfg     config.Config
		r       *relay.Relay
	)

	sendRequest := func(method, path, key string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		if key != "" {
			req.Header.Set(relay.APIKeyHeader, key)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	decode := func(rr *httptest.ResponseRecorder) map[string]interface{} {
		var reply map[string]interface{}
		Expect(json.Unmarshal(rr.Body.Bytes(), &reply)).To(Succeed())
		return reply
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		factory = mocks.NewClientFactory(ctrl)
		cfg = testConfig()
		r = relay.New(cfg, factory)
		DeferCleanup(func() {
			ctrl.Finish()
		})
	})

	Describe("/health", func() {
		It("reports configuration without an API key", func() {
			factory.EXPECT().Diagnostics().Return(upstream.Diagnostics{
				ExportKeys:         []string{"default"},
				DefaultType:        "object",
				DefaultDefaultType: "function",
			})

			rr := sendRequest(http.MethodGet, "/health", "", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Header().Get("Content-Type")).To(Equal("application/json"))
			Expect(rr.Body.String()).To(MatchJSON(`{
				"ok": true,
				"hasEmail": true,
				"hasPassword": true,
				"region": "MNAO",
				"hasApiKey": true,
				"driver": "stub",
				"exportKeys": ["default"],
				"defaultType": "object",
				"defaultDefaultType": "function"
			}`))
		})

		It("succeeds when nothing is configured", func() {
			factory.EXPECT().Diagnostics().Return(upstream.Diagnostics{ExportKeys: []string{}})
			r = relay.New(config.Config{Region: upstream.DefaultRegion}, factory)

			rr := sendRequest(http.MethodGet, "/health", "", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			reply := decode(rr)
			Expect(reply["hasEmail"]).To(BeFalse())
			Expect(reply["hasPassword"]).To(BeFalse())
			Expect(reply["hasApiKey"]).To(BeFalse())
		})
	})

	Describe("API key", func() {
		for _, path := range []string{"/vehicles", "/debug"} {
			It("rejects a missing key on "+path, func() {
				rr := sendRequest(http.MethodGet, path, "", nil)
				Expect(rr.Code).To(Equal(http.StatusUnauthorized))
				Expect(rr.Body.String()).To(MatchJSON(`{"error":"Unauthorized"}`))
			})

			It("rejects a wrong key on "+path, func() {
				rr := sendRequest(http.MethodGet, path, "wrong", nil)
				Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			})
		}

		It("is checked before the body on /startEngine", func() {
			rr := sendRequest(http.MethodPost, "/startEngine", "wrong", []byte(`{}`))
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a missing key on /startEngine", func() {
			rr := sendRequest(http.MethodPost, "/startEngine", "", []byte(`{"vid":"abc"}`))
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			Expect(rr.Body.String()).To(MatchJSON(`{"error":"Unauthorized"}`))
		})

		It("fails closed when the server has no key", func() {
			cfg.APIKey = ""
			r = relay.New(cfg, factory)

			rr := sendRequest(http.MethodGet, "/vehicles", "", nil)
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			Expect(rr.Body.String()).To(MatchJSON(`{"error":"Server missing API_KEY env var"}`))
		})
	})

	Describe("/vehicles", func() {
		It("reports the members it matched", func() {
			factory.EXPECT().MakeClient().Return(connectClient(), nil)

			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{
				"authedWith": "connect",
				"vehiclesWith": "vehicles(property)",
				"vehicles": [{"id": "abc"}]
			}`))
		})

		It("tolerates clients without an authentication member", func() {
			factory.EXPECT().MakeClient().Return(probe.Object{
				"getVehicles": func() []string { return []string{"1001"} },
			}, nil)

			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"authedWith":null,"vehiclesWith":"getVehicles","vehicles":["1001"]}`))
		})

		It("rejects clients without an authentication member in strict mode", func() {
			cfg.StrictAuth = true
			r = relay.New(cfg, factory)
			factory.EXPECT().MakeClient().Return(probe.Object{
				"getVehicles": func() []string { return []string{"1001"} },
			}, nil)

			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			Expect(decode(rr)["error"]).To(ContainSubstring("no authenticate member found"))
		})

		It("returns a hint when the vehicle list is missing", func() {
			factory.EXPECT().MakeClient().Return(probe.Object{"login": func() error { return nil }}, nil)

			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			reply := decode(rr)
			Expect(reply).To(HaveKeyWithValue("authedWith", "login"))
			Expect(reply).To(HaveKeyWithValue("vehiclesWith", BeNil()))
			Expect(reply["hint"]).To(ContainSubstring("/debug"))
		})

		It("returns a hint when the vehicle list is nil", func() {
			factory.EXPECT().MakeClient().Return(probe.Object{
				"getVehicles": func() []string { return nil },
			}, nil)

			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			reply := decode(rr)
			Expect(reply).To(HaveKeyWithValue("vehiclesWith", "getVehicles"))
			Expect(reply["hint"]).To(ContainSubstring("/debug"))
		})

		It("accepts an empty vehicle list", func() {
			factory.EXPECT().MakeClient().Return(probe.Object{
				"getVehicles": func() []string { return []string{} },
			}, nil)

			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
		})

		It("reports authentication failures", func() {
			factory.EXPECT().MakeClient().Return(probe.Object{
				"login": func() error { return errors.New("bad password") },
			}, nil)

			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			Expect(rr.Body.String()).To(MatchJSON(`{"error":"bad password"}`))
		})

		It("reports construction failures", func() {
			factory.EXPECT().MakeClient().Return(nil, upstream.ErrMissingCredentials)

			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			Expect(rr.Body.String()).To(MatchJSON(`{"error":"missing MAZDA_EMAIL or MAZDA_PASSWORD env vars"}`))
		})

		It("bounds upstream calls by the configured timeout", func() {
			cfg.Timeout = 20 * time.Millisecond
			r = relay.New(cfg, factory)
			factory.EXPECT().MakeClient().Return(probe.Object{
				"login": func(ctx context.Context) error {
					<-ctx.Done()
					return ctx.Err()
				},
			}, nil)

			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			Expect(decode(rr)["error"]).To(ContainSubstring(context.DeadlineExceeded.Error()))
		})
	})

	Describe("/startEngine", func() {
		It("requires a vid without constructing a client", func() {
			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{}`))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rr)["error"]).To(ContainSubstring("vid"))
		})

		It("treats an empty body as a missing vid", func() {
			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			Expect(rr.Body.String()).To(MatchJSON(`{"error":"Missing vid"}`))
		})

		It("treats an empty vid as missing", func() {
			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{"vid":""}`))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects malformed JSON", func() {
			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{"vid":`))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("passes the vid to the matched member", func() {
			factory.EXPECT().MakeClient().Return(probe.Object{
				"signIn":      func(ctx context.Context) error { return nil },
				"engineStart": func(vid string) map[string]string { return map[string]string{"started": vid} },
			}, nil)

			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{"vid":"abc"}`))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{
				"ok": true,
				"authedWith": "signIn",
				"startWith": "engineStart",
				"result": {"started": "abc"}
			}`))
		})

		It("accepts numeric vids", func() {
			factory.EXPECT().MakeClient().Return(probe.Object{
				"startEngine": func(vid string) string { return vid },
			}, nil)

			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{"vid":1001}`))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(decode(rr)).To(HaveKeyWithValue("result", "1001"))
		})

		It("reports null when the member returns nothing", func() {
			factory.EXPECT().MakeClient().Return(connectClientWithStart(), nil)

			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{"vid":"abc"}`))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"ok":true,"authedWith":"connect","startWith":"remoteStart","result":null}`))
		})

		It("returns a hint when no start member exists", func() {
			factory.EXPECT().MakeClient().Return(connectClient(), nil)

			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{"vid":"abc"}`))
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			reply := decode(rr)
			Expect(reply).To(HaveKeyWithValue("startWith", BeNil()))
			Expect(reply).To(HaveKeyWithValue("authedWith", "connect"))
			Expect(reply["hint"]).To(ContainSubstring("/debug"))
		})

		It("relays the start member's error text unchanged", func() {
			factory.EXPECT().MakeClient().Return(probe.Object{
				"login":       func() error { return nil },
				"remoteStart": func(vid string) (any, error) { return nil, errors.New("vehicle is moving") },
			}, nil)

			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{"vid":"abc"}`))
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			Expect(rr.Body.String()).To(MatchJSON(`{"error":"vehicle is moving"}`))
		})

		It("only accepts POST", func() {
			rr := sendRequest(http.MethodGet, "/startEngine", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusMethodNotAllowed))
		})

		It("uses a custom capability table", func() {
			table := capability.Table{
				capability.Authenticate: {capability.MethodAdapter("logon")},
				capability.StartEngine:  {capability.MethodAdapter("ignite")},
			}
			r = relay.New(cfg, factory, relay.WithCapabilities(table))
			factory.EXPECT().MakeClient().Return(probe.Object{
				"logon":       func() {},
				"startEngine": func(vid string) string { return "default table" },
				"ignite":      func(vid string) string { return "ignited " + vid },
			}, nil)

			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{"vid":"abc"}`))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"ok":true,"authedWith":"logon","startWith":"ignite","result":"ignited abc"}`))
		})
	})

	Describe("/debug", func() {
		It("lists the members of an Object client", func() {
			factory.EXPECT().MakeClient().Return(connectClient(), nil)

			rr := sendRequest(http.MethodGet, "/debug", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"ctorName":"Object","ownKeys":["connect","vehicles"],"protoKeys":["connect"]}`))
		})

		It("reports construction failures", func() {
			factory.EXPECT().MakeClient().Return(nil, errors.New("boom"))

			rr := sendRequest(http.MethodGet, "/debug", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			Expect(rr.Body.String()).To(MatchJSON(`{"error":"boom"}`))
		})
	})

	Describe("with the simulated driver", func() {
		var registry *prometheus.Registry

		BeforeEach(func() {
			f, err := upstream.NewFactoryForDriver(cfg.Credentials(), sim.DriverName)
			Expect(err).NotTo(HaveOccurred())
			cfg.Driver = sim.DriverName
			registry = prometheus.NewRegistry()
			r = relay.New(cfg, f, relay.WithRegistry(registry))
		})

		It("describes the client type", func() {
			rr := sendRequest(http.MethodGet, "/debug", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"ctorName":"Account","ownKeys":["vehicles"],"protoKeys":["connect","remoteStart"]}`))
		})

		It("reports the export shape", func() {
			rr := sendRequest(http.MethodGet, "/health", "", nil)
			reply := decode(rr)
			Expect(reply).To(HaveKeyWithValue("exportKeys", ConsistOf("default")))
			Expect(reply).To(HaveKeyWithValue("defaultType", "object"))
			Expect(reply).To(HaveKeyWithValue("defaultDefaultType", "function"))
		})

		It("lists vehicles", func() {
			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			reply := decode(rr)
			Expect(reply).To(HaveKeyWithValue("authedWith", "connect"))
			Expect(reply).To(HaveKeyWithValue("vehiclesWith", "vehicles(property)"))
			Expect(reply["vehicles"]).To(HaveLen(len(sim.Fleet)))
		})

		It("starts the engine", func() {
			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{"vid":"1001"}`))
			Expect(rr.Code).To(Equal(http.StatusOK))
			reply := decode(rr)
			Expect(reply).To(HaveKeyWithValue("startWith", "remoteStart"))
			Expect(reply["result"]).To(HaveKeyWithValue("vehicleId", "1001"))
			Expect(reply["result"]).To(HaveKeyWithValue("accepted", true))
		})

		It("reports upstream errors", func() {
			rr := sendRequest(http.MethodPost, "/startEngine", apiKey, []byte(`{"vid":"9999"}`))
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			Expect(decode(rr)["error"]).To(ContainSubstring(sim.ErrVehicleNotFound.Error()))
		})

		It("exports capability metrics", func() {
			Expect(sendRequest(http.MethodGet, "/vehicles", apiKey, nil).Code).To(Equal(http.StatusOK))

			rr := sendRequest(http.MethodGet, "/metrics", "", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(ContainSubstring(`mazda_relay_capability_matches_total{action="authenticate",member="connect"} 1`))
			Expect(rr.Body.String()).To(ContainSubstring(`mazda_relay_capability_matches_total{action="list-vehicles",member="vehicles(property)"} 1`))
			Expect(rr.Body.String()).To(ContainSubstring(`mazda_relay_requests_total{code="200",route="vehicles"} 1`))
		})
	})

	Describe("constructor resolution failures", func() {
		It("are reported with the export's member names", func() {
			f := upstream.NewFactory(cfg.Credentials(), upstream.Namespace{"Other": 1})
			r = relay.New(cfg, f)

			rr := sendRequest(http.MethodGet, "/vehicles", apiKey, nil)
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			Expect(decode(rr)["error"]).To(HavePrefix("MyMazda constructor not found. pkg keys: Other |"))
		})
	})

	It("returns 404 for unknown paths", func() {
		rr := sendRequest(http.MethodGet, "/unknown", apiKey, nil)
		Expect(rr.Code).To(Equal(http.StatusNotFound))
	})
})

var _ = Describe("RequestID", func() {
	handler := relay.RequestID(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))

	It("assigns an identifier", func() {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(rr.Header().Get(relay.RequestIDHeader)).To(HaveLen(36))
	})

	It("keeps a valid caller identifier", func() {
		const id = "0b0d7a0e-6c55-4f43-9a4e-3f1f0a3b9c11"
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(relay.RequestIDHeader, id)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		Expect(rr.Header().Get(relay.RequestIDHeader)).To(Equal(id))
	})
})

func connectClientWithStart() probe.Object {
	client := connectClient()
	client["remoteStart"] = func(ctx context.Context, vid string) error { return nil }
	return client
}
