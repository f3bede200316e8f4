package relay

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vehicle-relay/mazda-relay/internal/log"
	"github.com/vehicle-relay/mazda-relay/pkg/capability"
	"github.com/vehicle-relay/mazda-relay/pkg/config"
	"github.com/vehicle-relay/mazda-relay/pkg/probe"
	"github.com/vehicle-relay/mazda-relay/pkg/upstream"
)

const (
	// APIKeyHeader carries the shared secret that protects every route except /health and /metrics.
	APIKeyHeader = "x-api-key"
	// RequestIDHeader is echoed on every response.
	RequestIDHeader = "X-Request-Id"

	maxRequestBodyBytes = 4096
)

var (
	ErrUnauthorized  = &HttpError{Code: http.StatusUnauthorized, Message: "Unauthorized"}
	ErrMissingAPIKey = &HttpError{Code: http.StatusInternalServerError, Message: "Server missing API_KEY env var"}
	ErrMissingVID    = &HttpError{Code: http.StatusBadRequest, Message: "Missing vid"}
)

// HttpError is an error with an associated HTTP status code.
type HttpError struct {
	Code    int
	Message string
}

func (e *HttpError) Error() string {
	return e.Message
}

//go:generate mockgen -package mocks -destination ../../mocks/client_factory.go -mock_names ClientFactory=ClientFactory github.com/vehicle-relay/mazda-relay/pkg/relay ClientFactory

// ClientFactory builds upstream client handles. [upstream.Factory] is the production implementation.
type ClientFactory interface {
	MakeClient() (any, error)
	Diagnostics() upstream.Diagnostics
}

// Relay exposes the MyMazda capabilities of upstream clients as a JSON API.
//
// A new client is constructed for every request; the Relay itself holds no per-request state.
type Relay struct {
	cfg     config.Config
	factory ClientFactory
	table   capability.Table
	metrics *metrics
	router  *mux.Router
}

// Option configures a Relay.
type Option func(*Relay)

// WithCapabilities replaces the default capability table.
func WithCapabilities(table capability.Table) Option {
	return func(r *Relay) {
		r.table = table
	}
}

// WithRegistry registers the relay's collectors with registry instead of a private registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Relay) {
		r.metrics = newMetrics(registry)
	}
}

// New returns a Relay that serves requests using clients built by factory.
func New(cfg config.Config, factory ClientFactory, opts ...Option) *Relay {
	r := &Relay{
		cfg:     cfg,
		factory: factory,
		table:   capability.Default,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = newMetrics(prometheus.NewRegistry())
	}
	r.router = r.routes()
	return r
}

func (r *Relay) routes() *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSONError(w, http.StatusNotFound, nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, nil)
	})

	router.Handle("/health", r.metrics.instrument("health", http.HandlerFunc(r.handleHealth))).Methods(http.MethodGet)
	router.Handle("/metrics", r.metrics.handler()).Methods(http.MethodGet)

	protected := router.NewRoute().Subrouter()
	protected.Use(r.requireAPIKey)
	protected.Handle("/debug", r.metrics.instrument("debug", http.HandlerFunc(r.handleDebug))).Methods(http.MethodGet)
	protected.Handle("/vehicles", r.metrics.instrument("vehicles", http.HandlerFunc(r.handleVehicles))).Methods(http.MethodGet)
	protected.Handle("/startEngine", r.metrics.instrument("startEngine", http.HandlerFunc(r.handleStartEngine))).Methods(http.MethodPost)
	return router
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Info("Received %s request for %s", req.Method, req.URL.Path)
	r.router.ServeHTTP(w, req)
}

// requireAPIKey rejects requests that do not carry the configured API key. If no key is
// configured, every protected route fails closed.
func (r *Relay) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.APIKey == "" {
			writeJSONError(w, http.StatusInternalServerError, ErrMissingAPIKey)
			return
		}
		provided := req.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(r.cfg.APIKey)) != 1 {
			writeJSONError(w, http.StatusUnauthorized, ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// requestContext bounds upstream calls made on behalf of req by the configured timeout, if any.
func (r *Relay) requestContext(req *http.Request) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout > 0 {
		return context.WithTimeout(req.Context(), r.cfg.Timeout)
	}
	return context.WithCancel(req.Context())
}

// connect constructs a client and authenticates it. The returned name is that of the
// authentication member, or "" if the client exposes none.
func (r *Relay) connect(ctx context.Context) (*capability.Binding, string, error) {
	client, err := r.factory.MakeClient()
	r.metrics.constructed(err)
	if err != nil {
		return nil, "", err
	}
	if log.Enabled(log.LevelDebug) {
		shape := probe.Describe(client)
		log.Debug("Constructed %s client with members %v", shape.TypeName, shape.FuncKeys)
	}
	binding := capability.Bind(r.table, client)

	if err := binding.Require(capability.Authenticate); err != nil {
		r.metrics.matched(capability.Authenticate.String(), "")
		if r.cfg.StrictAuth {
			return nil, "", err
		}
		log.Warning("Upstream client %T has no authentication member; assuming it authenticated on construction", client)
		return binding, "", nil
	}
	authedWith, err := binding.Authenticate(ctx)
	r.metrics.matched(capability.Authenticate.String(), authedWith)
	if err != nil {
		return nil, authedWith, err
	}
	log.Debug("Authenticated using %s", authedWith)
	return binding, authedWith, nil
}

// nullable maps an unmatched member name to JSON null.
func nullable(name string) *string {
	if name == "" {
		return nil
	}
	return &name
}

type errorReply struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, reply interface{}) {
	jsonBytes, err := json.Marshal(reply)
	if err != nil {
		log.Error("Error serializing reply %+v: %s", reply, err)
		code = http.StatusInternalServerError
		jsonBytes = []byte("{\"error\": \"internal server error\"}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	jsonBytes = append(jsonBytes, '\n')
	w.Write(jsonBytes)
}

// writeJSONError writes {"error": message}. An *HttpError overrides code.
func writeJSONError(w http.ResponseWriter, code int, err error) {
	reply := errorReply{}
	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
	}
	if err == nil {
		reply.Error = http.StatusText(code)
	} else {
		reply.Error = err.Error()
	}
	if code >= http.StatusInternalServerError {
		log.Error("Returning %d: %s", code, reply.Error)
	} else {
		log.Info("Returning %d: %s", code, reply.Error)
	}
	writeJSON(w, code, &reply)
}

// vidFromRequest extracts the vehicle identifier from a {"vid": ...} body. Numeric identifiers are
// accepted and converted to their decimal form. An empty body, a missing field and empty or zero
// values are all reported as ErrMissingVID.
func vidFromRequest(w http.ResponseWriter, req *http.Request) (string, error) {
	var params struct {
		VID interface{} `json:"vid"`
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&params); err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrMissingVID
		}
		return "", &HttpError{Code: http.StatusBadRequest, Message: fmt.Sprintf("could not parse JSON body: %s", err)}
	}
	switch vid := params.VID.(type) {
	case string:
		if vid != "" {
			return vid, nil
		}
	case json.Number:
		if f, err := vid.Float64(); err == nil && f != 0 {
			return vid.String(), nil
		}
	}
	return "", ErrMissingVID
}
