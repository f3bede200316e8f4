package relay

import (
	"net/http"

	"github.com/vehicle-relay/mazda-relay/internal/log"
	"github.com/vehicle-relay/mazda-relay/pkg/capability"
	"github.com/vehicle-relay/mazda-relay/pkg/probe"
	"github.com/vehicle-relay/mazda-relay/pkg/upstream"
)

const (
	vehiclesHint = "Call /debug and paste the protoKeys here if this persists."
	startHint    = "Call /debug and paste the protoKeys here."

	errNoVehicleList = "Could not find a vehicle-list method on the upstream client."
	errNoEngineStart = "Could not find an engine-start method on the upstream client."
)

type healthReply struct {
	OK          bool   `json:"ok"`
	HasEmail    bool   `json:"hasEmail"`
	HasPassword bool   `json:"hasPassword"`
	Region      string `json:"region"`
	HasAPIKey   bool   `json:"hasApiKey"`
	Driver      string `json:"driver"`
	upstream.Diagnostics
}

type vehiclesReply struct {
	AuthedWith   *string     `json:"authedWith"`
	VehiclesWith string      `json:"vehiclesWith"`
	Vehicles     interface{} `json:"vehicles"`
}

type vehiclesFailure struct {
	Error        string  `json:"error"`
	AuthedWith   *string `json:"authedWith"`
	VehiclesWith *string `json:"vehiclesWith"`
	Hint         string  `json:"hint"`
}

type startReply struct {
	OK         bool        `json:"ok"`
	AuthedWith *string     `json:"authedWith"`
	StartWith  string      `json:"startWith"`
	Result     interface{} `json:"result"`
}

type startFailure struct {
	Error      string  `json:"error"`
	AuthedWith *string `json:"authedWith"`
	StartWith  *string `json:"startWith"`
	Hint       string  `json:"hint"`
}

// handleHealth reports static configuration. It never constructs a client and never fails.
func (r *Relay) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, &healthReply{
		OK:          true,
		HasEmail:    r.cfg.Email != "",
		HasPassword: r.cfg.Password != "",
		Region:      r.cfg.Region,
		HasAPIKey:   r.cfg.APIKey != "",
		Driver:      r.cfg.Driver,
		Diagnostics: r.factory.Diagnostics(),
	})
}

// handleDebug lists the members of a freshly constructed client.
func (r *Relay) handleDebug(w http.ResponseWriter, req *http.Request) {
	client, err := r.factory.MakeClient()
	r.metrics.constructed(err)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, probe.Describe(client))
}

func (r *Relay) handleVehicles(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := r.requestContext(req)
	defer cancel()

	binding, authedWith, err := r.connect(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	vehiclesWith, vehicles, err := binding.ListVehicles(ctx)
	r.metrics.matched(capability.ListVehicles.String(), vehiclesWith)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	if vehiclesWith == "" || probe.IsNil(vehicles) {
		log.Error("No vehicle list from %T (matched %q)", binding.Client(), vehiclesWith)
		writeJSON(w, http.StatusInternalServerError, &vehiclesFailure{
			Error:        errNoVehicleList,
			AuthedWith:   nullable(authedWith),
			VehiclesWith: nullable(vehiclesWith),
			Hint:         vehiclesHint,
		})
		return
	}

	writeJSON(w, http.StatusOK, &vehiclesReply{
		AuthedWith:   nullable(authedWith),
		VehiclesWith: vehiclesWith,
		Vehicles:     vehicles,
	})
}

func (r *Relay) handleStartEngine(w http.ResponseWriter, req *http.Request) {
	vid, err := vidFromRequest(w, req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := r.requestContext(req)
	defer cancel()

	binding, authedWith, err := r.connect(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	log.Info("Starting engine of vehicle %s", vid)
	startWith, result, err := binding.StartEngine(ctx, vid)
	r.metrics.matched(capability.StartEngine.String(), startWith)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	if startWith == "" {
		log.Error("No engine-start member on %T", binding.Client())
		writeJSON(w, http.StatusInternalServerError, &startFailure{
			Error:      errNoEngineStart,
			AuthedWith: nullable(authedWith),
			Hint:       startHint,
		})
		return
	}

	writeJSON(w, http.StatusOK, &startReply{
		OK:         true,
		AuthedWith: nullable(authedWith),
		StartWith:  startWith,
		Result:     result,
	})
}
