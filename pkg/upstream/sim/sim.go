// Package sim registers the "sim" upstream driver, an in-memory stand-in for a MyMazda account
// that is useful for local development and tests.
//
// The driver deliberately uses member names other than the first candidates the relay probes for
// (Connect, a Vehicles field populated on connection, and RemoteStart) and nests its constructor
// two levels deep, so that it exercises the relay's fallbacks.
package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/vehicle-relay/mazda-relay/internal/log"
	"github.com/vehicle-relay/mazda-relay/pkg/upstream"
)

// DriverName is the name the driver is registered under.
const DriverName = "sim"

// Regions accepted by the simulated service.
var Regions = []string{"MNAO", "MME", "MJO"}

var (
	ErrUnknownRegion   = errors.New("unknown region")
	ErrNotConnected    = errors.New("not connected")
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrInvalidPassword = errors.New("invalid email or password")
)

// RejectedPassword is refused by Connect, which lets callers exercise authentication failures.
const RejectedPassword = "invalid"

// Vehicle is a vehicle on the simulated account.
type Vehicle struct {
	ID       string `json:"id"`
	VIN      string `json:"vin"`
	Nickname string `json:"nickname"`
	Model    string `json:"model"`
	Year     int    `json:"year"`
}

// Fleet is returned for every simulated account.
var Fleet = []Vehicle{
	{ID: "1001", VIN: "JM3KFBCM1N0000001", Nickname: "Daily", Model: "CX-5", Year: 2022},
	{ID: "1002", VIN: "JM1NDAD70P0000002", Nickname: "Weekend", Model: "MX-5 Miata", Year: 2023},
}

// StartResult acknowledges a remote start request.
type StartResult struct {
	RequestID   string    `json:"requestId"`
	VehicleID   string    `json:"vehicleId"`
	Accepted    bool      `json:"accepted"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Account is a simulated MyMazda account. Vehicles is nil until Connect succeeds.
type Account struct {
	Vehicles []Vehicle

	email     string
	password  string
	region    string
	connected bool
}

// New returns a simulated account.
func New(email, password, region string) (any, error) {
	if !slices.Contains(Regions, region) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}
	return &Account{email: email, password: password, region: region}, nil
}

// Connect signs in to the simulated account and loads its vehicles.
func (a *Account) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.password == RejectedPassword {
		return ErrInvalidPassword
	}
	a.connected = true
	a.Vehicles = slices.Clone(Fleet)
	log.Debug("Simulated account %s connected in region %s", a.email, a.region)
	return nil
}

// RemoteStart requests a remote engine start for the vehicle with ID or VIN vid.
func (a *Account) RemoteStart(ctx context.Context, vid string) (*StartResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !a.connected {
		return nil, ErrNotConnected
	}
	idx := slices.IndexFunc(a.Vehicles, func(v Vehicle) bool { return v.ID == vid || v.VIN == vid })
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s", ErrVehicleNotFound, vid)
	}
	return &StartResult{
		RequestID:   uuid.NewString(),
		VehicleID:   a.Vehicles[idx].ID,
		Accepted:    true,
		RequestedAt: time.Now().UTC(),
	}, nil
}

func init() {
	upstream.Register(DriverName, upstream.Namespace{
		upstream.DefaultMember: upstream.Namespace{
			upstream.DefaultMember: upstream.Constructor(New),
		},
	})
}
