// Package capability binds the logical actions the relay performs to whatever members an upstream
// client happens to expose.
//
// A [Table] lists, for every [Action], the adapters that may implement it, in priority order. A
// [Binding] created by [Bind] selects one adapter per action for a given client instance and keeps
// using it for the lifetime of that client.
package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vehicle-relay/mazda-relay/internal/log"
	"github.com/vehicle-relay/mazda-relay/pkg/probe"
)

// Action enumerates the operations the relay needs from an upstream client.
type Action int

const (
	Authenticate Action = iota
	ListVehicles
	StartEngine
)

var actionNames = map[Action]string{
	Authenticate: "authenticate",
	ListVehicles: "list-vehicles",
	StartEngine:  "start-engine",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Candidate member names, in priority order.
var (
	AuthenticateCandidates = []string{"login", "signIn", "signin", "authenticate", "auth", "init", "initialize", "connect"}
	ListVehiclesCandidates = []string{"getVehicles", "vehicles", "getVehicleList", "listVehicles", "fetchVehicles", "getMyVehicles"}
	StartEngineCandidates  = []string{"startEngine", "remoteStart", "start", "engineStart", "startRemote", "remoteEngineStart"}
)

// VehiclesProperty is the name reported when the vehicle list is read from a slice-valued member
// rather than returned by a method.
const VehiclesProperty = "vehicles(property)"

// ErrNoCapability indicates that none of an action's adapters matched the client.
var ErrNoCapability = errors.New("no matching capability")

// Invoker performs a bound action. Args are forwarded to the underlying member.
type Invoker func(ctx context.Context, args ...any) (any, error)

// Adapter wraps one possible underlying call signature for an action.
type Adapter struct {
	// Name is reported to callers when the adapter is selected.
	Name string
	// Bind returns an Invoker if client supports this adapter.
	Bind func(client any) (Invoker, bool)
}

// MethodAdapter returns an Adapter that invokes the func member called name.
func MethodAdapter(name string) Adapter {
	return Adapter{
		Name: name,
		Bind: func(client any) (Invoker, bool) {
			fn, ok := probe.Func(client, name)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context, args ...any) (any, error) {
				return probe.Invoke(ctx, fn, args...)
			}, true
		},
	}
}

// PropertyAdapter returns an Adapter that reads the slice-valued member called name. The adapter
// is reported under the name reported.
func PropertyAdapter(name, reported string) Adapter {
	return Adapter{
		Name: reported,
		Bind: func(client any) (Invoker, bool) {
			v, ok := probe.Property(client, name)
			if !ok || !probe.IsSlice(v) {
				return nil, false
			}
			return func(context.Context, ...any) (any, error) {
				return v, nil
			}, true
		},
	}
}

// Table maps each action to its adapters in priority order.
type Table map[Action][]Adapter

func methodAdapters(names []string) []Adapter {
	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		adapters = append(adapters, MethodAdapter(name))
	}
	return adapters
}

// Default is the table used by the relay.
var Default = Table{
	Authenticate: methodAdapters(AuthenticateCandidates),
	ListVehicles: append(methodAdapters(ListVehiclesCandidates), PropertyAdapter("vehicles", VehiclesProperty)),
	StartEngine:  methodAdapters(StartEngineCandidates),
}

// Candidates returns the adapter names for action, in priority order.
func (t Table) Candidates(action Action) []string {
	names := make([]string, 0, len(t[action]))
	for _, adapter := range t[action] {
		names = append(names, adapter.Name)
	}
	return names
}

type bound struct {
	name   string
	invoke Invoker
}

// Binding holds the adapter selected for each action of one client instance. An action's adapter
// is selected the first time the action is used and kept for the rest of the binding's life, so
// that members populated by authentication are visible to later actions.
type Binding struct {
	table  Table
	client any

	lock  sync.Mutex
	bound map[Action]*bound
}

// Bind returns a Binding of table's actions to client.
func Bind(table Table, client any) *Binding {
	return &Binding{table: table, client: client, bound: make(map[Action]*bound)}
}

func (b *Binding) resolve(action Action) *bound {
	b.lock.Lock()
	defer b.lock.Unlock()
	if entry, ok := b.bound[action]; ok {
		return entry
	}
	var entry *bound
	for _, adapter := range b.table[action] {
		if invoke, ok := adapter.Bind(b.client); ok {
			entry = &bound{name: adapter.Name, invoke: invoke}
			break
		}
	}
	b.bound[action] = entry
	return entry
}

// Client returns the bound client.
func (b *Binding) Client() any {
	return b.client
}

// Matched returns the name of the adapter selected for action, or "" if none matched.
func (b *Binding) Matched(action Action) string {
	if entry := b.resolve(action); entry != nil {
		return entry.name
	}
	return ""
}

// Invoke performs action. The returned name is empty, and the error nil, if no adapter matched;
// use [Binding.Require] to treat that as an error.
//
// Failures are returned as a *probe.InvocationError, whose message is the member's own error text.
func (b *Binding) Invoke(ctx context.Context, action Action, args ...any) (string, any, error) {
	entry := b.resolve(action)
	if entry == nil {
		return "", nil, nil
	}
	result, err := entry.invoke(ctx, args...)
	if err != nil {
		log.Error("%s via %s failed: %s", action, entry.name, err)
		return entry.name, nil, &probe.InvocationError{Member: entry.name, Err: err}
	}
	return entry.name, result, nil
}

// Require returns an error wrapping ErrNoCapability if no adapter matched action.
func (b *Binding) Require(action Action) error {
	if b.resolve(action) != nil {
		return nil
	}
	return &MissingError{Action: action, Candidates: b.table.Candidates(action)}
}

// Authenticate invokes the client's authentication member, if any.
func (b *Binding) Authenticate(ctx context.Context) (string, error) {
	name, _, err := b.Invoke(ctx, Authenticate)
	return name, err
}

// ListVehicles returns the client's vehicle list.
func (b *Binding) ListVehicles(ctx context.Context) (string, any, error) {
	return b.Invoke(ctx, ListVehicles)
}

// StartEngine asks the client to start the engine of vehicle vid.
func (b *Binding) StartEngine(ctx context.Context, vid string) (string, any, error) {
	return b.Invoke(ctx, StartEngine, vid)
}

// MissingError reports which candidates were tried for an action that could not be bound.
type MissingError struct {
	Action     Action
	Candidates []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("no %s member found (tried %s)", e.Action, strings.Join(e.Candidates, ", "))
}

func (e *MissingError) Unwrap() error {
	return ErrNoCapability
}
