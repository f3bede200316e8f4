package upstream

import (
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]any)
)

// Register makes a driver's export available under name. Drivers call it from init(), publishing
// their export in whatever shape they choose; the shape is resolved when a client is made.
//
// Register panics if name is empty, export is nil, or name is already registered.
func Register(name string, export any) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if name == "" || export == nil {
		panic("upstream: Register called with empty name or nil export")
	}
	if _, dup := drivers[name]; dup {
		panic("upstream: Register called twice for driver " + name)
	}
	drivers[name] = export
}

// Lookup returns the export registered under name.
func Lookup(name string) (any, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	export, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownDriver, name, sortedDrivers())
	}
	return export, nil
}

// Drivers returns the sorted names of registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	return sortedDrivers()
}

func sortedDrivers() []string {
	names := lo.Keys(drivers)
	slices.Sort(names)
	return names
}
