package upstream

import (
	"github.com/vehicle-relay/mazda-relay/internal/log"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "MNAO"

// Credentials identify the account every client is built for.
type Credentials struct {
	Email    string
	Password string
	Region   string
}

// Complete returns true if both email and password are set.
func (c Credentials) Complete() bool {
	return c.Email != "" && c.Password != ""
}

// Diagnostics describes the shape of a driver's export.
type Diagnostics struct {
	ExportKeys         []string `json:"exportKeys"`
	DefaultType        string   `json:"defaultType"`
	DefaultDefaultType string   `json:"defaultDefaultType"`
}

// Factory builds a fresh client for every request from a driver export.
type Factory struct {
	creds  Credentials
	export any
}

// NewFactory returns a Factory for export. An empty region is replaced with DefaultRegion.
func NewFactory(creds Credentials, export any) *Factory {
	if creds.Region == "" {
		creds.Region = DefaultRegion
	}
	return &Factory{creds: creds, export: export}
}

// NewFactoryForDriver returns a Factory for the driver registered under name.
func NewFactoryForDriver(creds Credentials, name string) (*Factory, error) {
	export, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return NewFactory(creds, export), nil
}

// MakeClient returns a new client handle.
//
// It fails with ErrMissingCredentials before resolving the export if the email or password is
// unset, and with a *ConstructionError if no constructor can be resolved. Construction errors
// returned by the driver are passed through unchanged. Nothing is retried.
func (f *Factory) MakeClient() (any, error) {
	if !f.creds.Complete() {
		return nil, ErrMissingCredentials
	}
	ctor, how, err := resolveConstructor(f.export)
	if err != nil {
		return nil, err
	}
	log.Debug("Constructing upstream client (%s) for region %s", how, f.creds.Region)
	return ctor(f.creds.Email, f.creds.Password, f.creds.Region)
}

// Diagnostics reports the export's member names and the kind of value at each nesting level.
func (f *Factory) Diagnostics() Diagnostics {
	l := unwrap(f.export)
	return Diagnostics{
		ExportKeys:         keysOf(l[0]),
		DefaultType:        kindOf(l[1]),
		DefaultDefaultType: kindOf(l[2]),
	}
}
