package upstream

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingCredentials indicates the relay was started without an email or password.
	ErrMissingCredentials = errors.New("missing MAZDA_EMAIL or MAZDA_PASSWORD env vars")
	// ErrUnknownDriver indicates no driver was registered under the requested name.
	ErrUnknownDriver = errors.New("unknown upstream driver")
)

// ConstructionError indicates that no constructor could be resolved from a driver's export. The
// message lists the members visible at each nesting level so that an unfamiliar export shape can be
// diagnosed from the error alone.
type ConstructionError struct {
	Kinds [3]string
	Keys  [3][]string
}

func newConstructionError(l levels) *ConstructionError {
	e := &ConstructionError{}
	for i, v := range l {
		e.Kinds[i] = kindOf(v)
		e.Keys[i] = keysOf(v)
	}
	return e
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("%s constructor not found. pkg keys: %s | default type: %s keys: %s | default.default type: %s keys: %s",
		PrimaryName,
		strings.Join(e.Keys[0], ", "),
		e.Kinds[1], strings.Join(e.Keys[1], ", "),
		e.Kinds[2], strings.Join(e.Keys[2], ", "),
	)
}
