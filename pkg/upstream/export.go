package upstream

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/samber/lo"
)

// Constructor builds a client handle from credentials.
type Constructor func(email, password, region string) (any, error)

// Namespace is a module export that groups named members. A driver may nest its constructor under
// one or two levels of a DefaultMember namespace.
type Namespace map[string]any

const (
	// DefaultMember is the conventional wrapper field a driver's real export may be nested under.
	DefaultMember = "default"
	// PrimaryName and AlternateName are the member names a constructor may be published as.
	PrimaryName   = "MyMazda"
	AlternateName = "Mazda"
)

// levels holds the export at each nesting depth: the registered value, its default member, and the
// default member of that. A level without a default member repeats the previous level.
type levels [3]any

func unwrap(export any) levels {
	var l levels
	l[0] = export
	l[1] = defaultOf(l[0])
	l[2] = defaultOf(l[1])
	return l
}

func defaultOf(v any) any {
	if ns, ok := asNamespace(v); ok {
		if inner, ok := ns[DefaultMember]; ok && inner != nil {
			return inner
		}
	}
	return v
}

func asNamespace(v any) (Namespace, bool) {
	switch ns := v.(type) {
	case Namespace:
		return ns, true
	case map[string]any:
		return Namespace(ns), true
	}
	return nil, false
}

func asConstructor(v any) (Constructor, bool) {
	switch fn := v.(type) {
	case Constructor:
		return fn, fn != nil
	case func(email, password, region string) (any, error):
		return fn, fn != nil
	}
	return nil, false
}

// strategy is one way of locating a constructor within the unwrapped export.
type strategy struct {
	name    string
	resolve func(l levels) (Constructor, bool)
}

func direct(level int) strategy {
	return strategy{
		name: fmt.Sprintf("level %d callable", level),
		resolve: func(l levels) (Constructor, bool) {
			return asConstructor(l[level])
		},
	}
}

func named(level int) strategy {
	return strategy{
		name: fmt.Sprintf("level %d %s/%s", level, PrimaryName, AlternateName),
		resolve: func(l levels) (Constructor, bool) {
			ns, ok := asNamespace(l[level])
			if !ok {
				return nil, false
			}
			for _, name := range []string{PrimaryName, AlternateName} {
				if ctor, ok := asConstructor(ns[name]); ok {
					return ctor, true
				}
			}
			return nil, false
		},
	}
}

// strategies are tried in order; the most deeply nested export wins.
var strategies = []strategy{
	direct(2), named(2),
	direct(1), named(1),
	direct(0), named(0),
}

// resolveConstructor returns the first constructor found by strategies, and the strategy's name.
func resolveConstructor(export any) (Constructor, string, error) {
	l := unwrap(export)
	for _, s := range strategies {
		if ctor, ok := s.resolve(l); ok {
			return ctor, s.name, nil
		}
	}
	return nil, "", newConstructionError(l)
}

// kindOf describes an export value for diagnostics.
func kindOf(v any) string {
	if v == nil {
		return "undefined"
	}
	if _, ok := asConstructor(v); ok {
		return "function"
	}
	if _, ok := asNamespace(v); ok {
		return "object"
	}
	if reflect.TypeOf(v).Kind() == reflect.Func {
		return "function"
	}
	return reflect.TypeOf(v).String()
}

// keysOf returns the sorted member names of v, or an empty list if v is not a namespace.
func keysOf(v any) []string {
	ns, ok := asNamespace(v)
	if !ok {
		return []string{}
	}
	keys := lo.Keys(map[string]any(ns))
	slices.Sort(keys)
	return keys
}
