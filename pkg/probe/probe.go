package probe

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// Object is a dynamically shaped target whose members are looked up by key. Values that are funcs
// are treated as invokable members; anything else is a property.
type Object map[string]any

// Result reports which candidate was invoked and what it returned.
//
// Matched is empty when no candidate was invokable, in which case Value is nil.
type Result struct {
	Matched string
	Value   any
}

// Found returns true if a candidate was invoked.
func (r Result) Found() bool {
	return r.Matched != ""
}

var (
	// ErrNoCandidates indicates Probe was called with an empty candidate list.
	ErrNoCandidates = errors.New("probe: empty candidate list")

	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// InvocationError wraps a failure raised by the invoked member.
type InvocationError struct {
	Member string
	Err    error
}

func (e *InvocationError) Error() string {
	return e.Err.Error()
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Probe invokes the first candidate that names an invokable member of target and returns
// immediately with its name and result. Later candidates are never tried, even when the matched
// member fails. If no candidate is invokable, Probe returns a zero Result and a nil error.
//
// When the member's first parameter is a context.Context, ctx is passed ahead of args.
func Probe(ctx context.Context, target any, candidates []string, args ...any) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}
	for _, name := range candidates {
		fn, ok := Func(target, name)
		if !ok {
			continue
		}
		value, err := Invoke(ctx, fn, args...)
		if err != nil {
			return Result{Matched: name}, &InvocationError{Member: name, Err: err}
		}
		return Result{Matched: name, Value: value}, nil
	}
	return Result{}, nil
}

// Func returns the member of target called name if it is a non-nil func.
func Func(target any, name string) (reflect.Value, bool) {
	member, ok := lookup(target, name)
	if !ok || member.Kind() != reflect.Func || member.IsNil() {
		return reflect.Value{}, false
	}
	return member, true
}

// Property returns the value of a non-func member of target called name.
func Property(target any, name string) (any, bool) {
	member, ok := lookup(target, name)
	if !ok || member.Kind() == reflect.Func || !member.CanInterface() {
		return nil, false
	}
	return member.Interface(), true
}

// ExportedName maps a candidate name to the Go identifier it is looked up as on typed targets.
func ExportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// MemberName maps a Go identifier back to the naming convention used by candidate lists.
func MemberName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}

func asObject(target any) (Object, bool) {
	switch obj := target.(type) {
	case Object:
		return obj, true
	case map[string]any:
		return Object(obj), true
	}
	return nil, false
}

func lookup(target any, name string) (reflect.Value, bool) {
	if target == nil || name == "" {
		return reflect.Value{}, false
	}
	if obj, ok := asObject(target); ok {
		v, ok := obj[name]
		if !ok || v == nil {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(v), true
	}

	goName := ExportedName(name)
	v := reflect.ValueOf(target)
	if m := v.MethodByName(goName); m.IsValid() {
		return m, true
	}
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	field, ok := v.Type().FieldByName(goName)
	if !ok || !field.IsExported() {
		return reflect.Value{}, false
	}
	return v.FieldByIndex(field.Index), true
}

// Invoke calls fn with args. A context.Context first parameter receives ctx. Accepted return
// shapes are (), (error), (T) and (T, error). A panic in fn is returned as an error.
func Invoke(ctx context.Context, fn reflect.Value, args ...any) (value any, err error) {
	fnType := fn.Type()
	in := make([]reflect.Value, 0, len(args)+1)
	if fnType.NumIn() > 0 && fnType.In(0) == contextType {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}
	for _, arg := range args {
		in = append(in, reflect.ValueOf(arg))
	}
	if err := checkArguments(fnType, in); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return unpack(fn.Call(in))
}

func checkArguments(fnType reflect.Type, in []reflect.Value) error {
	if fnType.IsVariadic() {
		if len(in) < fnType.NumIn()-1 {
			return fmt.Errorf("expected at least %d arguments, got %d", fnType.NumIn()-1, len(in))
		}
	} else if len(in) != fnType.NumIn() {
		return fmt.Errorf("expected %d arguments, got %d", fnType.NumIn(), len(in))
	}
	for i, arg := range in {
		var want reflect.Type
		if fnType.IsVariadic() && i >= fnType.NumIn()-1 {
			want = fnType.In(fnType.NumIn() - 1).Elem()
		} else {
			want = fnType.In(i)
		}
		if !arg.IsValid() {
			// Untyped nil argument
			switch want.Kind() {
			case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
				in[i] = reflect.Zero(want)
				continue
			}
			return fmt.Errorf("argument %d: nil is not a valid %s", i, want)
		}
		if !arg.Type().AssignableTo(want) {
			return fmt.Errorf("argument %d: %s is not assignable to %s", i, arg.Type(), want)
		}
	}
	return nil
}

func unpack(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type() == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	case 2:
		if out[1].Type() != errorType {
			return nil, fmt.Errorf("unsupported return signature: second value is %s", out[1].Type())
		}
		if err := asError(out[1]); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
	return nil, fmt.Errorf("unsupported return signature: %d values", len(out))
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// IsNil returns true if v is nil or a nil pointer, slice, map, chan, func or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// IsSlice returns true if v is a non-nil slice or array.
func IsSlice(v any) bool {
	if IsNil(v) {
		return false
	}
	kind := reflect.ValueOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}
