package probe

import (
	"reflect"
	"slices"

	"github.com/samber/lo"
)

// Shape describes the members a target exposes, using the same naming convention as candidate
// lists so that an operator can copy names straight into them.
type Shape struct {
	TypeName string   `json:"ctorName"`
	OwnKeys  []string `json:"ownKeys"`
	FuncKeys []string `json:"protoKeys"`
}

// Describe lists the members of target. For an Object, OwnKeys holds every key and FuncKeys the
// func-valued ones. For other values, OwnKeys holds exported fields and FuncKeys exported methods.
func Describe(target any) Shape {
	if target == nil {
		return Shape{OwnKeys: []string{}, FuncKeys: []string{}}
	}
	if obj, ok := asObject(target); ok {
		own := lo.Keys(map[string]any(obj))
		funcs := lo.Filter(own, func(key string, _ int) bool {
			_, ok := Func(obj, key)
			return ok
		})
		slices.Sort(own)
		slices.Sort(funcs)
		return Shape{TypeName: "Object", OwnKeys: own, FuncKeys: funcs}
	}

	t := reflect.TypeOf(target)
	shape := Shape{TypeName: typeName(t), OwnKeys: []string{}, FuncKeys: []string{}}
	for i := 0; i < t.NumMethod(); i++ {
		if m := t.Method(i); m.IsExported() {
			shape.FuncKeys = append(shape.FuncKeys, MemberName(m.Name))
		}
	}

	v := reflect.ValueOf(target)
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		for _, field := range reflect.VisibleFields(v.Type()) {
			if field.IsExported() && !field.Anonymous {
				shape.OwnKeys = append(shape.OwnKeys, MemberName(field.Name))
			}
		}
	}
	shape.OwnKeys = lo.Uniq(shape.OwnKeys)
	slices.Sort(shape.OwnKeys)
	slices.Sort(shape.FuncKeys)
	return shape
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
