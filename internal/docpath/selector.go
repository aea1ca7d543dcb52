package docpath

import (
	"fmt"
	"reflect"
	"strings"
)

// Selector is a typed projection from a value of type From to a value of
// type To nested somewhere inside it. Selectors only describe where the
// target lives; resolving one never touches a document.
type Selector[From, To any] struct {
	path Path
}

// Identity selects the value itself.
func Identity[T any]() Selector[T, T] {
	return Selector[T, T]{}
}

// Field selects the struct field goName of From. The field's type must be
// exactly To and its document key is taken from the yaml tag, falling back
// to the lowercased field name as gopkg.in/yaml.v3 does. Misuse panics,
// since selectors are declared once at package level.
func Field[From, To any](goName string) Selector[From, To] {
	st := reflect.TypeOf((*From)(nil)).Elem()
	for st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		panic(fmt.Sprintf("docpath: %s is not a struct", st))
	}
	field, ok := st.FieldByName(goName)
	if !ok {
		panic(fmt.Sprintf("docpath: %s has no field %s", st, goName))
	}
	want := reflect.TypeOf((*To)(nil)).Elem()
	if field.Type != want {
		panic(fmt.Sprintf("docpath: %s.%s is %s, not %s", st, goName, field.Type, want))
	}
	key := fieldKey(field)
	if key == "" {
		panic(fmt.Sprintf("docpath: %s.%s is not serialized", st, goName))
	}
	return Selector[From, To]{path: Path{KeyStep(key)}}
}

// At selects element i of a slice.
func At[E any](i int) Selector[[]E, E] {
	return Selector[[]E, E]{path: Path{IndexStep(i)}}
}

// Then composes two selectors: first projects From to Mid, next projects
// Mid to To.
func Then[From, Mid, To any](first Selector[From, Mid], next Selector[Mid, To]) Selector[From, To] {
	return Selector[From, To]{path: first.path.Concat(next.path)}
}

// Resolve returns the path addressed by the selector.
func Resolve[From, To any](s Selector[From, To]) Path {
	return s.path.Concat()
}

// Path is shorthand for Resolve(s).
func (s Selector[From, To]) Path() Path {
	return Resolve(s)
}

func (s Selector[From, To]) String() string {
	return s.path.String()
}

func fieldKey(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name != "" {
		return name
	}
	return strings.ToLower(field.Name)
}
