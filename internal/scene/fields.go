package scene

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

// ErrUnknownField is returned for a component field key that does not exist.
var ErrUnknownField = errors.New("scene: unknown field")

// FieldKeys lists the editable document keys of c, in declaration order.
func FieldKeys(c Component) []string {
	t := reflect.TypeOf(c).Elem()
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if key := editableKey(t.Field(i)); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// GetField returns the value of the field stored under key.
func GetField(c Component, key string) (any, error) {
	field, err := fieldByKey(c, key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// SetField assigns value to the field stored under key. The value is
// converted through its YAML form, so "2.5" and 2.5 both fit a float32.
// Strings given for string fields are stored verbatim. Map fields are
// replaced, not merged.
func SetField(c Component, key string, value any) error {
	field, err := fieldByKey(c, key)
	if err != nil {
		return err
	}
	if text, ok := value.(string); ok && field.Kind() == reflect.String {
		field.SetString(text)
		return nil
	}
	node, err := valueNode(value)
	if err != nil {
		return fmt.Errorf("scene: %s.%s: %w", c.Kind(), key, err)
	}
	converted := reflect.New(field.Type())
	if err := node.Decode(converted.Interface()); err != nil {
		return fmt.Errorf("scene: %s.%s: %w", c.Kind(), key, err)
	}
	field.Set(converted.Elem())
	return nil
}

// valueNode encodes value; strings are read as YAML text so that "[1, 0, 0]"
// fills a vector field.
func valueNode(value any) (*yaml.Node, error) {
	if text, ok := value.(string); ok {
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(text), &doc); err == nil && len(doc.Content) == 1 {
			return doc.Content[0], nil
		}
	}
	var node yaml.Node
	if err := node.Encode(value); err != nil {
		return nil, err
	}
	return &node, nil
}

func fieldByKey(c Component, key string) (reflect.Value, error) {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if editableKey(t.Field(i)) == key {
			return v.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("scene: %s has no field %q: %w", c.Kind(), key, ErrUnknownField)
}

func editableKey(f reflect.StructField) string {
	if f.Anonymous || !f.IsExported() {
		return ""
	}
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return strings.ToLower(f.Name)
	}
	return name
}

// CloneComponent returns a detached deep copy of c with the same id.
func CloneComponent(c Component) (Component, error) {
	clone, err := blankComponent(c.Kind())
	if err != nil {
		return nil, err
	}
	if err := copier.CopyWithOption(clone, c, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("scene: clone %s: %w", ComponentID(c), err)
	}
	base := clone.AsComponentBase()
	base.owner = nil
	base.instance = nil
	return clone, nil
}

// RestoreComponent copies the data fields of snapshot back into c. The
// owner and runtime links of c are kept.
func RestoreComponent(c, snapshot Component) error {
	if c.Kind() != snapshot.Kind() {
		return fmt.Errorf("scene: restore %s from %s snapshot", c.Kind(), snapshot.Kind())
	}
	base := c.AsComponentBase()
	owner, instance := base.owner, base.instance
	if err := copier.CopyWithOption(c, snapshot, copier.Option{DeepCopy: true}); err != nil {
		return fmt.Errorf("scene: restore %s: %w", ComponentID(c), err)
	}
	base.owner = owner
	base.instance = instance
	return nil
}
