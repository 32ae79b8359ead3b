package helpers

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// FillStructFromKV sets the string fields of the struct pointed to by v from
// kv, using the `kv` struct tag as key. A field tagged `kv:"name,optional"`
// keeps its current value when the key is missing or empty, any other tagged
// field makes that an error.
func FillStructFromKV(kv map[string]string, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("v is not a non-nil pointer")
	}
	s := rv.Elem()
	if s.Kind() != reflect.Struct {
		return errors.New("v is not a pointer to a struct")
	}

	for i := 0; i < s.NumField(); i++ {
		fieldType := s.Type().Field(i)
		tag := fieldType.Tag.Get("kv")
		if tag == "" {
			continue
		}
		key, optional := strings.CutSuffix(tag, ",optional")

		field := s.Field(i)
		if field.Kind() != reflect.String || !field.CanSet() {
			return errors.Errorf("field %s tagged %q is not a settable string", fieldType.Name, key)
		}

		value := kv[key]
		if value == "" {
			if !optional {
				return errors.Errorf("field %s is not optional, but missing or empty in kv", key)
			}
			continue
		}
		field.SetString(value)
	}

	return nil
}
