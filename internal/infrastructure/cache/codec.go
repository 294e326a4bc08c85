package cache

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ErrLossyValue is returned by CheckCodec when part of a type would not survive a JSON round trip
var ErrLossyValue = errors.New("value does not survive the cache codec")

var (
	jsonMarshaler   = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	jsonUnmarshaler = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	textMarshaler   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshaler = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// codecChecks memoizes CheckCodec per type
var codecChecks sync.Map // reflect.Type -> error

// CheckCodec reports whether values of T come back unchanged from the cache.
// Unexported or json:"-" struct fields, interface values, channels and funcs
// are lost on the way through JSON. Types with their own JSON or text
// marshaling are trusted.
func CheckCodec[T any]() error {
	return checkCodecType(reflect.TypeOf((*T)(nil)).Elem())
}

func checkCodecType(t reflect.Type) error {
	if cached, ok := codecChecks.Load(t); ok {
		if cached == nil {
			return nil
		}
		return cached.(error)
	}
	err := walkCodec(t, map[reflect.Type]bool{})
	codecChecks.Store(t, err)
	return err
}

func walkCodec(t reflect.Type, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil
	}
	seen[t] = true

	if selfCoded(t) {
		return nil
	}

	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return walkCodec(t.Elem(), seen)
	case reflect.Map:
		return walkCodec(t.Elem(), seen)
	case reflect.Interface:
		return fmt.Errorf("%w: %s is an interface", ErrLossyValue, t)
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Errorf("%w: %s has no JSON form", ErrLossyValue, t)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Anonymous {
				if err := walkCodec(f.Type, seen); err != nil {
					return err
				}
				continue
			}
			if !f.IsExported() {
				return fmt.Errorf("%w: %s.%s is unexported", ErrLossyValue, t, f.Name)
			}
			if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name == "-" {
				return fmt.Errorf("%w: %s.%s is skipped by its json tag", ErrLossyValue, t, f.Name)
			}
			if err := walkCodec(f.Type, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// selfCoded reports whether t (or *t) controls its own encoding both ways
func selfCoded(t reflect.Type) bool {
	p := reflect.PointerTo(t)
	if (t.Implements(jsonMarshaler) || p.Implements(jsonMarshaler)) && p.Implements(jsonUnmarshaler) {
		return true
	}
	return (t.Implements(textMarshaler) || p.Implements(textMarshaler)) && p.Implements(textUnmarshaler)
}
