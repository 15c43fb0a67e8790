package sapling

import (
	"fmt"
	"reflect"
	"strings"
)

// Key identifies a service within a [Registry].
type Key string

// KeyOf returns the key of type T.
//
//	sapling.KeyOf[*Database]() // "*github.com/acme/app/store.Database"
func KeyOf[T any]() Key {
	return KeyFor(reflect.TypeFor[T]())
}

// KeyFor returns the key of t. Named types are qualified with their package
// path so equally named types from different packages never collide.
func KeyFor(t reflect.Type) Key {
	return Key(typeID(t))
}

// GenericKey returns the key of a parameterized service. The result depends
// only on base and the ordered parameter types, so repeated requests for the
// same parameterization always produce the same key.
//
//	sapling.GenericKey("repository", reflect.TypeFor[User]()) // "repository[github.com/acme/app.User]"
func GenericKey(base string, params ...reflect.Type) Key {
	ids := make([]string, len(params))
	for i, p := range params {
		ids[i] = typeID(p)
	}
	return Key(base + "[" + strings.Join(ids, ",") + "]")
}

// String returns the key as a string.
func (k Key) String() string {
	return string(k)
}

func typeID(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	if name := t.Name(); name != "" {
		if t.PkgPath() == "" {
			return name
		}
		return t.PkgPath() + "." + name
	}

	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeID(t.Elem())
	case reflect.Slice:
		return "[]" + typeID(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), typeID(t.Elem()))
	case reflect.Map:
		return "map[" + typeID(t.Key()) + "]" + typeID(t.Elem())
	default:
		return t.String()
	}
}
