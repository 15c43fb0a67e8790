package sapling

import (
	"fmt"
	"io"
	"reflect"
)

// descriptor holds the metadata for a single registration.
type descriptor struct {
	id        string
	key       Key
	name      string
	typ       reflect.Type
	lifecycle Lifecycle
	factory   bool

	deps   []Dependency
	params []reflect.Type

	fn     reflect.Value
	hasErr bool

	deinit reflect.Value
}

// Descriptor is a read-only view of a registration.
type Descriptor struct {
	Key          Key
	Name         string
	Type         reflect.Type
	Lifecycle    Lifecycle
	Dependencies []Dependency
	Factory      bool
}

func (d *descriptor) view() Descriptor {
	deps := make([]Dependency, len(d.deps))
	copy(deps, d.deps)
	return Descriptor{
		Key:          d.key,
		Name:         d.name,
		Type:         d.typ,
		Lifecycle:    d.lifecycle,
		Dependencies: deps,
		Factory:      d.factory,
	}
}

func newDescriptor(fn any, lc Lifecycle, factory bool, opts []Option) (*descriptor, error) {
	if !lc.valid() {
		return nil, fmt.Errorf("%w: unknown lifecycle %d", ErrInvalidConstructor, lc)
	}

	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func || val.IsNil() {
		return nil, fmt.Errorf("%w: constructor must be a function, got %T", ErrInvalidConstructor, fn)
	}

	typ := val.Type()
	if typ.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic constructor %s", ErrInvalidConstructor, typ)
	}
	if typ.NumOut() == 0 || typ.NumOut() > 2 {
		return nil, fmt.Errorf("%w: constructor must return (T) or (T, error), got %s", ErrInvalidConstructor, typ)
	}
	if typ.NumOut() == 2 && typ.Out(1) != errorType {
		return nil, fmt.Errorf("%w: second return value must be error, got %s", ErrInvalidConstructor, typ.Out(1))
	}

	var reg registration
	for _, opt := range opts {
		opt(&reg)
	}

	d := &descriptor{
		key:       KeyFor(typ.Out(0)),
		name:      reg.name,
		typ:       typ.Out(0),
		lifecycle: lc,
		factory:   factory,
		fn:        val,
		hasErr:    typ.NumOut() == 2,
		params:    make([]reflect.Type, typ.NumIn()),
		deps:      make([]Dependency, typ.NumIn()),
	}
	d.id = string(d.key)

	if reg.name != "" && !factory {
		return nil, fmt.Errorf("%w: only factory registrations can be named (%s)", ErrInvalidConstructor, d.key)
	}
	if reg.deps != nil && len(reg.deps) != typ.NumIn() {
		return nil, fmt.Errorf("%w: %s declares %d dependencies for %d parameters",
			ErrInvalidConstructor, d.key, len(reg.deps), typ.NumIn())
	}

	for i := range typ.NumIn() {
		d.params[i] = typ.In(i)
		if reg.deps != nil && reg.deps[i] != (Dependency{}) {
			dep := reg.deps[i]
			if dep.Kind == KindGeneric && dep.generic == nil {
				return nil, fmt.Errorf("%w: generic dependency %s must be declared with Generic", ErrInvalidConstructor, dep.Key)
			}
			d.deps[i] = dep
			continue
		}
		d.deps[i] = inferDependency(typ.In(i))
	}

	if factory {
		if typ.NumIn() > 1 || (typ.NumIn() == 1 && !d.deps[0].Kind.reserved()) {
			return nil, fmt.Errorf("%w: factory for %s may only take an Allocator or a Provider", ErrInvalidConstructor, d.key)
		}
	}

	if reg.deinit != nil {
		if err := d.setDeinit(reg.deinit); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func (d *descriptor) setDeinit(fn any) error {
	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func || val.IsNil() {
		return fmt.Errorf("%w: deinit for %s must be a function, got %T", ErrInvalidConstructor, d.key, fn)
	}

	typ := val.Type()
	switch {
	case typ.NumIn() < 1 || typ.NumIn() > 2:
		return fmt.Errorf("%w: deinit for %s must take (T) or (T, *Provider)", ErrInvalidConstructor, d.key)
	case !d.typ.AssignableTo(typ.In(0)):
		return fmt.Errorf("%w: deinit for %s takes %s", ErrInvalidConstructor, d.key, typ.In(0))
	case typ.NumIn() == 2 && !providerType.AssignableTo(typ.In(1)):
		return fmt.Errorf("%w: deinit for %s takes %s as second parameter", ErrInvalidConstructor, d.key, typ.In(1))
	case typ.NumOut() > 1 || (typ.NumOut() == 1 && typ.Out(0) != errorType):
		return fmt.Errorf("%w: deinit for %s may only return error", ErrInvalidConstructor, d.key)
	}

	d.deinit = val
	return nil
}

// call invokes the constructor with already resolved arguments.
func (d *descriptor) call(args []reflect.Value) (reflect.Value, error) {
	results := d.fn.Call(args)
	if d.hasErr && !results[1].IsNil() {
		return reflect.Value{}, results[1].Interface().(error)
	}
	return results[0], nil
}

// release runs the deinit hook, or Close for io.Closer instances.
func (d *descriptor) release(instance reflect.Value, p *Provider) error {
	if d.deinit.IsValid() {
		args := []reflect.Value{instance}
		if d.deinit.Type().NumIn() == 2 {
			args = append(args, reflect.ValueOf(p))
		}
		results := d.deinit.Call(args)
		if len(results) == 1 && !results[0].IsNil() {
			return results[0].Interface().(error)
		}
		return nil
	}

	if isNil(instance) {
		return nil
	}
	if closer, ok := instance.Interface().(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

// identity returns the address that identifies a resolved instance. Only
// reference-shaped values have one.
func identity(v reflect.Value) (uintptr, bool) {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return 0, false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return 0, false
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer, reflect.Slice:
		ptr := v.Pointer()
		return ptr, ptr != 0
	default:
		return 0, false
	}
}
