package jsonmap

import "reflect"

// ObjectConstructor produces the instance a structured adapter populates.
type ObjectConstructor interface {
	Construct(t reflect.Type) (reflect.Value, error)
}

// AllocateNew constructs a fresh zero value of the target type.
type AllocateNew struct{}

// Construct returns an addressable zero value of t.
func (AllocateNew) Construct(t reflect.Type) (reflect.Value, error) {
	if t == nil {
		return reflect.Value{}, &ConstructionError{Reason: "nil type"}
	}
	switch t.Kind() {
	case reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Invalid:
		return reflect.Value{}, &ConstructionError{Type: t, Reason: "kind " + t.Kind().String() + " has no default instance"}
	}
	return reflect.New(t).Elem(), nil
}

// ReuseInstance hands back an existing instance so it is updated in place.
type ReuseInstance struct {
	Existing reflect.Value
}

// Construct returns the wrapped instance. A pointer to t is dereferenced;
// a non-addressable value is copied into an addressable one.
func (c ReuseInstance) Construct(t reflect.Type) (reflect.Value, error) {
	v := c.Existing
	if !v.IsValid() {
		return reflect.Value{}, &ConstructionError{Type: t, Reason: "no existing instance"}
	}
	if v.Kind() == reflect.Pointer && v.Type().Elem() == t {
		if v.IsNil() {
			return reflect.Value{}, &ConstructionError{Type: t, Reason: "existing instance is a nil pointer"}
		}
		v = v.Elem()
	}
	if v.Type() != t {
		return reflect.Value{}, &ConstructionError{Type: t, Reason: "existing instance has type " + v.Type().String()}
	}
	if !v.CanSet() {
		cp := reflect.New(t).Elem()
		cp.Set(v)
		v = cp
	}
	return v, nil
}

// ReadContext is the ambient deserialization state carried by a Reader.
// It selects the construction strategy so a single cached adapter can both
// allocate new instances and update existing ones.
type ReadContext struct {
	existing bool
	pending  ObjectConstructor
}

// UsesExistingObject reports whether the current read updates an existing instance.
func (c *ReadContext) UsesExistingObject() bool { return c.existing }

// SetUsesExistingObject switches the update-in-place mode for the rest of the read.
func (c *ReadContext) SetUsesExistingObject(v bool) { c.existing = v }

// SetConstructor installs the strategy used by the next structured read only.
func (c *ReadContext) SetConstructor(oc ObjectConstructor) { c.pending = oc }

// takeConstructor returns and clears the installed strategy, defaulting to AllocateNew.
func (c *ReadContext) takeConstructor() ObjectConstructor {
	oc := c.pending
	c.pending = nil
	if oc == nil {
		return AllocateNew{}
	}
	return oc
}
