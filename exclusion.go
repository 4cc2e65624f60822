package jsonmap

import "reflect"

// Direction selects serialization or deserialization.
type Direction uint8

const (
	Serialize Direction = iota
	Deserialize
)

// ExclusionData is the per-call context handed to exclusion strategies.
// A fresh value is built for every read or write of one instance.
type ExclusionData struct {
	instance reflect.Value

	// Reader is the active stream during deserialization, nil otherwise.
	Reader *Reader
	// Writer is the active stream during serialization, nil otherwise.
	Writer *Writer
}

// Value returns a copy of the instance being written, or of the instance
// being populated including the fields read so far.
func (d *ExclusionData) Value() reflect.Value {
	if !d.instance.IsValid() {
		return reflect.Value{}
	}
	cp := reflect.New(d.instance.Type()).Elem()
	cp.Set(d.instance)
	return cp
}

// Interface is Value as an interface value.
func (d *ExclusionData) Interface() any {
	v := d.Value()
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// ClassExclusionStrategy vetoes a whole class.
type ClassExclusionStrategy interface {
	ShouldSkipClass(cm *ClassMetadata, data *ExclusionData) bool
}

// PropertyExclusionStrategy vetoes a single field.
type PropertyExclusionStrategy interface {
	ShouldSkipProperty(f *FieldDescriptor, data *ExclusionData) bool
}

// ClassExclusionFunc adapts a function to ClassExclusionStrategy.
type ClassExclusionFunc func(cm *ClassMetadata, data *ExclusionData) bool

func (f ClassExclusionFunc) ShouldSkipClass(cm *ClassMetadata, data *ExclusionData) bool {
	return f(cm, data)
}

// PropertyExclusionFunc adapts a function to PropertyExclusionStrategy.
type PropertyExclusionFunc func(f *FieldDescriptor, data *ExclusionData) bool

func (f PropertyExclusionFunc) ShouldSkipProperty(fd *FieldDescriptor, data *ExclusionData) bool {
	return f(fd, data)
}

// Excluder evaluates the registered exclusion strategies. It is immutable
// once created, so the "has strategies" gates are computed only once.
type Excluder struct {
	class         [2][]ClassExclusionStrategy
	property      [2][]PropertyExclusionStrategy
	hasClass      [2]bool
	hasProperty   [2]bool
	requireMarker bool
}

func newExcluder(class [2][]ClassExclusionStrategy, property [2][]PropertyExclusionStrategy, requireMarker bool) *Excluder {
	e := &Excluder{class: class, property: property, requireMarker: requireMarker}
	for d := range e.class {
		e.hasClass[d] = len(e.class[d]) > 0
		e.hasProperty[d] = len(e.property[d]) > 0
	}
	return e
}

func (e *Excluder) HasClassSerializationStrategies() bool      { return e.hasClass[Serialize] }
func (e *Excluder) HasClassDeserializationStrategies() bool    { return e.hasClass[Deserialize] }
func (e *Excluder) HasPropertySerializationStrategies() bool   { return e.hasProperty[Serialize] }
func (e *Excluder) HasPropertyDeserializationStrategies() bool { return e.hasProperty[Deserialize] }
func (e *Excluder) RequiresExclusionMarker() bool              { return e.requireMarker }

func (e *Excluder) ExcludeClassOnSerialize(cm *ClassMetadata, data *ExclusionData) bool {
	return e.excludeClass(Serialize, cm, data)
}

func (e *Excluder) ExcludeClassOnDeserialize(cm *ClassMetadata, data *ExclusionData) bool {
	return e.excludeClass(Deserialize, cm, data)
}

func (e *Excluder) ExcludePropertyOnSerialize(f *FieldDescriptor, data *ExclusionData) bool {
	return e.excludeProperty(Serialize, f, data)
}

func (e *Excluder) ExcludePropertyOnDeserialize(f *FieldDescriptor, data *ExclusionData) bool {
	return e.excludeProperty(Deserialize, f, data)
}

func (e *Excluder) excludeClass(d Direction, cm *ClassMetadata, data *ExclusionData) bool {
	for _, s := range e.class[d] {
		if s.ShouldSkipClass(cm, data) {
			return true
		}
	}
	return false
}

func (e *Excluder) excludeProperty(d Direction, f *FieldDescriptor, data *ExclusionData) bool {
	for _, s := range e.property[d] {
		if s.ShouldSkipProperty(f, data) {
			return true
		}
	}
	return false
}

// classGate reports whether class-level strategies apply to cm in direction d.
func (e *Excluder) classGate(d Direction, cm *ClassMetadata) bool {
	return e.hasClass[d] && (!e.requireMarker || cm.checkExclusion)
}

// propertyGate reports whether any field of cm may be subject to property strategies.
func (e *Excluder) propertyGate(d Direction, cm *ClassMetadata) bool {
	return e.hasProperty[d] && (!e.requireMarker || cm.checkExclusion || cm.markedFields)
}

// eligible reports whether property strategies run for f under the marker rule.
func (e *Excluder) eligible(cm *ClassMetadata, f *FieldDescriptor) bool {
	return !e.requireMarker || cm.checkExclusion || f.annotations.Has(KindCheckExclusion)
}
