package jsonmap

import (
	"bytes"
	"cmp"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
)

// RawValue is a pre-encoded JSON value, written and read verbatim.
type RawValue []byte

var (
	rawValueType        = reflect.TypeFor[RawValue]()
	numberType          = reflect.TypeFor[Number]()
	jsonMarshalerType   = reflect.TypeFor[json.Marshaler]()
	jsonUnmarshalerType = reflect.TypeFor[json.Unmarshaler]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// builtinFactory is a factory assembled from two functions.
type builtinFactory struct {
	name     string
	supports func(t reflect.Type) bool
	create   func(reg *Registry, t reflect.Type) (TypeAdapter, error)
}

func (f *builtinFactory) String() string               { return f.name }
func (f *builtinFactory) Supports(t reflect.Type) bool { return f.supports(t) }
func (f *builtinFactory) Create(reg *Registry, t reflect.Type) (TypeAdapter, error) {
	return f.create(reg, t)
}

func adapterFor(a TypeAdapter) func(*Registry, reflect.Type) (TypeAdapter, error) {
	return func(*Registry, reflect.Type) (TypeAdapter, error) { return a, nil }
}

func kindIs(kinds ...reflect.Kind) func(reflect.Type) bool {
	return func(t reflect.Type) bool { return slices.Contains(kinds, t.Kind()) }
}

// implementsBoth reports whether values of t can be marshaled by m and
// decoded through a *t implementing u.
func implementsBoth(t, m, u reflect.Type) bool {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return false
	}
	p := reflect.PointerTo(t)
	return (t.Implements(m) || p.Implements(m)) && p.Implements(u)
}

// builtinFactories are consulted after registered factories and before the
// reflective one.
var builtinFactories = []AdapterFactory{
	&builtinFactory{
		name:     "raw",
		supports: func(t reflect.Type) bool { return t == rawValueType },
		create:   adapterFor(rawAdapter{}),
	},
	&builtinFactory{
		name:     "literal",
		supports: func(t reflect.Type) bool { return t == numberType },
		create:   adapterFor(numberLiteralAdapter{}),
	},
	&builtinFactory{
		name: "json.Marshaler",
		supports: func(t reflect.Type) bool {
			return implementsBoth(t, jsonMarshalerType, jsonUnmarshalerType)
		},
		create: func(_ *Registry, t reflect.Type) (TypeAdapter, error) { return &jsonMarshalerAdapter{typ: t}, nil },
	},
	&builtinFactory{
		name: "encoding.TextMarshaler",
		supports: func(t reflect.Type) bool {
			return implementsBoth(t, textMarshalerType, textUnmarshalerType)
		},
		create: func(_ *Registry, t reflect.Type) (TypeAdapter, error) { return &textAdapter{typ: t}, nil },
	},
	&builtinFactory{
		name:     "bool",
		supports: kindIs(reflect.Bool),
		create:   func(_ *Registry, t reflect.Type) (TypeAdapter, error) { return boolAdapter{t}, nil },
	},
	&builtinFactory{
		name: "number",
		supports: kindIs(reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
			reflect.Float32, reflect.Float64),
		create: func(_ *Registry, t reflect.Type) (TypeAdapter, error) { return newNumberAdapter(t), nil },
	},
	&builtinFactory{
		name:     "string",
		supports: kindIs(reflect.String),
		create:   func(_ *Registry, t reflect.Type) (TypeAdapter, error) { return stringAdapter{t}, nil },
	},
	&builtinFactory{
		name: "bytes",
		supports: func(t reflect.Type) bool {
			return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
		},
		create: func(_ *Registry, t reflect.Type) (TypeAdapter, error) { return bytesAdapter{t}, nil },
	},
	&builtinFactory{
		name:     "pointer",
		supports: kindIs(reflect.Pointer),
		create: func(reg *Registry, t reflect.Type) (TypeAdapter, error) {
			return &pointerAdapter{typ: t, elem: reg.deferred(t.Elem())}, nil
		},
	},
	&builtinFactory{
		name:     "slice",
		supports: kindIs(reflect.Slice),
		create: func(reg *Registry, t reflect.Type) (TypeAdapter, error) {
			return &sliceAdapter{typ: t, elem: reg.deferred(t.Elem())}, nil
		},
	},
	&builtinFactory{
		name:     "array",
		supports: kindIs(reflect.Array),
		create: func(reg *Registry, t reflect.Type) (TypeAdapter, error) {
			return &arrayAdapter{typ: t, elem: reg.deferred(t.Elem())}, nil
		},
	},
	&builtinFactory{
		name:     "map",
		supports: func(t reflect.Type) bool { return t.Kind() == reflect.Map && validMapKey(t.Key()) },
		create: func(reg *Registry, t reflect.Type) (TypeAdapter, error) {
			return &mapAdapter{typ: t, elem: reg.deferred(t.Elem())}, nil
		},
	},
	&builtinFactory{
		name:     "interface",
		supports: kindIs(reflect.Interface),
		create: func(reg *Registry, t reflect.Type) (TypeAdapter, error) {
			return &interfaceAdapter{reg: reg, typ: t}, nil
		},
	},
}

// readNull consumes a null token if one is next.
func readNull(r *Reader) (bool, error) {
	k, err := r.Peek()
	if err != nil {
		return false, err
	}
	if k != Null {
		return false, nil
	}
	return true, r.NextNull()
}

// readRaw copies the next value into a fresh byte slice.
func readRaw(r *Reader) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	w, err := NewWriter(buf)
	if err != nil {
		return nil, err
	}
	if err := Copy(w, r); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

type rawAdapter struct{}

func (rawAdapter) Write(w *Writer, v reflect.Value) error {
	if v.Len() == 0 {
		w.Null()
	} else {
		w.RawValue(v.Bytes())
	}
	return w.Err()
}

func (rawAdapter) Read(r *Reader) (reflect.Value, error) {
	raw, err := readRaw(r)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(RawValue(raw)), nil
}

type boolAdapter struct{ typ reflect.Type }

func (a boolAdapter) Write(w *Writer, v reflect.Value) error {
	w.Bool(v.Bool())
	return w.Err()
}

func (a boolAdapter) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	b, err := r.NextBool()
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.New(a.typ).Elem()
	v.SetBool(b)
	return v, nil
}

type stringAdapter struct{ typ reflect.Type }

func (a stringAdapter) Write(w *Writer, v reflect.Value) error {
	w.String(v.String())
	return w.Err()
}

func (a stringAdapter) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	s, err := r.NextString()
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.New(a.typ).Elem()
	v.SetString(s)
	return v, nil
}

// bytesAdapter maps byte slices to base64 strings.
type bytesAdapter struct{ typ reflect.Type }

func (a bytesAdapter) Write(w *Writer, v reflect.Value) error {
	if v.IsNil() {
		w.Null()
	} else {
		w.String(base64.StdEncoding.EncodeToString(v.Bytes()))
	}
	return w.Err()
}

func (a bytesAdapter) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	s, err := r.NextString()
	if err != nil {
		return reflect.Value{}, err
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v: %w", ErrTypeMismatch, a.typ, err)
	}
	v := reflect.New(a.typ).Elem()
	v.SetBytes(b)
	return v, nil
}

// addressable returns a value whose pointer methods may be called.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	cp := reflect.New(v.Type()).Elem()
	cp.Set(v)
	return cp
}

// marshalerOf returns v as an m implementation, through its address if needed.
func marshalerOf[M any](v reflect.Value) M {
	if m, ok := v.Interface().(M); ok {
		return m
	}
	return addressable(v).Addr().Interface().(M)
}

type jsonMarshalerAdapter struct{ typ reflect.Type }

func (a *jsonMarshalerAdapter) Write(w *Writer, v reflect.Value) error {
	b, err := marshalerOf[json.Marshaler](v).MarshalJSON()
	if err != nil {
		return fmt.Errorf("jsonmap: marshal %v: %w", a.typ, err)
	}
	w.RawValue(b)
	return w.Err()
}

func (a *jsonMarshalerAdapter) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	raw, err := readRaw(r)
	if err != nil {
		return reflect.Value{}, err
	}
	p := reflect.New(a.typ)
	if err := p.Interface().(json.Unmarshaler).UnmarshalJSON(raw); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v: %w", ErrTypeMismatch, a.typ, err)
	}
	return p.Elem(), nil
}

type textAdapter struct{ typ reflect.Type }

func (a *textAdapter) Write(w *Writer, v reflect.Value) error {
	b, err := marshalerOf[encoding.TextMarshaler](v).MarshalText()
	if err != nil {
		return fmt.Errorf("jsonmap: marshal %v: %w", a.typ, err)
	}
	w.String(string(b))
	return w.Err()
}

func (a *textAdapter) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	s, err := r.NextString()
	if err != nil {
		return reflect.Value{}, err
	}
	p := reflect.New(a.typ)
	if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v: %w", ErrTypeMismatch, a.typ, err)
	}
	return p.Elem(), nil
}

// pointerAdapter maps nil to null and everything else to the pointee.
type pointerAdapter struct {
	typ  reflect.Type
	elem TypeAdapter
}

func (a *pointerAdapter) ReusesInstance() bool { return Reusable(a.elem) }

func (a *pointerAdapter) Write(w *Writer, v reflect.Value) error {
	if v.IsNil() {
		w.Null()
		return w.Err()
	}
	return a.elem.Write(w, v.Elem())
}

// Read updates the pointee in place when handed a non-nil pointer to reuse,
// and allocates a new one otherwise.
func (a *pointerAdapter) Read(r *Reader) (reflect.Value, error) {
	ctx := r.Context()
	oc := ctx.takeConstructor()
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}

	var existing reflect.Value
	if ri, ok := oc.(ReuseInstance); ok {
		if e := ri.Existing; e.IsValid() && e.Type() == a.typ && !e.IsNil() {
			existing = e
			ctx.SetConstructor(ReuseInstance{Existing: e})
		}
	}
	ev, err := a.elem.Read(r)
	ctx.SetConstructor(nil)
	if err != nil || !ev.IsValid() {
		return reflect.Value{}, err
	}

	p := existing
	if !p.IsValid() {
		p = reflect.New(a.typ.Elem())
	}
	if err := assign(p.Elem(), ev); err != nil {
		return reflect.Value{}, err
	}
	return p, nil
}

type sliceAdapter struct {
	typ  reflect.Type
	elem TypeAdapter
}

func (a *sliceAdapter) Write(w *Writer, v reflect.Value) error {
	if v.IsNil() {
		w.Null()
		return w.Err()
	}
	w.BeginArray()
	for i := range v.Len() {
		if err := a.elem.Write(w, v.Index(i)); err != nil {
			return err
		}
	}
	w.EndArray()
	return w.Err()
}

func (a *sliceAdapter) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	if err := r.BeginArray(); err != nil {
		return reflect.Value{}, err
	}
	s := reflect.MakeSlice(a.typ, 0, 0)
	for r.HasNext() {
		ev, err := a.elem.Read(r)
		if err != nil {
			return reflect.Value{}, err
		}
		e := reflect.New(a.typ.Elem()).Elem()
		if err := assign(e, ev); err != nil {
			return reflect.Value{}, err
		}
		s = reflect.Append(s, e)
	}
	return s, r.EndArray()
}

// arrayAdapter zero-fills missing trailing elements and drops extra ones.
type arrayAdapter struct {
	typ  reflect.Type
	elem TypeAdapter
}

func (a *arrayAdapter) Write(w *Writer, v reflect.Value) error {
	w.BeginArray()
	for i := range v.Len() {
		if err := a.elem.Write(w, v.Index(i)); err != nil {
			return err
		}
	}
	w.EndArray()
	return w.Err()
}

func (a *arrayAdapter) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	if err := r.BeginArray(); err != nil {
		return reflect.Value{}, err
	}
	arr := reflect.New(a.typ).Elem()
	for i := 0; r.HasNext(); i++ {
		if i >= arr.Len() {
			if err := r.SkipValue(); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		ev, err := a.elem.Read(r)
		if err != nil {
			return reflect.Value{}, err
		}
		if err := assign(arr.Index(i), ev); err != nil {
			return reflect.Value{}, err
		}
	}
	return arr, r.EndArray()
}

func validMapKey(k reflect.Type) bool {
	switch k.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return implementsBoth(k, textMarshalerType, textUnmarshalerType)
}

// mapAdapter writes members sorted by key so output is deterministic.
type mapAdapter struct {
	typ  reflect.Type
	elem TypeAdapter
}

func (a *mapAdapter) keyString(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if implementsBoth(k.Type(), textMarshalerType, textUnmarshalerType) {
		b, err := marshalerOf[encoding.TextMarshaler](k).MarshalText()
		return string(b), err
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	default:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
}

func (a *mapAdapter) parseKey(s string) (reflect.Value, error) {
	kt := a.typ.Key()
	k := reflect.New(kt).Elem()
	if kt.Kind() == reflect.String {
		k.SetString(s)
		return k, nil
	}
	if implementsBoth(kt, textMarshalerType, textUnmarshalerType) {
		err := k.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
		return k, err
	}
	switch kt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, kt.Bits())
		k.SetInt(n)
		return k, err
	default:
		n, err := strconv.ParseUint(s, 10, kt.Bits())
		k.SetUint(n)
		return k, err
	}
}

func (a *mapAdapter) Write(w *Writer, v reflect.Value) error {
	if v.IsNil() {
		w.Null()
		return w.Err()
	}
	type member struct {
		name  string
		value reflect.Value
	}
	members := make([]member, 0, v.Len())
	for it := v.MapRange(); it.Next(); {
		name, err := a.keyString(it.Key())
		if err != nil {
			return fmt.Errorf("jsonmap: map key of %v: %w", a.typ, err)
		}
		members = append(members, member{name, it.Value()})
	}
	slices.SortFunc(members, func(x, y member) int { return cmp.Compare(x.name, y.name) })

	w.BeginObject()
	for _, m := range members {
		w.Name(m.name)
		if err := a.elem.Write(w, m.value); err != nil {
			return err
		}
	}
	w.EndObject()
	return w.Err()
}

func (a *mapAdapter) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	if err := r.BeginObject(); err != nil {
		return reflect.Value{}, err
	}
	m := reflect.MakeMap(a.typ)
	for r.HasNext() {
		name, err := r.NextName()
		if err != nil {
			return reflect.Value{}, err
		}
		k, err := a.parseKey(name)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: map key %q of %v: %w", ErrTypeMismatch, name, a.typ, err)
		}
		ev, err := a.elem.Read(r)
		if err != nil {
			return reflect.Value{}, err
		}
		e := reflect.New(a.typ.Elem()).Elem()
		if err := assign(e, ev); err != nil {
			return reflect.Value{}, err
		}
		m.SetMapIndex(k, e)
	}
	return m, r.EndObject()
}

// interfaceAdapter writes the dynamic value and reads into the empty
// interface as map[string]any, []any, float64 (or Number), string and bool.
type interfaceAdapter struct {
	reg *Registry
	typ reflect.Type
}

func (a *interfaceAdapter) Write(w *Writer, v reflect.Value) error {
	if v.IsNil() {
		w.Null()
		return w.Err()
	}
	dyn := v.Elem()
	da, err := a.reg.Adapter(dyn.Type())
	if err != nil {
		return err
	}
	return da.Write(w, dyn)
}

func (a *interfaceAdapter) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	if a.typ.NumMethod() != 0 {
		return reflect.Value{}, &ResolutionError{Type: a.typ, cause: fmt.Errorf("%w: cannot pick a concrete type for a non-empty interface", ErrConstruction)}
	}
	x, err := readAny(r, a.reg.opts.useNumber)
	if err != nil || x == nil {
		return reflect.Value{}, err
	}
	v := reflect.New(a.typ).Elem()
	v.Set(reflect.ValueOf(x))
	return v, nil
}

// readAny decodes the next value into the generic Go representation.
func readAny(r *Reader, useNumber bool) (any, error) {
	k, err := r.Peek()
	if err != nil {
		return nil, err
	}
	switch k {
	case BeginObject:
		if err := r.BeginObject(); err != nil {
			return nil, err
		}
		m := make(map[string]any)
		for r.HasNext() {
			name, err := r.NextName()
			if err != nil {
				return nil, err
			}
			if m[name], err = readAny(r, useNumber); err != nil {
				return nil, err
			}
		}
		return m, r.EndObject()
	case BeginArray:
		if err := r.BeginArray(); err != nil {
			return nil, err
		}
		s := make([]any, 0)
		for r.HasNext() {
			x, err := readAny(r, useNumber)
			if err != nil {
				return nil, err
			}
			s = append(s, x)
		}
		return s, r.EndArray()
	case String:
		return r.NextString()
	case NumberToken:
		if useNumber {
			lit, err := r.NextNumber()
			return Number(lit), err
		}
		return ReadFloat[float64](r)
	case Bool:
		return r.NextBool()
	case Null:
		return nil, r.NextNull()
	}
	return nil, r.syntaxError("unexpected "+k.String(), nil)
}
