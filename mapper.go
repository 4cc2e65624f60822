package jsonmap

import (
	"bytes"
	"io"
	"reflect"
)

// Default is the registry behind the package-level functions.
var Default = MustNewRegistry()

// Marshal encodes v with the Default registry.
func Marshal(v any) ([]byte, error) { return Default.Marshal(v) }

// Unmarshal decodes data into a freshly allocated value stored in ptr, using the Default registry.
func Unmarshal(data []byte, ptr any) error { return Default.Unmarshal(data, ptr) }

// Update decodes data into the existing value behind ptr, using the Default registry.
func Update(data []byte, ptr any) error { return Default.Update(data, ptr) }

// Marshal returns the JSON encoding of v.
func (r *Registry) Marshal(v any) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	w, err := NewWriter(buf)
	if err != nil {
		return nil, err
	}
	if err := r.WriteValue(w, reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	if _, err := w.Result(); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Encode writes the JSON encoding of v to out.
func (r *Registry) Encode(out io.Writer, v any) error {
	w, err := NewWriterSize(out, r.opts.bufferSize)
	if err != nil {
		return err
	}
	if err := r.WriteValue(w, reflect.ValueOf(v)); err != nil {
		return err
	}
	_, err = w.Result()
	return err
}

// WriteValue writes v to w with the adapter of its dynamic type.
func (r *Registry) WriteValue(w *Writer, v reflect.Value) error {
	if !v.IsValid() {
		w.Null()
		return w.Err()
	}
	a, err := r.Adapter(v.Type())
	if err != nil {
		return err
	}
	return a.Write(w, v)
}

// Unmarshal decodes data into ptr. Every structured value is allocated anew,
// so fields absent from data end up zero.
func (r *Registry) Unmarshal(data []byte, ptr any) error {
	return r.decode(bytes.NewReader(data), ptr, false)
}

// Update decodes data into the value ptr already points to. Nested structs
// and non-nil struct pointers are updated in place, so fields absent from
// data keep their current values.
func (r *Registry) Update(data []byte, ptr any) error {
	return r.decode(bytes.NewReader(data), ptr, true)
}

// Decode reads a single JSON document from in into ptr.
func (r *Registry) Decode(in io.Reader, ptr any) error {
	return r.decode(in, ptr, false)
}

func (r *Registry) decode(in io.Reader, ptr any, existing bool) error {
	rd, err := NewReaderSize(in, r.opts.bufferSize)
	if err != nil {
		return err
	}
	rd.WithMaxDepth(r.opts.maxDepth)
	rd.Context().SetUsesExistingObject(existing)

	if err := r.ReadValue(rd, ptr); err != nil {
		return err
	}
	k, err := rd.Peek()
	if err != nil {
		return err
	}
	if k != EOF {
		return rd.syntaxError("trailing data after top-level value", nil)
	}
	return nil
}

// ReadValue reads the next value of rd into ptr. When the reader's context
// asks for existing objects to be used, the current value behind ptr is
// updated in place.
func (r *Registry) ReadValue(rd *Reader, ptr any) error {
	pv := reflect.ValueOf(ptr)
	if pv.Kind() != reflect.Pointer || pv.IsNil() {
		return ErrInvalidTarget
	}
	dst := pv.Elem()
	a, err := r.Adapter(dst.Type())
	if err != nil {
		return err
	}

	ctx := rd.Context()
	if ctx.UsesExistingObject() && Reusable(a) {
		if cur, ok := reuseTarget(dst); ok {
			ctx.SetConstructor(ReuseInstance{Existing: cur})
		}
	}
	v, err := a.Read(rd)
	ctx.SetConstructor(nil)
	if err != nil {
		return err
	}
	return assign(dst, v)
}
