package jsonmap

import (
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

var (
	_ TypeAdapter    = (*ReflectiveAdapter)(nil)
	_ InstanceReuser = (*ReflectiveAdapter)(nil)
	_ AdapterFactory = reflectiveFactory{}
)

// reflectiveFactory is the last resort of the chain and maps any struct type
// field by field.
type reflectiveFactory struct{}

func (reflectiveFactory) String() string { return "reflective" }

func (reflectiveFactory) Supports(t reflect.Type) bool { return t.Kind() == reflect.Struct }

func (reflectiveFactory) Create(reg *Registry, t reflect.Type) (TypeAdapter, error) {
	meta, err := reg.metadata.BuildOrGet(t)
	if err != nil {
		return nil, err
	}
	return &ReflectiveAdapter{
		reg:      reg,
		meta:     meta,
		excluder: reg.excluder,
		adapters: xsync.NewMap[string, TypeAdapter](),
	}, nil
}

// ReflectiveAdapter maps a struct type to a JSON object using its ClassMetadata.
// Field adapters are resolved on first use, never while the adapter is built,
// so self-referential types resolve without recursion.
type ReflectiveAdapter struct {
	reg      *Registry
	meta     *ClassMetadata
	excluder *Excluder

	// field adapters by serialized name
	adapters *xsync.Map[string, TypeAdapter]
}

// Metadata returns the class metadata the adapter was built from.
func (a *ReflectiveAdapter) Metadata() *ClassMetadata { return a.meta }

// ReusesInstance is always true: fields are populated one by one, so an
// existing instance can be updated in place.
func (a *ReflectiveAdapter) ReusesInstance() bool { return true }

func (a *ReflectiveAdapter) fieldAdapter(f *FieldDescriptor) (TypeAdapter, error) {
	if fa, ok := a.adapters.Load(f.serializedName); ok {
		return fa, nil
	}
	var (
		fa  TypeAdapter
		err error
	)
	if ov, ok := f.AdapterOverride(); ok {
		fa, err = a.reg.AdapterFromOverride(f.typ, ov)
	} else {
		fa, err = a.reg.Adapter(f.typ)
	}
	if err != nil {
		return nil, err
	}
	fa, _ = a.adapters.LoadOrStore(f.serializedName, fa)
	return fa, nil
}

func (a *ReflectiveAdapter) Write(w *Writer, v reflect.Value) error {
	meta := a.meta
	v = indirect(v)
	if meta.skipSerialize || !v.IsValid() {
		w.Null()
		return w.Err()
	}
	if v.Type() != meta.typ {
		return fmt.Errorf("%w: %v is not %v", ErrTypeMismatch, v.Type(), meta.typ)
	}

	classGate := a.excluder.classGate(Serialize, meta)
	propertyGate := a.excluder.propertyGate(Serialize, meta)
	var data *ExclusionData
	if classGate || propertyGate {
		data = &ExclusionData{instance: v, Writer: w}
	}
	if classGate && a.excluder.ExcludeClassOnSerialize(meta, data) {
		w.Null()
		return w.Err()
	}

	w.BeginObject()
	if meta.wrapper != "" {
		w.Name(meta.wrapper)
		w.BeginObject()
	}
	for _, f := range meta.properties.All() {
		w.Name(f.serializedName)
		if f.skipSerialize {
			w.Null()
			continue
		}
		if propertyGate && a.excluder.eligible(meta, f) && a.excluder.ExcludePropertyOnSerialize(f, data) {
			w.Null()
			continue
		}
		fv, err := f.Get(v)
		if err != nil {
			// promoted through a nil embedded pointer
			w.Null()
			continue
		}
		fa, err := a.fieldAdapter(f)
		if err != nil {
			return err
		}
		if err := fa.Write(w, fv); err != nil {
			return err
		}
	}
	if meta.wrapper != "" {
		w.EndObject()
	}
	w.EndObject()
	return w.Err()
}

func (a *ReflectiveAdapter) Read(r *Reader) (reflect.Value, error) {
	meta := a.meta
	ctx := r.Context()
	oc := ctx.takeConstructor()

	if meta.skipDeserialize {
		return reflect.Value{}, r.SkipValue()
	}
	k, err := r.Peek()
	if err != nil {
		return reflect.Value{}, err
	}
	if k == Null {
		return reflect.Value{}, r.NextNull()
	}

	inst, err := oc.Construct(meta.typ)
	if err != nil {
		return reflect.Value{}, err
	}

	classGate := a.excluder.classGate(Deserialize, meta)
	propertyGate := a.excluder.propertyGate(Deserialize, meta)
	var data *ExclusionData
	if classGate || propertyGate {
		data = &ExclusionData{instance: inst, Reader: r}
	}
	if classGate && a.excluder.ExcludeClassOnDeserialize(meta, data) {
		return reflect.Value{}, r.SkipValue()
	}

	if err := r.BeginObject(); err != nil {
		return reflect.Value{}, err
	}
	if meta.wrapper != "" {
		if err := a.enterWrapper(r); err != nil {
			return reflect.Value{}, err
		}
	}
	for r.HasNext() {
		name, err := r.NextName()
		if err != nil {
			return reflect.Value{}, err
		}
		f, ok := meta.properties.Lookup(name)
		if !ok || f.skipDeserialize {
			if err := r.SkipValue(); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		if propertyGate && a.excluder.eligible(meta, f) && a.excluder.ExcludePropertyOnDeserialize(f, data) {
			if err := r.SkipValue(); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		fa, err := a.fieldAdapter(f)
		if err != nil {
			return reflect.Value{}, err
		}
		if ctx.UsesExistingObject() && Reusable(fa) {
			if cur, ok := a.current(inst, f); ok {
				ctx.SetConstructor(ReuseInstance{Existing: cur})
			}
		}
		fv, err := fa.Read(r)
		ctx.SetConstructor(nil)
		if err != nil {
			return reflect.Value{}, err
		}
		if err := f.Set(inst, fv); err != nil {
			return reflect.Value{}, err
		}
	}
	if err := r.EndObject(); err != nil {
		return reflect.Value{}, err
	}
	if meta.wrapper != "" {
		if err := leaveWrapper(r); err != nil {
			return reflect.Value{}, err
		}
	}
	return inst, nil
}

// current returns the populated nested value of f to be updated in place.
// A field that cannot be read yet counts as absent.
func (a *ReflectiveAdapter) current(inst reflect.Value, f *FieldDescriptor) (reflect.Value, bool) {
	cur, err := f.Get(inst)
	if err != nil {
		a.reg.logger.Debug("nested value treated as absent",
			zap.Stringer("type", a.meta.typ),
			zap.String("field", f.name),
			zap.Error(err))
		return reflect.Value{}, false
	}
	return reuseTarget(cur)
}

// reuseTarget returns what a ReuseInstance needs to update cur in place:
// cur itself for a non-nil pointer, its address for a struct.
func reuseTarget(cur reflect.Value) (reflect.Value, bool) {
	switch cur.Kind() {
	case reflect.Pointer:
		if cur.IsNil() {
			return reflect.Value{}, false
		}
		return cur, true
	case reflect.Struct:
		if cur.CanAddr() {
			return cur.Addr(), true
		}
		return cur, true
	}
	return reflect.Value{}, false
}

// enterWrapper advances to the wrapper member of the outer object and opens it.
// Other outer members before it are skipped.
func (a *ReflectiveAdapter) enterWrapper(r *Reader) error {
	for r.HasNext() {
		name, err := r.NextName()
		if err != nil {
			return err
		}
		if name == a.meta.wrapper {
			return r.BeginObject()
		}
		if err := r.SkipValue(); err != nil {
			return err
		}
	}
	if r.Err() != nil {
		return r.Err()
	}
	return r.syntaxError(fmt.Sprintf("missing wrapper %q for %v", a.meta.wrapper, a.meta.typ), nil)
}

// leaveWrapper skips trailing outer members and closes the outer object.
func leaveWrapper(r *Reader) error {
	for r.HasNext() {
		if err := r.SkipValue(); err != nil {
			return err
		}
	}
	return r.EndObject()
}

// indirect follows pointers and interfaces; a nil on the way yields an invalid value.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
