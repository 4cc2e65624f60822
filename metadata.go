package jsonmap

import (
	"fmt"
	"iter"
	"reflect"
	"slices"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// FieldDescriptor describes one structural field of a struct type.
// Skip flags may be changed by metadata visitors; everything else is fixed
// once the owning ClassMetadata is built.
type FieldDescriptor struct {
	declaring       reflect.Type
	name            string
	serializedName  string
	typ             reflect.Type
	index           []int
	depth           int
	skipSerialize   bool
	skipDeserialize bool
	annotations     Annotations
}

func (f *FieldDescriptor) DeclaringType() reflect.Type { return f.declaring }
func (f *FieldDescriptor) DeclaringTypeName() string   { return f.declaring.String() }
func (f *FieldDescriptor) Name() string                { return f.name }
func (f *FieldDescriptor) SerializedName() string      { return f.serializedName }
func (f *FieldDescriptor) Type() reflect.Type          { return f.typ }
func (f *FieldDescriptor) Annotations() Annotations    { return f.annotations }
func (f *FieldDescriptor) SkipSerialize() bool         { return f.skipSerialize }
func (f *FieldDescriptor) SkipDeserialize() bool       { return f.skipDeserialize }
func (f *FieldDescriptor) SetSkipSerialize(v bool)     { f.skipSerialize = v }
func (f *FieldDescriptor) SetSkipDeserialize(v bool)   { f.skipDeserialize = v }

// Annotation looks up the field's declarative metadata of the given kind.
func (f *FieldDescriptor) Annotation(kind AnnotationKind) (Annotation, bool) {
	return f.annotations.Get(kind)
}

// AdapterOverride returns the explicit converter override declared on the field.
func (f *FieldDescriptor) AdapterOverride() (UseAdapter, bool) {
	ann, ok := f.annotations.Get(KindAdapter)
	if !ok {
		return UseAdapter{}, false
	}
	return ann.(UseAdapter), true
}

// Get reads the field from a struct value of the owning type. It fails with
// an AccessorError when an embedded pointer on the path is nil.
func (f *FieldDescriptor) Get(inst reflect.Value) (reflect.Value, error) {
	v, err := inst.FieldByIndexErr(f.index)
	if err != nil {
		return reflect.Value{}, &AccessorError{Type: f.declaring, Field: f.name, cause: err}
	}
	return v, nil
}

// Set stores v into the field of an addressable struct value, allocating nil
// embedded pointers on the way. An invalid v resets the field to its zero value.
func (f *FieldDescriptor) Set(inst, v reflect.Value) error {
	fv := inst
	for i, x := range f.index {
		if i > 0 && fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				fv.Set(reflect.New(fv.Type().Elem()))
			}
			fv = fv.Elem()
		}
		fv = fv.Field(x)
	}
	if err := assign(fv, v); err != nil {
		return &AccessorError{Type: f.declaring, Field: f.name, cause: err}
	}
	return nil
}

// assign stores v into dst, converting when the types differ but are convertible.
func assign(dst, v reflect.Value) error {
	switch {
	case !v.IsValid():
		dst.SetZero()
	case v.Type().AssignableTo(dst.Type()):
		dst.Set(v)
	case v.Type().ConvertibleTo(dst.Type()):
		dst.Set(v.Convert(dst.Type()))
	default:
		return fmt.Errorf("%w: cannot assign %v to %v", ErrTypeMismatch, v.Type(), dst.Type())
	}
	return nil
}

// PropertyCollection holds a type's fields in declaration order, indexed by
// serialized name. It is read-only once built.
type PropertyCollection struct {
	fields []*FieldDescriptor
	byName map[string]*FieldDescriptor
	byRaw  map[string]*FieldDescriptor
}

func newPropertyCollection(fields []*FieldDescriptor) *PropertyCollection {
	p := &PropertyCollection{
		fields: fields,
		byName: make(map[string]*FieldDescriptor, len(fields)),
		byRaw:  make(map[string]*FieldDescriptor, len(fields)),
	}
	for _, f := range fields {
		p.byName[f.serializedName] = f
		if _, ok := p.byRaw[f.name]; !ok {
			p.byRaw[f.name] = f
		}
	}
	return p
}

func (p *PropertyCollection) Len() int                  { return len(p.fields) }
func (p *PropertyCollection) At(i int) *FieldDescriptor { return p.fields[i] }

// All iterates the fields in serialization order.
func (p *PropertyCollection) All() iter.Seq2[int, *FieldDescriptor] {
	return slices.All(p.fields)
}

// Lookup finds a field by its serialized name.
func (p *PropertyCollection) Lookup(serializedName string) (*FieldDescriptor, bool) {
	f, ok := p.byName[serializedName]
	return f, ok
}

// ByName finds a field by its declared Go name.
func (p *PropertyCollection) ByName(name string) (*FieldDescriptor, bool) {
	f, ok := p.byRaw[name]
	return f, ok
}

// ClassMetadata is the introspected description of one struct type.
type ClassMetadata struct {
	typ             reflect.Type
	properties      *PropertyCollection
	skipSerialize   bool
	skipDeserialize bool
	annotations     Annotations
	wrapper         string
	checkExclusion  bool
	markedFields    bool
}

func (c *ClassMetadata) Type() reflect.Type              { return c.typ }
func (c *ClassMetadata) Name() string                    { return c.typ.String() }
func (c *ClassMetadata) Properties() *PropertyCollection { return c.properties }
func (c *ClassMetadata) Annotations() Annotations        { return c.annotations }
func (c *ClassMetadata) WrapperName() string             { return c.wrapper }
func (c *ClassMetadata) SkipSerialize() bool             { return c.skipSerialize }
func (c *ClassMetadata) SkipDeserialize() bool           { return c.skipDeserialize }
func (c *ClassMetadata) SetSkipSerialize(v bool)         { c.skipSerialize = v }
func (c *ClassMetadata) SetSkipDeserialize(v bool)       { c.skipDeserialize = v }
func (c *ClassMetadata) Annotation(kind AnnotationKind) (Annotation, bool) {
	return c.annotations.Get(kind)
}

// Field finds a field descriptor by its declared Go name.
func (c *ClassMetadata) Field(name string) (*FieldDescriptor, bool) {
	return c.properties.ByName(name)
}

// MetadataVisitor is invoked exactly once per type, right after its metadata
// is built and before any adapter uses it.
type MetadataVisitor interface {
	MetadataLoaded(cm *ClassMetadata)
}

// MetadataVisitorFunc adapts a function to MetadataVisitor.
type MetadataVisitorFunc func(cm *ClassMetadata)

func (f MetadataVisitorFunc) MetadataLoaded(cm *ClassMetadata) { f(cm) }

type metadataEntry struct {
	once sync.Once
	meta *ClassMetadata
	err  error
}

// MetadataCache builds ClassMetadata at most once per type and keeps it for
// the cache's lifetime, failures included.
type MetadataCache struct {
	entries  *xsync.Map[reflect.Type, *metadataEntry]
	visitors []MetadataVisitor
	logger   *zap.Logger
}

// NewMetadataCache creates a cache running visitors in the given order.
func NewMetadataCache(logger *zap.Logger, visitors ...MetadataVisitor) *MetadataCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataCache{
		entries:  xsync.NewMap[reflect.Type, *metadataEntry](),
		visitors: visitors,
		logger:   logger,
	}
}

// BuildOrGet returns the metadata of t, building it on first request.
func (c *MetadataCache) BuildOrGet(t reflect.Type) (*ClassMetadata, error) {
	e, ok := c.entries.Load(t)
	if !ok {
		e, _ = c.entries.LoadOrStore(t, &metadataEntry{})
	}
	e.once.Do(func() {
		// Stays in place if a visitor panics, so no half-built metadata is published.
		e.err = &MetadataError{Type: t, Err: ErrBuildAborted}

		meta, err := buildClassMetadata(t)
		if err != nil {
			c.logger.Warn("class metadata build failed", zap.Stringer("type", t), zap.Error(err))
			e.err = err
			return
		}
		for _, v := range c.visitors {
			v.MetadataLoaded(meta)
		}
		c.logger.Debug("class metadata built",
			zap.Stringer("type", t),
			zap.Int("fields", meta.properties.Len()),
			zap.String("wrapper", meta.wrapper))
		e.meta, e.err = meta, nil
	})
	return e.meta, e.err
}

func buildClassMetadata(t reflect.Type) (*ClassMetadata, error) {
	if t.Kind() != reflect.Struct {
		return nil, &MetadataError{Type: t, Err: ErrNotStruct}
	}
	cm := &ClassMetadata{typ: t, annotations: Annotations{}}

	var candidates []*FieldDescriptor
	if err := collectFields(cm, t, nil, 0, map[reflect.Type]bool{t: true}, &candidates); err != nil {
		return nil, err
	}

	// Shallower fields dominate deeper ones; equal depth is a declaration defect.
	minDepth := make(map[string]int)
	atMin := make(map[string]int)
	for _, f := range candidates {
		d, seen := minDepth[f.serializedName]
		switch {
		case !seen || f.depth < d:
			minDepth[f.serializedName] = f.depth
			atMin[f.serializedName] = 1
		case f.depth == d:
			atMin[f.serializedName]++
		}
	}
	fields := make([]*FieldDescriptor, 0, len(candidates))
	for _, f := range candidates {
		if f.depth != minDepth[f.serializedName] {
			continue
		}
		if atMin[f.serializedName] > 1 {
			return nil, &MetadataError{Type: t, Field: f.name, Err: fmt.Errorf("%w %q", ErrDuplicateName, f.serializedName)}
		}
		if f.annotations.Has(KindCheckExclusion) {
			cm.markedFields = true
		}
		fields = append(fields, f)
	}
	cm.properties = newPropertyCollection(fields)

	if ann, ok := cm.annotations.Get(KindWrap); ok {
		cm.wrapper = ann.(Wrap).Name
	}
	cm.checkExclusion = cm.annotations.Has(KindCheckExclusion)
	transient := cm.annotations.Has(KindTransient)
	cm.skipSerialize = transient || cm.annotations.Has(KindSkipSerialize)
	cm.skipDeserialize = transient || cm.annotations.Has(KindSkipDeserialize)
	return cm, nil
}

// collectFields walks t depth-first, flattening anonymous struct fields.
// Class-level directives come from blank fields of the root type:
//
//	_ struct{} `jsonmap:"wrap=data,checkExclusion"`
func collectFields(cm *ClassMetadata, t reflect.Type, index []int, depth int, visiting map[reflect.Type]bool, out *[]*FieldDescriptor) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		anns, err := parseAnnotations(sf.Tag)
		if err != nil {
			return &MetadataError{Type: t, Field: sf.Name, Err: err}
		}

		if sf.Name == "_" {
			if depth > 0 {
				continue
			}
			for _, ann := range anns {
				if err := cm.annotations.add(ann); err != nil {
					return &MetadataError{Type: t, Err: err}
				}
			}
			continue
		}

		jsonName, ignored := jsonTagName(sf.Tag)
		if ignored {
			continue
		}

		fieldIndex := append(slices.Clip(index), i)
		if sf.Anonymous && !anns.Has(KindName) && jsonName == "" {
			ft := sf.Type
			isPtr := ft.Kind() == reflect.Pointer
			if isPtr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				// A nil pointer to an unexported struct cannot be allocated through reflection.
				if isPtr && !sf.IsExported() {
					continue
				}
				if visiting[ft] || anns.Has(KindTransient) {
					continue
				}
				visiting[ft] = true
				err := collectFields(cm, ft, fieldIndex, depth+1, visiting, out)
				delete(visiting, ft)
				if err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}

		name := sf.Name
		switch {
		case anns.Has(KindName):
			ann, _ := anns.Get(KindName)
			name = ann.(SerializedName).Value
		case jsonName != "":
			name = jsonName
		}
		transient := anns.Has(KindTransient)
		*out = append(*out, &FieldDescriptor{
			declaring:       t,
			name:            sf.Name,
			serializedName:  name,
			typ:             sf.Type,
			index:           fieldIndex,
			depth:           depth,
			skipSerialize:   transient || anns.Has(KindSkipSerialize),
			skipDeserialize: transient || anns.Has(KindSkipDeserialize),
			annotations:     anns,
		})
	}
	return nil
}
