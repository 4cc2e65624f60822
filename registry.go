package jsonmap

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// TypeAdapter converts between values of one type and a JSON token stream.
// Read returns an invalid reflect.Value when the input holds no instance (null).
type TypeAdapter interface {
	Write(w *Writer, v reflect.Value) error
	Read(r *Reader) (reflect.Value, error)
}

// InstanceReuser is implemented by adapters that populate instances field by
// field and can therefore update an existing instance in place.
type InstanceReuser interface {
	ReusesInstance() bool
}

// Reusable reports whether a can update an existing instance in place.
func Reusable(a TypeAdapter) bool {
	ir, ok := a.(InstanceReuser)
	return ok && ir.ReusesInstance()
}

// AdapterFactory builds adapters for the types it supports.
type AdapterFactory interface {
	Supports(t reflect.Type) bool
	Create(reg *Registry, t reflect.Type) (TypeAdapter, error)
}

// FactoryOf returns a factory handing out a for any requested type.
// It is meant for WithNamedAdapter.
func FactoryOf(a TypeAdapter) AdapterFactory {
	return &exactFactory{adapter: a}
}

// exactFactory serves one adapter for one type (or for every type when typ is nil).
type exactFactory struct {
	typ     reflect.Type
	adapter TypeAdapter
}

func (f *exactFactory) Supports(t reflect.Type) bool { return f.typ == nil || f.typ == t }
func (f *exactFactory) Create(*Registry, reflect.Type) (TypeAdapter, error) {
	return f.adapter, nil
}

type adapterEntry struct {
	once    sync.Once
	adapter TypeAdapter
	err     error
}

type overrideKey struct {
	typ  reflect.Type
	name string
}

// Registry resolves types to adapters through an ordered factory chain and
// memoizes the outcome per type, failures included. It is safe for
// concurrent use; each adapter is built at most once.
type Registry struct {
	opts      options
	factories []AdapterFactory
	adapters  *xsync.Map[reflect.Type, *adapterEntry]
	overrides *xsync.Map[overrideKey, *adapterEntry]
	metadata  *MetadataCache
	excluder  *Excluder
	logger    *zap.Logger
}

// NewRegistry creates a registry. Registered factories come first, then the
// built-in scalar and collection factories, then reflective struct mapping.
func NewRegistry(opts ...Option) (*Registry, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.err != nil {
		return nil, o.err
	}

	factories := make([]AdapterFactory, 0, len(o.factories)+len(builtinFactories)+1)
	factories = append(factories, o.factories...)
	factories = append(factories, builtinFactories...)
	factories = append(factories, reflectiveFactory{})

	return &Registry{
		opts:      o,
		factories: factories,
		adapters:  xsync.NewMap[reflect.Type, *adapterEntry](),
		overrides: xsync.NewMap[overrideKey, *adapterEntry](),
		metadata:  NewMetadataCache(o.logger, o.visitors...),
		excluder:  newExcluder(o.class, o.property, o.requireMarker),
		logger:    o.logger,
	}, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(opts ...Option) *Registry {
	r, err := NewRegistry(opts...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Excluder() *Excluder      { return r.excluder }
func (r *Registry) Logger() *zap.Logger      { return r.logger }
func (r *Registry) Metadata() *MetadataCache { return r.metadata }

// Adapter returns the adapter for t, resolving it on first request.
func (r *Registry) Adapter(t reflect.Type) (TypeAdapter, error) {
	if t == nil {
		return nil, &ResolutionError{}
	}
	e, ok := r.adapters.Load(t)
	if !ok {
		e, _ = r.adapters.LoadOrStore(t, &adapterEntry{})
	}
	e.once.Do(func() {
		e.err = &ResolutionError{Type: t, cause: ErrBuildAborted}
		e.adapter, e.err = r.resolve(t)
	})
	return e.adapter, e.err
}

func (r *Registry) resolve(t reflect.Type) (TypeAdapter, error) {
	for _, f := range r.factories {
		if !f.Supports(t) {
			continue
		}
		a, err := f.Create(r, t)
		if err != nil {
			r.logger.Warn("adapter resolution failed", zap.Stringer("type", t), zap.String("factory", factoryName(f)), zap.Error(err))
			return nil, &ResolutionError{Type: t, cause: err}
		}
		r.logger.Debug("adapter resolved", zap.Stringer("type", t), zap.String("factory", factoryName(f)))
		return a, nil
	}
	r.logger.Warn("no adapter factory supports type", zap.Stringer("type", t))
	return nil, &ResolutionError{Type: t}
}

// AdapterFromOverride returns the named adapter declared by a field override,
// bypassing the factory chain. Results are memoized per (type, name).
func (r *Registry) AdapterFromOverride(t reflect.Type, o UseAdapter) (TypeAdapter, error) {
	key := overrideKey{typ: t, name: o.Name}
	e, ok := r.overrides.Load(key)
	if !ok {
		e, _ = r.overrides.LoadOrStore(key, &adapterEntry{})
	}
	e.once.Do(func() {
		f, ok := r.opts.named[o.Name]
		if !ok || !f.Supports(t) {
			e.err = &ResolutionError{Type: t, Override: o.Name}
			return
		}
		a, err := f.Create(r, t)
		if err != nil {
			e.err = &ResolutionError{Type: t, Override: o.Name, cause: err}
			return
		}
		r.logger.Debug("override adapter resolved", zap.Stringer("type", t), zap.String("adapter", o.Name))
		e.adapter = a
	})
	return e.adapter, e.err
}

// deferred returns a placeholder resolving t on first use, so composite
// adapters never recurse into the registry while they are being built.
func (r *Registry) deferred(t reflect.Type) TypeAdapter {
	return &lazyAdapter{reg: r, typ: t}
}

type lazyAdapter struct {
	reg     *Registry
	typ     reflect.Type
	once    sync.Once
	adapter TypeAdapter
	err     error
}

func (l *lazyAdapter) get() (TypeAdapter, error) {
	l.once.Do(func() { l.adapter, l.err = l.reg.Adapter(l.typ) })
	return l.adapter, l.err
}

func (l *lazyAdapter) Write(w *Writer, v reflect.Value) error {
	a, err := l.get()
	if err != nil {
		return err
	}
	return a.Write(w, v)
}

func (l *lazyAdapter) Read(r *Reader) (reflect.Value, error) {
	a, err := l.get()
	if err != nil {
		return reflect.Value{}, err
	}
	return a.Read(r)
}

func (l *lazyAdapter) ReusesInstance() bool {
	a, err := l.get()
	return err == nil && Reusable(a)
}

func factoryName(f AdapterFactory) string {
	if s, ok := f.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", f)
}
