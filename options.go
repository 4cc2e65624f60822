package jsonmap

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// options collects Registry configuration.
type options struct {
	factories     []AdapterFactory
	named         map[string]AdapterFactory
	class         [2][]ClassExclusionStrategy
	property      [2][]PropertyExclusionStrategy
	visitors      []MetadataVisitor
	requireMarker bool
	logger        *zap.Logger
	bufferSize    int
	maxDepth      int
	useNumber     bool
	err           error
}

// Option configures a Registry.
type Option func(*options)

// WithFactory registers an adapter factory. Registered factories are queried
// in registration order, before the built-in ones.
func WithFactory(f AdapterFactory) Option {
	return func(o *options) { o.factories = append(o.factories, f) }
}

// WithTypeAdapter registers a to handle exactly type t.
func WithTypeAdapter(t reflect.Type, a TypeAdapter) Option {
	return WithFactory(&exactFactory{typ: t, adapter: a})
}

// WithNamedAdapter makes f available to fields tagged `jsonmap:"adapter=<name>"`.
func WithNamedAdapter(name string, f AdapterFactory) Option {
	return func(o *options) {
		if o.named == nil {
			o.named = make(map[string]AdapterFactory)
		}
		o.named[name] = f
	}
}

// WithExclusion registers a strategy for both directions.
func WithExclusion(s any) Option {
	return func(o *options) {
		o.addStrategy(Serialize, s, true)
		o.addStrategy(Deserialize, s, false)
	}
}

// WithSerializationExclusion registers a strategy consulted while writing.
func WithSerializationExclusion(s any) Option {
	return func(o *options) { o.addStrategy(Serialize, s, true) }
}

// WithDeserializationExclusion registers a strategy consulted while reading.
func WithDeserializationExclusion(s any) Option {
	return func(o *options) { o.addStrategy(Deserialize, s, true) }
}

// WithMetadataVisitor registers a hook run once per type after its metadata is built.
func WithMetadataVisitor(v MetadataVisitor) Option {
	return func(o *options) { o.addVisitor(v) }
}

// WithRequireExclusionMarker limits exclusion strategies to classes and fields
// tagged `jsonmap:"checkExclusion"`.
func WithRequireExclusionMarker(require bool) Option {
	return func(o *options) { o.requireMarker = require }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBufferSize sets the buffer size of the streams Encode and Decode create.
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufferSize = n }
}

// WithMaxDepth bounds the nesting depth accepted when decoding.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithUseNumber decodes numbers held by empty interfaces as Number instead of float64.
func WithUseNumber(use bool) Option {
	return func(o *options) { o.useNumber = use }
}

// addStrategy files s under every strategy interface it implements.
// visitor controls whether a MetadataVisitor strategy is also added as a visitor.
func (o *options) addStrategy(d Direction, s any, visitor bool) {
	matched := false
	if cs, ok := s.(ClassExclusionStrategy); ok {
		o.class[d] = append(o.class[d], cs)
		matched = true
	}
	if ps, ok := s.(PropertyExclusionStrategy); ok {
		o.property[d] = append(o.property[d], ps)
		matched = true
	}
	if v, ok := s.(MetadataVisitor); ok {
		matched = true
		if visitor {
			o.addVisitor(v)
		}
	}
	if !matched && o.err == nil {
		o.err = fmt.Errorf("jsonmap: exclusion strategy %T implements no strategy interface", s)
	}
}

// addVisitor appends v unless the same visitor is already registered.
// Values of incomparable types, such as MetadataVisitorFunc, are always appended.
func (o *options) addVisitor(v MetadataVisitor) {
	if v == nil {
		return
	}
	if reflect.TypeOf(v).Comparable() {
		for _, existing := range o.visitors {
			if existing == v {
				return
			}
		}
	}
	o.visitors = append(o.visitors, v)
}

// Config is the file/env form of the registry settings.
type Config struct {
	RequireExclusionMarker bool   `mapstructure:"require_exclusion_marker"`
	BufferSize             int    `mapstructure:"buffer_size"`
	MaxDepth               int    `mapstructure:"max_depth"`
	LogLevel               string `mapstructure:"log_level"`
}

// Options translates the configuration into registry options.
// An empty LogLevel keeps logging disabled.
func (c Config) Options() ([]Option, error) {
	opts := []Option{
		WithRequireExclusionMarker(c.RequireExclusionMarker),
		WithBufferSize(c.BufferSize),
		WithMaxDepth(c.MaxDepth),
	}
	if c.LogLevel == "" {
		return opts, nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("jsonmap: log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("jsonmap: build logger: %w", err)
	}
	return append(opts, WithLogger(logger.Named("jsonmap"))), nil
}
