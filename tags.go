package jsonmap

import (
	"fmt"
	"reflect"
	"strings"
)

// AnnotationKind identifies one kind of declarative metadata.
type AnnotationKind string

const (
	KindName            AnnotationKind = "name"
	KindAdapter         AnnotationKind = "adapter"
	KindCheckExclusion  AnnotationKind = "checkExclusion"
	KindTransient       AnnotationKind = "transient"
	KindSkipSerialize   AnnotationKind = "skipSerialize"
	KindSkipDeserialize AnnotationKind = "skipDeserialize"
	KindWrap            AnnotationKind = "wrap"
)

// Annotation is one piece of declarative metadata attached to a field or class.
type Annotation interface {
	Kind() AnnotationKind
}

type (
	// SerializedName overrides the JSON member name of a field.
	SerializedName struct{ Value string }
	// UseAdapter selects a named adapter instead of registry resolution.
	UseAdapter struct{ Name string }
	// CheckExclusion marks a class or field as eligible for exclusion strategies.
	CheckExclusion struct{}
	// Transient skips a field (or class) in both directions.
	Transient struct{}
	// SkipSerialize skips a field (or class) when writing.
	SkipSerialize struct{}
	// SkipDeserialize skips a field (or class) when reading.
	SkipDeserialize struct{}
	// Wrap nests a class's members under a synthetic object with this name.
	Wrap struct{ Name string }
	// Tag is any other directive, kept for exclusion strategies to inspect.
	Tag struct{ Key, Value string }
)

func (SerializedName) Kind() AnnotationKind  { return KindName }
func (UseAdapter) Kind() AnnotationKind      { return KindAdapter }
func (CheckExclusion) Kind() AnnotationKind  { return KindCheckExclusion }
func (Transient) Kind() AnnotationKind       { return KindTransient }
func (SkipSerialize) Kind() AnnotationKind   { return KindSkipSerialize }
func (SkipDeserialize) Kind() AnnotationKind { return KindSkipDeserialize }
func (Wrap) Kind() AnnotationKind            { return KindWrap }
func (t Tag) Kind() AnnotationKind           { return AnnotationKind(t.Key) }

// Annotations maps each kind to its single annotation.
type Annotations map[AnnotationKind]Annotation

// Get returns the annotation of the given kind.
func (a Annotations) Get(kind AnnotationKind) (Annotation, bool) {
	ann, ok := a[kind]
	return ann, ok
}

// Has reports whether an annotation of the given kind is present.
func (a Annotations) Has(kind AnnotationKind) bool {
	_, ok := a[kind]
	return ok
}

func (a Annotations) add(ann Annotation) error {
	if a.Has(ann.Kind()) {
		return fmt.Errorf("%w: directive %q repeated", ErrInvalidTag, ann.Kind())
	}
	a[ann.Kind()] = ann
	return nil
}

// TagKey is the struct tag key holding jsonmap directives.
const TagKey = "jsonmap"

// parseAnnotations reads the comma separated directives of a jsonmap tag:
//
//	`jsonmap:"name=user_id,adapter=uuid,checkExclusion,role=admin"`
func parseAnnotations(tag reflect.StructTag) (Annotations, error) {
	anns := Annotations{}
	raw, ok := tag.Lookup(TagKey)
	if !ok {
		return anns, nil
	}
	for _, directive := range strings.Split(raw, ",") {
		directive = strings.TrimSpace(directive)
		if directive == "" {
			continue
		}
		key, value, _ := strings.Cut(directive, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		var ann Annotation
		switch AnnotationKind(key) {
		case KindName:
			if value == "" {
				return nil, ErrEmptyName
			}
			ann = SerializedName{Value: value}
		case KindAdapter:
			if value == "" {
				return nil, fmt.Errorf("%w: adapter directive without a name", ErrInvalidTag)
			}
			ann = UseAdapter{Name: value}
		case KindWrap:
			if value == "" {
				return nil, fmt.Errorf("%w: wrap directive without a name", ErrInvalidTag)
			}
			ann = Wrap{Name: value}
		case KindCheckExclusion:
			ann = CheckExclusion{}
		case KindTransient:
			ann = Transient{}
		case KindSkipSerialize:
			ann = SkipSerialize{}
		case KindSkipDeserialize:
			ann = SkipDeserialize{}
		default:
			if key == "" {
				return nil, fmt.Errorf("%w: directive %q has no key", ErrInvalidTag, directive)
			}
			ann = Tag{Key: key, Value: value}
		}
		if err := anns.add(ann); err != nil {
			return nil, err
		}
	}
	return anns, nil
}

// jsonTagName returns the name part of a `json` tag and whether the field is ignored ("-").
func jsonTagName(tag reflect.StructTag) (name string, ignored bool) {
	raw, ok := tag.Lookup("json")
	if !ok {
		return "", false
	}
	if raw == "-" {
		return "", true
	}
	name, _, _ = strings.Cut(raw, ",")
	return name, false
}
