package jsonmap

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNilIO indicates that NewReader/NewWriter was called with a nil io.Reader/io.Writer.
	ErrNilIO = errors.New("jsonmap: NewReader/NewWriter called with a nil io.Reader/io.Writer")

	// ErrNoAdapter indicates that no factory in the registry chain supports the requested type.
	ErrNoAdapter = errors.New("jsonmap: no adapter for type")

	// ErrConstruction indicates that an instance of the target type could not be produced.
	ErrConstruction = errors.New("jsonmap: cannot construct instance")

	// ErrAccessorIncompatible indicates a field accessor could not produce the current value,
	// typically because an embedded pointer on the path is still nil.
	ErrAccessorIncompatible = errors.New("jsonmap: field accessor incompatible with instance")

	// ErrMalformedStream indicates the token stream does not have the expected shape.
	ErrMalformedStream = errors.New("jsonmap: malformed stream")

	// ErrEmptyName indicates a naming override was declared without a value.
	ErrEmptyName = errors.New("jsonmap: naming override declared without a value")

	// ErrDuplicateName indicates two fields at the same depth resolve to the same serialized name.
	ErrDuplicateName = errors.New("jsonmap: duplicate serialized name")

	// ErrNotStruct indicates class metadata was requested for a non-struct type.
	ErrNotStruct = errors.New("jsonmap: class metadata requires a struct type")

	// ErrUnsupportedValue indicates a value that has no JSON representation (NaN or infinity).
	ErrUnsupportedValue = errors.New("jsonmap: unsupported value")

	// ErrInvalidTarget indicates Unmarshal/Update was called with a nil or non-pointer target.
	ErrInvalidTarget = errors.New("jsonmap: target must be a non-nil pointer")

	// ErrWriterState indicates a token was written where the JSON grammar does not allow it.
	ErrWriterState = errors.New("jsonmap: token not allowed in current writer state")

	// ErrTypeMismatch indicates a well-formed value that does not fit the target type.
	ErrTypeMismatch = errors.New("jsonmap: value does not fit target type")

	// ErrInvalidTag indicates a malformed or repeated jsonmap struct tag directive.
	ErrInvalidTag = errors.New("jsonmap: invalid struct tag")

	// ErrBuildAborted indicates an earlier metadata build for the type panicked.
	ErrBuildAborted = errors.New("jsonmap: metadata build aborted")

	// ErrMaxDepth indicates the nesting depth limit was exceeded while reading.
	ErrMaxDepth = errors.New("jsonmap: maximum nesting depth exceeded")
)

// ResolutionError reports a type (or type + override) for which no adapter exists.
type ResolutionError struct {
	Type     reflect.Type
	Override string
	cause    error
}

func (e *ResolutionError) Error() string {
	if e.Override != "" {
		return fmt.Sprintf("jsonmap: no adapter %q for type %v", e.Override, e.Type)
	}
	if e.cause != nil {
		return fmt.Sprintf("jsonmap: no adapter for type %v: %v", e.Type, e.cause)
	}
	return fmt.Sprintf("jsonmap: no adapter for type %v", e.Type)
}

func (e *ResolutionError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrNoAdapter, e.cause}
	}
	return []error{ErrNoAdapter}
}

// ConstructionError reports a type that could not be instantiated.
type ConstructionError struct {
	Type   reflect.Type
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("jsonmap: cannot construct %v: %s", e.Type, e.Reason)
}

func (e *ConstructionError) Unwrap() error { return ErrConstruction }

// AccessorError reports a field accessor failure.
type AccessorError struct {
	Type  reflect.Type
	Field string
	cause error
}

func (e *AccessorError) Error() string {
	return fmt.Sprintf("jsonmap: accessor for %v.%s: %v", e.Type, e.Field, e.cause)
}

func (e *AccessorError) Unwrap() []error { return []error{ErrAccessorIncompatible, e.cause} }

// MetadataError reports a static declaration defect found while building class metadata.
type MetadataError struct {
	Type  reflect.Type
	Field string
	Err   error
}

func (e *MetadataError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %v", e.Err, e.Type)
	}
	return fmt.Sprintf("%v: %v.%s", e.Err, e.Type, e.Field)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// SyntaxError is a MalformedStream failure located at a byte offset of the input.
type SyntaxError struct {
	Offset int64
	Msg    string
	cause  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("jsonmap: syntax error at offset %d: %s", e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrMalformedStream, e.cause}
	}
	return []error{ErrMalformedStream}
}
