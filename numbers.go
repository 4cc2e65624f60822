package jsonmap

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Number is a JSON number kept as its literal text.
type Number string

func (n Number) String() string { return string(n) }

// Float64 parses the literal as a float64.
func (n Number) Float64() (float64, error) { return strconv.ParseFloat(string(n), 64) }

// Int64 parses the literal as an int64.
func (n Number) Int64() (int64, error) { return strconv.ParseInt(string(n), 10, 64) }

func bitSize[T constraints.Integer | constraints.Float]() int {
	var zero T
	return int(unsafe.Sizeof(zero)) * 8
}

// ReadSigned consumes a number and converts it to T, failing when it does not fit.
func ReadSigned[T constraints.Signed](r *Reader) (T, error) {
	lit, err := r.NextNumber()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(lit, 10, bitSize[T]())
	if err != nil {
		return 0, fmt.Errorf("%w: %s as %T: %w", ErrTypeMismatch, lit, T(0), err)
	}
	return T(n), nil
}

// ReadUnsigned consumes a number and converts it to T, failing when it does not fit.
func ReadUnsigned[T constraints.Unsigned](r *Reader) (T, error) {
	lit, err := r.NextNumber()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(lit, 10, bitSize[T]())
	if err != nil {
		return 0, fmt.Errorf("%w: %s as %T: %w", ErrTypeMismatch, lit, T(0), err)
	}
	return T(n), nil
}

// ReadFloat consumes a number and converts it to T.
func ReadFloat[T constraints.Float](r *Reader) (T, error) {
	lit, err := r.NextNumber()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(lit, bitSize[T]())
	if err != nil {
		return 0, fmt.Errorf("%w: %s as %T: %w", ErrTypeMismatch, lit, T(0), err)
	}
	return T(f), nil
}

func WriteSigned[T constraints.Signed](w *Writer, n T) {
	w.Number(strconv.FormatInt(int64(n), 10))
}

func WriteUnsigned[T constraints.Unsigned](w *Writer, n T) {
	w.Number(strconv.FormatUint(uint64(n), 10))
}

// WriteFloat writes f in the shortest form that reads back to the same T.
// NaN and infinities have no JSON form.
func WriteFloat[T constraints.Float](w *Writer, f T) {
	bits := bitSize[T]()
	x := float64(f)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		w.setError(fmt.Errorf("%w: %v", ErrUnsupportedValue, x))
		return
	}
	format := byte('f')
	if abs := math.Abs(x); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	w.Number(strconv.FormatFloat(x, format, -1, bits))
}

type signedAdapter[T constraints.Signed] struct{ typ reflect.Type }

func (a signedAdapter[T]) Write(w *Writer, v reflect.Value) error {
	WriteSigned(w, T(v.Int()))
	return w.Err()
}

func (a signedAdapter[T]) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	n, err := ReadSigned[T](r)
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.New(a.typ).Elem()
	v.SetInt(int64(n))
	return v, nil
}

type unsignedAdapter[T constraints.Unsigned] struct{ typ reflect.Type }

func (a unsignedAdapter[T]) Write(w *Writer, v reflect.Value) error {
	WriteUnsigned(w, T(v.Uint()))
	return w.Err()
}

func (a unsignedAdapter[T]) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	n, err := ReadUnsigned[T](r)
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.New(a.typ).Elem()
	v.SetUint(uint64(n))
	return v, nil
}

type floatAdapter[T constraints.Float] struct{ typ reflect.Type }

func (a floatAdapter[T]) Write(w *Writer, v reflect.Value) error {
	WriteFloat(w, T(v.Float()))
	return w.Err()
}

func (a floatAdapter[T]) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	f, err := ReadFloat[T](r)
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.New(a.typ).Elem()
	v.SetFloat(float64(f))
	return v, nil
}

func newNumberAdapter(t reflect.Type) TypeAdapter {
	switch t.Kind() {
	case reflect.Int:
		return signedAdapter[int]{t}
	case reflect.Int8:
		return signedAdapter[int8]{t}
	case reflect.Int16:
		return signedAdapter[int16]{t}
	case reflect.Int32:
		return signedAdapter[int32]{t}
	case reflect.Int64:
		return signedAdapter[int64]{t}
	case reflect.Uint:
		return unsignedAdapter[uint]{t}
	case reflect.Uint8:
		return unsignedAdapter[uint8]{t}
	case reflect.Uint16:
		return unsignedAdapter[uint16]{t}
	case reflect.Uint32:
		return unsignedAdapter[uint32]{t}
	case reflect.Uint64:
		return unsignedAdapter[uint64]{t}
	case reflect.Uintptr:
		return unsignedAdapter[uintptr]{t}
	case reflect.Float32:
		return floatAdapter[float32]{t}
	case reflect.Float64:
		return floatAdapter[float64]{t}
	}
	return nil
}

// numberLiteralAdapter handles Number.
type numberLiteralAdapter struct{}

func (numberLiteralAdapter) Write(w *Writer, v reflect.Value) error {
	lit := v.String()
	if lit == "" {
		lit = "0"
	}
	w.Number(lit)
	return w.Err()
}

func (numberLiteralAdapter) Read(r *Reader) (reflect.Value, error) {
	if null, err := readNull(r); null || err != nil {
		return reflect.Value{}, err
	}
	lit, err := r.NextNumber()
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(Number(lit)), nil
}
