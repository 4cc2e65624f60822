package jsonmap

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"
)

type flushWriter interface {
	io.Writer
	io.ByteWriter
	io.StringWriter
	Flush() error
}

// bytesBufferWriter lets a *bytes.Buffer be written without an extra bufio layer.
type bytesBufferWriter struct{ *bytes.Buffer }

func (w bytesBufferWriter) Flush() error { return nil }

// Writer provides a buffered JSON token writer.
// It tracks the first error that occurs; after an error all subsequent
// write operations become no-ops.
type Writer struct {
	w     flushWriter
	count int64 // total bytes written
	err   error // first error encountered
	stack []scope
}

// NewWriterSize creates a new Writer with a specified buffer size.
func NewWriterSize(w io.Writer, size int) (*Writer, error) {
	if w == nil {
		return nil, ErrNilIO
	}
	if size <= 0 {
		size = BUFFER_SIZE
	}

	var fw flushWriter
	switch bw := w.(type) {
	// underlying is a buf so we don't need buffering
	case *bytes.Buffer:
		fw = bytesBufferWriter{bw}
	case *bufio.Writer:
		if bw.Size() >= size {
			fw = bw
		}
	// already buffered by the caller
	case flushWriter:
		fw = bw
	}
	if fw == nil {
		fw = bufio.NewWriterSize(w, size)
	}
	return &Writer{w: fw, stack: []scope{scopeEmptyDocument}}, nil
}

// NewWriter creates a new Writer with a default buffer size.
func NewWriter(w io.Writer) (*Writer, error) {
	return NewWriterSize(w, 0)
}

func (w *Writer) Count() int64 { return w.count }
func (w *Writer) Err() error   { return w.err }

// setError records the first non-nil error.
func (w *Writer) setError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

func (w *Writer) stateError(msg string) {
	w.setError(fmt.Errorf("%w: %s", ErrWriterState, msg))
}

// Result flushes the buffer and returns the final count and error state.
func (w *Writer) Result() (int64, error) {
	w.Flush()
	return w.count, w.err
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.setError(w.w.Flush())
	return w.err
}

func (w *Writer) writeByte(b byte) {
	if w.err != nil {
		return
	}
	if err := w.w.WriteByte(b); err != nil {
		w.err = err
		return
	}
	w.count++
}

func (w *Writer) writeString(s string) {
	if s == "" || w.err != nil {
		return
	}
	n, err := w.w.WriteString(s)
	w.count += int64(n)
	w.setError(err)
}

// beforeValue emits the separator a value needs in the current scope.
func (w *Writer) beforeValue() bool {
	if w.err != nil {
		return false
	}
	top := &w.stack[len(w.stack)-1]
	switch *top {
	case scopeEmptyDocument:
		*top = scopeNonEmptyDocument
	case scopeNonEmptyDocument:
		w.writeByte('\n')
	case scopeEmptyArray:
		*top = scopeNonEmptyArray
	case scopeNonEmptyArray:
		w.writeByte(',')
	case scopeDanglingName:
		*top = scopeNonEmptyObject
	default:
		w.stateError("value without a name inside an object")
	}
	return w.err == nil
}

// BeginObject writes '{'.
func (w *Writer) BeginObject() {
	if w.beforeValue() {
		w.writeByte('{')
		w.stack = append(w.stack, scopeEmptyObject)
	}
}

// EndObject writes '}'.
func (w *Writer) EndObject() {
	if w.err != nil {
		return
	}
	if top := w.stack[len(w.stack)-1]; top != scopeEmptyObject && top != scopeNonEmptyObject {
		w.stateError("end object outside an object or after a dangling name")
		return
	}
	w.writeByte('}')
	w.stack = w.stack[:len(w.stack)-1]
}

// BeginArray writes '['.
func (w *Writer) BeginArray() {
	if w.beforeValue() {
		w.writeByte('[')
		w.stack = append(w.stack, scopeEmptyArray)
	}
}

// EndArray writes ']'.
func (w *Writer) EndArray() {
	if w.err != nil {
		return
	}
	if top := w.stack[len(w.stack)-1]; top != scopeEmptyArray && top != scopeNonEmptyArray {
		w.stateError("end array outside an array")
		return
	}
	w.writeByte(']')
	w.stack = w.stack[:len(w.stack)-1]
}

// Name writes a member name and the following ':'.
func (w *Writer) Name(name string) {
	if w.err != nil {
		return
	}
	top := &w.stack[len(w.stack)-1]
	switch *top {
	case scopeEmptyObject:
	case scopeNonEmptyObject:
		w.writeByte(',')
	default:
		w.stateError(fmt.Sprintf("name %q outside an object", name))
		return
	}
	w.writeQuoted(name)
	w.writeByte(':')
	*top = scopeDanglingName
}

// String writes a string value.
func (w *Writer) String(s string) {
	if w.beforeValue() {
		w.writeQuoted(s)
	}
}

// Number writes a number literal such as "12", "-0.5" or "1e+06".
func (w *Writer) Number(lit string) {
	if !validNumber(lit) {
		w.setError(fmt.Errorf("%w: invalid number literal %q", ErrUnsupportedValue, lit))
		return
	}
	if w.beforeValue() {
		w.writeString(lit)
	}
}

// Bool writes true or false.
func (w *Writer) Bool(b bool) {
	if !w.beforeValue() {
		return
	}
	if b {
		w.writeString("true")
	} else {
		w.writeString("false")
	}
}

// Null writes null.
func (w *Writer) Null() {
	if w.beforeValue() {
		w.writeString("null")
	}
}

// RawValue writes one pre-encoded JSON value after checking it is well formed.
func (w *Writer) RawValue(raw []byte) {
	if w.err != nil {
		return
	}
	raw = bytes.TrimSpace(raw)
	if err := checkValue(raw); err != nil {
		w.setError(err)
		return
	}
	if w.beforeValue() {
		n, err := w.w.Write(raw)
		w.count += int64(n)
		w.setError(err)
	}
}

// checkValue verifies raw holds exactly one JSON value.
func checkValue(raw []byte) error {
	r, _ := NewReader(bytes.NewReader(raw))
	if err := r.SkipValue(); err != nil {
		return err
	}
	if k, err := r.Peek(); err != nil || k != EOF {
		return r.syntaxError("trailing data after value", nil)
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func (w *Writer) writeQuoted(s string) {
	w.writeByte('"')
	start := 0
	for i := 0; i < len(s); {
		if b := s[i]; b < utf8.RuneSelf {
			if b >= 0x20 && b != '"' && b != '\\' {
				i++
				continue
			}
			w.writeString(s[start:i])
			switch b {
			case '"', '\\':
				w.writeByte('\\')
				w.writeByte(b)
			case '\n':
				w.writeString(`\n`)
			case '\r':
				w.writeString(`\r`)
			case '\t':
				w.writeString(`\t`)
			case '\b':
				w.writeString(`\b`)
			case '\f':
				w.writeString(`\f`)
			default:
				w.writeString(`\u00`)
				w.writeByte(hexDigits[b>>4])
				w.writeByte(hexDigits[b&0xF])
			}
			i++
			start = i
			continue
		}
		c, size := utf8.DecodeRuneInString(s[i:])
		if c == utf8.RuneError && size == 1 {
			w.writeString(s[start:i])
			w.writeString(`\ufffd`)
			i += size
			start = i
			continue
		}
		// U+2028 and U+2029 break JavaScript string literals.
		if c == '\u2028' || c == '\u2029' {
			w.writeString(s[start:i])
			w.writeString(`\u202`)
			w.writeByte(hexDigits[c&0xF])
			i += size
			start = i
			continue
		}
		i += size
	}
	w.writeString(s[start:])
	w.writeByte('"')
}
