package jsonmap

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// DefaultMaxDepth bounds object/array nesting accepted by a Reader.
const DefaultMaxDepth = 10000

// Reader is a buffered, pull-style JSON token reader.
// It tracks the first error it encounters; after that every operation
// is a no-op returning the same error.
type Reader struct {
	r        *bufio.Reader
	count    int64 // total bytes consumed
	err      error // first error encountered
	stack    []scope
	peeked   Kind
	maxDepth int
	ctx      ReadContext
}

// NewReaderSize creates a new Reader with a specified buffer size.
// An existing *bufio.Reader with at least that size is used as is.
func NewReaderSize(r io.Reader, size int) (*Reader, error) {
	if r == nil {
		return nil, ErrNilIO
	}
	if size <= 0 {
		size = BUFFER_SIZE
	}

	var br *bufio.Reader
	if b, ok := r.(*bufio.Reader); ok && b.Size() >= size {
		br = b
	} else {
		br = bufio.NewReaderSize(r, size)
	}
	return &Reader{
		r:        br,
		stack:    []scope{scopeEmptyDocument},
		maxDepth: DefaultMaxDepth,
	}, nil
}

// NewReader creates a new Reader with a default buffer size.
func NewReader(r io.Reader) (*Reader, error) {
	return NewReaderSize(r, 0)
}

// WithMaxDepth sets the nesting limit and returns the reader for chaining.
func (r *Reader) WithMaxDepth(n int) *Reader {
	if n > 0 {
		r.maxDepth = n
	}
	return r
}

// Context returns the deserialization context carried by this stream.
func (r *Reader) Context() *ReadContext { return &r.ctx }

func (r *Reader) Count() int64 { return r.count }
func (r *Reader) Err() error   { return r.err }
func (r *Reader) Depth() int   { return len(r.stack) - 1 }

// setError records the first non-nil error.
func (r *Reader) setError(err error) error {
	if r.err == nil && err != nil {
		r.err = err
	}
	return r.err
}

func (r *Reader) syntaxError(msg string, cause error) error {
	return r.setError(&SyntaxError{Offset: r.count, Msg: msg, cause: cause})
}

// eofError turns a premature io.EOF into a syntax error; other I/O errors pass through.
func (r *Reader) eofError(err error) error {
	if err == io.EOF {
		return r.syntaxError("unexpected end of input", io.ErrUnexpectedEOF)
	}
	return r.setError(err)
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err == nil {
		r.count++
	}
	return b, err
}

func (r *Reader) unreadByte() {
	if r.r.UnreadByte() == nil {
		r.count--
	}
}

func (r *Reader) nextNonWhitespace() (byte, error) {
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b, nil
	}
}

// Peek reports the kind of the next token without consuming it.
func (r *Reader) Peek() (Kind, error) {
	if r.err != nil {
		return Invalid, r.err
	}
	if r.peeked != Invalid {
		return r.peeked, nil
	}
	k, err := r.doPeek()
	if err != nil {
		return Invalid, err
	}
	r.peeked = k
	return k, nil
}

func (r *Reader) doPeek() (Kind, error) {
	top := &r.stack[len(r.stack)-1]
	switch *top {
	case scopeEmptyArray:
		*top = scopeNonEmptyArray
		c, err := r.nextNonWhitespace()
		if err != nil {
			return Invalid, r.eofError(err)
		}
		r.unreadByte()
		if c == ']' {
			return EndArray, nil
		}
	case scopeNonEmptyArray:
		c, err := r.nextNonWhitespace()
		if err != nil {
			return Invalid, r.eofError(err)
		}
		switch c {
		case ']':
			r.unreadByte()
			return EndArray, nil
		case ',':
		default:
			return Invalid, r.syntaxError(fmt.Sprintf("expected ',' or ']' but found %q", c), nil)
		}
	case scopeEmptyObject, scopeNonEmptyObject:
		c, err := r.nextNonWhitespace()
		if err != nil {
			return Invalid, r.eofError(err)
		}
		if c == '}' {
			r.unreadByte()
			return EndObject, nil
		}
		if *top == scopeNonEmptyObject {
			if c != ',' {
				return Invalid, r.syntaxError(fmt.Sprintf("expected ',' or '}' but found %q", c), nil)
			}
			if c, err = r.nextNonWhitespace(); err != nil {
				return Invalid, r.eofError(err)
			}
		}
		if c != '"' {
			return Invalid, r.syntaxError(fmt.Sprintf("expected name but found %q", c), nil)
		}
		r.unreadByte()
		return Name, nil
	case scopeDanglingName:
		*top = scopeNonEmptyObject
		c, err := r.nextNonWhitespace()
		if err != nil {
			return Invalid, r.eofError(err)
		}
		if c != ':' {
			return Invalid, r.syntaxError(fmt.Sprintf("expected ':' but found %q", c), nil)
		}
	case scopeEmptyDocument, scopeNonEmptyDocument:
		_, err := r.nextNonWhitespace()
		if err == io.EOF {
			return EOF, nil
		}
		if err != nil {
			return Invalid, r.setError(err)
		}
		r.unreadByte()
		*top = scopeNonEmptyDocument
	}

	c, err := r.nextNonWhitespace()
	if err != nil {
		return Invalid, r.eofError(err)
	}
	r.unreadByte()
	switch {
	case c == '{':
		return BeginObject, nil
	case c == '[':
		return BeginArray, nil
	case c == '"':
		return String, nil
	case c == 't' || c == 'f':
		return Bool, nil
	case c == 'n':
		return Null, nil
	case c == '-' || ('0' <= c && c <= '9'):
		return NumberToken, nil
	}
	return Invalid, r.syntaxError(fmt.Sprintf("unexpected character %q", c), nil)
}

// expect consumes the peeked token kind if it matches want.
func (r *Reader) expect(want Kind) error {
	k, err := r.Peek()
	if err != nil {
		return err
	}
	if k != want {
		return r.syntaxError(fmt.Sprintf("expected %v but was %v", want, k), nil)
	}
	r.peeked = Invalid
	return nil
}

func (r *Reader) push(s scope) error {
	if len(r.stack) > r.maxDepth {
		return r.syntaxError(fmt.Sprintf("nesting deeper than %d", r.maxDepth), ErrMaxDepth)
	}
	r.stack = append(r.stack, s)
	return nil
}

func (r *Reader) pop() {
	r.stack = r.stack[:len(r.stack)-1]
}

// BeginObject consumes '{'.
func (r *Reader) BeginObject() error {
	if err := r.expect(BeginObject); err != nil {
		return err
	}
	r.readByte()
	return r.push(scopeEmptyObject)
}

// EndObject consumes '}'.
func (r *Reader) EndObject() error {
	if err := r.expect(EndObject); err != nil {
		return err
	}
	r.readByte()
	r.pop()
	return nil
}

// BeginArray consumes '['.
func (r *Reader) BeginArray() error {
	if err := r.expect(BeginArray); err != nil {
		return err
	}
	r.readByte()
	return r.push(scopeEmptyArray)
}

// EndArray consumes ']'.
func (r *Reader) EndArray() error {
	if err := r.expect(EndArray); err != nil {
		return err
	}
	r.readByte()
	r.pop()
	return nil
}

// HasNext reports whether the current object or array has another element.
func (r *Reader) HasNext() bool {
	k, err := r.Peek()
	return err == nil && k != EndObject && k != EndArray && k != EOF
}

// NextName consumes a member name.
func (r *Reader) NextName() (string, error) {
	if err := r.expect(Name); err != nil {
		return "", err
	}
	s, err := r.readString()
	if err != nil {
		return "", err
	}
	r.stack[len(r.stack)-1] = scopeDanglingName
	return s, nil
}

// NextString consumes a string value.
func (r *Reader) NextString() (string, error) {
	if err := r.expect(String); err != nil {
		return "", err
	}
	return r.readString()
}

// NextNumber consumes a number value and returns its literal text.
func (r *Reader) NextNumber() (string, error) {
	if err := r.expect(NumberToken); err != nil {
		return "", err
	}
	buf := getBuffer()
	defer putBuffer(buf)

	for {
		c, err := r.readByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", r.setError(err)
		}
		if !isNumberByte(c) {
			r.unreadByte()
			break
		}
		buf.WriteByte(c)
	}
	lit := buf.String()
	if !validNumber(lit) {
		return "", r.syntaxError(fmt.Sprintf("invalid number literal %q", lit), nil)
	}
	return lit, nil
}

// NextBool consumes true or false.
func (r *Reader) NextBool() (bool, error) {
	if err := r.expect(Bool); err != nil {
		return false, err
	}
	c, _ := r.r.Peek(1)
	if len(c) == 1 && c[0] == 't' {
		return true, r.readLiteral("true")
	}
	return false, r.readLiteral("false")
}

// NextNull consumes null.
func (r *Reader) NextNull() error {
	if err := r.expect(Null); err != nil {
		return err
	}
	return r.readLiteral("null")
}

// SkipValue consumes the next value including all nested tokens.
// On a member name it skips the name together with its value.
func (r *Reader) SkipValue() error {
	k, err := r.Peek()
	if err != nil {
		return err
	}
	switch k {
	case BeginObject:
		if err := r.BeginObject(); err != nil {
			return err
		}
		for r.HasNext() {
			if _, err := r.NextName(); err != nil {
				return err
			}
			if err := r.SkipValue(); err != nil {
				return err
			}
		}
		return r.EndObject()
	case BeginArray:
		if err := r.BeginArray(); err != nil {
			return err
		}
		for r.HasNext() {
			if err := r.SkipValue(); err != nil {
				return err
			}
		}
		return r.EndArray()
	case Name:
		if _, err := r.NextName(); err != nil {
			return err
		}
		return r.SkipValue()
	case String:
		_, err = r.NextString()
	case NumberToken:
		_, err = r.NextNumber()
	case Bool:
		_, err = r.NextBool()
	case Null:
		err = r.NextNull()
	default:
		err = r.syntaxError("cannot skip "+k.String(), nil)
	}
	return err
}

func (r *Reader) readLiteral(lit string) error {
	for i := 0; i < len(lit); i++ {
		c, err := r.readByte()
		if err != nil {
			return r.eofError(err)
		}
		if c != lit[i] {
			return r.syntaxError(fmt.Sprintf("invalid literal, expected %q", lit), nil)
		}
	}
	return nil
}

func (r *Reader) readString() (string, error) {
	if _, err := r.readByte(); err != nil { // opening quote
		return "", r.eofError(err)
	}
	buf := getBuffer()
	defer putBuffer(buf)

	for {
		c, err := r.readByte()
		if err != nil {
			return "", r.eofError(err)
		}
		switch {
		case c == '"':
			if !utf8.Valid(buf.Bytes()) {
				return "", r.syntaxError("invalid UTF-8 in string", nil)
			}
			return buf.String(), nil
		case c == '\\':
			if err := r.readEscape(buf); err != nil {
				return "", err
			}
		case c < 0x20:
			return "", r.syntaxError(fmt.Sprintf("control character %#x in string", c), nil)
		default:
			buf.WriteByte(c)
		}
	}
}

func (r *Reader) readEscape(buf *bytes.Buffer) error {
	c, err := r.readByte()
	if err != nil {
		return r.eofError(err)
	}
	switch c {
	case '"', '\\', '/':
		buf.WriteByte(c)
	case 'b':
		buf.WriteByte('\b')
	case 'f':
		buf.WriteByte('\f')
	case 'n':
		buf.WriteByte('\n')
	case 'r':
		buf.WriteByte('\r')
	case 't':
		buf.WriteByte('\t')
	case 'u':
		r1, err := r.readHex4()
		if err != nil {
			return err
		}
		if !utf16.IsSurrogate(r1) {
			buf.WriteRune(r1)
			return nil
		}
		// A high surrogate must be followed by an escaped low surrogate.
		if next, _ := r.r.Peek(2); len(next) == 2 && next[0] == '\\' && next[1] == 'u' {
			r.readByte()
			r.readByte()
			r2, err := r.readHex4()
			if err != nil {
				return err
			}
			if dec := utf16.DecodeRune(r1, r2); dec != unicode.ReplacementChar {
				buf.WriteRune(dec)
				return nil
			}
			buf.WriteRune(utf8.RuneError)
			if utf16.IsSurrogate(r2) {
				r2 = utf8.RuneError
			}
			buf.WriteRune(r2)
			return nil
		}
		buf.WriteRune(utf8.RuneError)
	default:
		return r.syntaxError(fmt.Sprintf("invalid escape '\\%c'", c), nil)
	}
	return nil
}

func (r *Reader) readHex4() (rune, error) {
	var hex [4]byte
	for i := range hex {
		c, err := r.readByte()
		if err != nil {
			return 0, r.eofError(err)
		}
		hex[i] = c
	}
	v, err := strconv.ParseUint(string(hex[:]), 16, 16)
	if err != nil {
		return 0, r.syntaxError(fmt.Sprintf("invalid unicode escape %q", hex[:]), nil)
	}
	return rune(v), nil
}

func isNumberByte(c byte) bool {
	return ('0' <= c && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

// validNumber reports whether s is a JSON number literal.
func validNumber(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
		if s == "" {
			return false
		}
	}

	switch {
	case s[0] == '0':
		s = s[1:]
	case '1' <= s[0] && s[0] <= '9':
		s = s[1:]
		for len(s) > 0 && isDigit(s[0]) {
			s = s[1:]
		}
	default:
		return false
	}

	if len(s) >= 2 && s[0] == '.' && isDigit(s[1]) {
		s = s[2:]
		for len(s) > 0 && isDigit(s[0]) {
			s = s[1:]
		}
	}

	if len(s) >= 2 && (s[0] == 'e' || s[0] == 'E') {
		s = s[1:]
		if s[0] == '+' || s[0] == '-' {
			s = s[1:]
			if s == "" {
				return false
			}
		}
		if !isDigit(s[0]) {
			return false
		}
		for len(s) > 0 && isDigit(s[0]) {
			s = s[1:]
		}
	}

	return s == ""
}
