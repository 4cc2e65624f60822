package jsonmap

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// --- Mocks and Helpers ---

// mockFlushingWriter helps verify that a writer's Flush method is called.
type mockFlushingWriter struct {
	bytes.Buffer
	flushed bool
}

func (m *mockFlushingWriter) Flush() error {
	m.flushed = true
	return nil
}

// uesc builds a JSON \u escape for hex.
func uesc(hex string) string { return `\` + "u" + hex }

// --- Writer Test Suite ---

type WriterTestSuite struct {
	suite.Suite
	buf    *bytes.Buffer
	writer *Writer
}

// SetupTest runs before each test in the suite, ensuring a clean state.
func (s *WriterTestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
	s.writer, _ = NewWriter(s.buf)
}

func (s *WriterTestSuite) TestConstructors() {
	s.T().Run("ErrorOnNilWriter", func(t *testing.T) {
		_, err := NewWriter(nil)
		assert.ErrorIs(t, err, ErrNilIO)
	})
}

func (s *WriterTestSuite) TestBasicWrites() {
	w := s.writer
	w.BeginObject()
	w.Name("a")
	w.Number("1")
	w.Name("b")
	w.BeginArray()
	w.String("x")
	w.Bool(true)
	w.Bool(false)
	w.Null()
	w.EndArray()
	w.Name("c")
	w.BeginObject()
	w.EndObject()
	w.EndObject()

	n, err := w.Result()
	s.Require().NoError(err)
	s.Assert().Equal(`{"a":1,"b":["x",true,false,null],"c":{}}`, s.buf.String())
	s.Assert().EqualValues(s.buf.Len(), n)
}

func (s *WriterTestSuite) TestTopLevelValuesAreNewlineSeparated() {
	s.writer.String("a")
	s.writer.Number("2")
	s.writer.BeginArray()
	s.writer.EndArray()
	_, err := s.writer.Result()
	s.Require().NoError(err)
	s.Assert().Equal("\"a\"\n2\n[]", s.buf.String())
}

func (s *WriterTestSuite) TestEscaping() {
	s.writer.String("q\"\\\n\t\x01<")
	_, err := s.writer.Result()
	s.Require().NoError(err)
	s.Assert().Equal(`"q\"\\\n\t`+uesc("0001")+`<"`, s.buf.String())
}

func (s *WriterTestSuite) TestErrorHandling() {
	s.T().Run("NameOutsideObject", func(t *testing.T) {
		w, _ := NewWriter(&bytes.Buffer{})
		w.Name("a")
		assert.ErrorIs(t, w.Err(), ErrWriterState)
	})

	s.T().Run("ValueWithoutName", func(t *testing.T) {
		w, _ := NewWriter(&bytes.Buffer{})
		w.BeginObject()
		w.String("orphan")
		assert.ErrorIs(t, w.Err(), ErrWriterState)
	})

	s.T().Run("InvalidNumber", func(t *testing.T) {
		w, _ := NewWriter(&bytes.Buffer{})
		w.Number("NaN")
		assert.ErrorIs(t, w.Err(), ErrUnsupportedValue)
	})

	s.T().Run("StickyError", func(t *testing.T) {
		buf := &bytes.Buffer{}
		w, _ := NewWriter(buf)
		w.EndArray()
		first := w.Err()
		require.Error(t, first)
		w.String("ignored")
		w.Number("1")
		assert.Same(t, first, w.Err())
		assert.Zero(t, w.Count())
		assert.Zero(t, buf.Len())
	})
}

func (s *WriterTestSuite) TestRawValue() {
	s.T().Run("Valid", func(t *testing.T) {
		buf := &bytes.Buffer{}
		w, _ := NewWriter(buf)
		w.BeginArray()
		w.RawValue([]byte(` {"x": [1, 2]} `))
		w.Number("3")
		w.EndArray()
		_, err := w.Result()
		require.NoError(t, err)
		assert.Equal(t, `[{"x": [1, 2]},3]`, buf.String())
	})

	s.T().Run("Malformed", func(t *testing.T) {
		w, _ := NewWriter(&bytes.Buffer{})
		w.RawValue([]byte(`{"x":`))
		assert.ErrorIs(t, w.Err(), ErrMalformedStream)
	})

	s.T().Run("TrailingData", func(t *testing.T) {
		w, _ := NewWriter(&bytes.Buffer{})
		w.RawValue([]byte(`1 2`))
		assert.ErrorIs(t, w.Err(), ErrMalformedStream)
	})
}

func (s *WriterTestSuite) TestFlush() {
	m := &mockFlushingWriter{}
	w, err := NewWriter(m)
	s.Require().NoError(err)
	w.Bool(true)
	_, err = w.Result()
	s.Require().NoError(err)
	s.Assert().True(m.flushed)
	s.Assert().Equal("true", m.String())
}

func TestWriter(t *testing.T) {
	suite.Run(t, new(WriterTestSuite))
}

// --- Reader Test Suite ---

type ReaderTestSuite struct {
	suite.Suite
}

func newTestReader(s string) *Reader {
	r, _ := NewReader(strings.NewReader(s))
	return r
}

func (s *ReaderTestSuite) TestConstructors() {
	s.T().Run("ErrorOnNilReader", func(t *testing.T) {
		_, err := NewReader(nil)
		assert.ErrorIs(t, err, ErrNilIO)
	})
}

func (s *ReaderTestSuite) TestSuccessfulReads() {
	r := newTestReader(` {"a": 1, "b": [true, null, "s"], "c": -1.5e3, "d": {}} `)
	req := s.Require()

	req.NoError(r.BeginObject())
	req.True(r.HasNext())
	name, err := r.NextName()
	req.NoError(err)
	req.Equal("a", name)
	k, err := r.Peek()
	req.NoError(err)
	req.Equal(NumberToken, k)
	num, err := r.NextNumber()
	req.NoError(err)
	req.Equal("1", num)

	name, _ = r.NextName()
	req.Equal("b", name)
	req.NoError(r.BeginArray())
	b, err := r.NextBool()
	req.NoError(err)
	req.True(b)
	req.NoError(r.NextNull())
	str, err := r.NextString()
	req.NoError(err)
	req.Equal("s", str)
	req.False(r.HasNext())
	req.NoError(r.EndArray())

	name, _ = r.NextName()
	req.Equal("c", name)
	num, _ = r.NextNumber()
	req.Equal("-1.5e3", num)

	name, _ = r.NextName()
	req.Equal("d", name)
	req.Equal(1, r.Depth())
	req.NoError(r.BeginObject())
	req.Equal(2, r.Depth())
	req.False(r.HasNext())
	req.NoError(r.EndObject())

	req.NoError(r.EndObject())
	k, err = r.Peek()
	req.NoError(err)
	req.Equal(EOF, k)
}

func (s *ReaderTestSuite) TestStringEscapes() {
	in := `"a\nb\"\\\/` + uesc("00e9") + uesc("d83d") + uesc("de00") + `"`
	got, err := newTestReader(in).NextString()
	s.Require().NoError(err)
	s.Assert().Equal("a\nb\"\\/\xc3\xa9\xf0\x9f\x98\x80", got)

	raw, err := newTestReader("\"\xc3\xa9\xf0\x9f\x98\x80\"").NextString()
	s.Require().NoError(err)
	s.Assert().Equal("\xc3\xa9\xf0\x9f\x98\x80", raw)
}

func (s *ReaderTestSuite) TestSkipValue() {
	r := newTestReader(`{"skip": {"x": [1, {"y": null}]}, "keep": "k", "also": 2}`)
	s.Require().NoError(r.BeginObject())
	name, _ := r.NextName()
	s.Require().Equal("skip", name)
	s.Require().NoError(r.SkipValue())

	name, _ = r.NextName()
	s.Require().Equal("keep", name)
	v, err := r.NextString()
	s.Require().NoError(err)
	s.Assert().Equal("k", v)

	// on a name, the member is skipped as a whole
	s.Require().NoError(r.SkipValue())
	s.Assert().False(r.HasNext())
	s.Require().NoError(r.EndObject())
}

func (s *ReaderTestSuite) TestErrorHandling() {
	cases := map[string]string{
		"MissingColon":  `{"a" 1}`,
		"TrailingComma": `[1,]`,
		"BareWord":      `{"a": nope}`,
		"BadNumber":     `01`,
		"UnquotedName":  `{a: 1}`,
		"InvalidUTF8":   "\"a\xffb\"",
		"InvalidName":   "{\"\xc3\":1}",
	}
	for name, in := range cases {
		s.T().Run(name, func(t *testing.T) {
			r := newTestReader(in)
			err := r.SkipValue()
			assert.ErrorIs(t, err, ErrMalformedStream)

			var syntax *SyntaxError
			assert.ErrorAs(t, err, &syntax)
		})
	}

	s.T().Run("UnexpectedEOF", func(t *testing.T) {
		r := newTestReader(`{"a": [1`)
		err := r.SkipValue()
		assert.ErrorIs(t, err, ErrMalformedStream)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	s.T().Run("StickyError", func(t *testing.T) {
		r := newTestReader(`[}`)
		require.NoError(t, r.BeginArray())
		_, first := r.Peek()
		require.Error(t, first)
		_, err := r.Peek()
		assert.Same(t, first, err)
		assert.Same(t, first, r.Err())
	})

	s.T().Run("WrongKind", func(t *testing.T) {
		r := newTestReader(`"text"`)
		_, err := r.NextNumber()
		assert.ErrorIs(t, err, ErrMalformedStream)
	})
}

func (s *ReaderTestSuite) TestMaxDepth() {
	r := newTestReader(`[[[1]]]`).WithMaxDepth(2)
	err := r.SkipValue()
	s.Assert().ErrorIs(err, ErrMaxDepth)
	s.Assert().ErrorIs(err, ErrMalformedStream)

	r = newTestReader(`[[1]]`).WithMaxDepth(2)
	s.Assert().NoError(r.SkipValue())
}

func (s *ReaderTestSuite) TestCopy() {
	in := `{"z": [1, 2.5e-3, "x"], "a": {"t": true, "n": null}}` + "\n" + ` "next" `
	r := newTestReader(in)
	buf := &bytes.Buffer{}
	w, _ := NewWriter(buf)

	for {
		k, err := r.Peek()
		s.Require().NoError(err)
		if k == EOF {
			break
		}
		s.Require().NoError(Copy(w, r))
	}
	_, err := w.Result()
	s.Require().NoError(err)
	s.Assert().Equal(`{"z":[1,2.5e-3,"x"],"a":{"t":true,"n":null}}`+"\n"+`"next"`, buf.String())
	s.Assert().EqualValues(len(in), r.Count())
}

func TestReader(t *testing.T) {
	suite.Run(t, new(ReaderTestSuite))
}

func TestKindNames(t *testing.T) {
	assert.Equal(t, "number", NumberToken.String())
	assert.Equal(t, "end of document", EOF.String())
	assert.Equal(t, "unknown", Kind(200).String())

	// a number token read into any with UseNumber keeps its literal
	r := newTestReader(`1.50`)
	k, err := r.Peek()
	require.NoError(t, err)
	require.Equal(t, NumberToken, k)
	v, err := readAny(r, true)
	require.NoError(t, err)
	assert.Equal(t, Number("1.50"), v)
}
