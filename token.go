package jsonmap

// Kind identifies the next token of a JSON stream.
type Kind uint8

const (
	Invalid Kind = iota
	BeginObject
	EndObject
	BeginArray
	EndArray
	Name
	String
	NumberToken
	Bool
	Null
	EOF
)

var kindNames = [...]string{
	Invalid:     "invalid",
	BeginObject: "begin object",
	EndObject:   "end object",
	BeginArray:  "begin array",
	EndArray:    "end array",
	Name:        "name",
	String:      "string",
	NumberToken: "number",
	Bool:        "bool",
	Null:        "null",
	EOF:         "end of document",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// scope tracks where the stream currently is inside the document.
type scope uint8

const (
	scopeEmptyDocument scope = iota
	scopeNonEmptyDocument
	scopeEmptyObject
	scopeDanglingName
	scopeNonEmptyObject
	scopeEmptyArray
	scopeNonEmptyArray
)

// Copy reads exactly one value from r and writes it to w token by token.
func Copy(w *Writer, r *Reader) error {
	k, err := r.Peek()
	if err != nil {
		return err
	}
	switch k {
	case BeginObject:
		if err := r.BeginObject(); err != nil {
			return err
		}
		w.BeginObject()
		for r.HasNext() {
			name, err := r.NextName()
			if err != nil {
				return err
			}
			w.Name(name)
			if err := Copy(w, r); err != nil {
				return err
			}
		}
		if err := r.EndObject(); err != nil {
			return err
		}
		w.EndObject()
	case BeginArray:
		if err := r.BeginArray(); err != nil {
			return err
		}
		w.BeginArray()
		for r.HasNext() {
			if err := Copy(w, r); err != nil {
				return err
			}
		}
		if err := r.EndArray(); err != nil {
			return err
		}
		w.EndArray()
	case String:
		s, err := r.NextString()
		if err != nil {
			return err
		}
		w.String(s)
	case NumberToken:
		n, err := r.NextNumber()
		if err != nil {
			return err
		}
		w.Number(n)
	case Bool:
		b, err := r.NextBool()
		if err != nil {
			return err
		}
		w.Bool(b)
	case Null:
		if err := r.NextNull(); err != nil {
			return err
		}
		w.Null()
	default:
		return r.syntaxError("unexpected "+k.String(), nil)
	}
	return w.Err()
}
