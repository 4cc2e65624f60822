package jsonmap

import (
	"reflect"

	"github.com/google/uuid"
)

// --- Shared fixtures ---

type Address struct {
	Street string
	City   string `jsonmap:"name=city"`
	Zip    string `json:"zip,omitempty"`
}

type Person struct {
	Name    string
	Age     int `jsonmap:"name=age"`
	Address Address
	Tags    []string
	Secret  string `jsonmap:"transient"`
	Ignored string `json:"-"`
	private int
}

type Base struct {
	ID   int
	Kind string
}

type Derived struct {
	Base
	Kind  string
	Extra bool
}

type Envelope struct {
	_     struct{} `jsonmap:"wrap=data"`
	Value int
	Label string
}

type Inner struct {
	N int
	S string
}

// Holder reaches Inner's fields through a pointer that may be nil.
type Holder struct {
	*Inner
	M int
}

type Node struct {
	Value    int
	Next     *Node
	Children []Node
}

type Account struct {
	ID       uuid.UUID
	Owner    string
	Role     string `jsonmap:"role=admin,checkExclusion"`
	Password string `jsonmap:"skipSerialize"`
	Token    string `jsonmap:"skipDeserialize"`
}

type Profile struct {
	Nickname string
	Bio      string
}

type Settings struct {
	Theme   string
	Volume  int
	Profile Profile
	Backup  *Profile
}

type Celsius float64

type Reading struct {
	Sensor string
	Temp   Celsius `jsonmap:"adapter=fahrenheit"`
}

type fahrenheitAdapter struct{}

func (fahrenheitAdapter) Write(w *Writer, v reflect.Value) error {
	WriteFloat(w, v.Float()*9/5+32)
	return w.Err()
}

func (fahrenheitAdapter) Read(r *Reader) (reflect.Value, error) {
	f, err := ReadFloat[float64](r)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(Celsius((f - 32) * 5 / 9)), nil
}

func typeOf[T any]() reflect.Type { return reflect.TypeFor[T]() }
