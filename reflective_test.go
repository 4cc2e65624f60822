package jsonmap

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

type Layer struct {
	Settings Profile
}

// Layered reaches Settings through an embedded pointer that starts out nil.
type Layered struct {
	*Layer
	Top int
}

type ReflectiveTestSuite struct {
	suite.Suite
}

func (s *ReflectiveTestSuite) registry(opts ...Option) *Registry {
	reg, err := NewRegistry(append([]Option{WithLogger(zaptest.NewLogger(s.T()))}, opts...)...)
	s.Require().NoError(err)
	return reg
}

func (s *ReflectiveTestSuite) TestRoundTrip() {
	reg := s.registry()
	in := Settings{
		Theme:   "dark",
		Volume:  7,
		Profile: Profile{Nickname: "neo", Bio: "the one"},
		Backup:  &Profile{Nickname: "backup"},
	}
	data, err := reg.Marshal(in)
	s.Require().NoError(err)
	s.Assert().JSONEq(`{"Theme":"dark","Volume":7,"Profile":{"Nickname":"neo","Bio":"the one"},"Backup":{"Nickname":"backup","Bio":""}}`, string(data))

	var out Settings
	s.Require().NoError(reg.Unmarshal(data, &out))
	s.Assert().Equal(in, out, spew.Sdump(out))
}

func (s *ReflectiveTestSuite) TestDeclarationOrder() {
	reg := s.registry()
	var p Person
	s.Require().NoError(reg.Unmarshal([]byte(`{"Tags":["b"],"age":41,"Address":{"zip":"Z","Street":"S"},"Name":"x"}`), &p))

	data, err := reg.Marshal(p)
	s.Require().NoError(err)
	s.Assert().Equal(`{"Name":"x","age":41,"Address":{"Street":"S","city":"","zip":"Z"},"Tags":["b"],"Secret":null}`, string(data))
}

func (s *ReflectiveTestSuite) TestNamingOverride() {
	reg := s.registry()

	var p Person
	s.Require().NoError(reg.Unmarshal([]byte(`{"Age":5}`), &p))
	s.Assert().Zero(p.Age, "raw name is not a key")

	s.Require().NoError(reg.Unmarshal([]byte(`{"age":5}`), &p))
	s.Assert().Equal(5, p.Age)

	data, err := reg.Marshal(Person{Age: 9})
	s.Require().NoError(err)
	s.Assert().Contains(string(data), `"age":9`)
	s.Assert().NotContains(string(data), `"Age"`)
}

func (s *ReflectiveTestSuite) TestUnknownFieldsSkipped() {
	reg := s.registry()
	var p Person
	err := reg.Unmarshal([]byte(`{"Name":"a","bogus":{"deep":[1,2,{"x":null}]},"age":3,"more":"x"}`), &p)
	s.Require().NoError(err)
	s.Assert().Equal("a", p.Name)
	s.Assert().Equal(3, p.Age)
}

func (s *ReflectiveTestSuite) TestStaticSkips() {
	reg := s.registry()
	acct := Account{
		ID:       uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Owner:    "o",
		Role:     "r",
		Password: "p",
		Token:    "t",
	}
	data, err := reg.Marshal(acct)
	s.Require().NoError(err)
	s.Assert().Equal(`{"ID":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","Owner":"o","Role":"r","Password":null,"Token":"t"}`, string(data))

	var out Account
	s.Require().NoError(reg.Unmarshal([]byte(`{"Password":"p2","Token":"t2","Secret":"x"}`), &out))
	s.Assert().Equal("p2", out.Password)
	s.Assert().Empty(out.Token, "skipDeserialize field is ignored on read")

	var p Person
	s.Require().NoError(reg.Unmarshal([]byte(`{"Secret":"leak"}`), &p))
	s.Assert().Empty(p.Secret)
}

func (s *ReflectiveTestSuite) TestWrapper() {
	reg := s.registry()

	data, err := reg.Marshal(Envelope{Value: 1, Label: "l"})
	s.Require().NoError(err)
	s.Assert().Equal(`{"data":{"Value":1,"Label":"l"}}`, string(data))

	var e Envelope
	s.Require().NoError(reg.Unmarshal(data, &e))
	s.Assert().Equal(1, e.Value)
	s.Assert().Equal("l", e.Label)

	s.T().Run("OuterMembersAroundWrapper", func(t *testing.T) {
		var e Envelope
		require.NoError(t, reg.Unmarshal([]byte(`{"meta":{"v":1},"data":{"Value":2},"trail":true}`), &e))
		assert.Equal(t, 2, e.Value)
	})

	s.T().Run("MissingWrapper", func(t *testing.T) {
		var e Envelope
		err := reg.Unmarshal([]byte(`{"Value":1}`), &e)
		assert.ErrorIs(t, err, ErrMalformedStream)
	})

	s.T().Run("WrapperNotObject", func(t *testing.T) {
		var e Envelope
		err := reg.Unmarshal([]byte(`{"data":[1]}`), &e)
		assert.ErrorIs(t, err, ErrMalformedStream)
	})
}

func (s *ReflectiveTestSuite) TestClassExclusion() {
	strategy := &classNamed{name: "jsonmap.Address"}
	reg := s.registry(WithSerializationExclusion(strategy))

	data, err := reg.Marshal(Address{Street: "s", City: "c"})
	s.Require().NoError(err)
	s.Assert().Equal("null", string(data))

	data, err = reg.Marshal(Person{Name: "n", Address: Address{Street: "s"}})
	s.Require().NoError(err)
	s.Assert().Equal(`{"Name":"n","age":0,"Address":null,"Tags":null,"Secret":null}`, string(data))

	// only serialization was registered
	var p Person
	s.Require().NoError(reg.Unmarshal([]byte(`{"Address":{"Street":"in"}}`), &p))
	s.Assert().Equal("in", p.Address.Street)

	s.Assert().Contains(strategy.loaded, "jsonmap.Address")
	s.Assert().Len(strategy.loaded, 2, "visitor runs once per type: %v", strategy.loaded)
}

func (s *ReflectiveTestSuite) TestClassExclusionOnRead() {
	address := ClassExclusionFunc(func(cm *ClassMetadata, _ *ExclusionData) bool {
		return cm.Type() == typeOf[Address]()
	})
	reg := s.registry(WithDeserializationExclusion(address))
	payload := []byte(`{"Name":"n","Address":{"Street":"s","City":{"deep":[1,2]}},"Tags":["t"],"age":7}`)

	s.T().Run("Unmarshal", func(t *testing.T) {
		var p Person
		require.NoError(t, reg.Unmarshal(payload, &p))
		assert.Zero(t, p.Address)
		assert.Equal(t, "n", p.Name)
		assert.Equal(t, []string{"t"}, p.Tags, "members after the excluded value are read")
		assert.Equal(t, 7, p.Age)
	})

	s.T().Run("Update", func(t *testing.T) {
		p := Person{Name: "old", Address: Address{Street: "old", City: "c"}}
		require.NoError(t, reg.Update(payload, &p))
		assert.Zero(t, p.Address, "an excluded class reads as absent")
		assert.Equal(t, "n", p.Name)
		assert.Equal(t, []string{"t"}, p.Tags)
	})

	s.T().Run("TopLevel", func(t *testing.T) {
		a := Address{Street: "s"}
		require.NoError(t, reg.Update([]byte(`{"Street":"x"}`), &a))
		assert.Zero(t, a)
	})

	// writing is unaffected
	data, err := reg.Marshal(Person{Address: Address{City: "c"}})
	s.Require().NoError(err)
	s.Assert().Contains(string(data), `"city":"c"`)
}

func (s *ReflectiveTestSuite) TestPropertyExclusion() {
	reg := s.registry(WithExclusion(fieldNamed{typeOf[Address](), "Street"}))

	data, err := reg.Marshal(Person{Name: "n", Address: Address{Street: "s", City: "c", Zip: "z"}})
	s.Require().NoError(err)
	s.Assert().Equal(`{"Name":"n","age":0,"Address":{"Street":null,"city":"c","zip":"z"},"Tags":null,"Secret":null}`, string(data))

	var a Address
	s.Require().NoError(reg.Unmarshal([]byte(`{"Street":"s","city":"c"}`), &a))
	s.Assert().Empty(a.Street)
	s.Assert().Equal("c", a.City)
}

func (s *ReflectiveTestSuite) TestExclusionSeesFieldsReadSoFar() {
	locked := PropertyExclusionFunc(func(f *FieldDescriptor, data *ExclusionData) bool {
		if f.Name() != "Volume" || data.Reader == nil {
			return false
		}
		cur, ok := data.Interface().(Settings)
		return ok && cur.Theme == "locked"
	})
	reg := s.registry(WithDeserializationExclusion(locked))

	var st Settings
	s.Require().NoError(reg.Unmarshal([]byte(`{"Theme":"locked","Volume":9}`), &st))
	s.Assert().Zero(st.Volume)

	s.Require().NoError(reg.Unmarshal([]byte(`{"Theme":"open","Volume":9}`), &st))
	s.Assert().Equal(9, st.Volume)
}

func (s *ReflectiveTestSuite) TestRequireExclusionMarker() {
	always := PropertyExclusionFunc(func(*FieldDescriptor, *ExclusionData) bool { return true })
	reg := s.registry(WithSerializationExclusion(always), WithRequireExclusionMarker(true))

	data, err := reg.Marshal(Account{Owner: "o", Role: "r"})
	s.Require().NoError(err)
	s.Assert().Contains(string(data), `"Owner":"o"`)
	s.Assert().Contains(string(data), `"Role":null`)

	data, err = reg.Marshal(Profile{Nickname: "n"})
	s.Require().NoError(err)
	s.Assert().Equal(`{"Nickname":"n","Bio":""}`, string(data))
}

func (s *ReflectiveTestSuite) TestUpdateMergesNested() {
	reg := s.registry()
	payload := []byte(`{"Profile":{"Bio":"new"},"Backup":{"Nickname":"b2"}}`)

	seed := func() Settings {
		return Settings{
			Theme:   "dark",
			Volume:  5,
			Profile: Profile{Nickname: "neo", Bio: "old"},
			Backup:  &Profile{Nickname: "b", Bio: "bb"},
		}
	}

	s.T().Run("Update", func(t *testing.T) {
		st := seed()
		backup := st.Backup
		require.NoError(t, reg.Update(payload, &st))
		assert.Equal(t, "dark", st.Theme)
		assert.Equal(t, 5, st.Volume)
		assert.Equal(t, Profile{Nickname: "neo", Bio: "new"}, st.Profile)
		assert.Same(t, backup, st.Backup, "pointer updated in place")
		assert.Equal(t, Profile{Nickname: "b2", Bio: "bb"}, *st.Backup)
	})

	s.T().Run("AllocateNew", func(t *testing.T) {
		st := seed()
		require.NoError(t, reg.Unmarshal(payload, &st))
		assert.Empty(t, st.Theme)
		assert.Zero(t, st.Volume)
		assert.Equal(t, Profile{Bio: "new"}, st.Profile)
		assert.Equal(t, Profile{Nickname: "b2"}, *st.Backup)
	})

	s.T().Run("NullClearsPointer", func(t *testing.T) {
		st := seed()
		require.NoError(t, reg.Update([]byte(`{"Backup":null}`), &st))
		assert.Nil(t, st.Backup)
		assert.Equal(t, "neo", st.Profile.Nickname)
	})

	s.T().Run("NilPointerAllocated", func(t *testing.T) {
		st := seed()
		st.Backup = nil
		require.NoError(t, reg.Update(payload, &st))
		require.NotNil(t, st.Backup)
		assert.Equal(t, "b2", st.Backup.Nickname)
	})
}

// A nested value behind a nil embedded pointer cannot be read; it counts as absent.
func (s *ReflectiveTestSuite) TestAccessorIncompatibility() {
	reg := s.registry()

	var l Layered
	s.Require().NoError(reg.Update([]byte(`{"Settings":{"Bio":"x"},"Top":1}`), &l))
	s.Require().NotNil(l.Layer)
	s.Assert().Equal("x", l.Settings.Bio)
	s.Assert().Equal(1, l.Top)

	s.Require().NoError(reg.Update([]byte(`{"Settings":{"Nickname":"y"}}`), &l))
	s.Assert().Equal(Profile{Nickname: "y", Bio: "x"}, l.Settings, "populated now, so merged")

	data, err := reg.Marshal(Layered{Top: 2})
	s.Require().NoError(err)
	s.Assert().Equal(`{"Settings":null,"Top":2}`, string(data))
}

func (s *ReflectiveTestSuite) TestSelfReferential() {
	reg := s.registry()
	in := Node{Value: 1, Next: &Node{Value: 2}, Children: []Node{{Value: 3}}}

	data, err := reg.Marshal(in)
	s.Require().NoError(err)
	s.Assert().Equal(`{"Value":1,"Next":{"Value":2,"Next":null,"Children":null},"Children":[{"Value":3,"Next":null,"Children":null}]}`, string(data))

	var out Node
	s.Require().NoError(reg.Unmarshal(data, &out))
	s.Assert().Equal(in, out, spew.Sdump(out))
}

func (s *ReflectiveTestSuite) TestClassSkipFlags() {
	reg := s.registry(WithMetadataVisitor(MetadataVisitorFunc(func(cm *ClassMetadata) {
		switch cm.Name() {
		case "jsonmap.Profile":
			cm.SetSkipSerialize(true)
		case "jsonmap.Address":
			cm.SetSkipDeserialize(true)
		}
	})))

	data, err := reg.Marshal(Settings{Profile: Profile{Nickname: "n"}})
	s.Require().NoError(err)
	s.Assert().Equal(`{"Theme":"","Volume":0,"Profile":null,"Backup":null}`, string(data))

	var p Person
	s.Require().NoError(reg.Unmarshal([]byte(`{"Address":{"Street":"s"},"Name":"n"}`), &p))
	s.Assert().Equal(Address{}, p.Address)
	s.Assert().Equal("n", p.Name)
}

func (s *ReflectiveTestSuite) TestAdapterOverride() {
	reg := s.registry(WithNamedAdapter("fahrenheit", FactoryOf(fahrenheitAdapter{})))

	data, err := reg.Marshal(Reading{Sensor: "a", Temp: 100})
	s.Require().NoError(err)
	s.Assert().Equal(`{"Sensor":"a","Temp":212}`, string(data))

	var r Reading
	s.Require().NoError(reg.Unmarshal(data, &r))
	s.Assert().InDelta(100, float64(r.Temp), 1e-9)

	s.T().Run("MissingOverride", func(t *testing.T) {
		_, err := s.registry().Marshal(Reading{})
		require.ErrorIs(t, err, ErrNoAdapter)
		var re *ResolutionError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "fahrenheit", re.Override)
	})
}

func (s *ReflectiveTestSuite) TestMalformedInput() {
	reg := s.registry()
	var st Settings
	for _, in := range []string{`{"Theme":"x"`, `{"Theme":}`, `["Theme"]`, `{"Volume":"loud"}`} {
		err := reg.Unmarshal([]byte(in), &st)
		s.Assert().ErrorIs(err, ErrMalformedStream, in)
	}
}

func TestReflective(t *testing.T) {
	suite.Run(t, new(ReflectiveTestSuite))
}
