package jsonmap

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageLevelFunctions(t *testing.T) {
	data, err := Marshal(Profile{Nickname: "n", Bio: "b"})
	require.NoError(t, err)
	assert.Equal(t, `{"Nickname":"n","Bio":"b"}`, string(data))

	var p Profile
	require.NoError(t, Unmarshal(data, &p))
	assert.Equal(t, Profile{Nickname: "n", Bio: "b"}, p)

	require.NoError(t, Update([]byte(`{"Bio":"c"}`), &p))
	assert.Equal(t, Profile{Nickname: "n", Bio: "c"}, p)
}

func TestInvalidTargets(t *testing.T) {
	var p Profile
	assert.ErrorIs(t, Unmarshal([]byte(`{}`), p), ErrInvalidTarget)
	assert.ErrorIs(t, Unmarshal([]byte(`{}`), nil), ErrInvalidTarget)
	assert.ErrorIs(t, Update([]byte(`{}`), (*Profile)(nil)), ErrInvalidTarget)
}

func TestTrailingData(t *testing.T) {
	var p Profile
	err := Unmarshal([]byte(`{"Bio":"x"} {"Bio":"y"}`), &p)
	assert.ErrorIs(t, err, ErrMalformedStream)

	assert.NoError(t, Unmarshal([]byte(" {\"Bio\":\"x\"}\n\t "), &p))
}

func TestInvalidUTF8(t *testing.T) {
	var p Profile
	err := Unmarshal([]byte("{\"Bio\":\"\xff\"}"), &p)
	assert.ErrorIs(t, err, ErrMalformedStream, "rejected, not replaced")
	assert.Empty(t, p.Bio)
}

func TestTopLevelNull(t *testing.T) {
	p := Profile{Nickname: "n"}
	require.NoError(t, Update([]byte(`null`), &p))
	assert.Zero(t, p)

	ptr := &Profile{Bio: "b"}
	require.NoError(t, Unmarshal([]byte(`null`), &ptr))
	assert.Nil(t, ptr)
}

func TestUpdateThroughPointerTarget(t *testing.T) {
	inner := &Settings{Theme: "dark", Profile: Profile{Nickname: "neo"}}
	target := inner
	require.NoError(t, Update([]byte(`{"Volume":3,"Profile":{"Bio":"b"}}`), &target))
	assert.Same(t, inner, target)
	assert.Equal(t, "dark", inner.Theme)
	assert.Equal(t, 3, inner.Volume)
	assert.Equal(t, Profile{Nickname: "neo", Bio: "b"}, inner.Profile)
}

func TestEncodeDecode(t *testing.T) {
	reg := MustNewRegistry(WithBufferSize(16))

	var buf bytes.Buffer
	require.NoError(t, reg.Encode(&buf, Node{Value: 1, Next: &Node{Value: 2}}))

	var n Node
	require.NoError(t, reg.Decode(&buf, &n))
	require.NotNil(t, n.Next)
	assert.Equal(t, 2, n.Next.Value)
}

func TestReadValueStream(t *testing.T) {
	r, err := NewReader(strings.NewReader(`{"Bio":"a"} {"Bio":"b"} {"Bio":"c"}`))
	require.NoError(t, err)

	var bios []string
	for {
		k, err := r.Peek()
		require.NoError(t, err)
		if k == EOF {
			break
		}
		var p Profile
		require.NoError(t, Default.ReadValue(r, &p))
		bios = append(bios, p.Bio)
	}
	assert.Equal(t, []string{"a", "b", "c"}, bios)
}
