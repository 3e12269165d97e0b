package schema

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Value int
}

func TestReflect_AcceptsAssignablePayload(t *testing.T) {
	s := Reflect[payload]("payload")
	v, err := s.Validate(payload{Value: 9})
	require.NoError(t, err)
	assert.Equal(t, payload{Value: 9}, v)
}

func TestReflect_RejectsWrongType(t *testing.T) {
	s := Reflect[payload]("payload")
	_, err := s.Validate("not a payload")
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "payload", ve.Schema)
}

func TestReflect_NilPayloadValidOnlyForNilableKinds(t *testing.T) {
	sliceSchema := Reflect[[]int]("ints")
	v, err := sliceSchema.Validate(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	intSchema := Reflect[int]("int")
	_, err = intSchema.Validate(nil)
	assert.Error(t, err)
}

func TestErase_CapturesConcreteType(t *testing.T) {
	erased := Erase[payload](Reflect[payload]("payload"))
	assert.Equal(t, reflect.TypeOf(payload{}), erased.Type)

	out, err := erased.Validate(payload{Value: 3})
	require.NoError(t, err)
	assert.Equal(t, payload{Value: 3}, out)
}

func TestErase_DescribeFallsBackToTypeNameWhenUnset(t *testing.T) {
	e := Erased{Type: reflect.TypeOf(0)}
	assert.Equal(t, "int", e.Describe())
}
