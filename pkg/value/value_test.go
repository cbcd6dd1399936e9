package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kristofer/actorvm/pkg/value"
)

func TestNoneIsNone(t *testing.T) {
	assert.True(t, value.None.IsNone())
	assert.Equal(t, "None", value.None.String())
}

func TestU8Value(t *testing.T) {
	v := value.U8Value(42)
	assert.False(t, v.IsNone())
	assert.Equal(t, value.KindU8, v.Kind)
	assert.Equal(t, uint8(42), v.U8)
	assert.Equal(t, "U8(42)", v.String())
}

func TestPromiseValue(t *testing.T) {
	v := value.PromiseValue(7)
	assert.Equal(t, value.KindPromise, v.Kind)
	assert.Equal(t, uint32(7), v.Promise)
	assert.Equal(t, "Promise(7)", v.String())
}
