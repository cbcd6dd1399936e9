package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/actorvm/pkg/bytecode"
	"github.com/kristofer/actorvm/pkg/value"
)

func roundTrip(t *testing.T, inst bytecode.Instruction) bytecode.Instruction {
	t.Helper()
	buf := bytecode.Encode(nil, inst)
	decoded, next, err := bytecode.Decode(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(buf), next)
	return decoded
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []bytecode.Instruction{
		{Op: bytecode.OpPush, Value: value.U8Value(7)},
		{Op: bytecode.OpPush, Value: value.None},
		{Op: bytecode.OpAdd},
		{Op: bytecode.OpSub},
		{Op: bytecode.OpMul},
		{Op: bytecode.OpDiv},
		{Op: bytecode.OpLload, Name: "x"},
		{Op: bytecode.OpLstore, Name: "counter"},
		{Op: bytecode.OpEload, Name: "n"},
		{Op: bytecode.OpEstore, Name: "n"},
		{Op: bytecode.OpMessage, Message: bytecode.MessageOperand{VatID: 1, EntityID: 2, FuncID: 3, ArgCount: 2}},
		{Op: bytecode.OpAwait},
		{Op: bytecode.OpRet},
		{Op: bytecode.OpForeignCall, FuncID: 9},
		{Op: bytecode.OpNop},
	}

	for _, c := range cases {
		t.Run(c.Op.String(), func(t *testing.T) {
			got := roundTrip(t, c)
			assert.Equal(t, c.Op, got.Op)
			switch c.Op {
			case bytecode.OpPush:
				assert.Equal(t, c.Value, got.Value)
			case bytecode.OpLload, bytecode.OpLstore, bytecode.OpEload, bytecode.OpEstore:
				assert.Equal(t, c.Name, got.Name)
			case bytecode.OpMessage:
				assert.Equal(t, c.Message, got.Message)
			case bytecode.OpForeignCall:
				assert.Equal(t, c.FuncID, got.FuncID)
			}
		})
	}
}

func TestDecodeTruncatedInstructionErrors(t *testing.T) {
	buf := bytecode.Encode(nil, bytecode.Instruction{Op: bytecode.OpMessage, Message: bytecode.MessageOperand{ArgCount: 1}})
	_, _, err := bytecode.Decode(buf[:len(buf)-1], 0)
	assert.Error(t, err)
}

func TestDecodeInvalidOpcodeErrors(t *testing.T) {
	_, _, err := bytecode.Decode([]byte{0xFF}, 0)
	assert.Error(t, err)
}

func TestOpcodeStringIsStable(t *testing.T) {
	assert.Equal(t, "PUSH", bytecode.OpPush.String())
	assert.Equal(t, "FOREIGN_CALL", bytecode.OpForeignCall.String())
	assert.Contains(t, bytecode.Opcode(0xFE).String(), "UNKNOWN")
}
