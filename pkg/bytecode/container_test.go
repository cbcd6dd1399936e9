package bytecode_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/actorvm/pkg/bytecode"
	"github.com/kristofer/actorvm/pkg/value"
)

// buildSimpleBinary assembles a one-entity, one-function container:
// `return 2 + 3` (scenario S1).
func buildSimpleBinary() *bytecode.Binary {
	var code []byte
	code = bytecode.Encode(code, bytecode.Instruction{Op: bytecode.OpPush, Value: value.U8Value(2)})
	code = bytecode.Encode(code, bytecode.Instruction{Op: bytecode.OpPush, Value: value.U8Value(3)})
	code = bytecode.Encode(code, bytecode.Instruction{Op: bytecode.OpAdd})
	code = bytecode.Encode(code, bytecode.Instruction{Op: bytecode.OpRet})

	locs := map[uint32]map[uint32]bytecode.FuncLocation{
		0: {0: {Start: 0, Length: uint64(len(code))}},
	}
	dataTable := []bytecode.DataEntry{{EntityID: 0, Name: "n", Initial: value.U8Value(4)}}
	return bytecode.Assemble(dataTable, locs, code)
}

func TestAssembleLoadRoundTrip(t *testing.T) {
	bin := buildSimpleBinary()

	loaded, err := bytecode.Load(bin.Raw)
	require.NoError(t, err)

	assert.Equal(t, bytecode.FormatVersion, loaded.Version)
	require.Len(t, loaded.DataTable, 1)
	assert.Equal(t, "n", loaded.DataTable[0].Name)
	assert.Equal(t, value.U8Value(4), loaded.DataTable[0].Initial)

	loc, ok := loaded.FuncTable.Lookup(0, 0)
	require.True(t, ok)
	assert.Equal(t, bin.FuncTable[0][0], loc)

	// Start is absolute: it must index directly into the raw binary.
	inst, _, err := bytecode.Decode(loaded.Raw, int(loc.Start))
	require.NoError(t, err)
	assert.Equal(t, bytecode.OpPush, inst.Op)
}

// buildMultiEntityLocs builds a function-location table spanning
// several entities, each with several functions, so that iterating it
// unsorted would be likely to disagree between two runs.
func buildMultiEntityLocs() (map[uint32]map[uint32]bytecode.FuncLocation, []byte) {
	var code []byte
	locs := make(map[uint32]map[uint32]bytecode.FuncLocation)
	for entID := uint32(0); entID < 4; entID++ {
		locs[entID] = make(map[uint32]bytecode.FuncLocation)
		for funID := uint32(0); funID < 3; funID++ {
			start := len(code)
			code = bytecode.Encode(code, bytecode.Instruction{Op: bytecode.OpPush, Value: value.U8Value(byte(entID*10 + funID))})
			code = bytecode.Encode(code, bytecode.Instruction{Op: bytecode.OpRet})
			locs[entID][funID] = bytecode.FuncLocation{Start: uint64(start), Length: uint64(len(code) - start)}
		}
	}
	return locs, code
}

func TestAssembleIsDeterministicAcrossRuns(t *testing.T) {
	dataTable := []bytecode.DataEntry{
		{EntityID: 0, Name: "n", Initial: value.U8Value(1)},
		{EntityID: 2, Name: "total", Initial: value.U8Value(2)},
	}

	locs1, code1 := buildMultiEntityLocs()
	bin1 := bytecode.Assemble(dataTable, locs1, code1)

	locs2, code2 := buildMultiEntityLocs()
	bin2 := bytecode.Assemble(dataTable, locs2, code2)

	require.True(t, bytes.Equal(bin1.Raw, bin2.Raw), "compiling the same input twice must produce byte-identical binaries")
}

func TestAssembleKeepsEntityWithNoFunctions(t *testing.T) {
	locs := map[uint32]map[uint32]bytecode.FuncLocation{
		0: {0: {Start: 0, Length: 2}},
		1: {}, // declared, but has no functions
	}
	var code []byte
	code = bytecode.Encode(code, bytecode.Instruction{Op: bytecode.OpPush, Value: value.U8Value(1)})

	bin := bytecode.Assemble(nil, locs, code)

	assert.Equal(t, 2, bin.EntityCount)
	_, ok := bin.FuncTable[1]
	assert.True(t, ok, "an entity with zero functions must still have a key in FuncTable")
}

func TestLoadRejectsEmptyBinary(t *testing.T) {
	_, err := bytecode.Load(nil)
	assert.Error(t, err)
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	bin := buildSimpleBinary()
	raw := append([]byte(nil), bin.Raw...)
	raw[0] = bytecode.FormatVersion + 1
	_, err := bytecode.Load(raw)
	assert.Error(t, err)
}

func TestDisassembleListsFunction(t *testing.T) {
	bin := buildSimpleBinary()
	out, err := bytecode.Disassemble(bin)
	require.NoError(t, err)
	assert.Contains(t, out, "entity 0:")
	assert.Contains(t, out, "function 0")
	assert.Contains(t, out, "PUSH")
	assert.Contains(t, out, "ADD")
	assert.Contains(t, out, "RET")
}
