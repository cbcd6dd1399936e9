// This file implements the binary container: the header tables
// (entity-data table, entity-function-location table) plus the flat
// instruction stream, per §4.3/§4.4/§6.
//
// Binary layout: version(1) || entity_count(1) || data_table ||
// function_table || code. Function-table rows store absolute offsets
// computed so they index directly into the full encoded binary (§4.3's
// absolute_start formula), so decoding a function never needs the
// header length.
//
// entity_count is carried explicitly rather than derived from the
// function table's row count: an entity declared with no functions
// contributes zero rows to the function table, so counting rows (or
// counting distinct keys recovered from rows) would silently lose it.
//
// Table widths are 64-bit with a version byte (§3/§9 — the 16-bit
// width limitation called out in spec.md is fixed here rather than
// left as a TODO).
package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/kristofer/actorvm/pkg/value"
)

// FormatVersion is the current container format version.
const FormatVersion byte = 1

// funcTableEntrySize is the per-row size of the function-location
// table: entity_id(1) + func_id(1) + start(8) + length(8).
const funcTableEntrySize = 1 + 1 + 8 + 8

// DataEntry is one row of the entity-data table: the initial value of
// one declared field of one entity.
type DataEntry struct {
	EntityID byte
	Name     string
	Initial  value.Value
}

// FuncLocation is one function's (start, length) within the binary's
// code region, with Start already absolute (usable directly as an
// index into the full binary per §4.3).
type FuncLocation struct {
	Start  uint64
	Length uint64
}

// FuncTable maps entity_id -> function_id -> location.
type FuncTable map[uint32]map[uint32]FuncLocation

// Lookup returns the (start, length) for (entityID, funcID).
func (t FuncTable) Lookup(entityID, funcID uint32) (FuncLocation, bool) {
	fns, ok := t[entityID]
	if !ok {
		return FuncLocation{}, false
	}
	loc, ok := fns[funcID]
	return loc, ok
}

// Binary is a fully assembled container: header tables plus the flat
// instruction stream. Raw holds the complete encoded bytes; function
// offsets in FuncTable index directly into Raw.
//
// EntityCount is the declared entity count, independent of how many
// of those entities ended up with rows in DataTable or FuncTable —
// an entity with neither data fields nor functions is still real and
// still needs a vat-owned Entity instantiated for it.
type Binary struct {
	Version     byte
	EntityCount int
	DataTable   []DataEntry
	FuncTable   FuncTable
	Raw         []byte
}

// entityFuncCount returns the total number of (entity, function) rows,
// needed up front to compute absolute_start for every row (§4.3).
func entityFuncCount(locs map[uint32]map[uint32]FuncLocation) int {
	n := 0
	for _, fns := range locs {
		n += len(fns)
	}
	return n
}

// Assemble builds the final Binary from the data table, the
// function-location table (with offsets relative to the start of the
// code region), and the code region itself.
//
// entID/funID are visited in ascending order (sortedUint32Keys) rather
// than by ranging over relLocs directly: Go randomizes map iteration
// order, and the header bytes must come out byte-identical across
// separate Compile calls for the same AST (§8.2 determinism).
func Assemble(dataTable []DataEntry, relLocs map[uint32]map[uint32]FuncLocation, code []byte) *Binary {
	entityCount := len(relLocs)

	var header []byte
	header = append(header, FormatVersion)
	header = append(header, byte(entityCount))
	header = appendDataTable(header, dataTable)

	locOffset := len(header)
	sz := entityFuncCount(relLocs)
	header = append(header, byte(sz))

	funcTable := make(FuncTable, len(relLocs))
	for _, entID := range sortedUint32Keys(relLocs) {
		// An entity declared with no functions still gets a key in
		// funcTable, even though it contributes no header rows, so the
		// in-memory table lists every declared entity. The entity count
		// itself travels in the entity_count header byte (EntityCount).
		if _, ok := funcTable[entID]; !ok {
			funcTable[entID] = make(map[uint32]FuncLocation)
		}
		fns := relLocs[entID]
		for _, funID := range sortedUint32Keys(fns) {
			loc := fns[funID]
			absStart := loc.Start + uint64(1+sz*funcTableEntrySize+locOffset)
			header = append(header, byte(entID), byte(funID))
			header = appendU64(header, absStart)
			header = appendU64(header, loc.Length)

			funcTable[entID][funID] = FuncLocation{Start: absStart, Length: loc.Length}
		}
	}

	raw := append(header, code...)
	return &Binary{
		Version:     FormatVersion,
		EntityCount: entityCount,
		DataTable:   dataTable,
		FuncTable:   funcTable,
		Raw:         raw,
	}
}

func appendDataTable(buf []byte, dataTable []DataEntry) []byte {
	buf = append(buf, byte(len(dataTable)))
	for _, e := range dataTable {
		buf = append(buf, e.EntityID)
		buf = append(buf, e.Name...)
		buf = append(buf, 0x00)
		buf = encodeValue(buf, e.Initial)
	}
	return buf
}

// Load parses the header tables out of a raw container. It never
// re-derives offsets: FuncTable.Start values read back out are already
// absolute indices into raw, ready for pkg/interp to slice.
func Load(raw []byte) (*Binary, error) {
	if len(raw) < 1 {
		return nil, errors.New("bytecode: empty binary")
	}
	version := raw[0]
	if version != FormatVersion {
		return nil, errors.Errorf("bytecode: unsupported format version %d (expected %d)", version, FormatVersion)
	}
	if len(raw) < 2 {
		return nil, errors.New("bytecode: truncated entity count")
	}
	entityCount := int(raw[1])
	pos := 2

	dataTable, pos, err := readDataTable(raw, pos)
	if err != nil {
		return nil, errors.Wrap(err, "bytecode: reading data table")
	}

	funcTable, _, err := readFuncTable(raw, pos)
	if err != nil {
		return nil, errors.Wrap(err, "bytecode: reading function table")
	}

	return &Binary{
		Version:     version,
		EntityCount: entityCount,
		DataTable:   dataTable,
		FuncTable:   funcTable,
		Raw:         raw,
	}, nil
}

func readDataTable(raw []byte, pos int) ([]DataEntry, int, error) {
	if pos >= len(raw) {
		return nil, pos, fmt.Errorf("truncated data table count")
	}
	count := int(raw[pos])
	pos++

	entries := make([]DataEntry, 0, count)
	for i := 0; i < count; i++ {
		if pos >= len(raw) {
			return nil, pos, fmt.Errorf("truncated data table row %d", i)
		}
		entityID := raw[pos]
		pos++

		nameEnd := pos
		for nameEnd < len(raw) && raw[nameEnd] != 0x00 {
			nameEnd++
		}
		if nameEnd >= len(raw) {
			return nil, pos, fmt.Errorf("unterminated data table name at row %d", i)
		}
		name := string(raw[pos:nameEnd])
		pos = nameEnd + 1

		v, next, err := decodeValue(raw, pos)
		if err != nil {
			return nil, pos, err
		}
		pos = next

		entries = append(entries, DataEntry{EntityID: entityID, Name: name, Initial: v})
	}
	return entries, pos, nil
}

func readFuncTable(raw []byte, pos int) (FuncTable, int, error) {
	if pos >= len(raw) {
		return nil, pos, fmt.Errorf("truncated function table count")
	}
	count := int(raw[pos])
	pos++

	table := make(FuncTable, count)
	for i := 0; i < count; i++ {
		if pos+funcTableEntrySize > len(raw) {
			return nil, pos, fmt.Errorf("truncated function table row %d", i)
		}
		entityID := uint32(raw[pos])
		funcID := uint32(raw[pos+1])
		start := binary.BigEndian.Uint64(raw[pos+2:])
		length := binary.BigEndian.Uint64(raw[pos+10:])
		pos += funcTableEntrySize

		if _, ok := table[entityID]; !ok {
			table[entityID] = make(map[uint32]FuncLocation)
		}
		table[entityID][funcID] = FuncLocation{Start: start, Length: length}
	}
	return table, pos, nil
}

// Disassemble produces a textual listing of every function in the
// container, in entity-id then function-id order (§4.4).
func Disassemble(bin *Binary) (string, error) {
	var out []byte
	entityIDs := sortedUint32Keys(bin.FuncTable)
	for _, entID := range entityIDs {
		out = append(out, fmt.Sprintf("entity %d:\n", entID)...)
		funcs := bin.FuncTable[entID]
		funcIDs := sortedUint32Keys(funcs)
		for _, funID := range funcIDs {
			loc := funcs[funID]
			out = append(out, fmt.Sprintf("  function %d (%d bytes):\n", funID, loc.Length)...)
			pos := int(loc.Start)
			end := pos + int(loc.Length)
			for pos < end {
				inst, next, err := Decode(bin.Raw, pos)
				if err != nil {
					return "", errors.Wrapf(err, "disassembling entity %d function %d at offset %d", entID, funID, pos)
				}
				out = append(out, fmt.Sprintf("    %04x  %s\n", pos, formatInstruction(inst))...)
				pos = next
			}
		}
	}
	return string(out), nil
}

func formatInstruction(inst Instruction) string {
	switch inst.Op {
	case OpPush:
		return fmt.Sprintf("%s %s", inst.Op, inst.Value)
	case OpLload, OpLstore, OpEload, OpEstore:
		return fmt.Sprintf("%s %s", inst.Op, inst.Name)
	case OpMessage:
		m := inst.Message
		return fmt.Sprintf("%s vat=%d entity=%d func=%d argc=%d", inst.Op, m.VatID, m.EntityID, m.FuncID, m.ArgCount)
	case OpForeignCall:
		return fmt.Sprintf("%s %d", inst.Op, inst.FuncID)
	default:
		return inst.Op.String()
	}
}

// sortedUint32Keys returns m's keys in ascending order. Entity/function
// counts are byte-sized, so a dependency-free insertion sort keeps the
// assembled header and the disassembly output deterministic without
// pulling in sort.
func sortedUint32Keys[V any](m map[uint32]V) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
