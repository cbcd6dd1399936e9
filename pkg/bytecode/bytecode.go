// Package bytecode defines the instruction set, its binary codec, and
// the on-disk/on-wire container format shared between pkg/compiler and
// pkg/interp.
//
// Architecture:
//
// The instruction set is the minimum needed to express entity method
// bodies as a stack machine:
//  1. Values are pushed onto and popped from the vat's operand stack.
//  2. Arithmetic consumes two U8 operands and pushes one result.
//  3. Lload/Lstore address the topmost call frame; Eload/Estore
//     address the current entity's data.
//  4. Message emits an outbound request and yields a Promise handle;
//     Await suspends until that promise resolves.
//  5. ForeignCall escapes to a host-registered function.
//
// Encoding contract: one opcode tag byte, then big-endian operands.
// String operands are a 4-byte big-endian length, the UTF-8 bytes, and
// a redundant 0x00 terminator. Inline values use the self-describing
// tags 0x01 (None), 0x02 (U8, +1 byte), 0x03 (Promise, +1 byte).
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kristofer/actorvm/pkg/value"
)

// Opcode is a single-byte instruction tag.
type Opcode byte

const (
	// OpPush loads an inline literal value onto the operand stack.
	OpPush Opcode = iota
	// OpAdd pops b, a and pushes a+b (wrapping uint8 arithmetic).
	OpAdd
	// OpSub pops b, a and pushes a-b.
	OpSub
	// OpMul pops b, a and pushes a*b.
	OpMul
	// OpDiv pops b, a and pushes a/b; b == 0 is a fatal error.
	OpDiv
	// OpLload loads a named local from the topmost call frame.
	OpLload
	// OpLstore stores the top of stack into a named local.
	OpLstore
	// OpEload loads a named field from the current entity's data.
	OpEload
	// OpEstore stores the top of stack into a named entity field.
	OpEstore
	// OpMessage sends an outbound Request and pushes a new Promise.
	OpMessage
	// OpAwait suspends on an unresolved promise, or continues if resolved.
	OpAwait
	// OpRet pops a call frame and either jumps to its return address
	// or terminates the message.
	OpRet
	// OpForeignCall invokes a host-registered function by id.
	OpForeignCall
	// OpNop does nothing.
	OpNop
)

func (op Opcode) String() string {
	switch op {
	case OpPush:
		return "PUSH"
	case OpAdd:
		return "ADD"
	case OpSub:
		return "SUB"
	case OpMul:
		return "MUL"
	case OpDiv:
		return "DIV"
	case OpLload:
		return "LLOAD"
	case OpLstore:
		return "LSTORE"
	case OpEload:
		return "ELOAD"
	case OpEstore:
		return "ESTORE"
	case OpMessage:
		return "MESSAGE"
	case OpAwait:
		return "AWAIT"
	case OpRet:
		return "RET"
	case OpForeignCall:
		return "FOREIGN_CALL"
	case OpNop:
		return "NOP"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(op))
	}
}

// Inline value type tags (§4.1).
const (
	tagNone    byte = 0x01
	tagU8      byte = 0x02
	tagPromise byte = 0x03
)

// MessageOperand is OpMessage's decoded operand: the full destination
// plus argument count (§3/§4.3 — the redesigned Message opcode).
type MessageOperand struct {
	VatID    uint32
	EntityID uint32
	FuncID   uint32
	ArgCount uint8
}

// Instruction is one decoded bytecode instruction. Exactly one of the
// operand fields is meaningful, depending on Op.
type Instruction struct {
	Op      Opcode
	Value   value.Value    // OpPush
	Name    string         // OpLload, OpLstore, OpEload, OpEstore
	Message MessageOperand // OpMessage
	FuncID  uint32         // OpForeignCall
}

// Encode appends the binary form of inst to buf and returns the result.
func Encode(buf []byte, inst Instruction) []byte {
	buf = append(buf, byte(inst.Op))
	switch inst.Op {
	case OpPush:
		buf = encodeValue(buf, inst.Value)
	case OpLload, OpLstore, OpEload, OpEstore:
		buf = encodeString(buf, inst.Name)
	case OpMessage:
		buf = appendU32(buf, inst.Message.VatID)
		buf = appendU32(buf, inst.Message.EntityID)
		buf = appendU32(buf, inst.Message.FuncID)
		buf = append(buf, inst.Message.ArgCount)
	case OpForeignCall:
		buf = appendU32(buf, inst.FuncID)
	case OpAdd, OpSub, OpMul, OpDiv, OpAwait, OpRet, OpNop:
		// no operand
	}
	return buf
}

// Decode reads a single instruction starting at code[pos] and returns
// it along with the position immediately following it.
func Decode(code []byte, pos int) (Instruction, int, error) {
	if pos >= len(code) {
		return Instruction{}, pos, io.ErrUnexpectedEOF
	}
	op := Opcode(code[pos])
	pos++

	switch op {
	case OpPush:
		v, next, err := decodeValue(code, pos)
		return Instruction{Op: op, Value: v}, next, err

	case OpLload, OpLstore, OpEload, OpEstore:
		name, next, err := decodeString(code, pos)
		return Instruction{Op: op, Name: name}, next, err

	case OpMessage:
		if pos+13 > len(code) {
			return Instruction{}, pos, io.ErrUnexpectedEOF
		}
		vatID := binary.BigEndian.Uint32(code[pos:])
		entityID := binary.BigEndian.Uint32(code[pos+4:])
		funcID := binary.BigEndian.Uint32(code[pos+8:])
		argc := code[pos+12]
		return Instruction{Op: op, Message: MessageOperand{
			VatID: vatID, EntityID: entityID, FuncID: funcID, ArgCount: argc,
		}}, pos + 13, nil

	case OpForeignCall:
		if pos+4 > len(code) {
			return Instruction{}, pos, io.ErrUnexpectedEOF
		}
		return Instruction{Op: op, FuncID: binary.BigEndian.Uint32(code[pos:])}, pos + 4, nil

	case OpAdd, OpSub, OpMul, OpDiv, OpAwait, OpRet, OpNop:
		return Instruction{Op: op}, pos, nil

	default:
		return Instruction{}, pos, fmt.Errorf("bytecode: invalid opcode 0x%02x at %d", byte(op), pos-1)
	}
}

func encodeValue(buf []byte, v value.Value) []byte {
	switch v.Kind {
	case value.KindNone:
		return append(buf, tagNone)
	case value.KindU8:
		return append(buf, tagU8, v.U8)
	case value.KindPromise:
		return append(buf, tagPromise, byte(v.Promise))
	default:
		panic(fmt.Sprintf("bytecode: unsupported value kind %v", v.Kind))
	}
}

func decodeValue(code []byte, pos int) (value.Value, int, error) {
	if pos >= len(code) {
		return value.Value{}, pos, io.ErrUnexpectedEOF
	}
	tag := code[pos]
	pos++
	switch tag {
	case tagNone:
		return value.None, pos, nil
	case tagU8:
		if pos >= len(code) {
			return value.Value{}, pos, io.ErrUnexpectedEOF
		}
		return value.U8Value(code[pos]), pos + 1, nil
	case tagPromise:
		if pos >= len(code) {
			return value.Value{}, pos, io.ErrUnexpectedEOF
		}
		return value.PromiseValue(uint32(code[pos])), pos + 1, nil
	default:
		return value.Value{}, pos, fmt.Errorf("bytecode: invalid value tag 0x%02x", tag)
	}
}

func encodeString(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	buf = append(buf, s...)
	buf = append(buf, 0x00)
	return buf
}

func decodeString(code []byte, pos int) (string, int, error) {
	if pos+4 > len(code) {
		return "", pos, io.ErrUnexpectedEOF
	}
	length := int(binary.BigEndian.Uint32(code[pos:]))
	pos += 4
	if pos+length+1 > len(code) {
		return "", pos, io.ErrUnexpectedEOF
	}
	s := string(code[pos : pos+length])
	pos += length
	if code[pos] != 0x00 {
		return "", pos, fmt.Errorf("bytecode: string operand missing 0x00 terminator")
	}
	pos++
	return s, pos, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
