// Package clarity models the Clarity values passed as contract-call
// arguments and serializes them in the consensus wire format.
package clarity

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/gstohl/stxbulk/c32"
)

// TypeID is the one-byte prefix of a serialized Clarity value.
type TypeID byte

const (
	TypeInt               TypeID = 0x00
	TypeUInt              TypeID = 0x01
	TypeBuffer            TypeID = 0x02
	TypeTrue              TypeID = 0x03
	TypeFalse             TypeID = 0x04
	TypeStandardPrincipal TypeID = 0x05
	TypeContractPrincipal TypeID = 0x06
	TypeResponseOk        TypeID = 0x07
	TypeResponseErr       TypeID = 0x08
	TypeNone              TypeID = 0x09
	TypeSome              TypeID = 0x0a
	TypeList              TypeID = 0x0b
	TypeTuple             TypeID = 0x0c
	TypeStringASCII       TypeID = 0x0d
	TypeStringUTF8        TypeID = 0x0e
)

// MaxNameLength bounds tuple keys and contract names.
const MaxNameLength = 128

var (
	ErrUIntRange   = errors.New("clarity: uint out of range")
	ErrInvalidName = errors.New("clarity: invalid name")
)

var maxUInt = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Value is a Clarity value that can be serialized.
type Value interface {
	Type() TypeID
	encode(buf *bytes.Buffer) error
}

// Serialize returns the wire encoding of v.
func Serialize(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UInt is a 128-bit unsigned integer.
type UInt struct {
	v *big.Int
}

// NewUInt returns a uint value; v must fit in 128 bits.
func NewUInt(v *big.Int) (UInt, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(maxUInt) > 0 {
		return UInt{}, fmt.Errorf("%w: %v", ErrUIntRange, v)
	}
	return UInt{v: new(big.Int).Set(v)}, nil
}

// UIntFromString parses a base-10 string into a uint value.
func UIntFromString(s string) (UInt, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return UInt{}, fmt.Errorf("%w: %q", ErrUIntRange, s)
	}
	return NewUInt(v)
}

func (UInt) Type() TypeID { return TypeUInt }

// Value returns a copy of the integer.
func (u UInt) Value() *big.Int {
	if u.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(u.v)
}

func (u UInt) encode(buf *bytes.Buffer) error {
	buf.WriteByte(byte(TypeUInt))
	var word [16]byte
	u.Value().FillBytes(word[:])
	buf.Write(word[:])
	return nil
}

// Buffer is a byte buffer.
type Buffer []byte

func (Buffer) Type() TypeID { return TypeBuffer }

func (b Buffer) encode(buf *bytes.Buffer) error {
	buf.WriteByte(byte(TypeBuffer))
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
	return nil
}

// Bool is true or false.
type Bool bool

func (b Bool) Type() TypeID {
	if b {
		return TypeTrue
	}
	return TypeFalse
}

func (b Bool) encode(buf *bytes.Buffer) error {
	buf.WriteByte(byte(b.Type()))
	return nil
}

// StandardPrincipal is an account principal.
type StandardPrincipal struct {
	Version byte
	Hash160 [20]byte
}

// Principal decodes a c32 account address into a principal value.
func Principal(address string) (StandardPrincipal, error) {
	version, hash, err := c32.DecodeAddress(address)
	if err != nil {
		return StandardPrincipal{}, err
	}
	return StandardPrincipal{Version: version, Hash160: hash}, nil
}

func (StandardPrincipal) Type() TypeID { return TypeStandardPrincipal }

// String returns the c32 address of the principal.
func (p StandardPrincipal) String() string {
	addr, err := c32.Address(p.Version, p.Hash160)
	if err != nil {
		return fmt.Sprintf("invalid-principal(%d)", p.Version)
	}
	return addr
}

func (p StandardPrincipal) encode(buf *bytes.Buffer) error {
	buf.WriteByte(byte(TypeStandardPrincipal))
	buf.WriteByte(p.Version)
	buf.Write(p.Hash160[:])
	return nil
}

// List is an ordered sequence of values.
type List []Value

func (List) Type() TypeID { return TypeList }

func (l List) encode(buf *bytes.Buffer) error {
	buf.WriteByte(byte(TypeList))
	writeUint32(buf, uint32(len(l)))
	for i, v := range l {
		if err := v.encode(buf); err != nil {
			return fmt.Errorf("list item %d: %w", i, err)
		}
	}
	return nil
}

// Tuple maps names to values. Entries are serialized in name order.
type Tuple map[string]Value

func (Tuple) Type() TypeID { return TypeTuple }

// Keys returns the tuple names in serialization order.
func (t Tuple) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t Tuple) encode(buf *bytes.Buffer) error {
	buf.WriteByte(byte(TypeTuple))
	writeUint32(buf, uint32(len(t)))
	for _, k := range t.Keys() {
		if err := writeName(buf, k); err != nil {
			return err
		}
		if err := t[k].encode(buf); err != nil {
			return fmt.Errorf("tuple field %q: %w", k, err)
		}
	}
	return nil
}

// WriteName writes a length-prefixed Clarity name.
func WriteName(buf *bytes.Buffer, name string) error {
	return writeName(buf, name)
}

func writeName(buf *bytes.Buffer, name string) error {
	if len(name) == 0 || len(name) > MaxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)
	return nil
}

func writeUint32(buf *bytes.Buffer, n uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	buf.Write(b[:])
}
