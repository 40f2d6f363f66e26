// Package c32 implements the c32check encoding used by Stacks addresses.
//
// c32 is a Crockford-style base32 alphabet. A c32check string is the version
// character followed by the c32 encoding of the payload and a 4-byte
// double-SHA256 checksum. An address is a c32check string of a 20-byte
// hash160 prefixed with 'S'.
package c32

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address versions for single-sig (P2PKH) and multi-sig (P2SH) accounts.
const (
	MainnetP2PKH byte = 22
	MainnetP2SH  byte = 20
	TestnetP2PKH byte = 26
	TestnetP2SH  byte = 21
)

var (
	ErrInvalidCharacter = errors.New("c32: invalid character")
	ErrChecksum         = errors.New("c32: checksum mismatch")
	ErrInvalidVersion   = errors.New("c32: version must be below 32")
	ErrInvalidAddress   = errors.New("c32: invalid address")
)

var base = big.NewInt(32)

// Encode encodes data as c32. Every leading zero byte becomes one leading '0'.
func Encode(data []byte) string {
	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}

	n := new(big.Int).SetBytes(data)
	mod := new(big.Int)
	var digits []byte
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		digits = append(digits, alphabet[mod.Int64()])
	}

	var sb strings.Builder
	sb.Grow(zeros + len(digits))
	sb.WriteString(strings.Repeat("0", zeros))
	for i := len(digits) - 1; i >= 0; i-- {
		sb.WriteByte(digits[i])
	}
	return sb.String()
}

// Decode decodes a c32 string. Input is normalized first: lower case is
// accepted, 'O' reads as '0' and 'I'/'L' read as '1'.
func Decode(s string) ([]byte, error) {
	s = normalize(s)

	zeros := 0
	for zeros < len(s) && s[zeros] == '0' {
		zeros++
	}

	n := new(big.Int)
	for i := zeros; i < len(s); i++ {
		d := strings.IndexByte(alphabet, s[i])
		if d < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCharacter, s[i])
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(d)))
	}

	out := make([]byte, zeros, zeros+len(s))
	return append(out, n.Bytes()...), nil
}

// CheckEncode encodes data with a version character and checksum.
func CheckEncode(version byte, data []byte) (string, error) {
	if version >= 32 {
		return "", ErrInvalidVersion
	}
	sum := checksum(version, data)
	payload := make([]byte, 0, len(data)+len(sum))
	payload = append(payload, data...)
	payload = append(payload, sum...)
	return string(alphabet[version]) + Encode(payload), nil
}

// CheckDecode reverses CheckEncode and verifies the checksum.
func CheckDecode(s string) (byte, []byte, error) {
	s = normalize(s)
	if len(s) < 2 {
		return 0, nil, fmt.Errorf("%w: too short", ErrInvalidAddress)
	}

	v := strings.IndexByte(alphabet, s[0])
	if v < 0 {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidCharacter, s[0])
	}
	version := byte(v)

	payload, err := Decode(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(payload) < 4 {
		return 0, nil, fmt.Errorf("%w: missing checksum", ErrInvalidAddress)
	}

	data, sum := payload[:len(payload)-4], payload[len(payload)-4:]
	if !bytes.Equal(sum, checksum(version, data)) {
		return 0, nil, ErrChecksum
	}
	return version, data, nil
}

// Address returns the c32 address for a version and hash160.
func Address(version byte, hash [20]byte) (string, error) {
	s, err := CheckEncode(version, hash[:])
	if err != nil {
		return "", err
	}
	return "S" + s, nil
}

// DecodeAddress returns the version and hash160 encoded in addr.
func DecodeAddress(addr string) (byte, [20]byte, error) {
	var hash [20]byte
	if len(addr) <= 5 || addr[0] != 'S' {
		return 0, hash, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	version, data, err := CheckDecode(addr[1:])
	if err != nil {
		return 0, hash, err
	}
	if len(data) != len(hash) {
		return 0, hash, fmt.Errorf("%w: hash is %d bytes", ErrInvalidAddress, len(data))
	}
	copy(hash[:], data)
	return version, hash, nil
}

// ValidAddress reports whether addr is a well-formed address of any version.
func ValidAddress(addr string) bool {
	_, _, err := DecodeAddress(addr)
	return err == nil
}

func checksum(version byte, data []byte) []byte {
	buf := make([]byte, 0, 1+len(data))
	buf = append(buf, version)
	buf = append(buf, data...)
	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func normalize(s string) string {
	s = strings.ToUpper(s)
	return strings.NewReplacer("O", "0", "L", "1", "I", "1").Replace(s)
}
