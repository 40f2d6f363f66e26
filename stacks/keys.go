package stacks

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 is part of the address format

	"github.com/gstohl/stxbulk/c32"
)

// ErrInvalidPrivateKey is returned for keys that are neither 32 bytes nor 32
// bytes followed by the 0x01 compression flag.
var ErrInvalidPrivateKey = errors.New("invalid private key")

// PrivateKey is a secp256k1 signing key together with the encoding of its
// public key. The encoding decides the sender address.
type PrivateKey struct {
	key        *btcec.PrivateKey
	compressed bool
}

// ParsePrivateKey parses a hex private key. 64 characters select an
// uncompressed public key; 66 characters ending in "01" select a compressed
// one. A leading "0x" is ignored.
func ParsePrivateKey(s string) (*PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")

	var compressed bool
	switch len(s) {
	case 64:
	case 66:
		if !strings.HasSuffix(s, "01") {
			return nil, fmt.Errorf("%w: 33-byte key must end in 01", ErrInvalidPrivateKey)
		}
		compressed = true
		s = s[:64]
	default:
		return nil, fmt.Errorf("%w: expected 64 or 66 hex characters, got %d", ErrInvalidPrivateKey, len(s))
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	key, _ := btcec.PrivKeyFromBytes(raw)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("%w: key is zero", ErrInvalidPrivateKey)
	}
	return &PrivateKey{key: key, compressed: compressed}, nil
}

// Compressed reports whether the public key is serialized compressed.
func (k *PrivateKey) Compressed() bool {
	return k.compressed
}

// PublicKey returns the serialized public key.
func (k *PrivateKey) PublicKey() []byte {
	if k.compressed {
		return k.key.PubKey().SerializeCompressed()
	}
	return k.key.PubKey().SerializeUncompressed()
}

// Hash160 returns hash160 of the serialized public key.
func (k *PrivateKey) Hash160() [20]byte {
	return Hash160(k.PublicKey())
}

// Address returns the single-sig address of the key for an address version.
func (k *PrivateKey) Address(version byte) (string, error) {
	return c32.Address(version, k.Hash160())
}

// Hash160 returns RIPEMD160(SHA256(b)).
func Hash160(b []byte) [20]byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sha[:])

	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}
