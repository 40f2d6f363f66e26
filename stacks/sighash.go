package stacks

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// ErrBadSignature is returned when a transaction signature does not recover
// to the signer hash in its spending condition.
var ErrBadSignature = errors.New("signature does not match signer")

// TxID returns the transaction id of an encoded transaction.
func TxID(raw []byte) string {
	sum := sha512.Sum512_256(raw)
	return hex.EncodeToString(sum[:])
}

// initialSighash is the txid of the transaction with its spending condition
// cleared: nonce, fee and signature zeroed, key encoding kept.
func initialSighash(raw []byte) ([32]byte, error) {
	if len(raw) < authEnd {
		return [32]byte{}, fmt.Errorf("transaction too short: %d bytes", len(raw))
	}
	cleared := bytes.Clone(raw)
	clear(cleared[offsetNonce:offsetKeyEnc])
	clear(cleared[offsetSignature:authEnd])
	return sha512.Sum512_256(cleared), nil
}

// presignHash commits the sighash to the auth type, fee and nonce.
func presignHash(sighash [32]byte, authType byte, fee, nonce uint64) [32]byte {
	var buf [32 + 1 + 8 + 8]byte
	copy(buf[:32], sighash[:])
	buf[32] = authType
	binary.BigEndian.PutUint64(buf[33:41], fee)
	binary.BigEndian.PutUint64(buf[41:49], nonce)
	return sha512.Sum512_256(buf[:])
}

// signTransaction signs tx with key and stores the signature in its spending
// condition. The signature is recovery id followed by r and s.
func signTransaction(tx *transaction, key *PrivateKey) error {
	tx.auth.signature = [signatureLength]byte{}
	sighash, err := initialSighash(tx.encode())
	if err != nil {
		return err
	}
	hash := presignHash(sighash, authStandard, tx.auth.fee, tx.auth.nonce)

	compact := ecdsa.SignCompact(key.key, hash[:], key.compressed)
	recID := compact[0] - 27
	if key.compressed {
		recID -= 4
	}
	tx.auth.signature[0] = recID
	copy(tx.auth.signature[1:], compact[1:])
	return nil
}

// Verify checks that the signature of an encoded single-sig transaction was
// made by the key whose hash160 is in its spending condition.
func Verify(raw []byte) error {
	sighash, err := initialSighash(raw)
	if err != nil {
		return err
	}
	if raw[offsetAuthType] != authStandard || raw[offsetAuthType+1] != hashModeP2PKH {
		return fmt.Errorf("unsupported auth %#x/%#x", raw[offsetAuthType], raw[offsetAuthType+1])
	}
	fee := binary.BigEndian.Uint64(raw[offsetFee:offsetKeyEnc])
	nonce := binary.BigEndian.Uint64(raw[offsetNonce:offsetFee])
	hash := presignHash(sighash, raw[offsetAuthType], fee, nonce)

	if raw[offsetKeyEnc] != keyCompressed && raw[offsetKeyEnc] != keyUncompressed {
		return fmt.Errorf("unknown key encoding %#x", raw[offsetKeyEnc])
	}
	compressed := raw[offsetKeyEnc] == keyCompressed
	sig := raw[offsetSignature:authEnd]
	compact := make([]byte, signatureLength)
	compact[0] = sig[0] + 27
	if compressed {
		compact[0] += 4
	}
	copy(compact[1:], sig[1:])

	pub, wasCompressed, err := ecdsa.RecoverCompact(compact, hash[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if wasCompressed != compressed {
		return ErrBadSignature
	}
	var serialized []byte
	if compressed {
		serialized = pub.SerializeCompressed()
	} else {
		serialized = pub.SerializeUncompressed()
	}
	got := Hash160(serialized)
	if !bytes.Equal(got[:], raw[offsetSigner:offsetNonce]) {
		return ErrBadSignature
	}
	return nil
}
