package stacks

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/gstohl/stxbulk"
	"github.com/gstohl/stxbulk/c32"
	"github.com/gstohl/stxbulk/clarity"
)

const (
	// MaxMemoLength is the size of the token-transfer memo field.
	MaxMemoLength = stxbulk.MaxMemoLength

	txVersionMainnet byte = 0x00
	txVersionTestnet byte = 0x80

	authStandard    byte = 0x04
	hashModeP2PKH   byte = 0x00
	anchorModeAny   byte = 0x03
	keyCompressed   byte = 0x00
	keyUncompressed byte = 0x01

	payloadTokenTransfer byte = 0x00
	payloadSmartContract byte = 0x01
	payloadContractCall  byte = 0x02

	assetSTX byte = 0x00

	principalOrigin   byte = 0x01
	principalStandard byte = 0x02
	principalContract byte = 0x03

	signatureLength = 65
)

// Byte offsets of the single-sig spending condition in an encoded transaction.
const (
	offsetAuthType  = 5
	offsetSigner    = 7
	offsetNonce     = 27
	offsetFee       = 35
	offsetKeyEnc    = 43
	offsetSignature = 44
	authEnd         = offsetSignature + signatureLength
)

// spendingCondition is a standard single-sig P2PKH spending condition.
type spendingCondition struct {
	signer      [20]byte
	nonce       uint64
	fee         uint64
	keyEncoding byte
	signature   [signatureLength]byte
}

type transaction struct {
	version    byte
	chainID    uint32
	auth       spendingCondition
	pcMode     stxbulk.PostConditionMode
	conditions []byte
	payload    []byte
}

func (tx *transaction) encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(tx.version)
	writeUint32(&buf, tx.chainID)

	buf.WriteByte(authStandard)
	buf.WriteByte(hashModeP2PKH)
	buf.Write(tx.auth.signer[:])
	writeUint64(&buf, tx.auth.nonce)
	writeUint64(&buf, tx.auth.fee)
	buf.WriteByte(tx.auth.keyEncoding)
	buf.Write(tx.auth.signature[:])

	buf.WriteByte(anchorModeAny)
	buf.WriteByte(byte(tx.pcMode))
	buf.Write(tx.conditions)
	buf.Write(tx.payload)
	return buf.Bytes()
}

// encodePayload serializes a transaction payload.
func encodePayload(p stxbulk.Payload) ([]byte, error) {
	var buf bytes.Buffer
	switch p := p.(type) {
	case stxbulk.TokenTransferPayload:
		if len(p.Memo) > MaxMemoLength {
			return nil, fmt.Errorf("memo is %d bytes, at most %d allowed", len(p.Memo), MaxMemoLength)
		}
		to, err := clarity.Principal(p.Recipient)
		if err != nil {
			return nil, fmt.Errorf("recipient %q: %w", p.Recipient, err)
		}
		amount, err := toUint64(p.Amount, "amount")
		if err != nil {
			return nil, err
		}
		encoded, err := clarity.Serialize(to)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(payloadTokenTransfer)
		buf.Write(encoded)
		writeUint64(&buf, amount)
		var memo [MaxMemoLength]byte
		copy(memo[:], p.Memo)
		buf.Write(memo[:])

	case stxbulk.ContractCallPayload:
		version, hash, err := c32.DecodeAddress(p.Contract.Address)
		if err != nil {
			return nil, fmt.Errorf("contract %q: %w", p.Contract, err)
		}
		buf.WriteByte(payloadContractCall)
		buf.WriteByte(version)
		buf.Write(hash[:])
		if err := clarity.WriteName(&buf, p.Contract.Name); err != nil {
			return nil, fmt.Errorf("contract name: %w", err)
		}
		if err := clarity.WriteName(&buf, p.Function); err != nil {
			return nil, fmt.Errorf("function name: %w", err)
		}
		writeUint32(&buf, uint32(len(p.Args)))
		for i, arg := range p.Args {
			encoded, err := clarity.Serialize(arg)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			buf.Write(encoded)
		}

	case stxbulk.SmartContractPayload:
		buf.WriteByte(payloadSmartContract)
		if err := clarity.WriteName(&buf, p.Name); err != nil {
			return nil, fmt.Errorf("contract name: %w", err)
		}
		writeUint32(&buf, uint32(len(p.Code)))
		buf.WriteString(p.Code)

	default:
		return nil, fmt.Errorf("unsupported payload %T", p)
	}
	return buf.Bytes(), nil
}

// encodePostConditions serializes a length-prefixed list of STX
// post-conditions.
func encodePostConditions(pcs []stxbulk.PostCondition) ([]byte, error) {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(pcs)))
	for i, pc := range pcs {
		buf.WriteByte(assetSTX)
		if err := encodePrincipal(&buf, pc.Principal); err != nil {
			return nil, fmt.Errorf("post-condition %d: %w", i, err)
		}
		if pc.Code < stxbulk.SentEqual || pc.Code > stxbulk.SentLessEqual {
			return nil, fmt.Errorf("post-condition %d: invalid condition code %d", i, pc.Code)
		}
		buf.WriteByte(byte(pc.Code))
		amount, err := toUint64(pc.Amount, "post-condition amount")
		if err != nil {
			return nil, err
		}
		writeUint64(&buf, amount)
	}
	return buf.Bytes(), nil
}

func encodePrincipal(buf *bytes.Buffer, principal string) error {
	if principal == "" {
		buf.WriteByte(principalOrigin)
		return nil
	}
	addr, name, isContract := strings.Cut(principal, ".")
	version, hash, err := c32.DecodeAddress(addr)
	if err != nil {
		return fmt.Errorf("principal %q: %w", principal, err)
	}
	if isContract {
		buf.WriteByte(principalContract)
	} else {
		buf.WriteByte(principalStandard)
	}
	buf.WriteByte(version)
	buf.Write(hash[:])
	if isContract {
		return clarity.WriteName(buf, name)
	}
	return nil
}

func toUint64(v *big.Int, what string) (uint64, error) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%s %v does not fit in 64 bits", what, v)
	}
	return v.Uint64(), nil
}

func writeUint32(buf *bytes.Buffer, n uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, n uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	buf.Write(b[:])
}
