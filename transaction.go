package stxbulk

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/gstohl/stxbulk/clarity"
)

// Network describes the chain a transaction is built for. The builder only
// passes it through to the signer.
type Network interface {
	Name() string
	ChainID() uint32
	APIURL() string
}

// PayloadKind identifies the transaction payload.
type PayloadKind int

const (
	PayloadTokenTransfer PayloadKind = iota + 1
	PayloadContractCall
	PayloadSmartContract
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadTokenTransfer:
		return "token-transfer"
	case PayloadContractCall:
		return "contract-call"
	case PayloadSmartContract:
		return "smart-contract"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Payload is one of TokenTransferPayload, ContractCallPayload or
// SmartContractPayload.
type Payload interface {
	Kind() PayloadKind
}

// TokenTransferPayload is a native account-to-account STX transfer.
type TokenTransferPayload struct {
	Recipient string
	Amount    *big.Int
	// Memo is nil when no memo is bound.
	Memo []byte
}

func (TokenTransferPayload) Kind() PayloadKind { return PayloadTokenTransfer }

// ContractCallPayload invokes a public contract function.
type ContractCallPayload struct {
	Contract ContractID
	Function string
	Args     []clarity.Value
}

func (ContractCallPayload) Kind() PayloadKind { return PayloadContractCall }

// SmartContractPayload deploys a contract under the sender's address.
type SmartContractPayload struct {
	Name string
	Code string
}

func (SmartContractPayload) Kind() PayloadKind { return PayloadSmartContract }

// Request is everything a Signer needs to produce a signed transaction.
type Request struct {
	Network           Network
	Payload           Payload
	PostConditions    []PostCondition
	PostConditionMode PostConditionMode
	// SenderKey is the hex private key. It is never logged or retained.
	SenderKey string
	// Nonce is nil to let the signer pick the next account nonce.
	Nonce *big.Int
	// Fee is nil to let the signer apply its default fee policy.
	Fee *big.Int
}

// Signer builds and signs transactions. It is the only component that sees
// private key material.
type Signer interface {
	Sign(ctx context.Context, req *Request) (*SignedTransaction, error)
}

// NonceResolver returns the next nonce of the account behind a key.
type NonceResolver interface {
	NextNonce(ctx context.Context, senderKey string, network Network) (*big.Int, error)
}

// SignedTransaction is a fully built, signed transaction.
type SignedTransaction struct {
	TxID              string
	Kind              PayloadKind
	Sender            string
	Fee               *big.Int
	Nonce             *big.Int
	PostConditions    []PostCondition
	PostConditionMode PostConditionMode
	// Payload is the serialized payload section, used for fee estimation.
	Payload []byte
	// Raw is the complete serialized transaction.
	Raw []byte
}

// Hex returns the serialized transaction as hex.
func (t *SignedTransaction) Hex() string {
	return hex.EncodeToString(t.Raw)
}
