// Package stacks signs Stacks transactions.
//
// Only standard single-sig P2PKH spending conditions are supported, with STX
// post-conditions.
package stacks

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/gstohl/stxbulk"
	"github.com/gstohl/stxbulk/c32"
)

// Chain ids.
const (
	ChainIDMainnet uint32 = 0x00000001
	ChainIDTestnet uint32 = 0x80000000
)

// NonceSource returns the next nonce of an account.
type NonceSource interface {
	FetchNonce(ctx context.Context, address string) (*big.Int, error)
}

// FeeRateSource returns the fee rate in uSTX per byte.
type FeeRateSource interface {
	FetchTransferFeeRate(ctx context.Context) (*big.Int, error)
}

// Option configures a Signer.
type Option func(*Signer)

// WithNonceSource sets where nonces come from when a request has none.
func WithNonceSource(n NonceSource) Option {
	return func(s *Signer) { s.nonces = n }
}

// WithFeeEstimator sets the first choice for fees when a request has none.
func WithFeeEstimator(e stxbulk.FeeEstimator) Option {
	return func(s *Signer) { s.estimator = e }
}

// WithFeeRateSource sets the fallback fee policy: rate times encoded length.
func WithFeeRateSource(r FeeRateSource) Option {
	return func(s *Signer) { s.rates = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Signer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Signer implements stxbulk.Signer and stxbulk.NonceResolver.
type Signer struct {
	nonces    NonceSource
	estimator stxbulk.FeeEstimator
	rates     FeeRateSource
	logger    *zap.Logger
}

var (
	_ stxbulk.Signer        = (*Signer)(nil)
	_ stxbulk.NonceResolver = (*Signer)(nil)
)

// NewSigner returns a Signer. Without sources every request must carry its
// own nonce and fee.
func NewSigner(opts ...Option) *Signer {
	s := &Signer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddressVersion returns the single-sig address version for a chain.
func AddressVersion(chainID uint32) byte {
	if chainID == ChainIDMainnet {
		return c32.MainnetP2PKH
	}
	return c32.TestnetP2PKH
}

func txVersion(chainID uint32) byte {
	if chainID == ChainIDMainnet {
		return txVersionMainnet
	}
	return txVersionTestnet
}

// SenderAddress returns the address that signs with senderKey on network.
func SenderAddress(senderKey string, network stxbulk.Network) (string, error) {
	key, err := ParsePrivateKey(senderKey)
	if err != nil {
		return "", err
	}
	return key.Address(AddressVersion(network.ChainID()))
}

// NextNonce looks up the next nonce of the account behind senderKey.
func (s *Signer) NextNonce(ctx context.Context, senderKey string, network stxbulk.Network) (*big.Int, error) {
	sender, err := SenderAddress(senderKey, network)
	if err != nil {
		return nil, err
	}
	return s.fetchNonce(ctx, sender)
}

func (s *Signer) fetchNonce(ctx context.Context, sender string) (*big.Int, error) {
	if s.nonces == nil {
		return nil, errors.New("no nonce given and no nonce source configured")
	}
	n, err := s.nonces.FetchNonce(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce for %s: %w", sender, err)
	}
	return n, nil
}

// Sign encodes and signs req.
func (s *Signer) Sign(ctx context.Context, req *stxbulk.Request) (*stxbulk.SignedTransaction, error) {
	if req.Network == nil {
		return nil, errors.New("request has no network")
	}
	if req.Payload == nil {
		return nil, errors.New("request has no payload")
	}
	key, err := ParsePrivateKey(req.SenderKey)
	if err != nil {
		return nil, err
	}

	chainID := req.Network.ChainID()
	sender, err := key.Address(AddressVersion(chainID))
	if err != nil {
		return nil, err
	}

	payload, err := encodePayload(req.Payload)
	if err != nil {
		return nil, err
	}
	conditions, err := encodePostConditions(req.PostConditions)
	if err != nil {
		return nil, err
	}

	mode := req.PostConditionMode
	if mode == 0 {
		mode = stxbulk.PostConditionModeDeny
	}

	nonce := req.Nonce
	if nonce == nil {
		if nonce, err = s.fetchNonce(ctx, sender); err != nil {
			return nil, err
		}
	}
	nonce64, err := toUint64(nonce, "nonce")
	if err != nil {
		return nil, err
	}

	keyEncoding := keyUncompressed
	if key.Compressed() {
		keyEncoding = keyCompressed
	}
	tx := &transaction{
		version: txVersion(chainID),
		chainID: chainID,
		auth: spendingCondition{
			signer:      key.Hash160(),
			nonce:       nonce64,
			keyEncoding: keyEncoding,
		},
		pcMode:     mode,
		conditions: conditions,
		payload:    payload,
	}

	fee := req.Fee
	if fee == nil {
		if fee, err = s.defaultFee(ctx, tx, req.Payload.Kind()); err != nil {
			return nil, err
		}
	}
	if tx.auth.fee, err = toUint64(fee, "fee"); err != nil {
		return nil, err
	}

	if err := signTransaction(tx, key); err != nil {
		return nil, err
	}
	raw := tx.encode()

	return &stxbulk.SignedTransaction{
		TxID:              TxID(raw),
		Kind:              req.Payload.Kind(),
		Sender:            sender,
		Fee:               new(big.Int).Set(fee),
		Nonce:             new(big.Int).Set(nonce),
		PostConditions:    req.PostConditions,
		PostConditionMode: mode,
		Payload:           payload,
		Raw:               raw,
	}, nil
}

// defaultFee asks the estimator first and falls back to the transfer fee rate
// times the encoded length. The unsigned encoding has the same length as the
// signed one.
func (s *Signer) defaultFee(ctx context.Context, tx *transaction, kind stxbulk.PayloadKind) (*big.Int, error) {
	raw := tx.encode()
	template := &stxbulk.SignedTransaction{
		TxID:    TxID(raw),
		Kind:    kind,
		Fee:     new(big.Int),
		Nonce:   new(big.Int).SetUint64(tx.auth.nonce),
		Payload: tx.payload,
		Raw:     raw,
	}

	var estimateErr error
	if s.estimator != nil {
		fee, err := s.estimator.EstimateFee(ctx, template)
		if err == nil && fee != nil && fee.Sign() >= 0 {
			return fee, nil
		}
		estimateErr = err
		s.logger.Debug("fee estimate unavailable, using fee rate", zap.Error(err))
	}

	if s.rates == nil {
		if estimateErr != nil {
			return nil, fmt.Errorf("estimate fee: %w", estimateErr)
		}
		return nil, errors.New("no fee given and no fee source configured")
	}
	rate, err := s.rates.FetchTransferFeeRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch fee rate: %w", err)
	}
	return new(big.Int).Mul(rate, big.NewInt(int64(len(raw)))), nil
}
