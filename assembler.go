package stxbulk

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/gstohl/stxbulk/clarity"
)

// Transfer is either a DirectTransfer or a FanOut.
type Transfer interface {
	// Total is the amount of uSTX the transfer moves.
	Total() *big.Int
	isTransfer()
}

// DirectTransfer pays one recipient with a native token-transfer.
type DirectTransfer struct {
	Recipient Recipient
}

func (t DirectTransfer) Total() *big.Int { return t.Recipient.mustValue() }
func (DirectTransfer) isTransfer()       {}

// FanOut pays every recipient through one call to a send-many contract.
type FanOut struct {
	Recipients RecipientSet
	Contract   ContractID
}

func (t FanOut) Total() *big.Int { return t.Recipients.Total() }
func (FanOut) isTransfer()       {}

// SelectTransfer picks a direct transfer only when allowSingle is set and the
// set holds exactly one recipient. Everything else is a fan-out, including a
// single recipient without the opt-in.
func SelectTransfer(s RecipientSet, allowSingle bool, contract ContractID) Transfer {
	if allowSingle && len(s) == 1 {
		return DirectTransfer{Recipient: s[0]}
	}
	return FanOut{Recipients: s, Contract: contract}
}

// BuildContext carries the per-call parameters of a build.
type BuildContext struct {
	Network Network
	// SenderKey is only handed to the Signer.
	SenderKey string
	// Nonce is nil to let the signer resolve the account nonce.
	Nonce *big.Int
	// FeeMultiplier is nil for the signer's default fee policy; otherwise a
	// percentage added to the estimated fee.
	FeeMultiplier *uint64
	// Contract is the fan-out contract; used by BuildFanOutTransfer.
	Contract ContractID
	// WithMemo binds recipient memos into the transaction.
	WithMemo bool
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithNonceResolver sets how BuildBatch resolves a starting nonce when the
// context has none.
func WithNonceResolver(r NonceResolver) Option {
	return func(a *Assembler) {
		a.nonces = r
	}
}

// WithBatchConcurrency limits how many builds BuildBatch runs at once.
func WithBatchConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// Assembler turns transfers into signed transactions.
type Assembler struct {
	signer      Signer
	estimator   FeeEstimator
	nonces      NonceResolver
	logger      *zap.Logger
	concurrency int
}

// NewAssembler returns an Assembler. estimator may be nil when no build
// will request a fee multiplier.
func NewAssembler(signer Signer, estimator FeeEstimator, opts ...Option) *Assembler {
	a := &Assembler{
		signer:      signer,
		estimator:   estimator,
		logger:      zap.NewNop(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildDirectTransfer builds a native token-transfer to r.
func (a *Assembler) BuildDirectTransfer(ctx context.Context, r Recipient, bctx BuildContext) (*SignedTransaction, error) {
	return a.Build(ctx, DirectTransfer{Recipient: r}, bctx)
}

// BuildFanOutTransfer builds one send-many contract call paying every
// recipient in s, using bctx.Contract.
func (a *Assembler) BuildFanOutTransfer(ctx context.Context, s RecipientSet, bctx BuildContext) (*SignedTransaction, error) {
	return a.Build(ctx, FanOut{Recipients: s, Contract: bctx.Contract}, bctx)
}

// Build validates t, assembles the signer request and signs it. When a fee
// multiplier is set the transaction is built twice: once with the default
// fee as a template for the estimator, and again with the bumped estimate.
func (a *Assembler) Build(ctx context.Context, t Transfer, bctx BuildContext) (*SignedTransaction, error) {
	req, err := a.request(t, bctx)
	if err != nil {
		return nil, err
	}

	logger := a.logger.With(
		zap.String("kind", req.Payload.Kind().String()),
		zap.String("total", t.Total().String()),
	)

	if bctx.FeeMultiplier == nil {
		return a.sign(ctx, logger, req)
	}

	fee, err := a.estimate(ctx, logger, req)
	if err != nil {
		return nil, err
	}
	req.Fee = BumpFee(fee, *bctx.FeeMultiplier)
	logger.Debug("fee bumped",
		zap.String("estimated", fee.String()),
		zap.Uint64("multiplier", *bctx.FeeMultiplier),
		zap.String("fee", req.Fee.String()),
	)

	return a.sign(ctx, logger, req)
}

func (a *Assembler) estimate(ctx context.Context, logger *zap.Logger, req *Request) (*big.Int, error) {
	if a.estimator == nil {
		return nil, NewError(KindFeeEstimation, nil, "fee multiplier requested but no fee estimator is configured")
	}

	template, err := a.sign(ctx, logger, req)
	if err != nil {
		return nil, err
	}

	fee, err := a.estimator.EstimateFee(ctx, template)
	if err != nil {
		return nil, wrapError(KindFeeEstimation, err, "estimate fee")
	}
	if fee == nil || fee.Sign() < 0 {
		return nil, NewError(KindFeeEstimation, nil, "estimator returned unusable fee %v", fee)
	}
	return fee, nil
}

func (a *Assembler) sign(ctx context.Context, logger *zap.Logger, req *Request) (*SignedTransaction, error) {
	tx, err := a.signer.Sign(ctx, req)
	if err != nil {
		return nil, wrapError(KindSigning, err, "sign %s", req.Payload.Kind())
	}
	logger.Debug("transaction signed",
		zap.String("txid", tx.TxID),
		zap.Stringer("fee", tx.Fee),
		zap.Stringer("nonce", tx.Nonce),
	)
	return tx, nil
}

func (a *Assembler) request(t Transfer, bctx BuildContext) (*Request, error) {
	req := &Request{
		Network:   bctx.Network,
		SenderKey: bctx.SenderKey,
	}
	if bctx.Nonce != nil {
		if bctx.Nonce.Sign() < 0 {
			return nil, NewError(KindSigning, nil, "negative nonce %s", bctx.Nonce)
		}
		req.Nonce = new(big.Int).Set(bctx.Nonce)
	}

	switch t := t.(type) {
	case DirectTransfer:
		amount, err := t.Recipient.Value()
		if err != nil {
			return nil, err
		}
		if _, err := clarity.Principal(t.Recipient.Address); err != nil {
			return nil, NewError(KindInvalidAddress, err, "recipient %q", t.Recipient.Address)
		}
		p := TokenTransferPayload{Recipient: t.Recipient.Address, Amount: amount}
		if bctx.WithMemo {
			if err := t.Recipient.checkMemo(); err != nil {
				return nil, err
			}
			p.Memo = []byte(t.Recipient.Memo)
		}
		req.Payload = p
		req.PostConditionMode = PostConditionModeDeny

	case FanOut:
		if err := t.Recipients.Validate(); err != nil {
			return nil, err
		}
		if t.Contract.IsZero() {
			return nil, ErrMissingContract
		}
		args, err := fanOutArgs(t.Recipients, bctx.WithMemo)
		if err != nil {
			return nil, err
		}
		req.Payload = ContractCallPayload{
			Contract: t.Contract,
			Function: FanOutFunction,
			Args:     []clarity.Value{args},
		}
		req.PostConditions = aggregatePostConditions(t.Recipients)
		req.PostConditionMode = PostConditionModeDeny
		if req.PostConditions[0].Amount.Sign() == 0 {
			a.logger.Warn("fan-out moves zero uSTX; post-condition asserts nothing is sent",
				zap.Int("recipients", len(t.Recipients)))
		}

	default:
		return nil, NewError(KindSigning, nil, "unsupported transfer %T", t)
	}

	return req, nil
}

// fanOutArgs builds the send-many argument: a list of {to, ustx} tuples,
// each with a memo buffer of at most MaxMemoLength bytes when withMemo is set.
func fanOutArgs(s RecipientSet, withMemo bool) (clarity.List, error) {
	list := make(clarity.List, 0, len(s))
	for i, r := range s {
		to, err := clarity.Principal(r.Address)
		if err != nil {
			return nil, NewError(KindInvalidAddress, err, "recipient %d: %q", i, r.Address)
		}
		ustx, err := clarity.NewUInt(r.mustValue())
		if err != nil {
			return nil, NewError(KindInvalidAmount, err, "recipient %d: %s", i, r.Amount)
		}
		tuple := clarity.Tuple{"to": to, "ustx": ustx}
		if withMemo {
			if err := r.checkMemo(); err != nil {
				return nil, err
			}
			tuple["memo"] = clarity.Buffer(r.Memo)
		}
		list = append(list, tuple)
	}
	return list, nil
}
