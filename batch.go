package stxbulk

import (
	"context"
	"math/big"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BuildBatch builds one fan-out per chunk, assigning consecutive nonces from
// a single base so every transaction can be broadcast back to back. The base
// is bctx.Nonce, or the NonceResolver's answer when that is nil. Results keep
// the order of sets. The first failure cancels the remaining builds.
func (a *Assembler) BuildBatch(ctx context.Context, sets []RecipientSet, bctx BuildContext) ([]*SignedTransaction, error) {
	if len(sets) == 0 {
		return nil, ErrEmptyRecipientSet
	}
	for _, s := range sets {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	base, err := a.baseNonce(ctx, bctx)
	if err != nil {
		return nil, err
	}

	out := make([]*SignedTransaction, len(sets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, s := range sets {
		i, s := i, s
		c := bctx
		c.Nonce = new(big.Int).Add(base, big.NewInt(int64(i)))
		g.Go(func() error {
			tx, err := a.Build(gctx, FanOut{Recipients: s, Contract: bctx.Contract}, c)
			if err != nil {
				return err
			}
			out[i] = tx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Debug("batch built",
		zap.Int("transactions", len(out)),
		zap.Stringer("first_nonce", base),
	)
	return out, nil
}

func (a *Assembler) baseNonce(ctx context.Context, bctx BuildContext) (*big.Int, error) {
	if bctx.Nonce != nil {
		if bctx.Nonce.Sign() < 0 {
			return nil, NewError(KindSigning, nil, "negative nonce %s", bctx.Nonce)
		}
		return bctx.Nonce, nil
	}
	if a.nonces == nil {
		return nil, NewError(KindSigning, nil, "no nonce given and no nonce resolver configured")
	}
	n, err := a.nonces.NextNonce(ctx, bctx.SenderKey, bctx.Network)
	if err != nil {
		return nil, wrapError(KindNetwork, err, "resolve nonce")
	}
	if n == nil || n.Sign() < 0 {
		return nil, NewError(KindNetwork, nil, "nonce resolver returned unusable nonce %v", n)
	}
	return n, nil
}
