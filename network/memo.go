package network

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/gstohl/stxbulk"
)

// MemoExpectedContract is the contract a recipient deploys to refuse
// transfers without a memo.
const MemoExpectedContract = "memo-expected"

const memoProbeLimit = 8

// ContractProber checks whether a contract is deployed.
type ContractProber interface {
	ContractExists(ctx context.Context, address, name string) (bool, error)
}

// MemoExpected returns the recipients without a memo whose address has the
// memo-expected contract deployed. Each address is probed once and appears
// once, in input order. A failed probe fails the whole check.
func MemoExpected(ctx context.Context, prober ContractProber, recipients stxbulk.RecipientSet) ([]string, error) {
	var addrs []string
	seen := make(map[string]bool)
	for _, r := range recipients {
		if r.Memo != "" || seen[r.Address] {
			continue
		}
		seen[r.Address] = true
		addrs = append(addrs, r.Address)
	}
	if len(addrs) == 0 {
		return nil, nil
	}

	expected := make([]bool, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(memoProbeLimit)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			ok, err := prober.ContractExists(gctx, addr, MemoExpectedContract)
			if err != nil {
				return stxbulk.NewError(stxbulk.KindNetwork, err, "check %s for %s", MemoExpectedContract, addr)
			}
			expected[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for i, addr := range addrs {
		if expected[i] {
			out = append(out, addr)
		}
	}
	return out, nil
}
