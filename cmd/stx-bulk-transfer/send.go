package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gstohl/stxbulk"
	"github.com/gstohl/stxbulk/c32"
	"github.com/gstohl/stxbulk/network"
	"github.com/gstohl/stxbulk/stacks"
)

// memoCheck decides whether memo-less recipients are checked for the
// memo-expected contract before signing.
type memoCheck int

const (
	memoCheckNone memoCheck = iota
	memoCheckFlag
	memoCheckAlways
)

// sendMode is what distinguishes the three send commands.
type sendMode struct {
	contracts stxbulk.ContractTable
	withMemo  bool
	memoCheck memoCheck
	// safeFailure prints a JSON failure object when memos are missing.
	safeFailure bool
}

func (a *app) sendManyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send-many ADDRESS,AMOUNT...",
		Short: "Execute a bulk STX transfer",
		Long: `Execute a bulk STX transfer in a single transaction by calling the
"send-many" contract. Amounts are in uSTX.

Default contracts:
  testnet: ST3F1X4QGV2SM8XD96X45M6RTQXKA1PZJZZCQAB4B.send-many
  mainnet: SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE.send-many`,
		Example: "  stx-bulk-transfer send-many STADMRP577SC3MCNP7T3PRSTZBJ75FJ59JGABZTW,100 ST2WPFYAW85A0YK9ACJR8JGWPM19VWYF90J8P5ZTH,50 -k KEY -n testnet -b",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSend(cmd, args, sendMode{contracts: stxbulk.DefaultSendManyContracts()})
		},
	}
	addTxFlags(cmd)
	addSendFlags(cmd)
	cmd.Flags().Uint64P("fee-multiplier", "m", 0, "Add this percentage to the estimated fee")
	cmd.Flags().BoolP("allow-single-stx-transfer", "a", false, "Use a plain STX transfer instead of a contract call when there is exactly one recipient")
	return cmd
}

func (a *app) sendManyMemoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send-many-memo ADDRESS,AMOUNT,MEMO...",
		Short: "Execute a bulk STX transfer with memos attached",
		Long: `Execute a bulk STX transfer with memos attached, in a single transaction
calling the "send-many-memo" contract. A memo is at most 34 bytes.

Unless disabled, recipients without a memo are checked for a deployed
"memo-expected" contract first, and the transfer is aborted if any has one.`,
		Example: "  stx-bulk-transfer send-many-memo STADMRP577SC3MCNP7T3PRSTZBJ75FJ59JGABZTW,100,hello ST2WPFYAW85A0YK9ACJR8JGWPM19VWYF90J8P5ZTH,50,memo2 -k KEY -b",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSend(cmd, args, sendMode{
				contracts: stxbulk.DefaultSendManyMemoContracts(),
				withMemo:  true,
				memoCheck: memoCheckFlag,
			})
		},
	}
	addTxFlags(cmd)
	addSendFlags(cmd)
	cmd.Flags().BoolP("check-memo-expected", "m", true, "Check whether recipients without a memo expect one")
	cmd.Flags().Uint64("fee-multiplier", 0, "Add this percentage to the estimated fee")
	return cmd
}

func (a *app) sendManyMemoSafeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send-many-memo-safe ADDRESS,AMOUNT[,MEMO]...",
		Short: "Execute a bulk STX transfer with memos, refusing recipients that expect one",
		Long: `Like send-many-memo, but the memo-expected check always runs. With --json a
refusal is printed as {"success":false,"memoExpectedRecipients":[...]}.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSend(cmd, args, sendMode{
				contracts:   stxbulk.DefaultSendManyMemoContracts(),
				withMemo:    true,
				memoCheck:   memoCheckAlways,
				safeFailure: true,
			})
		},
	}
	addTxFlags(cmd)
	addSendFlags(cmd)
	cmd.Flags().Uint64P("fee-multiplier", "m", 0, "Add this percentage to the estimated fee")
	cmd.Flags().BoolP("allow-single-stx-transfer", "a", false, "Use a plain STX transfer instead of a contract call when there is exactly one recipient")
	return cmd
}

func addSendFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("contract-address", "c", "", "Contract to call as ADDRESS.NAME; required on mocknet and devnet")
	f.BoolP("json", "j", false, "Print output as JSON")
	f.String("file", "", "Read additional recipients from a file, one per line")
	f.Int("chunk-size", 0, "Split recipients into transactions of at most this many, with consecutive nonces (the deployed contracts take up to 200)")
}

func (a *app) runSend(cmd *cobra.Command, args []string, mode sendMode) error {
	ctx := cmd.Context()
	cfg, err := a.loadTxConfig(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()

	file, _ := f.GetString("file")
	set, err := readRecipients(args, file, mode.withMemo)
	if err != nil {
		return err
	}

	client := network.NewClient(cfg.profile.APIURL(), network.WithLogger(a.logger))
	pr := &printer{out: a.out, json: cfg.json, quiet: cfg.quiet}

	check := mode.memoCheck == memoCheckAlways
	if mode.memoCheck == memoCheckFlag {
		check, _ = f.GetBool("check-memo-expected")
	}
	if check {
		expected, err := network.MemoExpected(ctx, client, set)
		if err != nil {
			return err
		}
		if len(expected) > 0 {
			if mode.safeFailure && cfg.json {
				if err := pr.writeJSON(map[string]any{"success": false, "memoExpectedRecipients": expected}); err != nil {
					return err
				}
				return &exitError{code: 1}
			}
			return stxbulk.NewError(stxbulk.KindMemoExpected, nil, "Memo expected for: %s", strings.Join(expected, ", "))
		}
	}

	override, _ := f.GetString("contract-address")
	contract, err := mode.contracts.Resolve(cfg.profile.Name(), override)
	if err != nil {
		return err
	}

	signer := newSigner(client, a.logger)
	assembler := stxbulk.NewAssembler(signer, client,
		stxbulk.WithLogger(a.logger),
		stxbulk.WithNonceResolver(signer),
	)
	bctx := stxbulk.BuildContext{
		Network:       cfg.profile,
		SenderKey:     cfg.privateKey,
		Nonce:         cfg.nonce,
		FeeMultiplier: cfg.feeMultiplier,
		Contract:      contract,
		WithMemo:      mode.withMemo,
	}

	var allowSingle bool
	if f.Lookup("allow-single-stx-transfer") != nil {
		allowSingle, _ = f.GetBool("allow-single-stx-transfer")
	}
	chunkSize, _ := f.GetInt("chunk-size")
	chunks := stxbulk.Chunk(set, chunkSize)

	var (
		txs       []*stxbulk.SignedTransaction
		transfers []stxbulk.Transfer
	)
	if len(chunks) == 1 {
		t := stxbulk.SelectTransfer(set, allowSingle, contract)
		tx, err := assembler.Build(ctx, t, bctx)
		if err != nil {
			return err
		}
		txs, transfers = []*stxbulk.SignedTransaction{tx}, []stxbulk.Transfer{t}
	} else {
		a.logger.Info("splitting recipients", zap.Int("recipients", len(set)), zap.Int("transactions", len(chunks)))
		if txs, err = assembler.BuildBatch(ctx, chunks, bctx); err != nil {
			return err
		}
		for _, c := range chunks {
			transfers = append(transfers, stxbulk.FanOut{Recipients: c, Contract: contract})
		}
	}

	reports := make([]*txReport, len(txs))
	for i, tx := range txs {
		r := newTxReport(tx, contract.String())
		r.listRecipients = mode.withMemo
		r.setRecipients(recipientsOf(transfers[i]))
		r.setTotal(reportedTotal(tx, transfers[i]))
		if allowSingle {
			direct := tx.Kind == stxbulk.PayloadTokenTransfer
			r.IsSTXTransfer = &direct
		}
		reports[i] = r
	}

	failed := false
	if cfg.broadcast {
		failed = a.broadcastAll(ctx, client, cfg.profile, txs, reports)
	}
	if err := pr.print(reports); err != nil {
		return err
	}
	if failed {
		return &exitError{code: 1}
	}
	return nil
}

// broadcastAll submits txs in nonce order and stops at the first rejection.
// It reports whether a broadcast failed.
func (a *app) broadcastAll(ctx context.Context, client *network.Client, profile network.Profile, txs []*stxbulk.SignedTransaction, reports []*txReport) bool {
	for i, tx := range txs {
		txid, err := client.Broadcast(ctx, tx.Raw)
		if err != nil {
			a.logger.Warn("broadcast failed", zap.String("txid", tx.TxID), zap.Error(err))
			reports[i].setRejected(err)
			return true
		}
		reports[i].setBroadcast(txid, profile.ExplorerURL(txid))
	}
	return false
}

func newSigner(client *network.Client, logger *zap.Logger) *stacks.Signer {
	return stacks.NewSigner(
		stacks.WithNonceSource(client),
		stacks.WithFeeEstimator(client),
		stacks.WithFeeRateSource(client),
		stacks.WithLogger(logger),
	)
}

// reportedTotal is the amount the post-condition guarantees, or the transfer
// amount when the transaction carries none.
func reportedTotal(tx *stxbulk.SignedTransaction, t stxbulk.Transfer) *big.Int {
	if len(tx.PostConditions) > 0 {
		return tx.PostConditions[0].Amount
	}
	return t.Total()
}

func recipientsOf(t stxbulk.Transfer) stxbulk.RecipientSet {
	switch t := t.(type) {
	case stxbulk.DirectTransfer:
		return stxbulk.RecipientSet{t.Recipient}
	case stxbulk.FanOut:
		return t.Recipients
	}
	return nil
}

// readRecipients parses recipients from args followed by the lines of file.
// Blank lines and lines starting with '#' are skipped.
func readRecipients(args []string, file string, withMemo bool) (stxbulk.RecipientSet, error) {
	entries := append([]string(nil), args...)
	if file != "" {
		lines, err := readLines(file)
		if err != nil {
			return nil, err
		}
		entries = append(entries, lines...)
	}

	set := make(stxbulk.RecipientSet, 0, len(entries))
	for _, entry := range entries {
		r, err := stxbulk.ParseRecipient(entry)
		if err != nil {
			return nil, err
		}
		if !c32.ValidAddress(r.Address) {
			return nil, stxbulk.NewError(stxbulk.KindInvalidAddress, nil, "%s is not a valid STX address", r.Address)
		}
		if !withMemo {
			r.Memo = ""
		} else if len(r.Memo) > stxbulk.MaxMemoLength {
			return nil, stxbulk.NewError(stxbulk.KindInvalidMemo, nil, "memo for %s is %d bytes, at most %d allowed", r.Address, len(r.Memo), stxbulk.MaxMemoLength)
		}
		set = append(set, r)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipients file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read recipients file: %w", err)
	}
	return lines, nil
}

func asBroadcastError(err error) *network.BroadcastError {
	var rejection *network.BroadcastError
	if errors.As(err, &rejection) {
		return rejection
	}
	return nil
}
