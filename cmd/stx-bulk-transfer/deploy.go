package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gstohl/stxbulk"
	"github.com/gstohl/stxbulk/network"
)

func (a *app) deployContractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy-contract send-many|send-many-memo|memo-expected",
		Short: "Deploy one of the bulk transfer contracts",
		Long: `Deploy send-many, send-many-memo or memo-expected on the address of the
provided private key.

memo-expected is an empty contract. When it is deployed on a principal,
send-many-memo and send-many-memo-safe refuse to pay that principal without
a memo.`,
		Example: "  stx-bulk-transfer deploy-contract memo-expected -k KEY -n testnet -b",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("no contract specified, try --help")
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDeploy(cmd, args[0])
		},
	}
	addTxFlags(cmd)
	cmd.Flags().BoolP("json", "j", false, "Print output as JSON")
	return cmd
}

func (a *app) setMemoExpectedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-memo-expected",
		Short: "Require a memo for transfers to your address",
		Long: `Deploy the empty memo-expected contract on the address of the provided
private key. send-many-memo and send-many-memo-safe check for it.`,
		Example: "  stx-bulk-transfer set-memo-expected -k KEY -n testnet -b",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDeploy(cmd, network.MemoExpectedContract)
		},
	}
	addTxFlags(cmd)
	cmd.Flags().BoolP("json", "j", false, "Print output as JSON")
	return cmd
}

func (a *app) runDeploy(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()
	code, err := contractSource(name)
	if err != nil {
		return err
	}
	cfg, err := a.loadTxConfig(cmd)
	if err != nil {
		return err
	}

	client := network.NewClient(cfg.profile.APIURL(), network.WithLogger(a.logger))
	tx, err := newSigner(client, a.logger).Sign(ctx, &stxbulk.Request{
		Network:           cfg.profile,
		Payload:           stxbulk.SmartContractPayload{Name: name, Code: code},
		PostConditionMode: stxbulk.PostConditionModeDeny,
		SenderKey:         cfg.privateKey,
		Nonce:             cfg.nonce,
	})
	if err != nil {
		return stxbulk.NewError(stxbulk.KindSigning, err, "sign %s deploy", name)
	}
	a.logger.Debug("contract deploy signed", zap.String("contract", name), zap.String("txid", tx.TxID))

	r := newTxReport(tx, tx.Sender+"."+name)
	r.contractLabel = "Contract address"

	failed := false
	if cfg.broadcast {
		failed = a.broadcastAll(ctx, client, cfg.profile, []*stxbulk.SignedTransaction{tx}, []*txReport{r})
	}
	pr := &printer{out: a.out, json: cfg.json, quiet: cfg.quiet}
	if err := pr.print([]*txReport{r}); err != nil {
		return err
	}
	if failed {
		return &exitError{code: 1}
	}
	return nil
}
