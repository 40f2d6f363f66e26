package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/gstohl/stxbulk/network"
)

// boundFlags are read through viper so the environment can supply them.
var boundFlags = []string{"private-key", "network", "node-url"}

// txConfig is the configuration shared by every command that signs.
type txConfig struct {
	privateKey string
	profile    network.Profile
	broadcast  bool
	quiet      bool
	json       bool
	// nonce is nil unless --nonce was given.
	nonce *big.Int
	// feeMultiplier is nil unless --fee-multiplier was given.
	feeMultiplier *uint64
}

func addTxFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("private-key", "k", "", "Your private key (or STX_BULK_PRIVATE_KEY)")
	f.BoolP("broadcast", "b", false, "Broadcast the transaction. Without this flag nothing is sent to the network")
	f.StringP("network", "n", "testnet", "Network to build for: mainnet, testnet, mocknet or devnet")
	f.StringP("node-url", "u", "", "Override the default node URL of the network")
	f.BoolP("quiet", "q", false, "Only print the transaction ID when broadcasting, or the raw transaction hex otherwise")
	f.Uint64("nonce", 0, "Use this nonce instead of asking the node")
}

func (a *app) loadTxConfig(cmd *cobra.Command) (*txConfig, error) {
	for _, name := range boundFlags {
		if err := a.v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	cfg := &txConfig{privateKey: a.v.GetString("private-key")}
	if cfg.privateKey == "" {
		return nil, errors.New("missing private key: pass --private-key or set " + envPrefix + "_PRIVATE_KEY")
	}

	profile, err := network.Lookup(a.v.GetString("network"), a.v.GetString("node-url"))
	if err != nil {
		return nil, err
	}
	cfg.profile = profile

	f := cmd.Flags()
	cfg.broadcast, _ = f.GetBool("broadcast")
	cfg.quiet, _ = f.GetBool("quiet")
	if f.Lookup("json") != nil {
		cfg.json, _ = f.GetBool("json")
	}

	if f.Changed("nonce") {
		n, _ := f.GetUint64("nonce")
		cfg.nonce = new(big.Int).SetUint64(n)
	}
	if f.Lookup("fee-multiplier") != nil && f.Changed("fee-multiplier") {
		m, _ := f.GetUint64("fee-multiplier")
		cfg.feeMultiplier = &m
	}
	return cfg, nil
}
