package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gstohl/stxbulk/c32"
	"github.com/gstohl/stxbulk/network"
)

// Exit codes of validate-address.
const (
	exitWrongNetwork = 1
	exitMalformed    = 2
)

func (a *app) validateAddressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-address ADDRESS",
		Short: "Check that an address is valid for a network",
		Long: `Print 1 if ADDRESS is a valid STX address for the network, 0 otherwise.

Exit codes: 0 valid, 1 valid address with the wrong network version,
2 malformed address.`,
		Example: "  stx-bulk-transfer validate-address SP000000000000000000002Q6VF78 -n mainnet",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("no address specified, try --help")
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: a.runValidateAddress,
	}
	cmd.Flags().StringP("network", "n", "mainnet", "Network to check against")
	cmd.Flags().BoolP("verbose", "v", false, "Print why an address is invalid")
	return cmd
}

func (a *app) runValidateAddress(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("network")
	verbose, _ := cmd.Flags().GetBool("verbose")
	profile, err := network.Lookup(name, "")
	if err != nil {
		return err
	}
	p2pkh, p2sh := profile.AddressVersions()

	version, _, err := c32.DecodeAddress(args[0])
	if err != nil {
		fmt.Fprintln(a.out, "0")
		if verbose {
			fmt.Fprintln(a.out, "Error:", err)
		}
		return &exitError{code: exitMalformed}
	}
	if version != p2pkh && version != p2sh {
		fmt.Fprintln(a.out, "0")
		if verbose {
			fmt.Fprintf(a.out, "Valid address but incorrect network version (address version: %d, expected: %d or %d)\n", version, p2pkh, p2sh)
		}
		return &exitError{code: exitWrongNetwork}
	}
	fmt.Fprintln(a.out, "1")
	return nil
}
