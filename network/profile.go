// Package network describes the Stacks networks the tool can target and
// talks to their nodes over the HTTP API.
package network

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gstohl/stxbulk/c32"
	"github.com/gstohl/stxbulk/stacks"
)

const explorerURL = "https://explorer.hiro.so/"

// Profile is a named network: chain id and default node.
type Profile struct {
	name    string
	chainID uint32
	apiURL  string
	mocknet bool
}

var profiles = map[string]Profile{
	"mainnet": {name: "mainnet", chainID: stacks.ChainIDMainnet, apiURL: "https://api.mainnet.hiro.so"},
	"testnet": {name: "testnet", chainID: stacks.ChainIDTestnet, apiURL: "https://api.testnet.hiro.so"},
	"mocknet": {name: "mocknet", chainID: stacks.ChainIDTestnet, apiURL: "http://localhost:3999", mocknet: true},
	"devnet":  {name: "devnet", chainID: stacks.ChainIDTestnet, apiURL: "http://localhost:3999", mocknet: true},
}

// Names returns the known network names, sorted.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the profile for name. A non-empty nodeURL replaces the
// default node.
func Lookup(name, nodeURL string) (Profile, error) {
	p, ok := profiles[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("unknown network %q, expected one of %s", name, strings.Join(Names(), ", "))
	}
	if nodeURL != "" {
		p = p.WithAPIURL(nodeURL)
	}
	return p, nil
}

func (p Profile) Name() string    { return p.name }
func (p Profile) ChainID() uint32 { return p.chainID }
func (p Profile) APIURL() string  { return p.apiURL }

// IsMainnet reports whether the profile targets mainnet.
func (p Profile) IsMainnet() bool { return p.chainID == stacks.ChainIDMainnet }

// IsMocknet reports whether the profile is a local development chain.
func (p Profile) IsMocknet() bool { return p.mocknet }

// AddressVersions returns the single-sig and multi-sig address versions.
func (p Profile) AddressVersions() (p2pkh, p2sh byte) {
	if p.IsMainnet() {
		return c32.MainnetP2PKH, c32.MainnetP2SH
	}
	return c32.TestnetP2PKH, c32.TestnetP2SH
}

// WithAPIURL returns a copy of p that talks to url.
func (p Profile) WithAPIURL(url string) Profile {
	p.apiURL = strings.TrimRight(url, "/")
	return p
}

// ExplorerURL links to txid in the public explorer. Local chains have no
// explorer and get an empty string.
func (p Profile) ExplorerURL(txid string) string {
	if p.mocknet {
		return ""
	}
	chain := "testnet"
	if p.IsMainnet() {
		chain = "mainnet"
	}
	return fmt.Sprintf("%stxid/0x%s?chain=%s", explorerURL, strings.TrimPrefix(txid, "0x"), chain)
}
