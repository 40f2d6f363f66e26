package stxbulk

import (
	"strings"

	"github.com/gstohl/stxbulk/c32"
)

// FanOutFunction is the public function of the send-many contracts.
const FanOutFunction = "send-many"

// ContractID identifies a deployed contract as address.name.
type ContractID struct {
	Address string
	Name    string
}

// ParseContractID parses "address.name".
func ParseContractID(s string) (ContractID, error) {
	addr, name, ok := strings.Cut(s, ".")
	if !ok || addr == "" || name == "" {
		return ContractID{}, NewError(KindInvalidContract, nil, "%q: expected address.name", s)
	}
	if !c32.ValidAddress(addr) {
		return ContractID{}, NewError(KindInvalidContract, nil, "%q is not a valid STX address", addr)
	}
	return ContractID{Address: addr, Name: name}, nil
}

// IsZero reports whether the contract is unset.
func (c ContractID) IsZero() bool {
	return c.Address == "" && c.Name == ""
}

func (c ContractID) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Address + "." + c.Name
}

// ContractTable maps network names to default contract coordinates.
type ContractTable map[string]ContractID

// DefaultSendManyContracts returns the public send-many deployments.
func DefaultSendManyContracts() ContractTable {
	return ContractTable{
		"mainnet": {Address: "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE", Name: "send-many"},
		"testnet": {Address: "ST3F1X4QGV2SM8XD96X45M6RTQXKA1PZJZZCQAB4B", Name: "send-many"},
	}
}

// DefaultSendManyMemoContracts returns the public send-many-memo deployments.
func DefaultSendManyMemoContracts() ContractTable {
	return ContractTable{
		"mainnet": {Address: "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE", Name: "send-many-memo"},
		"testnet": {Address: "ST3F1X4QGV2SM8XD96X45M6RTQXKA1PZJZZCQAB4B", Name: "send-many-memo"},
	}
}

// Resolve returns override when it is set, otherwise the default for network.
// Networks without a default (mocknet) require an override.
func (t ContractTable) Resolve(network string, override string) (ContractID, error) {
	if override != "" {
		return ParseContractID(override)
	}
	c, ok := t[network]
	if !ok {
		return ContractID{}, NewError(KindMissingContract, nil, "must manually specify contract address for %s", network)
	}
	return c, nil
}
