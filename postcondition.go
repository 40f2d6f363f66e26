package stxbulk

import (
	"fmt"
	"math/big"
)

// PostConditionMode decides what happens to asset movements that no
// post-condition covers.
type PostConditionMode byte

const (
	// PostConditionModeAllow permits uncovered transfers.
	PostConditionModeAllow PostConditionMode = 0x01
	// PostConditionModeDeny aborts the transaction on any uncovered transfer.
	PostConditionModeDeny PostConditionMode = 0x02
)

func (m PostConditionMode) String() string {
	switch m {
	case PostConditionModeAllow:
		return "allow"
	case PostConditionModeDeny:
		return "deny"
	default:
		return fmt.Sprintf("unknown(%d)", byte(m))
	}
}

// ConditionCode compares the amount actually sent with the declared amount.
type ConditionCode byte

const (
	SentEqual ConditionCode = iota + 1
	SentGreater
	SentGreaterEqual
	SentLess
	SentLessEqual
)

func (c ConditionCode) String() string {
	switch c {
	case SentEqual:
		return "exactly"
	case SentGreater:
		return "more than"
	case SentGreaterEqual:
		return "at least"
	case SentLess:
		return "less than"
	case SentLessEqual:
		return "at most"
	default:
		return fmt.Sprintf("unknown(%d)", byte(c))
	}
}

// PostCondition is an STX spend guarantee bound into a transaction.
type PostCondition struct {
	// Principal is the sending account; empty means the transaction origin.
	Principal string
	Code      ConditionCode
	Amount    *big.Int
}

// OriginSendsExactly returns the guarantee that the transaction origin sends
// exactly amount uSTX.
func OriginSendsExactly(amount *big.Int) PostCondition {
	return PostCondition{Code: SentEqual, Amount: new(big.Int).Set(amount)}
}

// IsOrigin reports whether the condition is scoped to the origin account.
func (p PostCondition) IsOrigin() bool {
	return p.Principal == ""
}

func (p PostCondition) String() string {
	who := p.Principal
	if p.IsOrigin() {
		who = "origin"
	}
	return fmt.Sprintf("%s sends %s %s uSTX", who, p.Code, p.Amount)
}

// aggregatePostConditions returns the single origin-scoped guarantee for a
// fan-out over s.
func aggregatePostConditions(s RecipientSet) []PostCondition {
	return []PostCondition{OriginSendsExactly(s.Total())}
}
