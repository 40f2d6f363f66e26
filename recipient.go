package stxbulk

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxMemoLength is the largest memo in bytes, both for the token-transfer
// memo field and the (buff 34) of the send-many-memo contract.
const MaxMemoLength = 34

// Recipient is a single transfer instruction.
type Recipient struct {
	// Address is a c32 STX address
	Address string

	// Amount to send in uSTX, as a canonical base-10 string
	Amount string

	// Optional memo. Empty and missing are the same thing.
	Memo string
}

// IsValidAmountString reports whether s is a non-negative integer in
// canonical base-10 form: digits only, no sign, no fraction, no leading zeros
// except for "0" itself. There is no upper bound.
func IsValidAmountString(s string) bool {
	if s == "" {
		return false
	}
	if s == "0" {
		return true
	}
	if s[0] < '1' || s[0] > '9' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NewRecipient creates a Recipient, rejecting amounts that are not canonical
// non-negative integers.
func NewRecipient(address, amount, memo string) (Recipient, error) {
	r := Recipient{Address: address, Amount: amount, Memo: memo}
	if err := r.Validate(); err != nil {
		return Recipient{}, err
	}
	return r, nil
}

// ParseRecipient parses "address,amount[,memo]". Everything after the second
// comma is the memo. Only the address is trimmed; the amount must already be
// canonical.
func ParseRecipient(arg string) (Recipient, error) {
	parts := strings.SplitN(arg, ",", 3)
	if len(parts) < 2 {
		return Recipient{}, NewError(KindInvalidAmount, nil, "%q: expected address,amount[,memo]", arg)
	}
	var memo string
	if len(parts) == 3 {
		memo = parts[2]
	}
	return NewRecipient(strings.TrimSpace(parts[0]), parts[1], memo)
}

// Validate checks the amount. Address format is checked by the caller.
func (r Recipient) Validate() error {
	if !IsValidAmountString(r.Amount) {
		return NewError(KindInvalidAmount, nil, "%q is not a valid integer", r.Amount)
	}
	return nil
}

// checkMemo rejects memos that do not fit MaxMemoLength.
func (r Recipient) checkMemo() error {
	if len(r.Memo) > MaxMemoLength {
		return NewError(KindInvalidMemo, nil, "memo for %s is %d bytes, at most %d allowed", r.Address, len(r.Memo), MaxMemoLength)
	}
	return nil
}

// Value returns the amount as an integer.
func (r Recipient) Value() (*big.Int, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	v, _ := new(big.Int).SetString(r.Amount, 10)
	return v, nil
}

func (r Recipient) mustValue() *big.Int {
	v, err := r.Value()
	if err != nil {
		panic(fmt.Sprintf("stxbulk: unvalidated recipient %s: %v", r.Address, err))
	}
	return v
}

// RecipientSet is an ordered, non-empty list of recipients. Order is
// preserved in the contract-call argument list.
type RecipientSet []Recipient

// NewRecipientSet validates recipients and returns them as a set.
func NewRecipientSet(recipients ...Recipient) (RecipientSet, error) {
	s := RecipientSet(recipients)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the set is non-empty and every amount is valid.
func (s RecipientSet) Validate() error {
	if len(s) == 0 {
		return ErrEmptyRecipientSet
	}
	for i, r := range s {
		if !IsValidAmountString(r.Amount) {
			return NewError(KindInvalidAmount, nil, "recipient %d (%s): %q is not a valid integer", i, r.Address, r.Amount)
		}
	}
	return nil
}

// Total returns the sum of all amounts. It panics if the set has not been
// validated, since an invalid amount here is a caller bug.
func (s RecipientSet) Total() *big.Int {
	sum := new(big.Int)
	for _, r := range s {
		sum.Add(sum, r.mustValue())
	}
	return sum
}

// Addresses returns the recipient addresses in order.
func (s RecipientSet) Addresses() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.Address
	}
	return out
}

// Chunk splits s into consecutive sets of at most size recipients.
// A size of zero or less returns s unchanged.
func Chunk(s RecipientSet, size int) []RecipientSet {
	if size <= 0 || len(s) <= size {
		return []RecipientSet{s}
	}
	out := make([]RecipientSet, 0, (len(s)+size-1)/size)
	for start := 0; start < len(s); start += size {
		end := min(start+size, len(s))
		out = append(out, s[start:end:end])
	}
	return out
}
