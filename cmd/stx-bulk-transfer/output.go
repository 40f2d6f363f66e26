package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/gstohl/stxbulk"
)

// microSTXExponent converts uSTX to STX.
const microSTXExponent = -6

type recipientReport struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Memo    string `json:"memo"`
}

// txReport is what gets printed about one signed transaction.
type txReport struct {
	Recipients     []recipientReport `json:"recipients,omitempty"`
	Fee            string            `json:"fee"`
	Nonce          string            `json:"nonce"`
	Contract       string            `json:"contract"`
	Sender         string            `json:"sender"`
	TotalAmount    string            `json:"totalAmount,omitempty"`
	TotalSTX       string            `json:"totalStx,omitempty"`
	TransactionHex string            `json:"transactionHex"`
	IsSTXTransfer  *bool             `json:"isStxTransferTxType,omitempty"`
	Success        *bool             `json:"success,omitempty"`
	TransactionID  string            `json:"transactionId,omitempty"`
	ExplorerLink   string            `json:"explorerLink,omitempty"`
	Error          string            `json:"error,omitempty"`

	// listRecipients prints the recipient block in text mode.
	listRecipients bool
	// contractLabel is the text label of Contract.
	contractLabel string
}

func newTxReport(tx *stxbulk.SignedTransaction, contract string) *txReport {
	return &txReport{
		Fee:            tx.Fee.String(),
		Nonce:          tx.Nonce.String(),
		Contract:       contract,
		Sender:         tx.Sender,
		TransactionHex: tx.Hex(),
		contractLabel:  "Contract",
	}
}

func (r *txReport) setRecipients(s stxbulk.RecipientSet) {
	r.Recipients = make([]recipientReport, len(s))
	for i, rc := range s {
		r.Recipients[i] = recipientReport{Address: rc.Address, Amount: rc.Amount, Memo: rc.Memo}
	}
}

func (r *txReport) setTotal(total *big.Int) {
	r.TotalAmount = total.String()
	r.TotalSTX = decimal.NewFromBigInt(total, microSTXExponent).String()
}

func (r *txReport) setBroadcast(txid, explorer string) {
	ok := true
	r.Success = &ok
	r.TransactionID = txid
	r.ExplorerLink = explorer
}

func (r *txReport) setRejected(err error) {
	failed := false
	r.Success = &failed
	r.Error = rejectionText(err)
}

// printer writes reports in the selected format.
type printer struct {
	out   io.Writer
	json  bool
	quiet bool
}

// print writes reports. Quiet mode writes only the txid after a broadcast and
// only the raw hex otherwise.
func (p *printer) print(reports []*txReport) error {
	if p.quiet {
		return p.printQuiet(reports)
	}
	if p.json {
		var v any = reports
		if len(reports) == 1 {
			v = reports[0]
		}
		return p.writeJSON(v)
	}
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(p.out)
		}
		p.printText(r)
	}
	return nil
}

func (p *printer) printQuiet(reports []*txReport) error {
	for _, r := range reports {
		switch {
		case r.Success != nil && !*r.Success:
			fmt.Fprintln(p.out, "Transaction rejected:", r.Error)
		case r.TransactionID != "" && p.json:
			if err := p.writeJSON(map[string]string{"transactionId": r.TransactionID}); err != nil {
				return err
			}
		case r.TransactionID != "":
			fmt.Fprintln(p.out, r.TransactionID)
		case p.json:
			if err := p.writeJSON(map[string]string{"transactionHex": r.TransactionHex}); err != nil {
				return err
			}
		default:
			fmt.Fprintln(p.out, r.TransactionHex)
		}
	}
	return nil
}

func (p *printer) printText(r *txReport) {
	if r.listRecipients {
		fmt.Fprintln(p.out, "Recipients:")
		for _, rc := range r.Recipients {
			fmt.Fprintln(p.out, "Address:", rc.Address)
			fmt.Fprintln(p.out, "Amount:", rc.Amount)
			fmt.Fprintln(p.out, "Memo:", rc.Memo)
			fmt.Fprintln(p.out, "----------")
		}
	}
	fmt.Fprintln(p.out, "Transaction hex:", r.TransactionHex)
	fmt.Fprintln(p.out, "Fee:", r.Fee)
	fmt.Fprintln(p.out, "Nonce:", r.Nonce)
	fmt.Fprintf(p.out, "%s: %s\n", r.contractLabel, r.Contract)
	fmt.Fprintln(p.out, "Sender:", r.Sender)
	if r.TotalAmount != "" {
		fmt.Fprintln(p.out, "Total amount:", r.TotalAmount)
		fmt.Fprintln(p.out, "Total STX:", r.TotalSTX)
	}
	if r.IsSTXTransfer != nil {
		fmt.Fprintln(p.out, "Is STX-transfer transaction type:", *r.IsSTXTransfer)
	}
	switch {
	case r.Success == nil:
	case *r.Success:
		fmt.Fprintln(p.out, "Transaction ID:", r.TransactionID)
		if r.ExplorerLink != "" {
			fmt.Fprintln(p.out, "View in explorer:", r.ExplorerLink)
		}
	default:
		fmt.Fprintln(p.out, "Transaction rejected:", r.Error)
	}
}

func (p *printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// rejectionText renders a broadcast failure, as JSON when the node sent a
// structured rejection.
func rejectionText(err error) string {
	if rejection := asBroadcastError(err); rejection != nil {
		b, jsonErr := json.Marshal(rejection)
		if jsonErr == nil {
			return string(b)
		}
	}
	return err.Error()
}
