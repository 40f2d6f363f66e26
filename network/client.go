package network

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gstohl/stxbulk"
)

const defaultTimeout = 30 * time.Second

// Client talks to a Stacks node's HTTP API.
type Client struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

var (
	_ stxbulk.FeeEstimator = (*Client)(nil)
	_ ContractProber       = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.client.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the node at apiURL.
func NewClient(apiURL string, opts ...ClientOption) *Client {
	c := &Client{
		url:    strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: defaultTimeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is an unexpected HTTP status from the node.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return stxbulk.ErrNetwork }

// BroadcastError is a transaction the node refused.
type BroadcastError struct {
	Message    string          `json:"error"`
	Reason     string          `json:"reason"`
	ReasonData json.RawMessage `json:"reason_data,omitempty"`
	TxID       string          `json:"txid"`
}

func (e *BroadcastError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction rejected: %s", e.Message)
	}
	return fmt.Sprintf("transaction rejected: %s: %s", e.Message, e.Reason)
}

func (e *BroadcastError) Unwrap() error { return stxbulk.ErrBroadcast }

// feeEstimateRequest is the body of POST /v2/fees/transaction.
type feeEstimateRequest struct {
	TransactionPayload string `json:"transaction_payload"`
	EstimatedLen       int    `json:"estimated_len"`
}

type feeEstimate struct {
	FeeRate json.Number `json:"fee_rate"`
	Fee     json.Number `json:"fee"`
}

type feeEstimateResponse struct {
	Estimations []feeEstimate `json:"estimations"`
}

type accountResponse struct {
	Balance string      `json:"balance"`
	Nonce   json.Number `json:"nonce"`
}

// do sends a request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return nil, stxbulk.NewError(stxbulk.KindNetwork, err, "build request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, stxbulk.NewError(stxbulk.KindNetwork, err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stxbulk.NewError(stxbulk.KindNetwork, err, "read response")
	}
	c.logger.Debug("node request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return respBody, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	if err := decodeJSON(body, v); err != nil {
		return stxbulk.NewError(stxbulk.KindNetwork, err, "unmarshal %s", path)
	}
	return nil
}

func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

// EstimateFee asks the node for fee estimates and returns the middle one.
func (c *Client) EstimateFee(ctx context.Context, tx *stxbulk.SignedTransaction) (*big.Int, error) {
	reqBody, err := json.Marshal(feeEstimateRequest{
		TransactionPayload: "0x" + hex.EncodeToString(tx.Payload),
		EstimatedLen:       len(tx.Raw),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/v2/fees/transaction", "application/json", reqBody)
	if err != nil {
		return nil, stxbulk.NewError(stxbulk.KindFeeEstimation, err, "estimate fee")
	}

	var resp feeEstimateResponse
	if err := decodeJSON(body, &resp); err != nil {
		return nil, stxbulk.NewError(stxbulk.KindFeeEstimation, err, "unmarshal fee estimate")
	}
	if len(resp.Estimations) == 0 {
		return nil, stxbulk.NewError(stxbulk.KindFeeEstimation, nil, "node returned no fee estimations")
	}
	mid := resp.Estimations[len(resp.Estimations)/2]
	fee, err := parseUint(mid.Fee)
	if err != nil {
		return nil, stxbulk.NewError(stxbulk.KindFeeEstimation, err, "fee estimate")
	}
	return fee, nil
}

// FetchTransferFeeRate returns the node's fee rate in uSTX per byte.
func (c *Client) FetchTransferFeeRate(ctx context.Context) (*big.Int, error) {
	var rate json.Number
	if err := c.getJSON(ctx, "/v2/fees/transfer", &rate); err != nil {
		return nil, err
	}
	return parseUint(rate)
}

// FetchNonce returns the next nonce of address.
func (c *Client) FetchNonce(ctx context.Context, address string) (*big.Int, error) {
	var account accountResponse
	if err := c.getJSON(ctx, "/v2/accounts/"+url.PathEscape(address)+"?proof=0", &account); err != nil {
		return nil, err
	}
	return parseUint(account.Nonce)
}

// Broadcast submits a signed transaction and returns its txid. A rejection is
// returned as *BroadcastError.
func (c *Client) Broadcast(ctx context.Context, raw []byte) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/v2/transactions", "application/octet-stream", raw)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			rejection := &BroadcastError{}
			if jsonErr := json.Unmarshal(body, rejection); jsonErr != nil || rejection.Message == "" {
				rejection = &BroadcastError{Message: se.Body}
			}
			c.logger.Debug("broadcast rejected", zap.String("reason", rejection.Reason))
			return "", rejection
		}
		return "", err
	}

	var txid string
	if err := json.Unmarshal(body, &txid); err != nil {
		return "", stxbulk.NewError(stxbulk.KindBroadcast, err, "unexpected broadcast response %q", body)
	}
	return strings.TrimPrefix(txid, "0x"), nil
}

// ContractExists reports whether address.name is deployed.
func (c *Client) ContractExists(ctx context.Context, address, name string) (bool, error) {
	path := "/v2/contracts/interface/" + url.PathEscape(address) + "/" + url.PathEscape(name)
	_, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err == nil {
		return true, nil
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

func parseUint(n json.Number) (*big.Int, error) {
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok || v.Sign() < 0 {
		return nil, stxbulk.NewError(stxbulk.KindNetwork, nil, "expected a non-negative integer, got %q", n)
	}
	return v, nil
}
