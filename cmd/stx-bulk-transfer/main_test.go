package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gstohl/stxbulk/stacks"
)

const (
	testKey       = "00000000000000000000000000000000FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF"
	testnetSender = "ST1W63XNV4T469XC3S0240P5J8XBW1BZ94DKFP647"
	mainnetSender = "SP1W63XNV4T469XC3S0240P5J8XBW1BZ94EPACK14"

	recipientA = "STADMRP577SC3MCNP7T3PRSTZBJ75FJ59JGABZTW"
	recipientB = "ST2WPFYAW85A0YK9ACJR8JGWPM19VWYF90J8P5ZTH"
)

// stubNode answers the node endpoints the CLI uses.
type stubNode struct {
	mu           sync.Mutex
	memoExpected map[string]bool
	reject       bool
	broadcasts   int
	nonceLookups int
}

func (n *stubNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/v2/fees/transaction":
		io.WriteString(w, `{"estimations":[{"fee_rate":1,"fee":100},{"fee_rate":2,"fee":200},{"fee_rate":3,"fee":300}]}`)
	case path == "/v2/fees/transfer":
		io.WriteString(w, "1")
	case strings.HasPrefix(path, "/v2/accounts/"):
		n.nonceLookups++
		io.WriteString(w, `{"balance":"0x0","nonce":5}`)
	case r.Method == http.MethodPost && path == "/v2/transactions":
		body, _ := io.ReadAll(r.Body)
		n.broadcasts++
		if n.reject {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"transaction rejected","reason":"BadNonce","txid":"`+stacks.TxID(body)+`"}`)
			return
		}
		io.WriteString(w, `"`+stacks.TxID(body)+`"`)
	case strings.HasPrefix(path, "/v2/contracts/interface/"):
		parts := strings.Split(strings.TrimPrefix(path, "/v2/contracts/interface/"), "/")
		if len(parts) == 2 && parts[1] == "memo-expected" && n.memoExpected[parts[0]] {
			io.WriteString(w, `{"functions":[],"variables":[],"maps":[]}`)
			return
		}
		http.NotFound(w, r)
	default:
		http.NotFound(w, r)
	}
}

func startNode(t *testing.T, node *stubNode) string {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return srv.URL
}

func runCLI(args ...string) (stdout, stderr string, code int) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

// field returns the value of the first "Label: value" line.
func field(t *testing.T, out, label string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, label+": "); ok {
			return v
		}
	}
	t.Fatalf("no %q line in output:\n%s", label, out)
	return ""
}

func fields(out, label string) []string {
	var vs []string
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, label+": "); ok {
			vs = append(vs, v)
		}
	}
	return vs
}

func requireSigned(t *testing.T, txHex string) {
	t.Helper()
	raw, err := hex.DecodeString(txHex)
	require.NoError(t, err)
	require.NoError(t, stacks.Verify(raw))
}

func TestSendManyTestnet(t *testing.T) {
	url := startNode(t, &stubNode{})
	out, errOut, code := runCLI("send-many", recipientA+",1", recipientB+",5",
		"-n=testnet", "-k="+testKey, "-u", url)
	require.Equal(t, 0, code, errOut)

	requireSigned(t, field(t, out, "Transaction hex"))
	assert.Equal(t, "200", field(t, out, "Fee"))
	assert.Equal(t, "5", field(t, out, "Nonce"))
	assert.Equal(t, "ST3F1X4QGV2SM8XD96X45M6RTQXKA1PZJZZCQAB4B.send-many", field(t, out, "Contract"))
	assert.Equal(t, testnetSender, field(t, out, "Sender"))
	assert.Equal(t, "6", field(t, out, "Total amount"))
	assert.Equal(t, "0.000006", field(t, out, "Total STX"))
	assert.Empty(t, fields(out, "Is STX-transfer transaction type"))
}

func TestSendManyMainnet(t *testing.T) {
	url := startNode(t, &stubNode{})
	out, errOut, code := runCLI("send-many",
		"SP16MQDBJB2BF21PJGX72R5XA1C32MY747ZSAR1QY,1", "SP2TA4FGB43WVAS8MVS6YCWTSN2BZNQ1ASGEAKSDD,5",
		"-n=mainnet", "-k="+testKey, "-u", url)
	require.Equal(t, 0, code, errOut)

	assert.Equal(t, "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE.send-many", field(t, out, "Contract"))
	assert.Equal(t, mainnetSender, field(t, out, "Sender"))
	assert.Equal(t, "6", field(t, out, "Total amount"))
	requireSigned(t, field(t, out, "Transaction hex"))
}

func TestSendManyNonceAndFeeMultiplier(t *testing.T) {
	node := &stubNode{}
	url := startNode(t, node)
	out, errOut, code := runCLI("send-many", recipientA+",1", recipientB+",5",
		"-k", testKey, "-u", url, "--nonce", "9", "-m", "50")
	require.Equal(t, 0, code, errOut)

	assert.Equal(t, "9", field(t, out, "Nonce"))
	assert.Equal(t, "300", field(t, out, "Fee"))
	assert.Zero(t, node.nonceLookups)
	requireSigned(t, field(t, out, "Transaction hex"))
}

func TestSendManySingleSTXTransfer(t *testing.T) {
	url := startNode(t, &stubNode{})
	out, errOut, code := runCLI("send-many", recipientA+",42", "-k", testKey, "-u", url, "-a")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "true", field(t, out, "Is STX-transfer transaction type"))
	assert.Equal(t, "42", field(t, out, "Total amount"))

	out, errOut, code = runCLI("send-many", recipientA+",42", recipientB+",1", "-k", testKey, "-u", url, "-a")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "false", field(t, out, "Is STX-transfer transaction type"))
}

func TestSendManyBroadcast(t *testing.T) {
	node := &stubNode{}
	url := startNode(t, node)
	out, errOut, code := runCLI("send-many", recipientA+",1", recipientB+",5", "-k", testKey, "-u", url, "-b")
	require.Equal(t, 0, code, errOut)

	raw, err := hex.DecodeString(field(t, out, "Transaction hex"))
	require.NoError(t, err)
	txid := stacks.TxID(raw)
	assert.Equal(t, txid, field(t, out, "Transaction ID"))
	assert.Equal(t, "https://explorer.hiro.so/txid/0x"+txid+"?chain=testnet", field(t, out, "View in explorer"))
	assert.Equal(t, 1, node.broadcasts)
}

func TestSendManyQuiet(t *testing.T) {
	url := startNode(t, &stubNode{})

	out, errOut, code := runCLI("send-many", recipientA+",1", "-k", testKey, "-u", url, "-q")
	require.Equal(t, 0, code, errOut)
	txHex := strings.TrimSpace(out)
	assert.Equal(t, txHex+"\n", out)
	requireSigned(t, txHex)

	out, errOut, code = runCLI("send-many", recipientA+",1", "-k", testKey, "-u", url, "-q", "-b")
	require.Equal(t, 0, code, errOut)
	raw, _ := hex.DecodeString(txHex)
	assert.Equal(t, stacks.TxID(raw)+"\n", out)
}

func TestSendManyRejected(t *testing.T) {
	url := startNode(t, &stubNode{reject: true})
	out, _, code := runCLI("send-many", recipientA+",1", "-k", testKey, "-u", url, "-b")
	assert.Equal(t, 1, code)
	assert.Contains(t, field(t, out, "Transaction rejected"), `"reason":"BadNonce"`)
}

func TestSendManyMocknetNeedsContract(t *testing.T) {
	url := startNode(t, &stubNode{})
	_, errOut, code := runCLI("send-many", recipientA+",1", "-k", testKey, "-n", "mocknet", "-u", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "must manually specify contract address for mocknet")

	out, errOut, code := runCLI("send-many", recipientA+",1", "-k", testKey, "-n", "mocknet", "-u", url,
		"-c", "ST000000000000000000002AMW42H.send-many", "-b")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "ST000000000000000000002AMW42H.send-many", field(t, out, "Contract"))
	assert.Empty(t, fields(out, "View in explorer"))
}

func TestSendManyInvalidInput(t *testing.T) {
	url := startNode(t, &stubNode{})

	_, errOut, code := runCLI("send-many", recipientA+",1.5", "-k", testKey, "-u", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "is not a valid integer")

	_, errOut, code = runCLI("send-many", "bogus,1", "-k", testKey, "-u", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "bogus is not a valid STX address")

	_, errOut, code = runCLI("send-many", "-k", testKey, "-u", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "empty recipient set")

	_, errOut, code = runCLI("send-many", recipientA+",1", "-u", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "missing private key")

	_, errOut, code = runCLI("send-many", recipientA+",1", "-k", testKey, "-u", url, "-c", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid contract")

	_, errOut, code = runCLI("send-many", recipientA+",1", "-k", testKey, "-u", url, "--log-level", "loud")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid log level")
}

func TestSendManyPrivateKeyFromEnv(t *testing.T) {
	url := startNode(t, &stubNode{})
	t.Setenv("STX_BULK_PRIVATE_KEY", testKey)
	t.Setenv("STX_BULK_NODE_URL", url)

	out, errOut, code := runCLI("send-many", recipientA+",1")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, testnetSender, field(t, out, "Sender"))
}

func TestSendManyChunked(t *testing.T) {
	url := startNode(t, &stubNode{})
	out, errOut, code := runCLI("send-many", recipientA+",1", recipientB+",5", recipientA+",7",
		"-k", testKey, "-u", url, "--chunk-size", "2", "--nonce", "9")
	require.Equal(t, 0, code, errOut)

	assert.Equal(t, []string{"9", "10"}, fields(out, "Nonce"))
	assert.Equal(t, []string{"6", "7"}, fields(out, "Total amount"))
	for _, txHex := range fields(out, "Transaction hex") {
		requireSigned(t, txHex)
	}
}

func TestSendManyFromFile(t *testing.T) {
	url := startNode(t, &stubNode{})
	path := filepath.Join(t.TempDir(), "recipients.csv")
	require.NoError(t, os.WriteFile(path, []byte("# payroll\n\n"+recipientB+",5\n"), 0o600))

	out, errOut, code := runCLI("send-many", recipientA+",1", "-k", testKey, "-u", url, "--file", path)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "6", field(t, out, "Total amount"))
}

func TestSendManyMemoJSON(t *testing.T) {
	url := startNode(t, &stubNode{})
	out, errOut, code := runCLI("send-many-memo", recipientA+",1,hello", recipientB+",5,memo2",
		"--json", "-n=testnet", "-k="+testKey, "-u", url)
	require.Equal(t, 0, code, errOut)

	var got struct {
		Contract       string            `json:"contract"`
		Recipients     []recipientReport `json:"recipients"`
		Sender         string            `json:"sender"`
		TotalAmount    string            `json:"totalAmount"`
		Fee            string            `json:"fee"`
		Nonce          string            `json:"nonce"`
		TransactionHex string            `json:"transactionHex"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "ST3F1X4QGV2SM8XD96X45M6RTQXKA1PZJZZCQAB4B.send-many-memo", got.Contract)
	assert.Equal(t, []recipientReport{
		{Address: recipientA, Amount: "1", Memo: "hello"},
		{Address: recipientB, Amount: "5", Memo: "memo2"},
	}, got.Recipients)
	assert.Equal(t, testnetSender, got.Sender)
	assert.Equal(t, "6", got.TotalAmount)
	assert.Equal(t, "200", got.Fee)
	assert.Equal(t, "5", got.Nonce)
	requireSigned(t, got.TransactionHex)
}

func TestSendManyMemoText(t *testing.T) {
	url := startNode(t, &stubNode{})
	out, errOut, code := runCLI("send-many-memo", recipientA+",1,hello, world", "-k", testKey, "-u", url)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Recipients:\n")
	assert.Equal(t, "hello, world", field(t, out, "Memo"))
}

func TestSendManyMemoExpected(t *testing.T) {
	url := startNode(t, &stubNode{memoExpected: map[string]bool{recipientB: true}})

	_, errOut, code := runCLI("send-many-memo", recipientA+",1,hello", recipientB+",5", "-k", testKey, "-u", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Memo expected for: "+recipientB)

	out, errOut, code := runCLI("send-many-memo", recipientA+",1,hello", recipientB+",5", "-k", testKey, "-u", url,
		"--check-memo-expected=false")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "6", field(t, out, "Total amount"))

	_, errOut, code = runCLI("send-many-memo", recipientA+",1,"+strings.Repeat("x", 35), "-k", testKey, "-u", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "at most 34")
}

func TestSendManyMemoSafe(t *testing.T) {
	url := startNode(t, &stubNode{memoExpected: map[string]bool{recipientB: true}})

	out, errOut, code := runCLI("send-many-memo-safe", recipientA+",1,hello", recipientB+",5", recipientB+",2",
		"-k", testKey, "-u", url, "--json")
	assert.Equal(t, 1, code)
	assert.Empty(t, errOut)
	assert.JSONEq(t, `{"success":false,"memoExpectedRecipients":["`+recipientB+`"]}`, out)

	_, errOut, code = runCLI("send-many-memo-safe", recipientA+",1,hello", recipientB+",5", "-k", testKey, "-u", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Memo expected for: "+recipientB)

	out, errOut, code = runCLI("send-many-memo-safe", recipientA+",1,hello", recipientB+",5,ref-9",
		"-k", testKey, "-u", url, "--json", "-b")
	require.Equal(t, 0, code, errOut)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, true, got["success"])
	assert.NotEmpty(t, got["transactionId"])
	assert.Contains(t, got["explorerLink"], "chain=testnet")
}

func TestDeployContract(t *testing.T) {
	url := startNode(t, &stubNode{})

	out, errOut, code := runCLI("deploy-contract", "memo-expected", "-k", testKey, "-u", url)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, testnetSender+".memo-expected", field(t, out, "Contract address"))
	assert.Equal(t, testnetSender, field(t, out, "Sender"))
	assert.Equal(t, "5", field(t, out, "Nonce"))
	requireSigned(t, field(t, out, "Transaction hex"))
	assert.Empty(t, fields(out, "Total amount"))

	out, errOut, code = runCLI("deploy-contract", "send-many-memo", "-k", testKey, "-u", url, "-n", "mainnet", "--nonce", "0")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, mainnetSender+".send-many-memo", field(t, out, "Contract address"))
	assert.Equal(t, "0", field(t, out, "Nonce"))

	_, errOut, code = runCLI("deploy-contract", "bogus", "-k", testKey, "-u", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid contract bogus")

	_, errOut, code = runCLI("deploy-contract", "-k", testKey, "-u", url)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no contract specified")
}

func TestSetMemoExpected(t *testing.T) {
	node := &stubNode{}
	url := startNode(t, node)

	out, errOut, code := runCLI("set-memo-expected", "-k", testKey, "-u", url, "-b", "-q")
	require.Equal(t, 0, code, errOut)
	assert.Len(t, strings.TrimSpace(out), 64)
	assert.Equal(t, 1, node.broadcasts)
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		code   int
		stdout string
		prefix bool
	}{
		{
			name:   "valid testnet",
			args:   []string{"ST38RMDQFVC462DSJ1CPEW5EYXEZKASQVC8XDGARN", "-n=testnet", "--verbose"},
			stdout: "1\n",
		},
		{
			name:   "mainnet address on testnet",
			args:   []string{"SP3XXK8BG5X7CRH7W07RRJK3JZJXJ799WX3Y0SMCR", "-n=testnet", "--verbose"},
			code:   1,
			stdout: "0\nValid address but incorrect network version (address version: 22, expected: 26 or 21)\n",
		},
		{
			name:   "valid mainnet",
			args:   []string{"SP3XXK8BG5X7CRH7W07RRJK3JZJXJ799WX3Y0SMCR", "-n=mainnet", "--verbose"},
			stdout: "1\n",
		},
		{
			name:   "testnet address on mainnet",
			args:   []string{"ST38RMDQFVC462DSJ1CPEW5EYXEZKASQVC8XDGARN", "-n=mainnet", "--verbose"},
			code:   1,
			stdout: "0\nValid address but incorrect network version (address version: 26, expected: 22 or 20)\n",
		},
		{
			name:   "default network is mainnet",
			args:   []string{"SP000000000000000000002Q6VF78"},
			stdout: "1\n",
		},
		{
			name:   "malformed",
			args:   []string{"bogus-value", "-n=testnet", "--verbose"},
			code:   2,
			stdout: "0\nError: ",
			prefix: true,
		},
		{
			name:   "malformed quiet",
			args:   []string{"bogus-value", "-n=testnet"},
			code:   2,
			stdout: "0\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, code := runCLI(append([]string{"validate-address"}, tt.args...)...)
			assert.Equal(t, tt.code, code)
			if tt.prefix {
				assert.True(t, strings.HasPrefix(out, tt.stdout), out)
			} else {
				assert.Equal(t, tt.stdout, out)
			}
		})
	}

	_, errOut, code := runCLI("validate-address")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no address specified")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))

	bad := filepath.Join(dir, "bad.env")
	require.NoError(t, os.WriteFile(bad, []byte("STX-BULK-NETWORK=testnet\n"), 0o600))
	err := loadDotEnv(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load .env")

	good := filepath.Join(dir, "good.env")
	require.NoError(t, os.WriteFile(good, []byte("STX_BULK_DOTENV_CHECK=mocknet\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("STX_BULK_DOTENV_CHECK") })
	require.NoError(t, loadDotEnv(good))
	assert.Equal(t, "mocknet", os.Getenv("STX_BULK_DOTENV_CHECK"))
}
