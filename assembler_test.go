package stxbulk

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gstohl/stxbulk/clarity"
)

type testNetwork struct{}

func (testNetwork) Name() string    { return "testnet" }
func (testNetwork) ChainID() uint32 { return 0x80000000 }
func (testNetwork) APIURL() string  { return "http://localhost:3999" }

const defaultTestFee = 180

// recordingSigner signs nothing; it records each request and echoes it back.
type recordingSigner struct {
	mu       sync.Mutex
	requests []*Request
	err      error
}

func (s *recordingSigner) Sign(_ context.Context, req *Request) (*SignedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	cp := *req
	s.requests = append(s.requests, &cp)

	fee := big.NewInt(defaultTestFee)
	if req.Fee != nil {
		fee = new(big.Int).Set(req.Fee)
	}
	nonce := big.NewInt(0)
	if req.Nonce != nil {
		nonce = new(big.Int).Set(req.Nonce)
	}
	return &SignedTransaction{
		TxID:              fmt.Sprintf("tx-%d", len(s.requests)),
		Kind:              req.Payload.Kind(),
		Fee:               fee,
		Nonce:             nonce,
		PostConditions:    req.PostConditions,
		PostConditionMode: req.PostConditionMode,
	}, nil
}

func (s *recordingSigner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type fixedEstimator struct {
	fee  *big.Int
	err  error
	seen []*SignedTransaction
}

func (e *fixedEstimator) EstimateFee(_ context.Context, tx *SignedTransaction) (*big.Int, error) {
	e.seen = append(e.seen, tx)
	return e.fee, e.err
}

func testContract(t *testing.T) ContractID {
	t.Helper()
	c, err := DefaultSendManyContracts().Resolve("testnet", "")
	require.NoError(t, err)
	return c
}

func twoRecipients() RecipientSet {
	return RecipientSet{
		{Address: addrA, Amount: "1", Memo: "first"},
		{Address: addrB, Amount: "5"},
	}
}

func TestBuildFanOut(t *testing.T) {
	signer := &recordingSigner{}
	a := NewAssembler(signer, nil)

	tx, err := a.BuildFanOutTransfer(context.Background(), twoRecipients(), BuildContext{
		Network:  testNetwork{},
		Contract: testContract(t),
	})
	require.NoError(t, err)
	assert.Equal(t, PayloadContractCall, tx.Kind)
	require.Equal(t, 1, signer.calls())

	req := signer.requests[0]
	assert.Nil(t, req.Fee)
	assert.Nil(t, req.Nonce)
	assert.Equal(t, PostConditionModeDeny, req.PostConditionMode)
	require.Len(t, req.PostConditions, 1)
	pc := req.PostConditions[0]
	assert.True(t, pc.IsOrigin())
	assert.Equal(t, SentEqual, pc.Code)
	assert.Equal(t, "6", pc.Amount.String())

	call, ok := req.Payload.(ContractCallPayload)
	require.True(t, ok)
	assert.Equal(t, "send-many", call.Function)
	assert.Equal(t, testContract(t), call.Contract)
	require.Len(t, call.Args, 1)

	list, ok := call.Args[0].(clarity.List)
	require.True(t, ok)
	require.Len(t, list, 2)
	first := list[0].(clarity.Tuple)
	assert.Equal(t, []string{"to", "ustx"}, first.Keys())
	assert.Equal(t, addrA, first["to"].(clarity.StandardPrincipal).String())
	assert.Equal(t, "1", first["ustx"].(clarity.UInt).Value().String())
	second := list[1].(clarity.Tuple)
	assert.Equal(t, addrB, second["to"].(clarity.StandardPrincipal).String())
}

func TestBuildFanOutWithMemo(t *testing.T) {
	signer := &recordingSigner{}
	a := NewAssembler(signer, nil)

	_, err := a.BuildFanOutTransfer(context.Background(), twoRecipients(), BuildContext{
		Network:  testNetwork{},
		Contract: testContract(t),
		WithMemo: true,
	})
	require.NoError(t, err)

	list := signer.requests[0].Payload.(ContractCallPayload).Args[0].(clarity.List)
	first := list[0].(clarity.Tuple)
	assert.Equal(t, []string{"memo", "to", "ustx"}, first.Keys())
	assert.Equal(t, clarity.Buffer("first"), first["memo"])
	second := list[1].(clarity.Tuple)
	assert.Equal(t, clarity.Buffer(""), second["memo"])
}

func TestBuildDirectTransfer(t *testing.T) {
	signer := &recordingSigner{}
	a := NewAssembler(signer, nil)

	r := Recipient{Address: addrA, Amount: "42", Memo: "hello"}
	tx, err := a.BuildDirectTransfer(context.Background(), r, BuildContext{Network: testNetwork{}})
	require.NoError(t, err)
	assert.Equal(t, PayloadTokenTransfer, tx.Kind)

	p := signer.requests[0].Payload.(TokenTransferPayload)
	assert.Equal(t, addrA, p.Recipient)
	assert.Equal(t, "42", p.Amount.String())
	assert.Nil(t, p.Memo, "memo is only bound when requested")
	assert.Empty(t, signer.requests[0].PostConditions)

	_, err = a.BuildDirectTransfer(context.Background(), r, BuildContext{Network: testNetwork{}, WithMemo: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), signer.requests[1].Payload.(TokenTransferPayload).Memo)
}

func TestSelectTransfer(t *testing.T) {
	c := ContractID{Address: addrC, Name: "send-many"}
	one := RecipientSet{{Address: addrA, Amount: "1"}}

	assert.IsType(t, DirectTransfer{}, SelectTransfer(one, true, c))
	assert.IsType(t, FanOut{}, SelectTransfer(one, false, c))
	assert.IsType(t, FanOut{}, SelectTransfer(twoRecipients(), true, c))

	assert.Equal(t, "1", SelectTransfer(one, true, c).Total().String())
	assert.Equal(t, "6", SelectTransfer(twoRecipients(), true, c).Total().String())
}

func TestBuildRejectsBeforeSigning(t *testing.T) {
	signer := &recordingSigner{}
	a := NewAssembler(signer, nil)
	ctx := context.Background()
	bctx := BuildContext{Network: testNetwork{}, Contract: testContract(t)}

	_, err := a.BuildFanOutTransfer(ctx, nil, bctx)
	assert.ErrorIs(t, err, ErrEmptyRecipientSet)

	_, err = a.BuildFanOutTransfer(ctx, RecipientSet{{Address: addrA, Amount: "1.0"}}, bctx)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = a.BuildFanOutTransfer(ctx, RecipientSet{{Address: "not-an-address", Amount: "1"}}, bctx)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = a.BuildFanOutTransfer(ctx, twoRecipients(), BuildContext{Network: testNetwork{}})
	assert.ErrorIs(t, err, ErrMissingContract)

	_, err = a.BuildDirectTransfer(ctx, Recipient{Address: addrA, Amount: "-1"}, bctx)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = a.BuildDirectTransfer(ctx, Recipient{Address: "not-an-address", Amount: "1"}, bctx)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = a.Build(ctx, FanOut{Recipients: twoRecipients(), Contract: bctx.Contract}, BuildContext{
		Network: testNetwork{},
		Nonce:   big.NewInt(-1),
	})
	assert.ErrorIs(t, err, ErrSigning)

	assert.Zero(t, signer.calls())
}

func TestBuildWrapsSignerErrors(t *testing.T) {
	signer := &recordingSigner{err: errors.New("bad key")}
	a := NewAssembler(signer, nil)

	_, err := a.BuildFanOutTransfer(context.Background(), twoRecipients(), BuildContext{
		Network:  testNetwork{},
		Contract: testContract(t),
	})
	require.ErrorIs(t, err, ErrSigning)
	assert.Contains(t, err.Error(), "bad key")
}

func TestBuildPassesNonce(t *testing.T) {
	signer := &recordingSigner{}
	a := NewAssembler(signer, nil)

	tx, err := a.BuildFanOutTransfer(context.Background(), twoRecipients(), BuildContext{
		Network:  testNetwork{},
		Contract: testContract(t),
		Nonce:    big.NewInt(7),
	})
	require.NoError(t, err)
	assert.Equal(t, "7", tx.Nonce.String())
	assert.Equal(t, "7", signer.requests[0].Nonce.String())
}

func TestBuildFeeMultiplier(t *testing.T) {
	signer := &recordingSigner{}
	est := &fixedEstimator{fee: big.NewInt(200)}
	a := NewAssembler(signer, est)

	m := uint64(15)
	tx, err := a.BuildFanOutTransfer(context.Background(), twoRecipients(), BuildContext{
		Network:       testNetwork{},
		Contract:      testContract(t),
		FeeMultiplier: &m,
	})
	require.NoError(t, err)

	require.Equal(t, 2, signer.calls())
	assert.Nil(t, signer.requests[0].Fee, "template uses the default fee policy")
	require.Len(t, est.seen, 1)
	assert.Equal(t, "tx-1", est.seen[0].TxID)

	assert.Equal(t, "230", signer.requests[1].Fee.String())
	assert.Equal(t, "230", tx.Fee.String())
	assert.Equal(t, "tx-2", tx.TxID)

	// Everything but the fee is identical between passes.
	assert.Equal(t, signer.requests[0].Payload, signer.requests[1].Payload)
	assert.Equal(t, signer.requests[0].PostConditions, signer.requests[1].PostConditions)
}

func TestBuildFeeMultiplierZero(t *testing.T) {
	signer := &recordingSigner{}
	a := NewAssembler(signer, &fixedEstimator{fee: big.NewInt(321)})

	m := uint64(0)
	tx, err := a.BuildDirectTransfer(context.Background(), Recipient{Address: addrA, Amount: "1"}, BuildContext{
		Network:       testNetwork{},
		FeeMultiplier: &m,
	})
	require.NoError(t, err)
	assert.Equal(t, "321", tx.Fee.String())
	assert.Equal(t, 2, signer.calls())
}

func TestBuildFeeEstimationErrors(t *testing.T) {
	m := uint64(10)
	bctx := BuildContext{Network: testNetwork{}, Contract: testContract(t), FeeMultiplier: &m}
	ctx := context.Background()

	_, err := NewAssembler(&recordingSigner{}, nil).BuildFanOutTransfer(ctx, twoRecipients(), bctx)
	assert.ErrorIs(t, err, ErrFeeEstimation)

	signer := &recordingSigner{}
	_, err = NewAssembler(signer, &fixedEstimator{err: errors.New("node down")}).BuildFanOutTransfer(ctx, twoRecipients(), bctx)
	require.ErrorIs(t, err, ErrFeeEstimation)
	assert.Contains(t, err.Error(), "node down")
	assert.Equal(t, 1, signer.calls(), "no second pass after a failed estimate")

	_, err = NewAssembler(&recordingSigner{}, &fixedEstimator{fee: big.NewInt(-1)}).BuildFanOutTransfer(ctx, twoRecipients(), bctx)
	assert.ErrorIs(t, err, ErrFeeEstimation)

	_, err = NewAssembler(&recordingSigner{}, &fixedEstimator{}).BuildFanOutTransfer(ctx, twoRecipients(), bctx)
	assert.ErrorIs(t, err, ErrFeeEstimation)
}

func TestBuildZeroTotalWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	signer := &recordingSigner{}
	a := NewAssembler(signer, nil, WithLogger(zap.New(core)))

	set := RecipientSet{{Address: addrA, Amount: "0"}, {Address: addrB, Amount: "0"}}
	_, err := a.BuildFanOutTransfer(context.Background(), set, BuildContext{
		Network:  testNetwork{},
		Contract: testContract(t),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "0", signer.requests[0].PostConditions[0].Amount.String())
}

func TestBuildMemoLength(t *testing.T) {
	signer := &recordingSigner{}
	a := NewAssembler(signer, nil)
	ctx := context.Background()
	bctx := BuildContext{Network: testNetwork{}, Contract: testContract(t), WithMemo: true}

	long := RecipientSet{
		{Address: addrA, Amount: "1", Memo: strings.Repeat("x", 60)},
		{Address: addrB, Amount: "5"},
	}
	_, err := a.BuildFanOutTransfer(ctx, long, bctx)
	require.ErrorIs(t, err, ErrInvalidMemo)
	assert.Contains(t, err.Error(), "60 bytes")

	_, err = a.BuildDirectTransfer(ctx, Recipient{Address: addrA, Amount: "1", Memo: strings.Repeat("x", 40)}, bctx)
	assert.ErrorIs(t, err, ErrInvalidMemo)
	assert.Zero(t, signer.calls())

	// Unbound memos are not checked.
	bctx.WithMemo = false
	_, err = a.BuildFanOutTransfer(ctx, long, bctx)
	require.NoError(t, err)

	bctx.WithMemo = true
	full := RecipientSet{{Address: addrA, Amount: "1", Memo: strings.Repeat("x", MaxMemoLength)}}
	_, err = a.BuildFanOutTransfer(ctx, full, bctx)
	require.NoError(t, err)
	list := signer.requests[1].Payload.(ContractCallPayload).Args[0].(clarity.List)
	assert.Len(t, list[0].(clarity.Tuple)["memo"], MaxMemoLength)
}

func TestBuildPostConditionFollowsAmounts(t *testing.T) {
	signer := &recordingSigner{}
	a := NewAssembler(signer, nil)
	bctx := BuildContext{Network: testNetwork{}, Contract: testContract(t)}

	base := twoRecipients()
	_, err := a.BuildFanOutTransfer(context.Background(), base, bctx)
	require.NoError(t, err)

	changed := twoRecipients()
	changed[1].Amount = "12"
	_, err = a.BuildFanOutTransfer(context.Background(), changed, bctx)
	require.NoError(t, err)

	before := signer.requests[0].PostConditions[0].Amount
	after := signer.requests[1].PostConditions[0].Amount
	assert.Equal(t, "7", new(big.Int).Sub(after, before).String())
}
