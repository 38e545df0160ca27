package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
	"github.com/chainsafe/htlc-resolver/pkg/keys"
)

var (
	testEscrow = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	testToken  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testOrder  = common.HexToHash("0x0101010101010101010101010101010101010101010101010101010101010101")
	testCaller = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type dataError struct {
	data string
}

func (e dataError) Error() string          { return "execution reverted" }
func (e dataError) ErrorData() interface{} { return e.data }

func revertWith(name string) error {
	id := escrowABI.Errors[name].ID
	return dataError{data: hexutil.Encode(id[:4])}
}

// fakeBackend answers the calls the client makes; anything else panics on
// the nil embedded interface.
type fakeBackend struct {
	Backend

	logs        []types.Log
	callOutput  []byte
	estimateErr error
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return 42, nil }

func (f *fakeBackend) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	return &types.Header{Number: n}, nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return f.logs, nil
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return f.callOutput, nil
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, f.estimateErr
}

func newTestClient(t *testing.T, backend Backend, key *keys.SigningKey) *Client {
	t.Helper()
	cfg := config.ChainConfig{ID: "31337", EscrowContract: testEscrow.Hex(), GasLimit: 500000}
	c, err := NewClient(context.Background(), backend, cfg, config.EscrowConfig{SecurityDeposit: "7"}, key, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestDecodeRevert(t *testing.T) {
	err := decodeRevert(revertWith("TooEarly"))
	assert.True(t, errors.Is(err, escrow.ErrTooEarly), "got %v", err)
	assert.Equal(t, escrow.CodeAlreadyFulfilled, escrow.CodeOf(decodeRevert(revertWith("AlreadyFulfilled"))))

	plain := errors.New("connection refused")
	assert.Same(t, plain, decodeRevert(plain))

	unknown := dataError{data: "0xdeadbeef"}
	assert.Equal(t, escrow.CodeUnknown, escrow.CodeOf(decodeRevert(unknown)))
	assert.NoError(t, decodeRevert(nil))
}

func TestEvents_DecodesEscrowLogs(t *testing.T) {
	created, err := escrowABI.Events["Created"].Inputs.NonIndexed().Pack(
		[32]byte(escrow.SecretHash([]byte("s"))), testCaller, testCaller, testCaller,
		big.NewInt(100), big.NewInt(7), big.NewInt(30), true)
	require.NoError(t, err)
	withdraw, err := escrowABI.Events["Withdraw"].Inputs.NonIndexed().Pack([]byte("s"), testCaller, true)
	require.NoError(t, err)

	topics := func(event string) []common.Hash {
		return []common.Hash{escrowABI.Events[event].ID, testOrder, common.BytesToHash(testToken.Bytes())}
	}
	backend := &fakeBackend{logs: []types.Log{
		{Address: testEscrow, Topics: topics("Created"), Data: created, BlockNumber: 10, Index: 0},
		{Address: testEscrow, Topics: topics("Withdraw"), Data: withdraw, BlockNumber: 11, Index: 3, Removed: true},
		{Address: testEscrow, Topics: topics("Withdraw"), Data: withdraw, BlockNumber: 12, Index: 1},
		{Address: testEscrow, Topics: []common.Hash{crypto.Keccak256Hash([]byte("Other()"))}, BlockNumber: 12, Index: 2},
	}}
	c := newTestClient(t, backend, nil)

	events, err := c.Events(context.Background(), 10, 12)
	require.NoError(t, err)
	require.Len(t, events, 2)

	ev := events[0]
	assert.Equal(t, escrow.EventCreated, ev.Kind)
	assert.Equal(t, "31337", ev.ChainID)
	assert.Equal(t, testOrder, ev.OrderHash)
	assert.Equal(t, testToken, ev.Token)
	assert.Equal(t, escrow.SecretHash([]byte("s")), ev.SecretHash)
	assert.Equal(t, int64(100), ev.Amount.Int64())
	assert.Equal(t, uint64(30), ev.Timelock)
	assert.True(t, ev.Inbound)

	ev = events[1]
	assert.Equal(t, escrow.EventWithdraw, ev.Kind)
	assert.Equal(t, []byte("s"), ev.Secret)
	assert.True(t, ev.IsPublic)
	assert.Equal(t, uint64(12), ev.BlockNumber)
}

func TestEscrow_ReadsRecord(t *testing.T) {
	out, err := escrowABI.Methods["orders"].Outputs.Pack(
		false, testCaller, testCaller, big.NewInt(5), big.NewInt(10), big.NewInt(100), big.NewInt(7),
		[32]byte(escrow.SecretHash([]byte("s"))))
	require.NoError(t, err)
	c := newTestClient(t, &fakeBackend{callOutput: out}, nil)

	rec, err := c.Escrow(context.Background(), testToken, testOrder)
	require.NoError(t, err)
	assert.Equal(t, testCaller, rec.Initiator)
	assert.Equal(t, uint64(5), rec.InitiatedAt)
	assert.Equal(t, uint64(10), rec.Timelock)
	assert.Equal(t, testToken, rec.Token)

	empty, err := escrowABI.Methods["orders"].Outputs.Pack(
		false, common.Address{}, common.Address{}, new(big.Int), new(big.Int), new(big.Int), new(big.Int), [32]byte{})
	require.NoError(t, err)
	c = newTestClient(t, &fakeBackend{callOutput: empty}, nil)
	_, err = c.Escrow(context.Background(), testToken, testOrder)
	assert.True(t, errors.Is(err, escrow.ErrOrderNotFound), "got %v", err)
}

func TestSend_SurfacesRevertCode(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	key := &keys.SigningKey{PrivateKey: pk, Address: crypto.PubkeyToAddress(pk.PublicKey)}

	c := newTestClient(t, &fakeBackend{estimateErr: revertWith("TooEarly")}, key)
	_, err = c.WithdrawPublic(context.Background(), testToken, testOrder, []byte("s"))
	assert.True(t, errors.Is(err, escrow.ErrTooEarly), "got %v", err)
	assert.Equal(t, escrow.ClassTiming, escrow.CodeOf(err).Class())
}

func TestSend_ReadOnly(t *testing.T) {
	c := newTestClient(t, &fakeBackend{}, nil)
	_, err := c.Rescue(context.Background(), testToken, testOrder)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Equal(t, common.Address{}, c.Account())
}

func TestCreateValue(t *testing.T) {
	c := newTestClient(t, &fakeBackend{}, nil)

	p := escrow.CreateParams{Token: testToken, Amount: big.NewInt(100)}
	assert.Equal(t, int64(7), c.createValue(p, true).Int64())

	p.Token = common.Address{}
	assert.Equal(t, int64(107), c.createValue(p, true).Int64())
	assert.Equal(t, int64(7), c.createValue(p, false).Int64())
}
