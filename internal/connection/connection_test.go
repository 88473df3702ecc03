package connection

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/coinwatch-gateway/internal/config"
	"github.com/smartdevs17/coinwatch-gateway/internal/gateway"
	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

const devKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type fakeBackend struct {
	mu        sync.Mutex
	storage   map[common.Hash][]byte
	nonce     uint64
	block     atomic.Uint64
	networkID int64
	sent      []*types.Transaction
	sendErr   error
	closed    bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{storage: map[common.Hash][]byte{}, networkID: 31}
}

func (f *fakeBackend) StorageAt(_ context.Context, _ common.Address, key common.Hash, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.storage[key]; ok {
		return v, nil
	}
	return make([]byte, 32), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(60000000), nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(f.networkID), nil
}

func (f *fakeBackend) NetworkID(context.Context) (*big.Int, error) {
	return big.NewInt(f.networkID), nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.block.Load(), nil
}

func (f *fakeBackend) PeerCount(context.Context) (uint64, error) {
	return 3, nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeBackend) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type staticProvider struct {
	backend Backend
	err     error
}

func (p staticProvider) Backend(context.Context) (Backend, error) {
	return p.backend, p.err
}

func nodeConfig(urls ...string) config.NodeConfig {
	return config.NodeConfig{
		NodeURL:        urls[0],
		BackupNodes:    urls[1:],
		RequestTimeout: time.Second,
		RetryAttempts:  1,
	}
}

func TestConnectionManagerFailover(t *testing.T) {
	backend := newFakeBackend()
	var dialed []string
	dial := func(_ context.Context, url string) (Backend, error) {
		dialed = append(dialed, url)
		if url == "http://primary" {
			return nil, errors.New("connection refused")
		}
		return backend, nil
	}

	cm := NewConnectionManager(nodeConfig("http://primary", "http://backup"), dial, metrics.NewManager())

	got, err := cm.Backend(context.Background())
	require.NoError(t, err)
	assert.Same(t, backend, got)
	assert.Equal(t, []string{"http://primary", "http://backup"}, dialed)

	stats := cm.Stats()
	assert.Equal(t, "http://backup", stats.CurrentURL)
	assert.Equal(t, uint64(1), stats.FailedRequests)
	assert.True(t, cm.IsConnected())

	// cached
	_, err = cm.Backend(context.Background())
	require.NoError(t, err)
	assert.Len(t, dialed, 2)

	require.NoError(t, cm.Close())
	assert.True(t, backend.closed)
	assert.False(t, cm.IsConnected())
}

func TestConnectionManagerAllFail(t *testing.T) {
	dial := func(context.Context, string) (Backend, error) {
		return nil, errors.New("connection refused")
	}
	cfg := nodeConfig("http://a", "http://b")
	cfg.RetryAttempts = 2
	cfg.RetryDelay = time.Millisecond

	cm := NewConnectionManager(cfg, dial, nil)
	_, err := cm.Backend(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeConnection))
	assert.Equal(t, uint64(4), cm.Stats().FailedRequests)
}

func TestConnectionManagerStatus(t *testing.T) {
	backend := newFakeBackend()
	backend.block.Store(42)
	dial := func(context.Context, string) (Backend, error) { return backend, nil }

	cfg := nodeConfig("http://node")
	cfg.NetworkID = 31
	cm := NewConnectionManager(cfg, dial, metrics.NewManager())

	stats := cm.Status(context.Background())
	assert.True(t, stats.IsHealthy)
	assert.Equal(t, uint64(31), stats.NetworkID)
	assert.Equal(t, uint64(42), stats.LatestBlock)
	assert.Equal(t, uint64(31), stats.ChainID)
	assert.Equal(t, uint64(3), stats.PeerCount)

	cfg.NetworkID = 30
	mismatched := NewConnectionManager(cfg, dial, nil)
	err := mismatched.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeConnection))
	assert.False(t, mismatched.Stats().IsHealthy)
	assert.NotEmpty(t, mismatched.Stats().LastError)
}

func TestNodeClientStateAt(t *testing.T) {
	backend := newFakeBackend()
	key := uint256.NewInt(0x10)
	owner := common.HexToAddress("0x71562b71999873DB5b286dF957af199Ec94617F7")
	backend.storage[common.Hash(key.Bytes32())] = owner.Bytes()

	nc, err := NewNodeClient(staticProvider{backend: backend}, "", nil)
	require.NoError(t, err)
	assert.False(t, nc.CanTransact())

	word, err := nc.StateAt(context.Background(), common.Address{}, key)
	require.NoError(t, err)
	assert.Equal(t, owner, word.Address())

	failing, err := NewNodeClient(staticProvider{err: errors.New("down")}, "", nil)
	require.NoError(t, err)
	_, err = failing.StateAt(context.Background(), common.Address{}, key)
	assert.True(t, utils.IsCode(err, utils.ErrCodeExternalCall))
}

func TestNodeClientTransact(t *testing.T) {
	backend := newFakeBackend()
	backend.nonce = 7

	nc, err := NewNodeClient(staticProvider{backend: backend}, devKey, metrics.NewManager())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x71562b71999873DB5b286dF957af199Ec94617F7"), nc.From())

	balance, err := nc.SenderBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1e18), balance)

	contract := common.HexToAddress("0x83c5541a6c8d2dbad642f385d8d06ca9b6c731ee")
	data := gateway.EncodeCommand(gateway.CmdWatch, []byte{0x01})
	accepted := make(chan common.Hash, 1)

	hash, err := nc.Transact(context.Background(), &gateway.TxRequest{
		To:       contract,
		Data:     data,
		GasLimit: gateway.DefaultGasLimit,
		GasPrice: big.NewInt(10000000000000),
	}, func(h common.Hash) { accepted <- h })
	require.NoError(t, err)

	select {
	case got := <-accepted:
		assert.Equal(t, hash, got)
	case <-time.After(time.Second):
		t.Fatal("acceptance callback not invoked")
	}

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, contract, *tx.To())
	assert.Equal(t, data, tx.Data())
	assert.Equal(t, uint64(gateway.DefaultGasLimit), tx.Gas())
	assert.Equal(t, int64(10000000000000), tx.GasPrice().Int64())
	assert.Zero(t, tx.Value().Sign())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31)), tx)
	require.NoError(t, err)
	assert.Equal(t, nc.From(), sender)
}

func TestNodeClientTransactDefaultsAndFailures(t *testing.T) {
	backend := newFakeBackend()
	nc, err := NewNodeClient(staticProvider{backend: backend}, devKey, nil)
	require.NoError(t, err)

	_, err = nc.Transact(context.Background(), &gateway.TxRequest{GasLimit: 21000}, nil)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, int64(60000000), backend.sent[0].GasPrice().Int64())

	backend.sendErr = errors.New("insufficient funds")
	called := false
	_, err = nc.Transact(context.Background(), &gateway.TxRequest{GasLimit: 21000}, func(common.Hash) { called = true })
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeExternalCall))
	assert.False(t, called)

	readOnly, err := NewNodeClient(staticProvider{backend: backend}, "", nil)
	require.NoError(t, err)
	_, err = readOnly.Transact(context.Background(), &gateway.TxRequest{}, nil)
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))

	_, err = NewNodeClient(staticProvider{backend: backend}, "zz", nil)
	assert.Error(t, err)
}

func TestWaitForNextBlock(t *testing.T) {
	backend := newFakeBackend()
	backend.block.Store(100)
	nc, err := NewNodeClient(staticProvider{backend: backend}, "", nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		backend.block.Store(101)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	block, err := nc.WaitForNextBlock(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(101), block)

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	_, err = nc.WaitForNextBlock(short, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
