package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

var (
	contract = common.HexToAddress("0x83c5541a6c8d2dbad642f385d8d06ca9b6c731ee")
	owner    = common.HexToAddress("0x71562b71999873DB5b286dF957af199Ec94617F7")
)

type fakeReader struct {
	owner   common.Address
	entries []*models.WatchListEntry
	err     error
}

func (f *fakeReader) Contract() common.Address { return contract }

func (f *fakeReader) GetStatistics(context.Context, common.Address) (*models.ContractStatistics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ContractStatistics{Contract: contract, Owner: f.owner, WatchListLength: uint64(len(f.entries))}, nil
}

func (f *fakeReader) GetWatchList(context.Context, common.Address) ([]*models.WatchListEntry, error) {
	return f.entries, nil
}

type fakeBalances map[string]uint64

func (f fakeBalances) ReceivedByAddress(_ context.Context, address string, _ int) (uint64, error) {
	v, ok := f[address]
	if !ok {
		return 0, errors.New("unknown address")
	}
	return v, nil
}

type recordingUpdater struct {
	mu      sync.Mutex
	updates map[string]uint64
}

func (r *recordingUpdater) UpdateReceived(_ context.Context, entry *models.WatchListEntry, value uint64) (*models.WatchSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updates == nil {
		r.updates = map[string]uint64{}
	}
	r.updates[entry.Address] = value
	return &models.WatchSubmission{TxHash: "0x" + entry.Address}, nil
}

func (r *recordingUpdater) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func TestRunOnceUpdatesStaleRecords(t *testing.T) {
	now := time.Unix(1409000000, 0)
	reader := &fakeReader{
		owner: owner,
		entries: []*models.WatchListEntry{
			{Address: "stale", LastUpdated: now.Add(-2 * time.Hour).Unix()},
			{Address: "fresh", LastUpdated: now.Add(-10 * time.Minute).Unix()},
			{Address: "never"},
			{Address: "unknown"},
		},
	}
	updater := &recordingUpdater{}
	u := NewUpdater(reader, updater, fakeBalances{"stale": 100, "never": 0, "fresh": 7},
		owner, Config{UpdateInterval: time.Hour, Confirmations: 6}, metrics.NewManager())
	u.now = func() time.Time { return now }

	result, err := u.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.Checked)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, map[string]uint64{"stale": 100, "never": 0}, updater.updates)

	stats := u.GetStats()
	assert.Equal(t, uint64(1), stats.Runs)
	assert.Equal(t, uint64(2), stats.Updated)
}

func TestRunOnceRequiresOwner(t *testing.T) {
	reader := &fakeReader{owner: common.HexToAddress("0x01"), entries: []*models.WatchListEntry{{Address: "a"}}}
	updater := &recordingUpdater{}
	u := NewUpdater(reader, updater, fakeBalances{"a": 1}, owner, Config{}, nil)

	_, err := u.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotOwner))
	assert.Zero(t, updater.count())
	assert.Equal(t, uint64(1), u.GetStats().FailedRuns)
}

func TestRunOnceReaderFailure(t *testing.T) {
	boom := utils.NewAppError(utils.ErrCodeExternalCall, "Failed to read storage", "")
	u := NewUpdater(&fakeReader{err: boom}, &recordingUpdater{}, fakeBalances{}, owner, Config{}, nil)

	_, err := u.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestStartStop(t *testing.T) {
	reader := &fakeReader{owner: owner, entries: []*models.WatchListEntry{{Address: "a"}}}
	updater := &recordingUpdater{}
	u := NewUpdater(reader, updater, fakeBalances{"a": 1}, owner, Config{Interval: 10 * time.Millisecond}, nil)

	require.NoError(t, u.Start(context.Background()))
	assert.True(t, u.IsRunning())
	assert.Error(t, u.Start(context.Background()))

	assert.Eventually(t, func() bool { return u.GetStats().Runs >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, u.Stop())
	assert.False(t, u.IsRunning())
	assert.Equal(t, 1, updater.count())
	require.NoError(t, u.Stop())
}

func TestBlockchainInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/q/getreceivedbyaddress/1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa":
			assert.Equal(t, "6", r.URL.Query().Get("confirmations"))
			_, _ = w.Write([]byte("6812357710\n"))
		case "/q/getreceivedbyaddress/garbage":
			_, _ = w.Write([]byte("Checksum does not validate"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("not found"))
		}
	}))
	defer srv.Close()

	source := NewBlockchainInfo(srv.URL+"/", time.Second, 0)

	value, err := source.ReceivedByAddress(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(6812357710), value)

	_, err = source.ReceivedByAddress(context.Background(), "garbage", 6)
	assert.True(t, utils.IsCode(err, utils.ErrCodeExternalCall))

	_, err = source.ReceivedByAddress(context.Background(), "missing", 6)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeExternalCall))
	assert.Contains(t, err.Error(), "404")
}
