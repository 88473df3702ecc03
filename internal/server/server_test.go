package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/coinwatch-gateway/internal/config"
	"github.com/smartdevs17/coinwatch-gateway/internal/connection"
	"github.com/smartdevs17/coinwatch-gateway/internal/gateway"
	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/internal/service"
	"github.com/smartdevs17/coinwatch-gateway/internal/storage"
	"github.com/smartdevs17/coinwatch-gateway/pkg/coinaddr"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

var testContract = common.HexToAddress("0x83c5541a6c8d2dbad642f385d8d06ca9b6c731ee")

type fakeReader struct {
	stats   *models.ContractStatistics
	entries []*models.WatchListEntry
	err     error
}

func (f *fakeReader) Contract() common.Address { return testContract }

func (f *fakeReader) GetStatistics(context.Context, common.Address) (*models.ContractStatistics, error) {
	return f.stats, f.err
}

func (f *fakeReader) GetWatchList(context.Context, common.Address) ([]*models.WatchListEntry, error) {
	return f.entries, f.err
}

func (f *fakeReader) LookupAddress(_ context.Context, _ common.Address, address string) (*models.WatchListEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := coinaddr.AddressToHex(address); err != nil {
		return nil, err
	}
	for _, e := range f.entries {
		if e.Address == address {
			return e, nil
		}
	}
	return nil, utils.NewAppError(utils.ErrCodeNotFound, "Address not watched", address)
}

type countingSubmitter struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSubmitter) Transact(_ context.Context, _ *gateway.TxRequest, onAccepted func(common.Hash)) (common.Hash, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	hash := common.HexToHash("0xabc")
	if onAccepted != nil {
		go onAccepted(hash)
	}
	return hash, nil
}

func (c *countingSubmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeNode struct{ healthy bool }

func (f fakeNode) Status(context.Context) connection.ConnectionStats {
	return connection.ConnectionStats{IsHealthy: f.healthy, LatestBlock: 42}
}

func validAddress(t *testing.T) string {
	t.Helper()
	addr, err := coinaddr.HexToAddress("0x0b1c4ba4cd1ab5d2a4a4e9bb2e0d4a4e0d5e54a1")
	require.NoError(t, err)
	return addr
}

func newTestServer(t *testing.T, reader *fakeReader, deps Dependencies) (*HTTPServer, *countingSubmitter) {
	t.Helper()

	submitter := &countingSubmitter{}
	gw := gateway.NewGateway(gateway.Config{ContractAddress: testContract}, nil, submitter, nil)

	deps.Gateway = reader
	deps.Watcher = service.NewWatchService(gw, nil, nil)

	srv, err := NewHTTPServer(&config.ServerConfig{
		Host:          "127.0.0.1",
		Port:          0,
		EnableHealth:  true,
		EnableMetrics: true,
	}, deps)
	require.NoError(t, err)
	return srv, submitter
}

func do(t *testing.T, srv *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewHTTPServerRequiresGateway(t *testing.T) {
	_, err := NewHTTPServer(&config.ServerConfig{}, Dependencies{})
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
}

func TestStatisticsHandler(t *testing.T) {
	reader := &fakeReader{stats: &models.ContractStatistics{
		Contract:         testContract,
		Owner:            common.HexToAddress("0x01"),
		Source:           "blockchain.info",
		MinConfirmations: 6,
		LastUpdated:      0,
		WatchListLength:  2,
	}}
	srv, _ := newTestServer(t, reader, Dependencies{})

	rec := do(t, srv, http.MethodGet, "/api/v1/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "blockchain.info", body["source"])
	assert.Equal(t, float64(2), body["watch_list_length"])
	assert.Equal(t, "never", body["last_updated_ago"])
}

func TestStatisticsHandlerExternalFailure(t *testing.T) {
	reader := &fakeReader{err: utils.NewAppError(utils.ErrCodeExternalCall, "Failed to read storage")}
	srv, _ := newTestServer(t, reader, Dependencies{})

	rec := do(t, srv, http.MethodGet, "/api/v1/statistics", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, utils.ErrCodeExternalCall, decode(t, rec)["code"])
}

func TestWatchListHandler(t *testing.T) {
	addr := validAddress(t)
	reader := &fakeReader{entries: []*models.WatchListEntry{
		{Address: addr, ReceivedByAddress: 5, LastUpdated: time.Now().Add(-3 * time.Hour).Unix(), NrWatched: 1},
	}}
	srv, _ := newTestServer(t, reader, Dependencies{})

	rec := do(t, srv, http.MethodGet, "/api/v1/watchlist", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	entries := body["entries"].([]interface{})
	first := entries[0].(map[string]interface{})
	assert.Equal(t, addr, first["address"])
	assert.Equal(t, "3 hours ago", first["last_updated_ago"])
	assert.Equal(t, "never", first["last_watched_ago"])
}

func TestAddressHandler(t *testing.T) {
	addr := validAddress(t)
	reader := &fakeReader{entries: []*models.WatchListEntry{{Address: addr, ReceivedByAddress: 9}}}
	srv, _ := newTestServer(t, reader, Dependencies{})

	rec := do(t, srv, http.MethodGet, "/api/v1/addresses/"+addr, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(9), decode(t, rec)["received_by_address"])

	rec = do(t, srv, http.MethodGet, "/api/v1/addresses/not-an-address", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatchHandler(t *testing.T) {
	addr := validAddress(t)
	srv, submitter := newTestServer(t, &fakeReader{}, Dependencies{})

	rec := do(t, srv, http.MethodPost, "/api/v1/watch", `{"address":"`+addr+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, addr, body["address"])
	assert.Equal(t, models.SubmissionStatusSubmitted, body["status"])
	assert.Equal(t, "0x000b1c4ba4cd1ab5d2a4a4e9bb2e0d4a4e0d5e54a1", body["address_hex"])
	assert.Equal(t, 1, submitter.count())
}

func TestWatchHandlerInvalidAddressDoesNotSubmit(t *testing.T) {
	addr := validAddress(t)
	broken := addr[:len(addr)-1] + "z"
	if broken == addr {
		broken = addr[:len(addr)-1] + "y"
	}
	srv, submitter := newTestServer(t, &fakeReader{}, Dependencies{})

	rec := do(t, srv, http.MethodPost, "/api/v1/watch", `{"address":"`+broken+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodeAddressDecode, decode(t, rec)["code"])
	assert.Equal(t, 0, submitter.count())
}

func TestWatchHandlerBadRequest(t *testing.T) {
	srv, submitter := newTestServer(t, &fakeReader{}, Dependencies{})

	rec := do(t, srv, http.MethodPost, "/api/v1/watch", `{"address":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/watch", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 0, submitter.count())
}

func TestListSubmissionsHandler(t *testing.T) {
	srv, _ := newTestServer(t, &fakeReader{}, Dependencies{})

	rec := do(t, srv, http.MethodGet, "/api/v1/submissions?kind=watch&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, float64(5), body["limit"])

	for _, query := range []string{"kind=other", "status=done", "limit=0", "offset=-1", "limit=x"} {
		rec = do(t, srv, http.MethodGet, "/api/v1/submissions?"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestConvertHandlers(t *testing.T) {
	srv, _ := newTestServer(t, &fakeReader{}, Dependencies{})
	hexStr := "0x0b1c4ba4cd1ab5d2a4a4e9bb2e0d4a4e0d5e54a1"

	rec := do(t, srv, http.MethodGet, "/api/v1/convert/hex/"+hexStr, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	address := body["address"].(string)
	assert.Equal(t, validAddress(t), address)
	assert.Equal(t, float64(0), body["version"])

	rec = do(t, srv, http.MethodGet, "/api/v1/convert/address/"+address, "")
	require.Equal(t, http.StatusOK, rec.Code)
	// the decoded form carries the version byte
	body = decode(t, rec)
	assert.Equal(t, "0x00"+hexStr[2:], body["hex"])
	assert.Equal(t, float64(0), body["version"])

	// a 21 byte payload keeps its leading version byte
	rec = do(t, srv, http.MethodGet, "/api/v1/convert/hex/0x05"+hexStr[2:], "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), decode(t, rec)["version"])

	rec = do(t, srv, http.MethodGet, "/api/v1/convert/address/0OIl", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t, &fakeReader{}, Dependencies{Node: fakeNode{healthy: true}})
	rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	srv, _ = newTestServer(t, &fakeReader{}, Dependencies{Node: fakeNode{healthy: false}})
	rec = do(t, srv, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode(t, rec)["status"])
}

func TestHealthHandlerPingsJournal(t *testing.T) {
	journal, err := storage.Open(config.StorageConfig{
		Enabled:          true,
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "coinwatch.db"),
		MaxConnections:   2,
	}, nil)
	require.NoError(t, err)

	srv, _ := newTestServer(t, &fakeReader{}, Dependencies{Journal: journal})
	rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	components := decode(t, rec)["components"].(map[string]interface{})
	assert.Equal(t, true, components["journal"].(map[string]interface{})["healthy"])

	require.NoError(t, journal.Close())
	rec = do(t, srv, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	components = decode(t, rec)["components"].(map[string]interface{})
	assert.Equal(t, false, components["journal"].(map[string]interface{})["healthy"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeReader{}, Dependencies{Metrics: metrics.NewManager()})

	do(t, srv, http.MethodGet, "/api/v1/convert/hex/0x0b1c4ba4cd1ab5d2a4a4e9bb2e0d4a4e0d5e54a1", "")

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/convert/hex/{hex}")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &fakeReader{}, Dependencies{})

	rec := do(t, srv, http.MethodOptions, "/api/v1/watch", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	cases := map[string]int{
		utils.ErrCodeAddressDecode: http.StatusBadRequest,
		utils.ErrCodeValidation:    http.StatusBadRequest,
		utils.ErrCodeNotFound:      http.StatusNotFound,
		utils.ErrCodeNotOwner:      http.StatusForbidden,
		utils.ErrCodeExternalCall:  http.StatusBadGateway,
		utils.ErrCodeConnection:    http.StatusBadGateway,
		utils.ErrCodeConfiguration: http.StatusServiceUnavailable,
		utils.ErrCodeDatabase:      http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, statusFor(utils.NewAppError(code, "x")), code)
	}
}

func TestListNotificationsHandler(t *testing.T) {
	journal, err := storage.Open(config.StorageConfig{
		Enabled:          true,
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "coinwatch.db"),
		MaxConnections:   2,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	require.NoError(t, journal.SaveNotification(context.Background(), &models.Notification{
		ID:        "n-1",
		Level:     models.NotificationLevelInfo,
		Title:     "Address watched",
		Message:   "Address x is now watched",
		CreatedAt: time.Now().UTC(),
	}))

	srv, _ := newTestServer(t, &fakeReader{}, Dependencies{Journal: journal})

	rec := do(t, srv, http.MethodGet, "/api/v1/notifications?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = do(t, srv, http.MethodGet, "/api/v1/notifications?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
