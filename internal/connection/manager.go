package connection

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/config"
	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// Backend is the subset of the node API the gateway needs. *ethclient.Client
// satisfies it.
type Backend interface {
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PeerCount(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// Dialer opens a Backend for a node URL
type Dialer func(ctx context.Context, url string) (Backend, error)

// DialEthClient dials a JSON-RPC node with ethclient
func DialEthClient(ctx context.Context, url string) (Backend, error) {
	return ethclient.DialContext(ctx, url)
}

// Manager defines the connection manager interface
type Manager interface {
	Backend(ctx context.Context) (Backend, error)
	HealthCheck(ctx context.Context) error
	Status(ctx context.Context) ConnectionStats
	IsConnected() bool
	Close() error
}

// ConnectionManager keeps one live Backend, failing over across the primary
// and backup node URLs
type ConnectionManager struct {
	config          config.NodeConfig
	urls            []string
	currentIndex    int
	dial            Dialer
	backend         Backend
	mu              sync.RWMutex
	logger          *logrus.Entry
	stats           ConnectionStats
	lastHealthCheck time.Time
	isHealthy       bool
	metrics         *metrics.PrometheusMetrics
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	TotalRequests   uint64    `json:"total_requests"`
	FailedRequests  uint64    `json:"failed_requests"`
	Reconnects      uint64    `json:"reconnects"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
	NetworkID       uint64    `json:"network_id"`
	ChainID         uint64    `json:"chain_id"`
	PeerCount       uint64    `json:"peer_count"`
	LatestBlock     uint64    `json:"latest_block"`
	LastError       string    `json:"last_error,omitempty"`
}

// NewConnectionManager creates a new connection manager. A nil dialer uses
// DialEthClient.
func NewConnectionManager(cfg config.NodeConfig, dial Dialer, metricsManager *metrics.Manager) *ConnectionManager {
	if dial == nil {
		dial = DialEthClient
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	urls := []string{cfg.NodeURL}
	urls = append(urls, cfg.BackupNodes...)

	return &ConnectionManager{
		config:  cfg,
		urls:    urls,
		dial:    dial,
		logger:  utils.ComponentLogger("connection"),
		metrics: metricsManager.GetPrometheusMetrics(),
		stats: ConnectionStats{
			CurrentURL: cfg.NodeURL,
		},
	}
}

// Backend returns the current backend, connecting on first use
func (cm *ConnectionManager) Backend(ctx context.Context) (Backend, error) {
	cm.mu.Lock()
	backend := cm.backend
	cm.stats.TotalRequests++
	cm.mu.Unlock()

	if backend != nil {
		return backend, nil
	}
	return cm.connect(ctx)
}

// connect establishes a new connection
func (cm *ConnectionManager) connect(ctx context.Context) (Backend, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.backend != nil {
		return cm.backend, nil
	}

	urls := cm.rotatedURLs()
	var lastErr error

	for attempt := 0; attempt < cm.config.RetryAttempts; attempt++ {
		for i, url := range urls {
			log := cm.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1})
			log.Debug("Attempting connection")

			backend, err := cm.dialWithTimeout(ctx, url)
			if err == nil {
				err = cm.quickHealthCheck(ctx, backend)
				if err != nil {
					backend.Close()
				}
			}
			if err != nil {
				lastErr = err
				cm.stats.FailedRequests++
				cm.stats.LastError = err.Error()
				cm.metrics.RecordConnectionError(url, "dial_failed")
				log.WithError(err).Warn("Connection failed")
				continue
			}

			cm.backend = backend
			cm.currentIndex = (cm.currentIndex + i) % len(cm.urls)
			cm.stats.CurrentURL = url
			cm.stats.LastConnectedAt = time.Now()
			cm.stats.LastError = ""
			cm.isHealthy = true
			cm.lastHealthCheck = time.Now()

			log.Info("Connected to node")
			return backend, nil
		}

		if attempt < cm.config.RetryAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, utils.WrapError(utils.ErrCodeConnection, "Connection attempt cancelled", ctx.Err())
			case <-time.After(cm.config.RetryDelay):
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no node URLs configured")
	}
	return nil, utils.WrapError(utils.ErrCodeConnection, "Failed to connect to any node", lastErr)
}

// Reconnect drops the current backend and connects again starting from the
// next URL
func (cm *ConnectionManager) Reconnect(ctx context.Context) (Backend, error) {
	cm.mu.Lock()
	if cm.backend != nil {
		cm.backend.Close()
		cm.backend = nil
		cm.currentIndex = (cm.currentIndex + 1) % len(cm.urls)
	}
	cm.isHealthy = false
	cm.stats.Reconnects++
	cm.mu.Unlock()

	return cm.connect(ctx)
}

func (cm *ConnectionManager) dialWithTimeout(ctx context.Context, url string) (Backend, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.config.RequestTimeout)
	defer cancel()

	return cm.dial(dialCtx, url)
}

func (cm *ConnectionManager) quickHealthCheck(ctx context.Context, backend Backend) error {
	checkCtx, cancel := context.WithTimeout(ctx, cm.config.RequestTimeout)
	defer cancel()

	_, err := backend.NetworkID(checkCtx)
	return err
}

// HealthCheck verifies the network ID and reads the latest block
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	start := time.Now()

	backend, err := cm.Backend(ctx)
	if err != nil {
		cm.markUnhealthy(err)
		return err
	}

	networkID, err := backend.NetworkID(ctx)
	cm.metrics.RecordRPCRequest("net_version", rpcStatus(err), time.Since(start))
	if err != nil {
		cm.markUnhealthy(err)
		return utils.WrapError(utils.ErrCodeConnection, "Failed to get network ID", err)
	}

	if cm.config.NetworkID != 0 && networkID.Uint64() != cm.config.NetworkID {
		appErr := utils.NewAppError(utils.ErrCodeConnection, "Network ID mismatch",
			fmt.Sprintf("expected %d, got %d", cm.config.NetworkID, networkID.Uint64()))
		cm.markUnhealthy(appErr)
		return appErr
	}

	start = time.Now()
	blockNumber, err := backend.BlockNumber(ctx)
	cm.metrics.RecordRPCRequest("eth_blockNumber", rpcStatus(err), time.Since(start))
	if err != nil {
		cm.markUnhealthy(err)
		return utils.WrapError(utils.ErrCodeConnection, "Failed to get latest block", err)
	}

	// optional on many public nodes
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		cm.logger.WithError(err).Debug("Chain ID unavailable")
		chainID = new(big.Int)
	}
	peers, err := backend.PeerCount(ctx)
	if err != nil {
		cm.logger.WithError(err).Debug("Peer count unavailable")
	}

	cm.mu.Lock()
	cm.stats.NetworkID = networkID.Uint64()
	cm.stats.ChainID = chainID.Uint64()
	cm.stats.PeerCount = peers
	cm.stats.LatestBlock = blockNumber
	cm.stats.LastHealthCheck = time.Now()
	cm.stats.IsHealthy = true
	cm.stats.LastError = ""
	cm.lastHealthCheck = cm.stats.LastHealthCheck
	cm.isHealthy = true
	url := cm.stats.CurrentURL
	cm.mu.Unlock()

	cm.metrics.UpdateComponentHealth("node", true)
	cm.logger.WithFields(logrus.Fields{
		"network_id":   networkID.Uint64(),
		"latest_block": blockNumber,
		"url":          url,
	}).Debug("Health check passed")

	return nil
}

func (cm *ConnectionManager) markUnhealthy(err error) {
	cm.mu.Lock()
	cm.isHealthy = false
	cm.stats.IsHealthy = false
	cm.stats.LastHealthCheck = time.Now()
	cm.stats.LastError = err.Error()
	cm.mu.Unlock()

	cm.metrics.UpdateComponentHealth("node", false)
}

// Status runs a health check and returns the resulting statistics
func (cm *ConnectionManager) Status(ctx context.Context) ConnectionStats {
	if err := cm.HealthCheck(ctx); err != nil {
		cm.logger.WithError(err).Warn("Node health check failed")
	}
	return cm.Stats()
}

// IsConnected returns whether the manager is connected
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.backend != nil && cm.isHealthy
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.backend != nil {
		cm.backend.Close()
		cm.backend = nil
	}

	cm.isHealthy = false
	cm.logger.Info("Connection manager closed")
	return nil
}

// Stats returns connection statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats
}

// rotatedURLs returns all URLs starting from the current index
func (cm *ConnectionManager) rotatedURLs() []string {
	if cm.currentIndex > 0 && cm.currentIndex < len(cm.urls) {
		rotated := make([]string, len(cm.urls))
		copy(rotated, cm.urls[cm.currentIndex:])
		copy(rotated[len(cm.urls)-cm.currentIndex:], cm.urls[:cm.currentIndex])
		return rotated
	}
	return cm.urls
}

func rpcStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
