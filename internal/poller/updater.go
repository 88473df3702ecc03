// Package poller keeps the received amounts of watched addresses fresh. It
// runs as the contract owner: every stale record gets the current amount
// from an external balance source.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// ContractReader reads the contract state the updater walks
type ContractReader interface {
	Contract() common.Address
	GetStatistics(ctx context.Context, contract common.Address) (*models.ContractStatistics, error)
	GetWatchList(ctx context.Context, contract common.Address) ([]*models.WatchListEntry, error)
}

// RecordUpdater submits a new received amount for a watched address
type RecordUpdater interface {
	UpdateReceived(ctx context.Context, entry *models.WatchListEntry, value uint64) (*models.WatchSubmission, error)
}

// Config holds updater configuration
type Config struct {
	// Interval between runs when started
	Interval time.Duration
	// UpdateInterval is the age after which a record is refreshed
	UpdateInterval time.Duration
	Confirmations  int
}

// RunResult summarizes one pass over the watch list
type RunResult struct {
	Checked  int      `json:"checked"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	TxHashes []string `json:"tx_hashes,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// UpdaterStats provides updater statistics
type UpdaterStats struct {
	IsRunning    bool      `json:"is_running"`
	Runs         uint64    `json:"runs"`
	FailedRuns   uint64    `json:"failed_runs"`
	Updated      uint64    `json:"updated"`
	LastRunAt    time.Time `json:"last_run_at"`
	LastRunError string    `json:"last_run_error,omitempty"`
}

// Updater refreshes stale watch records
type Updater struct {
	reader  ContractReader
	updater RecordUpdater
	balance BalanceSource
	owner   common.Address
	config  Config
	now     func() time.Time
	metrics *metrics.PrometheusMetrics
	logger  *logrus.Entry

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	stats    UpdaterStats
}

// NewUpdater creates an updater acting as owner
func NewUpdater(reader ContractReader, updater RecordUpdater, balance BalanceSource, owner common.Address, cfg Config, metricsManager *metrics.Manager) *Updater {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}

	return &Updater{
		reader:  reader,
		updater: updater,
		balance: balance,
		owner:   owner,
		config:  cfg,
		now:     time.Now,
		metrics: metricsManager.GetPrometheusMetrics(),
		logger:  utils.ComponentLogger("poller"),
	}
}

// RunOnce walks the watch list and updates every record older than the
// update interval. It refuses to run unless the sender owns the contract.
// Per-address failures are collected in the result and do not stop the run.
func (u *Updater) RunOnce(ctx context.Context) (*RunResult, error) {
	result, err := u.run(ctx)

	u.mu.Lock()
	u.stats.Runs++
	u.stats.LastRunAt = u.now()
	u.stats.LastRunError = ""
	if err != nil {
		u.stats.FailedRuns++
		u.stats.LastRunError = err.Error()
	} else {
		u.stats.Updated += uint64(result.Updated)
	}
	u.mu.Unlock()

	if err != nil {
		u.metrics.RecordPollerRun("error", 0)
		return nil, err
	}
	u.metrics.RecordPollerRun("success", result.Updated)
	return result, nil
}

func (u *Updater) run(ctx context.Context) (*RunResult, error) {
	contract := u.reader.Contract()

	stats, err := u.reader.GetStatistics(ctx, contract)
	if err != nil {
		return nil, err
	}
	if stats.Owner != u.owner {
		return nil, utils.NewAppError(utils.ErrCodeNotOwner, "You are not the owner of the contract",
			"owner "+stats.Owner.Hex()+", sender "+u.owner.Hex())
	}

	entries, err := u.reader.GetWatchList(ctx, contract)
	if err != nil {
		return nil, err
	}

	result := &RunResult{}
	now := u.now().Unix()
	maxAge := int64(u.config.UpdateInterval / time.Second)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		log := u.logger.WithFields(logrus.Fields{
			"address":      entry.Address,
			"last_updated": entry.LastUpdated,
		})

		if now-entry.LastUpdated <= maxAge {
			result.Skipped++
			log.Debug("Not updating, already recently updated")
			continue
		}

		value, err := u.balance.ReceivedByAddress(ctx, entry.Address, u.config.Confirmations)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, entry.Address+": "+err.Error())
			log.WithError(err).Warn("Balance lookup failed")
			continue
		}

		submission, err := u.updater.UpdateReceived(ctx, entry, value)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, entry.Address+": "+err.Error())
			log.WithError(err).Error("Failed to submit update")
			continue
		}

		result.Updated++
		result.TxHashes = append(result.TxHashes, submission.TxHash)
		log.WithFields(logrus.Fields{
			"value":   value,
			"tx_hash": submission.TxHash,
		}).Info("Updated received amount")
	}

	return result, nil
}

// Start runs RunOnce immediately and then on every interval until Stop or
// ctx is done
func (u *Updater) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Updater already running", "")
	}

	u.running = true
	u.stats.IsRunning = true
	u.stopChan = make(chan struct{})

	u.wg.Add(1)
	go u.loop(ctx, u.stopChan)

	u.logger.WithField("interval", u.config.Interval).Info("Owner updater started")
	return nil
}

func (u *Updater) loop(ctx context.Context, stop <-chan struct{}) {
	defer u.wg.Done()

	ticker := time.NewTicker(u.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := u.RunOnce(ctx); err != nil {
			u.logger.WithError(err).Error("Update run failed")
		}

		select {
		case <-ctx.Done():
			u.logger.Info("Updater stopped by context")
			return
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop stops the update loop and waits for the current run to finish
func (u *Updater) Stop() error {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return nil
	}
	u.running = false
	u.stats.IsRunning = false
	close(u.stopChan)
	u.mu.Unlock()

	u.wg.Wait()
	u.logger.Info("Owner updater stopped")
	return nil
}

// IsRunning returns whether the update loop is running
func (u *Updater) IsRunning() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.running
}

// GetStats returns updater statistics
func (u *Updater) GetStats() UpdaterStats {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.stats
}
