// Package gateway reads typed fields out of the watch contract's storage and
// builds the transactions the contract accepts. A Gateway holds no mutable
// state: every call is an independent snapshot read or a new submission.
package gateway

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// DefaultGasLimit is the gas limit attached to contract commands
const DefaultGasLimit = 10000

// StateReader reads raw storage words of a contract
type StateReader interface {
	StateAt(ctx context.Context, contract common.Address, key *uint256.Int) (Word, error)
}

// TransactionSubmitter submits transactions. Transact returns once the
// transaction was handed to the node; onAccepted, when non-nil, is invoked
// exactly once and asynchronously after the node accepted it.
type TransactionSubmitter interface {
	Transact(ctx context.Context, req *TxRequest, onAccepted func(common.Hash)) (common.Hash, error)
}

// TxRequest describes a contract transaction. A nil GasPrice lets the
// submitter use the price currently suggested by the node.
type TxRequest struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
}

// Config holds gateway configuration
type Config struct {
	ContractAddress common.Address
	GasLimit        uint64
	GasPrice        *big.Int
}

// Gateway translates between contract storage words and typed values
type Gateway struct {
	config    Config
	reader    StateReader
	submitter TransactionSubmitter
	metrics   *metrics.PrometheusMetrics
	logger    *logrus.Entry
}

// NewGateway creates a gateway. submitter may be nil for read-only use.
func NewGateway(cfg Config, reader StateReader, submitter TransactionSubmitter, metricsManager *metrics.Manager) *Gateway {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}

	return &Gateway{
		config:    cfg,
		reader:    reader,
		submitter: submitter,
		metrics:   metricsManager.GetPrometheusMetrics(),
		logger:    utils.ComponentLogger("gateway"),
	}
}

// Contract returns the configured contract address
func (g *Gateway) Contract() common.Address {
	return g.config.ContractAddress
}

// read fetches one storage word, classifying failures as external call
// failures
func (g *Gateway) read(ctx context.Context, contract common.Address, key *uint256.Int, operation string) (Word, error) {
	start := time.Now()

	word, err := g.reader.StateAt(ctx, contract, key)
	if err != nil {
		g.metrics.RecordStorageRead(operation, "error", time.Since(start))
		g.logger.WithFields(logrus.Fields{
			"contract": contract.Hex(),
			"key":      key.Hex(),
			"error":    err,
		}).Error("Failed to read contract storage")

		if utils.IsCode(err, utils.ErrCodeExternalCall) {
			return Word{}, err
		}
		return Word{}, utils.WrapError(utils.ErrCodeExternalCall,
			fmt.Sprintf("Failed to read storage key %s", key.Hex()), err)
	}

	g.metrics.RecordStorageRead(operation, "success", time.Since(start))
	return word, nil
}

func (g *Gateway) submit(ctx context.Context, command string, req *TxRequest, onAccepted func(common.Hash)) (common.Hash, error) {
	if g.submitter == nil {
		return common.Hash{}, utils.NewAppError(utils.ErrCodeConfiguration,
			"No transaction submitter configured", command)
	}

	hash, err := g.submitter.Transact(ctx, req, func(h common.Hash) {
		g.metrics.RecordTransactionAccepted(command)
		g.logger.WithFields(logrus.Fields{
			"command": command,
			"tx_hash": h.Hex(),
		}).Info("Transaction accepted")

		if onAccepted != nil {
			onAccepted(h)
		}
	})
	if err != nil {
		g.metrics.RecordTransactionSubmitted(command, "error")
		if utils.IsCode(err, utils.ErrCodeExternalCall) || utils.IsCode(err, utils.ErrCodeConfiguration) {
			return common.Hash{}, err
		}
		return common.Hash{}, utils.WrapError(utils.ErrCodeExternalCall,
			fmt.Sprintf("Failed to submit %s transaction", command), err)
	}

	g.metrics.RecordTransactionSubmitted(command, "success")
	return hash, nil
}
