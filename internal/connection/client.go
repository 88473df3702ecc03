package connection

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/gateway"
	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// BackendProvider hands out the live node backend
type BackendProvider interface {
	Backend(ctx context.Context) (Backend, error)
}

// NodeClient reads contract storage and signs transactions against a node.
// It implements gateway.StateReader and gateway.TransactionSubmitter.
type NodeClient struct {
	provider BackendProvider
	key      *ecdsa.PrivateKey
	from     common.Address
	nonceMu  sync.Mutex
	metrics  *metrics.PrometheusMetrics
	logger   *logrus.Entry
}

var (
	_ gateway.StateReader          = (*NodeClient)(nil)
	_ gateway.TransactionSubmitter = (*NodeClient)(nil)
)

// NewNodeClient creates a node client. senderKey may be empty, in which case
// the client is read-only and Transact fails with a configuration error.
func NewNodeClient(provider BackendProvider, senderKey string, metricsManager *metrics.Manager) (*NodeClient, error) {
	nc := &NodeClient{
		provider: provider,
		metrics:  metricsManager.GetPrometheusMetrics(),
		logger:   utils.ComponentLogger("node_client"),
	}

	if senderKey != "" {
		key, from, err := utils.ParsePrivateKey(senderKey)
		if err != nil {
			return nil, err
		}
		nc.key = key
		nc.from = from
	}

	return nc, nil
}

// From returns the sender address, or the zero address for a read-only client
func (nc *NodeClient) From() common.Address {
	return nc.from
}

// CanTransact reports whether a signing key is configured
func (nc *NodeClient) CanTransact() bool {
	return nc.key != nil
}

// SenderBalance returns the sender's balance in wei at the latest block
func (nc *NodeClient) SenderBalance(ctx context.Context) (*big.Int, error) {
	if nc.key == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "No sender key configured", "")
	}

	backend, err := nc.provider.Backend(ctx)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeExternalCall, "Node unavailable", err)
	}

	balance, err := backend.BalanceAt(ctx, nc.from, nil)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeExternalCall, "Failed to get balance", err)
	}
	return balance, nil
}

// StateAt reads one storage word of contract at the latest block
func (nc *NodeClient) StateAt(ctx context.Context, contract common.Address, key *uint256.Int) (gateway.Word, error) {
	backend, err := nc.provider.Backend(ctx)
	if err != nil {
		return gateway.Word{}, utils.WrapError(utils.ErrCodeExternalCall, "Node unavailable", err)
	}

	start := time.Now()
	raw, err := backend.StorageAt(ctx, contract, common.Hash(key.Bytes32()), nil)
	nc.metrics.RecordRPCRequest("eth_getStorageAt", rpcStatus(err), time.Since(start))
	if err != nil {
		return gateway.Word{}, utils.WrapError(utils.ErrCodeExternalCall, "Failed to read storage", err)
	}

	return gateway.WordFromBytes(raw), nil
}

// Transact signs req as a legacy transaction and sends it. onAccepted runs in
// its own goroutine once the node accepted the transaction.
func (nc *NodeClient) Transact(ctx context.Context, req *gateway.TxRequest, onAccepted func(common.Hash)) (common.Hash, error) {
	if nc.key == nil {
		return common.Hash{}, utils.NewAppError(utils.ErrCodeConfiguration,
			"No sender key configured", "set contract.sender_key to submit transactions")
	}

	backend, err := nc.provider.Backend(ctx)
	if err != nil {
		return common.Hash{}, utils.WrapError(utils.ErrCodeExternalCall, "Node unavailable", err)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, utils.WrapError(utils.ErrCodeExternalCall, "Failed to get chain ID", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice, err = backend.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, utils.WrapError(utils.ErrCodeExternalCall, "Failed to get gas price", err)
		}
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nc.nonceMu.Lock()
	defer nc.nonceMu.Unlock()

	nonce, err := backend.PendingNonceAt(ctx, nc.from)
	if err != nil {
		return common.Hash{}, utils.WrapError(utils.ErrCodeExternalCall, "Failed to get nonce", err)
	}

	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      req.GasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), nc.key)
	if err != nil {
		return common.Hash{}, utils.WrapError(utils.ErrCodeInternal, "Failed to sign transaction", err)
	}

	start := time.Now()
	err = backend.SendTransaction(ctx, signed)
	nc.metrics.RecordRPCRequest("eth_sendRawTransaction", rpcStatus(err), time.Since(start))
	if err != nil {
		return common.Hash{}, utils.WrapError(utils.ErrCodeExternalCall, "Failed to send transaction", err)
	}

	hash := signed.Hash()
	nc.logger.WithFields(logrus.Fields{
		"tx_hash": hash.Hex(),
		"to":      to.Hex(),
		"nonce":   nonce,
	}).Info("Transaction sent")

	if onAccepted != nil {
		go onAccepted(hash)
	}

	return hash, nil
}

// WaitForNextBlock blocks until the node reports a block above the current
// one, polling every interval
func (nc *NodeClient) WaitForNextBlock(ctx context.Context, interval time.Duration) (uint64, error) {
	backend, err := nc.provider.Backend(ctx)
	if err != nil {
		return 0, err
	}

	current, err := backend.BlockNumber(ctx)
	if err != nil {
		return 0, utils.WrapError(utils.ErrCodeExternalCall, "Failed to get latest block", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
			latest, err := backend.BlockNumber(ctx)
			if err != nil {
				nc.logger.WithError(err).Warn("Failed to get latest block number")
				continue
			}
			if latest > current {
				return latest, nil
			}
			nc.logger.WithField("block", latest).Debug("Waiting for next block")
		}
	}
}
