package gateway

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/pkg/coinaddr"
)

// Command names used in logs, metrics and receipts
const (
	CommandWatch                = "watch"
	CommandSetReceivedByAddress = "setreceivedbyaddress"
)

// Receipt describes a submitted contract command
type Receipt struct {
	Command     string         `json:"command"`
	Contract    common.Address `json:"contract"`
	Address     string         `json:"address"`
	AddressHex  string         `json:"address_hex"`
	TxHash      common.Hash    `json:"tx_hash"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// WatchAddress asks the configured contract to watch an encoded address.
// An address that fails to decode is returned as an address decode error
// and nothing is submitted. onAccepted runs once, on its own goroutine,
// when the node accepts the transaction.
func (g *Gateway) WatchAddress(ctx context.Context, address string, onAccepted func(*Receipt)) (*Receipt, error) {
	hexStr, err := coinaddr.AddressToHex(address)
	if err != nil {
		g.metrics.RecordAddressDecodeError(CommandWatch)
		g.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Rejected address")
		return nil, err
	}

	req := &TxRequest{
		To:       g.config.ContractAddress,
		Value:    new(big.Int),
		Data:     EncodeCommand(CmdWatch, common.FromHex(hexStr)),
		GasLimit: g.config.GasLimit,
		GasPrice: g.config.GasPrice,
	}

	base := Receipt{
		Command:     CommandWatch,
		Contract:    g.config.ContractAddress,
		Address:     address,
		AddressHex:  hexStr,
		SubmittedAt: time.Now().UTC(),
	}

	return g.submitReceipt(ctx, base, req, onAccepted)
}

// SetReceivedByAddress stores the amount received by a watched address.
// Only the contract owner may send it.
func (g *Gateway) SetReceivedByAddress(ctx context.Context, addressHex string, value uint64, onAccepted func(*Receipt)) (*Receipt, error) {
	address, err := coinaddr.HexToAddress(addressHex)
	if err != nil {
		g.metrics.RecordAddressDecodeError(CommandSetReceivedByAddress)
		return nil, err
	}

	amount := uint256.NewInt(value).Bytes()
	req := &TxRequest{
		To:       g.config.ContractAddress,
		Value:    new(big.Int),
		Data:     EncodeCommand(CmdSetReceivedByAddress, common.FromHex(addressHex), amount),
		GasLimit: g.config.GasLimit,
		GasPrice: g.config.GasPrice,
	}

	base := Receipt{
		Command:     CommandSetReceivedByAddress,
		Contract:    g.config.ContractAddress,
		Address:     address,
		AddressHex:  addressHex,
		SubmittedAt: time.Now().UTC(),
	}

	return g.submitReceipt(ctx, base, req, onAccepted)
}

func (g *Gateway) submitReceipt(ctx context.Context, base Receipt, req *TxRequest, onAccepted func(*Receipt)) (*Receipt, error) {
	hash, err := g.submit(ctx, base.Command, req, func(h common.Hash) {
		if onAccepted == nil {
			return
		}
		accepted := base
		accepted.TxHash = h
		onAccepted(&accepted)
	})
	if err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"command":  base.Command,
		"address":  base.Address,
		"contract": base.Contract.Hex(),
		"tx_hash":  hash.Hex(),
	}).Info("Transaction submitted")

	submitted := base
	submitted.TxHash = hash
	return &submitted, nil
}
