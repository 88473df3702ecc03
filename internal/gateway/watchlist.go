package gateway

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/pkg/coinaddr"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// maxPrealloc bounds the capacity reserved up front for a watch list, the
// length comes from contract storage
const maxPrealloc = 1024

// GetWatchList reads every watched address of contract in list order
// together with its record. Each call performs 1 + 5*length reads.
func (g *Gateway) GetWatchList(ctx context.Context, contract common.Address) ([]*models.WatchListEntry, error) {
	length, err := g.watchListLength(ctx, contract)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.WatchListEntry, 0, min(length, maxPrealloc))
	for i := uint64(0); i < length; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		word, err := g.read(ctx, contract, WatchListKey(i), "watch_list")
		if err != nil {
			return nil, err
		}

		addressHex := word.AddressHex()
		address, err := coinaddr.HexToAddress(addressHex)
		if err != nil {
			return nil, utils.WrapError(utils.ErrCodeAddressDecode,
				fmt.Sprintf("Watch list entry %d holds an undecodable address", i), err)
		}

		record, err := g.readRecord(ctx, contract, word.Uint256())
		if err != nil {
			return nil, err
		}

		entries = append(entries, models.NewWatchListEntry(address, addressHex, record))
	}

	g.logger.WithFields(logrus.Fields{
		"contract": contract.Hex(),
		"length":   length,
	}).Debug("Watch list read")

	return entries, nil
}

// GetAddressRecord reads the record stored for a numeric address key. Keys
// that were never written read back as a zero record.
func (g *Gateway) GetAddressRecord(ctx context.Context, contract common.Address, addressKey *uint256.Int) (*models.AddressRecord, error) {
	return g.readRecord(ctx, contract, addressKey)
}

// LookupAddress reads the record of an encoded address, whether or not it
// is on the watch list
func (g *Gateway) LookupAddress(ctx context.Context, contract common.Address, address string) (*models.WatchListEntry, error) {
	hexStr, err := coinaddr.AddressToHex(address)
	if err != nil {
		g.metrics.RecordAddressDecodeError("lookup")
		return nil, err
	}

	word := WordFromBytes(common.FromHex(hexStr))
	record, err := g.GetAddressRecord(ctx, contract, word.Uint256())
	if err != nil {
		return nil, err
	}

	return models.NewWatchListEntry(address, word.AddressHex(), record), nil
}

func (g *Gateway) readRecord(ctx context.Context, contract common.Address, addressKey *uint256.Int) (*models.AddressRecord, error) {
	var words [AddressRecordSize]Word
	for field := range words {
		word, err := g.read(ctx, contract, RecordFieldKey(addressKey, uint64(field)), "record")
		if err != nil {
			return nil, err
		}
		words[field] = word
	}

	received, err := words[RecordReceivedByAddress].Uint64()
	if err != nil {
		return nil, err
	}
	lastUpdated, err := words[RecordLastUpdated].Int64()
	if err != nil {
		return nil, err
	}
	nrWatched, err := words[RecordNrWatched].Uint64()
	if err != nil {
		return nil, err
	}
	lastWatched, err := words[RecordLastWatched].Int64()
	if err != nil {
		return nil, err
	}

	return &models.AddressRecord{
		ReceivedByAddress: received,
		LastUpdated:       lastUpdated,
		NrWatched:         nrWatched,
		LastWatched:       lastWatched,
	}, nil
}
