package gateway

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/coinwatch-gateway/internal/models"
)

// GetStatistics reads the fixed statistics slots of contract
func (g *Gateway) GetStatistics(ctx context.Context, contract common.Address) (*models.ContractStatistics, error) {
	owner, err := g.read(ctx, contract, SlotKey(SlotOwner), "statistics")
	if err != nil {
		return nil, err
	}

	source, err := g.read(ctx, contract, SlotKey(SlotSource), "statistics")
	if err != nil {
		return nil, err
	}

	minConfWord, err := g.read(ctx, contract, SlotKey(SlotMinConfirmations), "statistics")
	if err != nil {
		return nil, err
	}
	minConfirmations, err := minConfWord.Uint64()
	if err != nil {
		return nil, err
	}

	lastUpdatedWord, err := g.read(ctx, contract, SlotKey(SlotLastUpdated), "statistics")
	if err != nil {
		return nil, err
	}
	lastUpdated, err := lastUpdatedWord.Int64()
	if err != nil {
		return nil, err
	}

	length, err := g.watchListLength(ctx, contract)
	if err != nil {
		return nil, err
	}

	return &models.ContractStatistics{
		Contract:         contract,
		Owner:            owner.Address(),
		Source:           source.Text(),
		MinConfirmations: minConfirmations,
		LastUpdated:      lastUpdated,
		WatchListLength:  length,
	}, nil
}

func (g *Gateway) watchListLength(ctx context.Context, contract common.Address) (uint64, error) {
	word, err := g.read(ctx, contract, SlotKey(SlotWatchList), "statistics")
	if err != nil {
		return 0, err
	}

	length, err := word.Uint64()
	if err != nil {
		return 0, err
	}

	g.metrics.UpdateWatchListLength(length)
	return length, nil
}
