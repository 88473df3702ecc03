package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// ContractStatistics is a snapshot of the fixed statistics slots of the
// watch contract
type ContractStatistics struct {
	Contract         common.Address `json:"contract"`
	Owner            common.Address `json:"owner"`
	Source           string         `json:"source"`
	MinConfirmations uint64         `json:"min_confirmations"`
	LastUpdated      int64          `json:"last_updated"`
	WatchListLength  uint64         `json:"watch_list_length"`
}

// AddressRecord holds the four words stored for a watched address
type AddressRecord struct {
	ReceivedByAddress uint64 `json:"received_by_address"`
	LastUpdated       int64  `json:"last_updated"`
	NrWatched         uint64 `json:"nr_watched"`
	LastWatched       int64  `json:"last_watched"`
}

// WatchListEntry is one watched address together with its record
type WatchListEntry struct {
	Address           string `json:"address"`
	AddressHex        string `json:"address_hex"`
	ReceivedByAddress uint64 `json:"received_by_address"`
	LastUpdated       int64  `json:"last_updated"`
	NrWatched         uint64 `json:"nr_watched"`
	LastWatched       int64  `json:"last_watched"`
}

// NewWatchListEntry combines an encoded address with its record
func NewWatchListEntry(address, addressHex string, record *AddressRecord) *WatchListEntry {
	return &WatchListEntry{
		Address:           address,
		AddressHex:        addressHex,
		ReceivedByAddress: record.ReceivedByAddress,
		LastUpdated:       record.LastUpdated,
		NrWatched:         record.NrWatched,
		LastWatched:       record.LastWatched,
	}
}
