package gateway

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Fixed storage slots of the watch contract
const (
	SlotOwner            = 0x10
	SlotSource           = 0x11
	SlotMinConfirmations = 0x12
	SlotLastUpdated      = 0x13
	SlotWatchList        = 0x20
)

// AddressRecordSize is the number of consecutive words in an address record
const AddressRecordSize = 4

// Offsets of the fields inside an address record
const (
	RecordReceivedByAddress = iota
	RecordLastUpdated
	RecordNrWatched
	RecordLastWatched
)

// Contract command selectors
var (
	CmdWatch                = common.FromHex("0x7761746368")
	CmdSetReceivedByAddress = []byte("setreceivedbyaddress")
)

// SlotKey returns the storage key of a fixed slot
func SlotKey(slot uint64) *uint256.Int {
	return uint256.NewInt(slot)
}

// AddressOffset returns 2^160, the start of the address record space
func AddressOffset() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), 160)
}

// WatchListKey returns the storage key holding the i-th watched address
func WatchListKey(i uint64) *uint256.Int {
	key := uint256.NewInt(SlotWatchList)
	key.Add(key, uint256.NewInt(i))
	return key.Add(key, uint256.NewInt(1))
}

// RecordKey returns the first storage key of the record for addressKey,
// computed as AddressRecordSize*addressKey + 2^160 in 256-bit arithmetic
func RecordKey(addressKey *uint256.Int) *uint256.Int {
	key := new(uint256.Int).Mul(uint256.NewInt(AddressRecordSize), addressKey)
	return key.Add(key, AddressOffset())
}

// RecordFieldKey returns the storage key of one field of an address record
func RecordFieldKey(addressKey *uint256.Int, field uint64) *uint256.Int {
	key := RecordKey(addressKey)
	return key.Add(key, uint256.NewInt(field))
}

// EncodeCommand concatenates a selector and its arguments, each left padded
// to a 32 byte word
func EncodeCommand(selector []byte, args ...[]byte) []byte {
	data := make([]byte, 0, 32*(len(args)+1))
	data = append(data, common.LeftPadBytes(selector, 32)...)
	for _, arg := range args {
		data = append(data, common.LeftPadBytes(arg, 32)...)
	}
	return data
}
