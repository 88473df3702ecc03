package gateway

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// ErrWordOverflow is returned when a storage word does not fit the field it
// is decoded into.
var ErrWordOverflow = errors.New("storage word out of range")

// Word is a raw 32 byte contract storage word
type Word [32]byte

// WordFromBytes right-aligns b into a word, keeping its low 32 bytes
func WordFromBytes(b []byte) Word {
	var w Word
	if len(b) > len(w) {
		b = b[len(b)-len(w):]
	}
	copy(w[len(w)-len(b):], b)
	return w
}

// WordFromUint64 builds a word holding v
func WordFromUint64(v uint64) Word {
	return Word(uint256.NewInt(v).Bytes32())
}

// Hex returns the full 0x-prefixed hex form of the word
func (w Word) Hex() string {
	return "0x" + hex.EncodeToString(w[:])
}

// Dec returns the word as an unsigned decimal string
func (w Word) Dec() string {
	return w.Uint256().Dec()
}

// Big returns the word as an unsigned big integer
func (w Word) Big() *big.Int {
	return new(big.Int).SetBytes(w[:])
}

// Uint256 returns the word as a 256-bit unsigned integer
func (w Word) Uint256() *uint256.Int {
	return new(uint256.Int).SetBytes32(w[:])
}

// Uint64 decodes the word as an unsigned count
func (w Word) Uint64() (uint64, error) {
	v := w.Uint256()
	if !v.IsUint64() {
		return 0, utils.WrapError(utils.ErrCodeValidation, "Storage word does not fit uint64",
			fmt.Errorf("%w: %s", ErrWordOverflow, w.Hex()))
	}
	return v.Uint64(), nil
}

// Int64 decodes the word as a unix timestamp
func (w Word) Int64() (int64, error) {
	v, err := w.Uint64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt64 {
		return 0, utils.WrapError(utils.ErrCodeValidation, "Storage word does not fit int64",
			fmt.Errorf("%w: %s", ErrWordOverflow, w.Hex()))
	}
	return int64(v), nil
}

// Address returns the low 20 bytes of the word as an account address
func (w Word) Address() common.Address {
	return common.BytesToAddress(w[12:])
}

// Text returns the word bytes as a string with zero padding removed
func (w Word) Text() string {
	return string(bytes.Trim(w[:], "\x00"))
}

// AddressHex renders a stored cryptocurrency address payload. Words that fit
// in 20 bytes render as a bare 40 character hash; words with a non-zero
// byte right above the hash render with that byte as the version prefix.
func (w Word) AddressHex() string {
	switch {
	case isZero(w[:12]):
		return "0x" + hex.EncodeToString(w[12:])
	case isZero(w[:11]):
		return "0x" + hex.EncodeToString(w[11:])
	default:
		return w.Hex()
	}
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
