// Package coinaddr converts between raw hash payloads as stored in contract
// words and versioned Base58Check cryptocurrency addresses.
package coinaddr

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"

	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// HashLength is the size in bytes of the address hash carried by an
// encoded address.
const HashLength = 20

var (
	// ErrInvalidHex is returned for payloads that are not hex encoded.
	ErrInvalidHex = errors.New("invalid hex payload")
	// ErrInvalidHashLength is returned when the hash is not HashLength bytes.
	ErrInvalidHashLength = errors.New("invalid hash length")
	// ErrChecksum is returned when an encoded address fails its checksum.
	ErrChecksum = base58.ErrChecksum
	// ErrInvalidFormat is returned for addresses outside the base58
	// alphabet or too short to carry a version and checksum.
	ErrInvalidFormat = base58.ErrInvalidFormat
)

// HexToAddress encodes a 0x-prefixed hex payload as an address. A payload
// of exactly 40 hex characters is a bare hash with version 0, anything else
// carries its version in the first byte.
func HexToAddress(hexStr string) (string, error) {
	payload := utils.Strip0x(hexStr)

	raw, err := hex.DecodeString(payload)
	if err != nil {
		return "", decodeError("Invalid hex payload", fmt.Errorf("%w: %v", ErrInvalidHex, err))
	}

	var (
		version byte
		hash    []byte
	)
	if len(payload) == 2*HashLength {
		hash = raw
	} else {
		if len(raw) == 0 {
			return "", decodeError("Empty hex payload", ErrInvalidHashLength)
		}
		version, hash = raw[0], raw[1:]
	}

	if len(hash) != HashLength {
		return "", decodeError("Invalid address hash",
			fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidHashLength, len(hash), HashLength))
	}

	return base58.CheckEncode(hash, version), nil
}

// AddressToHex decodes an address back to its 0x-prefixed version byte and
// hash.
func AddressToHex(address string) (string, error) {
	hash, version, err := base58.CheckDecode(address)
	if err != nil {
		return "", decodeError("Invalid address", err)
	}
	if len(hash) != HashLength {
		return "", decodeError("Invalid address hash",
			fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidHashLength, len(hash), HashLength))
	}

	return "0x" + hex.EncodeToString(append([]byte{version}, hash...)), nil
}

// Version returns the version byte of an encoded address.
func Version(address string) (byte, error) {
	_, version, err := base58.CheckDecode(address)
	if err != nil {
		return 0, decodeError("Invalid address", err)
	}
	return version, nil
}

func decodeError(message string, cause error) error {
	return utils.WrapError(utils.ErrCodeAddressDecode, message, cause)
}
