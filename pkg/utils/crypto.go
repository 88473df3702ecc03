package utils

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Has0xPrefix reports whether s starts with 0x or 0X
func Has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Strip0x removes a leading 0x prefix
func Strip0x(s string) string {
	if Has0xPrefix(s) {
		return s[2:]
	}
	return s
}

// ParsePrivateKey parses a hex encoded secp256k1 key and returns it with
// its derived account address
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, common.Address, error) {
	key, err := crypto.HexToECDSA(Strip0x(strings.TrimSpace(hexKey)))
	if err != nil {
		return nil, common.Address{}, WrapError(ErrCodeConfiguration, "Invalid sender key", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}
