package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address scheme is fixed to RIPEMD-160
)

// Sha256 returns the SHA-256 digest of b.
func Sha256(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// Ripemd160 returns the RIPEMD-160 digest of b.
func Ripemd160(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}

// CalculateAddress derives the base58check address of a hex-encoded public
// key, Bitcoin uncompressed style:
//
//	base58(0x00 || ripemd160(sha256(0x04 || pub)) || sha256²(...)[:4])
//
// The 0x04 prefix is always prepended; wallets store the bare 64-byte
// point and the network's address scheme is defined over the prefixed
// form.
func CalculateAddress(publicHex string) (string, error) {
	pub, err := hex.DecodeString(publicHex)
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) == 0 {
		return "", fmt.Errorf("empty public key")
	}

	prefixed := append([]byte{0x04}, pub...)

	payload := append([]byte{0x00}, Ripemd160(Sha256(prefixed))...)
	checksum := Sha256(Sha256(payload))[:4]

	return base58.Encode(append(payload, checksum...)), nil
}
