package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Canonical encoding: JSON with lexicographically sorted keys and shortest
// number formatting. Every hash and signature in the system is computed
// over bytes produced here, and peers must recompute identical digests
// from the wire form.
//
// encoding/json already sorts map keys and emits shortest-form numbers;
// Block and Transaction declare their fields in lexicographic JSON order,
// so a plain marshal of either is canonical.

// Canonical returns the canonical JSON encoding of v.
func Canonical(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// mustCanonical marshals v and panics on failure. The ledger types contain
// nothing that can fail to marshal.
func mustCanonical(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// HashBlock computes the hex SHA-256 of the block's canonical encoding with
// the hash field removed. The receiver is a copy; the caller's block is
// never mutated.
func HashBlock(b Block) string {
	b.Hash = ""
	sum := sha256.Sum256(mustCanonical(b))
	return hex.EncodeToString(sum[:])
}

// HashTransaction computes the hex SHA-256 of the transaction's canonical
// encoding with the hash and signature fields removed.
func HashTransaction(t Transaction) string {
	t.Hash = ""
	t.Signature = ""
	sum := sha256.Sum256(mustCanonical(t))
	return hex.EncodeToString(sum[:])
}

// signingDigest is the SHA-256 digest a transaction signature commits to:
// the canonical encoding of the transaction without its signature. The
// hash field stays in the signed payload.
func signingDigest(t Transaction) [32]byte {
	t.Signature = ""
	return sha256.Sum256(mustCanonical(t))
}

// isoTimestamp renders t in the ISO-8601 form blocks and transactions
// carry. Timestamps are informational and not enforced monotonic.
func isoTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000")
}
