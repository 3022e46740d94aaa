package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Proof of work: the hex SHA-256 of "{lastPow}{lastHash}{proof}" must
// start with PowZeros hex zero digits. Verification is a single hash;
// mining searches nonces linearly from zero so the first valid nonce by
// ascending value is always the one returned.

// IsValidProof reports whether proof is a valid witness for the block
// following (lastPow, lastHash) under the given difficulty.
func IsValidProof(lastPow int, lastHash string, proof, zeros int) bool {
	guess := fmt.Sprintf("%d%s%d", lastPow, lastHash, proof)
	sum := sha256.Sum256([]byte(guess))
	return strings.HasPrefix(hex.EncodeToString(sum[:]), strings.Repeat("0", zeros))
}

// NextPow searches for the lowest valid nonce. The search is CPU-bound and
// long-running; callers must not hold the engine lock and may cancel
// through ctx, checked every few thousand candidates.
func NextPow(ctx context.Context, lastPow int, lastHash string, zeros int) (int, error) {
	prefix := strings.Repeat("0", zeros)
	for proof := 0; ; proof++ {
		if proof&0x0fff == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		guess := fmt.Sprintf("%d%s%d", lastPow, lastHash, proof)
		sum := sha256.Sum256([]byte(guess))
		if strings.HasPrefix(hex.EncodeToString(sum[:]), prefix) {
			return proof, nil
		}
	}
}
