package core

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// CreateTransaction builds and signs a transfer from the wallet's address.
// The amount is normalised to a non-negative float before hashing, so
// callers cannot produce a balance-increasing negative transfer.
func CreateTransaction(wallet *Wallet, recipient string, amount float64) (Transaction, error) {
	sender, err := CalculateAddress(wallet.Public)
	if err != nil {
		return Transaction{}, err
	}

	t := Transaction{
		Amount:    math.Abs(amount),
		PublicKey: wallet.Public,
		Recipient: recipient,
		Sender:    sender,
		Timestamp: isoTimestamp(time.Now()),
	}
	t.Hash = HashTransaction(t)

	digest := signingDigest(t)
	sig, err := SignDigest(wallet.Private, digest[:])
	if err != nil {
		return Transaction{}, fmt.Errorf("sign transaction: %w", err)
	}
	t.Signature = sig
	return t, nil
}

// CreateRewardTransaction builds the per-block miner reward: sender "0",
// credited to the wallet's address. The reward is signed with the miner's
// key even though validation only checks hash and fields for sender "0".
func CreateRewardTransaction(wallet *Wallet, reward float64) (Transaction, error) {
	derived, err := CalculateAddress(wallet.Public)
	if err != nil {
		return Transaction{}, err
	}
	if wallet.Address != derived {
		return Transaction{}, fmt.Errorf("wallet address %s does not match its public key", wallet.Address)
	}

	t := Transaction{
		Amount:    reward,
		PublicKey: wallet.Public,
		Recipient: wallet.Address,
		Sender:    RewardSender,
		Timestamp: isoTimestamp(time.Now()),
	}
	t.Hash = HashTransaction(t)

	digest := signingDigest(t)
	sig, err := SignDigest(wallet.Private, digest[:])
	if err != nil {
		return Transaction{}, fmt.Errorf("sign reward: %w", err)
	}
	t.Signature = sig
	return t, nil
}

// IsValidTransaction checks a transaction against a balance state:
// all fields present, the self-hash correct, and — for non-reward
// transactions — the sender address derived from the public key, the
// signature valid over the hash-bearing payload, and the sender funded.
// Reward transactions (sender "0") are accepted on hash and fields alone;
// their per-block constraints are enforced by block construction.
func IsValidTransaction(state State, t Transaction) bool {
	if t.Sender == "" || t.Recipient == "" || t.Timestamp == "" ||
		t.PublicKey == "" || t.Signature == "" || t.Hash == "" {
		log.Debug("transaction rejected: missing fields")
		return false
	}
	if t.Amount < 0 {
		log.Debug("transaction rejected: negative amount")
		return false
	}

	if t.Hash != HashTransaction(t) {
		log.Debugf("transaction %s rejected: incorrect hash", t.Hash)
		return false
	}

	if t.Sender == RewardSender {
		return true
	}

	sender, err := CalculateAddress(t.PublicKey)
	if err != nil || sender != t.Sender {
		log.Debugf("transaction %s rejected: sender does not match public key", t.Hash)
		return false
	}

	digest := signingDigest(t)
	if !VerifyDigest(t.PublicKey, t.Signature, digest[:]) {
		log.Debugf("transaction %s rejected: signature error", t.Hash)
		return false
	}

	return state.Get(t.Sender) >= t.Amount
}
