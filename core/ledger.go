package core

import (
	log "github.com/sirupsen/logrus"
)

// Chain validation and state replay. A chain is an ordered block sequence
// starting at a genesis block; replaying it from an empty state yields the
// address → balance mapping, or fails if any block link is broken.

// IsGenesisBlock reports whether b is a well-formed genesis block.
func IsGenesisBlock(b Block) bool {
	return b.BlockN == 0 &&
		len(b.Tokens) == 1 &&
		b.PreviousHash == GenesisPreviousHash &&
		b.Pow == GenesisPow
}

// IsValidNextBlock checks b as the direct successor of last: both
// self-hashes recomputed, the parent link, the height step, and the proof
// of work witness.
func IsValidNextBlock(last, b Block, zeros int) bool {
	selfCheck := b.Hash == HashBlock(b)
	lastCheck := last.Hash == HashBlock(last)
	prevCheck := b.PreviousHash == last.Hash
	numCheck := b.BlockN == last.BlockN+1
	powCheck := IsValidProof(last.Pow, last.Hash, b.Pow, zeros)

	if !(selfCheck && lastCheck && prevCheck && numCheck && powCheck) {
		log.Debugf("block %d rejected after block %d: self=%t last=%t prev=%t num=%t pow=%t",
			b.BlockN, last.BlockN, selfCheck, lastCheck, prevCheck, numCheck, powCheck)
		return false
	}
	return true
}

// UpdateState applies tokens to a copy of state in order. Invalid tokens
// are silently skipped: this is part of the consensus contract (a block
// may structurally carry garbage tokens; replay ignores them), so peers
// that enforce it differently would diverge.
func UpdateState(state State, tokens ...Transaction) State {
	state = state.Clone()
	for _, t := range tokens {
		if !IsValidTransaction(state, t) {
			log.Warnf("skipping invalid transaction %s during state update", t.Hash)
			continue
		}
		if t.Sender != RewardSender {
			state[t.Sender] -= t.Amount
		}
		state[t.Recipient] += t.Amount
	}
	return state
}

// ValidateChain replays a chain from an empty state. It returns the final
// state and true, or nil and false if the genesis block's self-hash is
// wrong or its block_n is not 0, or any block fails validation against
// its parent. The other genesis fields (pow, previous_hash, token count)
// are not checked here.
func ValidateChain(chain []Block, zeros int) (State, bool) {
	if len(chain) == 0 {
		return State{}, true
	}

	genesis := chain[0]
	if genesis.Hash != HashBlock(genesis) || genesis.BlockN != 0 {
		log.Debug("chain rejected: bad genesis block")
		return nil, false
	}

	state := UpdateState(State{}, genesis.Tokens...)
	last := genesis
	for i, b := range chain[1:] {
		if !IsValidNextBlock(last, b, zeros) {
			log.Debugf("chain rejected at block index %d", i+1)
			return nil, false
		}
		state = UpdateState(state, b.Tokens...)
		last = b
	}
	return state, true
}

// ChainTransactionHashes collects the hash of every transaction confirmed
// in the chain.
func ChainTransactionHashes(chain []Block) map[string]struct{} {
	hashes := make(map[string]struct{})
	for _, b := range chain {
		for _, t := range b.Tokens {
			hashes[t.Hash] = struct{}{}
		}
	}
	return hashes
}
