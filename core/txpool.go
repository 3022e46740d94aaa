package core

import (
	log "github.com/sirupsen/logrus"
)

// The transaction pool holds unconfirmed transactions in insertion order,
// deduplicated by hash against both the pool and the confirmed chain.

// UpdateTransaction appends a transaction to the pool unless its hash is
// already pending or confirmed, persists the pool, and gossips the
// transaction to all peers. Replays of the same gossip message are no-ops.
func (bc *Blockchain) UpdateTransaction(t Transaction) bool {
	bc.mu.Lock()
	if bc.poolContainsLocked(t.Hash) {
		bc.mu.Unlock()
		return false
	}
	if _, confirmed := ChainTransactionHashes(bc.chain)[t.Hash]; confirmed {
		bc.mu.Unlock()
		return false
	}
	bc.pool = append(bc.pool, t)
	if err := bc.store.SaveTransactions(bc.pool); err != nil {
		log.Errorf("persist pool: %v", err)
	}
	nodes := append([]string(nil), bc.nodes...)
	bc.mu.Unlock()

	metricTransactionsAdded.Inc()
	bc.gossip.spreadTransaction(nodes, t)
	return true
}

// UpdateTransactions adds a batch, returning the per-transaction outcome.
func (bc *Blockchain) UpdateTransactions(ts []Transaction) []bool {
	out := make([]bool, len(ts))
	for i, t := range ts {
		out[i] = bc.UpdateTransaction(t)
	}
	return out
}

func (bc *Blockchain) poolContainsLocked(hash string) bool {
	for _, t := range bc.pool {
		if t.Hash == hash {
			return true
		}
	}
	return false
}

// PendingTransactions returns a copy of the pool.
func (bc *Blockchain) PendingTransactions() []Transaction {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return append([]Transaction(nil), bc.pool...)
}

// PendingHashes returns the pool's transaction hashes in order.
func (bc *Blockchain) PendingHashes() []string {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	hashes := make([]string, len(bc.pool))
	for i, t := range bc.pool {
		hashes[i] = t.Hash
	}
	return hashes
}

// PendingLength returns the pool size.
func (bc *Blockchain) PendingLength() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pool)
}

// GetTransaction looks a pending transaction up by hash.
func (bc *Blockchain) GetTransaction(hash string) (Transaction, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for _, t := range bc.pool {
		if t.Hash == hash {
			return t, true
		}
	}
	return Transaction{}, false
}

// CleanTransactions prunes the pool against the current chain: confirmed
// transactions are dropped, and the survivors must validate against the
// replayed state, each one extending it for the next.
func (bc *Blockchain) CleanTransactions() {
	bc.mu.Lock()
	bc.cleanTransactionsLocked()
	bc.mu.Unlock()
}

func (bc *Blockchain) cleanTransactionsLocked() {
	state, ok := ValidateChain(bc.chain, bc.params.PowZeros)
	if !ok {
		// An invalid local chain gives no state to judge the pool by;
		// keep it until reconciliation replaces the chain.
		log.Warn("skipping pool clean: local chain failed validation")
		return
	}
	confirmed := ChainTransactionHashes(bc.chain)

	kept := bc.pool[:0]
	for _, t := range bc.pool {
		if _, ok := confirmed[t.Hash]; ok {
			continue
		}
		if !IsValidTransaction(state, t) {
			log.Debugf("dropping invalid pending transaction %s", t.Hash)
			continue
		}
		state = UpdateState(state, t)
		kept = append(kept, t)
	}
	bc.pool = append([]Transaction(nil), kept...)
	if err := bc.store.SaveTransactions(bc.pool); err != nil {
		log.Errorf("persist pool: %v", err)
	}
}
