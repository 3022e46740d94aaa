package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Blockchain is the ledger engine of a node: the chain, the unconfirmed
// transaction pool, the peer set and the advisory work flags. All of its
// mutable state serialises under a single coarse mutex; proof-of-work and
// peer HTTP calls always run outside the lock.
type Blockchain struct {
	mu sync.Mutex

	params Params
	port   int
	uid    string
	wallet *Wallet

	chain []Block
	pool  []Transaction
	nodes []string

	mining                bool
	resolvingChains       bool
	resolvingTransactions bool

	store  *Store
	gossip *gossiper
	client *http.Client
}

// ErrAlreadyMining is returned when a mining attempt is already in flight.
var ErrAlreadyMining = errors.New("a mining attempt is already running")

// NetConfig tunes the engine's peer transport.
type NetConfig struct {
	// Timeout bounds every peer HTTP call.
	Timeout time.Duration
	// GossipWorkers is the size of the gossip delivery pool.
	GossipWorkers int
}

// DefaultNetConfig returns the transport defaults.
func DefaultNetConfig() NetConfig {
	return NetConfig{Timeout: 10 * time.Second, GossipWorkers: 4}
}

// NewBlockchain loads persisted state from the store and creates the
// genesis block when no chain exists yet.
func NewBlockchain(params Params, netcfg NetConfig, store *Store, wallet *Wallet, uid string, port int) (*Blockchain, error) {
	chain, err := store.LoadChain()
	if err != nil {
		return nil, err
	}
	pool, err := store.LoadTransactions()
	if err != nil {
		return nil, err
	}
	nodes, err := store.LoadNodes()
	if err != nil {
		return nil, err
	}

	if netcfg.Timeout <= 0 {
		netcfg.Timeout = DefaultNetConfig().Timeout
	}
	if netcfg.GossipWorkers <= 0 {
		netcfg.GossipWorkers = DefaultNetConfig().GossipWorkers
	}

	client := &http.Client{Timeout: netcfg.Timeout}
	bc := &Blockchain{
		params: params,
		port:   port,
		uid:    uid,
		wallet: wallet,
		chain:  chain,
		pool:   pool,
		nodes:  nodes,
		store:  store,
		client: client,
		gossip: newGossiper(netcfg.GossipWorkers, client),
	}

	if len(bc.chain) == 0 {
		genesis, err := bc.createGenesisBlock()
		if err != nil {
			return nil, fmt.Errorf("create genesis: %w", err)
		}
		if !bc.UpdateChain(genesis) {
			return nil, errors.New("generated genesis block failed validation")
		}
		log.Infof("created genesis block %s", genesis.Hash)
	}
	return bc, nil
}

// UID returns the node's process-unique identifier.
func (bc *Blockchain) UID() string { return bc.uid }

// Port returns the node's listening port, advertised in block gossip.
func (bc *Blockchain) Port() int { return bc.port }

// WalletAddress returns the miner address of this node.
func (bc *Blockchain) WalletAddress() string { return bc.wallet.Address }

// WalletsDir exposes the store's wallets directory for the HTTP adapter.
func (bc *Blockchain) WalletsDir() string { return bc.store.WalletsDir() }

// Chain returns a copy of the current chain.
func (bc *Blockchain) Chain() []Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return append([]Block(nil), bc.chain...)
}

// ChainLength returns the number of blocks in the chain.
func (bc *Blockchain) ChainLength() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.chain)
}

// LastBlock returns the chain tip.
func (bc *Blockchain) LastBlock() Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.lastBlockLocked()
}

func (bc *Blockchain) lastBlockLocked() Block {
	return bc.chain[len(bc.chain)-1]
}

// State replays the chain and returns its balance state; ok is false when
// the local chain does not validate.
func (bc *Blockchain) State() (State, bool) {
	chain := bc.Chain()
	return ValidateChain(chain, bc.params.PowZeros)
}

// StateWithPending returns the chain state extended with the pool's valid
// transactions, the view used to admit new transfers.
func (bc *Blockchain) StateWithPending() (State, bool) {
	bc.mu.Lock()
	chain := append([]Block(nil), bc.chain...)
	pool := append([]Transaction(nil), bc.pool...)
	bc.mu.Unlock()

	state, ok := ValidateChain(chain, bc.params.PowZeros)
	if !ok {
		return nil, false
	}
	return UpdateState(state, pool...), true
}

// Working reports the advisory reconciliation flags.
func (bc *Blockchain) Working() (chains, transactions bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.resolvingChains, bc.resolvingTransactions
}

// CreateTransaction signs a transfer from the given wallet with this
// engine's parameters.
func (bc *Blockchain) CreateTransaction(wallet *Wallet, recipient string, amount float64) (Transaction, error) {
	return CreateTransaction(wallet, recipient, amount)
}

// createGenesisBlock builds block 0: a single reward transaction, the
// fixed genesis nonce, no parent.
func (bc *Blockchain) createGenesisBlock() (Block, error) {
	reward, err := CreateRewardTransaction(bc.wallet, bc.params.Reward)
	if err != nil {
		return Block{}, err
	}
	b := Block{
		BlockN:       0,
		Miner:        bc.wallet.Address,
		Pow:          GenesisPow,
		PreviousHash: GenesisPreviousHash,
		Timestamp:    isoTimestamp(time.Now()),
		TokenN:       1,
		Tokens:       []Transaction{reward},
	}
	b.Hash = HashBlock(b)
	return b, nil
}

// buildCandidateLocked assembles the next block over the given batch: reward
// appended, every token strictly validated against the replayed chain
// state, all fields set except the proof and hash. Callers hold the lock.
func (bc *Blockchain) buildCandidateLocked(batch []Transaction) (Block, error) {
	reward, err := CreateRewardTransaction(bc.wallet, bc.params.Reward)
	if err != nil {
		return Block{}, err
	}
	tokens := append(append([]Transaction(nil), batch...), reward)

	state, ok := ValidateChain(bc.chain, bc.params.PowZeros)
	if !ok {
		return Block{}, errors.New("local chain failed validation")
	}
	for _, t := range tokens {
		if !IsValidTransaction(state, t) {
			return Block{}, fmt.Errorf("invalid transaction %s in block candidate", t.Hash)
		}
		state = UpdateState(state, t)
	}

	last := bc.lastBlockLocked()
	return Block{
		BlockN:       last.BlockN + 1,
		Miner:        bc.wallet.Address,
		PreviousHash: HashBlock(last),
		Timestamp:    isoTimestamp(time.Now()),
		TokenN:       len(tokens),
		Tokens:       tokens,
	}, nil
}

// Mine runs one mining attempt: take a batch from the pool, assemble and
// self-validate a candidate, search the proof with the lock released, then
// revalidate against the current tip and append. At most one attempt runs
// at a time; concurrent calls fail fast with ErrAlreadyMining.
func (bc *Blockchain) Mine(ctx context.Context) (*Block, error) {
	bc.mu.Lock()
	if bc.mining {
		bc.mu.Unlock()
		return nil, ErrAlreadyMining
	}
	bc.mining = true
	bc.mu.Unlock()

	defer func() {
		bc.mu.Lock()
		bc.mining = false
		bc.mu.Unlock()
	}()

	start := time.Now()
	log.Info("starting mine")

	bc.mu.Lock()
	var batch []Transaction
	if len(bc.pool) >= bc.params.BlockSize {
		batch = append(batch, bc.pool[:bc.params.BlockSize]...)
		bc.pool = append([]Transaction(nil), bc.pool[bc.params.BlockSize:]...)
	} else {
		batch = append(batch, bc.pool...)
		bc.pool = nil
	}

	candidate, err := bc.buildCandidateLocked(batch)
	if err != nil {
		bc.pool = append(batch, bc.pool...)
		bc.mu.Unlock()
		return nil, err
	}
	last := bc.lastBlockLocked()
	lastPow, lastHash := last.Pow, last.Hash
	bc.mu.Unlock()

	// The search holds no lock; gossip stays responsive while hashing.
	proof, err := NextPow(ctx, lastPow, lastHash, bc.params.PowZeros)
	if err != nil {
		bc.returnBatch(batch)
		return nil, fmt.Errorf("proof search: %w", err)
	}
	candidate.Pow = proof
	candidate.Hash = HashBlock(candidate)

	bc.mu.Lock()
	if !IsValidNextBlock(bc.lastBlockLocked(), candidate, bc.params.PowZeros) {
		// The tip moved under us, or the candidate is broken; either way
		// the batch goes back to the pool.
		bc.pool = append(batch, bc.pool...)
		if err := bc.store.SaveTransactions(bc.pool); err != nil {
			log.Errorf("persist pool: %v", err)
		}
		bc.mu.Unlock()
		return nil, errors.New("mined block no longer extends the chain tip")
	}
	bc.appendBlockLocked(candidate)
	bc.mu.Unlock()

	elapsed := time.Since(start)
	metricBlocksMined.Inc()
	metricMiningDuration.Observe(elapsed.Seconds())
	log.Infof("ending mine - %.2fs, block %d (%s)", elapsed.Seconds(), candidate.BlockN, candidate.Hash)

	return &candidate, nil
}

func (bc *Blockchain) returnBatch(batch []Transaction) {
	bc.mu.Lock()
	bc.pool = append(batch, bc.pool...)
	if err := bc.store.SaveTransactions(bc.pool); err != nil {
		log.Errorf("persist pool: %v", err)
	}
	bc.mu.Unlock()
}

// appendBlockLocked appends a validated block, persists the chain, prunes
// the pool, and enqueues best-effort gossip. The local append completes
// before the spread job is queued.
func (bc *Blockchain) appendBlockLocked(b Block) {
	bc.chain = append(bc.chain, b)
	if err := bc.store.SaveChain(bc.chain); err != nil {
		log.Errorf("persist chain: %v", err)
	}
	bc.cleanTransactionsLocked()

	nodes := append([]string(nil), bc.nodes...)
	bc.gossip.spreadBlock(nodes, b, bc.port)
}

// UpdateChain appends a block if it is a valid genesis for an empty chain
// or a valid successor of the current tip, then persists, prunes the pool
// and gossips the block onward.
func (bc *Blockchain) UpdateChain(b Block) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	ok := (len(bc.chain) == 0 && IsGenesisBlock(b) && b.Hash == HashBlock(b)) ||
		(len(bc.chain) > 0 && IsValidNextBlock(bc.lastBlockLocked(), b, bc.params.PowZeros))
	if !ok {
		return false
	}
	bc.appendBlockLocked(b)
	return true
}

// ReplaceChain swaps in a longer peer chain wholesale. The caller has
// already validated it; readers observe either the old tip or the new
// one, never a partial chain.
func (bc *Blockchain) ReplaceChain(chain []Block) {
	bc.mu.Lock()
	bc.chain = append([]Block(nil), chain...)
	if err := bc.store.SaveChain(bc.chain); err != nil {
		log.Errorf("persist chain: %v", err)
	}
	bc.cleanTransactionsLocked()
	bc.mu.Unlock()
	metricReorgs.Inc()
}
