package core

import (
	"context"
	"math"
	"testing"
)

// testParams keeps proof searches instant in tests; the engine logic is
// identical at any difficulty.
func testParams() Params {
	p := DefaultParams()
	p.PowZeros = 1
	return p
}

func newTestBlockchain(t *testing.T) *Blockchain {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	wallet, err := GetWallet(store.WalletsDir())
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	bc, err := NewBlockchain(testParams(), DefaultNetConfig(), store, wallet, "test-uid-"+wallet.Address[:8], 5000)
	if err != nil {
		t.Fatalf("NewBlockchain failed: %v", err)
	}
	return bc
}

// TestGenesisBoot covers the first boot: a single genesis block holding
// exactly the miner's reward, which replays to a 1.0 balance.
func TestGenesisBoot(t *testing.T) {
	bc := newTestBlockchain(t)

	chain := bc.Chain()
	if len(chain) != 1 {
		t.Fatalf("chain length %d, want 1", len(chain))
	}
	g := chain[0]
	if g.BlockN != 0 || g.PreviousHash != GenesisPreviousHash || g.Pow != GenesisPow {
		t.Fatalf("malformed genesis: %+v", g)
	}
	if len(g.Tokens) != 1 || g.Tokens[0].Sender != RewardSender {
		t.Fatalf("genesis tokens: %+v", g.Tokens)
	}
	if !IsGenesisBlock(g) {
		t.Fatal("genesis block fails IsGenesisBlock")
	}

	state, ok := bc.State()
	if !ok {
		t.Fatal("fresh chain failed validation")
	}
	if state[bc.WalletAddress()] != 1.0 {
		t.Fatalf("miner balance %v, want 1.0", state[bc.WalletAddress()])
	}
}

// TestGenesisPersistence reboots the engine over the same store and
// expects the identical chain back.
func TestGenesisPersistence(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	wallet, err := GetWallet(store.WalletsDir())
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	bc1, err := NewBlockchain(testParams(), DefaultNetConfig(), store, wallet, "uid-1", 5000)
	if err != nil {
		t.Fatalf("NewBlockchain failed: %v", err)
	}
	tip := bc1.LastBlock()

	bc2, err := NewBlockchain(testParams(), DefaultNetConfig(), store, wallet, "uid-1", 5000)
	if err != nil {
		t.Fatalf("NewBlockchain reboot failed: %v", err)
	}
	if bc2.ChainLength() != 1 || bc2.LastBlock().Hash != tip.Hash {
		t.Fatal("rebooted engine did not load the persisted chain")
	}
}

// TestMineConfirmsTransfer is the single-transfer scenario: the genesis
// reward funds a 0.3 transfer, mining confirms it plus a fresh reward.
func TestMineConfirmsTransfer(t *testing.T) {
	bc := newTestBlockchain(t)
	wallet, err := GetWallet(bc.WalletsDir())
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}

	tx, err := bc.CreateTransaction(wallet, "1RecipientAddr", 0.3)
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	state, ok := bc.StateWithPending()
	if !ok || !IsValidTransaction(state, tx) {
		t.Fatal("funded transfer did not validate")
	}
	if !bc.UpdateTransaction(tx) {
		t.Fatal("transaction not accepted into the pool")
	}

	block, err := bc.Mine(context.Background())
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	if block.BlockN != 1 {
		t.Fatalf("mined block_n %d, want 1", block.BlockN)
	}
	if block.TokenN != 2 || len(block.Tokens) != 2 {
		t.Fatalf("mined block carries %d tokens, want 2", len(block.Tokens))
	}
	if last := block.Tokens[len(block.Tokens)-1]; last.Sender != RewardSender {
		t.Fatal("last token is not the reward transaction")
	}

	if bc.ChainLength() != 2 {
		t.Fatalf("chain length %d after mine, want 2", bc.ChainLength())
	}
	if bc.PendingLength() != 0 {
		t.Fatal("pool not drained after confirmation")
	}

	state, ok = bc.State()
	if !ok {
		t.Fatal("chain failed validation after mine")
	}
	if math.Abs(state[bc.WalletAddress()]-1.7) > 1e-9 {
		t.Fatalf("miner balance %v, want 1.7", state[bc.WalletAddress()])
	}
	if math.Abs(state["1RecipientAddr"]-0.3) > 1e-9 {
		t.Fatalf("recipient balance %v, want 0.3", state["1RecipientAddr"])
	}
}

// TestMineEmptyPool mines a block holding only the reward.
func TestMineEmptyPool(t *testing.T) {
	bc := newTestBlockchain(t)
	block, err := bc.Mine(context.Background())
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	if len(block.Tokens) != 1 || block.Tokens[0].Sender != RewardSender {
		t.Fatalf("unexpected tokens in empty-pool block: %+v", block.Tokens)
	}
}

// TestMineBatchBound fills the pool beyond BlockSize and expects only the
// first BlockSize transactions in the block, in insertion order.
func TestMineBatchBound(t *testing.T) {
	bc := newTestBlockchain(t)
	wallet, err := GetWallet(bc.WalletsDir())
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}

	// Confirm extra funds first so many small transfers stay valid.
	for i := 0; i < 2; i++ {
		if _, err := bc.Mine(context.Background()); err != nil {
			t.Fatalf("funding mine failed: %v", err)
		}
	}

	n := bc.params.BlockSize + 2
	var hashes []string
	for i := 0; i < n; i++ {
		tx, err := bc.CreateTransaction(wallet, "1RecipientAddr", 0.01)
		if err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
		if !bc.UpdateTransaction(tx) {
			t.Fatalf("transaction %d rejected by the pool", i)
		}
		hashes = append(hashes, tx.Hash)
	}

	block, err := bc.Mine(context.Background())
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	if len(block.Tokens) != bc.params.BlockSize+1 {
		t.Fatalf("block carries %d tokens, want %d", len(block.Tokens), bc.params.BlockSize+1)
	}
	for i := 0; i < bc.params.BlockSize; i++ {
		if block.Tokens[i].Hash != hashes[i] {
			t.Fatalf("token %d out of order", i)
		}
	}
	if bc.PendingLength() != n-bc.params.BlockSize {
		t.Fatalf("pool length %d, want %d", bc.PendingLength(), n-bc.params.BlockSize)
	}
}

// TestUpdateChainIdempotentGossip replays the same block twice; the second
// receipt must not alter local state.
func TestUpdateChainIdempotentGossip(t *testing.T) {
	bc := newTestBlockchain(t)
	block, err := bc.Mine(context.Background())
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}

	if bc.UpdateChain(*block) {
		t.Fatal("duplicate block accepted")
	}
	if bc.ChainLength() != 2 {
		t.Fatalf("chain length %d after duplicate receipt, want 2", bc.ChainLength())
	}
}

// TestUpdateChainRejectsTampered turns a copy of the genesis block into a
// would-be successor whose nonce fails the proof target and expects
// rejection.
func TestUpdateChainRejectsTampered(t *testing.T) {
	bc := newTestBlockchain(t)
	last := bc.LastBlock()

	forged := last
	forged.BlockN = last.BlockN + 1
	forged.PreviousHash = last.Hash
	forged.Pow = 0
	for IsValidProof(last.Pow, last.Hash, forged.Pow, bc.params.PowZeros) {
		forged.Pow++
	}
	forged.Hash = HashBlock(forged)
	if bc.UpdateChain(forged) {
		t.Fatal("block with an unproven pow accepted")
	}
}

// TestChainMonotonicity checks block numbering and parent links across a
// few mined blocks.
func TestChainMonotonicity(t *testing.T) {
	bc := newTestBlockchain(t)
	for i := 0; i < 3; i++ {
		if _, err := bc.Mine(context.Background()); err != nil {
			t.Fatalf("mine %d failed: %v", i, err)
		}
	}
	chain := bc.Chain()
	for i := 1; i < len(chain); i++ {
		if chain[i].BlockN != chain[i-1].BlockN+1 {
			t.Fatalf("block_n not monotonic at %d", i)
		}
		if chain[i].PreviousHash != chain[i-1].Hash {
			t.Fatalf("previous_hash mismatch at %d", i)
		}
		if !IsValidProof(chain[i-1].Pow, chain[i-1].Hash, chain[i].Pow, bc.params.PowZeros) {
			t.Fatalf("pow invalid at %d", i)
		}
	}
	if _, ok := ValidateChain(chain, bc.params.PowZeros); !ok {
		t.Fatal("mined chain failed replay")
	}
}
