package core

// Shared data structures for the bchain ledger engine.
//
// Blocks and transactions travel between nodes as canonical JSON (sorted
// keys). Struct fields below are declared in lexicographic order of their
// JSON names so that encoding/json emits the canonical form directly; the
// hashing helpers in serialization.go depend on this ordering.

// Transaction moves an amount from Sender to Recipient. A reward
// transaction uses the literal sender "0" and credits the miner.
type Transaction struct {
	Amount    float64 `json:"amount"`
	Hash      string  `json:"hash,omitempty"`
	PublicKey string  `json:"public_key"`
	Recipient string  `json:"recipient"`
	Sender    string  `json:"sender"`
	Signature string  `json:"signature,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// Block commits an ordered batch of transactions and links to its parent
// through PreviousHash. Hash covers the whole block except itself.
type Block struct {
	BlockN       int           `json:"block_n"`
	Hash         string        `json:"hash,omitempty"`
	Miner        string        `json:"miner"`
	Pow          int           `json:"pow"`
	PreviousHash string        `json:"previous_hash"`
	Timestamp    string        `json:"timestamp"`
	TokenN       int           `json:"token_n"`
	Tokens       []Transaction `json:"tokens"`
}

// State maps an address to its balance, produced by replaying a chain.
type State map[string]float64

// Get returns the balance for addr, zero if the address is unknown.
func (s State) Get(addr string) float64 { return s[addr] }

// Clone returns an independent copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Wallet is the persisted key material of an account. Public and Private
// are hex encoded; Public is the raw 64-byte uncompressed curve point
// without the 0x04 prefix.
type Wallet struct {
	Address string `json:"address"`
	Private string `json:"private"`
	Public  string `json:"public"`
}

// Params are the consensus constants of the network.
type Params struct {
	// BlockSize is the maximum number of pool transactions per mined block.
	BlockSize int
	// MaxNodes bounds the peer set during discovery.
	MaxNodes int
	// PowZeros is the number of leading hex zero digits a proof hash must
	// carry. The deployed network uses 7; earlier variants used 4.
	PowZeros int
	// Reward is the amount credited to the miner per block.
	Reward float64
}

// DefaultParams returns the deployed network constants.
func DefaultParams() Params {
	return Params{
		BlockSize: 10,
		MaxNodes:  8,
		PowZeros:  7,
		Reward:    1.0,
	}
}

const (
	// RewardSender is the sender address of per-block reward transactions.
	RewardSender = "0"

	// GenesisPow is the fixed nonce of the genesis block, exempt from the
	// proof target.
	GenesisPow = 9

	// GenesisPreviousHash marks a block without a parent.
	GenesisPreviousHash = "0"
)
