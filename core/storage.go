package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Store persists the node's state as canonical JSON files under a data
// directory, each written by whole-file replacement:
//
//	chain.json                      the block chain
//	unconfirmed_transactions.json   the transaction pool
//	nodes.json                      the peer list
//	wallets/                        wallet files
type Store struct {
	dir string
}

const (
	chainFile        = "chain.json"
	transactionsFile = "unconfirmed_transactions.json"
	nodesFile        = "nodes.json"
	walletsDirName   = "wallets"

	storeFilePerm = 0o600
)

// NewStore creates the data directory if needed and returns a store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// WalletsDir returns the wallets directory under the store root.
func (s *Store) WalletsDir() string { return filepath.Join(s.dir, walletsDirName) }

func (s *Store) save(name string, v interface{}) error {
	data, err := Canonical(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, storeFilePerm); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	log.Debugf("saved %s", path)
	return nil
}

// load reads name into v; a missing file leaves v untouched and returns
// false without error.
func (s *Store) load(name string, v interface{}) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// SaveChain persists the chain.
func (s *Store) SaveChain(chain []Block) error { return s.save(chainFile, chain) }

// LoadChain reads the persisted chain; a missing file yields an empty
// chain.
func (s *Store) LoadChain() ([]Block, error) {
	var chain []Block
	if _, err := s.load(chainFile, &chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// SaveTransactions persists the unconfirmed transaction pool.
func (s *Store) SaveTransactions(pool []Transaction) error {
	return s.save(transactionsFile, pool)
}

// LoadTransactions reads the persisted pool; missing file yields empty.
func (s *Store) LoadTransactions() ([]Transaction, error) {
	var pool []Transaction
	if _, err := s.load(transactionsFile, &pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// SaveNodes persists the peer list.
func (s *Store) SaveNodes(nodes []string) error { return s.save(nodesFile, nodes) }

// LoadNodes reads the persisted peer list; missing file yields empty.
func (s *Store) LoadNodes() ([]string, error) {
	var nodes []string
	if _, err := s.load(nodesFile, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}
