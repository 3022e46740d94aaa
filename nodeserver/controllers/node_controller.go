package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bchain-network/core"
)

// NodeController exposes the ledger engine over HTTP. It is stateless
// apart from the engine reference; every response body a hash is computed
// over uses the canonical (key-sorted) encoding.
type NodeController struct {
	bc *core.Blockchain
}

func NewNodeController(bc *core.Blockchain) *NodeController {
	return &NodeController{bc: bc}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := core.Canonical(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}

// Mine runs one mining attempt.
func (nc *NodeController) Mine(w http.ResponseWriter, r *http.Request) {
	// Mining is deliberately detached from the request context: a client
	// timeout must not abort a proof search already under way.
	block, err := nc.bc.Mine(context.Background())
	if err != nil {
		writeJSON(w, 401, map[string]interface{}{
			"message": "Error mining block",
			"error":   []string{err.Error()},
			"data":    nil,
		})
		return
	}
	writeJSON(w, 201, map[string]interface{}{
		"message": "New block mined",
		"error":   []string{},
		"data":    block,
	})
}

// TransactionsNew creates, signs and pools a transfer from a caller-held
// wallet.
func (nc *NodeController) TransactionsNew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet    core.Wallet `json:"wallet"`
		Recipient string      `json:"recipient"`
		Amount    float64     `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Recipient == "" {
		writeJSON(w, 201, map[string]interface{}{"message": []string{}, "error": []string{"Invalid input"}})
		return
	}

	t, err := nc.bc.CreateTransaction(&req.Wallet, req.Recipient, req.Amount)
	if err != nil {
		writeJSON(w, 201, map[string]interface{}{"message": []string{}, "error": []string{"Invalid input"}})
		return
	}

	state, ok := nc.bc.StateWithPending()
	if ok && core.IsValidTransaction(state, t) {
		nc.bc.UpdateTransaction(t)
		writeJSON(w, 201, map[string]interface{}{"message": "Done", "error": []string{}})
		return
	}
	writeJSON(w, 201, map[string]interface{}{
		"message": "Not enough funds, maybe some are reserved",
		"error":   []string{"Not enough funds"},
	})
}

// TransactionsAdd accepts a gossiped transaction.
func (nc *NodeController) TransactionsAdd(w http.ResponseWriter, r *http.Request) {
	var t core.Transaction
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, 401, false)
		return
	}
	logrus.Infof("adding transaction: %s", t.Hash)

	state, ok := nc.bc.StateWithPending()
	if !ok || !core.IsValidTransaction(state, t) {
		logrus.Infof("couldn't add, invalid transaction: %s", t.Hash)
		writeJSON(w, 401, false)
		return
	}
	nc.bc.UpdateTransaction(t)
	writeJSON(w, 201, t.Hash)
}

// Transactions lists the pending pool.
func (nc *NodeController) Transactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, nc.bc.PendingTransactions())
}

// TransactionsHash lists the pending pool's hashes.
func (nc *NodeController) TransactionsHash(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, nc.bc.PendingHashes())
}

// TransactionsLength reports the pool size.
func (nc *NodeController) TransactionsLength(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]int{"length": nc.bc.PendingLength()})
}

// TransactionByHash returns a single pending transaction.
func (nc *NodeController) TransactionByHash(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	if t, ok := nc.bc.GetTransaction(hash); ok {
		writeJSON(w, 200, t)
		return
	}
	writeJSON(w, 200, map[string]string{"error": "No transaction found with hash: " + hash})
}

// TransactionsResolve triggers transaction reconciliation: POST with a
// node pulls from that peer, GET pulls from every known peer.
func (nc *NodeController) TransactionsResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		go nc.bc.ResolveTransactionsAll()
		writeText(w, 201, "Transaction resolve started")
		return
	}
	var req struct {
		Node string `json:"node"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Node == "" {
		writeText(w, 401, "Invalid request")
		return
	}
	go nc.bc.ResolveTransactions(req.Node)
	writeText(w, 201, "Transaction resolve started")
}

// TransactionsClean prunes the pool against the confirmed chain.
func (nc *NodeController) TransactionsClean(w http.ResponseWriter, r *http.Request) {
	nc.bc.CleanTransactions()
	writeText(w, 201, "Done")
}

// Nodes lists the known peers.
func (nc *NodeController) Nodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, nc.bc.Nodes())
}

// NodesResolve triggers chain reconciliation: POST with a node resolves
// against that peer, GET resolves against all.
func (nc *NodeController) NodesResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		go nc.bc.ResolveChains()
		writeText(w, 201, "Resolving started")
		return
	}
	var req struct {
		Node string `json:"node"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Node == "" {
		writeText(w, 401, "Invalid request")
		return
	}
	go nc.bc.ResolveChain(req.Node)
	writeText(w, 201, "Resolving started")
}

// NodesAdd admits a peer URL sent as the raw request body.
func (nc *NodeController) NodesAdd(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 2048))
	if err != nil {
		writeJSON(w, 401, false)
		return
	}
	node := strings.TrimSpace(string(body))
	if nc.bc.AddNode(node) {
		writeJSON(w, 200, true)
		return
	}
	writeJSON(w, 401, false)
}

// NodesDiscover starts background peer discovery.
func (nc *NodeController) NodesDiscover(w http.ResponseWriter, r *http.Request) {
	go nc.bc.DiscoverNodes()
	writeText(w, 201, "Discovery started")
}

// Chain returns the full chain.
func (nc *NodeController) Chain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, nc.bc.Chain())
}

// ChainAdd accepts a gossiped block. A rejected block with a port header
// triggers reverse reconciliation against the sender; if that does not
// update our chain, our own tip is pushed back as best-effort healing.
func (nc *NodeController) ChainAdd(w http.ResponseWriter, r *http.Request) {
	var b core.Block
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeText(w, 401, "Invalid request")
		return
	}

	if nc.bc.UpdateChain(b) {
		writeJSON(w, 201, b.Hash)
		return
	}

	port := r.Header.Get("port")
	if port == "" {
		writeJSON(w, 401, "Chain not updated")
		return
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	sender := fmt.Sprintf("http://%s:%s", host, port)
	if nc.bc.ResolveChain(sender) {
		writeJSON(w, 201, "Chain updated")
		return
	}
	nc.bc.PushLastBlock(sender)
	writeJSON(w, 401, "Chain not updated")
}

// ChainLength reports the chain length.
func (nc *NodeController) ChainLength(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]int{"length": nc.bc.ChainLength()})
}

// ChainLast returns the chain tip.
func (nc *NodeController) ChainLast(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, nc.bc.LastBlock())
}

// State returns the confirmed balance state, or false when the local
// chain fails replay.
func (nc *NodeController) State(w http.ResponseWriter, r *http.Request) {
	state, ok := nc.bc.State()
	if !ok {
		writeJSON(w, 200, false)
		return
	}
	writeJSON(w, 200, state)
}

// StateAll returns the balance state including pending transactions.
func (nc *NodeController) StateAll(w http.ResponseWriter, r *http.Request) {
	state, ok := nc.bc.StateWithPending()
	if !ok {
		writeJSON(w, 200, false)
		return
	}
	writeJSON(w, 200, state)
}

// UID returns the node's process identifier as plain text.
func (nc *NodeController) UID(w http.ResponseWriter, r *http.Request) {
	writeText(w, 200, nc.bc.UID())
}

// Working reports the advisory reconciliation flags polled by the
// periodic client.
func (nc *NodeController) Working(w http.ResponseWriter, r *http.Request) {
	chains, transactions := nc.bc.Working()
	writeJSON(w, 200, map[string]bool{"chains": chains, "transactions": transactions})
}

// Wallets lists the wallet files held by this node.
func (nc *NodeController) Wallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := core.ListWallets(nc.bc.WalletsDir())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, 200, wallets)
}

// NewWallet creates and persists an auxiliary wallet.
func (nc *NodeController) NewWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := core.CreateWallet()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	path, err := core.SaveWallet(wallet, nc.bc.WalletsDir())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, 201, map[string]interface{}{"name": path, "wallet": wallet})
}
