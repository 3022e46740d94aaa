package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Peer synchronization: best-effort gossip of blocks and transactions,
// and the pull-based reconciliation protocol (longest valid chain wins;
// missing pool transactions are fetched by hash).

// gossiper delivers gossip messages through a small fixed worker pool so
// a burst of blocks or transactions never spawns unbounded goroutines.
type gossiper struct {
	jobs   chan gossipJob
	client *http.Client
}

type gossipJob struct {
	url     string
	body    []byte
	headers map[string]string
}

func newGossiper(workers int, client *http.Client) *gossiper {
	g := &gossiper{
		jobs:   make(chan gossipJob, 256),
		client: client,
	}
	for i := 0; i < workers; i++ {
		go g.run()
	}
	return g
}

func (g *gossiper) run() {
	for job := range g.jobs {
		req, err := http.NewRequest(http.MethodPost, job.url, bytes.NewReader(job.body))
		if err != nil {
			log.Errorf("gossip request %s: %v", job.url, err)
			metricGossipErrors.Inc()
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range job.headers {
			req.Header.Set(k, v)
		}
		resp, err := g.client.Do(req)
		if err != nil {
			log.Warnf("gossip to %s failed: %v", job.url, err)
			metricGossipErrors.Inc()
			continue
		}
		log.Debugf("gossip to %s: %d", job.url, resp.StatusCode)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

func (g *gossiper) enqueue(job gossipJob) {
	select {
	case g.jobs <- job:
	default:
		log.Warnf("gossip queue full, dropping delivery to %s", job.url)
		metricGossipErrors.Inc()
	}
}

// spreadBlock queues delivery of a block to every peer. The port header
// lets recipients reverse-reconcile with the sender when they reject the
// block.
func (g *gossiper) spreadBlock(nodes []string, b Block, port int) {
	if len(nodes) == 0 {
		return
	}
	body := mustCanonical(b)
	log.Infof("spreading block %d to %d peers", b.BlockN, len(nodes))
	for _, node := range nodes {
		g.enqueue(gossipJob{
			url:     node + "/chain/add",
			body:    body,
			headers: map[string]string{"port": strconv.Itoa(port)},
		})
	}
}

// spreadTransaction queues delivery of a transaction to every peer.
func (g *gossiper) spreadTransaction(nodes []string, t Transaction) {
	if len(nodes) == 0 {
		return
	}
	body := mustCanonical(t)
	log.Infof("spreading transaction %s to %d peers", t.Hash, len(nodes))
	for _, node := range nodes {
		g.enqueue(gossipJob{url: node + "/transactions/add", body: body})
	}
}

func (bc *Blockchain) getJSON(url string, v interface{}) error {
	resp, err := bc.client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// RetrieveLastBlock fetches a peer's chain tip.
func (bc *Blockchain) RetrieveLastBlock(node string) (Block, error) {
	var b Block
	err := bc.getJSON(node+"/chain/last", &b)
	return b, err
}

// RetrieveChain fetches a peer's full chain.
func (bc *Blockchain) RetrieveChain(node string) ([]Block, error) {
	var chain []Block
	err := bc.getJSON(node+"/chain", &chain)
	return chain, err
}

// RetrieveNodes fetches a peer's peer list.
func (bc *Blockchain) RetrieveNodes(node string) ([]string, error) {
	var nodes []string
	err := bc.getJSON(node+"/nodes", &nodes)
	return nodes, err
}

func (bc *Blockchain) retrieveTransactionHashes(node string) ([]string, error) {
	var hashes []string
	err := bc.getJSON(node+"/transactions/hash", &hashes)
	return hashes, err
}

func (bc *Blockchain) retrieveTransaction(node, hash string) (Transaction, error) {
	var t Transaction
	err := bc.getJSON(node+"/transaction/"+hash, &t)
	return t, err
}

// PushLastBlock posts our tip to a peer, used as best-effort healing after
// that peer sent us a block we could not reconcile.
func (bc *Blockchain) PushLastBlock(node string) {
	last := bc.LastBlock()
	req, err := http.NewRequest(http.MethodPost, node+"/chain/add", bytes.NewReader(mustCanonical(last)))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("port", strconv.Itoa(bc.port))
	resp, err := bc.client.Do(req)
	if err != nil {
		log.Debugf("push last block to %s failed: %v", node, err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// ResolveChains runs chain resolution against every known peer in turn.
func (bc *Blockchain) ResolveChains() {
	bc.mu.Lock()
	bc.resolvingChains = true
	nodes := append([]string(nil), bc.nodes...)
	bc.mu.Unlock()

	for _, node := range nodes {
		bc.ResolveChain(node)
	}

	bc.mu.Lock()
	bc.resolvingChains = false
	bc.mu.Unlock()
}

// ResolveChain reconciles with a single peer: fetch its tip, and when the
// peer's chain is longer than ours — or our own chain fails replay —
// fetch, validate and atomically adopt the peer's full chain. Either the
// whole peer chain replaces ours or nothing changes.
func (bc *Blockchain) ResolveChain(node string) bool {
	bc.mu.Lock()
	chain := append([]Block(nil), bc.chain...)
	bc.mu.Unlock()

	_, localOK := ValidateChain(chain, bc.params.PowZeros)
	if !localOK {
		log.Warn("local chain failed validation, looking for a replacement")
	}

	peerLast, err := bc.RetrieveLastBlock(node)
	if err != nil {
		log.Warnf("error getting %s last block: %v", node, err)
		return false
	}
	last := chain[len(chain)-1]

	if peerLast.Hash != HashBlock(peerLast) {
		log.Warnf("peer %s last block has a bad self-hash", node)
		return false
	}
	if last.Hash != HashBlock(last) {
		log.Error("local chain tip has a bad self-hash")
		return false
	}

	if peerLast.Hash == last.Hash && localOK {
		log.Debugf("chains equal with %s", node)
		return false
	}

	if peerLast.BlockN > last.BlockN || !localOK {
		log.Infof("chain on %s is longer than ours or ours is invalid, fetching", node)
		peerChain, err := bc.RetrieveChain(node)
		if err != nil {
			log.Warnf("error getting %s chain: %v", node, err)
			return false
		}
		if _, ok := ValidateChain(peerChain, bc.params.PowZeros); !ok {
			log.Warnf("chain from %s is invalid, keeping ours", node)
			return false
		}
		bc.ReplaceChain(peerChain)
		log.Infof("adopted chain of length %d from %s", len(peerChain), node)
		return true
	}

	log.Debugf("our chain is equal or longer than %s", node)
	return false
}

// ResolveTransactionsAll pulls missing pool transactions from every peer.
func (bc *Blockchain) ResolveTransactionsAll() {
	bc.mu.Lock()
	bc.resolvingTransactions = true
	nodes := append([]string(nil), bc.nodes...)
	bc.mu.Unlock()

	for _, node := range nodes {
		bc.ResolveTransactions(node)
	}

	bc.mu.Lock()
	bc.resolvingTransactions = false
	bc.mu.Unlock()
}

// ResolveTransactions fetches the peer's pending hashes and pulls every
// transaction we do not hold. Pulled transactions enter through the
// normal pool path without validation, so duplicates are dropped and
// every new one is pooled and gossiped onward; a later clean prunes
// anything that does not validate.
func (bc *Blockchain) ResolveTransactions(node string) {
	log.Infof("resolving transactions from %s", node)
	hashes, err := bc.retrieveTransactionHashes(node)
	if err != nil {
		log.Warnf("error resolving %s: %v", node, err)
		return
	}

	local := make(map[string]struct{})
	for _, h := range bc.PendingHashes() {
		local[h] = struct{}{}
	}

	pulled := 0
	for _, h := range hashes {
		if _, ok := local[h]; ok {
			continue
		}
		t, err := bc.retrieveTransaction(node, h)
		if err != nil {
			log.Warnf("error requesting transaction %s: %v", h, err)
			continue
		}
		if bc.UpdateTransaction(t) {
			pulled++
		}
	}
	log.Infof("pulled %d transactions from %s", pulled, node)
}
