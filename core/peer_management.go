package core

import (
	"bytes"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Peer management: a bounded, persisted set of node base URLs. Peers are
// admitted after a liveness probe and a UID check that keeps a node from
// adding itself through one of its own addresses.

// Nodes returns a copy of the known peer list.
func (bc *Blockchain) Nodes() []string {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return append([]string(nil), bc.nodes...)
}

// IsValidNode probes a peer by posting our chain tip to its /chain/add,
// the same liveness/compatibility check used during discovery. Any
// response at all counts; the peer reconciles on its side if it disagrees.
func (bc *Blockchain) IsValidNode(node string) bool {
	last := bc.LastBlock()
	req, err := http.NewRequest(http.MethodPost, node+"/chain/add", bytes.NewReader(mustCanonical(last)))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("port", strconv.Itoa(bc.port))
	resp, err := bc.client.Do(req)
	if err != nil {
		log.Debugf("error validating node %s: %v", node, err)
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return true
}

// RetrieveUID fetches a peer's node identifier.
func (bc *Blockchain) RetrieveUID(node string) (string, error) {
	resp, err := bc.client.Get(node + "/uid")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// AddNode admits a peer URL: it must respond to the probe, be unknown,
// and report a UID different from our own.
func (bc *Blockchain) AddNode(node string) bool {
	if node == "" {
		return false
	}
	bc.mu.Lock()
	known := bc.containsNodeLocked(node)
	bc.mu.Unlock()
	if known || !bc.IsValidNode(node) {
		return false
	}

	uid, err := bc.RetrieveUID(node)
	if err != nil {
		log.Warnf("couldn't retrieve %s uid: %v", node, err)
		return false
	}
	if uid == bc.uid {
		return false
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.containsNodeLocked(node) {
		return false
	}
	bc.nodes = append(bc.nodes, node)
	if err := bc.store.SaveNodes(bc.nodes); err != nil {
		log.Errorf("persist nodes: %v", err)
	}
	log.Infof("new node added: %s", node)
	return true
}

func (bc *Blockchain) containsNodeLocked(node string) bool {
	for _, n := range bc.nodes {
		if n == node {
			return true
		}
	}
	return false
}

// DiscoverNodes grows the peer set towards MaxNodes by sampling known
// peers at random without replacement, probing each, and admitting every
// new URL from its peer list. It stops once the bound is reached or every
// known peer has been sampled.
func (bc *Blockchain) DiscoverNodes() {
	log.Info("node discovery started")
	picked := make(map[string]struct{})
	added := 0

	for {
		nodes := bc.Nodes()
		if len(nodes) >= bc.params.MaxNodes {
			break
		}
		var candidates []string
		for _, n := range nodes {
			if _, ok := picked[n]; !ok {
				candidates = append(candidates, n)
			}
		}
		if len(candidates) == 0 {
			break
		}
		cnode := candidates[rand.Intn(len(candidates))]
		picked[cnode] = struct{}{}
		log.Debugf("discovery picked %s", cnode)

		if !bc.IsValidNode(cnode) {
			log.Debugf("discovery: %s did not respond", cnode)
			continue
		}
		rnodes, err := bc.RetrieveNodes(cnode)
		if err != nil {
			log.Warnf("error getting nodes from %s: %v", cnode, err)
			continue
		}
		for _, n := range rnodes {
			if bc.AddNode(n) {
				added++
			}
		}
	}
	log.Infof("finished node discovery, added %d new nodes", added)
}
