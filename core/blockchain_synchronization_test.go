package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// servePeer exposes an engine over the handful of endpoints the
// synchronization protocol consumes.
func servePeer(t *testing.T, bc *Blockchain, uid string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeCanon := func(w http.ResponseWriter, v interface{}) {
		data, err := Canonical(v)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
	mux.HandleFunc("/chain/last", func(w http.ResponseWriter, r *http.Request) {
		writeCanon(w, bc.LastBlock())
	})
	mux.HandleFunc("/chain", func(w http.ResponseWriter, r *http.Request) {
		writeCanon(w, bc.Chain())
	})
	mux.HandleFunc("/chain/add", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(201)
	})
	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		writeCanon(w, bc.Nodes())
	})
	mux.HandleFunc("/uid", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(uid))
	})
	mux.HandleFunc("/transactions/hash", func(w http.ResponseWriter, r *http.Request) {
		writeCanon(w, bc.PendingHashes())
	})
	mux.HandleFunc("/transaction/", func(w http.ResponseWriter, r *http.Request) {
		hash := strings.TrimPrefix(r.URL.Path, "/transaction/")
		if tx, ok := bc.GetTransaction(hash); ok {
			writeCanon(w, tx)
			return
		}
		writeCanon(w, map[string]string{"error": "No transaction found with hash: " + hash})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestResolveChainAdoptsLonger is the reorg scenario: a node with a short
// chain adopts a peer's longer valid chain wholesale and reprunes its
// pool against the new state.
func TestResolveChainAdoptsLonger(t *testing.T) {
	x := newTestBlockchain(t)
	y := newTestBlockchain(t)
	for i := 0; i < 2; i++ {
		if _, err := y.Mine(context.Background()); err != nil {
			t.Fatalf("peer mine failed: %v", err)
		}
	}

	// A transfer funded by x's own genesis reward; it has no funding
	// under y's chain and must not survive the reorg.
	wallet, err := GetWallet(x.WalletsDir())
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	tx, err := x.CreateTransaction(wallet, "1RecipientAddr", 0.5)
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	x.UpdateTransaction(tx)

	srv := servePeer(t, y, "peer-uid")

	if !x.ResolveChain(srv.URL) {
		t.Fatal("resolve did not adopt the longer chain")
	}

	xc, yc := x.Chain(), y.Chain()
	if len(xc) != len(yc) {
		t.Fatalf("chain length %d after reorg, want %d", len(xc), len(yc))
	}
	for i := range xc {
		if xc[i].Hash != yc[i].Hash {
			t.Fatalf("block %d differs after reorg", i)
		}
	}
	if x.PendingLength() != 0 {
		t.Fatal("unfunded transaction survived the reorg")
	}
	if _, ok := x.State(); !ok {
		t.Fatal("adopted chain fails replay")
	}
}

// TestResolveChainKeepsOwn covers the no-action branches: an equal chain
// and a shorter peer chain both leave local state untouched.
func TestResolveChainKeepsOwn(t *testing.T) {
	x := newTestBlockchain(t)
	if _, err := x.Mine(context.Background()); err != nil {
		t.Fatalf("mine failed: %v", err)
	}
	tipBefore := x.LastBlock().Hash

	// Equal: resolving against ourselves.
	self := servePeer(t, x, "self-uid")
	if x.ResolveChain(self.URL) {
		t.Fatal("resolve updated against an identical chain")
	}

	// Shorter peer.
	y := newTestBlockchain(t)
	shorter := servePeer(t, y, "short-uid")
	if x.ResolveChain(shorter.URL) {
		t.Fatal("resolve adopted a shorter chain")
	}

	if x.LastBlock().Hash != tipBefore || x.ChainLength() != 2 {
		t.Fatal("local chain changed in a keep-own scenario")
	}
}

// TestResolveChainRejectsInvalid serves a longer but corrupted chain and
// expects the local one to be retained.
func TestResolveChainRejectsInvalid(t *testing.T) {
	x := newTestBlockchain(t)
	y := newTestBlockchain(t)
	for i := 0; i < 2; i++ {
		if _, err := y.Mine(context.Background()); err != nil {
			t.Fatalf("peer mine failed: %v", err)
		}
	}

	corrupted := y.Chain()
	corrupted[1].Tokens[0].Amount = 1000 // breaks block 1's hash

	mux := http.NewServeMux()
	mux.HandleFunc("/chain/last", func(w http.ResponseWriter, r *http.Request) {
		data, _ := Canonical(corrupted[len(corrupted)-1])
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/chain", func(w http.ResponseWriter, r *http.Request) {
		data, _ := Canonical(corrupted)
		_, _ = w.Write(data)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tipBefore := x.LastBlock().Hash
	if x.ResolveChain(srv.URL) {
		t.Fatal("resolve adopted a corrupted chain")
	}
	if x.LastBlock().Hash != tipBefore {
		t.Fatal("local chain changed after rejecting a corrupted peer")
	}
}

// TestResolveTransactionsPulls fetches the peer's unknown pending
// transactions by hash.
func TestResolveTransactionsPulls(t *testing.T) {
	x := newTestBlockchain(t)
	y := newTestBlockchain(t)

	wallet, err := GetWallet(y.WalletsDir())
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	tx, err := y.CreateTransaction(wallet, "1RecipientAddr", 0.2)
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	y.UpdateTransaction(tx)

	srv := servePeer(t, y, "peer-uid")
	x.ResolveTransactions(srv.URL)

	got, ok := x.GetTransaction(tx.Hash)
	if !ok || got.Hash != tx.Hash {
		t.Fatal("peer transaction not pulled into the pool")
	}

	// A second pass is a no-op.
	before := x.PendingLength()
	x.ResolveTransactions(srv.URL)
	if x.PendingLength() != before {
		t.Fatal("repeat resolve duplicated transactions")
	}
}

// TestAddNodeSelfExclusion refuses peers reporting our own UID and admits
// others once.
func TestAddNodeSelfExclusion(t *testing.T) {
	x := newTestBlockchain(t)
	y := newTestBlockchain(t)

	self := servePeer(t, y, x.UID())
	if x.AddNode(self.URL) {
		t.Fatal("node added itself")
	}

	peer := servePeer(t, y, "other-uid")
	if !x.AddNode(peer.URL) {
		t.Fatal("valid peer rejected")
	}
	if x.AddNode(peer.URL) {
		t.Fatal("peer admitted twice")
	}
	nodes := x.Nodes()
	if len(nodes) != 1 || nodes[0] != peer.URL {
		t.Fatalf("unexpected peer set: %v", nodes)
	}
}

// TestGossipSpreadsBlock checks that a mined block is delivered to known
// peers in the background.
func TestGossipSpreadsBlock(t *testing.T) {
	x := newTestBlockchain(t)
	y := newTestBlockchain(t)

	var deliveries int64
	mux := http.NewServeMux()
	mux.HandleFunc("/chain/add", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chain/add" && r.Header.Get("port") != "" && r.Method == http.MethodPost {
			atomic.AddInt64(&deliveries, 1)
		}
		w.WriteHeader(201)
	})
	mux.HandleFunc("/uid", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("peer-uid"))
	})
	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		data, _ := Canonical(y.Nodes())
		_, _ = w.Write(data)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	if !x.AddNode(srv.URL) {
		t.Fatal("peer rejected")
	}
	probes := atomic.LoadInt64(&deliveries) // AddNode probed /chain/add once

	if _, err := x.Mine(context.Background()); err != nil {
		t.Fatalf("Mine failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt64(&deliveries) <= probes {
		if time.Now().After(deadline) {
			t.Fatal("mined block never reached the peer")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
