package routes

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bchain-network/nodeserver/controllers"
	"bchain-network/nodeserver/middleware"
)

func Register(r *mux.Router, nc *controllers.NodeController) {
	r.Use(middleware.Logger)

	r.HandleFunc("/mine", nc.Mine).Methods("GET")

	r.HandleFunc("/transactions/new", nc.TransactionsNew).Methods("POST")
	r.HandleFunc("/transactions/add", nc.TransactionsAdd).Methods("POST")
	r.HandleFunc("/transactions", nc.Transactions).Methods("GET")
	r.HandleFunc("/transactions/hash", nc.TransactionsHash).Methods("GET")
	r.HandleFunc("/transactions/length", nc.TransactionsLength).Methods("GET")
	r.HandleFunc("/transaction/{hash}", nc.TransactionByHash).Methods("GET")
	r.HandleFunc("/transactions/resolve", nc.TransactionsResolve).Methods("GET", "POST")
	r.HandleFunc("/transactions/clean", nc.TransactionsClean).Methods("GET")

	r.HandleFunc("/nodes", nc.Nodes).Methods("GET")
	r.HandleFunc("/nodes/resolve", nc.NodesResolve).Methods("GET", "POST")
	r.HandleFunc("/nodes/add", nc.NodesAdd).Methods("POST")
	r.HandleFunc("/nodes/discover", nc.NodesDiscover).Methods("GET")

	r.HandleFunc("/chain", nc.Chain).Methods("GET")
	r.HandleFunc("/chain/add", nc.ChainAdd).Methods("POST")
	r.HandleFunc("/chain/length", nc.ChainLength).Methods("GET")
	r.HandleFunc("/chain/last", nc.ChainLast).Methods("GET")

	r.HandleFunc("/state", nc.State).Methods("GET")
	r.HandleFunc("/state/all", nc.StateAll).Methods("GET")

	r.HandleFunc("/uid", nc.UID).Methods("GET")
	r.HandleFunc("/working", nc.Working).Methods("GET")

	r.HandleFunc("/get_wallets", nc.Wallets).Methods("GET")
	r.HandleFunc("/new_wallet", nc.NewWallet).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
