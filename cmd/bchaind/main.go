package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bchain-network/core"
	"bchain-network/nodeserver/controllers"
	"bchain-network/nodeserver/routes"
	"bchain-network/pkg/config"
)

func main() {
	var (
		port    int
		dataDir string
	)

	rootCmd := &cobra.Command{
		Use:   "bchaind",
		Short: "run a bchain node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Node.Port = port
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Node.DataDir = dataDir
			}

			if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
				logrus.SetLevel(level)
			}

			return run(cfg)
		},
	}
	rootCmd.Flags().IntVarP(&port, "port", "p", 5000, "port to run the node on")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", ".", "directory for chain, pool, node and wallet files")

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	store, err := core.NewStore(cfg.Node.DataDir)
	if err != nil {
		return err
	}
	wallet, err := core.GetWallet(store.WalletsDir())
	if err != nil {
		return err
	}

	// Globally unique identifier for this process, used by peers for
	// self-exclusion during discovery.
	uid := strings.ReplaceAll(uuid.New().String(), "-", "")

	params := core.Params{
		BlockSize: cfg.Consensus.BlockSize,
		MaxNodes:  cfg.Consensus.MaxNodes,
		PowZeros:  cfg.Consensus.PowZeros,
		Reward:    cfg.Consensus.Reward,
	}
	netcfg := core.DefaultNetConfig()
	if cfg.Peers.TimeoutSeconds > 0 {
		netcfg.Timeout = time.Duration(cfg.Peers.TimeoutSeconds) * time.Second
	}
	if cfg.Peers.GossipWorkers > 0 {
		netcfg.GossipWorkers = cfg.Peers.GossipWorkers
	}

	bc, err := core.NewBlockchain(params, netcfg, store, wallet, uid, cfg.Node.Port)
	if err != nil {
		return err
	}

	r := mux.NewRouter()
	routes.Register(r, controllers.NewNodeController(bc))

	addr := fmt.Sprintf(":%d", cfg.Node.Port)
	logrus.Infof("node %s (wallet %s) listening on %s", uid, wallet.Address, addr)
	return http.ListenAndServe(addr, r)
}
