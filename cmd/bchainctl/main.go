package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bchain-network/core"
)

// bchainctl drives a running node: its default command is the periodic
// reconciliation loop (clean the pool, resolve chains, resolve
// transactions, wait until the node is idle), and the wallet subcommand
// manages wallet files.

type client struct {
	base string
	http *http.Client
}

func newClient(host string, port int) *client {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return &client{
		base: fmt.Sprintf("%s:%d", host, port),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) get(path string) (int, []byte, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func (c *client) cleanTransactions() {
	logrus.Info("cleaning transactions")
	if status, _, err := c.get("/transactions/clean"); err != nil {
		logrus.Warnf("error cleaning transactions: %v", err)
	} else if status != 201 {
		logrus.Warnf("clean request failed with status %d", status)
	}
}

func (c *client) resolveNodesAll() {
	logrus.Info("resolving chains")
	if status, _, err := c.get("/nodes/resolve"); err != nil {
		logrus.Warnf("error requesting chain resolve: %v", err)
	} else if status != 201 {
		logrus.Warnf("chain resolve request failed with status %d", status)
	}
}

func (c *client) resolveTransactionsAll() {
	logrus.Info("resolving transactions")
	if status, _, err := c.get("/transactions/resolve"); err != nil {
		logrus.Warnf("error requesting transaction resolve: %v", err)
	} else if status != 201 {
		logrus.Warnf("transaction resolve request failed with status %d", status)
	}
}

// isIdle polls /working; the node is idle when neither resolver runs.
func (c *client) isIdle() bool {
	status, body, err := c.get("/working")
	if err != nil || status != 200 {
		logrus.Warnf("error polling /working: status=%d err=%v", status, err)
		return true
	}
	var w struct {
		Chains       bool `json:"chains"`
		Transactions bool `json:"transactions"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		return true
	}
	return !(w.Chains || w.Transactions)
}

func (c *client) loop() {
	logrus.Info("client started")
	for n := 0; ; n++ {
		logrus.Infof("starting iteration %d", n)
		c.cleanTransactions()
		c.resolveNodesAll()
		c.resolveTransactionsAll()
		logrus.Infof("ended iteration %d", n)
		time.Sleep(5 * time.Second)
		for !c.isIdle() {
			time.Sleep(time.Second)
		}
	}
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "wallet", Short: "wallet file utilities"}

	var (
		mnemonic   string
		passphrase string
		dir        string
	)
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "create a wallet and save it under the wallets directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				w   *core.Wallet
				err error
			)
			if mnemonic != "" {
				w, err = core.WalletFromMnemonic(mnemonic, passphrase)
			} else {
				w, err = core.CreateWallet()
			}
			if err != nil {
				return err
			}
			path, err := core.SaveWallet(w, dir)
			if err != nil {
				return err
			}
			fmt.Printf("address: %s\nsaved to: %s\n", w.Address, path)
			return nil
		},
	}
	newCmd.Flags().StringVar(&mnemonic, "mnemonic", "", "derive the key from a BIP-39 phrase instead of random entropy")
	newCmd.Flags().StringVar(&passphrase, "passphrase", "", "optional BIP-39 passphrase")
	newCmd.Flags().StringVar(&dir, "dir", "wallets", "wallets directory")
	cmd.AddCommand(newCmd)
	return cmd
}

func main() {
	var (
		host string
		port int
	)
	rootCmd := &cobra.Command{
		Use:   "bchainctl",
		Short: "periodic reconciliation client for a bchain node",
		Run: func(cmd *cobra.Command, args []string) {
			newClient(host, port).loop()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&host, "host", "H", "http://localhost", "host the node runs on")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 5000, "port the node listens on")
	rootCmd.AddCommand(walletCmd())

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
