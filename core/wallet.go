package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
)

// Wallet management: secp256k1 key pairs persisted as small JSON files
// under the wallets directory. The node wallet is wallets/wallet.dat;
// auxiliary wallets are wallet-<n>.dat.

const (
	nodeWalletName = "wallet.dat"
	walletNameFmt  = "wallet-%d.dat"
	walletsDirPerm = 0o755
	walletFilePerm = 0o600
)

// CreateWallet generates a fresh secp256k1 key pair and derives its
// address.
func CreateWallet() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return walletFromKeyBytes(crypto.FromECDSA(key))
}

// WalletFromMnemonic derives a deterministic wallet from a BIP-39 phrase.
// The seed is hashed down to a scalar; the loop skips the negligible
// fraction of digests outside the curve order.
func WalletFromMnemonic(mnemonic, passphrase string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)

	digest := sha256.Sum256(seed)
	for {
		if _, err := crypto.ToECDSA(digest[:]); err == nil {
			break
		}
		digest = sha256.Sum256(digest[:])
	}
	return walletFromKeyBytes(digest[:])
}

func walletFromKeyBytes(priv []byte) (*Wallet, error) {
	key, err := crypto.ToECDSA(priv)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}

	// Strip the 0x04 prefix: wallets carry the raw 64-byte point.
	public := hex.EncodeToString(crypto.FromECDSAPub(&key.PublicKey)[1:])

	address, err := CalculateAddress(public)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		Address: address,
		Private: hex.EncodeToString(priv),
		Public:  public,
	}, nil
}

// SignDigest signs a 32-byte digest with the hex-encoded private key and
// returns the hex signature (65 bytes: r || s || v).
func SignDigest(privateHex string, digest []byte) (string, error) {
	priv, err := hex.DecodeString(privateHex)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(priv)
	if err != nil {
		return "", fmt.Errorf("private key: %w", err)
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// VerifyDigest checks a hex signature over digest against the wallet-form
// (64-byte, unprefixed) hex public key.
func VerifyDigest(publicHex, signatureHex string, digest []byte) bool {
	pub, err := hex.DecodeString(publicHex)
	if err != nil || len(pub) != 64 {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) < 64 {
		return false
	}
	return crypto.VerifySignature(append([]byte{0x04}, pub...), digest, sig[:64])
}

// LoadWallet reads a wallet file.
func LoadWallet(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("wallet %s: %w", path, err)
	}
	return &w, nil
}

// SaveWallet writes the wallet into dir. The node wallet name is used if
// free, otherwise the first free wallet-<n>.dat, mirroring how auxiliary
// wallets accumulate next to the node wallet.
func SaveWallet(w *Wallet, dir string) (string, error) {
	if err := os.MkdirAll(dir, walletsDirPerm); err != nil {
		return "", fmt.Errorf("wallets dir: %w", err)
	}
	path := filepath.Join(dir, nodeWalletName)
	if _, err := os.Stat(path); err == nil {
		for n := 1; ; n++ {
			path = filepath.Join(dir, fmt.Sprintf(walletNameFmt, n))
			if _, err := os.Stat(path); os.IsNotExist(err) {
				break
			}
		}
	}
	data, err := Canonical(w)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, walletFilePerm); err != nil {
		return "", fmt.Errorf("save wallet: %w", err)
	}
	log.Infof("wallet saved to %s", path)
	return path, nil
}

// GetWallet loads the node wallet from dir, creating and persisting a new
// one when the file is missing or unreadable.
func GetWallet(dir string) (*Wallet, error) {
	path := filepath.Join(dir, nodeWalletName)
	if w, err := LoadWallet(path); err == nil {
		return w, nil
	} else if !os.IsNotExist(err) {
		log.Warnf("wallet %s corrupted, creating a new one: %v", path, err)
	}

	w, err := CreateWallet()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, walletsDirPerm); err != nil {
		return nil, fmt.Errorf("wallets dir: %w", err)
	}
	data, err := Canonical(w)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, walletFilePerm); err != nil {
		return nil, fmt.Errorf("save wallet: %w", err)
	}
	log.Infof("new node wallet %s created at %s", w.Address, path)
	return w, nil
}

// ListWallets returns the name and content of every wallet file in dir.
func ListWallets(dir string) ([]NamedWallet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []NamedWallet
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w, err := LoadWallet(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Warnf("skipping wallet %s: %v", e.Name(), err)
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext != "" {
			name = name[:len(name)-len(ext)]
		}
		out = append(out, NamedWallet{Name: name, Wallet: *w})
	}
	return out, nil
}

// NamedWallet pairs a wallet with its file stem for listings.
type NamedWallet struct {
	Name   string `json:"name"`
	Wallet Wallet `json:"wallet"`
}
