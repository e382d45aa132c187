package main

import (
	"bufio"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

const keyFileName = ".gasfill-keys"

func writeKeys(path string, keys []*ecdsa.PrivateKey) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, key := range keys {
		fmt.Fprintln(w, hex.EncodeToString(crypto.FromECDSA(key)))
	}
	return w.Flush()
}

func appendKeys(path string, keys []*ecdsa.PrivateKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, key := range keys {
		if _, err := f.WriteString(hex.EncodeToString(crypto.FromECDSA(key)) + "\n"); err != nil {
			return err
		}
	}

	return nil
}

// loadKeys reads one hex key per line, skipping lines that do not parse.
func loadKeys(path string) ([]*ecdsa.PrivateKey, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	keys := make([]*ecdsa.PrivateKey, 0)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, err := crypto.HexToECDSA(scanner.Text())
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}

	return keys, scanner.Err()
}

// loadOrGenerateKeys returns at least amount keys from path, generating and
// persisting the missing ones.
func loadOrGenerateKeys(path string, amount int) ([]*ecdsa.PrivateKey, error) {
	keys, err := loadKeys(path)
	first := false
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		log.Warn("load keys failed", "path", path, "err", err)
		first = true
	}
	log.Info("load original keys", "amount", len(keys))

	if len(keys) >= amount {
		return keys, nil
	}
	genKeys, err := generateRandomKeys(amount - len(keys))
	if err != nil {
		return nil, err
	}
	log.Info("generate keys over", "generated", len(genKeys))

	if first {
		err = writeKeys(path, genKeys)
	} else {
		err = appendKeys(path, genKeys)
	}
	if err != nil {
		return nil, err
	}
	return append(keys, genKeys...), nil
}

func keyAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func defaultKeyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return keyFileName
	}
	return filepath.Join(home, keyFileName)
}
