package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

// ParsePrivateKey parses a hex encoded secp256k1 key, with or without 0x.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	k, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return k, nil
}

// PromptPassphrase reads a passphrase from the terminal without echo.
func PromptPassphrase(fd int, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := readPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(raw), nil
}

// LoadKeystore decrypts the key for account in dir. A zero account selects the
// first key file in lexical order.
func LoadKeystore(dir string, account common.Address, passphrase string) (*ecdsa.PrivateKey, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", name, err)
		}
		if account != (common.Address{}) && !strings.Contains(strings.ToLower(name), strings.ToLower(account.Hex()[2:])) {
			continue
		}
		key, err := keystore.DecryptKey(raw, passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s: %w", name, err)
		}
		return key.PrivateKey, nil
	}

	if account != (common.Address{}) {
		return nil, fmt.Errorf("no key for %s in %s", account.Hex(), dir)
	}
	return nil, fmt.Errorf("keystore %s is empty", dir)
}
