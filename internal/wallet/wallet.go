package wallet

import (
	"crypto/ecdsa"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// ErrAccountNotFound is returned when unlocking an unknown address.
var ErrAccountNotFound = errors.New("account not found")

// Wallet holds the private keys of the local signing accounts.
type Wallet struct {
	mtx      sync.RWMutex
	accounts map[common.Address]*Account
}

// NewWallet creates a new wallet.
func NewWallet() *Wallet {
	return &Wallet{accounts: make(map[common.Address]*Account)}
}

// Add adds the key to the wallet and returns its account.
func (w *Wallet) Add(sk *ecdsa.PrivateKey) *Account {
	acc := &Account{addr: crypto.PubkeyToAddress(sk.PublicKey), key: sk}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.accounts[acc.addr] = acc
	return acc
}

// AddHex parses a hex encoded secret key, with or without 0x prefix, and
// adds it to the wallet.
func (w *Wallet) AddHex(sk string) (*Account, error) {
	k, err := crypto.HexToECDSA(strings.TrimPrefix(sk, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing secret key")
	}
	return w.Add(k), nil
}

// Unlock returns the account of the given address.
func (w *Wallet) Unlock(addr common.Address) (*Account, error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	acc, ok := w.accounts[addr]
	if !ok {
		return nil, errors.Wrapf(ErrAccountNotFound, "address %s", addr.Hex())
	}
	return acc, nil
}
