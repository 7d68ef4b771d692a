// Package wallet signs claim transactions with locally held keys.
package wallet

import (
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransactorFactory is a factory for creating transaction authenticators.
type TransactorFactory struct {
	mtx    sync.RWMutex
	wallet *Wallet
	sender common.Address
	signer types.Signer
}

// NewTransactorFactory creates a new transaction authenticator factory.
func NewTransactorFactory(
	w *Wallet,
	sender common.Address,
	signer types.Signer,
) *TransactorFactory {
	return &TransactorFactory{
		mtx:    sync.RWMutex{},
		wallet: w,
		sender: sender,
		signer: signer,
	}
}

// SetSender sets the sender account for the transaction authenticator.
func (f *TransactorFactory) SetSender(acc common.Address) {
	f.mtx.Lock()
	f.sender = acc
	f.mtx.Unlock()
}

// NewTransactor creates a new transaction authenticator.
// The given account is ignored in favor of the designated sender.
func (f *TransactorFactory) NewTransactor(_ accounts.Account) (*bind.TransactOpts, error) {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	if _, err := f.wallet.Unlock(f.sender); err != nil {
		return nil, err
	}
	return &bind.TransactOpts{
		From: f.sender,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			f.mtx.RLock()
			defer f.mtx.RUnlock()

			if addr != f.sender {
				return nil, bind.ErrNotAuthorized
			}
			acc, err := f.wallet.Unlock(addr)
			if err != nil {
				return nil, err
			}
			return acc.SignTx(tx, f.signer)
		},
	}, nil
}
