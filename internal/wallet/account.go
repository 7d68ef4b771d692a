package wallet

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// Account is a local signing account.
type Account struct {
	addr common.Address
	key  *ecdsa.PrivateKey
}

// Address returns the address of the account.
func (a *Account) Address() common.Address {
	return a.addr
}

// SignTx signs the transaction for the chain of signer.
func (a *Account) SignTx(tx *types.Transaction, signer types.Signer) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, signer, a.key)
	if err != nil {
		return nil, errors.Wrap(err, "SignTx")
	}
	return signed, nil
}
