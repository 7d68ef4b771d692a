package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0x1af2e950272dd403de7a5760d41c6e44d92b6d02797e51810795ff03cc2cda4f"

func TestWallet_AddHex(t *testing.T) {
	w := NewWallet()
	acc, err := w.AddHex(testKey)
	require.NoError(t, err)

	sk, err := crypto.HexToECDSA(testKey[2:])
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(sk.PublicKey), acc.Address())

	// without prefix
	acc2, err := NewWallet().AddHex(testKey[2:])
	require.NoError(t, err)
	assert.Equal(t, acc.Address(), acc2.Address())

	_, err = w.AddHex("0xnothex")
	assert.Error(t, err)
}

func TestWallet_Unlock(t *testing.T) {
	w := NewWallet()
	sk, err := crypto.GenerateKey()
	require.NoError(t, err)
	acc := w.Add(sk)

	got, err := w.Unlock(acc.Address())
	require.NoError(t, err)
	assert.Same(t, acc, got)

	_, err = w.Unlock(common.HexToAddress("0x01"))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestTransactorFactory_SignsForSender(t *testing.T) {
	w := NewWallet()
	acc, err := w.AddHex(testKey)
	require.NoError(t, err)

	signer := types.LatestSignerForChainID(big.NewInt(100))
	f := NewTransactorFactory(w, acc.Address(), signer)

	opts, err := f.NewTransactor(accounts.Account{})
	require.NoError(t, err)
	assert.Equal(t, acc.Address(), opts.From)

	to := common.HexToAddress("0x0b7fFc1f4AD541A4Ed16b40D8c37f0929158D101")
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, To: &to})

	signed, err := opts.Signer(opts.From, tx)
	require.NoError(t, err)
	from, err := types.Sender(signer, signed)
	require.NoError(t, err)
	assert.Equal(t, acc.Address(), from)
	assert.Equal(t, big.NewInt(100), signed.ChainId())

	_, err = opts.Signer(common.HexToAddress("0x02"), tx)
	assert.ErrorIs(t, err, bind.ErrNotAuthorized)
}

func TestTransactorFactory_UnknownSender(t *testing.T) {
	f := NewTransactorFactory(NewWallet(), common.HexToAddress("0x03"), types.LatestSignerForChainID(big.NewInt(1)))
	_, err := f.NewTransactor(accounts.Account{})
	assert.ErrorIs(t, err, ErrAccountNotFound)

	w := NewWallet()
	sk, err := crypto.GenerateKey()
	require.NoError(t, err)
	acc := w.Add(sk)
	f = NewTransactorFactory(w, common.HexToAddress("0x03"), types.LatestSignerForChainID(big.NewInt(1)))
	f.SetSender(acc.Address())
	opts, err := f.NewTransactor(accounts.Account{})
	require.NoError(t, err)
	assert.Equal(t, acc.Address(), opts.From)
}
