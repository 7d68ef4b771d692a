// Package ethereum connects the claim engine to EVM ledgers: it binds the
// EasyAuction contract, reads ERC20 metadata, and signs and submits claim
// transactions.
package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/claim"
	"github.com/perun-network/auction-claim/internal/order"
)

// ErrNoTransactor is returned when submitting through a read-only binding.
var ErrNoTransactor = errors.New("easy auction binding has no transactor")

type (
	// Backend is the subset of ethclient.Client used by the bindings.
	Backend interface {
		CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
		EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
		SuggestGasPrice(ctx context.Context) (*big.Int, error)
		PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
		SendTransaction(ctx context.Context, tx *types.Transaction) error
		TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	}

	// EasyAuction is a binding of the EasyAuction contract at one address.
	EasyAuction struct {
		address common.Address
		backend Backend
		opts    *bind.TransactOpts
	}

	// AuctionData is the on-chain state of one auction as returned by
	// auctionData(uint256).
	AuctionData struct {
		AuctioningToken               common.Address
		BiddingToken                  common.Address
		OrderCancellationEndDate      *big.Int
		AuctionEndDate                *big.Int
		InitialAuctionOrder           [32]byte
		MinimumBiddingAmountPerOrder  *big.Int
		InterimSumBidAmount           *big.Int
		InterimOrder                  [32]byte
		ClearingPriceOrder            [32]byte
		VolumeClearingPriceOrder      *big.Int
		MinFundingThresholdNotReached bool
		IsAtomicClosureAllowed        bool
		FeeNumerator                  *big.Int
		MinFundingThreshold           *big.Int
	}
)

// NewEasyAuction creates a read-only binding of the contract at address.
func NewEasyAuction(backend Backend, address common.Address) *EasyAuction {
	return &EasyAuction{address: address, backend: backend}
}

// WithTransactor returns a copy of the binding which signs transactions with
// opts.
func (a *EasyAuction) WithTransactor(opts *bind.TransactOpts) *EasyAuction {
	c := *a
	c.opts = opts
	return &c
}

// Address returns the contract address.
func (a *EasyAuction) Address() common.Address {
	return a.address
}

// Sender returns the account transactions are sent from, or the zero
// address for read-only bindings.
func (a *EasyAuction) Sender() common.Address {
	if a.opts == nil {
		return common.Address{}
	}
	return a.opts.From
}

// ContainsOrder reports whether the order is still stored in the auction's
// order queue, i.e. has not been claimed yet.
func (a *EasyAuction) ContainsOrder(ctx context.Context, auctionID uint64, o order.Encoded) (bool, error) {
	h, err := o.Hash()
	if err != nil {
		return false, err
	}
	out, err := a.call(ctx, &EasyAuctionABI, "containsOrder", new(big.Int).SetUint64(auctionID), h)
	if err != nil {
		return false, err
	}
	contains, ok := out[0].(bool)
	if !ok {
		return false, errors.Errorf("containsOrder: unexpected result type %T", out[0])
	}
	return contains, nil
}

// EstimateClaimGas estimates the gas claiming the orders from the account
// from consumes.
func (a *EasyAuction) EstimateClaimGas(ctx context.Context, from common.Address, auctionID uint64, orders []order.Encoded) (uint64, error) {
	data, err := packClaim(auctionID, orders)
	if err != nil {
		return 0, err
	}
	gas, err := a.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &a.address, Data: data})
	if err != nil {
		return 0, errors.Wrap(err, "estimating claim gas")
	}
	return gas, nil
}

// SubmitClaim signs and sends a claimFromParticipantOrder transaction.
func (a *EasyAuction) SubmitClaim(ctx context.Context, auctionID uint64, orders []order.Encoded, gas claim.GasParams) (common.Hash, error) {
	if a.opts == nil {
		return common.Hash{}, ErrNoTransactor
	}
	data, err := packClaim(auctionID, orders)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := a.backend.PendingNonceAt(ctx, a.opts.From)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "fetching nonce")
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gas.Price,
		Gas:      gas.Limit,
		To:       &a.address,
		Data:     data,
	})

	signed, err := a.opts.Signer(a.opts.From, tx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "signing claim")
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "sending claim")
	}
	return signed.Hash(), nil
}

// AuctionData reads the on-chain state of an auction.
func (a *EasyAuction) AuctionData(ctx context.Context, auctionID uint64) (AuctionData, error) {
	var data AuctionData
	input, err := EasyAuctionABI.Pack("auctionData", new(big.Int).SetUint64(auctionID))
	if err != nil {
		return data, errors.Wrap(err, "packing auctionData")
	}
	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &a.address, Data: input}, nil)
	if err != nil {
		return data, errors.Wrap(err, "calling auctionData")
	}
	if err := EasyAuctionABI.UnpackIntoInterface(&data, "auctionData", out); err != nil {
		return data, errors.Wrap(err, "unpacking auctionData")
	}
	return data, nil
}

// DerivedInfo assembles the clearing information of an auction. The
// clearing fields are nil while the auction has not been cleared.
func (a *EasyAuction) DerivedInfo(ctx context.Context, auctionID uint64) (*auction.DerivedInfo, error) {
	data, err := a.AuctionData(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if data.AuctioningToken == (common.Address{}) {
		return nil, errors.Errorf("auction %d does not exist", auctionID)
	}

	auctioning, err := TokenInfo(ctx, a.backend, data.AuctioningToken)
	if err != nil {
		return nil, errors.WithMessage(err, "auctioning token")
	}
	bidding, err := TokenInfo(ctx, a.backend, data.BiddingToken)
	if err != nil {
		return nil, errors.WithMessage(err, "bidding token")
	}

	info := &auction.DerivedInfo{
		AuctioningToken: auctioning,
		BiddingToken:    bidding,
	}
	if data.ClearingPriceOrder == ([32]byte{}) {
		return info, nil
	}

	clearing, err := order.Decode(order.FromBytes32(data.ClearingPriceOrder))
	if err != nil {
		return nil, err
	}
	info.ClearingPriceOrder = &clearing
	sellOrder := clearing
	info.ClearingPriceSellOrder = &sellOrder
	info.ClearingPriceVolume = data.VolumeClearingPriceOrder
	return info, nil
}

// TokenInfo reads the symbol and decimals of an ERC20 token. Tokens without
// a string symbol are reported with an empty symbol.
func TokenInfo(ctx context.Context, backend Backend, token common.Address) (*auction.Token, error) {
	reader := &EasyAuction{address: token, backend: backend}

	out, err := reader.call(ctx, &ERC20ABI, "decimals")
	if err != nil {
		return nil, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return nil, errors.Errorf("decimals: unexpected result type %T", out[0])
	}

	t := &auction.Token{Address: token, Decimals: decimals}
	if out, err := reader.call(ctx, &ERC20ABI, "symbol"); err == nil {
		t.Symbol, _ = out[0].(string)
	}
	return t, nil
}

// call packs and executes a constant method and unpacks its results.
func (a *EasyAuction) call(ctx context.Context, contract *abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "packing %s", method)
	}
	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &a.address, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "calling %s", method)
	}
	res, err := contract.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "unpacking %s", method)
	}
	if len(res) == 0 {
		return nil, errors.Errorf("%s: empty result", method)
	}
	return res, nil
}

func packClaim(auctionID uint64, orders []order.Encoded) ([]byte, error) {
	hashes, err := order.HashAll(orders)
	if err != nil {
		return nil, err
	}
	data, err := EasyAuctionABI.Pack("claimFromParticipantOrder", new(big.Int).SetUint64(auctionID), hashes)
	if err != nil {
		return nil, errors.Wrap(err, "packing claimFromParticipantOrder")
	}
	return data, nil
}
