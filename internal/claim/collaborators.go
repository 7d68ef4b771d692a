package claim

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/message"
	"github.com/perun-network/auction-claim/internal/order"
)

type (
	// OrderService is the data service indexing placed orders.
	OrderService interface {
		GetUserOrders(ctx context.Context, chainID message.ChainID, auctionID uint64, account common.Address) ([]order.Encoded, error)
	}

	// OrderProber checks whether an order is still stored on the ledger.
	OrderProber interface {
		ContainsOrder(ctx context.Context, id auction.Identifier, o order.Encoded) (bool, error)
	}

	// PendingChecker reports locally tracked claim transactions, e.g. a
	// pending.Store.
	PendingChecker interface {
		Has(ctx context.Context, auctionID uint64, account common.Address) (bool, error)
	}

	// ClaimLedger estimates and submits claim transactions.
	ClaimLedger interface {
		EstimateClaimGas(ctx context.Context, id auction.Identifier, from common.Address, orders []order.Encoded) (uint64, error)
		SubmitClaim(ctx context.Context, id auction.Identifier, orders []order.Encoded, gas GasParams) (common.Hash, error)
	}

	// GasPriceSource provides the gas price of a chain.
	GasPriceSource interface {
		GasPrice(ctx context.Context, chainID message.ChainID) (*big.Int, error)
	}

	// GasParams are the gas settings of a claim transaction.
	GasParams struct {
		Price *big.Int
		Limit uint64
	}
)
