// Package auction computes what a bidder can claim from a cleared batch
// auction.
package auction

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/perun-network/auction-claim/internal/order"
)

// Placement is the position of a bidder's order relative to the clearing
// order.
type Placement int

const (
	// AtClearingPrice is the marginal order itself.
	AtClearingPrice Placement = iota
	// AboveClearingPrice orders ask for more auctioning token per bidding
	// token than the clearing price.
	AboveClearingPrice
	// BelowClearingPrice is every other order.
	BelowClearingPrice
)

var placementNames = []string{"AtClearingPrice", "AboveClearingPrice", "BelowClearingPrice"}

func (p Placement) String() string {
	return placementNames[p]
}

// Place classifies o against the clearing order. Prices are compared by
// cross multiplication so no precision is lost.
func Place(o, clearing order.Order) Placement {
	if o.Equal(clearing) {
		return AtClearingPrice
	}
	lhs := new(big.Int).Mul(clearing.BuyAmount, o.SellAmount)
	rhs := new(big.Int).Mul(o.BuyAmount, clearing.SellAmount)
	if lhs.Cmp(rhs) < 0 {
		return AboveClearingPrice
	}
	return BelowClearingPrice
}

// ComputeProceeds sums the claimable amounts of both auction tokens over the
// bidder's orders. If info lacks any of the clearing values the result is
// undefined and both fields of the returned Proceeds are nil. A malformed
// order fails the whole computation.
func ComputeProceeds(info *DerivedInfo, orders []order.Encoded) (Proceeds, error) {
	if !info.complete() {
		return Proceeds{}, nil
	}

	var (
		clearing   = *info.ClearingPriceOrder
		volume     = info.ClearingPriceVolume
		auctioning = new(big.Int)
		bidding    = new(big.Int)
	)
	for _, enc := range orders {
		o, err := order.Decode(enc)
		if err != nil {
			return Proceeds{}, err
		}

		switch Place(o, clearing) {
		case AtClearingPrice:
			refund := new(big.Int).Sub(o.SellAmount, volume)
			if refund.Sign() < 0 {
				return Proceeds{}, errors.Errorf("clearing volume %v exceeds sell amount of marginal order %v", volume, o)
			}
			bidding.Add(bidding, refund)
			if clearing.SellAmount.Sign() > 0 {
				auctioning.Add(auctioning, mulDiv(volume, clearing.BuyAmount, clearing.SellAmount))
			}
		case AboveClearingPrice:
			bidding.Add(bidding, o.SellAmount)
		case BelowClearingPrice:
			// A zero clearing sell amount only occurs in degenerate auctions.
			if clearing.SellAmount.Sign() > 0 {
				auctioning.Add(auctioning, mulDiv(o.SellAmount, clearing.BuyAmount, clearing.SellAmount))
			}
		}
	}

	a := NewTokenAmount(*info.AuctioningToken, auctioning)
	b := NewTokenAmount(*info.BiddingToken, bidding)
	return Proceeds{
		ClaimableAuctioningToken: &a,
		ClaimableBiddingToken:    &b,
	}, nil
}

// mulDiv returns floor(x*y/z) for non-negative operands and z > 0.
func mulDiv(x, y, z *big.Int) *big.Int {
	r := new(big.Int).Mul(x, y)
	return r.Quo(r, z)
}
