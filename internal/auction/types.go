package auction

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/perun-network/auction-claim/internal/message"
	"github.com/perun-network/auction-claim/internal/order"
)

type (
	// Identifier identifies one auction on one chain.
	Identifier struct {
		AuctionID uint64
		ChainID   message.ChainID
	}

	// Key is the comparable form of an Identifier.
	Key struct {
		AuctionID uint64
		Chain     message.ChainKey
	}

	// Token describes an ERC20 token taking part in an auction.
	Token struct {
		Address  common.Address
		Symbol   string
		Decimals uint8
	}

	// TokenAmount is an amount of a token in base units.
	TokenAmount struct {
		Token  Token
		Amount *big.Int
	}

	// DerivedInfo is the cleared state of an auction. A nil field means the
	// value is not known (yet).
	DerivedInfo struct {
		AuctioningToken *Token
		BiddingToken    *Token
		// ClearingPriceOrder expresses the clearing price as buyAmount/sellAmount.
		ClearingPriceOrder *order.Order
		// ClearingPriceSellOrder is the marginal order at the clearing price.
		ClearingPriceSellOrder *order.Order
		// ClearingPriceVolume is the volume sold to the marginal order.
		ClearingPriceVolume *big.Int
	}

	// Proceeds are the amounts a bidder can claim. Both fields are nil when
	// they cannot be computed.
	Proceeds struct {
		ClaimableAuctioningToken *TokenAmount
		ClaimableBiddingToken    *TokenAmount
	}
)

// NewIdentifier creates an Identifier.
func NewIdentifier(auctionID uint64, chainID message.ChainID) Identifier {
	return Identifier{AuctionID: auctionID, ChainID: chainID}
}

// Key returns the comparable form of the identifier.
func (id Identifier) Key() Key {
	return Key{AuctionID: id.AuctionID, Chain: id.ChainID.MapKey()}
}

// IsZero reports whether the identifier is missing its auction or chain.
func (id Identifier) IsZero() bool {
	return id.AuctionID == 0 || id.ChainID.Int == nil || id.ChainID.Sign() == 0
}

func (id Identifier) String() string {
	return fmt.Sprintf("auction-%d@%v", id.AuctionID, id.ChainID)
}

// NewTokenAmount creates a TokenAmount holding a copy of amount.
func NewTokenAmount(t Token, amount *big.Int) TokenAmount {
	a := new(big.Int)
	if amount != nil {
		a.Set(amount)
	}
	return TokenAmount{Token: t, Amount: a}
}

// Decimal returns the amount scaled by the token's decimals.
func (a TokenAmount) Decimal() decimal.Decimal {
	if a.Amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.Amount, -int32(a.Token.Decimals))
}

func (a TokenAmount) String() string {
	if a.Token.Symbol == "" {
		return a.Decimal().String()
	}
	return a.Decimal().String() + " " + a.Token.Symbol
}

// Message converts the amount into its JSON form.
func (a TokenAmount) Message() *message.TokenAmount {
	return &message.TokenAmount{
		Token:     a.Token.Address,
		Symbol:    a.Token.Symbol,
		Decimals:  a.Token.Decimals,
		Amount:    message.MakeBigInt(a.Amount),
		Formatted: a.Decimal().String(),
	}
}

// Defined reports whether the proceeds could be computed.
func (p Proceeds) Defined() bool {
	return p.ClaimableAuctioningToken != nil && p.ClaimableBiddingToken != nil
}

// complete reports whether every value needed to compute proceeds is known.
func (d *DerivedInfo) complete() bool {
	return d != nil &&
		d.BiddingToken != nil &&
		d.AuctioningToken != nil &&
		d.ClearingPriceSellOrder != nil &&
		d.ClearingPriceOrder != nil &&
		d.ClearingPriceOrder.SellAmount != nil &&
		d.ClearingPriceOrder.BuyAmount != nil &&
		d.ClearingPriceVolume != nil
}
