// Package order decodes and encodes the packed sell orders stored by the
// batch auction contract.
//
// An order occupies one bytes32 word, big endian:
//
//	| userId uint64 | buyAmount uint96 | sellAmount uint96 |
//
// sellAmount is denominated in the bidding token, buyAmount in the auctioning
// token.
package order

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

const (
	// EncodedLen is the byte length of an encoded order.
	EncodedLen = 32
	// AmountBits is the bit width of the packed sell and buy amounts.
	AmountBits = 96

	userIDEnd    = 8
	buyAmountEnd = userIDEnd + AmountBits/8
)

type (
	// Encoded is an order in the contract's bytes32 layout, 0x-prefixed hex.
	Encoded string

	// Order is a decoded sell order.
	Order struct {
		UserID     uint64
		SellAmount *big.Int
		BuyAmount  *big.Int
	}

	// DecodeError is returned for malformed encoded orders.
	DecodeError struct {
		Input  Encoded
		Reason string
		Err    error
	}
)

// Sentinels of the contract's sorted order queue. They never belong to a
// bidder.
const (
	QueueStartElement Encoded = "0x0000000000000000000000000000000000000000000000000000000000000001"
	QueueLastElement  Encoded = "0xffffffffffffffffffffffffffffffffffffffff000000000000000000000001"
)

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding order %q: %s: %v", string(e.Input), e.Reason, e.Err)
	}
	return fmt.Sprintf("decoding order %q: %s", string(e.Input), e.Reason)
}

// Unwrap returns the underlying error, if any.
func (e *DecodeError) Unwrap() error { return e.Err }

// Cause implements the pkg/errors causer interface.
func (e *DecodeError) Cause() error { return e.Err }

// Decode decodes an encoded order.
func Decode(enc Encoded) (Order, error) {
	b, err := hexutil.Decode(string(enc))
	if err != nil {
		return Order{}, &DecodeError{Input: enc, Reason: "invalid hex", Err: err}
	}
	if len(b) != EncodedLen {
		return Order{}, &DecodeError{
			Input:  enc,
			Reason: fmt.Sprintf("expected %d bytes, got %d", EncodedLen, len(b)),
		}
	}
	return Order{
		UserID:     binary.BigEndian.Uint64(b[:userIDEnd]),
		BuyAmount:  new(big.Int).SetBytes(b[userIDEnd:buyAmountEnd]),
		SellAmount: new(big.Int).SetBytes(b[buyAmountEnd:]),
	}, nil
}

// DecodeAll decodes all orders, failing on the first malformed one.
func DecodeAll(encs []Encoded) ([]Order, error) {
	out := make([]Order, len(encs))
	for i, enc := range encs {
		o, err := Decode(enc)
		if err != nil {
			return nil, err
		}
		out[i] = o
	}
	return out, nil
}

// Encode packs an order into the contract layout.
func Encode(o Order) (Encoded, error) {
	var b [EncodedLen]byte
	binary.BigEndian.PutUint64(b[:userIDEnd], o.UserID)
	if err := putAmount(b[userIDEnd:buyAmountEnd], o.BuyAmount); err != nil {
		return "", errors.Wrap(err, "buy amount")
	}
	if err := putAmount(b[buyAmountEnd:], o.SellAmount); err != nil {
		return "", errors.Wrap(err, "sell amount")
	}
	return Encoded(hexutil.Encode(b[:])), nil
}

func putAmount(dst []byte, v *big.Int) error {
	if v == nil {
		return errors.New("amount is nil")
	}
	if v.Sign() < 0 {
		return errors.Errorf("amount %v is negative", v)
	}
	if v.BitLen() > AmountBits {
		return errors.Errorf("amount %v exceeds %d bits", v, AmountBits)
	}
	v.FillBytes(dst)
	return nil
}

// Equal reports whether both orders have the same sell and buy amounts. The
// user id is not compared.
func (o Order) Equal(other Order) bool {
	return cmpAmount(o.SellAmount, other.SellAmount) == 0 &&
		cmpAmount(o.BuyAmount, other.BuyAmount) == 0
}

// cmpAmount compares two amounts, treating nil as zero.
func cmpAmount(a, b *big.Int) int {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b)
}

func (o Order) String() string {
	return fmt.Sprintf("Order{user: %d, sell: %v, buy: %v}", o.UserID, o.SellAmount, o.BuyAmount)
}

// Hash returns the order as a bytes32 contract argument.
func (e Encoded) Hash() (common.Hash, error) {
	if _, err := Decode(e); err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(string(e)), nil
}

// FromBytes32 converts a bytes32 contract value into an encoded order.
func FromBytes32(b [32]byte) Encoded {
	return Encoded(hexutil.Encode(b[:]))
}

// IsQueueSentinel reports whether e is one of the order queue sentinels.
func (e Encoded) IsQueueSentinel() bool {
	h, err := e.Hash()
	if err != nil {
		return false
	}
	return h == common.HexToHash(string(QueueStartElement)) ||
		h == common.HexToHash(string(QueueLastElement))
}

// HashAll converts orders into bytes32 contract arguments.
func HashAll(encs []Encoded) ([][32]byte, error) {
	out := make([][32]byte, len(encs))
	for i, enc := range encs {
		h, err := enc.Hash()
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}
