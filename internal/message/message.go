package message

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
)

type (
	// Message is the interface for all messages that can be sent to node clients.
	Message interface{ messageType() string }
	// JSONObject is a wrapper for a Message that includes the message type.
	JSONObject struct {
		Message
	}

	// SubscribeClaims asks the node to stream claim status changes of an
	// account's orders in an auction.
	SubscribeClaims struct {
		ChainID   ChainID        `json:"chainID"`
		AuctionID uint64         `json:"auctionID"`
		Account   common.Address `json:"account"`
	}

	// ClaimStatusUpdate is sent whenever the claim state of a subscribed
	// (auction, account) pair changes.
	ClaimStatusUpdate struct {
		ChainID   ChainID        `json:"chainID"`
		AuctionID uint64         `json:"auctionID"`
		Account   common.Address `json:"account"`
		State     string         `json:"state"`
	}

	// TokenAmount is the JSON form of a token amount.
	TokenAmount struct {
		Token     common.Address `json:"token"`
		Symbol    string         `json:"symbol,omitempty"`
		Decimals  uint8          `json:"decimals"`
		Amount    BigInt         `json:"amount"`
		Formatted string         `json:"formatted"`
	}

	// ProceedsResponse carries the claimable amounts of an account. Both
	// amounts are nil when the auction has not been cleared yet.
	ProceedsResponse struct {
		ChainID                  ChainID        `json:"chainID"`
		AuctionID                uint64         `json:"auctionID"`
		Account                  common.Address `json:"account"`
		ClaimableAuctioningToken *TokenAmount   `json:"claimableAuctioningToken"`
		ClaimableBiddingToken    *TokenAmount   `json:"claimableBiddingToken"`
		Orders                   int            `json:"orders"`
		State                    string         `json:"state"`
	}

	// Error is used to inform a node client about an error.
	Error struct {
		Err string `json:"error"`
	}
)

// messageTypes is a map from the message type names to their reflected type.
// It is used to unmarshal messages when having their message type name.
var messageTypes = map[string]reflect.Type{
	(*SubscribeClaims)(nil).messageType():   reflect.ValueOf((*SubscribeClaims)(nil)).Type().Elem(),
	(*ClaimStatusUpdate)(nil).messageType(): reflect.ValueOf((*ClaimStatusUpdate)(nil)).Type().Elem(),
	(*ProceedsResponse)(nil).messageType():  reflect.ValueOf((*ProceedsResponse)(nil)).Type().Elem(),
	(*Error)(nil).messageType():             reflect.ValueOf((*Error)(nil)).Type().Elem(),
}

func (*SubscribeClaims) messageType() string   { return "SubscribeClaims" }
func (*ClaimStatusUpdate) messageType() string { return "ClaimStatusUpdate" }
func (*ProceedsResponse) messageType() string  { return "ProceedsResponse" }
func (*Error) messageType() string             { return "Error" }

// NewError creates a new Error with the given error.
func NewError(err error) *Error {
	return &Error{Err: err.Error()}
}

func (e *Error) Error() string {
	return e.Err
}

// MarshalJSON marshals a JSONObject into JSON.
func (o *JSONObject) MarshalJSON() ([]byte, error) {
	msg := struct {
		Type    string  `json:"type"`
		Message Message `json:"message"`
	}{
		Type:    o.Message.messageType(),
		Message: o.Message,
	}

	return json.Marshal(msg)
}

// UnmarshalJSON unmarshals a JSONObject from JSON.
func (o *JSONObject) UnmarshalJSON(data []byte) error {
	var msg struct {
		Type    string          `json:"type"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	msgType, ok := messageTypes[msg.Type]
	if !ok {
		return fmt.Errorf("message type '%s' not found", msg.Type)
	}

	obj := reflect.New(msgType).Interface()
	if err := json.Unmarshal(msg.Message, obj); err != nil {
		return err
	}

	o.Message = obj.(Message)
	return nil
}
