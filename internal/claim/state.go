// Package claim tracks and executes the claim of a bidder's proceeds from a
// settled batch auction.
//
// A Session ties together the three stages of a claim for one
// (auction, account) pair: the Fetcher loads the bidder's orders from the
// data service, the Resolver reconciles them with the ledger and the pending
// claim registry into a State, and the Submitter sends the claim
// transaction.
package claim

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// State is the claim lifecycle state of a bidder's orders in an auction.
type State int

const (
	// StateUnknown is the initial state before any data is available.
	StateUnknown State = iota
	// StateNotApplicable means the bidder placed no orders in the auction.
	StateNotApplicable
	// StateNotClaimed means the orders are still on the ledger and no claim
	// is pending.
	StateNotClaimed
	// StatePending means the orders are still on the ledger and a claim
	// transaction has been submitted.
	StatePending
	// StateClaimed means the orders have been consumed by a claim.
	StateClaimed
)

var stateNames = [...]string{
	StateUnknown:       "UNKNOWN",
	StateNotApplicable: "NOT_APPLICABLE",
	StateNotClaimed:    "NOT_CLAIMED",
	StatePending:       "PENDING",
	StateClaimed:       "CLAIMED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Claimable reports whether a claim may be submitted in this state.
func (s State) Claimable() bool {
	return s == StateNotClaimed
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, errors.Errorf("invalid claim state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState parses the name of a state.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return StateUnknown, errors.Errorf("unknown claim state %q", name)
}
