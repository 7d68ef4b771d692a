package claim

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/order"
)

type (
	// MissingDependencyError is returned by the Submitter when required
	// context is absent. No network call has been made when it is returned.
	MissingDependencyError struct {
		Dependency string
	}

	// NotClaimableError is returned by Session.Claim when the claim state
	// does not allow a claim.
	NotClaimableError struct {
		State State
	}

	// FetchError is the failure of loading a bidder's orders from the data
	// service. It is reported through FetchResult.
	FetchError struct {
		Auction auction.Identifier
		Account common.Address
		Err     error
	}

	// ProbeError is the failure of checking an order on the ledger. It is
	// only logged; the resolver keeps its previous state.
	ProbeError struct {
		Auction auction.Identifier
		Order   order.Encoded
		Err     error
	}
)

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency for claim: %s", e.Dependency)
}

func (e *NotClaimableError) Error() string {
	return fmt.Sprintf("orders not claimable in state %v", e.State)
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching orders of %s in %v: %v", e.Account.Hex(), e.Auction, e.Err)
}

// Unwrap returns the data service error.
func (e *FetchError) Unwrap() error { return e.Err }

// Cause implements the pkg/errors causer interface.
func (e *FetchError) Cause() error { return e.Err }

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probing order %s in %v: %v", string(e.Order), e.Auction, e.Err)
}

// Unwrap returns the ledger error.
func (e *ProbeError) Unwrap() error { return e.Err }

// Cause implements the pkg/errors causer interface.
func (e *ProbeError) Cause() error { return e.Err }

func missing(dep string) error {
	return &MissingDependencyError{Dependency: dep}
}
