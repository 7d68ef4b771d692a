// Package pending tracks claim transactions that have been submitted but not
// yet mined.
//
// Entries are keyed by (auctionID, account). An entry is written once when a
// claim transaction is submitted and removed when the Watcher sees its
// receipt, or when it is older than the store's TTL.
package pending

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/perun-network/auction-claim/internal/message"
)

var (
	// ErrNotFound is returned when no pending claim exists for a key.
	ErrNotFound = errors.New("pending claim not found")
	// ErrInvalidInput is returned for incomplete entries.
	ErrInvalidInput = errors.New("invalid pending claim")
)

type (
	// Key identifies the pending claim of an account in an auction.
	Key struct {
		AuctionID uint64
		Account   common.Address
	}

	// Entry is a submitted claim transaction.
	Entry struct {
		AuctionID  uint64
		Account    common.Address
		ChainID    message.ChainID
		TxHash     common.Hash
		Summary    string
		RecordedAt time.Time
	}

	// Store is a registry of pending claim transactions. Implementations must
	// be safe for concurrent use; a reader sees an entry either completely or
	// not at all.
	Store interface {
		// Record registers a pending claim, replacing any previous one for
		// the same key.
		Record(ctx context.Context, e Entry) error
		// Has reports whether a live pending claim exists.
		Has(ctx context.Context, auctionID uint64, account common.Address) (bool, error)
		// Get returns the live pending claim or ErrNotFound.
		Get(ctx context.Context, auctionID uint64, account common.Address) (Entry, error)
		// Clear removes the pending claim. Clearing a missing key is no error.
		Clear(ctx context.Context, auctionID uint64, account common.Address) error
		// ClearTx removes the pending claim of e's key only if it still
		// refers to e.TxHash. It reports whether an entry was removed.
		ClearTx(ctx context.Context, e Entry) (bool, error)
		// List returns all live pending claims.
		List(ctx context.Context) ([]Entry, error)
	}
)

// Key returns the registry key of the entry.
func (e Entry) Key() Key {
	return Key{AuctionID: e.AuctionID, Account: e.Account}
}

func (e Entry) validate() error {
	if e.AuctionID == 0 {
		return errors.Wrap(ErrInvalidInput, "missing auction id")
	}
	if e.Account == (common.Address{}) {
		return errors.Wrap(ErrInvalidInput, "missing account")
	}
	if e.TxHash == (common.Hash{}) {
		return errors.Wrap(ErrInvalidInput, "missing transaction hash")
	}
	return nil
}

// ClaimSummary is the human readable description of a claim transaction.
func ClaimSummary(auctionID uint64) string {
	return fmt.Sprintf("Claiming tokens auction-%d", auctionID)
}
