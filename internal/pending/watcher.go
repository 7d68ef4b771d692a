package pending

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/perun-network/auction-claim/internal/message"
)

// DefaultPollInterval is the interval in which the Watcher polls receipts.
const DefaultPollInterval = 15 * time.Second

type (
	// ReceiptSource looks up transaction receipts on one chain.
	ReceiptSource interface {
		TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	}

	// ReceiptSources resolves the receipt source for a chain.
	ReceiptSources func(chain message.ChainKey) (ReceiptSource, bool)

	// ConfirmedFunc is called after a pending claim has been mined and cleared.
	ConfirmedFunc func(e Entry, r *types.Receipt)

	// Watcher clears pending claims once their transactions are mined.
	Watcher struct {
		store       Store
		sources     ReceiptSources
		interval    time.Duration
		log         logrus.FieldLogger
		onConfirmed []ConfirmedFunc
	}
)

// NewWatcher creates a Watcher polling every interval.
func NewWatcher(store Store, sources ReceiptSources, interval time.Duration, log logrus.FieldLogger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		store:    store,
		sources:  sources,
		interval: interval,
		log:      log.WithField("component", "pending-watcher"),
	}
}

// OnConfirmed registers a callback for mined claims. Must not be called
// concurrently with Run or Poll.
func (w *Watcher) OnConfirmed(fn ConfirmedFunc) {
	w.onConfirmed = append(w.onConfirmed, fn)
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil {
				w.log.Errorf("polling pending claims: %v", err)
			}
		}
	}
}

// Poll checks every pending claim once. Lookup failures of single receipts
// are logged and retried on the next poll.
func (w *Watcher) Poll(ctx context.Context) error {
	entries, err := w.store.List(ctx)
	if err != nil {
		return errors.WithMessage(err, "listing pending claims")
	}

	for _, e := range entries {
		log := w.log.WithFields(logrus.Fields{
			"auctionID": e.AuctionID,
			"account":   e.Account.Hex(),
			"tx":        e.TxHash.Hex(),
		})

		src, ok := w.sources(e.ChainID.MapKey())
		if !ok {
			log.Warnf("no receipt source for chain %v", e.ChainID)
			continue
		}

		receipt, err := src.TransactionReceipt(ctx, e.TxHash)
		if errors.Is(err, ethereum.NotFound) {
			continue
		}
		if err != nil {
			log.Errorf("fetching receipt: %v", err)
			continue
		}

		cleared, err := w.store.ClearTx(ctx, e)
		if err != nil {
			log.Errorf("clearing pending claim: %v", err)
			continue
		}
		if !cleared {
			log.Debug("pending claim replaced by a newer transaction")
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			log.Warn("claim transaction reverted")
		} else {
			log.Info("claim transaction mined")
		}
		for _, fn := range w.onConfirmed {
			fn(e, receipt)
		}
	}
	return nil
}
