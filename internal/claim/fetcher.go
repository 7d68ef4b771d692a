package claim

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	pkgsync "polycry.pt/poly-go/sync"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/order"
)

// FetchResult is the observable state of a Fetcher.
type FetchResult struct {
	// Orders is nil until orders have been loaded, and empty when the bidder
	// placed no orders.
	Orders  []order.Encoded
	Loading bool
	Error   error
}

// Fetcher loads the orders of a bidder in an auction from the data service.
//
// Every Load supersedes the previous one: the result of a request whose
// parameters are no longer current is discarded. Changing the auction or
// the account clears the result before the new request is issued.
type Fetcher struct {
	closer  pkgsync.Closer
	service OrderService
	log     logrus.FieldLogger

	mtx     sync.Mutex
	id      auction.Identifier
	account common.Address
	gen     uint64
	cancel  context.CancelFunc
	result  FetchResult
	subs    subscribers[FetchResult]
}

// NewFetcher creates a fetcher using service.
func NewFetcher(service OrderService, log logrus.FieldLogger) *Fetcher {
	return &Fetcher{
		service: service,
		log:     log.WithField("component", "fetcher"),
		subs:    make(subscribers[FetchResult]),
	}
}

// Load starts loading the orders of account in auction id. The returned
// channel is closed once the request completed or was superseded. Nothing is
// requested while any of the parameters is unset.
func (f *Fetcher) Load(id auction.Identifier, account common.Address) <-chan struct{} {
	done := make(chan struct{})

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if f.closer.IsClosed() {
		close(done)
		return done
	}

	if id.Key() != f.id.Key() || account != f.account {
		f.setResult(FetchResult{})
	}
	f.id, f.account = id, account
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}

	if id.IsZero() || account == (common.Address{}) {
		close(done)
		return done
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.setResult(FetchResult{Orders: f.result.Orders, Loading: true})

	log := f.log.WithFields(logrus.Fields{
		"request": uuid.NewString(),
		"auction": id.String(),
		"account": account.Hex(),
	})
	go f.fetch(ctx, f.gen, id, account, log, done)
	return done
}

func (f *Fetcher) fetch(ctx context.Context, gen uint64, id auction.Identifier, account common.Address, log logrus.FieldLogger, done chan struct{}) {
	defer close(done)
	log.Debug("fetching orders")

	orders, err := f.service.GetUserOrders(ctx, id.ChainID, id.AuctionID, account)

	f.mtx.Lock()
	defer f.mtx.Unlock()
	if gen != f.gen || f.closer.IsClosed() {
		log.Debug("discarding superseded order fetch")
		return
	}
	f.cancel()
	f.cancel = nil

	if err != nil {
		log.Warnf("fetching orders: %v", err)
		f.setResult(FetchResult{
			Orders: f.result.Orders,
			Error:  &FetchError{Auction: id, Account: account, Err: err},
		})
		return
	}
	if orders == nil {
		orders = []order.Encoded{}
	}
	log.Debugf("fetched %d orders", len(orders))
	f.setResult(FetchResult{Orders: orders})
}

// setResult must be called with mtx held.
func (f *Fetcher) setResult(r FetchResult) {
	f.result = r
	f.subs.publish(r.copy())
}

// Result returns the current result.
func (f *Fetcher) Result() FetchResult {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.result.copy()
}

// Subscribe returns a channel receiving the latest result after every
// change, and a function ending the subscription. Intermediate results may
// be skipped by slow readers.
func (f *Fetcher) Subscribe() (<-chan FetchResult, func()) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.subs.add(&f.mtx, f.closer.IsClosed())
}

// Close stops the fetcher. Results of in-flight requests are discarded.
func (f *Fetcher) Close() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if err := f.closer.Close(); err != nil {
		return err
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.subs.closeAll()
	return nil
}

func (r FetchResult) copy() FetchResult {
	if r.Orders != nil {
		r.Orders = append([]order.Encoded{}, r.Orders...)
	}
	return r
}
