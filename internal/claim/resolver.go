package claim

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	pkgsync "polycry.pt/poly-go/sync"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/order"
)

// Resolver determines the claim State of a bidder's orders in an auction.
//
// A claim consumes all orders of a bidder at once, so only the first order
// is probed on the ledger and its presence stands for the whole batch. A
// ledger that allowed claiming a subset of the orders would be reported as
// NOT_CLAIMED or PENDING until the probed order itself is claimed.
//
// Probe failures are logged and leave the state unchanged. A probe whose
// parameters were superseded by a later Update or Refresh never changes the
// state.
type Resolver struct {
	closer  pkgsync.Closer
	prober  OrderProber
	pending PendingChecker
	log     logrus.FieldLogger

	mtx     sync.Mutex
	id      auction.Identifier
	account common.Address
	orders  []order.Encoded
	state   State
	gen     uint64
	cancel  context.CancelFunc
	done    <-chan struct{}
	subs    subscribers[State]
}

// NewResolver creates a resolver. pending may be nil if no claims are
// tracked locally.
func NewResolver(prober OrderProber, pending PendingChecker, log logrus.FieldLogger) *Resolver {
	return &Resolver{
		prober:  prober,
		pending: pending,
		log:     log.WithField("component", "resolver"),
		subs:    make(subscribers[State]),
	}
}

// Update sets the auction, the account and the account's orders, and starts
// resolving the state. A changed auction or account resets the state to
// UNKNOWN immediately. nil orders mean the orders are not known yet and
// start no probe; an empty list resolves to NOT_APPLICABLE. An Update
// repeating the parameters of a running probe joins it. The returned channel
// is closed once resolution finished or was superseded.
func (r *Resolver) Update(id auction.Identifier, account common.Address, orders []order.Encoded) <-chan struct{} {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.closer.IsClosed() {
		return closedChan()
	}
	if id.Key() != r.id.Key() || account != r.account {
		r.setState(StateUnknown)
		r.id, r.account = id, account
	} else if r.cancel != nil && equalOrders(r.orders, orders) {
		return r.done
	}
	if orders != nil {
		r.orders = append([]order.Encoded{}, orders...)
	} else {
		r.orders = nil
	}
	return r.resolveLocked()
}

// Refresh probes the ledger again with the current orders, e.g. after a
// claim has been submitted or confirmed.
func (r *Resolver) Refresh() <-chan struct{} {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.closer.IsClosed() {
		return closedChan()
	}
	return r.resolveLocked()
}

func (r *Resolver) resolveLocked() <-chan struct{} {
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}

	if r.orders == nil {
		return closedChan()
	}
	if len(r.orders) == 0 {
		r.setState(StateNotApplicable)
		return closedChan()
	}
	if r.id.IsZero() || r.account == (common.Address{}) {
		return closedChan()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	done := make(chan struct{})
	r.done = done
	log := r.log.WithFields(logrus.Fields{
		"request": uuid.NewString(),
		"auction": r.id.String(),
		"account": r.account.Hex(),
	})
	go r.probe(ctx, r.gen, r.id, r.account, r.orders[0], log, done)
	return done
}

func (r *Resolver) probe(ctx context.Context, gen uint64, id auction.Identifier, account common.Address, o order.Encoded, log logrus.FieldLogger, done chan struct{}) {
	defer close(done)

	state, err := r.resolve(ctx, id, account, o)

	r.mtx.Lock()
	defer r.mtx.Unlock()
	if gen != r.gen || r.closer.IsClosed() {
		log.Debug("discarding superseded claim probe")
		return
	}
	r.cancel()
	r.cancel = nil

	if err != nil {
		log.Error(&ProbeError{Auction: id, Order: o, Err: err})
		return
	}
	log.Debugf("claim state %v", state)
	r.setState(state)
}

func (r *Resolver) resolve(ctx context.Context, id auction.Identifier, account common.Address, o order.Encoded) (State, error) {
	contains, err := r.prober.ContainsOrder(ctx, id, o)
	if err != nil {
		return StateUnknown, err
	}
	if !contains {
		return StateClaimed, nil
	}
	if r.pending == nil {
		return StateNotClaimed, nil
	}
	pending, err := r.pending.Has(ctx, id.AuctionID, account)
	if err != nil {
		return StateUnknown, errors.WithMessage(err, "checking pending claims")
	}
	if pending {
		return StatePending, nil
	}
	return StateNotClaimed, nil
}

// setState must be called with mtx held.
func (r *Resolver) setState(s State) {
	if r.state == s {
		return
	}
	r.state = s
	r.subs.publish(s)
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.state
}

// Subscribe returns a channel receiving the latest state after every change,
// and a function ending the subscription. Intermediate states may be skipped
// by slow readers.
func (r *Resolver) Subscribe() (<-chan State, func()) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.subs.add(&r.mtx, r.closer.IsClosed())
}

// Close stops the resolver. Results of in-flight probes are discarded.
func (r *Resolver) Close() error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if err := r.closer.Close(); err != nil {
		return err
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.subs.closeAll()
	return nil
}

func equalOrders(a, b []order.Encoded) bool {
	if len(a) != len(b) || (a == nil) != (b == nil) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func closedChan() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
