package claim

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	pkgsync "polycry.pt/poly-go/sync"

	"github.com/perun-network/auction-claim/internal/auction"
)

// Session tracks the claim of one account in one auction. The fetched
// orders feed the session's Resolver, the proceeds calculation and claims.
type Session struct {
	closer    pkgsync.Closer
	id        auction.Identifier
	account   common.Address
	fetcher   *Fetcher
	resolver  *Resolver
	submitter *Submitter
	log       logrus.FieldLogger

	startOnce sync.Once
	wg        sync.WaitGroup

	mtx     sync.Mutex
	loading <-chan struct{} // initial load issued by Start
}

// NewSession creates a session. submitter may be nil for read-only
// sessions.
func NewSession(
	id auction.Identifier,
	account common.Address,
	service OrderService,
	prober OrderProber,
	pending PendingChecker,
	submitter *Submitter,
	log logrus.FieldLogger,
) *Session {
	log = log.WithFields(logrus.Fields{
		"auction": id.String(),
		"account": account.Hex(),
	})
	return &Session{
		id:        id,
		account:   account,
		fetcher:   NewFetcher(service, log),
		resolver:  NewResolver(prober, pending, log),
		submitter: submitter,
		log:       log,
	}
}

// Auction returns the auction of the session.
func (s *Session) Auction() auction.Identifier { return s.id }

// Account returns the account of the session.
func (s *Session) Account() common.Address { return s.account }

// Start loads the orders in the background and keeps the claim state up to
// date with every fetch result until the session is closed.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		results, unsubscribe := s.fetcher.Subscribe()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer unsubscribe()
			for {
				select {
				case r, ok := <-results:
					if !ok {
						return
					}
					if r.Orders != nil && !r.Loading {
						s.resolver.Update(s.id, s.account, r.Orders)
					}
				case <-s.closer.Closed():
					return
				}
			}
		}()
		done := s.fetcher.Load(s.id, s.account)
		s.mtx.Lock()
		s.loading = done
		s.mtx.Unlock()
	})
}

// Sync loads the orders and resolves the claim state, waiting for both to
// complete. If the initial load of Start is still running, Sync waits for it
// instead of loading again. A failed fetch is returned as *FetchError. Probe
// failures are not returned; the state then stays as it was.
func (s *Session) Sync(ctx context.Context) error {
	done := s.initialLoad()
	if done == nil {
		done = s.fetcher.Load(s.id, s.account)
	}
	if err := wait(ctx, done); err != nil {
		return err
	}
	r := s.fetcher.Result()
	if r.Error != nil {
		return r.Error
	}
	return wait(ctx, s.resolver.Update(s.id, s.account, r.Orders))
}

// initialLoad returns the done channel of Start's load while it is running.
func (s *Session) initialLoad() <-chan struct{} {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.loading == nil {
		return nil
	}
	select {
	case <-s.loading:
		s.loading = nil
		return nil
	default:
		return s.loading
	}
}

// Orders returns the current fetch result.
func (s *Session) Orders() FetchResult {
	return s.fetcher.Result()
}

// Proceeds computes the claimable amounts from the loaded orders. Both
// amounts are nil if info is incomplete.
func (s *Session) Proceeds(info *auction.DerivedInfo) (auction.Proceeds, error) {
	r := s.fetcher.Result()
	if r.Error != nil {
		return auction.Proceeds{}, r.Error
	}
	return auction.ComputeProceeds(info, r.Orders)
}

// State returns the current claim state.
func (s *Session) State() State {
	return s.resolver.State()
}

// Subscribe streams claim state changes, see Resolver.Subscribe.
func (s *Session) Subscribe() (<-chan State, func()) {
	return s.resolver.Subscribe()
}

// Refresh probes the claim state again, e.g. after a claim transaction was
// mined.
func (s *Session) Refresh() <-chan struct{} {
	return s.resolver.Refresh()
}

// Claim submits a claim of all loaded orders. It fails with
// *NotClaimableError unless the claim state is NOT_CLAIMED. Once submitted,
// the claim state is probed again so that it reflects the pending claim.
func (s *Session) Claim(ctx context.Context) (common.Hash, error) {
	if s.submitter == nil {
		return common.Hash{}, missing("submitter")
	}
	r := s.fetcher.Result()
	if r.Error != nil || r.Orders == nil {
		return common.Hash{}, missing("claim info")
	}
	if state := s.resolver.State(); !state.Claimable() {
		return common.Hash{}, &NotClaimableError{State: state}
	}

	hash, err := s.submitter.Submit(ctx, ClaimRequest{
		Auction: s.id,
		Account: s.account,
		Orders:  r.Orders,
	})
	if hash != (common.Hash{}) {
		s.resolver.Refresh()
	}
	return hash, err
}

// Close stops the session and discards in-flight requests.
func (s *Session) Close() error {
	if err := s.closer.Close(); err != nil {
		return err
	}
	if err := s.fetcher.Close(); err != nil {
		s.log.Errorf("closing fetcher: %v", err)
	}
	if err := s.resolver.Close(); err != nil {
		s.log.Errorf("closing resolver: %v", err)
	}
	s.wg.Wait()
	return nil
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
