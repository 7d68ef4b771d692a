package claim

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/message"
	"github.com/perun-network/auction-claim/internal/order"
)

const timeout = 2 * time.Second

var (
	accountA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	accountB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	auction7 = auction.NewIdentifier(7, message.ChainIDFromUint64(100))
)

func nullLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func encode(t *testing.T, userID uint64, sell, buy int64) order.Encoded {
	t.Helper()
	enc, err := order.Encode(order.Order{
		UserID:     userID,
		SellAmount: big.NewInt(sell),
		BuyAmount:  big.NewInt(buy),
	})
	require.NoError(t, err)
	return enc
}

func requireDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timeout")
	}
}

type fakeService struct {
	mtx   sync.Mutex
	calls int
	fn    func(ctx context.Context, account common.Address) ([]order.Encoded, error)
}

func (s *fakeService) GetUserOrders(ctx context.Context, _ message.ChainID, _ uint64, account common.Address) ([]order.Encoded, error) {
	s.mtx.Lock()
	s.calls++
	fn := s.fn
	s.mtx.Unlock()
	return fn(ctx, account)
}

func (s *fakeService) Calls() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.calls
}

func staticService(orders map[common.Address][]order.Encoded) *fakeService {
	return &fakeService{fn: func(_ context.Context, account common.Address) ([]order.Encoded, error) {
		return orders[account], nil
	}}
}

type fakeProber struct {
	mtx   sync.Mutex
	calls []order.Encoded
	fn    func(ctx context.Context, o order.Encoded) (bool, error)
}

func (p *fakeProber) ContainsOrder(ctx context.Context, _ auction.Identifier, o order.Encoded) (bool, error) {
	p.mtx.Lock()
	p.calls = append(p.calls, o)
	fn := p.fn
	p.mtx.Unlock()
	return fn(ctx, o)
}

func (p *fakeProber) set(fn func(ctx context.Context, o order.Encoded) (bool, error)) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.fn = fn
}

func (p *fakeProber) Calls() []order.Encoded {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return append([]order.Encoded{}, p.calls...)
}

func containsAll(contains bool) *fakeProber {
	return &fakeProber{fn: func(context.Context, order.Encoded) (bool, error) {
		return contains, nil
	}}
}

type fakePending struct {
	mtx     sync.Mutex
	pending map[common.Address]bool
}

func (p *fakePending) Has(_ context.Context, _ uint64, account common.Address) (bool, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.pending[account], nil
}

type fakeLedger struct {
	mtx       sync.Mutex
	estimate  uint64
	hash      common.Hash
	err       error
	estimates int
	submitted []GasParams
	orders    [][]order.Encoded
}

func (l *fakeLedger) EstimateClaimGas(context.Context, auction.Identifier, common.Address, []order.Encoded) (uint64, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.estimates++
	return l.estimate, nil
}

func (l *fakeLedger) SubmitClaim(_ context.Context, _ auction.Identifier, orders []order.Encoded, gas GasParams) (common.Hash, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.submitted = append(l.submitted, gas)
	l.orders = append(l.orders, orders)
	return l.hash, l.err
}

func (l *fakeLedger) Calls() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.estimates + len(l.submitted)
}

type fakeGas struct {
	price *big.Int
	err   error
}

func (g fakeGas) GasPrice(context.Context, message.ChainID) (*big.Int, error) {
	return g.price, g.err
}
