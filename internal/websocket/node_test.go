package websocket

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/claim"
	"github.com/perun-network/auction-claim/internal/message"
	"github.com/perun-network/auction-claim/internal/order"
	"github.com/perun-network/auction-claim/internal/pending"
)

const timeout = 2 * time.Second

var (
	bidder   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	auction7 = auction.NewIdentifier(7, message.ChainIDFromUint64(100))
)

type fakeService struct {
	mtx    sync.Mutex
	orders map[common.Address][]order.Encoded
	err    error
}

func (s *fakeService) GetUserOrders(_ context.Context, _ message.ChainID, _ uint64, account common.Address) ([]order.Encoded, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.orders[account], s.err
}

type fakeProber struct {
	mtx      sync.Mutex
	contains bool
	calls    int
}

func (p *fakeProber) ContainsOrder(context.Context, auction.Identifier, order.Encoded) (bool, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.calls++
	return p.contains, nil
}

func (p *fakeProber) Calls() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.calls
}

type fakeInfo struct {
	info *auction.DerivedInfo
	err  error
}

func (f fakeInfo) DerivedInfo(context.Context, auction.Identifier) (*auction.DerivedInfo, error) {
	return f.info, f.err
}

func clearedInfo() *auction.DerivedInfo {
	auctioning := auction.Token{Address: common.HexToAddress("0x01"), Symbol: "AUC", Decimals: 18}
	bidding := auction.Token{Address: common.HexToAddress("0x02"), Symbol: "BID", Decimals: 6}
	clearing := order.Order{SellAmount: big.NewInt(100), BuyAmount: big.NewInt(200)}
	return &auction.DerivedInfo{
		AuctioningToken:        &auctioning,
		BiddingToken:           &bidding,
		ClearingPriceOrder:     &clearing,
		ClearingPriceSellOrder: &clearing,
		ClearingPriceVolume:    big.NewInt(40),
	}
}

type testNode struct {
	service *fakeService
	prober  *fakeProber
	store   *pending.MemoryStore
	hub     *Hub
	server  *httptest.Server
}

func newTestNode(t *testing.T, info InfoSource) *testNode {
	t.Helper()
	log, _ := test.NewNullLogger()

	enc, err := order.Encode(order.Order{UserID: 3, SellAmount: big.NewInt(100), BuyAmount: big.NewInt(200)})
	require.NoError(t, err)

	n := &testNode{
		service: &fakeService{orders: map[common.Address][]order.Encoded{bidder: {enc}}},
		prober:  &fakeProber{contains: true},
		store:   pending.NewMemoryStore(time.Hour),
	}
	n.hub = NewHub(func(id auction.Identifier, account common.Address) *claim.Session {
		return claim.NewSession(id, account, n.service, n.prober, n.store, nil, log)
	}, log)
	node := NewNode(Config{RequestTimeout: timeout}, n.hub, info, log)
	n.server = httptest.NewServer(node.Handler())
	t.Cleanup(func() {
		n.server.Close()
		n.hub.Close()
	})
	return n
}

func query(account common.Address) string {
	return url.Values{
		"chainID":   {"100"},
		"auctionID": {"7"},
		"account":   {account.Hex()},
	}.Encode()
}

func TestNode_Proceeds(t *testing.T) {
	n := newTestNode(t, fakeInfo{info: clearedInfo()})

	resp, err := http.Get(n.server.URL + "/proceeds?" + query(bidder))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p message.ProceedsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, uint64(7), p.AuctionID)
	assert.Equal(t, "100", p.ChainID.String())
	assert.Equal(t, bidder, p.Account)
	assert.Equal(t, 1, p.Orders)
	assert.Equal(t, "NOT_CLAIMED", p.State)
	require.NotNil(t, p.ClaimableAuctioningToken)
	require.NotNil(t, p.ClaimableBiddingToken)
	assert.Equal(t, "80", p.ClaimableAuctioningToken.Amount.String())
	assert.Equal(t, "AUC", p.ClaimableAuctioningToken.Symbol)
	assert.Equal(t, "60", p.ClaimableBiddingToken.Amount.String())

	assert.Zero(t, n.hub.Len(), "session released after the request")
}

func TestNode_ProceedsNotCleared(t *testing.T) {
	n := newTestNode(t, fakeInfo{info: &auction.DerivedInfo{}})

	resp, err := http.Get(n.server.URL + "/proceeds?" + query(bidder))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p message.ProceedsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Nil(t, p.ClaimableAuctioningToken)
	assert.Nil(t, p.ClaimableBiddingToken)
}

func TestNode_ProceedsErrors(t *testing.T) {
	t.Run("bad request", func(t *testing.T) {
		n := newTestNode(t, fakeInfo{info: clearedInfo()})
		for _, q := range []string{
			"",
			"chainID=100&auctionID=7",
			"chainID=100&auctionID=0&account=" + bidder.Hex(),
			"chainID=x&auctionID=7&account=" + bidder.Hex(),
			"chainID=100&auctionID=7&account=0x12",
		} {
			resp, err := http.Get(n.server.URL + "/proceeds?" + q)
			require.NoError(t, err)
			var e message.Error
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
			assert.NotEmpty(t, e.Err)
		}
	})

	t.Run("data service failure", func(t *testing.T) {
		n := newTestNode(t, fakeInfo{info: clearedInfo()})
		n.service.err = errors.New("service down")

		resp, err := http.Get(n.server.URL + "/proceeds?" + query(bidder))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})

	t.Run("ledger failure", func(t *testing.T) {
		n := newTestNode(t, fakeInfo{err: errors.New("node down")})

		resp, err := http.Get(n.server.URL + "/proceeds?" + query(bidder))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})

	t.Run("method", func(t *testing.T) {
		n := newTestNode(t, fakeInfo{info: clearedInfo()})

		resp, err := http.Post(n.server.URL+"/proceeds?"+query(bidder), "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func dial(t *testing.T, n *testNode, rawQuery string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(n.server.URL, "http") + "/ws/claims"
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) message.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	var obj message.JSONObject
	require.NoError(t, conn.ReadJSON(&obj))
	return obj.Message
}

// awaitState reads status updates until state is reported.
func awaitState(t *testing.T, conn *websocket.Conn, state claim.State) *message.ClaimStatusUpdate {
	t.Helper()
	for {
		update, ok := readFrame(t, conn).(*message.ClaimStatusUpdate)
		require.True(t, ok)
		if update.State == state.String() {
			return update
		}
	}
}

func TestNode_ClaimStream(t *testing.T) {
	n := newTestNode(t, fakeInfo{info: clearedInfo()})
	conn := dial(t, n, query(bidder))

	update := awaitState(t, conn, claim.StateNotClaimed)
	assert.Equal(t, uint64(7), update.AuctionID)
	assert.Equal(t, bidder, update.Account)
	assert.Equal(t, 1, n.hub.Len())

	entry := pending.Entry{
		AuctionID: 7,
		Account:   bidder,
		ChainID:   auction7.ChainID,
		TxHash:    common.HexToHash("0x01"),
		Summary:   pending.ClaimSummary(7),
	}
	require.NoError(t, n.store.Record(context.Background(), entry))
	n.hub.Refresh(entry)
	awaitState(t, conn, claim.StatePending)

	n.prober.mtx.Lock()
	n.prober.contains = false
	n.prober.mtx.Unlock()
	require.NoError(t, n.store.Clear(context.Background(), 7, bidder))
	n.hub.Refresh(entry)
	awaitState(t, conn, claim.StateClaimed)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return n.hub.Len() == 0 }, timeout, 10*time.Millisecond)
}

func TestNode_ClaimStreamSubscribeMessage(t *testing.T) {
	n := newTestNode(t, fakeInfo{info: clearedInfo()})
	n.prober.contains = false
	conn := dial(t, n, "")

	require.NoError(t, conn.WriteJSON(&message.JSONObject{Message: &message.SubscribeClaims{
		ChainID:   auction7.ChainID,
		AuctionID: 7,
		Account:   bidder,
	}}))
	awaitState(t, conn, claim.StateClaimed)
}

func TestNode_ClaimStreamNoOrders(t *testing.T) {
	n := newTestNode(t, fakeInfo{info: clearedInfo()})
	conn := dial(t, n, query(common.HexToAddress("0xbb")))

	awaitState(t, conn, claim.StateNotApplicable)
	assert.Zero(t, n.prober.Calls())
}

func TestNode_ClaimStreamInvalidSubscription(t *testing.T) {
	n := newTestNode(t, fakeInfo{info: clearedInfo()})
	conn := dial(t, n, "")

	require.NoError(t, conn.WriteJSON(&message.JSONObject{Message: &message.SubscribeClaims{
		ChainID: auction7.ChainID,
		Account: bidder,
	}}))
	_, ok := readFrame(t, conn).(*message.Error)
	assert.True(t, ok)
	assert.Zero(t, n.hub.Len())
}

func TestNode_ClaimStreamBadQuery(t *testing.T) {
	n := newTestNode(t, fakeInfo{info: clearedInfo()})
	u := "ws" + strings.TrimPrefix(n.server.URL, "http") + "/ws/claims?chainID=100"

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_SharesSessions(t *testing.T) {
	n := newTestNode(t, fakeInfo{})

	s1, release1 := n.hub.Acquire(auction7, bidder)
	s2, release2 := n.hub.Acquire(auction7, bidder)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, n.hub.Len())

	other, releaseOther := n.hub.Acquire(auction.NewIdentifier(7, message.ChainIDFromUint64(1)), bidder)
	assert.NotSame(t, s1, other)
	assert.Equal(t, 2, n.hub.Len())
	releaseOther()

	release1()
	release1()
	assert.Equal(t, 1, n.hub.Len())
	release2()
	assert.Zero(t, n.hub.Len())
}

func TestHub_Refresh(t *testing.T) {
	n := newTestNode(t, fakeInfo{})
	session, release := n.hub.Acquire(auction7, bidder)
	defer release()
	assert.Eventually(t, func() bool { return session.State() == claim.StateNotClaimed }, timeout, 10*time.Millisecond)
	calls := n.prober.Calls()

	// other auction
	n.hub.Refresh(pending.Entry{AuctionID: 8, Account: bidder, ChainID: auction7.ChainID})
	// other chain
	n.hub.Refresh(pending.Entry{AuctionID: 7, Account: bidder, ChainID: message.ChainIDFromUint64(1)})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, n.prober.Calls())

	n.hub.Refresh(pending.Entry{AuctionID: 7, Account: bidder, ChainID: auction7.ChainID})
	assert.Eventually(t, func() bool { return n.prober.Calls() == calls+1 }, timeout, 10*time.Millisecond)
}
