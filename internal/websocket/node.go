// Package websocket implements the claim node: an HTTP endpoint computing
// the proceeds of a bidder and a websocket stream of claim state changes.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/claim"
	"github.com/perun-network/auction-claim/internal/message"
)

const shutdownTimeout = 5 * time.Second

// InfoSource reads the clearing information of auctions from the ledger.
type InfoSource interface {
	DerivedInfo(ctx context.Context, id auction.Identifier) (*auction.DerivedInfo, error)
}

// Node serves the proceeds endpoint and the claim state stream.
type Node struct {
	cfg  Config
	hub  *Hub
	info InfoSource
	log  logrus.FieldLogger
}

// NewLogger creates the node's logger writing to stdout.
func NewLogger(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "parsing log level")
	}
	logger.SetLevel(lvl)
	return logger, nil
}

// NewNode creates a node.
func NewNode(cfg Config, hub *Hub, info InfoSource, log logrus.FieldLogger) *Node {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Node{cfg: cfg, hub: hub, info: info, log: log.WithField("component", "node")}
}

// Handler returns the node's HTTP handler.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/proceeds", n.serveProceeds)
	mux.HandleFunc("/ws/claims", n.serveClaimStream)
	return mux
}

// Run runs the node until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              n.cfg.WSAddress,
		Handler:           n.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if n.cfg.TLSCertificate != "" && n.cfg.TLSPrivKey != "" {
			errc <- srv.ListenAndServeTLS(n.cfg.TLSCertificate, n.cfg.TLSPrivKey)
		} else {
			errc <- srv.ListenAndServe()
		}
	}()
	n.log.Infof("Websocket running on %s", n.cfg.WSAddress)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (n *Node) serveProceeds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	sub, err := parseSubscription(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := auction.NewIdentifier(sub.AuctionID, sub.ChainID)

	ctx, cancel := context.WithTimeout(r.Context(), n.cfg.RequestTimeout)
	defer cancel()

	session, release := n.hub.Acquire(id, sub.Account)
	defer release()

	resp, err := Proceeds(ctx, session, n.info)
	if err != nil {
		n.log.WithField("auction", id.String()).Warnf("proceeds of %s: %v", sub.Account.Hex(), err)
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Proceeds synchronizes session and computes the claimable amounts of its
// account from the clearing information read from info.
func Proceeds(ctx context.Context, session *claim.Session, info InfoSource) (*message.ProceedsResponse, error) {
	if err := session.Sync(ctx); err != nil {
		return nil, err
	}
	derived, err := info.DerivedInfo(ctx, session.Auction())
	if err != nil {
		return nil, errors.WithMessage(err, "reading auction data")
	}
	p, err := session.Proceeds(derived)
	if err != nil {
		return nil, err
	}

	id := session.Auction()
	resp := &message.ProceedsResponse{
		ChainID:   id.ChainID,
		AuctionID: id.AuctionID,
		Account:   session.Account(),
		Orders:    len(session.Orders().Orders),
		State:     session.State().String(),
	}
	if p.Defined() {
		resp.ClaimableAuctioningToken = p.ClaimableAuctioningToken.Message()
		resp.ClaimableBiddingToken = p.ClaimableBiddingToken.Message()
	}
	return resp, nil
}

func errorStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// parseSubscription reads the chainID, auctionID and account query
// parameters.
func parseSubscription(r *http.Request) (*message.SubscribeClaims, error) {
	q := r.URL.Query()

	chainID, err := message.ParseChainID(q.Get("chainID"))
	if err != nil {
		return nil, err
	}
	auctionID, err := strconv.ParseUint(q.Get("auctionID"), 10, 64)
	if err != nil || auctionID == 0 {
		return nil, errors.Errorf("invalid auction ID %q", q.Get("auctionID"))
	}
	account := q.Get("account")
	if !common.IsHexAddress(account) {
		return nil, errors.Errorf("invalid account %q", account)
	}
	return &message.SubscribeClaims{
		ChainID:   chainID,
		AuctionID: auctionID,
		Account:   common.HexToAddress(account),
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, message.NewError(err))
}
