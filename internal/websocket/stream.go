package websocket

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/claim"
	"github.com/perun-network/auction-claim/internal/message"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveClaimStream handles /ws/claims?chainID=&auctionID=&account= for
// streaming. Without query parameters, the client has to send a
// SubscribeClaims message first.
func (n *Node) serveClaimStream(w http.ResponseWriter, r *http.Request) {
	var (
		sub *message.SubscribeClaims
		err error
	)
	if r.URL.RawQuery != "" {
		if sub, err = parseSubscription(r); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.log.Errorf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if sub == nil {
		if sub, err = readSubscription(conn); err != nil {
			n.log.Warnf("reading subscription: %v", err)
			_ = writeFrame(conn, message.NewError(err))
			return
		}
	}
	id := auction.NewIdentifier(sub.AuctionID, sub.ChainID)
	log := n.log.WithField("auction", id.String()).WithField("account", sub.Account.Hex())

	session, release := n.hub.Acquire(id, sub.Account)
	defer release()
	states, unsubscribe := session.Subscribe()
	defer unsubscribe()

	// The client only sends control frames from now on.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// Send initial state
	last := session.State()
	if err := writeFrame(conn, statusUpdate(session, last)); err != nil {
		return
	}
	log.Debug("claim stream opened")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case s, ok := <-states:
			if !ok {
				return
			}
			if s == last {
				continue
			}
			last = s
			if err := writeFrame(conn, statusUpdate(session, s)); err != nil {
				log.Debugf("writing claim state: %v", err)
				return
			}
		case <-ticker.C:
			// Send ping to keep connection alive
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			log.Debug("claim stream closed by client")
			return
		}
	}
}

func readSubscription(conn *websocket.Conn) (*message.SubscribeClaims, error) {
	conn.SetReadDeadline(time.Now().Add(writeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var obj message.JSONObject
	if err := conn.ReadJSON(&obj); err != nil {
		return nil, errors.Wrap(err, "reading message")
	}
	sub, ok := obj.Message.(*message.SubscribeClaims)
	if !ok {
		return nil, errors.Errorf("expected subscription message, got %T", obj.Message)
	}
	if sub.ChainID.Int == nil || sub.ChainID.Sign() <= 0 || sub.AuctionID == 0 || sub.Account == (common.Address{}) {
		return nil, errors.New("incomplete subscription")
	}
	return sub, nil
}

func statusUpdate(session *claim.Session, s claim.State) *message.ClaimStatusUpdate {
	id := session.Auction()
	return &message.ClaimStatusUpdate{
		ChainID:   id.ChainID,
		AuctionID: id.AuctionID,
		Account:   session.Account(),
		State:     s.String(),
	}
}

func writeFrame(conn *websocket.Conn, msg message.Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(&message.JSONObject{Message: msg})
}
