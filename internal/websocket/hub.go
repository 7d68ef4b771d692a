package websocket

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/claim"
	"github.com/perun-network/auction-claim/internal/pending"
)

type (
	// SessionFactory creates the claim session of an account in an auction.
	SessionFactory func(id auction.Identifier, account common.Address) *claim.Session

	sessionKey struct {
		auction auction.Key
		account common.Address
	}

	hubEntry struct {
		session *claim.Session
		refs    int
	}

	// Hub shares the claim sessions of all connected stream clients. A
	// session lives as long as at least one client is subscribed to it.
	Hub struct {
		newSession SessionFactory
		log        logrus.FieldLogger

		mutex    sync.Mutex
		sessions map[sessionKey]*hubEntry
	}
)

// NewHub creates a new Hub.
func NewHub(newSession SessionFactory, log logrus.FieldLogger) *Hub {
	return &Hub{
		newSession: newSession,
		log:        log.WithField("component", "hub"),
		sessions:   make(map[sessionKey]*hubEntry),
	}
}

// Acquire returns the running session of account in auction id, starting
// one if there is none. The session must be handed back with the returned
// release function.
func (h *Hub) Acquire(id auction.Identifier, account common.Address) (*claim.Session, func()) {
	key := sessionKey{auction: id.Key(), account: account}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	e, ok := h.sessions[key]
	if !ok {
		e = &hubEntry{session: h.newSession(id, account)}
		h.sessions[key] = e
		e.session.Start()
		h.log.Debugf("session %v/%s started", id, account.Hex())
	}
	e.refs++

	var once sync.Once
	return e.session, func() {
		once.Do(func() { h.release(key, e) })
	}
}

func (h *Hub) release(key sessionKey, e *hubEntry) {
	h.mutex.Lock()
	e.refs--
	if e.refs > 0 || h.sessions[key] != e {
		h.mutex.Unlock()
		return
	}
	delete(h.sessions, key)
	h.mutex.Unlock()

	if err := e.session.Close(); err != nil {
		h.log.Errorf("closing session: %v", err)
	}
}

// Refresh probes the claim state of all sessions of the entry's auction and
// account again. It is registered with the pending claim watcher.
func (h *Hub) Refresh(e pending.Entry) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for key, s := range h.sessions {
		if key.auction.AuctionID == e.AuctionID && key.account == e.Account &&
			(e.ChainID.Int == nil || key.auction.Chain == e.ChainID.MapKey()) {
			s.session.Refresh()
		}
	}
}

// Len returns the number of running sessions.
func (h *Hub) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.sessions)
}

// Close closes all sessions.
func (h *Hub) Close() {
	h.mutex.Lock()
	sessions := h.sessions
	h.sessions = make(map[sessionKey]*hubEntry)
	h.mutex.Unlock()

	for _, e := range sessions {
		if err := e.session.Close(); err != nil {
			h.log.Errorf("closing session: %v", err)
		}
	}
}
