package api

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/perun-network/auction-claim/internal/message"
	"github.com/perun-network/auction-claim/internal/order"
)

// ErrUnknownNetwork is returned for networks without a configured data service.
var ErrUnknownNetwork = errors.New("no data service configured for network")

// Directory routes data service requests to the client of the requested
// network.
type Directory struct {
	mtx     sync.RWMutex
	clients map[message.ChainKey]*Client
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{clients: make(map[message.ChainKey]*Client)}
}

// Register adds the data service client of a network, replacing any
// previous one.
func (d *Directory) Register(chainID message.ChainID, c *Client) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.clients[chainID.MapKey()] = c
}

// Client returns the data service client of a network.
func (d *Directory) Client(chainID message.ChainID) (*Client, bool) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	c, ok := d.clients[chainID.MapKey()]
	return c, ok
}

// GetUserOrders returns all encoded orders account placed in the auction on
// the given network.
func (d *Directory) GetUserOrders(ctx context.Context, chainID message.ChainID, auctionID uint64, account common.Address) ([]order.Encoded, error) {
	c, ok := d.Client(chainID)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNetwork, "chain %v", chainID)
	}
	return c.GetUserOrders(ctx, auctionID, account)
}
