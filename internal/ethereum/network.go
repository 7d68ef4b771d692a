package ethereum

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/claim"
	"github.com/perun-network/auction-claim/internal/message"
	"github.com/perun-network/auction-claim/internal/order"
	"github.com/perun-network/auction-claim/internal/pending"
)

// ErrUnknownChain is returned for chains without a configured network.
var ErrUnknownChain = errors.New("unknown chain")

// NodeURL is the URL of an Ethereum node.
type NodeURL = string

// ClientCache shares one ethclient.Client per node URL.
type ClientCache struct {
	mtx     sync.Mutex
	clients map[NodeURL]*ethclient.Client
}

// NewClientCache creates an empty cache.
func NewClientCache() *ClientCache {
	return &ClientCache{clients: make(map[NodeURL]*ethclient.Client)}
}

// Connect returns an Ethereum client for the given nodeURL.
// It first tries to get an already existent Ethereum client, if there exists no
// client for this nodeURL yet, we create a new one. The node must serve the
// expected chain.
func (c *ClientCache) Connect(ctx context.Context, nodeURL NodeURL, chainID message.ChainID) (*ethclient.Client, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	client, ok := c.clients[nodeURL]
	if !ok {
		var err error
		client, err = ethclient.DialContext(ctx, nodeURL)
		if err != nil {
			return nil, errors.Wrapf(err, "dialing %s", nodeURL)
		}
		c.clients[nodeURL] = client
	}

	if chainID.Int == nil {
		return client, nil
	}
	remote, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying chain id")
	}
	if remote.Cmp(chainID.Int) != 0 {
		return nil, errors.Errorf("node %s serves chain %v, expected %v", nodeURL, remote, chainID)
	}
	return client, nil
}

// Close closes all cached clients.
func (c *ClientCache) Close() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for url, client := range c.clients {
		client.Close()
		delete(c.clients, url)
	}
}

// Network bundles the ledger collaborators of one chain.
type Network struct {
	ChainID  message.ChainID
	Backend  Backend
	Auction  *EasyAuction
	GasPrice *GasPriceOracle
}

// NewNetwork binds the EasyAuction deployment at easyAuction on backend.
// fixedGasPrice may be nil to use the node's suggestion.
func NewNetwork(chainID message.ChainID, backend Backend, easyAuction common.Address, fixedGasPrice *big.Int) *Network {
	return &Network{
		ChainID:  chainID,
		Backend:  backend,
		Auction:  NewEasyAuction(backend, easyAuction),
		GasPrice: NewGasPriceOracle(backend, fixedGasPrice),
	}
}

// SetTransactor makes the network's binding sign claims with opts.
func (n *Network) SetTransactor(opts *bind.TransactOpts) {
	n.Auction = n.Auction.WithTransactor(opts)
}

// Networks is a set of networks indexed by chain.
type Networks struct {
	mtx sync.RWMutex
	m   map[message.ChainKey]*Network
}

// NewNetworks creates an empty set.
func NewNetworks() *Networks {
	return &Networks{m: make(map[message.ChainKey]*Network)}
}

// Add adds a network, replacing any network with the same chain id.
func (n *Networks) Add(net *Network) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.m[net.ChainID.MapKey()] = net
}

// Get returns the network of the chain.
func (n *Networks) Get(chainID message.ChainID) (*Network, bool) {
	return n.byKey(chainID.MapKey())
}

// ReceiptSource returns the backend of the chain as receipt source for the
// pending claim watcher.
func (n *Networks) ReceiptSource(chain message.ChainKey) (pending.ReceiptSource, bool) {
	net, ok := n.byKey(chain)
	if !ok {
		return nil, false
	}
	return net.Backend, true
}

// ContainsOrder probes the order on the auction's chain.
func (n *Networks) ContainsOrder(ctx context.Context, id auction.Identifier, o order.Encoded) (bool, error) {
	net, err := n.network(id.ChainID)
	if err != nil {
		return false, err
	}
	return net.Auction.ContainsOrder(ctx, id.AuctionID, o)
}

// EstimateClaimGas estimates a claim on the auction's chain.
func (n *Networks) EstimateClaimGas(ctx context.Context, id auction.Identifier, from common.Address, orders []order.Encoded) (uint64, error) {
	net, err := n.network(id.ChainID)
	if err != nil {
		return 0, err
	}
	return net.Auction.EstimateClaimGas(ctx, from, id.AuctionID, orders)
}

// SubmitClaim submits a claim on the auction's chain.
func (n *Networks) SubmitClaim(ctx context.Context, id auction.Identifier, orders []order.Encoded, gas claim.GasParams) (common.Hash, error) {
	net, err := n.network(id.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	return net.Auction.SubmitClaim(ctx, id.AuctionID, orders, gas)
}

// GasPrice returns the gas price of the chain.
func (n *Networks) GasPrice(ctx context.Context, chainID message.ChainID) (*big.Int, error) {
	net, err := n.network(chainID)
	if err != nil {
		return nil, err
	}
	return net.GasPrice.GasPrice(ctx)
}

// DerivedInfo reads the clearing information of the auction from its chain.
func (n *Networks) DerivedInfo(ctx context.Context, id auction.Identifier) (*auction.DerivedInfo, error) {
	net, err := n.network(id.ChainID)
	if err != nil {
		return nil, err
	}
	return net.Auction.DerivedInfo(ctx, id.AuctionID)
}

func (n *Networks) network(chainID message.ChainID) (*Network, error) {
	net, ok := n.Get(chainID)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownChain, "chain %v", chainID)
	}
	return net, nil
}

func (n *Networks) byKey(k message.ChainKey) (*Network, bool) {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	net, ok := n.m[k]
	return net, ok
}
