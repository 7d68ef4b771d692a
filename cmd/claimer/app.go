package main

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/perun-network/auction-claim/internal/api"
	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/claim"
	"github.com/perun-network/auction-claim/internal/ethereum"
	"github.com/perun-network/auction-claim/internal/pending"
	"github.com/perun-network/auction-claim/internal/wallet"
	"github.com/perun-network/auction-claim/internal/websocket"
)

// app holds the collaborators shared by all commands.
type app struct {
	cfg       websocket.Config
	log       logrus.FieldLogger
	clients   *ethereum.ClientCache
	networks  *ethereum.Networks
	orders    *api.Directory
	store     pending.Store
	pool      *pending.Pool
	submitter *claim.Submitter
}

func newApp(ctx context.Context, cfg websocket.Config, log logrus.FieldLogger) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		clients:  ethereum.NewClientCache(),
		networks: ethereum.NewNetworks(),
		orders:   api.NewDirectory(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	var (
		w      *wallet.Wallet
		sender common.Address
	)
	if cfg.ClaimerSK != "" {
		w = wallet.NewWallet()
		acc, err := w.AddHex(cfg.ClaimerSK)
		if err != nil {
			return nil, errors.WithMessage(err, "loading claimer key")
		}
		sender = acc.Address()
		log.Infof("Claiming from %s", sender.Hex())
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	for _, chain := range cfg.Chains {
		client, err := a.clients.Connect(dialCtx, chain.NodeURL, chain.ChainID)
		if err != nil {
			return nil, errors.WithMessagef(err, "connecting to %s", chain.Name)
		}
		network := ethereum.NewNetwork(chain.ChainID, client, chain.EasyAuction, chain.FixedGasPrice())
		if w != nil {
			signer := types.LatestSignerForChainID(chain.ChainID.Int)
			tf := wallet.NewTransactorFactory(w, sender, signer)
			opts, err := tf.NewTransactor(accounts.Account{Address: sender})
			if err != nil {
				return nil, errors.WithMessagef(err, "creating transactor for %s", chain.Name)
			}
			network.SetTransactor(opts)
		}
		a.networks.Add(network)

		orders, err := api.NewClient(chain.APIURL, api.WithTimeout(cfg.RequestTimeout))
		if err != nil {
			return nil, errors.WithMessagef(err, "data service of %s", chain.Name)
		}
		a.orders.Register(chain.ChainID, orders)
		log.Infof("Chain %s (%v): EasyAuction %s", chain.Name, chain.ChainID, chain.EasyAuction.Hex())
	}

	if w != nil {
		a.submitter = claim.NewSubmitter(a.networks, a.networks, a.store,
			claim.SubmitterConfig{GasMarginBps: cfg.GasMarginBps}, log)
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.PostgresDSN == "" {
		a.store = pending.NewMemoryStore(a.cfg.PendingTTL)
		return nil
	}

	pool, err := pending.NewPool(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return err
	}
	a.pool = pool
	store := pending.NewPostgresStore(pool, a.cfg.PendingTTL)
	if err := store.Migrate(ctx); err != nil {
		return errors.WithMessage(err, "migrating pending claim store")
	}
	a.store = store
	return nil
}

// session creates the claim session of account in auction id.
func (a *app) session(id auction.Identifier, account common.Address) *claim.Session {
	return claim.NewSession(id, account, a.orders, a.networks, a.store, a.submitter, a.log)
}

// watcher creates the watcher clearing mined claims from the store.
func (a *app) watcher() *pending.Watcher {
	return pending.NewWatcher(a.store, a.networks.ReceiptSource, a.cfg.ReceiptPollInterval, a.log)
}

func (a *app) Close() {
	a.clients.Close()
	if a.pool != nil {
		a.pool.Close()
	}
}
