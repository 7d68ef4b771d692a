package claim

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/order"
	"github.com/perun-network/auction-claim/internal/pending"
)

const (
	// DefaultGasMarginBps is the default margin added to gas estimates, in
	// basis points.
	DefaultGasMarginBps = 1000

	bpsDenominator = 10_000
)

type (
	// SubmitterConfig configures a Submitter.
	SubmitterConfig struct {
		// GasMarginBps is added to the gas estimate, in basis points.
		GasMarginBps uint64
	}

	// ClaimRequest is a claim of all orders of an account in an auction.
	ClaimRequest struct {
		Auction auction.Identifier
		Account common.Address
		Orders  []order.Encoded
		// GasPrice overrides the gas price source if set.
		GasPrice *big.Int
	}

	// Submitter sends claim transactions and registers them as pending.
	Submitter struct {
		ledger ClaimLedger
		gas    GasPriceSource
		store  pending.Store
		cfg    SubmitterConfig
		log    logrus.FieldLogger
	}
)

// NewSubmitter creates a submitter. store may be nil if claims are not
// tracked.
func NewSubmitter(ledger ClaimLedger, gas GasPriceSource, store pending.Store, cfg SubmitterConfig, log logrus.FieldLogger) *Submitter {
	return &Submitter{
		ledger: ledger,
		gas:    gas,
		store:  store,
		cfg:    cfg,
		log:    log.WithField("component", "submitter"),
	}
}

// Submit claims all orders of the request in a single transaction and
// returns its hash. A *MissingDependencyError is returned before any ledger
// call if the request is incomplete.
//
// If the transaction was sent but could not be registered as pending, its
// hash is returned together with the error.
func (s *Submitter) Submit(ctx context.Context, req ClaimRequest) (common.Hash, error) {
	if err := s.check(req); err != nil {
		return common.Hash{}, err
	}
	for _, o := range req.Orders {
		if _, err := order.Decode(o); err != nil {
			return common.Hash{}, err
		}
		if o.IsQueueSentinel() {
			return common.Hash{}, errors.Errorf("order %s is a queue sentinel", string(o))
		}
	}

	log := s.log.WithFields(logrus.Fields{
		"auction": req.Auction.String(),
		"account": req.Account.Hex(),
	})

	gasPrice := req.GasPrice
	if gasPrice == nil {
		var err error
		if gasPrice, err = s.gas.GasPrice(ctx, req.Auction.ChainID); err != nil || gasPrice == nil {
			log.Warnf("no gas price: %v", err)
			return common.Hash{}, missing("gas price")
		}
	}

	estimate, err := s.ledger.EstimateClaimGas(ctx, req.Auction, req.Account, req.Orders)
	if err != nil {
		return common.Hash{}, errors.WithMessage(err, "estimating claim gas")
	}
	params := GasParams{Price: gasPrice, Limit: GasWithMargin(estimate, s.cfg.GasMarginBps)}

	hash, err := s.ledger.SubmitClaim(ctx, req.Auction, req.Orders, params)
	if err != nil {
		return common.Hash{}, errors.WithMessage(err, "submitting claim")
	}
	log = log.WithField("tx", hash.Hex())
	log.Infof("claim submitted, gas limit %d", params.Limit)

	if s.store == nil {
		return hash, nil
	}
	entry := pending.Entry{
		AuctionID: req.Auction.AuctionID,
		Account:   req.Account,
		ChainID:   req.Auction.ChainID,
		TxHash:    hash,
		Summary:   pending.ClaimSummary(req.Auction.AuctionID),
	}
	if err := s.store.Record(ctx, entry); err != nil {
		log.Errorf("recording pending claim: %v", err)
		return hash, errors.WithMessage(err, "recording pending claim")
	}
	return hash, nil
}

func (s *Submitter) check(req ClaimRequest) error {
	switch {
	case s.ledger == nil:
		return missing("ledger")
	case req.Account == (common.Address{}):
		return missing("account")
	case req.Auction.ChainID.Int == nil || req.Auction.ChainID.Sign() <= 0:
		return missing("network")
	case req.Auction.AuctionID == 0:
		return missing("auction")
	case len(req.Orders) == 0:
		return missing("claimable orders")
	case req.GasPrice == nil && s.gas == nil:
		return missing("gas price")
	}
	return nil
}

// GasWithMargin adds marginBps basis points to a gas estimate.
func GasWithMargin(estimate, marginBps uint64) uint64 {
	limit := new(big.Int).SetUint64(estimate)
	limit.Mul(limit, new(big.Int).SetUint64(bpsDenominator+marginBps))
	limit.Quo(limit, big.NewInt(bpsDenominator))
	if !limit.IsUint64() {
		return ^uint64(0)
	}
	return limit.Uint64()
}
