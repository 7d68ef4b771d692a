package ethereum

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
)

// GasPriceSuggester suggests gas prices, e.g. *ethclient.Client.
type GasPriceSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasPriceOracle provides the gas price for claim transactions. A configured
// fixed price takes precedence over the node's suggestion.
type GasPriceOracle struct {
	backend GasPriceSuggester
	fixed   *big.Int
}

// NewGasPriceOracle creates an oracle. fixed may be nil.
func NewGasPriceOracle(backend GasPriceSuggester, fixed *big.Int) *GasPriceOracle {
	if fixed != nil && fixed.Sign() <= 0 {
		fixed = nil
	}
	return &GasPriceOracle{backend: backend, fixed: fixed}
}

// GasPrice returns the gas price to use.
func (o *GasPriceOracle) GasPrice(ctx context.Context) (*big.Int, error) {
	if o.fixed != nil {
		return new(big.Int).Set(o.fixed), nil
	}
	if o.backend == nil {
		return nil, errors.New("no gas price source")
	}
	p, err := o.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "suggesting gas price")
	}
	return p, nil
}
