package websocket

import (
	"math/big"
	"reflect"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/perun-network/auction-claim/internal/claim"
	"github.com/perun-network/auction-claim/internal/message"
	"github.com/perun-network/auction-claim/internal/pending"
)

// Defaults of optional config values.
const (
	DefaultWSAddress      = ":8080"
	DefaultLogLevel       = "info"
	DefaultRequestTimeout = 30 * time.Second
)

type (
	// Config represents the parsed config file.
	Config struct {
		WSAddress      string
		TLSCertificate string
		TLSPrivKey     string
		LogLevel       string
		// ClaimerSK is the hex encoded secret key signing claims. Read-only
		// nodes leave it empty.
		ClaimerSK           string
		GasMarginBps        uint64
		PendingTTL          time.Duration
		ReceiptPollInterval time.Duration
		// PostgresDSN selects the Postgres pending claim store. The in-memory
		// store is used if it is empty.
		PostgresDSN    string
		RequestTimeout time.Duration
		Chains         []ChainConfig
	}

	// ChainConfig represents the configuration of an EVM chain hosting an
	// EasyAuction deployment.
	ChainConfig struct {
		Name        string          `json:"name"`
		ChainID     message.ChainID `json:"chainID"`
		NodeURL     string          `json:"nodeURL"`
		APIURL      string          `json:"apiURL"`
		EasyAuction common.Address  `json:"easyAuction"`
		// GasPrice in wei overrides the node's suggestion if positive.
		GasPrice uint64 `json:"gasPrice,omitempty"`
	}
)

// ParseConfig reads the config file.
func ParseConfig(file string) (Config, error) {
	return LoadConfig(viper.GetViper(), file)
}

// LoadConfig reads the config file into v and decodes it. Values already
// bound to v, e.g. command line flags, take precedence over the file.
func LoadConfig(v *viper.Viper, file string) (Config, error) {
	var cfg Config

	v.SetDefault("wsAddress", DefaultWSAddress)
	v.SetDefault("logLevel", DefaultLogLevel)
	v.SetDefault("gasMarginBps", claim.DefaultGasMarginBps)
	v.SetDefault("pendingTTL", pending.DefaultTTL)
	v.SetDefault("receiptPollInterval", pending.DefaultPollInterval)
	v.SetDefault("requestTimeout", DefaultRequestTimeout)

	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return cfg, errors.Wrap(err, "reading config")
	}

	opts := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		parseConfigTypes(),
	))
	if err := v.Unmarshal(&cfg, opts); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Chains) == 0 {
		return errors.New("no chains configured")
	}

	// Is used for checking for duplicate chain IDs.
	chainIDs := make(map[message.ChainKey]bool)
	for _, chain := range c.Chains {
		if chain.ChainID.Int == nil || chain.ChainID.Sign() <= 0 {
			return errors.Errorf("chain %q: missing chain ID", chain.Name)
		}
		if _, ok := chainIDs[chain.ChainID.MapKey()]; ok {
			return errors.Errorf("duplicate chain ID %v", chain.ChainID)
		}
		chainIDs[chain.ChainID.MapKey()] = true

		if chain.NodeURL == "" {
			return errors.Errorf("chain %q: missing node URL", chain.Name)
		}
		if chain.APIURL == "" {
			return errors.Errorf("chain %q: missing API URL", chain.Name)
		}
		if chain.EasyAuction == (common.Address{}) {
			return errors.Errorf("chain %q: missing EasyAuction address", chain.Name)
		}
	}
	return nil
}

// ChainMap returns the chains as a map where the chain's ID is the key.
func (c Config) ChainMap() map[message.ChainKey]ChainConfig {
	chains := make(map[message.ChainKey]ChainConfig, len(c.Chains))
	for _, chain := range c.Chains {
		chains[chain.ChainID.MapKey()] = chain
	}
	return chains
}

// FixedGasPrice returns the configured gas price or nil.
func (c ChainConfig) FixedGasPrice() *big.Int {
	if c.GasPrice == 0 {
		return nil
	}
	return new(big.Int).SetUint64(c.GasPrice)
}

// parseConfigTypes is used by viper to parse the custom types out of the config file.
func parseConfigTypes() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		switch to {
		case reflect.TypeOf(common.Address{}):
			addr, ok := data.(string)
			if !ok {
				return nil, errors.New("expected a string for an address")
			}
			if len(addr) != 42 {
				return nil, errors.New("ethereum address must be 42 characters long")
			}
			if !common.IsHexAddress(addr) {
				return nil, errors.New("invalid ethereum address")
			}
			return common.HexToAddress(addr), nil
		case message.ReflectChainIDType:
			switch d := data.(type) {
			case int:
				return message.MakeChainID(big.NewInt(int64(d))), nil
			case int64:
				return message.MakeChainID(big.NewInt(d)), nil
			case float64:
				return message.MakeChainID(big.NewInt(int64(d))), nil
			case string:
				return message.ParseChainID(d)
			default:
				return nil, errors.New("unsupported type for chain ID")
			}
		default:
			return data, nil
		}
	}
}
