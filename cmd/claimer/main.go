// Command claimer tracks and submits claims of batch auction proceeds.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/perun-network/auction-claim/internal/auction"
	"github.com/perun-network/auction-claim/internal/claim"
	"github.com/perun-network/auction-claim/internal/message"
	"github.com/perun-network/auction-claim/internal/pending"
	"github.com/perun-network/auction-claim/internal/websocket"
)

const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagChainID   = "chain-id"
	flagAuctionID = "auction-id"
	flagAccount   = "account"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// env is set up by the root command before any subcommand runs.
type env struct {
	cfg websocket.Config
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	e := new(env)
	rootCmd := &cobra.Command{
		Use:          "claimer",
		Short:        "Claim proceeds of settled batch auctions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().String(flagConfig, "config.yaml", "config file")
	rootCmd.PersistentFlags().String(flagLogLevel, "", "log level (overrides the config file)")
	_ = viper.BindPFlag("logLevel", rootCmd.PersistentFlags().Lookup(flagLogLevel))

	rootCmd.AddCommand(
		serveCmd(e),
		proceedsCmd(e),
		statusCmd(e),
		claimCmd(e),
	)
	return rootCmd
}

func (e *env) setup(cmd *cobra.Command) error {
	file, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return err
	}
	if e.cfg, err = websocket.ParseConfig(file); err != nil {
		return err
	}
	e.log, err = websocket.NewLogger(e.cfg.LogLevel)
	return err
}

func serveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the claim node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return doServe(ctx, e)
		},
	}
}

func doServe(ctx context.Context, e *env) error {
	a, err := newApp(ctx, e.cfg, e.log)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := websocket.NewHub(a.session, e.log)
	defer hub.Close()

	watcher := a.watcher()
	watcher.OnConfirmed(func(entry pending.Entry, r *ethtypes.Receipt) {
		e.log.Infof("claim %s of auction %d mined in block %v", entry.TxHash.Hex(), entry.AuctionID, r.BlockNumber)
		hub.Refresh(entry)
	})
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Errorf("pending claim watcher: %v", err)
		}
	}()

	return websocket.NewNode(e.cfg, hub, a.networks, e.log).Run(ctx)
}

func proceedsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proceeds",
		Short: "print the claimable amounts of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, e, func(ctx context.Context, a *app, s *claim.Session) error {
				resp, err := websocket.Proceeds(ctx, s, a.networks)
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
	addSessionFlags(cmd.Flags())
	return cmd
}

func statusCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "print the claim state of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, e, func(ctx context.Context, _ *app, s *claim.Session) error {
				if err := s.Sync(ctx); err != nil {
					return err
				}
				return printJSON(&message.ClaimStatusUpdate{
					ChainID:   s.Auction().ChainID,
					AuctionID: s.Auction().AuctionID,
					Account:   s.Account(),
					State:     s.State().String(),
				})
			})
		},
	}
	addSessionFlags(cmd.Flags())
	return cmd
}

func claimCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "claim all orders of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.cfg.ClaimerSK == "" {
				return errors.New("claimerSK not configured")
			}
			return withSession(cmd, e, func(ctx context.Context, _ *app, s *claim.Session) error {
				if err := s.Sync(ctx); err != nil {
					return err
				}
				hash, err := s.Claim(ctx)
				if hash != (common.Hash{}) {
					e.log.Infof("claim transaction %s", hash.Hex())
				}
				return err
			})
		},
	}
	addSessionFlags(cmd.Flags())
	return cmd
}

func addSessionFlags(flags *pflag.FlagSet) {
	flags.Uint64(flagChainID, 0, "chain ID of the auction")
	flags.Uint64(flagAuctionID, 0, "auction ID")
	flags.String(flagAccount, "", "bidder account")
}

func sessionFromFlags(flags *pflag.FlagSet) (auction.Identifier, common.Address, error) {
	chainID, err := flags.GetUint64(flagChainID)
	if err != nil {
		return auction.Identifier{}, common.Address{}, err
	}
	auctionID, err := flags.GetUint64(flagAuctionID)
	if err != nil {
		return auction.Identifier{}, common.Address{}, err
	}
	account, err := flags.GetString(flagAccount)
	if err != nil {
		return auction.Identifier{}, common.Address{}, err
	}
	if chainID == 0 || auctionID == 0 {
		return auction.Identifier{}, common.Address{}, errors.Errorf("--%s and --%s are required", flagChainID, flagAuctionID)
	}
	if !common.IsHexAddress(account) {
		return auction.Identifier{}, common.Address{}, errors.Errorf("invalid account %q", account)
	}
	return auction.NewIdentifier(auctionID, message.ChainIDFromUint64(chainID)), common.HexToAddress(account), nil
}

func withSession(cmd *cobra.Command, e *env, fn func(context.Context, *app, *claim.Session) error) error {
	id, account, err := sessionFromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), e.cfg.RequestTimeout)
	defer cancel()

	a, err := newApp(ctx, e.cfg, e.log)
	if err != nil {
		return err
	}
	defer a.Close()

	s := a.session(id, account)
	defer s.Close()
	return fn(ctx, a, s)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
