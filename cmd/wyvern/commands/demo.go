package commands

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	wyvern "github.com/kaifufi/wyvern-exchange-go"
	"github.com/kaifufi/wyvern-exchange-go/assets"
	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/events"
	"github.com/kaifufi/wyvern-exchange-go/host"
	"github.com/kaifufi/wyvern-exchange-go/statics"
	"github.com/kaifufi/wyvern-exchange-go/telemetry"
)

var (
	demoUnits  int64
	demoLinger time.Duration
)

func init() {
	DemoCmd.Flags().Int64Var(&demoUnits, "units", 1, "units of token A bought per match")
	DemoCmd.Flags().DurationVar(&demoLinger, "linger", 0, "keep the event feed open this long after the last match")
}

// DemoCmd deploys an exchange on the configured state backend and settles an
// ERC20 trade between two fresh accounts until the sell order is exhausted.
var DemoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Deploy an exchange and match two ERC20 orders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.Context(), cmd)
	},
}

func runDemo(ctx context.Context, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Setup(ctx, "wyvern-demo", config.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	backend, err := wyvern.OpenState(ctx, config)
	if err != nil {
		return err
	}
	defer backend.Close()

	sink, closeSink, err := wyvern.OpenEventSink(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeSink() }()

	if config.FeedAddr != "" {
		feed := events.NewFeed(logger)
		stop := serve(config.FeedAddr, newMux(feed))
		defer stop()
		defer feed.Close()
		sink = events.Multi{sink, feed}
	}

	h := host.New(backend, host.WithLogger(logger))
	admin := common.HexToAddress("0x00000000000000000000000000000000000ad317")
	d, err := wyvern.Deploy(ctx, h, admin, wyvern.DeployOptions{
		ChainID:             config.ChainID.Big(),
		AuthenticationDelay: config.AuthenticationDelay,
		Exchange: []wyvern.ExchangeOption{
			wyvern.WithEventSink(sink),
			wyvern.WithLogger(logger),
			wyvern.WithMetrics(wyvern.PrometheusMetrics(config.MetricsNamespace)),
		},
	})
	if err != nil {
		return err
	}

	seller, err := demoClient(ctx, d)
	if err != nil {
		return err
	}
	buyer, err := demoClient(ctx, d)
	if err != nil {
		return err
	}

	tokenA, err := assets.DeployERC20(h, admin)
	if err != nil {
		return err
	}
	tokenB, err := assets.DeployERC20(h, admin)
	if err != nil {
		return err
	}
	const price, supply = 10000, 5
	if err := mint(ctx, h, admin, tokenA.Address(), seller.Address(), big.NewInt(supply)); err != nil {
		return err
	}
	if err := mint(ctx, h, admin, tokenB.Address(), buyer.Address(), big.NewInt(supply*price)); err != nil {
		return err
	}
	if err := seller.ApproveERC20(ctx, tokenA.Address(), big.NewInt(supply)); err != nil {
		return err
	}
	if err := buyer.ApproveERC20(ctx, tokenB.Address(), big.NewInt(supply*price)); err != nil {
		return err
	}

	sellData, err := statics.EncodePair(tokenA.Address(), tokenB.Address(), big.NewInt(price), big.NewInt(1))
	if err != nil {
		return err
	}
	sell, err := seller.PlaceOrder(&chain.OrderData{
		StaticSignature: statics.SigAnyERC20ForERC20,
		StaticExtradata: sellData,
		MaximumFill:     big.NewInt(supply),
	})
	if err != nil {
		return err
	}
	buyData, err := statics.EncodePair(tokenB.Address(), tokenA.Address(), big.NewInt(1), big.NewInt(price))
	if err != nil {
		return err
	}
	buy, err := buyer.PlaceOrder(&chain.OrderData{
		StaticSignature: statics.SigAnyERC20ForERC20,
		StaticExtradata: buyData,
		MaximumFill:     big.NewInt(supply * price),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for round := 1; ; round++ {
		give, err := chain.ERC20TransferFrom(seller.Address(), buyer.Address(), big.NewInt(demoUnits))
		if err != nil {
			return err
		}
		get, err := chain.ERC20TransferFrom(buyer.Address(), seller.Address(), big.NewInt(demoUnits*price))
		if err != nil {
			return err
		}
		res, err := buyer.Match(ctx, &wyvern.MatchRequest{
			First:  wyvern.MatchSide{Order: sell.Order, Signature: sell.Signature, Call: chain.Call{Target: tokenA.Address(), Data: give}},
			Second: wyvern.MatchSide{Order: buy.Order, Signature: buy.Signature, Call: chain.Call{Target: tokenB.Address(), Data: get}},
		})
		if err != nil {
			fmt.Fprintf(out, "round %d: %s\n", round, wyvern.MatchReason(err))
			break
		}
		fmt.Fprintf(out, "round %d: sell filled %s/%d, buy filled %s/%d\n",
			round, res.FirstTotal, supply, res.SecondTotal, supply*price)
	}

	logger.WithFields(logrus.Fields{
		"exchange": d.Exchange.Address().Hex(),
		"seller":   seller.Address().Hex(),
		"buyer":    buyer.Address().Hex(),
	}).Info("demo finished")

	if demoLinger > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(demoLinger):
		}
	}
	return nil
}

// newMux routes the event feed to /events and prometheus metrics to /metrics
func newMux(feed *events.Feed) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/events", feed)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// serve listens on addr until the returned stop is called
func serve(addr string, handler http.Handler) (stop func()) {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server stopped")
		}
	}()
	logger.WithField("addr", addr).Info("serving event feed and metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
