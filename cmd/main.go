// Command depositledger indexes vault, pool and stable token events into the
// deposit-estimate ledger and prints the protocol summary on exit.
//
// Usage:
//
//	depositledger -config config.yaml
//	depositledger -rpc http://localhost:8545 -pool 0x... -stable 0x... -collection 0x...
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vadiminshakov/depositledger/config"
	"github.com/vadiminshakov/depositledger/internal"
	"github.com/vadiminshakov/depositledger/internal/chain"
	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/internal/engine"
	"github.com/vadiminshakov/depositledger/pkg/fixedpoint"
)

func main() {
	conf, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger); err != nil {
		logger.Fatal("indexer stopped", zap.Error(err))
	}
}

func run(ctx context.Context, conf config.Config, logger *zap.Logger) error {
	logger.Info("starting", zap.Stringer("config", conf))

	store, err := internal.NewStore(conf.Store, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := ethclient.DialContext(ctx, conf.RPCURL)
	if err != nil {
		return errors.Wrap(err, "failed to dial rpc")
	}
	defer client.Close()

	source, err := chain.NewSource(client, conf.Addresses, logger.Named("chain"), chain.WithHeaderWorkers(conf.HeaderWorkers))
	if err != nil {
		return err
	}

	eng := engine.New(store, conf.Addresses, logger.Named("engine"))

	err = internal.NewIndexer(source, eng, conf, logger.Named("indexer")).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// the signal context is done here
	p, err := eng.Protocol(context.Background())
	if err != nil {
		return errors.Wrap(err, "failed to load protocol aggregates")
	}
	printSummary(p)

	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

func printSummary(p *domain.ProtocolAggregates) {
	fmt.Println("total supply:       ", fixedpoint.ToDecimal(&p.TotalSupply, fixedpoint.Decimals).String())
	fmt.Println("total assets:       ", fixedpoint.ToDecimal(&p.TotalAssets, fixedpoint.Decimals).String())
	fmt.Println("holders:            ", p.HolderCount)
	fmt.Println("transactions:       ", p.TransactionCount)
	fmt.Println("deposits:           ", p.DepositCount)
	fmt.Println("withdrawals:        ", p.WithdrawalCount)
	fmt.Println("redeem requests:    ", p.RedeemRequestCount)
	fmt.Println("fulfillments:       ", p.FulfillmentCount)
	fmt.Println("nav:                ", fixedpoint.ToDecimal(&p.CurrentNAV, fixedpoint.Decimals).String())
	fmt.Println("share price:        ", fixedpoint.ToDecimal(&p.ShareToAssetPrice, fixedpoint.Decimals).String())
}
