// Package main runs the balance and transfer reconciliation API server.
package main

import (
	"context"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/lncr/reports-helpbot1/internal/adapter"
	"github.com/lncr/reports-helpbot1/internal/api"
	"github.com/lncr/reports-helpbot1/internal/books"
	"github.com/lncr/reports-helpbot1/internal/config"
	"github.com/lncr/reports-helpbot1/internal/httpclient"
	"github.com/lncr/reports-helpbot1/internal/logging"
	"github.com/lncr/reports-helpbot1/internal/retry"
	"github.com/lncr/reports-helpbot1/internal/service"
	"github.com/lncr/reports-helpbot1/internal/storage"
)

// fiatPrefetchSchedule fetches yesterday's closing rates shortly after
// midnight UTC, so report requests rarely hit the rate API on demand.
const fiatPrefetchSchedule = "30 0 * * *"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger := logging.L()

	client := httpclient.New(retry.Transient)

	explorer := adapter.NewEtherscanClient(cfg.Etherscan.BaseURL, cfg.Etherscan.APIKey, cfg.Etherscan.RequestsPerSecond, client)
	archive := adapter.NewDtonClient(cfg.Dton.URL(), client)
	indexer := adapter.NewTonapiClient(cfg.Tonapi.BaseURL, client)
	chain := adapter.NewToncenterClient(cfg.Toncenter.BaseURL, client)
	liteserver := adapter.NewLiteServerClient(cfg.LiteServer.GatewayURL, client)
	chart := adapter.NewCMCClient(cfg.CMC.ProBaseURL, cfg.CMC.ChartBaseURL, cfg.CMC.APIKey, client)
	exchange := adapter.NewOpenExchangeClient(cfg.OpenExchange.BaseURL, cfg.OpenExchange.AppID, client)
	converter := adapter.NewConverterClient(cfg.Converter.BaseURL, client)
	tvl := adapter.NewDefiLlamaClient(cfg.DefiLlama.BaseURL, client)

	cache := newRateCache(cfg)

	tokens, err := books.LoadTokens(cfg.Books.TokenListETH)
	if err != nil {
		logger.WithError(err).Fatal("failed to load token list")
	}
	ethNotes, err := books.LoadNotes(cfg.Books.AddressBookETH)
	if err != nil {
		logger.WithError(err).Fatal("failed to load eth address book")
	}
	tonNotes, err := books.LoadNotes(cfg.Books.AddressBookTON)
	if err != nil {
		logger.WithError(err).Fatal("failed to load ton address book")
	}

	transfers := service.NewTransferService(explorer, archive, indexer, tokens, ethNotes, tonNotes, service.StakingAddresses{
		SttonMaster: cfg.Staking.SttonMaster,
		Pool:        cfg.Staking.PoolAddress,
		Lending:     cfg.Staking.LendingAddress,
	})
	balances := service.NewBalanceService(explorer, chain, indexer, archive, transfers, tokens)
	prices := service.NewPriceService(chart, exchange, converter, cache)
	staking := service.NewStakingService(liteserver, tvl, cfg.Staking.PoolAddress, cfg.DefiLlama.Protocol)
	reports := service.NewReportService(transfers, balances, prices, staking)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	server := api.NewServer(addr, reports, prices, staking)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fiatPrefetchSchedule, func() { warmFiatCache(prices) }); err != nil {
		logger.WithError(err).Fatal("failed to schedule fiat prefetch")
	}
	scheduler.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() { errs <- server.Start() }()

	select {
	case err := <-errs:
		if err != nil {
			logger.WithError(err).Fatal("server failed")
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown did not complete cleanly")
	}
}

// newRateCache connects to Redis, falling back to the in-process cache when
// the backend is unreachable at startup.
func newRateCache(cfg *config.Config) storage.RateCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logging.L().WithError(err).WithField("addr", cfg.Redis.Addr).
			Warn("redis unreachable, using in-memory rate cache")
		return storage.NewMemoryRateCache()
	}
	return storage.NewRedisRateCache(client)
}

func warmFiatCache(prices *service.PriceService) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	if err := prices.WarmFiatCache(ctx, yesterday); err != nil {
		logging.L().WithError(err).Warn("fiat rate prefetch failed")
	}
}
