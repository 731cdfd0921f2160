// Entry point; loads config, wires the allocation engine and serves HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetbook/internal/config"
	httptransport "fleetbook/internal/http"
	"fleetbook/internal/infra"
	"fleetbook/internal/logging"
	"fleetbook/internal/modules/allocation"
	"fleetbook/internal/modules/availability"
	"fleetbook/internal/modules/ledger"
	"fleetbook/internal/modules/rules"
)

func main() {
	log := logging.New("main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}
	defer redisClient.Close()

	ruleStore := rules.NewStore(dbPool)
	ruleCache := rules.NewCachedLister(ruleStore, redisClient, cfg.Allocation.RuleCacheTTL)
	resolver := rules.NewResolver(ruleStore, ruleCache)

	availabilityStore := availability.NewStore(dbPool)
	ledgerStore := ledger.NewStore(dbPool)

	allocationSvc := allocation.NewService(
		resolver,
		availabilityStore,
		availabilityStore,
		ledgerStore,
		cfg.Allocation.LedgerTimeout,
	)

	router := httptransport.NewRouter(cfg, allocationSvc, ruleCache)
	server := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
