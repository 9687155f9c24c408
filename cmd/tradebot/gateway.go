package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/config"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/gateway"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/metrics"
)

const defaultGatewayAddr = ":8080"

// runGateway serves the WebSocket hub in its own process, fed from the
// Redis channels a backtest or live process publishes to. Blocks until ctx
// is cancelled.
func runGateway(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.RedisAddr == "" {
		return errors.New("storage.redis_addr is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return err
	}
	log.Printf("[tradebot] gateway connected to redis at %s", cfg.Storage.RedisAddr)

	health := metrics.NewHealthStatus()
	health.Expect(false, true, false)
	health.SetRedisConnected(true)
	health.StartLivenessChecker(ctx, rdb, nil, 10*time.Second)
	if cfg.Server.MetricsAddr != "" {
		ms := metrics.NewServer(cfg.Server.MetricsAddr, health)
		ms.Start()
		defer ms.Stop(context.Background())
	}

	hub := gateway.NewHub()
	go gateway.NewPubSubRouter(hub).Run(ctx, rdb)
	go hub.StartMetricsBroadcast(ctx, time.Now(), 2*time.Second)

	addr := cfg.Server.APIAddr
	if addr == "" {
		addr = defaultGatewayAddr
	}
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[tradebot] gateway listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("[tradebot] gateway stopped")
	return nil
}
