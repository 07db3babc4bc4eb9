/*
Package main is the entry point for the ConnectMatch chat server.

It loads configuration, initializes logging, connects to the shared broker,
wires the chat core (history, presence, hub, relay, matchmaker, sweep),
starts the HTTP server, and handles graceful shutdown on SIGINT/SIGTERM.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectmatch/internal/app/chat"
	"connectmatch/internal/configs"
	"connectmatch/internal/handler"
	"connectmatch/internal/pkg/logx"
	"connectmatch/internal/store"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("redis_addr", cfg.RedisAddr).
		Int("history_limit", cfg.HistoryLimit).
		Dur("sweep_interval", cfg.SweepInterval).
		Strs("match_categories", cfg.MatchCategories).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The broker is the only memory shared across fleet members. Without
	// one, fall back to the in-process store: single node only.
	var (
		st  store.Store
		bus store.Bus
	)
	if cfg.RedisAddr == "" {
		mem := store.NewMemory()
		st, bus = mem, mem
		logx.Warn("REDIS_ADDR not set. Using in-process store; state is neither shared nor durable.")
	} else {
		rds := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
		if err := rds.Ping(pingCtx); err != nil {
			cancelPing()
			logx.Fatal(err, "Broker unreachable")
		}
		cancelPing()

		defer rds.Close()
		st, bus = rds, rds
	}

	history := chat.NewHistoryStore(st, cfg.HistoryLimit)
	presence := chat.NewPresence(st)
	hub := chat.NewHub()
	relay := chat.NewRelay(bus, history, hub)
	policy := chat.KnownCategoriesPolicy(cfg.MatchCategories, chat.SharedRoomPolicy)
	matchmaker := chat.NewMatchmaker(bus, hub, cfg.MatchCategories, policy)

	if err := relay.Start(context.Background()); err != nil {
		logx.Fatal(err, "Starting relay subscriptions failed")
	}
	defer relay.Stop()

	if err := matchmaker.Start(context.Background()); err != nil {
		logx.Fatal(err, "Starting matchmaker subscriptions failed")
	}
	defer matchmaker.Stop()

	sweep := chat.NewSweep(presence, hub, cfg.SweepInterval)
	sweep.Start()
	defer sweep.Stop()

	deps := &handler.AppDeps{
		Config: cfg,
		Chat: &chat.Deps{
			Hub:        hub,
			Presence:   presence,
			History:    history,
			Relay:      relay,
			Matchmaker: matchmaker,
		},
	}

	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("ConnectMatch server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
}
