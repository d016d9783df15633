package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/storefront-core/internal/cart"
	"github.com/safar/storefront-core/internal/config"
	"github.com/safar/storefront-core/internal/gateway"
	"github.com/safar/storefront-core/internal/logging"
	"github.com/safar/storefront-core/internal/order"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.Init(ctx, cfg, logger)
	if err != nil {
		logger.Error("init storage", "error", err)
		os.Exit(1)
	}
	logger.Info("storage ready", "backend", gw.BackendName(), "fallback", gw.FellBack())

	carts := cart.NewService(gw, logger)
	orders := order.NewService(gw, carts, cfg.Orders, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      NewRouter(NewHandler(gw, carts, orders, logger)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := gw.Close(shutdownCtx); err != nil {
		logger.Error("close storage", "error", err)
	}
	logger.Info("server stopped")
}
