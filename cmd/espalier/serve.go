package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/presentation/tui"
	httpadapter "github.com/aretw0/espalier/pkg/adapters/http"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/observability"
	"github.com/aretw0/espalier/pkg/persistence/middleware"
	"github.com/aretw0/espalier/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session HTTP server",
	Long:  `Starts the espalier server, exposing the session API over HTTP with Prometheus metrics on /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}
		if term.IsTerminal(int(os.Stdout.Fd())) {
			tui.PrintBanner(espalier.Version)
		}
		logger := newLogger(cfg)

		store, closeStore, err := newStore(cfg)
		if err != nil {
			fmt.Printf("Error building store: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = closeStore() }()

		registry := prometheus.NewRegistry()
		storeMetrics := middleware.NewStoreMetrics()
		sessionMetrics := observability.NewMetrics()
		if err := storeMetrics.Register(registry); err != nil {
			fmt.Printf("Error registering store metrics: %v\n", err)
			os.Exit(1)
		}
		if err := sessionMetrics.Register(registry); err != nil {
			fmt.Printf("Error registering session metrics: %v\n", err)
			os.Exit(1)
		}

		store = middleware.Chain(store,
			middleware.NewLoggingMiddleware(logger),
			middleware.NewInstrumentMiddleware(storeMetrics),
		)

		hub := session.NewHub(store, domain.DefaultGraph(),
			session.WithHubLogger(logger),
			session.WithSessionOptions(session.WithHooks(sessionMetrics.Hooks())),
		)
		defer hub.Close()

		api, err := httpadapter.NewServer(hub, httpadapter.WithServerLogger(logger))
		if err != nil {
			fmt.Printf("Error building HTTP server: %v\n", err)
			os.Exit(1)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/", api.Handler())

		srv := &http.Server{
			Addr:    cfg.Listen,
			Handler: mux,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("starting espalier server", "addr", srv.Addr, "store", cfg.Store)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("shutdown signal received", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("error killing server", "err", err)
				}
			}
			logger.Info("espalier server stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address, overrides the config file")
}
