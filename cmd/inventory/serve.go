package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Inventory/internal/broadcast"
	"Inventory/internal/inventory"
	"Inventory/pkg/kit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and websocket broadcaster",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	store, closeStore, err := openStore(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Error("open store failed", zap.Error(err))
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := inventory.NewService(store, nil, log)

	hub := broadcast.NewHub(broadcast.HubDeps{
		Log:           log,
		Source:        svc,
		AllowedOrigin: cfg.ClientOrigin,
		Registry:      reg,
	})

	publishers := broadcast.Fanout{hub}
	if cfg.AMQPURL != "" {
		mq, err := broadcast.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.Error("amqp unavailable", zap.Error(err))
			return err
		}
		defer func() { _ = mq.Close() }()
		publishers = append(publishers, mq)
		log.Info("mirroring broadcasts to amqp", zap.String("exchange", cfg.AMQPExchange))
	}
	svc.Publisher = publishers

	s := &inventory.Server{Service: svc, Log: log}
	if cfg.WriteRateLimit > 0 {
		s.WriteLimiter = kit.NewIPRateLimiter(cfg.WriteRateLimit, time.Minute)
	}

	h := inventory.NewHandler(s, inventory.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.MetricsToken != "",
		MetricsToken:   cfg.MetricsToken,
		AllowedOrigin:  cfg.ClientOrigin,
		Subscribe:      hub,
		PublicDir:      cfg.PublicDir,
	})

	err = kit.RunHTTPServer(cfg.Addr(), h, log, kit.ServerOptions{
		ShutdownTimeout: cfg.ShutdownTimeout,
		OnShutdown:      []func(){hub.Close},
	})
	if err != nil {
		log.Error("http server stopped", zap.Error(err))
		return err
	}
	log.Info("http server stopped")
	return nil
}
