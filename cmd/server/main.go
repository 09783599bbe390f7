package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/config"
	"github.com/garyjia/approval-flow/internal/container"
	"github.com/garyjia/approval-flow/internal/infrastructure/metrics"
	httpapi "github.com/garyjia/approval-flow/internal/interfaces/http"
	"github.com/garyjia/approval-flow/internal/interfaces/websocket"
	"github.com/garyjia/approval-flow/pkg/utils"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting approval service",
		zap.String("version", version),
		zap.String("database", cfg.Database.Driver),
		zap.Int("port", cfg.Server.Port))

	if err := run(cfg, logger); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger, container.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	if cfg.Lark.Enabled && cfg.Lark.Commands {
		adapter := websocket.NewLarkAdapter(websocket.LarkAdapterConfig{
			AppID:         cfg.Lark.AppID,
			AppSecret:     cfg.Lark.AppSecret,
			ReceiveIDType: cfg.Lark.ReceiveIDType,
		}, c.WorkflowEngine(), c.MessageSender(), logger)

		go func() {
			if err := adapter.Start(ctx); err != nil {
				logger.Error("Lark command listener stopped", zap.Error(err))
			}
		}()
		defer adapter.Stop()
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, httpapi.Dependencies{
		Engine:    c.WorkflowEngine(),
		Requests:  c.Services().Requests,
		Templates: c.Services().Templates,
		Reports:   c.Report(),
		Auth:      httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Health: func() (bool, interface{}) {
			status := c.Health()
			return status.Overall, status.Components
		},
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Version:        version,
	}, utils.NewKVLogger(logger))

	// Start blocks until the signal context is cancelled, then shuts the server down
	return server.Start(ctx)
}
