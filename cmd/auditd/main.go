// Command auditd runs a small account service whose state-changing
// operations are captured as audit events and fanned out to the configured
// sinks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/godamri/helix-audit/app"
	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/config"
	"github.com/godamri/helix-audit/log"
	"github.com/godamri/helix-audit/server"
	"github.com/godamri/helix-audit/server/health"
	"github.com/godamri/helix-audit/server/middleware"
	"github.com/godamri/helix-audit/sink"
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"helix-auditd" yaml:"service_name" toml:"service_name" validate:"required"`

	Log    log.Config    `yaml:"log" toml:"log"`
	Server server.Config `yaml:"server" toml:"server"`
	Audit  audit.Config  `yaml:"audit" toml:"audit"`
}

func main() {
	path := flag.String("config", os.Getenv("AUDITD_CONFIG"), "path to a YAML or TOML config file")
	flag.Parse()

	cfg, err := config.NewLoader[Config]("AUDITD", *path).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "auditd: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Audit.Sinks) == 0 {
		cfg.Audit.Sinks = []audit.SinkConfig{{Name: "stdout", Type: "console"}}
	}

	cfg.Log.Service = cfg.ServiceName
	logger := log.New(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("auditd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *Config, logger *slog.Logger) error {
	runner := app.NewRunner(logger)
	if cfg.Server.ShutdownTimeout > 0 {
		runner.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}

	return runner.Run(func(ctx context.Context) error {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		auditor, err := sink.NewAuditor(ctx, cfg.Audit, sink.Options{
			Logger:      logger,
			Metrics:     audit.NewMetrics(reg),
			ServiceName: cfg.ServiceName,
		})
		if err != nil {
			return fmt.Errorf("build auditor: %w", err)
		}
		runner.OnShutdown("auditor", func(context.Context) error { return auditor.Close() })

		bank := NewBank(auditor)
		handler := newRouter(cfg, logger, reg, auditor, bank)

		var grpcSrv *grpc.Server
		if cfg.Server.EnableGRPC {
			grpcSrv = newGRPCServer(logger, auditor)
		}

		logger.Info("auditd starting",
			"service", cfg.ServiceName,
			"audit_enabled", auditor != nil,
			"sinks", len(cfg.Audit.Sinks),
		)
		return server.New(cfg.Server, logger, handler, grpcSrv).Start(ctx)
	})
}

func newRouter(cfg *Config, logger *slog.Logger, reg *prometheus.Registry, auditor *audit.Auditor, bank *Bank) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.PanicRecovery(logger))
	r.Use(middleware.OTelMiddleware(cfg.ServiceName, r))
	r.Use(middleware.TraceIDMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.NewHTTPMetrics(reg).Middleware)
	r.Use(identity)
	r.Use(middleware.HTTPAudit(auditor, cfg.Audit.ExcludePaths))

	var sinks health.SinkHealth
	if d := auditor.Dispatcher(); d != nil {
		sinks = d
	}
	health.NewChecker(sinks, logger).RegisterRoutes(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	newBankHandler(bank).routes(r)
	return r
}

func newGRPCServer(logger *slog.Logger, auditor *audit.Auditor) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.GRPCTraceInterceptor(),
		middleware.GRPCRecoveryInterceptor(logger),
		middleware.GRPCAuditInterceptor(auditor),
	))
	grpc_health_v1.RegisterHealthServer(srv, grpchealth.NewServer())
	return srv
}
