package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

type Config struct {
	EnableHTTP       bool          `envconfig:"ENABLE_HTTP" default:"true" yaml:"enable_http" toml:"enable_http"`
	EnableGRPC       bool          `envconfig:"ENABLE_GRPC" default:"false" yaml:"enable_grpc" toml:"enable_grpc"`
	HTTPPort         string        `envconfig:"HTTP_PORT" default:"8080" yaml:"http_port" toml:"http_port" validate:"required_if=EnableHTTP true"`
	GRPCPort         string        `envconfig:"GRPC_PORT" default:"9090" yaml:"grpc_port" toml:"grpc_port" validate:"required_if=EnableGRPC true"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s" yaml:"http_read_timeout" toml:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s" yaml:"http_write_timeout" toml:"http_write_timeout"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s" yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// mTLS
	MTLSEnabled    bool   `envconfig:"MTLS_ENABLED" default:"false" yaml:"mtls_enabled" toml:"mtls_enabled"`
	MTLSCACert     string `envconfig:"MTLS_CA_CERT" yaml:"mtls_ca_cert" toml:"mtls_ca_cert" validate:"required_if=MTLSEnabled true"`
	MTLSServerCert string `envconfig:"MTLS_SERVER_CERT" yaml:"mtls_server_cert" toml:"mtls_server_cert" validate:"required_if=MTLSEnabled true"`
	MTLSServerKey  string `envconfig:"MTLS_SERVER_KEY" yaml:"mtls_server_key" toml:"mtls_server_key" validate:"required_if=MTLSEnabled true"`
}

// Server runs the HTTP and gRPC listeners until ctx is done or one of them
// fails, then shuts both down.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	handler http.Handler
	grpcSrv *grpc.Server
}

func New(cfg Config, logger *slog.Logger, handler http.Handler, grpcSrv *grpc.Server) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		grpcSrv: grpcSrv,
	}
}

func (s *Server) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	var httpSrv *http.Server
	if s.cfg.EnableHTTP {
		httpSrv = &http.Server{
			Addr:              ":" + s.cfg.HTTPPort,
			Handler:           s.handler,
			ReadTimeout:       s.cfg.HTTPReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      s.cfg.HTTPWriteTimeout,
			IdleTimeout:       120 * time.Second,
		}

		if s.cfg.MTLSEnabled {
			s.logger.Info("Enabling mTLS for HTTP server")
			tlsConfig, err := loadMTLSConfig(s.cfg.MTLSCACert)
			if err != nil {
				return fmt.Errorf("failed to load mTLS config: %w", err)
			}
			httpSrv.TLSConfig = tlsConfig
		}

		g.Go(func() error {
			s.logger.Info("HTTP server starting", "port", s.cfg.HTTPPort, "mtls", s.cfg.MTLSEnabled)
			var err error
			if s.cfg.MTLSEnabled {
				err = httpSrv.ListenAndServeTLS(s.cfg.MTLSServerCert, s.cfg.MTLSServerKey)
			} else {
				err = httpSrv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		})
	}

	if s.cfg.EnableGRPC && s.grpcSrv != nil {
		lis, err := net.Listen("tcp", ":"+s.cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("failed to listen grpc: %w", err)
		}
		g.Go(func() error {
			s.logger.Info("gRPC server starting", "port", s.cfg.GRPCPort)
			if err := s.grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down servers")
		s.shutdown(httpSrv)
		return nil
	})

	return g.Wait()
}

func (s *Server) shutdown(httpSrv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP shutdown error", "error", err)
		}
	}
	if s.grpcSrv != nil {
		s.grpcSrv.GracefulStop()
	}
}

func loadMTLSConfig(caPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("could not read CA cert: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to append CA cert")
	}

	return &tls.Config{
		ClientCAs:  caCertPool,
		ClientAuth: tls.RequireAndVerifyClientCert,
		MinVersion: tls.VersionTLS12,
	}, nil
}
