package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flowforge/flowforge"
	"github.com/flowforge/flowforge/api"
	"github.com/flowforge/flowforge/api/handlers"
	"github.com/flowforge/flowforge/config"
	"github.com/flowforge/flowforge/internal/metrics"
	"github.com/flowforge/flowforge/internal/server"
	"github.com/flowforge/flowforge/internal/telemetry"
	"github.com/flowforge/flowforge/memory"
	"github.com/flowforge/flowforge/sandbox"
	"github.com/flowforge/flowforge/store"
	"github.com/flowforge/flowforge/tools/openapi"
)

// Server wires the runtime, persistence, and HTTP surfaces together.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	runtime  *flowforge.Runtime
	store    *store.Store
	longTerm memory.Store

	collector *metrics.Collector
	otel      *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start brings up telemetry, storage, the runtime, and both listeners.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("flowforge", s.logger)

	otelProviders, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("telemetry init failed", zap.Error(err))
	}
	s.otel = otelProviders

	// Project persistence is optional: the engine still compiles and runs
	// graphs without it.
	st, err := store.Open(s.cfg.Database.Driver, s.cfg.Database.DSN, s.logger)
	if err != nil {
		s.logger.Warn("database unavailable, project persistence disabled", zap.Error(err))
	} else {
		s.store = st
	}

	if err := s.initRuntime(); err != nil {
		return fmt.Errorf("init runtime: %w", err)
	}

	relay, err := handlers.NewRelayHandler(s.cfg.Server.ExecutionURL, s.logger)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}

	health := handlers.NewHealthHandler(s.logger)
	if s.store != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", s.store.Ping))
	}

	router := api.NewRouter(api.RouterOptions{
		Renderer:      s.runtime,
		Store:         s.store,
		Interventions: s.runtime.Interventions(),
		Subgraphs:     s.runtime.Subgraphs(),
		Relay:         relay,
		Health:        health,
		Metrics:       s.collector,
		Logger:        s.logger,
	})

	s.httpManager = server.NewManager(router, server.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsManager = server.NewManager(metricsMux, server.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.MetricsPort),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
	)
	return nil
}

// initRuntime assembles the workflow runtime with the configured memory
// backend and chat client.
func (s *Server) initRuntime() error {
	eval := sandbox.NewEvaluator(s.logger)
	longTerm := s.openMemoryBackend()
	s.longTerm = longTerm

	opts := []flowforge.Option{
		flowforge.WithLogger(s.logger),
		flowforge.WithMemory(memory.NewManager(nil, longTerm, eval, s.logger)),
		flowforge.WithToolWorkDir(s.cfg.Tools.WorkDir),
		flowforge.WithToolRateLimit(s.cfg.Tools.CallsPerSecond),
	}
	if s.cfg.LLM.APIKey != "" {
		opts = append(opts, flowforge.WithOpenAI(s.cfg.LLM.APIKey, s.cfg.LLM.BaseURL))
	}

	rt, err := flowforge.New(opts...)
	if err != nil {
		return err
	}
	s.runtime = rt
	s.loadOpenAPITools()
	return nil
}

// loadOpenAPITools registers tools from the configured OpenAPI specs. A
// spec that fails to load is skipped, not fatal.
func (s *Server) loadOpenAPITools() {
	if len(s.cfg.Tools.OpenAPISpecs) == 0 {
		return
	}
	generator := openapi.NewGenerator(0, s.logger)
	for _, specCfg := range s.cfg.Tools.OpenAPISpecs {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		spec, err := generator.LoadSpec(ctx, specCfg.Source)
		cancel()
		if err != nil {
			s.logger.Warn("skipping OpenAPI spec", zap.String("source", specCfg.Source), zap.Error(err))
			continue
		}
		if _, err := generator.RegisterTools(s.runtime.Tools(), spec, openapi.Options{
			ModulePath: specCfg.ModulePath,
			BaseURL:    specCfg.BaseURL,
		}); err != nil {
			s.logger.Warn("failed to register OpenAPI tools", zap.String("source", specCfg.Source), zap.Error(err))
		}
	}
}

// openMemoryBackend connects the configured long-term store, falling back
// to in-process memory when the backend is unreachable.
func (s *Server) openMemoryBackend() memory.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch s.cfg.Memory.Backend {
	case "redis":
		backend, err := memory.NewRedis(ctx, s.cfg.Memory.RedisAddr, s.cfg.Memory.RedisPassword, s.cfg.Memory.RedisDB, s.logger)
		if err != nil {
			s.logger.Warn("redis unavailable, using in-process memory", zap.Error(err))
			return nil
		}
		return backend
	case "mongo":
		backend, err := memory.NewMongo(ctx, s.cfg.Memory.MongoURI, s.cfg.Memory.MongoDatabase, "memory", s.logger)
		if err != nil {
			s.logger.Warn("mongo unavailable, using in-process memory", zap.Error(err))
			return nil
		}
		return backend
	default:
		return nil
	}
}

// WaitForShutdown blocks until the HTTP server stops, then tears everything
// down.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	if s.longTerm != nil {
		if err := s.longTerm.Close(); err != nil {
			s.logger.Warn("memory backend close failed", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("store close failed", zap.Error(err))
		}
	}
}
