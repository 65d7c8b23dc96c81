package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/api/handlers"
	"github.com/flowforge/flowforge/internal/metrics"
	"github.com/flowforge/flowforge/intervene"
	"github.com/flowforge/flowforge/store"
	"github.com/flowforge/flowforge/subgraph"
)

// RouterOptions carries the services the API exposes. Nil fields disable
// the corresponding routes.
type RouterOptions struct {
	Renderer      handlers.Renderer
	Store         *store.Store
	Interventions *intervene.Coordinator
	Subgraphs     *subgraph.Registry
	Relay         *handlers.RelayHandler
	Health        *handlers.HealthHandler
	Metrics       *metrics.Collector
	Logger        *zap.Logger
}

// NewRouter builds the engine API mux.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()

	health := opts.Health
	if health == nil {
		health = handlers.NewHealthHandler(logger)
	}
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)

	if opts.Renderer != nil {
		codegen := handlers.NewCodegenHandler(opts.Renderer, logger)
		mux.HandleFunc("POST /generate_code", codegen.HandleGenerateCode)
	}

	if opts.Interventions != nil {
		iv := handlers.NewInterventionHandler(opts.Interventions, logger)
		mux.HandleFunc("GET /interventions/pending", iv.HandlePending)
		mux.HandleFunc("GET /interventions/{id}", iv.HandleGet)
		mux.HandleFunc("POST /interventions/{id}/resume", iv.HandleResume)
	}

	if opts.Store != nil {
		projects := handlers.NewProjectHandler(opts.Store, opts.Renderer, logger)
		mux.HandleFunc("POST /projects", projects.HandleCreate)
		mux.HandleFunc("GET /projects", projects.HandleList)
		mux.HandleFunc("GET /projects/{id}", projects.HandleGet)
		mux.HandleFunc("PUT /projects/{id}", projects.HandleUpdate)
		mux.HandleFunc("DELETE /projects/{id}", projects.HandleDelete)
		mux.HandleFunc("PUT /projects/{id}/graph", projects.HandleSaveGraph)
		mux.HandleFunc("POST /projects/{id}/publish", projects.HandlePublish)
		mux.HandleFunc("GET /projects/{id}/versions", projects.HandleListVersions)
		mux.HandleFunc("GET /versions/{id}", projects.HandleGetVersion)
	}

	if opts.Subgraphs != nil {
		sub := handlers.NewSubgraphHandler(opts.Subgraphs, logger)
		mux.HandleFunc("POST /subgraphs", sub.HandleRegister)
		mux.HandleFunc("GET /subgraphs", sub.HandleList)
		mux.HandleFunc("GET /subgraphs/{id}", sub.HandleGet)
	}

	if opts.Relay != nil {
		mux.HandleFunc("GET /ws/chat", opts.Relay.HandleChatRelay)
		mux.HandleFunc("POST /compile", opts.Relay.HandleProxy)
		mux.HandleFunc("POST /run", opts.Relay.HandleProxy)
		mux.HandleFunc("POST /abort", opts.Relay.HandleProxy)
	}

	var handler http.Handler = mux
	if opts.Metrics != nil {
		handler = withMetrics(handler, opts.Metrics)
	}
	return handler
}

// withMetrics records method, route, status class, and latency per request.
func withMetrics(next http.Handler, collector *metrics.Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WebSocket upgrades need the raw ResponseWriter (Hijacker).
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		rw := handlers.NewResponseWriter(w)
		start := time.Now()
		next.ServeHTTP(rw, r)
		collector.RecordHTTPRequest(r.Method, r.URL.Path, rw.StatusCode, time.Since(start))
	})
}
