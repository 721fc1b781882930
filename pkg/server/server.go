// Package server provides the minimal HTTP surface in front of the
// subgraph assembler and virtualizer (C7), grounded on the teacher's
// pkg/server/server.go router-building style: a buildRouter() returning
// http.Handler, one mux.HandleFunc per route, and a small middleware
// chain (recovery, logging, metrics) wrapped around it.
//
// Authentication and authorization are explicitly out of scope per
// spec.md §1; withAuth is kept as a pass-through hook so the wiring point
// exists without implementing a policy.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
	"github.com/bcgsc/graphkb/pkg/schema"
	"github.com/bcgsc/graphkb/pkg/store"
	"github.com/bcgsc/graphkb/pkg/subgraph"
	"github.com/bcgsc/graphkb/pkg/virtual"
)

// Config holds HTTP server configuration options.
type Config struct {
	Address      string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MetricsEnabled exposes /metrics alongside /healthz, per
	// SPEC_FULL.md §6.4's domain stack wiring table.
	MetricsEnabled bool
}

// DefaultConfig returns sane development defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:      "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server is the HTTP API server fronting the subgraph assembler.
type Server struct {
	config *Config
	pool   *store.Pool
	reg    *schema.Registry

	httpServer *http.Server
	listener   net.Listener

	closed  atomic.Bool
	started time.Time

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// New creates a Server over pool and reg. config defaults via
// DefaultConfig() if nil.
func New(pool *store.Pool, reg *schema.Registry, config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if pool == nil {
		return nil, fmt.Errorf("session pool required")
	}
	if reg == nil {
		return nil, fmt.Errorf("schema registry required")
	}
	return &Server{config: config, pool: pool, reg: reg}, nil
}

// Start begins listening for HTTP connections. It returns immediately
// after binding; connections are served on a background goroutine.
func (s *Server) Start() error {
	if s.closed.Load() {
		return fmt.Errorf("server closed")
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.started = time.Now()

	mux := s.buildRouter()
	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("graphkb http server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the server's bound address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/subgraphs/", s.withAuth(s.handleSubgraph))
	if s.config.MetricsEnabled {
		mux.Handle("/metrics", s.metricsHandler())
	}

	handler := s.loggingMiddleware(mux)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// withAuth is a pass-through hook: authentication/authorization are out
// of scope per spec §1, but the wiring point for a future middleware
// layer is kept here rather than inlined into every handler.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return handler
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		if s.config.MetricsEnabled {
			requestsTotal.Inc()
		}
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		if r.URL.Path != "/healthz" {
			log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				log.Printf("panic: %v\n%s", err, buf[:n])
				s.errorCount.Add(1)
				s.writeError(w, graphkberr.New(graphkberr.KindInternal, "server.recover", fmt.Sprintf("%v", err)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// subgraphRequest is the decoded body of POST /subgraphs/{ontology}, per
// spec §6.2.
type subgraphRequest struct {
	SubgraphType        string   `json:"subgraphType"`
	Base                []string `json:"base"`
	Edges               []string `json:"edges"`
	TreeEdges           []string `json:"treeEdges"`
	MaxDepth            int      `json:"maxDepth"`
	ReturnProperties    []string `json:"returnProperties"`
	Subgraph            string   `json:"subgraph"`
	FirstGenerationOnly bool     `json:"firstGenerationOnly"`
}

// directionFor maps the request's caller-facing subgraphType to the
// assembler's direction/firstGenerationOnly pair, per spec §4.5's
// dispatch table.
func directionFor(subgraphType string) (subgraph.Direction, bool, error) {
	switch subgraphType {
	case "", "similarTo":
		return subgraph.Null, false, nil
	case "parents":
		return subgraph.Ascending, true, nil
	case "ancestors":
		return subgraph.Ascending, false, nil
	case "children":
		return subgraph.Descending, true, nil
	case "descendants":
		return subgraph.Descending, false, nil
	case "tree":
		return subgraph.Split, false, nil
	case "complete":
		return subgraph.Both, false, nil
	default:
		return "", false, graphkberr.New(graphkberr.KindValidation, "server.directionFor",
			fmt.Sprintf("unknown subgraphType %q", subgraphType))
	}
}

// handleSubgraph implements POST /subgraphs/{ontology}.
func (s *Server) handleSubgraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, graphkberr.New(graphkberr.KindValidation, "server.handleSubgraph", "POST required"))
		return
	}

	ontology := strings.TrimPrefix(r.URL.Path, "/subgraphs/")
	if ontology == "" {
		s.writeError(w, graphkberr.New(graphkberr.KindValidation, "server.handleSubgraph", "ontology class required in path"))
		return
	}

	var req subgraphRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, graphkberr.Wrap(graphkberr.KindValidation, "server.handleSubgraph", "invalid request body", err))
			return
		}
	}
	if req.SubgraphType == "" {
		req.SubgraphType = "complete" // defaults to "complete" when body is omitted, per §6.2
	}
	if req.Subgraph == "" {
		req.Subgraph = "real"
	}

	dir, firstGen, err := directionFor(req.SubgraphType)
	if err != nil {
		s.writeError(w, err)
		return
	}

	base := make([]store.RID, 0, len(req.Base))
	for _, b := range req.Base {
		rid, err := store.ParseRID(b)
		if err != nil {
			s.writeError(w, graphkberr.Wrap(graphkberr.KindValidation, "server.handleSubgraph", "invalid base RID "+b, err))
			return
		}
		base = append(base, rid)
	}

	opts := subgraph.Options{
		Base:                base,
		Direction:           dir,
		FirstGenerationOnly: firstGen,
		Edges:               req.Edges,
		TreeEdges:           req.TreeEdges,
		MaxDepth:            req.MaxDepth,
		ReturnProperties:    req.ReturnProperties,
	}

	result, err := s.withReconnect(r.Context(), func(ctx context.Context) (*subgraph.Result, error) {
		sess, acqErr := s.pool.Acquire(ctx)
		if acqErr != nil {
			return nil, acqErr
		}
		defer sess.Release()
		asm := subgraph.New(sess, s.reg)
		return asm.Traverse(ctx, ontology, opts)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	response := map[string]any{"g": result}
	if req.Subgraph == "virtual" || req.Subgraph == "both" {
		vresult := virtual.Build(result, virtual.Options{})
		response["v"] = vresult
	}
	if req.Subgraph == "virtual" {
		delete(response, "g")
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"result": response})
}

// withReconnect attempts fn once, and on a ConnectionError retries
// exactly once before surfacing, per §7.
func (s *Server) withReconnect(ctx context.Context, fn func(context.Context) (*subgraph.Result, error)) (*subgraph.Result, error) {
	result, err := fn(ctx)
	if err != nil && graphkberr.Is(err, graphkberr.KindConnection) {
		result, err = fn(ctx)
	}
	return result, err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sess, err := s.pool.Acquire(ctx)
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	sess.Release()
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a graphkberr.Kind to an HTTP status per spec §7:
// validation → 400, not-found → 404, conflict → 409, permission → 403,
// auth → 401, everything else → 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.errorCount.Add(1)
	if s.config.MetricsEnabled {
		errorsTotal.Inc()
	}
	status := http.StatusInternalServerError
	switch graphkberr.KindOf(err) {
	case graphkberr.KindValidation:
		status = http.StatusBadRequest
	case graphkberr.KindNotFound:
		status = http.StatusNotFound
	case graphkberr.KindConflict:
		status = http.StatusConflict
	case graphkberr.KindPermission:
		status = http.StatusForbidden
	case graphkberr.KindAuthentication:
		status = http.StatusUnauthorized
	}
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}
