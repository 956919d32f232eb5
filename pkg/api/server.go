// Package api provides read-only HTTP endpoints for inspecting a running
// plasma store: health, statistics, object records and metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/plasmastore/plasmastore/internal/lifecycle"
	plasmaerrors "github.com/plasmastore/plasmastore/pkg/errors"
	"github.com/plasmastore/plasmastore/pkg/types"
	"github.com/plasmastore/plasmastore/pkg/utils"
)

// RequestIDHeader carries the request id assigned by the server, or the one
// supplied by the caller.
const RequestIDHeader = "X-Request-ID"

// Store is the part of the lifecycle manager the API reads.
type Store interface {
	Report() lifecycle.Report
	Lookup(id types.ObjectID) (types.ObjectView, bool)
	Objects() []types.ObjectView
	EvictableObjects() []types.ObjectID
	VerifyObject(id types.ObjectID) plasmaerrors.Result
}

// Server provides HTTP API endpoints for monitoring
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	store      Store
	logger     *utils.StructuredLogger
	config     ServerConfig
	started    time.Time
	endpoints  []string
}

// ServerConfig configures the API server
type ServerConfig struct {
	// Address to bind the server to (e.g., "localhost:8090")
	Address string `yaml:"address" json:"address"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout is the maximum duration for writing the response
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// EnableCORS enables Cross-Origin Resource Sharing
	EnableCORS bool `yaml:"enable_cors" json:"enable_cors"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      "127.0.0.1:8090",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		EnableCORS:   false,
	}
}

// NewServer creates a new API server
func NewServer(config ServerConfig, store Store, logger *utils.StructuredLogger) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		store:   store,
		logger:  utils.OrNop(logger).WithComponent("api"),
		config:  config,
		started: time.Now(),
	}

	// Health endpoints
	s.handle("GET /health", http.HandlerFunc(s.handleHealth))
	s.handle("GET /health/live", http.HandlerFunc(s.handleLiveness))

	// Store endpoints
	s.handle("GET /stats", http.HandlerFunc(s.handleStats))
	s.handle("GET /objects", http.HandlerFunc(s.handleObjects))
	s.handle("GET /objects/{id}", http.HandlerFunc(s.handleObject))
	s.handle("GET /objects/{id}/verify", http.HandlerFunc(s.handleVerify))
	s.handle("GET /eviction", http.HandlerFunc(s.handleEviction))

	// Info endpoint
	s.handle("GET /info", http.HandlerFunc(s.handleInfo))

	var handler http.Handler = s.mux
	handler = s.loggingMiddleware(handler)
	if config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}
	handler = s.requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return s
}

// Handle mounts an additional handler, such as the metrics endpoint.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.handle(pattern, handler)
}

func (s *Server) handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
	s.endpoints = append(s.endpoints, pattern)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting API server", map[string]interface{}{"address": s.config.Address})
	return s.httpServer.ListenAndServe()
}

// StartBackground starts the server in a background goroutine
func (s *Server) StartBackground() {
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", map[string]interface{}{"error": err.Error()})
		}
	}()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Health endpoint handlers

// The store is degraded once the primary pool is full and objects are
// spilling into the fallback pool.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.store.Report()
	alloc := report.Allocator

	status := "healthy"
	statusCode := http.StatusOK
	if alloc.FallbackBytes > 0 && alloc.PrimaryBytes >= alloc.FootprintLimitBytes {
		status = "degraded"
		statusCode = http.StatusPartialContent
	}

	var usage float64
	if alloc.FootprintLimitBytes > 0 {
		usage = float64(alloc.PrimaryBytes) / float64(alloc.FootprintLimitBytes)
	}

	s.respondJSON(w, statusCode, map[string]interface{}{
		"status":            status,
		"timestamp":         time.Now(),
		"objects":           report.Objects.NumObjects,
		"primary_usage":     usage,
		"fallback_bytes":    alloc.FallbackBytes,
		"pending_deletions": report.Objects.NumObjectsPendingDelete,
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"uptime":    time.Since(s.started).String(),
		"timestamp": time.Now(),
	})
}

// Store endpoint handlers

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.store.Report())
}

// ObjectResponse is the JSON form of an object record.
type ObjectResponse struct {
	ID               string    `json:"id"`
	DataSize         int64     `json:"data_size"`
	MetadataSize     int64     `json:"metadata_size"`
	State            string    `json:"state"`
	Source           string    `json:"source"`
	RefCount         uint32    `json:"ref_count"`
	PendingDelete    bool      `json:"pending_delete"`
	IsFallback       bool      `json:"is_fallback"`
	OwnerAddress     string    `json:"owner_address,omitempty"`
	CreateTime       time.Time `json:"create_time"`
	ConstructionTime string    `json:"construction_time,omitempty"`
	Checksum         string    `json:"checksum,omitempty"`
}

func newObjectResponse(v types.ObjectView) ObjectResponse {
	resp := ObjectResponse{
		ID:            v.ID.Hex(),
		DataSize:      v.DataSize,
		MetadataSize:  v.MetadataSize,
		State:         v.State.String(),
		Source:        v.Source.String(),
		RefCount:      v.RefCount,
		PendingDelete: v.PendingDelete,
		IsFallback:    v.IsFallback,
		CreateTime:    v.CreateTime,
	}
	if len(v.OwnerAddress) > 0 {
		resp.OwnerAddress = fmt.Sprintf("%x", v.OwnerAddress)
	}
	if v.State == types.ObjectSealed {
		resp.ConstructionTime = v.ConstructionTime.String()
	}
	if v.Checksum != 0 {
		resp.Checksum = fmt.Sprintf("%016x", v.Checksum)
	}
	return resp
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	// Get limit from query parameter (default 100)
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q", limitStr))
			return
		}
		limit = n
	}

	views := s.store.Objects()
	total := len(views)
	if len(views) > limit {
		views = views[:limit]
	}

	objects := make([]ObjectResponse, 0, len(views))
	for _, v := range views {
		objects = append(objects, newObjectResponse(v))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"objects": objects,
		"count":   len(objects),
		"total":   total,
		"limit":   limit,
	})
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	view, found := s.store.Lookup(id)
	if !found {
		s.respondResult(w, plasmaerrors.Fail(plasmaerrors.ErrCodeObjectNotFound,
			fmt.Sprintf("object %s not found", id.Hex())))
		return
	}
	s.respondJSON(w, http.StatusOK, newObjectResponse(view))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}
	s.respondResult(w, s.store.VerifyObject(id))
}

func (s *Server) handleEviction(w http.ResponseWriter, r *http.Request) {
	ids := s.store.EvictableObjects()
	hex := make([]string, len(ids))
	for i, id := range ids {
		hex[i] = id.Hex()
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": hex,
		"cache":      s.store.Report().Cache,
	})
}

func (s *Server) parseID(w http.ResponseWriter, r *http.Request) (types.ObjectID, bool) {
	id, err := types.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return types.ObjectID{}, false
	}
	return id, true
}

// Info endpoint

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "plasma-store",
		"timestamp": time.Now(),
		"endpoints": s.endpoints,
	})
}

// Middleware

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request served", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": r.Header.Get(RequestIDHeader),
			"duration":   time.Since(start).String(),
		})
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helper methods

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("error encoding JSON response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now(),
	})
}

// respondResult writes a store Result with the status its error code maps to.
func (s *Server) respondResult(w http.ResponseWriter, res plasmaerrors.Result) {
	s.respondJSON(w, plasmaerrors.GetDefaultHTTPStatus(res.Code), res)
}
