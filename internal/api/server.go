package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/process"

	"roomhub/pkg/interfaces"
	"roomhub/pkg/types"
)

// StatsProvider reports fan-out counters for the health endpoint
type StatsProvider interface {
	GetStats() map[string]int64
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	directory interfaces.RoomDirectory
	store     interfaces.ImageStore
	stats     StatsProvider
	router    *http.ServeMux
	startedAt time.Time
}

// FUNCTIONAL DISCOVERY: Constructor initializes all dependencies and sets up routing
// Dependency injection pattern maintains architectural boundaries
func NewServer(directory interfaces.RoomDirectory, store interfaces.ImageStore, stats StatsProvider) *Server {
	s := &Server{
		directory: directory,
		store:     store,
		stats:     stats,
		router:    http.NewServeMux(),
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// CORS and JSON middleware applied to all routes for web client compatibility
func (s *Server) setupRoutes() {
	wrap := func(h http.HandlerFunc) http.Handler {
		return s.corsMiddleware(s.jsonMiddleware(h))
	}

	s.router.Handle("GET /api/entities", wrap(s.listEntities))
	s.router.Handle("POST /api/entities", wrap(s.createEntity))
	s.router.Handle("GET /api/entities/{id}", wrap(s.getEntity))
	s.router.Handle("PUT /api/entities/{id}", wrap(s.updateEntity))
	s.router.Handle("DELETE /api/entities/{id}", wrap(s.deleteEntity))
	s.router.Handle("GET /api/rooms", wrap(s.listRooms))
	s.router.Handle("GET /api/rooms/{path}", wrap(s.getRoom))
	s.router.Handle("OPTIONS /api/", wrap(func(w http.ResponseWriter, r *http.Request) {}))
	s.router.Handle("GET /health", wrap(s.healthCheck))
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Storage   string           `json:"storage"`
	Rooms     map[string]int   `json:"rooms"`
	Fanout    map[string]int64 `json:"fanout,omitempty"`
	System    map[string]any   `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /api/entities - every entity across every room
func (s *Server) listEntities(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.directory.AllEntities())
}

// FUNCTIONAL DISCOVERY: GET /api/entities/{id} - first room holding the id wins
func (s *Server) getEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.entityID(w, r)
	if !ok {
		return
	}

	entity, err := s.directory.FindEntity(id)
	if errors.Is(err, interfaces.ErrEntityNotFound) {
		s.sendError(w, "Entity not found", http.StatusNotFound)
		return
	}
	s.sendJSON(w, http.StatusOK, entity)
}

// FUNCTIONAL DISCOVERY: POST /api/entities - inserted into every existing room
func (s *Server) createEntity(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.decodeEntity(w, r)
	if !ok {
		return
	}

	rooms := s.directory.InsertEverywhere(*entity)
	log.Info().Str("module", "api").Int64("entity", entity.ID).Int("rooms", rooms).Msg("entity inserted")
	s.sendJSON(w, http.StatusCreated, entity)
}

// FUNCTIONAL DISCOVERY: PUT /api/entities/{id} - stored under the path id, not the body id
func (s *Server) updateEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.entityID(w, r)
	if !ok {
		return
	}
	entity, ok := s.decodeEntity(w, r)
	if !ok {
		return
	}

	if err := s.directory.ReplaceEntity(id, *entity); err != nil {
		s.sendError(w, "Entity not found", http.StatusNotFound)
		return
	}
	s.sendJSON(w, http.StatusOK, entity)
}

// FUNCTIONAL DISCOVERY: DELETE /api/entities/{id} - 204 on success
func (s *Server) deleteEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.entityID(w, r)
	if !ok {
		return
	}

	if err := s.directory.RemoveEntity(id); err != nil {
		s.sendError(w, "Entity not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FUNCTIONAL DISCOVERY: GET /api/rooms - active room paths
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.directory.Paths())
}

// FUNCTIONAL DISCOVERY: GET /api/rooms/{path} - session count and metadata snapshot
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	summary, err := s.directory.Summary(r.PathValue("path"))
	if err != nil {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}
	s.sendJSON(w, http.StatusOK, summary)
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	storageStatus := "healthy"

	if s.store == nil {
		storageStatus = "not configured"
	} else if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		storageStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Storage:   storageStatus,
		Rooms:     s.directory.SessionTotals(),
		System:    s.systemInfo(),
	}
	if s.stats != nil {
		response.Fanout = s.stats.GetStats()
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

// TECHNICAL DISCOVERY: Process stats are best-effort; a platform where gopsutil
// cannot read the process still gets goroutines and uptime
func (s *Server) systemInfo() map[string]any {
	info := map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		info["rss_bytes"] = mem.RSS
	}
	if threads, err := proc.NumThreads(); err == nil {
		info["threads"] = threads
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		info["cpu_percent"] = cpu
	}
	return info
}

func (s *Server) entityID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendError(w, "Invalid entity ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// FUNCTIONAL DISCOVERY: Bodies go through the same structural decode as
// connection frames, so a partial entity is rejected rather than zero-filled
func (s *Server) decodeEntity(w http.ResponseWriter, r *http.Request) (*types.Entity, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.sendError(w, "Failed to read body", http.StatusBadRequest)
		return nil, false
	}
	entity, err := types.DecodeEntity(body)
	if err != nil {
		s.sendError(w, "Invalid entity", http.StatusBadRequest)
		return nil, false
	}
	return entity, true
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Str("module", "api").Err(err).Msg("failed to encode response")
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins in development - would be restricted in production
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// FUNCTIONAL DISCOVERY: Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
