package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tripplanner/internal/cache"
	"tripplanner/internal/config"
	"tripplanner/internal/route"
	"tripplanner/internal/trip"
)

const maxBodySize = 1 << 20

type Handlers struct {
	config *config.Config
	logger *zap.Logger
	model  *trip.Model
}

func New(config *config.Config, logger *zap.Logger, model *trip.Model) *Handlers {
	return &Handlers{
		config: config,
		logger: logger,
		model:  model,
	}
}

// Register mounts every API route on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/trips", h.HandleTrips)
	mux.HandleFunc("/api/trips/", h.HandleTripRoutes)
	mux.HandleFunc("/api/locations", h.HandleLocations)
	mux.HandleFunc("/api/locations/", h.HandleLocationRoutes)
	mux.HandleFunc("/api/path", h.HandlePath)
	mux.HandleFunc("/api/cache/stats", h.HandleCacheStats)
	mux.HandleFunc("/healthz", h.HandleHealthz)
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", requestID)
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", h.extractIP(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		switch {
		case h.config.AllowedOrigin != "":
			allowedOrigin = h.config.AllowedOrigin
		case origin == "":
			allowedOrigin = "*"
		case origin == "http://"+r.Host || origin == "https://"+r.Host:
			allowedOrigin = origin
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type tripRequest struct {
	Destination string `json:"destination"`
}

type tripLocationRequest struct {
	LocationID int64 `json:"location_id"`
	// Position is optional; absent means append.
	Position *int `json:"position"`
}

type routeResponse struct {
	TripID   int64            `json:"trip_id,omitempty"`
	Route    []route.Location `json:"route"`
	Distance float64          `json:"total_distance"`
}

type pathResponse struct {
	From     int64            `json:"from"`
	To       int64            `json:"to"`
	Found    bool             `json:"found"`
	Path     []route.Location `json:"path"`
	Distance float64          `json:"distance"`
}

type cacheStatsResponse struct {
	Size                 int     `json:"size"`
	Capacity             int     `json:"capacity"`
	Utilization          float64 `json:"utilization"`
	OldestItemAgeSeconds float64 `json:"oldest_item_age_seconds"`
}

func (h *Handlers) HandleTrips(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		trips, err := h.model.Trips(r.Context())
		if err != nil {
			h.writeModelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, trips)
	case http.MethodPost:
		var req tripRequest
		if !h.decodeBody(w, r, &req) {
			return
		}
		t, err := h.model.AddTrip(r.Context(), req.Destination)
		if err != nil {
			h.writeModelError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) HandleTripRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/trips/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	tripID, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid trip id")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleTrip(w, r, tripID)
	case len(parts) == 2 && parts[1] == "locations":
		h.handleAddTripLocation(w, r, tripID)
	case len(parts) == 3 && parts[1] == "locations":
		locationID, ok := parseID(parts[2])
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid location id")
			return
		}
		h.handleRemoveTripLocation(w, r, tripID, locationID)
	case len(parts) == 2 && parts[1] == "optimize":
		h.handleOptimize(w, r, tripID)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleTrip(w http.ResponseWriter, r *http.Request, tripID int64) {
	switch r.Method {
	case http.MethodGet:
		t, err := h.model.Trip(r.Context(), tripID)
		if err != nil {
			h.writeModelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPut:
		var req tripRequest
		if !h.decodeBody(w, r, &req) {
			return
		}
		t, err := h.model.UpdateTrip(r.Context(), tripID, req.Destination)
		if err != nil {
			h.writeModelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodDelete:
		if err := h.model.DeleteTrip(r.Context(), tripID); err != nil {
			h.writeModelError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleAddTripLocation(w http.ResponseWriter, r *http.Request, tripID int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tripLocationRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	position := -1
	if req.Position != nil {
		position = *req.Position
	}

	if err := h.model.AddLocationToTrip(r.Context(), tripID, req.LocationID, position); err != nil {
		h.writeModelError(w, err)
		return
	}
	h.writeTrip(w, r, tripID)
}

func (h *Handlers) handleRemoveTripLocation(w http.ResponseWriter, r *http.Request, tripID, locationID int64) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.model.RemoveLocationFromTrip(r.Context(), tripID, locationID); err != nil {
		h.writeModelError(w, err)
		return
	}
	h.writeTrip(w, r, tripID)
}

func (h *Handlers) handleOptimize(w http.ResponseWriter, r *http.Request, tripID int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	optimized, err := h.model.OptimizeRoute(r.Context(), tripID)
	if err != nil {
		h.writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routeResponse{
		TripID:   tripID,
		Route:    optimized,
		Distance: route.TotalDistance(optimized),
	})
}

func (h *Handlers) HandleLocations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		locs, err := h.model.Locations(r.Context())
		if err != nil {
			h.writeModelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, locs)
	case http.MethodPost:
		var loc route.Location
		if !h.decodeBody(w, r, &loc) {
			return
		}
		created, err := h.model.AddLocation(r.Context(), loc)
		if err != nil {
			h.writeModelError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) HandleLocationRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/locations/"), "/")
	if strings.Contains(path, "/") {
		http.NotFound(w, r)
		return
	}
	id, ok := parseID(path)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid location id")
		return
	}

	loc, err := h.model.Location(r.Context(), id)
	if err != nil {
		h.writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *Handlers) HandlePath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	from, ok := parseID(query.Get("from"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid from parameter")
		return
	}
	to, ok := parseID(query.Get("to"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid to parameter")
		return
	}

	path, err := h.model.FindPath(r.Context(), from, to)
	if err != nil {
		h.writeModelError(w, err)
		return
	}
	if path == nil {
		path = []route.Location{}
	}
	writeJSON(w, http.StatusOK, pathResponse{
		From:     from,
		To:       to,
		Found:    len(path) > 0,
		Path:     path,
		Distance: route.TotalDistance(path),
	})
}

func (h *Handlers) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.model.CacheStats()
	resp := make(map[string]cacheStatsResponse, len(stats))
	for name, s := range stats {
		resp[name] = toStatsResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toStatsResponse(s cache.Stats) cacheStatsResponse {
	return cacheStatsResponse{
		Size:                 s.Size,
		Capacity:             s.Capacity,
		Utilization:          s.Utilization,
		OldestItemAgeSeconds: s.OldestItemAge.Seconds(),
	}
}

func (h *Handlers) writeTrip(w http.ResponseWriter, r *http.Request, tripID int64) {
	t, err := h.model.Trip(r.Context(), tripID)
	if err != nil {
		h.writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handlers) writeModelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trip.ErrTripNotFound), errors.Is(err, trip.ErrLocationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, route.ErrTooFewLocations):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, trip.ErrEmptyDestination), errors.Is(err, trip.ErrInvalidLocation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Not for real production use due to potential spoofing
// but it's fine for a demo
func (h *Handlers) extractIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return stripPort(ip)
	}
	if r.RemoteAddr != "" {
		return stripPort(r.RemoteAddr)
	}
	return "unknown"
}

// stripPort drops the port from host:port or [ipv6]:port. Addresses without
// a port are returned unchanged.
func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
