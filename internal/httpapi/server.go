package httpapi

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/communitypulse/impactd/internal/collections"
)

type ServerOptions struct {
	Service *collections.Service
	Config  *collections.Config
	Journal collections.Journal
	Logger  *log.Logger
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// RateLimitMax caps requests per client per window; 0 disables.
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Server is the HTTP surface the dashboard frontend talks to. Routing is
// hand-rolled over the request path; every response is JSON.
type Server struct {
	service *collections.Service
	config  *collections.Config
	journal collections.Journal
	logger  *log.Logger
	metrics http.Handler
	limiter *rateLimiter
	hub     *changeHub
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	window := opts.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	var limiter *rateLimiter
	if opts.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  window,
			max:     opts.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	return &Server{
		service: opts.Service,
		config:  opts.Config,
		journal: opts.Journal,
		logger:  logger,
		metrics: opts.MetricsHandler,
		limiter: limiter,
		hub:     newChangeHub(logger),
	}
}

// BroadcastChanges is wired as a refresher callback so detected changes
// reach websocket subscribers.
func (s *Server) BroadcastChanges(kind collections.Kind, report collections.ChangeReport) {
	s.hub.Broadcast(kind, report)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)

	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if r.URL.Path == "/metrics" && r.Method == http.MethodGet && s.metrics != nil {
		s.metrics.ServeHTTP(w, r)
		return
	}

	if s.limiter != nil && !s.limiter.allow(clientKey(r), time.Now()) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", correlationID)
		return
	}

	switch {
	case r.URL.Path == "/v1/cache/stats" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.service.CacheStats())
		return
	case r.URL.Path == "/v1/cache/invalidate" && r.Method == http.MethodPost:
		s.service.InvalidateAll()
		s.logger.Printf("httpapi: cache cleared")
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	case r.URL.Path == "/v1/config/collections" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"configured":   kindStrings(s.config.Configured()),
			"unconfigured": kindStrings(s.config.Unconfigured()),
		})
		return
	case r.URL.Path == "/v1/status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"kinds": s.service.Status()})
		return
	case r.URL.Path == "/v1/changes/recent" && r.Method == http.MethodGet:
		s.handleRecentChanges(w, r, correlationID)
		return
	case r.URL.Path == "/v1/changes/ws" && r.Method == http.MethodGet:
		s.hub.handleSubscribe(w, r)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && parts[1] == "collections" {
		kind, ok := collections.ParseKind(parts[2])
		if !ok {
			writeError(w, http.StatusNotFound, "unknown_kind", "unknown collection kind "+parts[2], correlationID)
			return
		}
		switch {
		case len(parts) == 3 && r.Method == http.MethodGet:
			s.handleFetchCollection(w, r, kind, correlationID)
			return
		case len(parts) == 4 && parts[3] == "invalidate" && r.Method == http.MethodPost:
			removed := s.service.Invalidate(kind)
			s.logger.Printf("httpapi: invalidated kind=%s entries=%d", kind, removed)
			writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "invalidated": removed})
			return
		}
	}

	writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
}

type collectionResponse struct {
	Kind      collections.Kind      `json:"kind"`
	Records   []collections.Record  `json:"records"`
	Count     int                   `json:"count"`
	Source    collections.FetchPath `json:"source"`
	Degraded  bool                  `json:"degraded"`
	LastError string                `json:"lastError,omitempty"`
}

func (s *Server) handleFetchCollection(w http.ResponseWriter, r *http.Request, kind collections.Kind, correlationID string) {
	query := r.URL.Query()

	var filter map[string]string
	for name, values := range query {
		if !strings.HasPrefix(name, "filter.") || len(values) == 0 {
			continue
		}
		if filter == nil {
			filter = map[string]string{}
		}
		filter[strings.TrimPrefix(name, "filter.")] = values[0]
	}

	var sort *collections.SortSpec
	if raw := strings.TrimSpace(query.Get("sort")); raw != "" {
		spec := collections.SortSpec{Field: raw}
		if field, direction, found := strings.Cut(raw, ":"); found {
			spec.Field = field
			spec.Descending = strings.EqualFold(direction, "desc")
		}
		sort = &spec
	}

	opts := collections.FetchOptions{
		SkipCache: query.Get("noCache") == "1" || strings.EqualFold(query.Get("noCache"), "true"),
	}

	records, path, err := s.service.FetchCollectionDetailed(r.Context(), kind, filter, sort, opts)
	if err != nil {
		// Only the caller's own context ending gets here.
		writeError(w, statusClientClosedRequest, "request_cancelled", err.Error(), correlationID)
		return
	}
	if records == nil {
		records = []collections.Record{}
	}
	response := collectionResponse{
		Kind:     kind,
		Records:  records,
		Count:    len(records),
		Source:   path,
		Degraded: path.Degraded(),
	}
	if response.Degraded {
		response.LastError = s.service.LastError(kind)
	}
	writeJSON(w, http.StatusOK, response)
}

// Nginx's non-standard code for a client that went away; there is no
// stdlib constant for it.
const statusClientClosedRequest = 499

func (s *Server) handleRecentChanges(w http.ResponseWriter, r *http.Request, correlationID string) {
	if s.journal == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []collections.ChangeEvent{}})
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 1000", correlationID)
			return
		}
		limit = parsed
	}
	events, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	if events == nil {
		events = []collections.ChangeEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (l *rateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.After(entry.resetAt) {
		l.entries[key] = rateEntry{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if entry.count >= l.max {
		return false
	}
	entry.count++
	l.entries[key] = entry
	return true
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func kindStrings(kinds []collections.Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, string(kind))
	}
	return out
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
