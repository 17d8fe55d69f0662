package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"receptiongw/internal/calls"
	"receptiongw/internal/config"
	"receptiongw/internal/model"
	"receptiongw/internal/pipeline"
	"receptiongw/internal/presence"
	"receptiongw/internal/queue"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
)

type PresenceService interface {
	ActiveUsers(ctx context.Context) (presence.Result, error)
}

type CallsService interface {
	List(ctx context.Context, in calls.Query) (map[string]any, error)
}

type QueueService interface {
	Snapshot(ctx context.Context, matchNumbers []string) (queue.Snapshot, error)
}

type DutyQueryService interface {
	Run(ctx context.Context, callID string) (pipeline.Result, error)
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
}

type Dependencies struct {
	Presence       PresenceService
	Calls          CallsService
	Queue          QueueService
	DutyQuery      DutyQueryService
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	presence     PresenceService
	calls        CallsService
	queue        QueueService
	dutyQuery    DutyQueryService
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
	maxJSONBodyBytes = 1 << 20
	serviceName      = "receptiongw"
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Presence == nil || deps.Calls == nil || deps.Queue == nil || deps.DutyQuery == nil {
		panic("httpapi: all dependencies are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		presence:     deps.Presence,
		calls:        deps.Calls,
		queue:        deps.Queue,
		dutyQuery:    deps.DutyQuery,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, model.ErrorResponse{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, model.ErrorResponse{Error: "Method not allowed"})
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(preflightMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/presence", s.handlePresence)
		r.Post("/calls", s.handleListCalls)
		r.Get("/queue-snapshot", s.handleQueueSnapshot)
		r.Post("/duty-query", s.handleDutyQuery)
	})

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	var missing []string
	for _, check := range []struct {
		name  string
		value string
	}{
		{"TELEPHONY_API_TOKEN", s.cfg.TelephonyAPIToken},
		{"STT_API_KEY", s.cfg.STTAPIKey},
		{"LLM_API_KEY", s.cfg.LLMAPIKey},
	} {
		if check.value == "" {
			missing = append(missing, check.name)
		}
	}

	// The AI keys only gate duty queries; the dashboard's read views stay
	// usable without them.
	status := http.StatusOK
	if s.cfg.TelephonyAPIToken == "" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, model.ReadyResponse{
		OK:          status == http.StatusOK,
		ServiceName: serviceName,
		Missing:     missing,
	})
}

func (s *server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.RequireTelephony(); err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	res, err := s.presence.ActiveUsers(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	users := res.Users
	if users == nil {
		users = []presence.User{}
	}
	writeJSON(w, http.StatusOK, model.PresenceResponse{
		Success:           true,
		Data:              users,
		TotalUsersFetched: res.TotalFetched,
		ActiveUsers:       len(users),
		Cached:            res.Cached,
	})
}

func (s *server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.RequireTelephony(); err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	var req model.ListCallsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}

	q := calls.Query{
		AccountScope: req.AccountScope,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	}
	if req.Limit != nil {
		q.Limit = *req.Limit
	}

	payload, err := s.calls.List(r.Context(), q)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	payload["success"] = true
	writeJSON(w, http.StatusOK, payload)
}

func (s *server) handleQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.RequireTelephony(); err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	snap, err := s.queue.Snapshot(r.Context(), queue.ParseMatchNumbers(r.URL.Query().Get("match")))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.QueueSnapshotResponse{Success: true, Snapshot: snap})
}

func (s *server) handleDutyQuery(w http.ResponseWriter, r *http.Request) {
	var req model.DutyQueryRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}
	callID := strings.TrimSpace(string(req.CallID))
	if callID == "" {
		s.writeError(w, r, http.StatusBadRequest, model.ErrorResponse{Error: "Missing callId"})
		return
	}
	if err := s.cfg.RequireDutyQuery(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, model.ErrorResponse{
			Error:   "Server configuration error",
			Details: err.Error(),
		})
		return
	}

	res, err := s.dutyQuery.Run(r.Context(), callID)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	s.logger.Info("duty query generated",
		"request_id", requestIDFromContext(r.Context()),
		"call_id", res.CallID,
		"transcript_chars", len(res.Transcript),
		"timings_ms", timingsMillis(res.Timings),
	)
	writeJSON(w, http.StatusOK, model.DutyQueryResponse{
		Success:    true,
		Transcript: res.Transcript,
		DutyQuery:  res.DutyQuery,
		CallID:     res.CallID,
	})
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "JSON body too large"})
		return
	}
	s.writeError(w, r, http.StatusInternalServerError, model.ErrorResponse{
		Error:   "Invalid JSON body",
		Details: err.Error(),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, model.ErrorResponse{
					Error:   "Internal server error",
					Details: fmt.Sprint(rec),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsHeaders = []string{"Accept", "Authorization", "Content-Type", requestIDHeader}
)

// corsMiddleware negotiates CORS through rs/cors. With a wildcard origin
// list every response is marked as readable from any origin, whether or not
// the request carried an Origin header.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: corsMethods,
		AllowedHeaders: corsHeaders,
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	})
	if !slices.Contains(allowedOrigins, "*") {
		return c.Handler
	}
	return func(next http.Handler) http.Handler {
		h := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := w.Header()
			header.Set("Access-Control-Allow-Origin", "*")
			if r.Method == http.MethodOptions {
				header.Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ", "))
				header.Set("Access-Control-Allow-Headers", strings.Join(corsHeaders, ", "))
			}
			h.ServeHTTP(w, r)
		})
	}
}

// preflightMiddleware answers OPTIONS requests that the CORS layer let
// through (no Access-Control-Request-Method) without reaching any handler.
func preflightMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeJSONBody treats an empty body as an empty object.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = r.Body.Close() }()

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return ensureBodyFullyConsumed(decoder)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func timingsMillis(timings map[pipeline.Stage]time.Duration) map[string]int64 {
	out := make(map[string]int64, len(timings))
	for stage, d := range timings {
		out[string(stage)] = d.Milliseconds()
	}
	return out
}
