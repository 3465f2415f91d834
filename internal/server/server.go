// Package server is a local stand-in for the Decision Service. It speaks the
// same wire contract (POST /decide, GET /history, GET /health) so the console
// can be developed and tested without the real backend. Decisions come from a
// keyword heuristic and runs are kept in memory.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"sentinel/internal/domain"
)

const (
	defaultModelVersion = "sentinel-stub-v1"
	defaultRetention    = 200
)

// Config for the stub service.
type Config struct {
	ModelVersion string
	// Retention caps how many runs are kept; the oldest are dropped first.
	Retention int
	Now       func() time.Time
}

// serviceError is the {error_code, message, detail} envelope.
type serviceError struct {
	status    int
	ErrorCode string `json:"error_code" example:"BAD_INPUT"`
	Message   string `json:"message" example:"too short"`
	Detail    string `json:"detail,omitempty" example:"min 5 chars"`
}

func (e *serviceError) GetStatus() int { return e.status }
func (e *serviceError) Error() string  { return e.ErrorCode + ": " + e.Message }

// decideRequest mirrors domain.TicketRequest with the backend's length bounds.
type decideRequest struct {
	TicketText string `json:"ticket_text" minLength:"5" maxLength:"4000"`
}

type Server struct {
	cfg    Config
	router chi.Router

	mu   sync.Mutex
	runs []domain.HistoryItem // newest first

	failDecide  atomic.Bool
	failHistory atomic.Bool
}

// New returns the stub service as an http.Handler.
func New(cfg Config) (*Server, error) {
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = defaultModelVersion
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newServiceError(status, "", msg, errs)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newServiceError(status, "", msg, errs)
	}

	s := &Server{cfg: cfg, runs: []domain.HistoryItem{}}
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	hcfg := huma.DefaultConfig("Sentinel Decision Service (stub)", "v1")
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)

	registerHealth(api)
	registerDecide(api, s)
	registerHistory(api, s)

	s.router = router
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// InjectFaults makes subsequent decide and/or history calls fail with a
// service-reported error.
func (s *Server) InjectFaults(decide, history bool) {
	s.failDecide.Store(decide)
	s.failHistory.Store(history)
}

func newServiceError(status int, code, message string, errs []error) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	var details []string
	for _, err := range errs {
		if err != nil {
			details = append(details, err.Error())
		}
	}
	return &serviceError{
		status:    status,
		ErrorCode: code,
		Message:   message,
		Detail:    strings.Join(details, "; "),
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "BAD_INPUT"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusInternalServerError:
		return "INTERNAL_ERROR"
	default:
		return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Health `json:"body"`
	}, error) {
		return &struct {
			Body domain.Health `json:"body"`
		}{Body: domain.Health{OK: true, Service: "sentinel", Version: "v1"}}, nil
	})
}

func registerDecide(api huma.API, s *Server) {
	type decideInput struct {
		Body decideRequest
	}
	huma.Register(api, huma.Operation{
		OperationID: "decide",
		Method:      http.MethodPost,
		Path:        "/decide",
		Summary:     "Decide and evaluate a ticket",
	}, func(ctx context.Context, input *decideInput) (*struct {
		Body domain.DecisionResult `json:"body"`
	}, error) {
		res, err := s.decide(input.Body.TicketText)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body domain.DecisionResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerHistory(api huma.API, s *Server) {
	type historyInput struct {
		Limit int `query:"limit" default:"30" minimum:"1" maximum:"200"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "history",
		Method:      http.MethodGet,
		Path:        "/history",
		Summary:     "Most recent runs, newest first",
	}, func(ctx context.Context, input *historyInput) (*struct {
		Body domain.HistoryPage `json:"body"`
	}, error) {
		items, err := s.history(input.Limit)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body domain.HistoryPage `json:"body"`
		}{Body: domain.HistoryPage{Items: items}}, nil
	})
}

func (s *Server) decide(ticketText string) (domain.DecisionResult, error) {
	if s.failDecide.Load() {
		return domain.DecisionResult{}, &serviceError{
			status:    http.StatusInternalServerError,
			ErrorCode: "DECIDE_PIPELINE_FAILED",
			Message:   "Decision pipeline failed",
			Detail:    "fault injected",
		}
	}
	decision := Classify(ticketText)
	evaluation := Evaluate(ticketText, decision)
	res := domain.DecisionResult{
		RunID:      uuid.NewString(),
		Decision:   decision,
		Evaluation: evaluation,
	}
	item := domain.HistoryItem{
		ID:           res.RunID,
		TicketText:   ticketText,
		Decision:     toRecord(decision),
		Evaluation:   toRecord(evaluation),
		ModelVersion: s.cfg.ModelVersion,
		CreatedAt:    s.cfg.Now().UTC().Format(time.RFC3339Nano),
	}

	s.mu.Lock()
	s.runs = append([]domain.HistoryItem{item}, s.runs...)
	if len(s.runs) > s.cfg.Retention {
		s.runs = s.runs[:s.cfg.Retention]
	}
	s.mu.Unlock()
	return res, nil
}

func (s *Server) history(limit int) ([]domain.HistoryItem, error) {
	if s.failHistory.Load() {
		return nil, &serviceError{
			status:    http.StatusInternalServerError,
			ErrorCode: "HISTORY_FAILED",
			Message:   "History fetch failed",
			Detail:    "fault injected",
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.runs) {
		limit = len(s.runs)
	}
	out := make([]domain.HistoryItem, limit)
	copy(out, s.runs[:limit])
	return out, nil
}

// toRecord flattens v the way the backend stores it: as a JSON object.
func toRecord(v any) domain.Record {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.Record{}
	}
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Record{}
	}
	return rec
}
