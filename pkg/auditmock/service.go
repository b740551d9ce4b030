// Package auditmock serves a moderation endpoint that flags caller-chosen
// words found in the submitted content.
package auditmock

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-mocks/pkg/audit"
	"github.com/polisai/polis-mocks/pkg/server"
	"github.com/polisai/polis-mocks/pkg/telemetry"
)

// ServiceName labels the audit mock in health answers, logs and metrics.
const ServiceName = "audit"

// Request is the body of POST /audit. The camelCase keys are accepted as
// aliases of the snake_case ones.
type Request struct {
	Content             *string   `json:"content"`
	UnhealthyWords      *[]string `json:"unhealthy_words"`
	UnhealthyWordsAlias *[]string `json:"unhealthyWords"`
	CustomErrorMessage  *string   `json:"custom_error_message"`
	CustomMessageAlias  *string   `json:"customErrorMessage"`
}

// Response is the verdict returned by POST /audit. ErrorMessage is null
// unless the content is unsafe and the caller supplied a message.
type Response struct {
	IsSafe       bool     `json:"is_safe"`
	FlaggedWords []string `json:"flagged_words"`
	ErrorMessage *string  `json:"error_message"`
}

// toAudit validates r and converts it to the core request.
func (r *Request) toAudit() (audit.Request, error) {
	if r.Content == nil {
		return audit.Request{}, server.NewValidationError("content is required")
	}

	words := r.UnhealthyWords
	if words == nil {
		words = r.UnhealthyWordsAlias
	}
	if words == nil {
		return audit.Request{}, server.NewValidationError("unhealthy_words is required")
	}

	req := audit.Request{Content: *r.Content, TargetWords: *words}
	switch {
	case r.CustomErrorMessage != nil:
		req.CustomMessage = *r.CustomErrorMessage
	case r.CustomMessageAlias != nil:
		req.CustomMessage = *r.CustomMessageAlias
	}
	return req, nil
}

func newResponse(result audit.Result) Response {
	resp := Response{
		IsSafe:       result.IsSafe,
		FlaggedWords: result.FlaggedWords,
	}
	if result.ErrorMessage != "" {
		msg := result.ErrorMessage
		resp.ErrorMessage = &msg
	}
	return resp
}

// Service handles the audit mock routes.
type Service struct {
	metrics *server.Metrics
	logger  *slog.Logger
}

// New creates the audit mock. metrics may be nil.
func New(metrics *server.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		metrics: metrics,
		logger:  logger.With("service", ServiceName),
	}
}

// Handler returns the routes of the audit mock.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /audit", s.handleAudit)
	return mux
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, server.HealthResponse{Status: "healthy", Service: ServiceName})
}

func (s *Service) handleAudit(w http.ResponseWriter, r *http.Request) {
	var body Request
	if err := server.DecodeJSON(r, &body); err != nil {
		server.WriteError(w, err)
		return
	}

	req, err := body.toAudit()
	if err != nil {
		server.WriteError(w, err)
		return
	}

	result := audit.Audit(req)

	ctx := r.Context()
	telemetry.RecordAudit(ctx, result.IsSafe, len(result.FlaggedWords))
	telemetry.RecordAuditEvent(trace.SpanFromContext(ctx), result.IsSafe, len(result.FlaggedWords))
	if s.metrics != nil {
		s.metrics.RecordAuditVerdict(result.IsSafe)
	}
	s.logger.Debug("Content audited",
		"safe", result.IsSafe,
		"flagged", result.FlaggedWords,
		"targets", len(req.TargetWords),
	)

	server.WriteJSON(w, http.StatusOK, newResponse(result))
}
