// Package llmmock serves a chat-completion endpoint that echoes caller-chosen
// text back, either in one response or as a paced SSE stream.
//
// Two request shapes share the endpoint. The plain shape names the reply
// directly:
//
//	{"response_message": "Hello", "stream": true, "event_num": 5}
//
// The OpenAI-compatible shape sends chat messages and receives a reply
// synthesized from the user messages, in OpenAI's response format:
//
//	{"model": "gpt-4", "messages": [{"role": "user", "content": "Hi"}], "stream": true}
package llmmock

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-mocks/pkg/chunking"
	"github.com/polisai/polis-mocks/pkg/config"
	"github.com/polisai/polis-mocks/pkg/server"
	"github.com/polisai/polis-mocks/pkg/sse"
	"github.com/polisai/polis-mocks/pkg/telemetry"
)

// ServiceName labels the LLM mock in health answers, logs and metrics.
const ServiceName = "llm"

// Stream variants.
const (
	VariantPlain  = "plain"
	VariantOpenAI = "openai"
)

// Options configures a Service.
type Options struct {
	// Store supplies the live stream settings. Defaults apply when nil.
	Store   *config.StreamStore
	Metrics *server.Metrics
	Logger  *slog.Logger
	// Now stamps the created field of OpenAI responses.
	Now func() time.Time
}

// Service handles the LLM mock routes.
type Service struct {
	store   *config.StreamStore
	metrics *server.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates the LLM mock.
func New(opts Options) *Service {
	if opts.Store == nil {
		opts.Store = config.NewStreamStore(config.Default().Stream)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  opts.Logger.With("service", ServiceName),
		now:     opts.Now,
	}
}

// Handler returns the routes of the LLM mock.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/chat/completions", s.handleCompletions)
	return mux
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, server.HealthResponse{Status: "healthy", Service: ServiceName})
}

func (s *Service) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, err)
		return
	}

	settings := s.store.Load()
	if req.isOpenAI() {
		s.serveOpenAI(w, r, &req, settings)
		return
	}
	s.servePlain(w, r, &req, settings)
}

func (s *Service) servePlain(w http.ResponseWriter, r *http.Request, req *chatRequest, settings config.StreamConfig) {
	message, ok := req.message()
	if !ok {
		server.WriteError(w, server.NewValidationError("response_message is required"))
		return
	}

	if !req.Stream {
		server.WriteJSON(w, http.StatusOK, PlainResponse{
			Content:    message,
			TokensUsed: chunking.TokenCount(message),
		})
		return
	}

	eventCount := max(req.eventCount(settings.EventCount), 1)
	s.stream(w, r, streamJob{
		variant:   VariantPlain,
		interval:  settings.Interval,
		fragments: chunking.Fragments(message, eventCount),
		planned:   eventCount,
		chunk:     func(i int, fragment string) any { return plainChunk(i, fragment) },
		final:     plainFinalChunk(),
	})
}

func (s *Service) serveOpenAI(w http.ResponseWriter, r *http.Request, req *chatRequest, settings config.StreamConfig) {
	if req.Model == nil {
		server.WriteError(w, server.NewValidationError("model is required"))
		return
	}
	model := *req.Model

	reply, prompt := synthesizeReply(req.Messages, settings)
	created := s.now().Unix()

	if !req.Stream {
		server.WriteJSON(w, http.StatusOK, completionResponse(model, reply, prompt, created))
		return
	}

	chunkSize := max(settings.ChunkSize, 1)
	s.stream(w, r, streamJob{
		variant:   VariantOpenAI,
		interval:  settings.Interval,
		fragments: chunking.FixedSizeFragments(reply, chunkSize),
		planned:   (utf8.RuneCountInString(reply) + chunkSize - 1) / chunkSize,
		chunk: func(i int, fragment string) any {
			return streamChunk(model, created, i, fragment)
		},
		final: streamFinalChunk(model, created),
	})
}

type streamJob struct {
	variant   string
	interval  time.Duration
	fragments iter.Seq[string]
	planned   int
	chunk     func(index int, fragment string) any
	final     any
}

// stream replays job.fragments as SSE chunks, then the final chunk and the
// [DONE] sentinel. A client disconnect ends the stream silently.
func (s *Service) stream(w http.ResponseWriter, r *http.Request, job streamJob) {
	sw, err := sse.NewWriter(w)
	if err != nil {
		server.WriteError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("llm.variant", job.variant),
		attribute.Int("llm.fragments", job.planned),
	)

	start := time.Now()
	outcome := telemetry.OutcomeCancelled
	delivered := 0

	if s.metrics != nil {
		s.metrics.StreamStarted(job.variant)
	}
	defer func() {
		if s.metrics != nil {
			s.metrics.StreamFinished(job.variant, outcome)
		}
		telemetry.RecordStream(context.WithoutCancel(ctx), telemetry.StreamMetrics{
			Variant:   job.variant,
			Outcome:   outcome,
			Fragments: delivered,
			Duration:  time.Since(start),
		})
	}()

	streamer := chunking.NewStreamer(job.interval)
	for event := range streamer.Stream(ctx, job.fragments) {
		var payload any
		if event.Kind == chunking.EventDone {
			payload = job.final
		} else {
			payload = job.chunk(event.Index, event.Fragment)
		}

		if err := sw.WriteJSON(payload); err != nil {
			s.logger.Debug("Stream write failed", "variant", job.variant, "delivered", delivered, "error", err)
			return
		}

		if event.Kind == chunking.EventDone {
			if err := sw.WriteDone(); err != nil {
				s.logger.Debug("Stream write failed", "variant", job.variant, "delivered", delivered, "error", err)
				return
			}
			outcome = telemetry.OutcomeCompleted
			s.logger.Debug("Stream completed", "variant", job.variant, "fragments", delivered, "duration", time.Since(start))
			return
		}
		delivered++
	}

	s.logger.Debug("Stream cancelled", "variant", job.variant, "delivered", delivered, "error", ctx.Err())
}
