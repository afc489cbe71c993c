// Package webhook exposes inbound HTTP endpoints bound to webhook triggers.
// Bindings follow the trigger lifecycle: registering a webhook trigger opens
// its path, unregistering closes it.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/jeffkos/form-ease-sub004/internal/common/logging"
	"github.com/jeffkos/form-ease-sub004/internal/common/ratelimit"
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

// secretHeader carries the shared secret for protected bindings
const secretHeader = "X-Webhook-Secret"

// EventSink receives the events synthesized from inbound webhook calls
type EventSink interface {
	HandleEvent(ctx context.Context, eventType string, data map[string]interface{}) ([]triggers.ExecutionResult, error)
}

type binding struct {
	triggerID string
	event     string
	method    string
	secret    string
}

// Server routes inbound webhook requests to their bound triggers
type Server struct {
	mu       sync.RWMutex
	byPath   map[string]*binding
	byID     map[string]string // triggerID -> path

	sink    EventSink
	limiter *ratelimit.TokenBucket
	router  *mux.Router
	srv     *http.Server
	logger  logging.Logger
}

// NewServer creates a webhook server delivering to sink. Inbound requests are
// rate-limited per bound path with a token bucket.
func NewServer(addr string, sink EventSink, limits ratelimit.Config, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.String("component", "webhook_server"))

	limiter, err := ratelimit.NewTokenBucket(limits)
	if err != nil {
		logger.Warn("Invalid webhook rate limit config, limiting disabled", logging.Err(err))
	}

	s := &Server{
		byPath:  make(map[string]*binding),
		byID:    make(map[string]string),
		sink:    sink,
		limiter: limiter,
		logger:  logger,
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	s.router.PathPrefix("/").HandlerFunc(s.dispatch)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// TriggerRegistered opens a binding for webhook triggers
func (s *Server) TriggerRegistered(trigger *triggers.Trigger) {
	if trigger.Type != triggers.TypeWebhook || trigger.Webhook == nil || trigger.Webhook.Path == "" {
		return
	}

	b := &binding{
		triggerID: trigger.ID,
		event:     trigger.Event,
		method:    strings.ToUpper(trigger.Webhook.Method),
		secret:    trigger.Webhook.Secret,
	}
	if b.method == "" {
		b.method = http.MethodPost
	}
	path := normalizePath(trigger.Webhook.Path)

	s.mu.Lock()
	if existing, taken := s.byPath[path]; taken && existing.triggerID != trigger.ID {
		s.mu.Unlock()
		s.logger.Warn("Webhook path already bound, ignoring trigger",
			logging.String("path", path),
			logging.String("bound_trigger_id", existing.triggerID),
			logging.String("trigger_id", trigger.ID),
		)
		return
	}
	s.byPath[path] = b
	s.byID[trigger.ID] = path
	s.mu.Unlock()

	s.logger.Info("Webhook binding opened",
		logging.String("trigger_id", trigger.ID),
		logging.String("path", path),
		logging.String("method", b.method),
	)
}

// TriggerUnregistered closes the trigger's binding, if any
func (s *Server) TriggerUnregistered(triggerID string) {
	s.mu.Lock()
	path, ok := s.byID[triggerID]
	if ok {
		delete(s.byID, triggerID)
		delete(s.byPath, path)
	}
	s.mu.Unlock()

	if ok {
		s.logger.Info("Webhook binding closed",
			logging.String("trigger_id", triggerID),
			logging.String("path", path),
		)
	}
}

// Start begins serving in the background
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Webhook server stopped", err)
		}
	}()
	s.logger.Info("Webhook server listening", logging.String("addr", s.srv.Addr))
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)

	s.mu.RLock()
	b, ok := s.byPath[path]
	s.mu.RUnlock()

	if !ok {
		http.Error(w, "no webhook bound to this path", http.StatusNotFound)
		return
	}
	if s.limiter != nil && !s.limiter.TryAcquireForKey(path) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if r.Method != b.method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if b.secret != "" {
		provided := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(b.secret)) != 1 {
			http.Error(w, "invalid webhook secret", http.StatusUnauthorized)
			return
		}
	}

	data := map[string]interface{}{}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil && err != io.EOF {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	data["webhook"] = true
	data["webhookPath"] = path

	results, err := s.sink.HandleEvent(r.Context(), b.event, data)
	if err != nil {
		s.logger.Error("Webhook event dispatch failed", err,
			logging.String("path", path),
			logging.String("event", b.event),
		)
		http.Error(w, "event dispatch failed", http.StatusInternalServerError)
		return
	}

	successes := 0
	for _, result := range results {
		if result.Success {
			successes++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"received":         true,
		"triggersExecuted": len(results),
		"successCount":     successes,
	})
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
