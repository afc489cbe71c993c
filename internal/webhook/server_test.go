package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffkos/form-ease-sub004/internal/common/ratelimit"
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

type recordingSink struct {
	events  []triggers.Event
	results []triggers.ExecutionResult
	err     error
}

func (r *recordingSink) HandleEvent(_ context.Context, eventType string, data map[string]interface{}) ([]triggers.ExecutionResult, error) {
	r.events = append(r.events, triggers.Event{Type: eventType, Data: data})
	return r.results, r.err
}

func webhookTrigger(id, path, method, secret string) *triggers.Trigger {
	return &triggers.Trigger{
		ID:    id,
		Type:  triggers.TypeWebhook,
		Event: "external.ping",
		Webhook: &triggers.WebhookBinding{
			Path:   path,
			Method: method,
			Secret: secret,
		},
	}
}

func post(t *testing.T, handler http.Handler, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDispatchBoundPath(t *testing.T) {
	sink := &recordingSink{results: []triggers.ExecutionResult{{TriggerID: "t1", Success: true}}}
	server := NewServer(":0", sink, ratelimit.DefaultConfig(), nil)
	server.TriggerRegistered(webhookTrigger("t1", "/hooks/ping", "", ""))

	rec := post(t, server.Handler(), "/hooks/ping", map[string]interface{}{"source": "partner"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["received"])
	assert.EqualValues(t, 1, resp["triggersExecuted"])
	assert.EqualValues(t, 1, resp["successCount"])

	require.Len(t, sink.events, 1)
	assert.Equal(t, "external.ping", sink.events[0].Type)
	assert.Equal(t, "partner", sink.events[0].Data["source"])
	assert.Equal(t, true, sink.events[0].Data["webhook"])
}

func TestDispatchUnboundPath(t *testing.T) {
	server := NewServer(":0", &recordingSink{}, ratelimit.DefaultConfig(), nil)
	rec := post(t, server.Handler(), "/hooks/nothing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatchMethodMismatch(t *testing.T) {
	sink := &recordingSink{}
	server := NewServer(":0", sink, ratelimit.DefaultConfig(), nil)
	server.TriggerRegistered(webhookTrigger("t1", "/hooks/ping", http.MethodPut, ""))

	rec := post(t, server.Handler(), "/hooks/ping", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, sink.events)
}

func TestDispatchSecret(t *testing.T) {
	sink := &recordingSink{}
	server := NewServer(":0", sink, ratelimit.DefaultConfig(), nil)
	server.TriggerRegistered(webhookTrigger("t1", "/hooks/secure", "", "s3cret"))

	rec := post(t, server.Handler(), "/hooks/secure", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, server.Handler(), "/hooks/secure", nil, map[string]string{"X-Webhook-Secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, server.Handler(), "/hooks/secure", nil, map[string]string{"X-Webhook-Secret": "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, sink.events, 1)
}

func TestDispatchInvalidBody(t *testing.T) {
	server := NewServer(":0", &recordingSink{}, ratelimit.DefaultConfig(), nil)
	server.TriggerRegistered(webhookTrigger("t1", "/hooks/ping", "", ""))

	req := httptest.NewRequest(http.MethodPost, "/hooks/ping", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBindingLifecycle(t *testing.T) {
	sink := &recordingSink{}
	server := NewServer(":0", sink, ratelimit.DefaultConfig(), nil)

	// non-webhook triggers never bind
	server.TriggerRegistered(&triggers.Trigger{ID: "t0", Type: triggers.TypeImmediate, Event: "e"})
	rec := post(t, server.Handler(), "/", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	server.TriggerRegistered(webhookTrigger("t1", "hooks/ping", "", "")) // missing slash is normalized
	rec = post(t, server.Handler(), "/hooks/ping", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	server.TriggerUnregistered("t1")
	rec = post(t, server.Handler(), "/hooks/ping", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatchRateLimited(t *testing.T) {
	sink := &recordingSink{}
	server := NewServer(":0", sink, ratelimit.Config{
		Enabled:           true,
		RequestsPerSecond: 1,
		BurstSize:         1,
		MaxKeys:           16,
		CleanupPeriod:     time.Minute,
	}, nil)
	server.TriggerRegistered(webhookTrigger("t1", "/hooks/ping", "", ""))

	rec := post(t, server.Handler(), "/hooks/ping", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, server.Handler(), "/hooks/ping", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, sink.events, 1)
}

func TestDuplicatePathKeepsFirstBinding(t *testing.T) {
	sink := &recordingSink{}
	server := NewServer(":0", sink, ratelimit.DefaultConfig(), nil)
	server.TriggerRegistered(webhookTrigger("t1", "/hooks/ping", "", ""))

	second := webhookTrigger("t2", "/hooks/ping", "", "")
	second.Event = "external.other"
	server.TriggerRegistered(second)

	rec := post(t, server.Handler(), "/hooks/ping", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "external.ping", sink.events[0].Type)

	// the rejected trigger left no binding to clean up
	server.TriggerUnregistered("t2")
	rec = post(t, server.Handler(), "/hooks/ping", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	server := NewServer(":0", &recordingSink{}, ratelimit.DefaultConfig(), nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
