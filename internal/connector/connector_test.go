package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffkos/form-ease-sub004/internal/common/errors"
	"github.com/jeffkos/form-ease-sub004/internal/common/utils"
)

func TestCatalogBuiltins(t *testing.T) {
	catalog := NewCatalog()

	for _, id := range []string{"slack", "salesforce", "hubspot", "google-workspace"} {
		d, err := catalog.Get(id)
		require.NoError(t, err, id)
		assert.NotEmpty(t, d.Capabilities, id)
		assert.NotEmpty(t, d.AuthTypes, id)
	}

	_, err := catalog.Get("fax-machine")
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))

	require.NoError(t, catalog.Register(Descriptor{ID: "custom", Name: "Custom"}))
	assert.Len(t, catalog.List(), 5)

	err = catalog.Register(Descriptor{})
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestConnectionsLifecycle(t *testing.T) {
	conns := NewConnections(NewCatalog())

	integration, err := conns.Connect("slack", "team slack", map[string]interface{}{
		"webhookUrl": "https://hooks.slack.com/T000",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfiguring, integration.Status)

	require.NoError(t, conns.SetStatus(integration.ID, StatusActive))
	got, err := conns.Get(integration.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)

	assert.Len(t, conns.List(), 1)

	require.NoError(t, conns.Disconnect(integration.ID))
	_, err = conns.Get(integration.ID)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))

	_, err = conns.Connect("unknown-service", "x", nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func fastOptions() InvokerOptions {
	opts := DefaultInvokerOptions()
	opts.Retry = utils.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Strategy:     utils.BackoffFixed,
	}
	return opts
}

func activeIntegration(t *testing.T) (*Connections, string) {
	t.Helper()
	conns := NewConnections(NewCatalog())
	integration, err := conns.Connect("slack", "test", nil)
	require.NoError(t, err)
	require.NoError(t, conns.SetStatus(integration.ID, StatusActive))
	return conns, integration.ID
}

func TestInvokeGetAndCache(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	conns, connID := activeIntegration(t)
	inv := NewInvoker(conns, server.Client(), fastOptions(), nil)

	resp, err := inv.Invoke(context.Background(), connID, Request{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.False(t, resp.FromCache)

	resp, err = inv.Invoke(context.Background(), connID, Request{URL: server.URL})
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))

	got, err := conns.Get(connID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Metrics.TotalRequests)
	assert.EqualValues(t, 1, got.Metrics.SuccessCount)
}

func TestInvokePostNotCached(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	conns, connID := activeIntegration(t)
	inv := NewInvoker(conns, server.Client(), fastOptions(), nil)

	req := Request{Method: http.MethodPost, URL: server.URL, Body: map[string]interface{}{"text": "hi"}}
	for i := 0; i < 2; i++ {
		resp, err := inv.Invoke(context.Background(), connID, req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.False(t, resp.FromCache)
	}
	assert.EqualValues(t, 2, atomic.LoadInt64(&hits))
}

func TestInvokeGraphQLShapes(t *testing.T) {
	var lastBody map[string]interface{}
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	conns, connID := activeIntegration(t)
	inv := NewInvoker(conns, server.Client(), fastOptions(), nil)

	query := Request{
		URL:       server.URL,
		GraphQL:   "query Leads($n: Int) { leads(first: $n) { id } }",
		Variables: map[string]interface{}{"n": 10},
	}
	_, err := inv.Invoke(context.Background(), connID, query)
	require.NoError(t, err)
	assert.Equal(t, query.GraphQL, lastBody["query"])
	assert.Equal(t, map[string]interface{}{"n": float64(10)}, lastBody["variables"])

	// queries are cacheable
	resp, err := inv.Invoke(context.Background(), connID, query)
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))

	// mutations are not
	mutation := Request{URL: server.URL, GraphQL: "mutation { createLead { id } }"}
	for i := 0; i < 2; i++ {
		resp, err = inv.Invoke(context.Background(), connID, mutation)
		require.NoError(t, err)
		assert.False(t, resp.FromCache)
	}
	assert.EqualValues(t, 3, atomic.LoadInt64(&hits))
}

func TestInvokeRetriesTransientStatus(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	conns, connID := activeIntegration(t)
	inv := NewInvoker(conns, server.Client(), fastOptions(), nil)

	resp, err := inv.Invoke(context.Background(), connID, Request{Method: http.MethodPost, URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt64(&hits))
}

func TestInvokeDoesNotRetryClientErrors(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	conns, connID := activeIntegration(t)
	inv := NewInvoker(conns, server.Client(), fastOptions(), nil)

	_, err := inv.Invoke(context.Background(), connID, Request{URL: server.URL})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))

	got, err := conns.Get(connID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Metrics.FailureCount)
}

func TestInvokeRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	conns, connID := activeIntegration(t)
	opts := fastOptions()
	opts.RateLimit = 2
	opts.RateWindow = time.Hour
	inv := NewInvoker(conns, server.Client(), opts, nil)

	// cache would absorb repeats; use distinct POSTs
	for i := 0; i < 2; i++ {
		_, err := inv.Invoke(context.Background(), connID, Request{Method: http.MethodPost, URL: server.URL})
		require.NoError(t, err)
	}
	_, err := inv.Invoke(context.Background(), connID, Request{Method: http.MethodPost, URL: server.URL})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeRateLimit))
}

func TestInvokeRequiresActiveIntegration(t *testing.T) {
	conns := NewConnections(NewCatalog())
	integration, err := conns.Connect("slack", "test", nil)
	require.NoError(t, err)

	inv := NewInvoker(conns, nil, fastOptions(), nil)
	_, err = inv.Invoke(context.Background(), integration.ID, Request{URL: "http://example.invalid"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConnection))

	_, err = inv.Invoke(context.Background(), "missing", Request{URL: "http://example.invalid"})
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}
