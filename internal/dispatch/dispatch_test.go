package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elastic/file-to-elasticsearch/internal/config"
)

func newTestDispatcher(t *testing.T, srv *httptest.Server) *Dispatcher {
	t.Helper()
	host := strings.TrimPrefix(srv.URL, "http://")
	return New(Config{Servers: []string{host}, Timeout: time.Second})
}

func TestSendCountsPerItemErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"took":1,"errors":true,"items":[{"index":{"status":201}},{"index":{"status":400,"error":{"type":"mapper_parsing_exception"}}}]}`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv)
	result := d.Send(context.Background(), "batch1", []byte("{}\n{}\n"))

	require.True(t, result.Success)
	require.Equal(t, 2, result.Items)
	require.Equal(t, 1, result.Errors)
}

func TestSendTreatsHTTPErrorStatusAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv)
	result := d.Send(context.Background(), "batch1", []byte("{}\n"))

	require.False(t, result.Success)
	require.Error(t, result.Err)
}

func TestSendTreats2xxUndecodableBodyAsSuccessWithNoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv)
	result := d.Send(context.Background(), "batch1", []byte("{}\n"))

	require.True(t, result.Success)
	require.Zero(t, result.Items)
}

func TestSendWithNoServersConfigured(t *testing.T) {
	d := New(Config{Timeout: time.Second})
	result := d.Send(context.Background(), "batch1", []byte("{}\n"))
	require.Error(t, result.Err)
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_cluster/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv)
	require.NoError(t, d.HealthCheck(context.Background()))
}

func TestSyncTemplatesAggregatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv)
	err := d.SyncTemplates(context.Background(), []config.DynamicTemplate{
		{Name: "logs", Body: []byte(`{}`)},
	})
	require.Error(t, err)
}

func TestSyncTemplatesSkipsUpToDateTemplate(t *testing.T) {
	body := []byte(`{"mappings":{}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write(body)
			return
		}
		t.Fatal("should not PUT an unchanged template")
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv)
	err := d.SyncTemplates(context.Background(), []config.DynamicTemplate{
		{Name: "logs", Body: body},
	})
	require.NoError(t, err)
}
