package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/pkg/registry"
)

func newTestRegistry(name, baseURL string) *registry.Registry {
	reg := registry.New()
	reg.Put(registry.AgentCard{Name: name, BaseURL: baseURL})
	return reg
}

func TestCallAgentSuccess(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": "two burgers coming up", "agent": "burger-agent"}`))
	}))
	defer srv.Close()

	d := NewDispatcher(newTestRegistry("burger-agent", srv.URL), 5*time.Second)

	result, err := d.CallAgent(context.Background(), "burger-agent", "two burgers", "alice")
	require.NoError(t, err)
	assert.Equal(t, "two burgers coming up", result)

	assert.Equal(t, "/task", gotPath)
	assert.Equal(t, "two burgers", gotPayload["task"])
	assert.Equal(t, "alice", gotPayload["user_id"])
}

func TestCallAgentRawBodyFallback(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "plain text body", body: "plain answer", want: "plain answer"},
		{name: "json without result field", body: `{"answer": "42"}`, want: `{"answer": "42"}`},
		{name: "non-string result field", body: `{"result": 7}`, want: `{"result": 7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			d := NewDispatcher(newTestRegistry("agent", srv.URL), 5*time.Second)
			result, err := d.CallAgent(context.Background(), "agent", "task", "u")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestCallAgentNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(newTestRegistry("agent", srv.URL), 5*time.Second)

	_, err := d.CallAgent(context.Background(), "agent", "task", "u")
	require.Error(t, err)

	var dispatchErr *Error
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, "agent", dispatchErr.Agent)
	assert.Contains(t, err.Error(), "500")
}

func TestCallAgentConnectionRefused(t *testing.T) {
	d := NewDispatcher(newTestRegistry("agent", "http://127.0.0.1:1"), time.Second)

	_, err := d.CallAgent(context.Background(), "agent", "task", "u")
	require.Error(t, err)
	assert.True(t, IsDispatchError(err))
}

func TestCallAgentUnknownAgent(t *testing.T) {
	d := NewDispatcher(registry.New(), time.Second)

	_, err := d.CallAgent(context.Background(), "ghost", "task", "u")
	require.ErrorIs(t, err, ErrAgentNotFound)
}

func TestCallAgentMissingBaseURL(t *testing.T) {
	d := NewDispatcher(newTestRegistry("agent", ""), time.Second)

	_, err := d.CallAgent(context.Background(), "agent", "task", "u")
	require.ErrorIs(t, err, ErrMissingBaseURL)
}

func TestCallAgentContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	d := NewDispatcher(newTestRegistry("agent", srv.URL), 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.CallAgent(ctx, "agent", "task", "u")
	require.Error(t, err)
}
