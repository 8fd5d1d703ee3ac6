package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cardServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, WellKnownSuffix, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverA2AShape(t *testing.T) {
	srv := cardServer(t, `{
		"name": "travel-agent",
		"description": "Helps plan trips",
		"protocolVersion": "0.2.1",
		"capabilities": {
			"skills": [
				{"id": "travel", "name": "Travel Planning", "description": "Find restaurants"}
			]
		}
	}`)

	reg := New()
	d := NewDiscoverer(reg, 5*time.Second)

	found := d.DiscoverAll(context.Background(), []string{srv.URL + WellKnownSuffix})
	assert.Equal(t, 1, found)

	card, ok := reg.Get("travel-agent")
	require.True(t, ok)
	assert.Equal(t, "0.2.1", card.ProtocolVersion)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "Travel Planning", card.Skills[0].Name)
	assert.Equal(t, srv.URL, card.BaseURL)
	assert.Equal(t, srv.URL+WellKnownSuffix, card.DiscoveryURL)
}

func TestDiscoverADKShape(t *testing.T) {
	srv := cardServer(t, `{
		"name": "burger-agent",
		"description": "Takes burger orders",
		"skills": [
			{"id": "order", "name": "Order Burgers", "description": "Place an order"}
		]
	}`)

	reg := New()
	d := NewDiscoverer(reg, 5*time.Second)

	found := d.DiscoverAll(context.Background(), []string{srv.URL + WellKnownSuffix})
	assert.Equal(t, 1, found)

	card, ok := reg.Get("burger-agent")
	require.True(t, ok)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "Order Burgers", card.Skills[0].Name)
}

func TestDiscoverTopLevelSkillsWin(t *testing.T) {
	// When both shapes are present the top-level list is authoritative.
	srv := cardServer(t, `{
		"name": "dual-agent",
		"skills": [{"name": "Top"}],
		"capabilities": {"skills": [{"name": "Nested"}]}
	}`)

	reg := New()
	d := NewDiscoverer(reg, 5*time.Second)
	d.DiscoverAll(context.Background(), []string{srv.URL + WellKnownSuffix})

	card, ok := reg.Get("dual-agent")
	require.True(t, ok)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "Top", card.Skills[0].Name)
}

func TestDiscoverUnnamedAgent(t *testing.T) {
	srv := cardServer(t, `{"description": "card without a name"}`)

	reg := New()
	d := NewDiscoverer(reg, 5*time.Second)
	found := d.DiscoverAll(context.Background(), []string{srv.URL + WellKnownSuffix})
	assert.Equal(t, 1, found)

	_, ok := reg.Get("unknown")
	assert.True(t, ok)
}

func TestDiscoverPartialFailure(t *testing.T) {
	good := cardServer(t, `{"name": "good-agent"}`)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(bad.Close)

	reg := New()
	d := NewDiscoverer(reg, 5*time.Second)

	found := d.DiscoverAll(context.Background(), []string{
		bad.URL + WellKnownSuffix,
		"http://127.0.0.1:1" + WellKnownSuffix, // connection refused
		good.URL + WellKnownSuffix,
	})

	// One endpoint succeeded; the failures did not abort the pass.
	assert.Equal(t, 1, found)
	assert.Equal(t, []string{"good-agent"}, reg.Names())
}

func TestDiscoverBadJSON(t *testing.T) {
	srv := cardServer(t, `{not json`)

	reg := New()
	d := NewDiscoverer(reg, 5*time.Second)
	found := d.DiscoverAll(context.Background(), []string{srv.URL + WellKnownSuffix})

	assert.Equal(t, 0, found)
	assert.Equal(t, 0, reg.Len())
}

func TestDiscoverSkipsBlankEndpoints(t *testing.T) {
	reg := New()
	d := NewDiscoverer(reg, time.Second)

	found := d.DiscoverAll(context.Background(), []string{"", "   "})
	assert.Equal(t, 0, found)
}

func TestDiscoverRediscoveryOverwrites(t *testing.T) {
	first := cardServer(t, `{"name": "agent", "description": "v1"}`)
	second := cardServer(t, `{"name": "agent", "description": "v2"}`)

	reg := New()
	d := NewDiscoverer(reg, 5*time.Second)

	d.DiscoverAll(context.Background(), []string{first.URL + WellKnownSuffix})
	d.DiscoverAll(context.Background(), []string{second.URL + WellKnownSuffix})

	card, ok := reg.Get("agent")
	require.True(t, ok)
	assert.Equal(t, "v2", card.Description)
	assert.Equal(t, second.URL, card.BaseURL)
	assert.Equal(t, 1, reg.Len())
}
