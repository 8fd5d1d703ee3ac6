package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"orchestrator/pkg/logx"
)

// WellKnownSuffix is the standard agent card path appended to an agent's base URL.
const WellKnownSuffix = "/.well-known/agent.json"

// wireCard is the raw discovery document. Skills appear either nested under
// capabilities (A2A) or at the top level (ADK); the union is resolved here,
// once, into an AgentCard.
type wireCard struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	ProtocolVersion string  `json:"protocolVersion"`
	Skills          []Skill `json:"skills"`
	Capabilities    struct {
		Skills []Skill `json:"skills"`
	} `json:"capabilities"`
}

// effectiveSkills returns the first non-empty skill list of the two shapes.
func (w *wireCard) effectiveSkills() []Skill {
	if len(w.Skills) > 0 {
		return w.Skills
	}
	return w.Capabilities.Skills
}

// Discoverer fetches agent cards and populates the registry. Discovery passes
// are serialized: concurrent DiscoverAll calls never interleave writes.
type Discoverer struct {
	registry *Registry
	client   *http.Client
	logger   *logx.Logger
	passMu   sync.Mutex
}

// NewDiscoverer creates a discoverer with the given per-fetch timeout.
func NewDiscoverer(reg *Registry, timeout time.Duration) *Discoverer {
	return &Discoverer{
		registry: reg,
		client:   &http.Client{Timeout: timeout},
		logger:   logx.NewLogger("discovery"),
	}
}

// DiscoverAll fetches the card behind every endpoint and stores the results.
// A fetch failure is logged and that endpoint skipped; it never aborts the
// remaining endpoints. Returns the number of agents discovered in this pass.
func (d *Discoverer) DiscoverAll(ctx context.Context, endpoints []string) int {
	d.passMu.Lock()
	defer d.passMu.Unlock()

	d.logger.Info("Starting agent discovery across %d endpoints", len(endpoints))

	found := 0
	for _, endpoint := range endpoints {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			continue
		}

		card, err := d.discover(ctx, endpoint)
		if err != nil {
			d.logger.Error("Failed to discover agent at %s: %v", endpoint, err)
			continue
		}

		d.registry.Put(card)
		found++
		d.logger.Info("Discovered agent: %s (%d skills)", card.Name, len(card.Skills))
	}

	d.logger.Info("Discovery complete: %d agents known", d.registry.Len())
	return found
}

// discover fetches and resolves a single agent card.
func (d *Discoverer) discover(ctx context.Context, endpoint string) (AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return AgentCard{}, fmt.Errorf("failed to build discovery request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return AgentCard{}, fmt.Errorf("discovery fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AgentCard{}, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AgentCard{}, fmt.Errorf("failed to read discovery response: %w", err)
	}

	var wire wireCard
	if err := json.Unmarshal(body, &wire); err != nil {
		return AgentCard{}, fmt.Errorf("failed to parse agent card: %w", err)
	}

	name := wire.Name
	if name == "" {
		name = "unknown"
	}

	return AgentCard{
		Name:            name,
		Description:     wire.Description,
		ProtocolVersion: wire.ProtocolVersion,
		Skills:          wire.effectiveSkills(),
		DiscoveryURL:    endpoint,
		BaseURL:         strings.TrimSuffix(endpoint, WellKnownSuffix),
	}, nil
}
