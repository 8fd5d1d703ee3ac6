// Package registry maintains the set of discovered agents and their capability cards.
package registry

import "sync"

// Skill is a named agent capability used for routing.
type Skill struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples,omitempty"`
}

// AgentCard is the canonical descriptor of one discovered agent, resolved once
// at discovery time from either wire shape (A2A nested capabilities or ADK
// top-level skills).
type AgentCard struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	ProtocolVersion string  `json:"protocol_version,omitempty"`
	Skills          []Skill `json:"skills"`

	// DiscoveryURL is the endpoint the card was fetched from.
	DiscoveryURL string `json:"discovery_url"`
	// BaseURL is DiscoveryURL minus the well-known suffix. All task calls go
	// here, never to any URL embedded in the card itself: card URLs may be
	// loopback addresses unreachable from the orchestrator.
	BaseURL string `json:"base_url"`
}

// Registry maps agent name to card. Cards are written only by discovery
// passes (serialized by the Discoverer) and read by router, dispatcher, and
// listing. Iteration order is first-insertion order, which the router relies
// on for its stable default fallback.
type Registry struct {
	mu    sync.RWMutex
	cards map[string]AgentCard
	order []string
}

func New() *Registry {
	return &Registry{
		cards: make(map[string]AgentCard),
	}
}

// Put inserts or wholesale-overwrites the card for card.Name. The first
// insertion of a name fixes its position in iteration order.
func (r *Registry) Put(card AgentCard) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cards[card.Name]; !exists {
		r.order = append(r.order, card.Name)
	}
	r.cards[card.Name] = card
}

// Get returns the card for name, if known.
func (r *Registry) Get(name string) (AgentCard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	card, ok := r.cards[name]
	return card, ok
}

// List returns a snapshot of all cards in insertion order.
func (r *Registry) List() []AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cards := make([]AgentCard, 0, len(r.order))
	for _, name := range r.order {
		cards = append(cards, r.cards[name])
	}
	return cards
}

// Names returns the known agent names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of known agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cards)
}
