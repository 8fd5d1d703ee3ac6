// Package routing selects the agent best suited for a free-text task.
//
// The router is a deterministic keyword matcher: auditable and cheap, at the
// cost of accuracy. Swapping in a semantic matcher is an extension point that
// leaves the surrounding contracts untouched.
package routing

import (
	"strings"

	"orchestrator/pkg/registry"
)

// Category keyword sets. A category fires when the task contains one of its
// trigger keywords AND the category's domain token appears in the agent's
// name/description (or, for skill-level checks, in a skill's name/description).
//
//nolint:gochecknoglobals // Static routing tables
var (
	burgerKeywords       = []string{"burger", "cheeseburger", "hamburger"}
	pizzaKeywords        = []string{"pizza", "pizzas", "margherita", "pepperoni"}
	illustrationKeywords = []string{"illustration", "illustrate", "draw", "image", "picture", "visual", "graphic"}
	currencyKeywords     = []string{"currency", "exchange", "convert"}
	travelKeywords       = []string{"restaurant", "attraction", "itinerary", "trip", "plan"}
)

// SelectAgent maps (task text, optional preferred agent, registry snapshot)
// to an agent name. Rules run in strict priority order:
//
//  1. A preferred agent present in the snapshot wins outright.
//  2. Agents are scanned in registry order. For each agent the
//     name/description-level burger, pizza, and illustration checks run
//     first; only if none hit does the per-skill loop run (illustration,
//     currency, travel, burger, pizza). The first agent satisfying any rule
//     wins; there is no scoring.
//  3. With no rule match the first agent is the stable default.
//
// Returns ("", false) only when the snapshot is empty.
func SelectAgent(task, preferredAgent string, agents []registry.AgentCard) (string, bool) {
	if preferredAgent != "" {
		for i := range agents {
			if agents[i].Name == preferredAgent {
				return preferredAgent, true
			}
		}
	}

	taskLower := strings.ToLower(task)

	for i := range agents {
		agent := &agents[i]
		nameLower := strings.ToLower(agent.Name)
		descLower := strings.ToLower(agent.Description)

		// Name/description-level checks first.
		if containsAny(taskLower, burgerKeywords) && hasToken("burger", nameLower, descLower) {
			return agent.Name, true
		}
		if containsAny(taskLower, pizzaKeywords) && hasToken("pizza", nameLower, descLower) {
			return agent.Name, true
		}
		if containsAny(taskLower, illustrationKeywords) && hasToken("illustrat", nameLower, descLower) {
			return agent.Name, true
		}

		// Skill-level checks.
		for j := range agent.Skills {
			skillName := strings.ToLower(agent.Skills[j].Name)
			skillDesc := strings.ToLower(agent.Skills[j].Description)

			if containsAny(taskLower, illustrationKeywords) && hasToken("illustrat", skillName, skillDesc) {
				return agent.Name, true
			}
			if containsAny(taskLower, currencyKeywords) && hasToken("currency", skillName, skillDesc) {
				return agent.Name, true
			}
			if containsAny(taskLower, travelKeywords) && containsAny(skillName, []string{"travel", "restaurant", "attraction"}) {
				return agent.Name, true
			}
			if containsAny(taskLower, burgerKeywords) && hasToken("burger", skillName, skillDesc, nameLower) {
				return agent.Name, true
			}
			if containsAny(taskLower, pizzaKeywords) && hasToken("pizza", skillName, skillDesc, nameLower) {
				return agent.Name, true
			}
		}
	}

	// Stable default: first agent in registry order.
	if len(agents) > 0 {
		return agents[0].Name, true
	}
	return "", false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func hasToken(token string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(f, token) {
			return true
		}
	}
	return false
}
