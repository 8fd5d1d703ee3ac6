// Package dispatch performs the outbound task call to a selected agent.
// It is shared by the synchronous API path and the queue processor.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"orchestrator/pkg/logx"
	"orchestrator/pkg/registry"
)

// taskRequest is the wire payload POSTed to {baseURL}/task.
type taskRequest struct {
	Task   string `json:"task"`
	UserID string `json:"user_id"`
}

// Dispatcher issues task calls against agents known to the registry.
type Dispatcher struct {
	registry *registry.Registry
	client   *http.Client
	logger   *logx.Logger
}

// NewDispatcher creates a dispatcher with the given per-call timeout.
func NewDispatcher(reg *registry.Registry, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		client:   &http.Client{Timeout: timeout},
		logger:   logx.NewLogger("dispatch"),
	}
}

// CallAgent executes task against the named agent and returns the result text.
//
// The call goes to the stored discovery-derived base URL, never to any URL in
// the card body. On success the response's "result" field is returned; if the
// body has no such field the whole body is returned verbatim, so an unexpected
// response shape alone never fails the call.
func (d *Dispatcher) CallAgent(ctx context.Context, agentName, task, userID string) (string, error) {
	card, ok := d.registry.Get(agentName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAgentNotFound, agentName)
	}
	if card.BaseURL == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingBaseURL, agentName)
	}

	taskURL := card.BaseURL + "/task"
	d.logger.Info("Calling %s at %s", agentName, taskURL)

	body, err := json.Marshal(taskRequest{Task: task, UserID: userID})
	if err != nil {
		return "", &Error{Agent: agentName, Cause: fmt.Errorf("failed to encode task payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, taskURL, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Agent: agentName, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return "", &Error{Agent: agentName, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Agent: agentName, Cause: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Agent: agentName, Cause: fmt.Errorf("agent returned status %d", resp.StatusCode)}
	}

	d.logger.Info("Agent %s answered in %v", agentName, time.Since(start).Round(time.Millisecond))
	return extractResult(respBody), nil
}

// extractResult pulls the "result" field out of the response body, falling
// back to the raw body when the shape is unexpected.
func extractResult(body []byte) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		if result, ok := parsed["result"].(string); ok {
			return result
		}
	}
	return string(body)
}
