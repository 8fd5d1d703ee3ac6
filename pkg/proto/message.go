// Package proto defines the queue payloads exchanged between the API surface
// and the queue processor.
package proto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue names used by the orchestrator. Tasks flow into TaskQueue and the
// processor publishes results to ResponseQueue.
const (
	TaskQueue     = "agent-tasks"
	ResponseQueue = "agent-responses"
)

// AnonymousUser is the user ID assumed when a task message carries none.
const AnonymousUser = "anonymous"

// TaskMessage is the payload enqueued for asynchronous execution.
// Immutable once enqueued.
type TaskMessage struct {
	ID             string    `json:"id"`
	Task           string    `json:"task"`
	UserID         string    `json:"user_id"`
	PreferredAgent string    `json:"preferred_agent,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// ResponseMessage is the payload published after a queued task completes.
// Immutable once published.
type ResponseMessage struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	AgentUsed    string    `json:"agent_used"`
	Result       string    `json:"result"`
	OriginalTask string    `json:"original_task"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// NewTaskMessage builds a task message with a fresh ID and timestamp.
// An empty userID defaults to AnonymousUser.
func NewTaskMessage(task, userID, preferredAgent string) *TaskMessage {
	if userID == "" {
		userID = AnonymousUser
	}
	return &TaskMessage{
		ID:             uuid.NewString(),
		Task:           task,
		UserID:         userID,
		PreferredAgent: preferredAgent,
		EnqueuedAt:     time.Now().UTC(),
	}
}

// NewResponseMessage builds a response message for a completed task.
func NewResponseMessage(task *TaskMessage, agentUsed, result string) *ResponseMessage {
	return &ResponseMessage{
		ID:           uuid.NewString(),
		UserID:       task.UserID,
		AgentUsed:    agentUsed,
		Result:       result,
		OriginalTask: task.Task,
		EnqueuedAt:   time.Now().UTC(),
	}
}

func (m *TaskMessage) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("task message ID is required")
	}
	if m.Task == "" {
		return fmt.Errorf("task text is required")
	}
	return nil
}

func (m *TaskMessage) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TaskMessage: %w", err)
	}
	return data, nil
}

// TaskFromJSON decodes a task message, defaulting the user ID when absent.
func TaskFromJSON(data []byte) (*TaskMessage, error) {
	var msg TaskMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal TaskMessage: %w", err)
	}
	if msg.UserID == "" {
		msg.UserID = AnonymousUser
	}
	return &msg, nil
}

func (m *ResponseMessage) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ResponseMessage: %w", err)
	}
	return data, nil
}

func ResponseFromJSON(data []byte) (*ResponseMessage, error) {
	var msg ResponseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ResponseMessage: %w", err)
	}
	return &msg, nil
}
