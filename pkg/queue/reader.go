package queue

import (
	"context"
	"time"

	"orchestrator/pkg/logx"
	"orchestrator/pkg/proto"
)

// FilterAll matches every user when passed as the user filter.
const FilterAll = "all"

// ResponseRecord is one response returned to a polling caller.
type ResponseRecord struct {
	MessageID  string    `json:"message_id"`
	UserID     string    `json:"user_id"`
	AgentUsed  string    `json:"agent_used"`
	Response   string    `json:"response"`
	Task       string    `json:"original_task"`
	EnqueuedAt time.Time `json:"timestamp"`
}

// ResponseReader drains matching responses from the response queue.
// Reading is non-destructive for messages that belong to other callers:
// matched messages are completed, unmatched or unparseable ones abandoned.
type ResponseReader struct {
	broker Broker
	wait   time.Duration
	logger *logx.Logger
}

func NewResponseReader(broker Broker, wait time.Duration) *ResponseReader {
	return &ResponseReader{
		broker: broker,
		wait:   wait,
		logger: logx.NewLogger("responses"),
	}
}

// Fetch returns up to max response records whose user ID matches userFilter
// (or all records when userFilter is FilterAll). A failure after N matches
// still returns the N already collected.
func (r *ResponseReader) Fetch(ctx context.Context, userFilter string, max int) ([]ResponseRecord, error) {
	records := make([]ResponseRecord, 0, max)
	// Abandoned messages become visible again immediately; the seen set keeps
	// one Fetch from cycling over them forever.
	seen := make(map[string]bool)

	for len(records) < max {
		msgs, err := r.broker.ReceiveBatch(ctx, proto.ResponseQueue, max-len(records), r.wait)
		if err != nil {
			r.logger.Error("Response receive failed after %d records: %v", len(records), err)
			return records, err
		}
		if len(msgs) == 0 {
			break
		}

		fresh := 0
		for _, msg := range msgs {
			if seen[msg.ID] || len(records) >= max {
				// Redelivery of a message we already inspected, or batch
				// overshoot: hand it back.
				r.abandon(ctx, msg)
				continue
			}
			seen[msg.ID] = true
			fresh++

			response, err := proto.ResponseFromJSON(msg.Body)
			if err != nil {
				r.logger.Warn("Skipping unparseable response message %s: %v", msg.ID, err)
				r.abandon(ctx, msg)
				continue
			}

			if userFilter != FilterAll && response.UserID != userFilter {
				r.abandon(ctx, msg)
				continue
			}

			if err := r.broker.Complete(ctx, msg); err != nil {
				r.logger.Error("Failed to complete response message %s: %v", msg.ID, err)
				return records, err
			}
			records = append(records, ResponseRecord{
				MessageID:  msg.ID,
				UserID:     response.UserID,
				AgentUsed:  response.AgentUsed,
				Response:   response.Result,
				Task:       response.OriginalTask,
				EnqueuedAt: response.EnqueuedAt,
			})
		}

		if fresh == 0 {
			break
		}
	}

	return records, nil
}

func (r *ResponseReader) abandon(ctx context.Context, msg *Message) {
	if err := r.broker.Abandon(ctx, msg); err != nil {
		r.logger.Warn("Failed to abandon response message %s: %v", msg.ID, err)
	}
}
