package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// TaskStats represents aggregated task metrics for the dashboard.
type TaskStats struct {
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed"`
	DeadLetters    int64 `json:"dead_letters"`
}

// QueryService queries aggregated orchestrator metrics from a Prometheus
// server. Optional: the dashboard degrades gracefully without one.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a metrics query service against prometheusURL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetTaskStats retrieves aggregate completed/failed/dead-letter counts across
// all agents and modes.
func (q *QueryService) GetTaskStats(ctx context.Context) (*TaskStats, error) {
	stats := &TaskStats{}

	completed, err := q.scalarQuery(ctx, `sum(orchestrator_tasks_total{status="success"})`)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed tasks: %w", err)
	}
	stats.TasksCompleted = completed

	failed, err := q.scalarQuery(ctx, `sum(orchestrator_tasks_total{status="error"})`)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed tasks: %w", err)
	}
	stats.TasksFailed = failed

	dead, err := q.scalarQuery(ctx, `sum(orchestrator_dead_letters_total)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	stats.DeadLetters = dead

	return stats, nil
}

func (q *QueryService) scalarQuery(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}
