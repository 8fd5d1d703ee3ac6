// Package kernel wires the orchestrator subsystems together and owns their
// startup and shutdown order.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"orchestrator/pkg/config"
	"orchestrator/pkg/dispatch"
	"orchestrator/pkg/eventlog"
	"orchestrator/pkg/logx"
	"orchestrator/pkg/metrics"
	"orchestrator/pkg/proto"
	"orchestrator/pkg/queue"
	"orchestrator/pkg/registry"
	"orchestrator/pkg/routing"

	"github.com/google/uuid"
)

// Errors surfaced to the API layer.
var (
	// ErrNoAgentsAvailable means the registry was empty at dispatch time.
	ErrNoAgentsAvailable = errors.New("no agents available")
	// ErrNoSuitableAgent means the router found no agent despite a non-empty registry.
	ErrNoSuitableAgent = errors.New("no suitable agent found")
)

// SyncResult is the outcome of a synchronous task execution.
type SyncResult struct {
	Result    string `json:"result"`
	AgentUsed string `json:"agent_used"`
}

// Kernel is the composition root: registry, discovery, dispatcher, queue
// broker, processor, and response reader, with lifecycle management.
type Kernel struct {
	cfg        config.Config
	logger     *logx.Logger
	registry   *registry.Registry
	discoverer *registry.Discoverer
	dispatcher *dispatch.Dispatcher
	recorder   *metrics.Recorder
	events     *eventlog.Writer

	broker    queue.Broker
	processor *queue.Processor
	reader    *queue.ResponseReader

	cron       *cron.Cron
	cancelRun  context.CancelFunc
	processorW sync.WaitGroup
	started    bool
	mu         sync.Mutex
}

// New builds a kernel from config. The queue substrate is optional: with no
// queue path configured the async path reports unavailable and the sync path
// still works.
func New(cfg config.Config, recorder *metrics.Recorder) (*Kernel, error) {
	reg := registry.New()

	k := &Kernel{
		cfg:        cfg,
		logger:     logx.NewLogger("kernel"),
		registry:   reg,
		discoverer: registry.NewDiscoverer(reg, cfg.DiscoveryTimeout()),
		dispatcher: dispatch.NewDispatcher(reg, cfg.DispatchTimeout()),
		recorder:   recorder,
	}

	if cfg.EventLogDir != "" {
		events, err := eventlog.NewWriter(cfg.EventLogDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create event log: %w", err)
		}
		k.events = events
	}

	if cfg.AsyncEnabled() {
		broker, err := queue.NewSQLiteBroker(cfg.Queue.Path, cfg.QueueLock(), uuid.NewString)
		if err != nil {
			return nil, fmt.Errorf("failed to open queue broker: %w", err)
		}
		k.broker = broker
		k.processor = queue.NewProcessor(broker, reg, k.dispatcher, queue.ProcessorConfig{
			BatchSize: cfg.Queue.BatchSize,
			Wait:      cfg.QueueWait(),
			Backoff:   cfg.QueueBackoff(),
		}, recorder, k.events)
		k.reader = queue.NewResponseReader(broker, cfg.QueueWait())
	} else {
		k.logger.Warn("Queue path not configured, async task path disabled")
	}

	return k, nil
}

// Start runs the initial discovery pass, starts the queue processor, and
// schedules periodic re-discovery when configured.
func (k *Kernel) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return fmt.Errorf("kernel is already running")
	}
	k.started = true

	k.Discover(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	k.cancelRun = cancel

	if k.processor != nil {
		k.processorW.Add(1)
		go func() {
			defer k.processorW.Done()
			_ = k.processor.Run(runCtx)
		}()
		k.logger.Info("Queue processor started")
	}

	if spec := k.cfg.Discovery.RefreshCron; spec != "" {
		k.cron = cron.New()
		if _, err := k.cron.AddFunc(spec, func() {
			k.Discover(runCtx)
		}); err != nil {
			cancel()
			return fmt.Errorf("invalid discovery refresh schedule %q: %w", spec, err)
		}
		k.cron.Start()
		k.logger.Info("Scheduled discovery refresh: %s", spec)
	}

	return nil
}

// Stop cancels the processor loop, waits for in-flight work to drain, and
// releases the broker and event log.
func (k *Kernel) Stop(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.started {
		return nil
	}
	k.started = false

	if k.cron != nil {
		cronCtx := k.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}

	if k.cancelRun != nil {
		k.cancelRun()
	}

	done := make(chan struct{})
	go func() {
		k.processorW.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		k.logger.Warn("Processor drain timed out")
	}

	if k.broker != nil {
		if err := k.broker.Close(); err != nil {
			k.logger.Error("Failed to close queue broker: %v", err)
		}
	}
	if k.events != nil {
		if err := k.events.Close(); err != nil {
			k.logger.Error("Failed to close event log: %v", err)
		}
	}

	k.logger.Info("Kernel stopped")
	return nil
}

// Discover triggers a discovery pass over the configured endpoints and
// returns the number of agents discovered in this pass.
func (k *Kernel) Discover(ctx context.Context) int {
	found := k.discoverer.DiscoverAll(ctx, k.cfg.AgentEndpoints)
	k.recorder.SetDiscoveredAgents(k.registry.Len())
	if k.events != nil {
		_ = k.events.Write(&eventlog.Event{
			Kind:   eventlog.KindDiscovery,
			Detail: fmt.Sprintf("%d agents discovered, %d known", found, k.registry.Len()),
		})
	}
	return found
}

// ListAgents returns a snapshot of the known agents.
func (k *Kernel) ListAgents() []registry.AgentCard {
	return k.registry.List()
}

// AgentNames returns the known agent names in registry order.
func (k *Kernel) AgentNames() []string {
	return k.registry.Names()
}

// ExecuteSync routes and dispatches a task, returning the result immediately.
func (k *Kernel) ExecuteSync(ctx context.Context, task, userID, preferredAgent string) (*SyncResult, error) {
	agents := k.registry.List()
	if len(agents) == 0 {
		return nil, ErrNoAgentsAvailable
	}

	selected, ok := routing.SelectAgent(task, preferredAgent, agents)
	if !ok {
		return nil, ErrNoSuitableAgent
	}

	start := time.Now()
	result, err := k.dispatcher.CallAgent(ctx, selected, task, userID)
	k.recorder.ObserveTask(selected, "sync", err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}

	if k.events != nil {
		_ = k.events.Write(&eventlog.Event{
			Kind:   eventlog.KindCompleted,
			Agent:  selected,
			UserID: userID,
			Task:   task,
		})
	}
	return &SyncResult{Result: result, AgentUsed: selected}, nil
}

// ExecuteAsync enqueues a task for background processing and returns the
// message ID. Fails with queue.ErrUnavailable when no broker is configured.
func (k *Kernel) ExecuteAsync(ctx context.Context, task, userID, preferredAgent string) (string, error) {
	if k.broker == nil {
		return "", queue.ErrUnavailable
	}

	msg := proto.NewTaskMessage(task, userID, preferredAgent)
	body, err := msg.ToJSON()
	if err != nil {
		return "", err
	}

	id, err := k.broker.Send(ctx, proto.TaskQueue, body)
	if err != nil {
		return "", err
	}

	if k.events != nil {
		_ = k.events.Write(&eventlog.Event{
			Kind:      eventlog.KindDispatched,
			MessageID: id,
			UserID:    msg.UserID,
			Task:      task,
		})
	}
	k.logger.Info("Task queued from %s: %s (message %s)", msg.UserID, task, id)
	return id, nil
}

// FetchResponses returns queued responses for userFilter ("all" matches every user).
func (k *Kernel) FetchResponses(ctx context.Context, userFilter string, max int) ([]queue.ResponseRecord, error) {
	if k.reader == nil {
		return nil, queue.ErrUnavailable
	}
	return k.reader.Fetch(ctx, userFilter, max)
}

// QueueAvailable reports whether the async path is configured.
func (k *Kernel) QueueAvailable() bool {
	return k.broker != nil
}

// QueueDepth returns the pending message count for a queue, 0 when the async
// path is disabled.
func (k *Kernel) QueueDepth(ctx context.Context, queueName string) int {
	if k.broker == nil {
		return 0
	}
	depth, err := k.broker.Depth(ctx, queueName)
	if err != nil {
		return 0
	}
	return depth
}
