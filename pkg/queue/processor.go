package queue

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"orchestrator/pkg/dispatch"
	"orchestrator/pkg/eventlog"
	"orchestrator/pkg/logx"
	"orchestrator/pkg/metrics"
	"orchestrator/pkg/proto"
	"orchestrator/pkg/registry"
	"orchestrator/pkg/routing"
)

// Dead-letter reason codes. A closed set so inspection tooling can branch on
// kind instead of error text.
const (
	ReasonBadMessage        = "BadMessage"
	ReasonNoAgentsAvailable = "NoAgentsAvailable"
	ReasonDispatchError     = "DispatchError"
	ReasonPublishError      = "PublishError"
)

// ProcessorConfig holds the batch parameters for the processor loop.
type ProcessorConfig struct {
	BatchSize int
	Wait      time.Duration
	Backoff   time.Duration
}

// Processor is the background loop that drains the task queue: receive a
// batch, route and dispatch each message independently, publish the response,
// and resolve every message to completion or dead-letter. The loop survives
// any single message's failure indefinitely.
type Processor struct {
	broker     Broker
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	cfg        ProcessorConfig
	limiter    *rate.Limiter
	recorder   *metrics.Recorder
	events     *eventlog.Writer
	logger     *logx.Logger
}

// NewProcessor creates a processor. events may be nil to disable event logging.
func NewProcessor(broker Broker, reg *registry.Registry, dispatcher *dispatch.Dispatcher,
	cfg ProcessorConfig, recorder *metrics.Recorder, events *eventlog.Writer) *Processor {
	return &Processor{
		broker:     broker,
		registry:   reg,
		dispatcher: dispatcher,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1), // one batch per second
		recorder:   recorder,
		events:     events,
		logger:     logx.NewLogger("processor"),
	}
}

// Run executes the processing loop until ctx is cancelled. A message being
// processed at cancellation time still finishes its completion or dead-letter
// step; only new batches stop being scheduled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("Starting queue processor (batch=%d, wait=%v)", p.cfg.BatchSize, p.cfg.Wait)

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			p.logger.Info("Queue processor stopped: %v", ctx.Err())
			return nil
		}

		msgs, err := p.broker.ReceiveBatch(ctx, proto.TaskQueue, p.cfg.BatchSize, p.cfg.Wait)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("Queue processor stopped during receive")
				return nil
			}
			// Transport-wide failure: back off longer instead of spinning.
			p.logger.Error("Batch receive failed, backing off %v: %v", p.cfg.Backoff, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.cfg.Backoff):
			}
			continue
		}

		for _, msg := range msgs {
			p.processMessage(ctx, msg)
			if ctx.Err() != nil {
				p.logger.Info("Queue processor stopped between messages")
				return nil
			}
		}

		p.updateDepthGauges(ctx)
	}
}

// processMessage resolves one task message to exactly one terminal outcome:
// completed with a published response, or dead-lettered with a reason code.
func (p *Processor) processMessage(ctx context.Context, msg *Message) {
	// Terminal queue operations survive cancellation so an in-flight message
	// is never abandoned mid-resolution.
	termCtx := context.WithoutCancel(ctx)

	task, err := proto.TaskFromJSON(msg.Body)
	if err != nil {
		p.deadLetter(termCtx, msg, ReasonBadMessage, err.Error())
		return
	}
	if err := task.Validate(); err != nil {
		p.deadLetter(termCtx, msg, ReasonBadMessage, err.Error())
		return
	}

	p.logger.Info("Processing queued task %s from %s: %s", task.ID, task.UserID, task.Task)

	agents := p.registry.List()
	selected, ok := routing.SelectAgent(task.Task, task.PreferredAgent, agents)
	if !ok {
		p.deadLetter(termCtx, msg, ReasonNoAgentsAvailable, "registry is empty")
		return
	}

	start := time.Now()
	result, err := p.dispatcher.CallAgent(ctx, selected, task.Task, task.UserID)
	if err != nil {
		p.recorder.ObserveTask(selected, "async", false, time.Since(start))
		p.deadLetter(termCtx, msg, ReasonDispatchError, err.Error())
		return
	}

	response := proto.NewResponseMessage(task, selected, result)
	body, err := response.ToJSON()
	if err != nil {
		p.deadLetter(termCtx, msg, ReasonPublishError, err.Error())
		return
	}
	if _, err := p.broker.Send(termCtx, proto.ResponseQueue, body); err != nil {
		p.deadLetter(termCtx, msg, ReasonPublishError, err.Error())
		return
	}

	if err := p.broker.Complete(termCtx, msg); err != nil {
		// The response is already published; redelivery will dead-letter or
		// complete on a later attempt. At-least-once, not exactly-once.
		p.logger.Error("Failed to complete message %s: %v", msg.ID, err)
		return
	}

	p.recorder.ObserveTask(selected, "async", true, time.Since(start))
	p.logEvent(&eventlog.Event{
		Kind:      eventlog.KindCompleted,
		MessageID: msg.ID,
		Agent:     selected,
		UserID:    task.UserID,
		Task:      task.Task,
	})
	p.logger.Info("Task %s completed by %s, response queued", task.ID, selected)
}

func (p *Processor) deadLetter(ctx context.Context, msg *Message, reason, description string) {
	if err := p.broker.DeadLetter(ctx, msg, reason, description); err != nil {
		p.logger.Error("Failed to dead-letter message %s: %v", msg.ID, err)
		return
	}
	p.recorder.IncDeadLetter(reason)
	p.logEvent(&eventlog.Event{
		Kind:      eventlog.KindDeadLetter,
		MessageID: msg.ID,
		Detail:    reason + ": " + description,
	})
}

func (p *Processor) logEvent(event *eventlog.Event) {
	if p.events == nil {
		return
	}
	if err := p.events.Write(event); err != nil {
		p.logger.Warn("Failed to write event log entry: %v", err)
	}
}

func (p *Processor) updateDepthGauges(ctx context.Context) {
	for _, queue := range []string{proto.TaskQueue, proto.ResponseQueue} {
		depth, err := p.broker.Depth(ctx, queue)
		if err != nil {
			continue
		}
		p.recorder.SetQueueDepth(queue, depth)
	}
}
