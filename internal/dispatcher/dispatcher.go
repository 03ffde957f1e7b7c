// Package dispatcher implements the Dispatcher / Worker Loop (spec §4.E):
// the per-agent process that registers with the Agent Registry, dequeues
// work, claims file locks, invokes the external model, and records the
// outcome. Adapted from teacher's internal/supervisor/dispatcher.go
// (Dispatcher interface, struct-held collaborators, explicit status
// tracking) generalized from "spawn an OS process per agent" to "drive one
// already-registered agent's work loop in-process".
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/dispatcher/invoker"
	"github.com/agentmesh/corectl/internal/lock"
	"github.com/agentmesh/corectl/internal/queue"
	"github.com/agentmesh/corectl/internal/registry"
	"github.com/agentmesh/corectl/internal/store"
)

const logPrefix = "[DISPATCHER]"

// EventPublisher is the seam Dispatcher uses for the events spec §4.E
// names directly (coordination-required, task_completed, task_failed),
// kept separate from internal/observability for the same layering reason
// as lock.EventPublisher and registry.EventPublisher.
type EventPublisher interface {
	PublishTaskEvent(eventType string, task coordtypes.Task, agent string)
}

// Config tunes a Dispatcher away from spec defaults (spec §5 "Timeouts").
type Config struct {
	AgentID           string
	AgentType         string
	Capabilities      []string
	Queues            []string // queues_for_my_type, tried in order each pass
	HeartbeatInterval time.Duration
	DequeueTimeout    time.Duration
	TaskTimeout       time.Duration
	LockMargin        time.Duration
	MaxAttempts       int
}

func (c *Config) setDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = 1 * time.Second
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 5 * time.Minute
	}
	if c.LockMargin <= 0 {
		c.LockMargin = 60 * time.Second
	}
}

// lockTTL is spec §5's default: "task_timeout + 60s".
func (c Config) lockTTL() time.Duration {
	return c.TaskTimeout + c.LockMargin
}

// Dispatcher drives one agent's work loop end to end.
type Dispatcher struct {
	cfg     Config
	reg     *registry.Registry
	queues  *queue.Engine
	locks   *lock.Manager
	invoker invoker.ModelInvoker
	sink    ResultSink
	bus     EventPublisher

	stages []Stage

	mu      sync.Mutex
	current *queue.DequeueResult // in-flight task, for shutdown recovery and heartbeat reporting
}

// New constructs a Dispatcher. s backs the scavenger stage's direct
// todo-pool access (spec §4.E step 2's Q:todos move has no equivalent on
// queue.Engine, which only knows about per-queue priority tiers). bus and
// sink may be nil; sink defaults to LogSink when nil.
func New(cfg Config, s store.Store, reg *registry.Registry, queues *queue.Engine, locks *lock.Manager, inv invoker.ModelInvoker, sink ResultSink, bus EventPublisher) *Dispatcher {
	cfg.setDefaults()
	if sink == nil {
		sink = LogSink{}
	}
	d := &Dispatcher{
		cfg:     cfg,
		reg:     reg,
		queues:  queues,
		locks:   locks,
		invoker: inv,
		sink:    sink,
		bus:     bus,
	}
	d.stages = []Stage{
		&primaryStage{engine: queues, queues: cfg.Queues, timeout: cfg.DequeueTimeout},
		newScavengerStage(s, cfg.AgentID),
	}
	return d
}

// Run executes spec §4.E's full per-agent loop until ctx is canceled.
// Registration happens once up front; on return (including via ctx
// cancellation) the agent's heartbeat is flushed to stopped, its locks are
// released, and any in-flight task is returned to the head of its tier.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.reg.Register(ctx, d.cfg.AgentID, d.cfg.AgentType, d.cfg.Capabilities); err != nil {
		return fmt.Errorf("dispatcher: register: %w", err)
	}

	hbCtx, cancelHB := context.WithCancel(context.Background())
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		d.heartbeatLoop(hbCtx)
	}()

	loopErr := d.loop(ctx)

	cancelHB()
	hbWG.Wait()
	d.shutdown(context.Background())
	return loopErr
}

// heartbeatLoop ticks at cfg.HeartbeatInterval, reporting the currently
// in-flight task if any (spec §4.D heartbeat(agent_id, status,
// current_task?)).
func (d *Dispatcher) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.beat(ctx)
		}
	}
}

func (d *Dispatcher) beat(ctx context.Context) {
	d.mu.Lock()
	cur := d.current
	d.mu.Unlock()

	status := coordtypes.AgentIdle
	var task *coordtypes.Task
	if cur != nil {
		status = coordtypes.AgentWorking
		t := cur.Task
		task = &t
	}
	if err := d.reg.Heartbeat(ctx, d.cfg.AgentID, status, task); err != nil {
		log.Printf("%s heartbeat failed agent=%s: %v", logPrefix, d.cfg.AgentID, err)
	}
}

// loop is spec §4.E steps 2-6.
func (d *Dispatcher) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		result, err := d.next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			log.Printf("%s dequeue error agent=%s: %v", logPrefix, d.cfg.AgentID, err)
			continue
		}
		if result == nil {
			continue
		}

		d.mu.Lock()
		d.current = result
		d.mu.Unlock()

		d.handleTask(ctx, *result)

		d.mu.Lock()
		d.current = nil
		d.mu.Unlock()
	}
}

// next tries every stage in order, returning the first available task.
func (d *Dispatcher) next(ctx context.Context) (*queue.DequeueResult, error) {
	for _, s := range d.stages {
		res, err := s.Dequeue(ctx)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

// handleTask is spec §4.E steps 3-6: acquire the file lock, invoke the
// model, record the outcome.
func (d *Dispatcher) handleTask(ctx context.Context, dr queue.DequeueResult) {
	task := dr.Task

	if task.File != "" {
		acq, err := d.locks.Acquire(ctx, task.File, d.cfg.AgentID, d.cfg.lockTTL())
		if err != nil {
			log.Printf("%s lock acquire error task=%s file=%s: %v", logPrefix, task.ID, task.File, err)
			d.requeue(ctx, dr.Queue, task)
			return
		}
		if !acq.Granted {
			if acq.HeldBy != "" && acq.HeldBy != d.cfg.AgentID {
				d.publish("coordination-required", task)
			}
			d.requeue(ctx, dr.Queue, task)
			return
		}
		defer func() {
			if err := d.locks.Release(ctx, task.File, d.cfg.AgentID, acq.LeaseID); err != nil && !errors.Is(err, lock.ErrStale) {
				log.Printf("%s release error task=%s file=%s: %v", logPrefix, task.ID, task.File, err)
			}
		}()
	}

	invokeCtx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	text, err := d.invoker.Invoke(invokeCtx, task.Type, task.Prompt)
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("%s invoke failed task=%s: %v", logPrefix, task.ID, err)
		d.requeue(ctx, dr.Queue, task)
		return
	}

	if err := d.sink.WriteResult(ctx, task, text); err != nil {
		log.Printf("%s write result failed task=%s: %v", logPrefix, task.ID, err)
		d.requeue(ctx, dr.Queue, task)
		return
	}

	if err := d.queues.CompleteProcessing(ctx, dr.Queue, task, elapsed); err != nil {
		log.Printf("%s complete processing failed task=%s: %v", logPrefix, task.ID, err)
	}
	d.publish("task_completed", task)
	log.Printf("%s completed task=%s queue=%s elapsed=%s", logPrefix, task.ID, dr.Queue, elapsed)
}

// requeue is spec §4.E step 6: requeue if attempts remain, otherwise the
// engine itself routes the task to queue:<Q>:failed.
func (d *Dispatcher) requeue(ctx context.Context, qname string, task coordtypes.Task) {
	exhausted, err := d.queues.Requeue(ctx, qname, task)
	if err != nil {
		log.Printf("%s requeue failed task=%s: %v", logPrefix, task.ID, err)
		return
	}
	d.publish("task_failed", task)
	if exhausted {
		log.Printf("%s task=%s exhausted attempts, moved to failed queue", logPrefix, task.ID)
	}
}

// shutdown is spec §4.E step 7: flush heartbeat with stopped, release all
// locks, return any in-flight task to the head of its tier.
func (d *Dispatcher) shutdown(ctx context.Context) {
	d.mu.Lock()
	cur := d.current
	d.mu.Unlock()

	if cur != nil {
		d.requeue(ctx, cur.Queue, cur.Task)
	}

	if err := d.reg.Heartbeat(ctx, d.cfg.AgentID, coordtypes.AgentStopped, nil); err != nil {
		log.Printf("%s final heartbeat failed agent=%s: %v", logPrefix, d.cfg.AgentID, err)
	}
	if _, err := d.locks.ReleaseAllForAgent(ctx, d.cfg.AgentID); err != nil {
		log.Printf("%s release all locks failed agent=%s: %v", logPrefix, d.cfg.AgentID, err)
	}
	log.Printf("%s shut down agent=%s", logPrefix, d.cfg.AgentID)
}

func (d *Dispatcher) publish(eventType string, task coordtypes.Task) {
	if d.bus != nil {
		d.bus.PublishTaskEvent(eventType, task, d.cfg.AgentID)
	}
}
