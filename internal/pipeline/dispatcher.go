package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/beamline/internal/journal"
	"github.com/starford/beamline/internal/metrics"
	"github.com/starford/beamline/internal/models"
	"github.com/starford/beamline/internal/notify"
	"github.com/starford/beamline/internal/sse"
)

// Dispatcher queues events and runs them on a fixed pool of workers. Events
// for a path that a worker is already handling join that worker's backlog,
// so one path is never processed concurrently and no worker waits on
// another.
type Dispatcher struct {
	proc    *Processor
	ignore  *Matcher
	logger  *slog.Logger
	queue   chan models.FileEvent
	workers int
	drain   time.Duration

	journal   journal.Journal
	broker    *sse.Broker
	publisher notify.Publisher
	metrics   *metrics.Metrics

	mu     sync.Mutex
	active map[string][]models.FileEvent // owned path -> pending events

	settle   time.Duration
	settleMu sync.Mutex
	settling map[string]settleEntry
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the capacity of the event queue.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan models.FileEvent, n)
		}
	}
}

// WithShutdownTimeout bounds how long Run waits for in-flight events.
func WithShutdownTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.drain = t }
}

// WithSettle holds each event until its path has seen no events for d.
// Zero queues events as they arrive.
func WithSettle(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.settle = d
		}
	}
}

// WithIgnore drops events whose path matches m.
func WithIgnore(m *Matcher) DispatcherOption {
	return func(d *Dispatcher) { d.ignore = m }
}

// WithJournal records every run in j.
func WithJournal(j journal.Journal) DispatcherOption {
	return func(d *Dispatcher) { d.journal = j }
}

// WithBroker streams every run to SSE clients.
func WithBroker(b *sse.Broker) DispatcherOption {
	return func(d *Dispatcher) { d.broker = b }
}

// WithPublisher forwards every run downstream.
func WithPublisher(p notify.Publisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithMetrics counts events and runs in m.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher. Defaults: 4 workers, queue of 1024,
// 30s shutdown drain.
func NewDispatcher(proc *Processor, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		proc:      proc,
		logger:    logger,
		queue:     make(chan models.FileEvent, 1024),
		workers:   4,
		drain:     30 * time.Second,
		publisher: notify.Nop{},
		active:    make(map[string][]models.FileEvent),
		settling:  make(map[string]settleEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Accepts reports whether ev leads to any work.
func (d *Dispatcher) Accepts(ev models.FileEvent) bool {
	return Classify(ev) != ActionNone && !d.ignore.Match(ev.Path)
}

// Submit queues ev, blocking while the queue is full. With a settle window
// the event is parked instead and queued once its path goes quiet. Events
// that lead to no work are dropped silently and reported as accepted.
func (d *Dispatcher) Submit(ctx context.Context, ev models.FileEvent) error {
	accepted := d.Accepts(ev)
	if accepted {
		d.metrics.EventReceived(ev.Kind)
	}
	if d.settle > 0 && d.hold(ev, accepted) {
		return nil
	}
	if !accepted {
		return nil
	}
	select {
	case d.queue <- ev:
		d.metrics.QueueDepth(len(d.queue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued or settling events not yet picked up.
func (d *Dispatcher) Pending() int {
	d.settleMu.Lock()
	defer d.settleMu.Unlock()
	return len(d.queue) + len(d.settling)
}

// Run starts the workers and blocks until ctx is cancelled. Queued events
// that have not started are then dropped; events already being handled are
// given up to the shutdown timeout to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}
	if d.settle > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.settleLoop(ctx)
		}()
	}
	d.logger.Info("dispatcher: started",
		slog.Int("workers", d.workers),
		slog.Int("queue", cap(d.queue)),
		slog.Duration("settle", d.settle))

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.drain):
		d.logger.Warn("dispatcher: shutdown timeout, abandoning in-flight events")
	}

	dropped := d.dropSettling()
drain:
	for {
		select {
		case <-d.queue:
			dropped++
		default:
			break drain
		}
	}
	d.metrics.Dropped(dropped)
	d.metrics.QueueDepth(0)
	d.logger.Info("dispatcher: stopped", slog.Int("dropped", dropped))
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.metrics.QueueDepth(len(d.queue))
			if ctx.Err() != nil {
				d.metrics.Dropped(1)
				return
			}
			d.handle(ctx, ev)
		}
	}
}

// handle processes ev and then everything that queued up behind it for the
// same path.
func (d *Dispatcher) handle(ctx context.Context, ev models.FileEvent) {
	if !d.claim(ev) {
		return
	}
	for cur, ok := ev, true; ok; cur, ok = d.next(ev.Path) {
		if ctx.Err() != nil {
			d.metrics.Dropped(d.release(ev.Path))
			return
		}
		d.report(ctx, d.proc.Process(ctx, cur))
	}
}

// claim makes the caller the owner of ev.Path, or appends ev to the current
// owner's backlog and returns false.
func (d *Dispatcher) claim(ev models.FileEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if backlog, owned := d.active[ev.Path]; owned {
		d.active[ev.Path] = append(backlog, ev)
		return false
	}
	d.active[ev.Path] = nil
	return true
}

// next pops the owner's backlog, giving up ownership when it is empty.
func (d *Dispatcher) next(path string) (models.FileEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	backlog := d.active[path]
	if len(backlog) == 0 {
		delete(d.active, path)
		return models.FileEvent{}, false
	}
	d.active[path] = backlog[1:]
	return backlog[0], true
}

// release gives up ownership and returns how many backlog events were lost.
func (d *Dispatcher) release(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.active[path])
	delete(d.active, path)
	return n
}

func (d *Dispatcher) report(ctx context.Context, run models.Run) {
	attrs := []any{
		slog.String("path", run.Path),
		slog.String("kind", string(run.Kind)),
		slog.String("outcome", string(run.Outcome)),
		slog.Duration("duration", run.Duration),
	}
	if len(run.Steps) > 0 {
		attrs = append(attrs, slog.Any("steps", run.Steps))
	}
	if run.RenamedTo != "" {
		attrs = append(attrs, slog.String("renamed_to", run.RenamedTo))
	}
	if run.Retries > 0 {
		attrs = append(attrs, slog.Int("retries", run.Retries))
	}
	if run.Outcome == models.OutcomeChanged {
		d.logger.Info("dispatcher: processed", attrs...)
	} else {
		d.logger.Debug("dispatcher: processed", attrs...)
	}

	d.metrics.RunFinished(run.Outcome, run.Duration)
	if d.journal != nil {
		if err := d.journal.Record(run); err != nil {
			d.logger.Warn("dispatcher: journal record failed", slog.String("path", run.Path), slog.String("error", err.Error()))
		}
	}
	if d.broker != nil {
		d.broker.PublishRun(run)
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.publisher.Publish(pubCtx, run); err != nil {
		d.logger.Warn("dispatcher: notify failed", slog.String("path", run.Path), slog.String("error", err.Error()))
	}
}
