// Package iothread implements the bounded worker pool spec §5
// ("Scheduling model") describes: "A bounded pool of worker threads
// services I/O-bound tasks (path existence checks for history, other
// non-mutating lookups). Short iothread_perform(task, completion, ctx)
// calls enqueue a task; its completion runs back on the main thread."
//
// Grounded on the teacher's internal/daemon.IngestionQueue (bounded
// FIFO, drop-on-saturation, 75%-capacity warning) adapted from "one
// consumer drains a queue of events" to "N workers drain a queue of
// tasks and hand results back through a completion channel the owner
// drains explicitly on its own thread" — the inversion the teacher
// doesn't need (its queue is consumed by its own background goroutine)
// but spec §5 requires, since corefish's "main thread" must stay the
// only thing that touches the variable store, history session, and job
// tracker directly.
package iothread

import (
	"log/slog"
	"sync"
)

// Task is a unit of I/O-bound work run on a worker goroutine. Its return
// value is threaded through to the matching Completion unmodified.
type Task func() any

// Completion runs back on the main thread once Drain is called; it must
// not block, matching spec §5's "its completion runs back on the main
// thread" (Drain, not the worker, is what makes that happen in Go: the
// worker only ever touches the task's own closure state, never shared
// mutable state owned by the main thread).
type Completion func(result any)

type job struct {
	task       Task
	completion Completion
}

type result struct {
	completion Completion
	value      any
}

// Pool is a bounded pool of worker goroutines. Perform enqueues a task;
// its completion is buffered until the owner calls Drain from its own
// thread.
//
// Grounded on IngestionQueue's maxSize/warnThreshold/totalDropped
// bookkeeping, reused verbatim in spirit here for the inbound task queue
// (Perform drops the task itself, not history, when the queue is
// saturated — a dropped background lookup is invisible to the user,
// matching spec §5 "Cancellation": "Background worker tasks cannot be
// cancelled; they run to completion and their completion is silently
// discarded if no longer relevant").
type Pool struct {
	mu       sync.Mutex
	tasks    chan job
	results  chan result
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	logger        *slog.Logger
	maxQueued     int
	warnThreshold int
	queued        int
	warned        bool
	totalDropped  int64
	totalEnqueued int64
}

// DefaultWorkers and DefaultQueueSize are corefish's pool sizing
// defaults; callers needing different sizing pass them to New.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// New starts a Pool with the given worker count and bounded queue size.
// workers/queueSize <= 0 fall back to the package defaults.
func New(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		tasks:         make(chan job, queueSize),
		results:       make(chan result, queueSize),
		stopCh:        make(chan struct{}),
		logger:        logger,
		maxQueued:     queueSize,
		warnThreshold: (queueSize * 3) / 4,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
	return p
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for {
		select {
		case j, ok := <-p.tasks:
			if !ok {
				return
			}
			p.mu.Lock()
			p.queued--
			p.mu.Unlock()

			v := j.task()
			if j.completion != nil {
				select {
				case p.results <- result{completion: j.completion, value: v}:
				case <-p.stopCh:
					return
				}
			}
		case <-p.stopCh:
			return
		}
	}
}

// Perform enqueues task for background execution. completion (if
// non-nil) is buffered and delivered on the next call to Drain from the
// owning (main) thread. Returns false if the queue was saturated and the
// task was dropped instead of enqueued.
func (p *Pool) Perform(task Task, completion Completion) bool {
	p.mu.Lock()
	if p.queued >= p.maxQueued {
		p.totalDropped++
		p.mu.Unlock()
		p.logger.Warn("iothread: queue full, task dropped", "max_queued", p.maxQueued, "total_dropped", p.totalDropped)
		return false
	}
	p.queued++
	p.totalEnqueued++
	if p.queued >= p.warnThreshold && !p.warned {
		p.warned = true
		p.logger.Warn("iothread: queue exceeds 75% capacity", "queued", p.queued, "max_queued", p.maxQueued)
	} else if p.queued < p.warnThreshold {
		p.warned = false
	}
	p.mu.Unlock()

	select {
	case p.tasks <- job{task: task, completion: completion}:
		return true
	default:
		p.mu.Lock()
		p.queued--
		p.totalDropped++
		p.mu.Unlock()
		return false
	}
}

// Drain runs every buffered completion on the calling goroutine, in the
// order their tasks finished, and returns the number run. Call this from
// the main thread's event loop (spec §5: "its completion runs back on
// the main thread").
func (p *Pool) Drain() int {
	n := 0
	for {
		select {
		case r := <-p.results:
			r.completion(r.value)
			n++
		default:
			return n
		}
	}
}

// Stats reports the pool's queue bookkeeping, mirroring
// IngestionQueueStats's shape.
type Stats struct {
	Queued        int
	MaxQueued     int
	TotalEnqueued int64
	TotalDropped  int64
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Queued:        p.queued,
		MaxQueued:     p.maxQueued,
		TotalEnqueued: p.totalEnqueued,
		TotalDropped:  p.totalDropped,
	}
}

// Close stops all workers and releases resources. Outstanding
// completions that were never drained are discarded, matching spec §5's
// cancellation semantics for background work.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}
