package worker

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// DispatchOption configures a DispatchPool.
type DispatchOption struct {
	// MaxIdleWorkers bounds how many idle goroutines the pool keeps
	// around between bursts of scheduling activity; workers beyond this
	// count exit as soon as their queue drains instead of waiting.
	MaxIdleWorkers int
	// WorkerMaxAge is checked after each task a worker goroutine runs:
	// once the worker is older than this, it exits instead of taking the
	// next task. A worker waiting on an empty queue is not woken to
	// check its age.
	WorkerMaxAge time.Duration
	// QueueBuffer is the size of the pending-dispatch queue; once full,
	// Dispatch falls back to an unpooled goroutine rather than
	// blocking the scheduler.
	QueueBuffer int
}

// DefaultDispatchOption mirrors the concurrency levels a single
// submission's core fan-out realistically needs.
func DefaultDispatchOption() *DispatchOption {
	return &DispatchOption{
		MaxIdleWorkers: 64,
		WorkerMaxAge:   time.Minute,
		QueueBuffer:    256,
	}
}

type dispatchTask struct {
	ctx context.Context
	f   func()
}

// DispatchPool runs a submission's per-core schedule calls
// (Submission.scheduleOnCore, one per ScheduleTestOnCore call) off a
// small pool of reusable goroutines instead of
// spawning one per call, while still degrading gracefully to an
// unpooled goroutine under burst load (spec §4, "scheduling onto
// cores" — adapted from a general-purpose goroutine pool rather than
// grounded on a submission-specific original, since the source this
// system is built on schedules through tokio's own executor instead).
type DispatchPool struct {
	name string

	workers int32
	maxIdle int32
	maxage  int64 // milliseconds

	tasks chan dispatchTask
}

// NewDispatchPool creates a pool; a nil opt uses DefaultDispatchOption.
func NewDispatchPool(name string, opt *DispatchOption) *DispatchPool {
	if opt == nil {
		opt = DefaultDispatchOption()
	}
	return &DispatchPool{
		name:    name,
		tasks:   make(chan dispatchTask, opt.QueueBuffer),
		maxage:  opt.WorkerMaxAge.Milliseconds(),
		maxIdle: int32(opt.MaxIdleWorkers),
	}
}

// Dispatch runs f in the background, recovering any panic it raises
// into a log line tagged with the pool's name. ctx is carried with the
// task but not consulted.
func (p *DispatchPool) Dispatch(ctx context.Context, f func()) {
	select {
	case p.tasks <- dispatchTask{ctx: ctx, f: f}:
	default:
		go p.runTask(ctx, f)
		return
	}
	if len(p.tasks) == 0 {
		return
	}
	go p.runWorker()
}

func (p *DispatchPool) runTask(ctx context.Context, f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"pool": p.name, "panic": r}).
				WithField("stack", string(debug.Stack())).
				Error("worker: recovered panic in dispatch pool task")
		}
	}()
	f()
}

// CurrentWorkers reports how many worker goroutines are currently alive.
func (p *DispatchPool) CurrentWorkers() int {
	return int(atomic.LoadInt32(&p.workers))
}

func (p *DispatchPool) runWorker() {
	id := atomic.AddInt32(&p.workers, 1)
	defer atomic.AddInt32(&p.workers, -1)

	if id > p.maxIdle {
		for {
			select {
			case t := <-p.tasks:
				p.runTask(t.ctx, t.f)
			default:
				return
			}
		}
	}

	createdAt := time.Now().UnixMilli()
	for t := range p.tasks {
		p.runTask(t.ctx, t.f)
		if now := time.Now().UnixMilli(); now-createdAt > p.maxage {
			return
		}
	}
}
