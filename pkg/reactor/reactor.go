// Package reactor runs timers and posted calls on a single dispatch
// goroutine. Everything that touches the print session runs here, so the
// session itself needs no locking.
package reactor

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"lcdprint-go/pkg/errors"
	"lcdprint-go/pkg/log"
)

// Constants
const (
	NOW   = 0.0
	NEVER = 9999999999999999.0
)

// ErrReactorClosed is returned for calls posted after End.
var ErrReactorClosed = stderrors.New("reactor: reactor closed")

// TimerCallback is called when a timer fires.
// The callback receives the event time and returns the next wake time.
// Return NEVER to park the timer until UpdateTimer.
type TimerCallback func(eventtime float64) float64

// Timer represents a registered timer.
type Timer struct {
	id        uint64
	name      string
	callback  TimerCallback
	waketime  float64
	isRunning bool
	mu        sync.Mutex
}

// Waketime returns the timer's current wake time.
func (t *Timer) Waketime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waketime
}

// Completion carries the result of a posted call.
type Completion struct {
	reactor *Reactor
	result  interface{}
	done    chan struct{}
	once    sync.Once
}

// Test returns true if the completion has a result.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Complete sets the completion result and wakes any waiters.
func (c *Completion) Complete(result interface{}) {
	c.once.Do(func() {
		c.result = result
		close(c.done)
	})
}

// Wait blocks until the completion is done or the timeout expires.
// Returns the result or timeoutResult if the timeout expires.
func (c *Completion) Wait(timeout time.Duration, timeoutResult interface{}) interface{} {
	select {
	case <-c.done:
		return c.result
	case <-time.After(timeout):
		return timeoutResult
	case <-c.reactor.ctx.Done():
		return timeoutResult
	}
}

// Reactor manages timers and posted calls.
type Reactor struct {
	mu          sync.RWMutex
	timers      []*Timer
	nextTimerID uint64
	nextWake    float64

	asyncQueue chan func()

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	wg      sync.WaitGroup
	err     error
	errOnce sync.Once

	startTime time.Time
	logger    *log.Logger
}

// New creates a new Reactor.
func New() *Reactor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reactor{
		timers:     make([]*Timer, 0),
		nextWake:   NEVER,
		asyncQueue: make(chan func(), 256),
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
		logger:     log.GetLogger("reactor"),
	}
}

// Monotonic returns the current monotonic time in seconds.
func (r *Reactor) Monotonic() float64 {
	return time.Since(r.startTime).Seconds()
}

// RegisterTimer registers a named timer with the given callback and wake
// time. The name only appears in logs.
func (r *Reactor) RegisterTimer(name string, callback TimerCallback, waketime float64) *Timer {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := &Timer{
		id:       atomic.AddUint64(&r.nextTimerID, 1),
		name:     name,
		callback: callback,
		waketime: waketime,
	}

	r.timers = append(r.timers, timer)
	if waketime < r.nextWake {
		r.nextWake = waketime
	}
	r.wake()
	return timer
}

// UnregisterTimer removes a timer.
func (r *Reactor) UnregisterTimer(timer *Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer.mu.Lock()
	timer.waketime = NEVER
	timer.mu.Unlock()

	for i, t := range r.timers {
		if t.id == timer.id {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			break
		}
	}
}

// UpdateTimer updates a timer's wake time. It has no effect from inside
// the timer's own callback; return the wake time instead.
func (r *Reactor) UpdateTimer(timer *Timer, waketime float64) {
	timer.mu.Lock()
	if timer.isRunning {
		timer.mu.Unlock()
		return
	}
	timer.waketime = waketime
	timer.mu.Unlock()

	r.mu.Lock()
	if waketime < r.nextWake {
		r.nextWake = waketime
	}
	r.mu.Unlock()
	r.wake()
}

// Post runs fn on the dispatch goroutine. The completion carries fn's
// result, or ErrReactorClosed when the reactor has ended.
func (r *Reactor) Post(fn func(eventtime float64) interface{}) *Completion {
	completion := &Completion{reactor: r, done: make(chan struct{})}
	if r.ctx.Err() != nil {
		completion.Complete(ErrReactorClosed)
		return completion
	}
	select {
	case r.asyncQueue <- func() {
		completion.Complete(r.guard("post", func() interface{} {
			return fn(r.Monotonic())
		}))
	}:
	case <-r.ctx.Done():
		completion.Complete(ErrReactorClosed)
	}
	return completion
}

// Run starts the reactor's main dispatch loop.
func (r *Reactor) Run() {
	if r.running.Swap(true) {
		return
	}
	r.wg.Add(1)
	go r.dispatchLoop()
}

// End signals the reactor to stop.
func (r *Reactor) End() {
	r.running.Store(false)
	r.cancel()
}

// Wait waits for the reactor to stop.
func (r *Reactor) Wait() {
	r.wg.Wait()
}

// Done is closed once End has been called.
func (r *Reactor) Done() <-chan struct{} {
	return r.ctx.Done()
}

// Err returns the panic that stopped the reactor, if any.
func (r *Reactor) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Serve runs the reactor until ctx is done or a callback panics.
func (r *Reactor) Serve(ctx context.Context) error {
	r.Run()
	select {
	case <-ctx.Done():
	case <-r.Done():
	}
	r.End()
	r.Wait()
	return r.Err()
}

// guard runs fn, turning a panic into a stored error that ends the reactor.
func (r *Reactor) guard(name string, fn func() interface{}) (result interface{}) {
	defer func() {
		if p := recover(); p != nil {
			err := errors.FromPanic(p).SetContext("callback", name)
			r.errOnce.Do(func() {
				r.mu.Lock()
				r.err = err
				r.mu.Unlock()
			})
			r.logger.WithError(err).Error("reactor callback panicked")
			r.End()
			result = err
		}
	}()
	return fn()
}

func (r *Reactor) wake() {
	select {
	case r.asyncQueue <- func() {}:
	default:
	}
}

// dispatchLoop is the main event dispatch loop.
func (r *Reactor) dispatchLoop() {
	defer r.wg.Done()

	for r.running.Load() {
		r.processAsyncCallbacks()
		if !r.running.Load() {
			return
		}

		timeout := r.checkTimers(r.Monotonic())
		if timeout <= 0 {
			continue
		}
		delay := time.Duration(timeout * float64(time.Second))
		if delay > time.Second {
			delay = time.Second
		}

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case fn := <-r.asyncQueue:
			t.Stop()
			fn()
		case <-r.ctx.Done():
			t.Stop()
			return
		}
	}
}

// processAsyncCallbacks runs the posted calls waiting in the queue.
func (r *Reactor) processAsyncCallbacks() {
	for {
		select {
		case fn := <-r.asyncQueue:
			fn()
		default:
			return
		}
	}
}

// checkTimers fires due timers and returns the time until the next one.
func (r *Reactor) checkTimers(eventtime float64) float64 {
	r.mu.Lock()
	if eventtime < r.nextWake {
		delay := r.nextWake - eventtime
		r.mu.Unlock()
		return delay
	}
	timers := make([]*Timer, len(r.timers))
	copy(timers, r.timers)
	r.nextWake = NEVER
	r.mu.Unlock()

	for _, timer := range timers {
		if !r.running.Load() {
			return 0
		}
		timer.mu.Lock()
		if eventtime >= timer.waketime {
			timer.waketime = NEVER
			timer.isRunning = true
			timer.mu.Unlock()

			next := NEVER
			if v, ok := r.guard(timer.name, func() interface{} {
				return timer.callback(eventtime)
			}).(float64); ok {
				next = v
			}

			timer.mu.Lock()
			timer.isRunning = false
			if next < timer.waketime {
				timer.waketime = next
			}
		}
		waketime := timer.waketime
		timer.mu.Unlock()

		r.mu.Lock()
		if waketime < r.nextWake {
			r.nextWake = waketime
		}
		r.mu.Unlock()
	}

	r.mu.RLock()
	delay := r.nextWake - r.Monotonic()
	r.mu.RUnlock()
	if delay < 0 {
		delay = 0
	}
	return delay
}
