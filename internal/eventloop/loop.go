// Package eventloop is the single logical control thread of the peripheral.
//
// Every table mutation and every radio call happens inside a handler run by
// the loop; handlers run to completion and never interleave. Hardware
// callbacks arriving on other goroutines are posted as events.
package eventloop

import (
	"container/heap"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

var ErrAlreadyRunning = errors.New("eventloop: already running")

// Scheduler is the part of the loop components schedule work on.
type Scheduler interface {
	Post(name string, fn func())
	AfterFunc(d time.Duration, name string, fn func()) *Timer
	Every(period time.Duration, name string, fn func()) *Timer
	Fail(err error)
	Now() time.Time
}

type Options struct {
	QueueSize int `default:"64"`
}

type event struct {
	name string
	fn   func()
}

// Loop runs posted events and timers one at a time.
//
// Post and Fail are safe to call from any goroutine. AfterFunc, Every and
// Timer.Stop must be called from a handler or before Run starts.
type Loop struct {
	clock   Clock
	logger  *logrus.Logger
	events  *Queue[event]
	timers  timerHeap
	seq     uint64
	fatal   chan error
	running atomic.Bool
}

func New(clock Clock, logger *logrus.Logger, opts *Options) *Loop {
	o := Options{}
	defaults.SetDefaults(&o)
	if opts != nil && opts.QueueSize > 0 {
		o.QueueSize = opts.QueueSize
	}
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		clock:  clock,
		logger: logger,
		events: NewQueue[event](o.QueueSize),
		fatal:  make(chan error, 1),
	}
}

func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Post queues fn to run on the loop.
func (l *Loop) Post(name string, fn func()) {
	if l.events.Send(event{name: name, fn: fn}) {
		l.logger.WithField("event", name).Warn("Event queue full; oldest event dropped")
	}
}

// AfterFunc runs fn once after d.
func (l *Loop) AfterFunc(d time.Duration, name string, fn func()) *Timer {
	return l.schedule(d, 0, name, fn)
}

// Every runs fn every period, starting one period from now. The next run is
// scheduled from the actual fire time; missed periods are not caught up.
func (l *Loop) Every(period time.Duration, name string, fn func()) *Timer {
	if period <= 0 {
		panic("eventloop: non-positive period for " + name)
	}
	return l.schedule(period, period, name, fn)
}

func (l *Loop) schedule(d, period time.Duration, name string, fn func()) *Timer {
	l.seq++
	t := &Timer{
		loop:   l,
		name:   name,
		when:   l.clock.Now().Add(d),
		period: period,
		fn:     fn,
		seq:    l.seq,
		index:  -1,
	}
	heap.Push(&l.timers, t)
	l.logger.WithFields(logrus.Fields{"timer": name, "in": d, "period": period}).Trace("Timer scheduled")
	return t
}

// Fail stops Run with err. Only the first failure is kept.
func (l *Loop) Fail(err error) {
	if err == nil {
		return
	}
	select {
	case l.fatal <- err:
	default:
	}
}

// Pending returns the number of scheduled timers.
func (l *Loop) Pending() int {
	return len(l.timers)
}

// Metrics exposes the event queue counters.
func (l *Loop) Metrics() Metrics {
	return l.events.Metrics()
}

// Run processes events and timers until ctx is done or a handler calls Fail.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	for {
		l.fireDue(l.clock.Now())
		if err := l.pollFatal(); err != nil {
			return err
		}

		var wake <-chan time.Time
		if len(l.timers) > 0 {
			wake = l.clock.After(l.timers[0].when.Sub(l.clock.Now()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-l.fatal:
			return err
		case ev := <-l.events.C():
			l.events.markProcessed()
			l.dispatch(ev.name, ev.fn)
		case <-wake:
		}
	}
}

// Drain synchronously runs every due timer and queued event until nothing is
// left to do at the current clock time. It returns the first Fail error.
func (l *Loop) Drain() error {
	for {
		progressed := l.fireDue(l.clock.Now()) > 0
		if err := l.pollFatal(); err != nil {
			return err
		}
		if ev, ok := l.events.TryReceive(); ok {
			l.dispatch(ev.name, ev.fn)
			progressed = true
		}
		if err := l.pollFatal(); err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

func (l *Loop) fireDue(now time.Time) int {
	fired := 0
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := l.timers[0]
		if t.period > 0 {
			t.when = now.Add(t.period)
			heap.Fix(&l.timers, 0)
		} else {
			heap.Pop(&l.timers)
		}
		l.dispatch(t.name, t.fn)
		fired++
	}
	return fired
}

func (l *Loop) pollFatal() error {
	select {
	case err := <-l.fatal:
		return err
	default:
		return nil
	}
}

func (l *Loop) dispatch(name string, fn func()) {
	l.logger.WithField("handler", name).Trace("Dispatch")
	fn()
}

// Timer is a scheduled one-shot or periodic handler.
type Timer struct {
	loop   *Loop
	name   string
	when   time.Time
	period time.Duration
	fn     func()
	seq    uint64
	index  int
}

// Stop cancels the timer. It reports whether the timer was still scheduled.
// A nil timer is never active.
func (t *Timer) Stop() bool {
	if t == nil || t.index < 0 {
		return false
	}
	heap.Remove(&t.loop.timers, t.index)
	return true
}

func (t *Timer) Active() bool {
	return t != nil && t.index >= 0
}

func (t *Timer) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Deadline is the next time the timer fires.
func (t *Timer) Deadline() time.Time {
	return t.when
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
