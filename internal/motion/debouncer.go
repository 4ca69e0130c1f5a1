// Package motion derives the binary movement signal from accelerometer
// events. Movement goes high on the first event and drops back after a
// quiet decay window.
package motion

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/eventloop"
	"github.com/srg/blesense/internal/platform"
	"github.com/srg/blesense/internal/sampler"
)

const (
	// DecayWindow is the number of quiet ticks before movement drops to 0.
	DecayWindow = 5
	// TickInterval is the decay tick period.
	TickInterval = time.Second
)

// State is a point-in-time view of the debouncer.
type State struct {
	Active    bool
	Countdown int
}

func (s State) String() string {
	if !s.Active {
		return "rest"
	}
	return fmt.Sprintf("active(%d)", s.Countdown)
}

type Debouncer struct {
	sched  eventloop.Scheduler
	table  *characteristic.Table
	pub    sampler.Republisher
	logger *logrus.Logger

	countdown int
	// timer is nil at rest and the only decay ticker while active.
	timer  *eventloop.Timer
	cancel func()
	events int
	// pending is set while a motion event is queued on the loop. Samples
	// arriving meanwhile are folded into it so a burst never floods the
	// queue ahead of other events.
	pending atomic.Bool
}

func NewDebouncer(sched eventloop.Scheduler, table *characteristic.Table, pub sampler.Republisher, logger *logrus.Logger) *Debouncer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Debouncer{sched: sched, table: table, pub: pub, logger: logger}
}

// Enable subscribes to motion events. Every delivered sample counts as
// motion; samples delivered while one is already queued are coalesced.
func (d *Debouncer) Enable(src platform.Motion) error {
	if d.cancel != nil {
		return nil
	}
	cancel, err := src.SubscribeMotion(func(platform.MotionSample) {
		if d.pending.CompareAndSwap(false, true) {
			d.sched.Post("motion", func() {
				d.pending.Store(false)
				d.MotionDetected()
			})
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe motion: %w", err)
	}
	d.cancel = cancel
	return nil
}

// Disable drops the motion subscription. A running decay still completes.
func (d *Debouncer) Disable() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// MotionDetected must run on the loop.
func (d *Debouncer) MotionDetected() {
	d.events++
	if d.timer != nil {
		d.countdown = DecayWindow
		d.logger.WithField("countdown", d.countdown).Trace("Motion while active, decay reset")
		return
	}

	d.countdown = DecayWindow
	d.logger.Debug("Motion started")
	if !d.publish(true) {
		return
	}
	d.timer = d.sched.Every(TickInterval, "motion-decay", d.tick)
}

func (d *Debouncer) tick() {
	if d.countdown > 0 {
		d.countdown--
		return
	}

	d.timer.Stop()
	d.timer = nil
	d.logger.Debug("Motion stopped")
	d.publish(false)
}

func (d *Debouncer) publish(moving bool) bool {
	d.table.Set(characteristic.Movement.ID(), characteristic.EncodeFlag(moving))
	if err := d.pub.Republish(d.table); err != nil {
		d.sched.Fail(fmt.Errorf("publish movement=%t: %w", moving, err))
		return false
	}
	return true
}

func (d *Debouncer) State() State {
	return State{Active: d.timer != nil, Countdown: d.countdown}
}

// TimerActive reports whether a decay ticker is scheduled.
func (d *Debouncer) TimerActive() bool {
	return d.timer.Active()
}

// Events is the number of motion events handled.
func (d *Debouncer) Events() int {
	return d.events
}
