package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 250 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// Countdown prints "<prefix> (<phase> Ns)" on one terminal line until Stop.
//
// A Countdown is single-use: Start at most once, Stop any number of times.
type Countdown struct {
	out      io.Writer
	prefix   string
	duration time.Duration
	now      func() time.Time

	phase    atomic.Value // string
	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	start    time.Time
}

func NewCountdown(out io.Writer, prefix, phase string, duration time.Duration) *Countdown {
	c := &Countdown{
		out:      out,
		prefix:   prefix,
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.phase.Store(phase)
	return c
}

// Start begins the updates in a background goroutine.
// Panics if called more than once.
func (c *Countdown) Start() {
	if !c.started.CompareAndSwap(false, true) {
		panic("Countdown.Start called more than once")
	}
	c.start = c.now()
	c.print()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.print()
			}
		}
	}()
}

// SetPhase changes the label shown next to the remaining time.
func (c *Countdown) SetPhase(phase string) {
	c.phase.Store(phase)
}

// Remaining is the time left, rounded to the nearest second and never negative.
func (c *Countdown) Remaining() time.Duration {
	left := c.duration - c.now().Sub(c.start)
	if left <= 0 {
		return 0
	}
	return left.Round(time.Second)
}

func (c *Countdown) print() {
	fmt.Fprintf(c.out, "\r%s (%s %ds)   ", c.prefix, c.phase.Load().(string), int(c.Remaining().Seconds()))
}

// Stop ends the updates and clears the line.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		if c.started.Load() {
			<-c.done
			fmt.Fprint(c.out, clearLineSequence)
		}
	})
}
