package eventloop_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type LoopTestSuite struct {
	suite.Suite
	clock *eventloop.ManualClock
	loop  *eventloop.Loop
	trace []string
}

func (s *LoopTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	s.clock = eventloop.NewManualClock(epoch)
	s.loop = eventloop.New(s.clock, logger, nil)
	s.trace = nil
}

func (s *LoopTestSuite) record(name string) func() {
	return func() { s.trace = append(s.trace, name) }
}

func (s *LoopTestSuite) TestPostRunsInOrder() {
	// GOAL: Verify posted events run one at a time in FIFO order
	//
	// TEST SCENARIO: post three events → drain → trace shows posting order

	s.loop.Post("a", s.record("a"))
	s.loop.Post("b", s.record("b"))
	s.loop.Post("c", s.record("c"))

	s.Require().NoError(s.loop.Drain())
	s.Assert().Equal([]string{"a", "b", "c"}, s.trace, "events MUST run in posting order")
}

func (s *LoopTestSuite) TestAfterFunc() {
	// GOAL: Verify one-shot timers fire exactly once at their deadline
	//
	// TEST SCENARIO: schedule at 5s → nothing at 4s → fires at 5s → nothing afterwards

	t := s.loop.AfterFunc(5*time.Second, "once", s.record("once"))
	s.Assert().True(t.Active(), "timer MUST be active after scheduling")

	s.clock.Advance(4 * time.Second)
	s.Require().NoError(s.loop.Drain())
	s.Assert().Empty(s.trace, "timer MUST NOT fire early")

	s.clock.Advance(time.Second)
	s.Require().NoError(s.loop.Drain())
	s.Assert().Equal([]string{"once"}, s.trace, "timer MUST fire at its deadline")
	s.Assert().False(t.Active(), "one-shot timer MUST be inactive after firing")

	s.clock.Advance(time.Hour)
	s.Require().NoError(s.loop.Drain())
	s.Assert().Len(s.trace, 1, "one-shot timer MUST fire only once")
}

func (s *LoopTestSuite) TestEveryAndStop() {
	// GOAL: Verify periodic timers re-arm from fire time and stop cleanly
	//
	// TEST SCENARIO: every 1s → three ticks over 3s → big jump fires once → stop from inside handler

	var ticker *eventloop.Timer
	count := 0
	ticker = s.loop.Every(time.Second, "tick", func() {
		count++
		if count == 5 {
			ticker.Stop()
		}
	})

	for i := 0; i < 3; i++ {
		s.clock.Advance(time.Second)
		s.Require().NoError(s.loop.Drain())
	}
	s.Assert().Equal(3, count, "periodic timer MUST fire once per period")

	s.clock.Advance(10 * time.Second)
	s.Require().NoError(s.loop.Drain())
	s.Assert().Equal(4, count, "missed periods MUST NOT be caught up")
	s.Assert().Equal(epoch.Add(14*time.Second), ticker.Deadline(), "next run MUST be one period after the actual fire time")

	s.clock.Advance(time.Second)
	s.Require().NoError(s.loop.Drain())
	s.Assert().Equal(5, count)
	s.Assert().False(ticker.Active(), "timer stopped inside its handler MUST be inactive")
	s.Assert().Equal(0, s.loop.Pending(), "no timers MUST remain")

	s.Assert().False(ticker.Stop(), "stopping a stopped timer MUST report false")
	var nilTimer *eventloop.Timer
	s.Assert().False(nilTimer.Stop(), "stopping a nil timer MUST be safe")
}

func (s *LoopTestSuite) TestFail() {
	// GOAL: Verify a handler failure surfaces from Drain and only the first error is kept
	//
	// TEST SCENARIO: handler calls Fail twice → Drain returns the first error

	first := errors.New("first")
	s.loop.Post("boom", func() {
		s.loop.Fail(first)
		s.loop.Fail(errors.New("second"))
	})
	s.loop.Post("after", s.record("after"))

	err := s.loop.Drain()
	s.Assert().ErrorIs(err, first, "Drain MUST return the first failure")
	s.Assert().Empty(s.trace, "events after a failure MUST NOT run in the same drain")
}

func TestLoopTestSuite(t *testing.T) {
	suite.Run(t, new(LoopTestSuite))
}

func TestRunWithRealClock(t *testing.T) {
	loop := eventloop.New(eventloop.RealClock{}, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var got []string
	loop.AfterFunc(20*time.Millisecond, "timer", func() {
		mu.Lock()
		got = append(got, "timer")
		mu.Unlock()
		loop.Fail(context.Canceled)
	})
	loop.Post("event", func() {
		mu.Lock()
		got = append(got, "event")
		mu.Unlock()
	})

	err := loop.Run(ctx)
	require.ErrorIs(t, err, context.Canceled, "Run MUST return the failure raised by a handler")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, got, "timer")
	assert.Contains(t, got, "event")
}

func TestRunStopsOnContext(t *testing.T) {
	loop := eventloop.New(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, loop.Run(ctx), context.Canceled, "Run MUST return when the context is done")
}

func TestQueueDropsOldest(t *testing.T) {
	q := eventloop.NewQueue[int](2)
	assert.False(t, q.Send(1))
	assert.False(t, q.Send(2))
	assert.True(t, q.Send(3), "send into a full queue MUST report a drop")

	v, ok := q.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, v, "oldest element MUST be the one dropped")

	m := q.Metrics()
	assert.Equal(t, int64(3), m.Written)
	assert.Equal(t, int64(1), m.Overwritten)
	assert.Equal(t, int64(1), m.Processed)
}
