package motion_test

import (
	"errors"
	"testing"
	"time"

	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/motion"
	"github.com/srg/blesense/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type movementPublish struct {
	at    time.Time
	value byte
}

// timedRepublisher records the movement value and clock time of each call.
type timedRepublisher struct {
	helper    *testutils.TestHelper
	publishes []movementPublish
	err       error
}

func (r *timedRepublisher) Republish(table *characteristic.Table) error {
	rec, _ := table.Get(characteristic.Movement.ID())
	r.publishes = append(r.publishes, movementPublish{at: r.helper.Clock.Now(), value: rec.Value[0]})
	return r.err
}

type DebouncerTestSuite struct {
	suite.Suite
	helper    *testutils.TestHelper
	platform  *testutils.FakePlatform
	pub       *timedRepublisher
	debouncer *motion.Debouncer
}

func (s *DebouncerTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.platform = testutils.NewFakePlatform()
	s.pub = &timedRepublisher{helper: s.helper}
	table := testutils.NewSensorTable(s.helper.Logger)
	s.debouncer = motion.NewDebouncer(s.helper.Loop, table, s.pub, s.helper.Logger)
	s.Require().NoError(s.debouncer.Enable(s.platform))
}

func (s *DebouncerTestSuite) move() {
	s.platform.Move()
	s.helper.Drain()
}

// step advances the clock by d and runs everything due.
func (s *DebouncerTestSuite) step(d time.Duration) {
	s.helper.Clock.Advance(d)
	s.helper.Drain()
}

func (s *DebouncerTestSuite) TestBurstPublishesOnceEachWay() {
	// GOAL: Verify a burst of events produces one movement=1 and one movement=0, 5..6s after the last event
	//
	// TEST SCENARIO: events at 0, 0.5, 2.5, 3.0s → one rising publish at 0 → one falling publish 5..6s after 3.0s

	s.move()
	s.step(500 * time.Millisecond)
	s.move()
	s.step(2 * time.Second)
	s.move()
	s.step(500 * time.Millisecond)
	s.move()
	last := s.helper.Clock.Now()

	s.helper.Advance(10 * time.Second)

	s.Require().Len(s.pub.publishes, 2, "burst MUST publish exactly twice")
	s.Assert().Equal(byte(1), s.pub.publishes[0].value)
	s.Assert().Equal(testutils.Epoch, s.pub.publishes[0].at, "movement=1 MUST be published immediately")
	s.Assert().Equal(byte(0), s.pub.publishes[1].value)

	delay := s.pub.publishes[1].at.Sub(last)
	s.Assert().GreaterOrEqual(delay, 5*time.Second, "movement=0 MUST NOT come sooner than 5s after the last event")
	s.Assert().LessOrEqual(delay, 6*time.Second, "movement=0 MUST NOT come later than 6s after the last event")
	s.Assert().Equal(motion.State{}, s.debouncer.State(), "debouncer MUST return to rest")
	s.Assert().Equal(4, s.debouncer.Events())
}

func (s *DebouncerTestSuite) TestSingleTimerInvariant() {
	// GOAL: Verify no event sequence ever leaves two decay timers scheduled

	for i := 0; i < 20; i++ {
		s.move()
		s.Require().Equal(1, s.helper.Loop.Pending(), "exactly one decay timer MUST be scheduled while active")
		s.Require().True(s.debouncer.TimerActive())
		s.step(700 * time.Millisecond)
	}

	s.helper.Advance(7 * time.Second)
	s.Assert().Zero(s.helper.Loop.Pending(), "timer MUST be cancelled at rest")
	s.Assert().False(s.debouncer.TimerActive())
}

func (s *DebouncerTestSuite) TestCountdownResetWhileActive() {
	s.move()
	s.helper.Advance(3 * time.Second)
	s.Assert().Equal(motion.State{Active: true, Countdown: 2}, s.debouncer.State())

	s.move()
	s.Assert().Equal(motion.State{Active: true, Countdown: motion.DecayWindow}, s.debouncer.State(),
		"event while active MUST reset the countdown")
	s.Assert().Len(s.pub.publishes, 1, "event while active MUST NOT republish")
}

func (s *DebouncerTestSuite) TestRestartAfterRest() {
	s.move()
	s.helper.Advance(6 * time.Second)
	s.Require().Len(s.pub.publishes, 2)

	s.move()
	s.helper.Advance(6 * time.Second)
	s.Require().Len(s.pub.publishes, 4, "a new burst after rest MUST publish again")
	s.Assert().Equal([]byte{1, 0, 1, 0}, []byte{
		s.pub.publishes[0].value, s.pub.publishes[1].value,
		s.pub.publishes[2].value, s.pub.publishes[3].value,
	})
}

func (s *DebouncerTestSuite) TestDisableStopsEvents() {
	s.debouncer.Disable()
	s.Assert().Zero(s.platform.MotionSubscribers())
	s.platform.Move()
	s.helper.Drain()
	s.Assert().Empty(s.pub.publishes)
}

func (s *DebouncerTestSuite) TestPublishFailureFailsLoop() {
	boom := errors.New("adapter gone")
	s.pub.err = boom
	s.platform.Move()

	err := s.helper.Loop.Drain()
	s.Assert().ErrorIs(err, boom)
	s.Assert().False(s.debouncer.TimerActive(), "failed rising publish MUST NOT start a timer")
}

func (s *DebouncerTestSuite) TestBurstIsCoalesced() {
	// GOAL: Verify a sample burst occupies at most one queued loop event
	//
	// TEST SCENARIO: 200 samples without draining → loop drains one motion event → next sample queues again

	for i := 0; i < 200; i++ {
		s.platform.Move()
	}
	s.Assert().Equal(int64(1), s.helper.Loop.Metrics().Written, "burst MUST be folded into one queued event")

	s.helper.Drain()
	s.Assert().Equal(1, s.debouncer.Events())
	s.Assert().True(s.debouncer.State().Active)

	s.move()
	s.Assert().Equal(2, s.debouncer.Events(), "samples after the drain MUST be delivered again")
}

func TestDebouncerTestSuite(t *testing.T) {
	suite.Run(t, new(DebouncerTestSuite))
}
