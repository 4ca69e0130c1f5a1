package sim_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/platform"
	"github.com/srg/blesense/internal/platform/sim"
	"github.com/srg/blesense/internal/radio"
	"github.com/srg/blesense/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type SimTestSuite struct {
	suite.Suite
	now     time.Time
	sim     *sim.Platform
	console *sim.Console
	history []radio.Batch
}

func (s *SimTestSuite) SetupTest() {
	color.NoColor = true
	logger, _ := test.NewNullLogger()
	s.now = testutils.Epoch

	var err error
	s.sim, err = sim.New(sim.Options{Battery: 90, Temperature: 20, Now: func() time.Time { return s.now }}, logger)
	s.Require().NoError(err)
	s.history = nil
	s.console = sim.NewConsole(s.sim, func() []radio.Batch {
		out := s.history
		s.history = nil
		return out
	}, func() string { return "running" }, logger)
}

func (s *SimTestSuite) TearDownTest() {
	s.sim.Close()
}

func (s *SimTestSuite) TestStaticReadings() {
	b, err := s.sim.BatteryPercentage()
	s.Require().NoError(err)
	s.Assert().Equal(90.0, b)

	s.Assert().Equal("battery = 55 (published on the next sampling pass)", s.console.Exec("battery 55"))
	s.Assert().Contains(s.console.Exec("temp -4.5"), "temp = -4.5")

	b, _ = s.sim.BatteryPercentage()
	t, _ := s.sim.Temperature()
	s.Assert().Equal(55.0, b)
	s.Assert().Equal(-4.5, t)
}

func (s *SimTestSuite) TestScriptedReadings() {
	// GOAL: Verify a Lua script overrides static readings and sees uptime
	//
	// TEST SCENARIO: script drains 1%/min, temperature undefined → battery follows uptime → temperature stays static

	path := filepath.Join(s.T().TempDir(), "readings.lua")
	s.Require().NoError(os.WriteFile(path, []byte(`function battery() return 100 - uptime / 60 end`), 0o600))

	logger, _ := test.NewNullLogger()
	scripted, err := sim.New(sim.Options{Temperature: 18, Script: path, Now: func() time.Time { return s.now }}, logger)
	s.Require().NoError(err)
	defer scripted.Close()

	s.now = s.now.Add(30 * time.Minute)
	b, err := scripted.BatteryPercentage()
	s.Require().NoError(err)
	s.Assert().Equal(70.0, b, "scripted battery MUST follow uptime")

	t, err := scripted.Temperature()
	s.Require().NoError(err)
	s.Assert().Equal(18.0, t, "undefined script function MUST fall back to the static value")
}

func (s *SimTestSuite) TestBadScript() {
	path := filepath.Join(s.T().TempDir(), "bad.lua")
	s.Require().NoError(os.WriteFile(path, []byte(`function battery(`), 0o600))

	logger, _ := test.NewNullLogger()
	_, err := sim.New(sim.Options{Script: path}, logger)
	s.Assert().Error(err, "script with a syntax error MUST be rejected")
}

func (s *SimTestSuite) TestPressIsSingleShot() {
	presses := 0
	s.Require().NoError(s.sim.WatchButton(func() { presses++ }))

	s.Assert().Equal("button pressed", s.console.Exec("press"))
	s.Assert().Equal("button not armed", s.console.Exec("press"), "watch MUST disarm after firing")
	s.Assert().Equal(1, presses)
}

func (s *SimTestSuite) TestMove() {
	var samples []platform.MotionSample
	cancel, err := s.sim.SubscribeMotion(func(m platform.MotionSample) { samples = append(samples, m) })
	s.Require().NoError(err)

	s.Assert().Equal("3 motion sample(s) delivered", s.console.Exec("move 3"))
	s.Assert().Len(samples, 3)
	s.Assert().Contains(s.console.Exec("move zero"), "invalid sample count")

	cancel()
	s.console.Exec("move")
	s.Assert().Len(samples, 3, "cancelled subscription MUST NOT receive samples")
}

func (s *SimTestSuite) TestLEDs() {
	s.Require().NoError(s.sim.SetLED(platform.LED1, true))
	s.Assert().Error(s.sim.SetLED(platform.LED(9), true))
	s.Assert().Equal("LED1 on  LED2 off  LED3 off", s.console.Exec("leds"))
}

func (s *SimTestSuite) TestHistory() {
	s.Assert().Equal("no publishes since last drain", s.console.Exec("history"))

	s.history = []radio.Batch{{
		At:   testutils.Epoch,
		Kind: radio.KindRepublish,
		Entries: []characteristic.Entry{
			{ID: characteristic.Battery.ID(), Record: characteristic.Record{Value: []byte{57}}},
			{ID: characteristic.Movement.ID(), Record: characteristic.Record{Value: characteristic.Filler()}},
		},
	}}
	out := s.console.Exec("history")
	s.Assert().True(strings.HasPrefix(out, "00:00:00 republish"), "history line MUST start with time and kind: %q", out)
	s.Assert().Contains(out, "2a19=39")
	s.Assert().Contains(out, "2c01=-", "filler MUST be shown as -")
}

func (s *SimTestSuite) TestServeLines() {
	var out bytes.Buffer
	err := s.console.ServeLines(context.Background(), strings.NewReader("status\n\nbogus\n"), &out)
	s.Require().NoError(err)
	s.Assert().Equal("running\nunknown command \"bogus\", try help\n", out.String())
}

func TestSimTestSuite(t *testing.T) {
	suite.Run(t, new(SimTestSuite))
}
