package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/eventloop"
)

// Epoch is the start time of every manual clock built by the helper.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Clock  *eventloop.ManualClock
	Loop   *eventloop.Loop
}

// NewTestHelper creates a helper with a debug logger and a loop driven by a
// manual clock.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	clock := eventloop.NewManualClock(Epoch)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Clock:  clock,
		Loop:   eventloop.New(clock, logger, nil),
	}
}

// Advance moves the clock one second at a time up to d, draining the loop
// after each step so every tick fires at its own time.
func (h *TestHelper) Advance(d time.Duration) {
	h.T.Helper()
	for step := time.Duration(0); step < d; {
		inc := time.Second
		if d-step < inc {
			inc = d - step
		}
		h.Clock.Advance(inc)
		step += inc
		if err := h.Loop.Drain(); err != nil {
			h.T.Fatalf("loop failed at +%v: %v", h.Clock.Now().Sub(Epoch), err)
		}
	}
}

// Drain runs everything that is due now.
func (h *TestHelper) Drain() {
	h.T.Helper()
	if err := h.Loop.Drain(); err != nil {
		h.T.Fatalf("loop failed: %v", err)
	}
}

// LoadFile reads a file relative to the module root.
func LoadFile(relPath string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			return "", fmt.Errorf("could not find module root (go.mod not found)")
		}
		root = parent
	}

	data, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", relPath, err)
	}
	return string(data), nil
}
