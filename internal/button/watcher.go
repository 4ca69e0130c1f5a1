// Package button turns the single-shot button edge watch into a latching
// toggle published on the button characteristic.
package button

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/eventloop"
	"github.com/srg/blesense/internal/platform"
	"github.com/srg/blesense/internal/sampler"
)

// BatchSampler publishes a sampling pass together with extra changes.
type BatchSampler interface {
	SampleWith(changes ...sampler.Change) error
}

type Watcher struct {
	sched   eventloop.Scheduler
	button  platform.Button
	leds    platform.LEDs
	sampler BatchSampler
	logger  *logrus.Logger

	// pressed is the payload sent by the previous press.
	pressed byte
	presses int
}

func NewWatcher(sched eventloop.Scheduler, button platform.Button, leds platform.LEDs, s BatchSampler, logger *logrus.Logger) *Watcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Watcher{sched: sched, button: button, leds: leds, sampler: s, logger: logger}
}

// Arm registers the next edge watch. The press is handled on the loop.
func (w *Watcher) Arm() error {
	err := w.button.WatchButton(func() {
		w.sched.Post("button-press", w.onPress)
	})
	if err != nil {
		return fmt.Errorf("arm button watch: %w", err)
	}
	return nil
}

func (w *Watcher) onPress() {
	payload := 1 - w.pressed
	w.presses++
	w.logger.WithFields(logrus.Fields{"payload": payload, "presses": w.presses}).Info("Button pressed")

	if err := w.sampler.SampleWith(sampler.Change{Sensor: characteristic.Button, Value: []byte{payload}}); err != nil {
		w.sched.Fail(fmt.Errorf("button press: %w", err))
		return
	}
	if err := w.leds.SetLED(platform.LED1, payload == 1); err != nil {
		w.logger.WithError(err).Warn("Failed to set button LED")
	}
	w.pressed = payload

	if err := w.Arm(); err != nil {
		w.sched.Fail(err)
	}
}

// Payload is the last published button payload.
func (w *Watcher) Payload() byte {
	return w.pressed
}

func (w *Watcher) Presses() int {
	return w.presses
}
