// Package platform defines the hardware the peripheral runs on: sensor
// reads, the button edge watch, the motion interrupt and the LEDs.
//
// Callbacks registered here fire on arbitrary goroutines. Consumers post them
// onto the control loop before touching any shared state.
package platform

import (
	"fmt"
	"time"
)

// Sensors are zero-argument instantaneous reads.
type Sensors interface {
	BatteryPercentage() (float64, error)
	Temperature() (float64, error)
}

// Button is a single-shot edge watch: fn fires at most once for the next
// press and the watch must be registered again afterwards.
type Button interface {
	WatchButton(fn func()) error
}

// MotionSample is one accelerometer event.
type MotionSample struct {
	X, Y, Z float64
	At      time.Time
}

// Motion delivers accelerometer events until the returned cancel is called.
type Motion interface {
	SubscribeMotion(fn func(MotionSample)) (cancel func(), err error)
}

type LED int

const (
	LED1 LED = iota + 1
	LED2
	LED3
)

func (l LED) String() string {
	return fmt.Sprintf("LED%d", int(l))
}

type LEDs interface {
	SetLED(led LED, on bool) error
}

type Platform interface {
	Sensors
	Button
	Motion
	LEDs
	Close() error
}

// Kind names a platform implementation.
type Kind string

const (
	KindSim    Kind = "sim"
	KindPeriph Kind = "periph"
)
