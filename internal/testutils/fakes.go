package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/platform"
	"github.com/srg/blesense/internal/radio"
	"github.com/stretchr/testify/mock"
)

// MockRegistry is a testify mock of radio.Registry. Advertise blocks until
// the context is done unless an expectation returns earlier.
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) SetServices(svc radio.Service) error {
	return m.Called(svc).Error(0)
}

func (m *MockRegistry) UpdateServices(svc radio.Service) error {
	return m.Called(svc).Error(0)
}

func (m *MockRegistry) Advertise(ctx context.Context, adv radio.Advertisement) error {
	if err := m.Called(ctx, adv).Error(0); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockRegistry) Close() error {
	return m.Called().Error(0)
}

// RecordingRepublisher records the table values at every Republish call.
type RecordingRepublisher struct {
	mu    sync.Mutex
	calls [][]characteristic.Entry
	// Err, when set, is returned by every call after recording it.
	Err error
}

func (r *RecordingRepublisher) Republish(table *characteristic.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, table.Snapshot())
	return r.Err
}

// Calls returns the recorded snapshots in call order.
func (r *RecordingRepublisher) Calls() [][]characteristic.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]characteristic.Entry(nil), r.calls...)
}

// Values returns the value of id at each recorded call.
func (r *RecordingRepublisher) Values(id characteristic.ID) [][]byte {
	var out [][]byte
	for _, snap := range r.Calls() {
		for _, e := range snap {
			if e.ID == id {
				out = append(out, e.Value)
			}
		}
	}
	return out
}

var ErrFakeSensor = errors.New("fake sensor failure")

// FakePlatform is a scriptable platform.Platform.
type FakePlatform struct {
	mu          sync.Mutex
	Battery     float64
	Temp        float64
	SensorErr   error
	buttonFn    func()
	watchCount  int
	motionFns   map[int]func(platform.MotionSample)
	nextSub     int
	leds        map[platform.LED]bool
	ledWrites   []bool
	closed      bool
	SensorReads int
}

func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		Battery:   80,
		Temp:      21,
		motionFns: make(map[int]func(platform.MotionSample)),
		leds:      make(map[platform.LED]bool),
	}
}

func (f *FakePlatform) BatteryPercentage() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SensorReads++
	return f.Battery, f.SensorErr
}

func (f *FakePlatform) Temperature() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SensorReads++
	return f.Temp, f.SensorErr
}

func (f *FakePlatform) SetReadings(battery, temp float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Battery, f.Temp = battery, temp
}

func (f *FakePlatform) WatchButton(fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttonFn = fn
	f.watchCount++
	return nil
}

// Press fires the armed button watch, if any, and disarms it.
// It reports whether a watch was armed.
func (f *FakePlatform) Press() bool {
	f.mu.Lock()
	fn := f.buttonFn
	f.buttonFn = nil
	f.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// Armed reports whether a button watch is registered.
func (f *FakePlatform) Armed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buttonFn != nil
}

// WatchCount is the number of WatchButton registrations so far.
func (f *FakePlatform) WatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchCount
}

func (f *FakePlatform) SubscribeMotion(fn func(platform.MotionSample)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.motionFns[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.motionFns, id)
	}, nil
}

// Move delivers one motion sample to every subscriber.
func (f *FakePlatform) Move() {
	f.mu.Lock()
	fns := make([]func(platform.MotionSample), 0, len(f.motionFns))
	for _, fn := range f.motionFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(platform.MotionSample{X: 1})
	}
}

func (f *FakePlatform) MotionSubscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.motionFns)
}

func (f *FakePlatform) SetLED(led platform.LED, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leds[led] = on
	if led == platform.LED1 {
		f.ledWrites = append(f.ledWrites, on)
	}
	return nil
}

func (f *FakePlatform) LED(led platform.LED) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leds[led]
}

// LED1Writes lists every value written to LED1.
func (f *FakePlatform) LED1Writes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.ledWrites...)
}

func (f *FakePlatform) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// NewSensorTable builds a table shaped like a populated startup table:
// the configuration entry followed by every sensor holding the filler.
func NewSensorTable(logger *logrus.Logger) *characteristic.Table {
	table := characteristic.NewTable(logger)
	table.Add(characteristic.IDFromUUID(radio.DefaultServiceUUID), characteristic.Record{
		Value:       []byte("i=test;e=/"),
		Readable:    true,
		Description: "Device Configuration",
	})
	for _, sensor := range characteristic.Sensors() {
		table.Add(sensor.ID(), characteristic.Record{Value: characteristic.Filler(), Readable: true, Notify: true})
	}
	return table
}
