// Package sim is a software platform for bench runs: readings come from
// fixed values or a Lua script, and the console presses the button and
// shakes the accelerometer.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/lua"
	"github.com/srg/blesense/internal/platform"
)

type Options struct {
	Battery     float64
	Temperature float64
	// Script is a Lua file defining battery() and/or temperature().
	Script string
	Now    func() time.Time
}

type Platform struct {
	logger  *logrus.Logger
	now     func() time.Time
	started time.Time
	engine  *lua.Engine

	mu          sync.Mutex
	battery     float64
	temperature float64
	buttonFn    func()
	motionFns   map[int]func(platform.MotionSample)
	nextSub     int
	leds        map[platform.LED]bool
}

func New(opts Options, logger *logrus.Logger) (*Platform, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Platform{
		logger:      logger,
		now:         opts.Now,
		started:     opts.Now(),
		battery:     opts.Battery,
		temperature: opts.Temperature,
		motionFns:   make(map[int]func(platform.MotionSample)),
		leds:        make(map[platform.LED]bool),
	}

	if opts.Script != "" {
		engine := lua.NewEngine(logger)
		if err := engine.LoadFile(opts.Script); err != nil {
			engine.Close()
			return nil, err
		}
		p.engine = engine
		logger.WithField("script", opts.Script).Info("Simulated readings scripted")
	}
	return p, nil
}

// scripted calls fn in the script when it is defined.
func (p *Platform) scripted(fn string) (float64, bool, error) {
	if p.engine == nil || !p.engine.HasFunction(fn) {
		return 0, false, nil
	}
	p.engine.SetNumber("uptime", p.now().Sub(p.started).Seconds())
	v, err := p.engine.CallNumber(fn)
	return v, true, err
}

func (p *Platform) BatteryPercentage() (float64, error) {
	if v, ok, err := p.scripted("battery"); ok {
		return v, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.battery, nil
}

func (p *Platform) Temperature() (float64, error) {
	if v, ok, err := p.scripted("temperature"); ok {
		return v, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.temperature, nil
}

// SetBattery overrides the static battery reading.
func (p *Platform) SetBattery(pct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.battery = pct
}

// SetTemperature overrides the static temperature reading.
func (p *Platform) SetTemperature(c float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.temperature = c
}

func (p *Platform) WatchButton(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buttonFn = fn
	return nil
}

// Press fires the armed watch once. It reports false when nothing is armed,
// which is how a real pin behaves between the edge and the re-arm.
func (p *Platform) Press() bool {
	p.mu.Lock()
	fn := p.buttonFn
	p.buttonFn = nil
	p.mu.Unlock()

	if fn == nil {
		p.logger.Debug("Button press ignored, watch not armed")
		return false
	}
	fn()
	return true
}

func (p *Platform) SubscribeMotion(fn func(platform.MotionSample)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.motionFns[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.motionFns, id)
	}, nil
}

// Move delivers n accelerometer samples to every subscriber.
func (p *Platform) Move(n int) {
	p.mu.Lock()
	fns := make([]func(platform.MotionSample), 0, len(p.motionFns))
	for _, fn := range p.motionFns {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		sample := platform.MotionSample{X: 0.1 * float64(i+1), Y: 0, Z: 1, At: p.now()}
		for _, fn := range fns {
			fn(sample)
		}
	}
}

func (p *Platform) SetLED(led platform.LED, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if led < platform.LED1 || led > platform.LED3 {
		return fmt.Errorf("unknown LED %d", int(led))
	}
	p.leds[led] = on
	p.logger.WithFields(logrus.Fields{"led": led, "on": on}).Debug("LED set")
	return nil
}

func (p *Platform) LED(led platform.LED) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leds[led]
}

func (p *Platform) Close() error {
	if p.engine != nil {
		p.engine.Close()
	}
	return nil
}
