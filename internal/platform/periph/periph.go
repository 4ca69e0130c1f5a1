// Package periph runs the peripheral on a Linux board through periph.io:
// GPIO for the button, the accelerometer interrupt line and the LEDs, a
// BME280 on I2C for temperature and the kernel power-supply class for the
// battery.
package periph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/groutine"
	"github.com/srg/blesense/internal/platform"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

type Options struct {
	ButtonPin     string `default:"GPIO17"`
	MotionPin     string `default:"GPIO27"`
	LEDPins       []string
	I2CBus        string
	BME280Address uint16 `default:"118"`
	BatteryPath   string `default:"/sys/class/power_supply/BAT0/capacity"`
	// EdgePoll bounds each edge wait so watchers notice Close.
	EdgePoll time.Duration `default:"500ms"`
}

// DefaultLEDPins drive LED1..LED3.
var DefaultLEDPins = []string{"GPIO5", "GPIO6", "GPIO13"}

// Thermometer is the part of the BME280 driver the platform uses.
type Thermometer interface {
	Sense(env *physic.Env) error
	Halt() error
}

// Devices are the opened hardware handles.
type Devices struct {
	Button      gpio.PinIn
	Motion      gpio.PinIn
	LEDs        []gpio.PinOut
	Thermometer Thermometer
	BatteryPath string
	EdgePoll    time.Duration
	// closer releases the I2C bus.
	closer func() error
}

type Platform struct {
	dev    Devices
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	watching   bool
	motionFns  map[int]func(platform.MotionSample)
	nextSub    int
	motionLoop bool
}

// Open initialises the host drivers and the configured devices.
func Open(opts Options, logger *logrus.Logger) (*Platform, error) {
	defaults.SetDefaults(&opts)
	if len(opts.LEDPins) == 0 {
		opts.LEDPins = DefaultLEDPins
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}

	button := gpioreg.ByName(opts.ButtonPin)
	if button == nil {
		return nil, fmt.Errorf("button pin %s not found", opts.ButtonPin)
	}
	motion := gpioreg.ByName(opts.MotionPin)
	if motion == nil {
		return nil, fmt.Errorf("motion pin %s not found", opts.MotionPin)
	}
	leds := make([]gpio.PinOut, 0, len(opts.LEDPins))
	for _, name := range opts.LEDPins {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("LED pin %s not found", name)
		}
		leds = append(leds, pin)
	}

	bus, err := i2creg.Open(opts.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", opts.I2CBus, err)
	}
	thermo, err := openBME280(bus, opts.BME280Address)
	if err != nil {
		bus.Close()
		return nil, err
	}

	return New(Devices{
		Button:      button,
		Motion:      motion,
		LEDs:        leds,
		Thermometer: thermo,
		BatteryPath: opts.BatteryPath,
		EdgePoll:    opts.EdgePoll,
		closer:      bus.Close,
	}, logger)
}

func openBME280(bus i2c.Bus, addr uint16) (*bmxx80.Dev, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("BME280 at 0x%02x: %w", addr, err)
	}
	return dev, nil
}

// New configures already opened devices: the button input is pulled up
// and fires on the falling edge, the motion line fires on the rising edge.
func New(dev Devices, logger *logrus.Logger) (*Platform, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if dev.EdgePoll <= 0 {
		dev.EdgePoll = 500 * time.Millisecond
	}
	if err := dev.Button.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("configure button %s: %w", dev.Button, err)
	}
	if err := dev.Motion.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("configure motion %s: %w", dev.Motion, err)
	}
	for _, led := range dev.LEDs {
		if err := led.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("configure LED %s: %w", led, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Platform{
		dev:       dev,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		motionFns: make(map[int]func(platform.MotionSample)),
	}, nil
}

func (p *Platform) BatteryPercentage() (float64, error) {
	raw, err := os.ReadFile(p.dev.BatteryPath)
	if err != nil {
		return 0, fmt.Errorf("read battery capacity: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse battery capacity %q: %w", strings.TrimSpace(string(raw)), err)
	}
	return v, nil
}

func (p *Platform) Temperature() (float64, error) {
	if p.dev.Thermometer == nil {
		return 0, fmt.Errorf("no thermometer configured")
	}
	var env physic.Env
	if err := p.dev.Thermometer.Sense(&env); err != nil {
		return 0, fmt.Errorf("BME280 sense: %w", err)
	}
	return env.Temperature.Celsius(), nil
}

// WatchButton waits for one falling edge in the background.
func (p *Platform) WatchButton(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watching {
		return fmt.Errorf("button watch already armed")
	}
	p.watching = true

	groutine.Go(p.ctx, "button-edge", func(ctx context.Context) {
		for ctx.Err() == nil {
			if p.dev.Button.WaitForEdge(p.dev.EdgePoll) {
				p.mu.Lock()
				p.watching = false
				p.mu.Unlock()
				fn()
				return
			}
		}
	})
	return nil
}

func (p *Platform) SubscribeMotion(fn func(platform.MotionSample)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	p.motionFns[id] = fn
	if !p.motionLoop {
		p.motionLoop = true
		groutine.Go(p.ctx, "motion-edge", p.watchMotion)
	}
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.motionFns, id)
	}, nil
}

func (p *Platform) watchMotion(ctx context.Context) {
	for ctx.Err() == nil {
		if !p.dev.Motion.WaitForEdge(p.dev.EdgePoll) {
			continue
		}
		sample := platform.MotionSample{Z: 1, At: time.Now()}

		p.mu.Lock()
		fns := make([]func(platform.MotionSample), 0, len(p.motionFns))
		for _, fn := range p.motionFns {
			fns = append(fns, fn)
		}
		p.mu.Unlock()

		for _, fn := range fns {
			fn(sample)
		}
	}
}

func (p *Platform) SetLED(led platform.LED, on bool) error {
	idx := int(led) - 1
	if idx < 0 || idx >= len(p.dev.LEDs) {
		return fmt.Errorf("unknown LED %d", int(led))
	}
	return p.dev.LEDs[idx].Out(gpio.Level(on))
}

// Close stops the watchers and releases the pins and the bus.
func (p *Platform) Close() error {
	p.cancel()

	var errs []error
	for _, pin := range []interface{ Halt() error }{p.dev.Button, p.dev.Motion} {
		if err := pin.Halt(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.dev.Thermometer != nil {
		if err := p.dev.Thermometer.Halt(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.dev.closer != nil {
		if err := p.dev.closer(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.WithError(err).Warn("Platform close incomplete")
		return fmt.Errorf("close platform: %w", err)
	}
	return nil
}
