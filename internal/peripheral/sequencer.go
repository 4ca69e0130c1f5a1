// Package peripheral brings the sensor peripheral up in strict order:
// settle, gate, populate, register, activate.
package peripheral

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/button"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/devconfig"
	"github.com/srg/blesense/internal/eventloop"
	"github.com/srg/blesense/internal/motion"
	"github.com/srg/blesense/internal/platform"
	"github.com/srg/blesense/internal/radio"
	"github.com/srg/blesense/internal/sampler"
)

const (
	DefaultSettleDelay    = 15 * time.Second
	DefaultRegisterDelay  = 5 * time.Second
	DefaultAdvertisedName = "dec4IoT Device"
	ConfigDescription     = "Device Configuration"
)

// ConfigLoader is the read side of the configuration gate.
type ConfigLoader interface {
	Load(name string) (*devconfig.DeviceConfig, error)
}

// Radio publishes the table once and republishes it afterwards.
type Radio interface {
	Publish(ctx context.Context, table *characteristic.Table, name string) error
	Republish(table *characteristic.Table) error
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSettling
	PhaseRegistering
	PhaseRunning
	// PhasePassive is terminal: no config, radio stays inactive.
	PhasePassive
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSettling:
		return "settling"
	case PhaseRegistering:
		return "registering"
	case PhaseRunning:
		return "running"
	case PhasePassive:
		return "passive"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Options struct {
	SettleDelay    time.Duration
	RegisterDelay  time.Duration
	ConfigName     string
	AdvertisedName string
	ServiceUUID    ble.UUID
}

// DefaultOptions returns the production timings and names.
func DefaultOptions() Options {
	return Options{
		SettleDelay:    DefaultSettleDelay,
		RegisterDelay:  DefaultRegisterDelay,
		ConfigName:     devconfig.DefaultName,
		AdvertisedName: DefaultAdvertisedName,
		ServiceUUID:    radio.DefaultServiceUUID,
	}
}

// Sequencer owns the table and every component that mutates it. All its
// methods except New and Start run on the loop.
type Sequencer struct {
	sched    eventloop.Scheduler
	gate     ConfigLoader
	radio    Radio
	platform platform.Platform
	opts     Options
	logger   *logrus.Logger

	table     *characteristic.Table
	sampler   *sampler.Sampler
	watcher   *button.Watcher
	debouncer *motion.Debouncer

	phase    Phase
	config   *devconfig.DeviceConfig
	periodic *eventloop.Timer
}

func New(sched eventloop.Scheduler, gate ConfigLoader, r Radio, p platform.Platform, opts Options, logger *logrus.Logger) *Sequencer {
	if logger == nil {
		logger = logrus.New()
	}
	def := DefaultOptions()
	if opts.ConfigName == "" {
		opts.ConfigName = def.ConfigName
	}
	if opts.AdvertisedName == "" {
		opts.AdvertisedName = def.AdvertisedName
	}
	if opts.ServiceUUID == nil {
		opts.ServiceUUID = def.ServiceUUID
	}

	table := characteristic.NewTable(logger)
	smp := sampler.New(table, p, r, logger)
	return &Sequencer{
		sched:     sched,
		gate:      gate,
		radio:     r,
		platform:  p,
		opts:      opts,
		logger:    logger,
		table:     table,
		sampler:   smp,
		watcher:   button.NewWatcher(sched, p, p, smp, logger),
		debouncer: motion.NewDebouncer(sched, table, r, logger),
	}
}

// Start schedules the bring-up. ctx bounds advertising.
func (s *Sequencer) Start(ctx context.Context) {
	s.setPhase(PhaseSettling)
	s.logger.WithField("delay", s.opts.SettleDelay).Info("Waiting for the radio to settle")
	s.sched.AfterFunc(s.opts.SettleDelay, "startup-gate", func() {
		s.loadConfig(ctx)
	})
}

func (s *Sequencer) loadConfig(ctx context.Context) {
	cfg, err := s.gate.Load(s.opts.ConfigName)
	if err != nil {
		s.setPhase(PhasePassive)
		s.logger.WithError(err).Warn("Device is not configured, radio stays inactive")
		s.sched.Fail(err)
		return
	}
	s.config = cfg

	if err := Populate(s.table, s.opts.ServiceUUID, cfg); err != nil {
		s.fail(err)
		return
	}

	s.setPhase(PhaseRegistering)
	s.sched.AfterFunc(s.opts.RegisterDelay, "startup-activate", func() {
		s.activate(ctx)
	})
}

func (s *Sequencer) activate(ctx context.Context) {
	if err := s.watcher.Arm(); err != nil {
		s.fail(err)
		return
	}
	if err := s.radio.Publish(ctx, s.table, s.opts.AdvertisedName); err != nil {
		s.fail(fmt.Errorf("publish: %w", err))
		return
	}
	if err := s.sampler.SampleAll(); err != nil {
		s.fail(err)
		return
	}
	if err := s.debouncer.Enable(s.platform); err != nil {
		s.fail(err)
		return
	}

	interval := s.config.UpdateInterval()
	s.periodic = s.sched.Every(interval, "sample", func() {
		if err := s.sampler.SampleAll(); err != nil {
			s.fail(err)
		}
	})

	s.setPhase(PhaseRunning)
	s.logger.WithFields(logrus.Fields{
		"id":       s.config.ID,
		"name":     s.opts.AdvertisedName,
		"interval": interval,
	}).Info("Peripheral running")
}

// Stop cancels the periodic sampling and the motion subscription.
func (s *Sequencer) Stop() {
	s.periodic.Stop()
	s.periodic = nil
	s.debouncer.Disable()
}

func (s *Sequencer) fail(err error) {
	s.setPhase(PhaseFailed)
	s.logger.WithError(err).Error("Peripheral failed")
	s.sched.Fail(err)
}

func (s *Sequencer) setPhase(p Phase) {
	s.logger.WithFields(logrus.Fields{"from": s.phase, "to": p}).Debug("Startup phase")
	s.phase = p
}

func (s *Sequencer) Phase() Phase                    { return s.phase }
func (s *Sequencer) Table() *characteristic.Table    { return s.table }
func (s *Sequencer) Config() *devconfig.DeviceConfig { return s.config }
func (s *Sequencer) Motion() motion.State            { return s.debouncer.State() }
func (s *Sequencer) ButtonPayload() byte             { return s.watcher.Payload() }

// Populate adds the configuration entry and one filler entry per sensor.
func Populate(table *characteristic.Table, serviceUUID ble.UUID, cfg *devconfig.DeviceConfig) error {
	ok := table.Add(characteristic.IDFromUUID(serviceUUID), characteristic.Record{
		Value:       []byte(cfg.Blob()),
		Readable:    true,
		Description: ConfigDescription,
	})
	if !ok {
		return fmt.Errorf("populate: configuration entry rejected")
	}
	for _, sensor := range characteristic.Sensors() {
		ok := table.Add(sensor.ID(), characteristic.Record{
			Value:    characteristic.Filler(),
			Readable: true,
			Notify:   true,
		})
		if !ok {
			return fmt.Errorf("populate: %s entry rejected", sensor)
		}
	}
	return nil
}
