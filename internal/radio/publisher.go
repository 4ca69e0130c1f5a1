package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/groutine"
)

// BatchKind tells a structural publish from a value republish.
type BatchKind string

const (
	KindPublish   BatchKind = "publish"
	KindRepublish BatchKind = "republish"
	KindDiscarded BatchKind = "discarded"
)

// Batch is one journal entry: what the radio was asked to carry.
type Batch struct {
	At      time.Time
	Kind    BatchKind
	Entries []characteristic.Entry
}

type Options struct {
	ServiceUUID      ble.UUID
	ManufacturerID   uint16 `default:"1424"`
	ManufacturerData []byte
	HistorySize      uint32        `default:"64"`
	ReadvertiseDelay time.Duration `default:"1s"`
	// Now is the journal time source; time.Now when nil.
	Now func() time.Time
	// OnFatal receives advertising failures from the background advertiser.
	OnFatal func(error)
}

// Publisher registers the characteristic table once and republishes value
// batches afterwards. Publish and Republish must be called from the control
// loop.
type Publisher struct {
	registry Registry
	opts     Options
	logger   *logrus.Logger

	published bool
	busy      int
	cancelAdv context.CancelFunc

	mu      sync.Mutex
	history mpmc.RichOverlappedRingBuffer[Batch]
}

func NewPublisher(registry Registry, opts *Options, logger *logrus.Logger) *Publisher {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	if o.ServiceUUID == nil {
		o.ServiceUUID = DefaultServiceUUID
	}
	if o.ManufacturerData == nil {
		o.ManufacturerData = []byte("{}")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Publisher{
		registry: registry,
		opts:     o,
		logger:   logger,
		history:  mpmc.NewOverlappedRingBuffer[Batch](o.HistorySize),
	}
}

// Publish registers the table's structure, seals it and starts advertising
// under name. It may be called once per process.
func (p *Publisher) Publish(ctx context.Context, table *characteristic.Table, name string) error {
	if p.published {
		return ErrAlreadyPublished
	}

	svc := Service{UUID: p.opts.ServiceUUID, Entries: table.Snapshot()}
	if err := p.registry.SetServices(svc); err != nil {
		p.logger.WithError(err).Error("Service registration failed")
		return fmt.Errorf("register services: %w", err)
	}
	table.Seal()
	p.published = true
	p.record(KindPublish, svc.Entries)

	adv := Advertisement{
		Name:             name,
		ShowName:         true,
		ServiceUUID:      p.opts.ServiceUUID,
		ManufacturerID:   p.opts.ManufacturerID,
		ManufacturerData: p.opts.ManufacturerData,
	}

	advCtx, cancel := context.WithCancel(ctx)
	p.cancelAdv = cancel
	groutine.GoErr(advCtx, "radio-advertise", func(ctx context.Context) error {
		return p.advertise(ctx, adv)
	}, p.opts.OnFatal)

	p.logger.WithFields(logrus.Fields{
		"name":            name,
		"service":         p.opts.ServiceUUID.String(),
		"characteristics": len(svc.Entries),
	}).Info("Services published")
	return nil
}

// advertise keeps advertising until ctx is done. A stack that stops
// advertising on its own (after a central connects) is restarted.
func (p *Publisher) advertise(ctx context.Context, adv Advertisement) error {
	for {
		err := p.registry.Advertise(ctx, adv)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			p.logger.WithError(err).Error("Advertising failed")
			return err
		}

		p.logger.Debug("Advertising stopped; restarting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.opts.ReadvertiseDelay):
		}
	}
}

// Republish pushes the table's current values. The busy condition is logged
// once and swallowed; any other failure is returned.
func (p *Publisher) Republish(table *characteristic.Table) error {
	if !p.published {
		p.logger.Error("Republish before publish")
		return ErrNotPublished
	}

	svc := Service{UUID: p.opts.ServiceUUID, Entries: table.Snapshot()}
	err := p.registry.UpdateServices(svc)
	switch {
	case err == nil:
		p.record(KindRepublish, svc.Entries)
		p.logger.WithField("characteristics", len(svc.Entries)).Debug("Services updated")
		return nil
	case errors.Is(err, ErrBusy):
		p.busy++
		p.record(KindDiscarded, svc.Entries)
		p.logger.WithFields(logrus.Fields{
			"occurrence": p.busy,
			"error":      err,
		}).Warn("Radio busy with a pending disconnect; update discarded")
		return nil
	default:
		p.logger.WithError(err).Error("Service update failed")
		return fmt.Errorf("update services: %w", err)
	}
}

func (p *Publisher) Published() bool {
	return p.published
}

// BusyCount is the number of updates discarded because the stack was busy.
func (p *Publisher) BusyCount() int {
	return p.busy
}

// Stop ends advertising. The registered services stay in place.
func (p *Publisher) Stop() {
	if p.cancelAdv != nil {
		p.cancelAdv()
	}
}

func (p *Publisher) record(kind BatchKind, entries []characteristic.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	overwrites, err := p.history.EnqueueM(Batch{At: p.opts.Now(), Kind: kind, Entries: entries})
	if err != nil {
		p.logger.WithError(err).Warn("Publish journal enqueue failed")
		return
	}
	if overwrites > 0 {
		p.logger.WithField("dropped", overwrites).Trace("Publish journal wrapped")
	}
}

// DrainHistory returns and clears the journal, oldest first. It is safe to
// call from any goroutine.
func (p *Publisher) DrainHistory() []Batch {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Batch
	for !p.history.IsEmpty() {
		b, err := p.history.Dequeue()
		if err != nil {
			break
		}
		out = append(out, b)
	}
	return out
}
