package radio

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// LazyRegistry defers opening the radio stack until the service is first
// registered, so nothing touches the controller while startup is still
// settling or when the device turns out to be unconfigured.
type LazyRegistry struct {
	open   func() (Registry, error)
	logger *logrus.Logger

	mu  sync.Mutex
	reg Registry
}

func NewLazyRegistry(open func() (Registry, error), logger *logrus.Logger) *LazyRegistry {
	if logger == nil {
		logger = logrus.New()
	}
	return &LazyRegistry{open: open, logger: logger}
}

// Opened reports whether the underlying registry has been created.
func (r *LazyRegistry) Opened() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reg != nil
}

func (r *LazyRegistry) current() Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reg
}

// SetServices opens the registry on first use. A failed open is retried on
// the next call.
func (r *LazyRegistry) SetServices(svc Service) error {
	r.mu.Lock()
	if r.reg == nil {
		reg, err := r.open()
		if err != nil {
			r.mu.Unlock()
			return err
		}
		r.reg = reg
		r.logger.Debug("Radio registry opened")
	}
	reg := r.reg
	r.mu.Unlock()

	return reg.SetServices(svc)
}

func (r *LazyRegistry) UpdateServices(svc Service) error {
	reg := r.current()
	if reg == nil {
		return ErrNotPublished
	}
	return reg.UpdateServices(svc)
}

func (r *LazyRegistry) Advertise(ctx context.Context, adv Advertisement) error {
	reg := r.current()
	if reg == nil {
		return ErrNotPublished
	}
	return reg.Advertise(ctx, adv)
}

// Close closes the registry if it was ever opened.
func (r *LazyRegistry) Close() error {
	reg := r.current()
	if reg == nil {
		return nil
	}
	return reg.Close()
}
