package radio

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/characteristic"
)

// LogRegistry is a registry without a radio: it logs what would be sent.
// Used for bench runs on machines without a usable controller.
type LogRegistry struct {
	logger *logrus.Logger

	mu         sync.Mutex
	registered bool
	last       map[characteristic.ID][]byte
}

func NewLogRegistry(logger *logrus.Logger) *LogRegistry {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogRegistry{logger: logger, last: make(map[characteristic.ID][]byte)}
}

func (r *LogRegistry) SetServices(svc Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		return ErrAlreadyPublished
	}
	r.registered = true
	for _, e := range svc.Entries {
		r.last[e.ID] = e.Value
		r.logger.WithFields(logrus.Fields{
			"service":  svc.UUID.String(),
			"uuid":     e.ID,
			"readable": e.Readable,
			"notify":   e.Notify,
		}).Info("Characteristic registered")
	}
	return nil
}

// UpdateServices logs only the characteristics whose value changed.
func (r *LogRegistry) UpdateServices(svc Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.registered {
		return ErrNotPublished
	}
	for _, e := range svc.Entries {
		if prev, ok := r.last[e.ID]; ok && string(prev) == string(e.Value) {
			continue
		}
		r.last[e.ID] = e.Value
		if e.Notify {
			r.logger.WithFields(logrus.Fields{
				"uuid":  e.ID,
				"value": hex.EncodeToString(e.Value),
			}).Info("Notify")
		}
	}
	return nil
}

func (r *LogRegistry) Advertise(ctx context.Context, adv Advertisement) error {
	r.logger.WithFields(logrus.Fields{
		"name":         adv.Name,
		"service":      adv.ServiceUUID.String(),
		"manufacturer": adv.ManufacturerID,
	}).Info("Advertising")
	<-ctx.Done()
	return ctx.Err()
}

func (r *LogRegistry) Close() error { return nil }
