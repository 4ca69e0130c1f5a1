package devconfig

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/kvstore"
)

// Gate reads and guards the device config record.
type Gate struct {
	store  kvstore.Store
	logger *logrus.Logger
}

func NewGate(store kvstore.Store, logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gate{store: store, logger: logger}
}

// Load returns the record stored under name. Exactly one stored record must
// match the name pattern and that record must be name itself; anything else,
// unreadable content or a non-positive interval yields an error wrapping
// ErrNotConfigured. The record is otherwise returned as stored.
func (g *Gate) Load(name string) (*DeviceConfig, error) {
	log := g.logger.WithField("record", name)

	matches, err := g.store.List(kvstore.PatternFor(name))
	if err != nil {
		log.WithError(err).Warn("Config store listing failed")
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}

	switch len(matches) {
	case 0:
		log.Info("No config record found")
		return nil, fmt.Errorf("%w: no record matches %q", ErrNotConfigured, name)
	case 1:
	default:
		log.WithField("matches", matches).Warn("Ambiguous config records; refusing to choose")
		return nil, fmt.Errorf("%w: %d records match %q", ErrNotConfigured, len(matches), name)
	}

	data, err := g.store.Read(name)
	if err != nil {
		log.WithError(err).WithField("match", matches[0]).Warn("Config record unreadable")
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}

	var cfg DeviceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.WithError(err).Warn("Config record is not valid JSON")
		return nil, fmt.Errorf("%w: %w: %w", ErrNotConfigured, ErrInvalid, err)
	}
	if err := cfg.Usable(); err != nil {
		log.WithError(err).Warn("Config record rejected")
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}

	log.WithFields(logrus.Fields{
		"id":       cfg.ID,
		"endpoint": cfg.Endpoint,
		"interval": cfg.UpdateInterval(),
	}).Debug("Config loaded")

	return &cfg, nil
}

// Exists reports whether any stored record matches the name pattern.
func (g *Gate) Exists(name string) (bool, error) {
	matches, err := g.store.List(kvstore.PatternFor(name))
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// Write stores cfg under name unless a matching record already exists.
// It returns false, with no error and nothing written, in that case.
func (g *Gate) Write(name string, cfg DeviceConfig) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}

	exists, err := g.Exists(name)
	if err != nil {
		return false, fmt.Errorf("config store listing failed: %w", err)
	}
	if exists {
		g.logger.WithField("record", name).Warn("Config record already exists; not overwritten")
		return false, nil
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("encode config: %w", err)
	}
	if err := g.store.Write(name, data); err != nil {
		return false, err
	}

	g.logger.WithFields(logrus.Fields{"record": name, "id": cfg.ID}).Info("Config record written")
	return true, nil
}

// Erase removes the record so the device can be provisioned again.
func (g *Gate) Erase(name string) error {
	return g.store.Erase(name)
}
