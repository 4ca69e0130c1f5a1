package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/devconfig"
	"github.com/srg/blesense/internal/kvstore"
	"github.com/srg/blesense/internal/platform"
	"github.com/srg/blesense/internal/platform/periph"
	"github.com/srg/blesense/internal/platform/sim"
	"github.com/srg/blesense/internal/radio"
	goble "github.com/srg/blesense/internal/radio/go-ble"
	tinyble "github.com/srg/blesense/internal/radio/tinygo"
	"github.com/srg/blesense/pkg/config"
)

// Backend constructors; tests replace them.
var (
	registryFactory = newRegistry
	platformFactory = newPlatform
	storeFactory    = openStore
)

func newRegistry(cfg *config.Config, logger *logrus.Logger) (radio.Registry, error) {
	switch cfg.Radio.Backend {
	case "go-ble":
		return goble.NewRegistry(logger)
	case "tinygo":
		return tinyble.NewRegistry(logger)
	case "log":
		return radio.NewLogRegistry(logger), nil
	default:
		return nil, fmt.Errorf("unknown radio backend %q", cfg.Radio.Backend)
	}
}

// newPlatform returns the platform and, for the simulator, the concrete
// sim so the console can drive it.
func newPlatform(cfg *config.Config, logger *logrus.Logger) (platform.Platform, *sim.Platform, error) {
	switch platform.Kind(cfg.Platform.Kind) {
	case platform.KindSim:
		p, err := sim.New(sim.Options{
			Battery:     cfg.Platform.Sim.Battery,
			Temperature: cfg.Platform.Sim.Temperature,
			Script:      cfg.Platform.Sim.Script,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case platform.KindPeriph:
		board := cfg.Platform.Periph
		p, err := periph.Open(periph.Options{
			ButtonPin:     board.ButtonPin,
			MotionPin:     board.MotionPin,
			LEDPins:       board.LEDPins,
			I2CBus:        board.I2CBus,
			BME280Address: board.BME280Address,
			BatteryPath:   board.BatteryPath,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown platform %q", cfg.Platform.Kind)
	}
}

func openStore(cfg *config.Config, logger *logrus.Logger) (kvstore.Store, error) {
	return kvstore.Open(kvstore.Kind(cfg.Store.Kind), cfg.Store.Path, logger)
}

// openGate opens the config store and wraps it in the gate. The caller
// closes the returned store.
func openGate(cfg *config.Config, logger *logrus.Logger) (*devconfig.Gate, kvstore.Store, error) {
	store, err := storeFactory(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open config store: %w", err)
	}
	return devconfig.NewGate(store, logger), store, nil
}
