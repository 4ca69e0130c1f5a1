package main

import (
	"errors"
	"fmt"

	"github.com/srg/blesense/internal/devconfig"
	"github.com/srg/blesense/internal/kvstore"
	"github.com/srg/blesense/internal/radio"
)

// Command-level errors
var (
	// ErrAlreadyProvisioned is returned when a config record exists and
	// provisioning would have to overwrite it.
	ErrAlreadyProvisioned = errors.New("device already provisioned")
)

// FormatUserError turns known failures into a one-line hint.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, radio.ErrAdapterUnavailable):
		return fmt.Sprintf("%v\n  Bluetooth adapter is unavailable; check that it is powered on and that the process may use it", err)
	case errors.Is(err, ErrAlreadyProvisioned):
		return fmt.Sprintf("%v\n  Run 'blesense config erase' first to provision again", err)
	case errors.Is(err, devconfig.ErrInvalid):
		return fmt.Sprintf("%v\n  The config record needs an id, an absolute endpoint URL and a positive update interval", err)
	case errors.Is(err, devconfig.ErrNotConfigured), errors.Is(err, kvstore.ErrNotFound):
		return fmt.Sprintf("%v\n  Run 'blesense provision' to create the config record", err)
	default:
		return err.Error()
	}
}
