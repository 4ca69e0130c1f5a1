// Package devconfig holds the device identity record and the gate that
// decides whether the peripheral may activate its radio at all.
package devconfig

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultName is the record name the device looks for at boot.
const DefaultName = "main.json"

var (
	// ErrNotConfigured is terminal for the session: the peripheral stays passive.
	ErrNotConfigured = errors.New("device not configured")
	ErrInvalid       = errors.New("invalid device config")
)

// DeviceConfig is loaded once at startup and never changes afterwards.
type DeviceConfig struct {
	ID                  string `json:"id" yaml:"id"`
	Endpoint            string `json:"api" yaml:"api"`
	UpdateIntervalHours int    `json:"update" yaml:"update"`
}

// Usable reports whether a stored record can drive the peripheral. Only the
// sampling interval is checked; id and endpoint are served as stored.
func (c *DeviceConfig) Usable() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalid)
	}
	if c.UpdateIntervalHours <= 0 {
		return fmt.Errorf("%w: update interval must be a positive number of hours, got %d", ErrInvalid, c.UpdateIntervalHours)
	}
	return nil
}

// Validate is the stricter check applied before a record is written.
func (c *DeviceConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalid)
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalid)
	}
	if strings.ContainsAny(c.ID, ";=") {
		return fmt.Errorf("%w: id %q must not contain ';' or '='", ErrInvalid, c.ID)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: endpoint %q is not an absolute URL", ErrInvalid, c.Endpoint)
	}
	if c.UpdateIntervalHours <= 0 {
		return fmt.Errorf("%w: update interval must be a positive number of hours, got %d", ErrInvalid, c.UpdateIntervalHours)
	}
	return nil
}

// UpdateInterval is the period of the recurring sampling pass.
func (c *DeviceConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalHours) * time.Hour
}

// Blob renders the text served by the configuration characteristic.
func (c *DeviceConfig) Blob() string {
	return fmt.Sprintf("i=%s;e=%s", c.ID, EndpointPath(c.Endpoint))
}

// EndpointPath strips the first three "/"-separated tokens of the URL string
// ("https:", "", host) and returns the rest as an absolute path.
//
//	https://host.example/api/v1/ingest -> /api/v1/ingest
func EndpointPath(endpoint string) string {
	tokens := strings.Split(endpoint, "/")
	if len(tokens) <= 3 {
		return "/"
	}
	return "/" + strings.Join(tokens[3:], "/")
}
