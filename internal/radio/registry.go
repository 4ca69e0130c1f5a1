// Package radio wraps the radio service registry and owns the rule
// "register once, then batch-republish on change".
package radio

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/blesense/internal/characteristic"
)

// DefaultServiceUUID is the service every characteristic is published under.
// The configuration characteristic reuses it as its own identifier.
var DefaultServiceUUID = ble.MustParse("34defd2c-c8fe-b18e-9a70-591970cba32b")

// DefaultManufacturerID is the company code carried in advertisements.
const DefaultManufacturerID uint16 = 0x0590

// Service is one service with its characteristics, in table order.
type Service struct {
	UUID    ble.UUID
	Entries []characteristic.Entry
}

// Advertisement is the advertising metadata.
type Advertisement struct {
	Name             string
	ShowName         bool
	ServiceUUID      ble.UUID
	ManufacturerID   uint16
	ManufacturerData []byte
}

// Registry is the radio stack's service registry.
//
// SetServices registers the service structure; UpdateServices pushes new
// values for already registered characteristics and notifies subscribers.
// UpdateServices may fail with ErrBusy while a connection is being torn down.
// Advertise blocks until ctx is done or advertising fails.
type Registry interface {
	SetServices(svc Service) error
	UpdateServices(svc Service) error
	Advertise(ctx context.Context, adv Advertisement) error
	Close() error
}
