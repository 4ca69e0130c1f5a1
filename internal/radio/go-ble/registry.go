// Package goble implements the radio service registry as a GATT server on
// top of github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/radio"
)

// DeviceFactory creates the ble.Device (can be overridden in tests)
//
//nolint:revive // exported for test injection
var DeviceFactory = newDefaultDevice

var userDescriptionUUID = ble.UUID16(0x2901)

// Registry serves one service. Read handlers answer with the latest value;
// notify handlers register subscribers that UpdateServices writes to.
type Registry struct {
	dev    ble.Device
	logger *logrus.Logger

	mu         sync.Mutex
	registered bool
	chars      map[characteristic.ID]*charState
	mfgWarned  bool
}

func NewRegistry(logger *logrus.Logger) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
	}
	dev, err := DeviceFactory()
	if err != nil {
		logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	return &Registry{dev: dev, logger: logger, chars: make(map[characteristic.ID]*charState)}, nil
}

func (r *Registry) SetServices(svc radio.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		return radio.ErrAlreadyPublished
	}

	chars := make(map[characteristic.ID]*charState, len(svc.Entries))
	service := ble.NewService(svc.UUID)
	for _, e := range svc.Entries {
		uuid, err := e.ID.UUID()
		if err != nil {
			return fmt.Errorf("characteristic %s: %w", e.ID, err)
		}
		st := newCharState(e.ID, e.Value, r.logger)
		chars[e.ID] = st

		c := service.NewCharacteristic(uuid)
		if e.Readable {
			c.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				if _, err := rsp.Write(st.get()); err != nil {
					r.logger.WithError(err).WithField("uuid", e.ID).Debug("Read response failed")
				}
			}))
		}
		if e.Writable {
			c.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				st.set(req.Data())
			}))
		}
		if e.Notify {
			c.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
				st.serve(n)
			}))
		}
		if e.Description != "" {
			c.NewDescriptor(userDescriptionUUID).SetValue([]byte(e.Description))
		}
	}

	if err := r.dev.SetServices([]*ble.Service{service}); err != nil {
		return NormalizeError(err)
	}

	r.chars = chars
	r.registered = true
	r.logger.WithFields(logrus.Fields{
		"service":         svc.UUID.String(),
		"characteristics": len(chars),
	}).Debug("GATT service registered")
	return nil
}

// UpdateServices stores the new values and notifies subscribers of every
// notifying characteristic. Subscribers whose connection is going down make
// the update fail with radio.ErrBusy after all values are stored.
func (r *Registry) UpdateServices(svc radio.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.registered {
		return radio.ErrNotPublished
	}

	busy := false
	for _, e := range svc.Entries {
		st, ok := r.chars[e.ID]
		if !ok {
			return fmt.Errorf("characteristic %s was not registered", e.ID)
		}
		st.set(e.Value)
		if !e.Notify {
			continue
		}
		if err := st.notify(e.Value); err != nil {
			err = NormalizeError(err)
			if !errors.Is(err, radio.ErrBusy) {
				return err
			}
			busy = true
		}
	}

	if busy {
		return fmt.Errorf("%w: subscriber connection closing", radio.ErrBusy)
	}
	return nil
}

// Advertise advertises the name and service UUID until ctx is done.
// go-ble's combined advertisement carries no manufacturer data.
func (r *Registry) Advertise(ctx context.Context, adv radio.Advertisement) error {
	r.mu.Lock()
	if len(adv.ManufacturerData) > 0 && !r.mfgWarned {
		r.mfgWarned = true
		r.logger.WithField("manufacturer", fmt.Sprintf("0x%04x", adv.ManufacturerID)).
			Debug("Manufacturer data is not advertised by the go-ble backend")
	}
	r.mu.Unlock()

	var uuids []ble.UUID
	if adv.ServiceUUID != nil {
		uuids = append(uuids, adv.ServiceUUID)
	}
	name := adv.Name
	if !adv.ShowName {
		name = ""
	}
	return NormalizeError(r.dev.AdvertiseNameAndServices(ctx, name, uuids...))
}

func (r *Registry) Close() error {
	return NormalizeError(r.dev.Stop())
}
