//go:build linux

// Package tinyble implements the radio service registry on top of
// tinygo.org/x/bluetooth. Unlike go-ble it advertises manufacturer data
// together with the name and service UUID. The BlueZ backend of that
// library has no descriptor support, so user descriptions are not served.
package tinyble

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/radio"
	"tinygo.org/x/bluetooth"
)

type Registry struct {
	adapter *bluetooth.Adapter
	logger  *logrus.Logger

	mu         sync.Mutex
	registered bool
	handles    map[characteristic.ID]*bluetooth.Characteristic
}

// NewRegistry enables the default adapter.
func NewRegistry(logger *logrus.Logger) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
	}
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: enable adapter: %v", radio.ErrAdapterUnavailable, err)
	}
	return &Registry{adapter: adapter, logger: logger}, nil
}

func (r *Registry) SetServices(svc radio.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		return radio.ErrAlreadyPublished
	}

	serviceUUID, err := ToUUID(characteristic.IDFromUUID(svc.UUID))
	if err != nil {
		return err
	}

	configs, handles, undescribed, err := characteristicConfigs(svc.Entries)
	if err != nil {
		return err
	}
	if len(undescribed) > 0 {
		r.logger.WithField("characteristics", undescribed).
			Debug("User descriptions are not served by the tinygo backend")
	}

	if err := r.adapter.AddService(&bluetooth.Service{UUID: serviceUUID, Characteristics: configs}); err != nil {
		return fmt.Errorf("add service: %w", err)
	}

	r.handles = handles
	r.registered = true
	r.logger.WithFields(logrus.Fields{
		"service":         serviceUUID.String(),
		"characteristics": len(handles),
	}).Debug("GATT service registered")
	return nil
}

// characteristicConfigs builds one config with a fresh handle per entry, in
// table order. It also lists the entries whose description cannot be carried.
func characteristicConfigs(entries []characteristic.Entry) ([]bluetooth.CharacteristicConfig, map[characteristic.ID]*bluetooth.Characteristic, []characteristic.ID, error) {
	handles := make(map[characteristic.ID]*bluetooth.Characteristic, len(entries))
	configs := make([]bluetooth.CharacteristicConfig, 0, len(entries))
	var undescribed []characteristic.ID
	for _, e := range entries {
		uuid, err := ToUUID(e.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		h := new(bluetooth.Characteristic)
		handles[e.ID] = h
		configs = append(configs, bluetooth.CharacteristicConfig{
			Handle: h,
			UUID:   uuid,
			Value:  append([]byte(nil), e.Value...),
			Flags:  Permissions(e.Record),
		})
		if e.Description != "" {
			undescribed = append(undescribed, e.ID)
		}
	}
	return configs, handles, undescribed, nil
}

// UpdateServices writes every value through its handle; BlueZ notifies
// subscribed centrals of the change.
func (r *Registry) UpdateServices(svc radio.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.registered {
		return radio.ErrNotPublished
	}

	busy := false
	for _, e := range svc.Entries {
		h, ok := r.handles[e.ID]
		if !ok {
			return fmt.Errorf("characteristic %s was not registered", e.ID)
		}
		if _, err := h.Write(e.Value); err != nil {
			if radio.IsBusyMessage(err.Error()) {
				busy = true
				continue
			}
			return fmt.Errorf("characteristic %s: %w", e.ID, err)
		}
	}
	if busy {
		return fmt.Errorf("%w: characteristic write raced a disconnect", radio.ErrBusy)
	}
	return nil
}

func (r *Registry) Advertise(ctx context.Context, adv radio.Advertisement) error {
	opts := bluetooth.AdvertisementOptions{
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: adv.ManufacturerID, Data: adv.ManufacturerData},
		},
	}
	if adv.ShowName {
		opts.LocalName = adv.Name
	}
	if adv.ServiceUUID != nil {
		uuid, err := ToUUID(characteristic.IDFromUUID(adv.ServiceUUID))
		if err != nil {
			return err
		}
		opts.ServiceUUIDs = []bluetooth.UUID{uuid}
	}

	a := r.adapter.DefaultAdvertisement()
	if err := a.Configure(opts); err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := a.Start(); err != nil {
		return fmt.Errorf("start advertisement: %w", err)
	}
	r.logger.WithField("name", opts.LocalName).Debug("Advertising started")

	<-ctx.Done()
	if err := a.Stop(); err != nil {
		r.logger.WithError(err).Warn("Failed to stop advertising")
	}
	return ctx.Err()
}

func (r *Registry) Close() error {
	return nil
}

// ToUUID converts a characteristic ID to a bluetooth.UUID. 4-digit IDs are
// SIG 16-bit UUIDs; 32-digit IDs are full 128-bit UUIDs without dashes.
func ToUUID(id characteristic.ID) (bluetooth.UUID, error) {
	s := string(id)
	switch len(s) {
	case 4:
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return bluetooth.UUID{}, fmt.Errorf("invalid 16-bit UUID %q: %w", s, err)
		}
		return bluetooth.New16BitUUID(uint16(v)), nil
	case 32:
		dashed := strings.Join([]string{s[0:8], s[8:12], s[12:16], s[16:20], s[20:32]}, "-")
		uuid, err := bluetooth.ParseUUID(dashed)
		if err != nil {
			return bluetooth.UUID{}, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		return uuid, nil
	default:
		return bluetooth.UUID{}, fmt.Errorf("invalid UUID %q: unexpected length %d", s, len(s))
	}
}

// Permissions maps a table record onto characteristic permission flags.
func Permissions(rec characteristic.Record) bluetooth.CharacteristicPermissions {
	var flags bluetooth.CharacteristicPermissions
	if rec.Readable {
		flags |= bluetooth.CharacteristicReadPermission
	}
	if rec.Writable {
		flags |= bluetooth.CharacteristicWritePermission
	}
	if rec.Notify {
		flags |= bluetooth.CharacteristicNotifyPermission
	}
	return flags
}
