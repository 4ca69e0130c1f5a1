//go:build !linux && !darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blesense/internal/radio"
)

func newDefaultDevice() (ble.Device, error) {
	return nil, radio.ErrUnsupported
}
