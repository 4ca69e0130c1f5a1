package goble

import (
	"fmt"
	"strings"

	"github.com/srg/blesense/internal/radio"
)

// NormalizeError maps known go-ble error strings onto radio.StackError
// sentinels, keeping the original error text.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "central manager has invalid state"),
		strings.Contains(msg, "bluetooth is turned off"),
		strings.Contains(msg, "can't init hci"),
		strings.Contains(msg, "no such device"),
		strings.Contains(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", radio.ErrAdapterUnavailable, err)
	case radio.IsBusyMessage(msg):
		return fmt.Errorf("%w: %v", radio.ErrBusy, err)
	default:
		return err
	}
}
