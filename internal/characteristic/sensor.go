package characteristic

import (
	"fmt"
	"math"

	"github.com/go-ble/ble"
)

// Sensor is a fixed sensor category advertised by the peripheral.
type Sensor int

const (
	Battery Sensor = iota
	Temperature
	Movement
	Button
)

// Sensors lists every sensor in table order.
func Sensors() []Sensor {
	return []Sensor{Battery, Temperature, Movement, Button}
}

func (s Sensor) String() string {
	switch s {
	case Battery:
		return "battery"
	case Temperature:
		return "temperature"
	case Movement:
		return "movement"
	case Button:
		return "button"
	default:
		return fmt.Sprintf("sensor(%d)", int(s))
	}
}

// UUID returns the 16-bit assigned number the sensor is advertised under.
func (s Sensor) UUID() ble.UUID {
	switch s {
	case Battery:
		return ble.UUID16(0x2A19) // Battery Level
	case Temperature:
		return ble.UUID16(0x2A6E) // Temperature
	case Movement:
		return ble.UUID16(0x2C01)
	case Button:
		return ble.UUID16(0x2AE2) // Boolean
	default:
		panic(fmt.Sprintf("characteristic: unknown sensor %d", int(s)))
	}
}

// ID is the table key for the sensor.
func (s Sensor) ID() ID {
	return IDFromUUID(s.UUID())
}

// Periodic reports whether the sensor is refreshed by the periodic sampling
// pass. Movement and button have their own update paths.
func (s Sensor) Periodic() bool {
	return s == Battery || s == Temperature
}

// FillerLen is the length of the neutral payload every sensor starts with.
const FillerLen = 31

// Filler returns the neutral payload (all bits set).
func Filler() []byte {
	b := make([]byte, FillerLen)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

// IsFiller reports whether v is the neutral payload.
func IsFiller(v []byte) bool {
	if len(v) != FillerLen {
		return false
	}
	for _, b := range v {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// EncodeBattery encodes a battery percentage as one unsigned byte in 0..100.
func EncodeBattery(percent float64) []byte {
	return []byte{uint8(clamp(math.Round(percent), 0, 100))}
}

// EncodeTemperature encodes degrees Celsius as one signed byte.
func EncodeTemperature(celsius float64) []byte {
	return []byte{byte(int8(clamp(math.Round(celsius), math.MinInt8, math.MaxInt8)))}
}

// EncodeFlag encodes a binary signal as a single 0 or 1 byte.
func EncodeFlag(on bool) []byte {
	if on {
		return []byte{1}
	}
	return []byte{0}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
