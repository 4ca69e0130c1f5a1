// Package sampler reads the periodic sensors into the characteristic table
// and publishes each pass as one batch.
package sampler

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/platform"
)

// Republisher pushes the current table values to the radio.
type Republisher interface {
	Republish(table *characteristic.Table) error
}

// Change is a value that joins a sampling pass without being read from a
// sensor, such as a button payload.
type Change struct {
	Sensor characteristic.Sensor
	Value  []byte
}

type Sampler struct {
	table   *characteristic.Table
	sensors platform.Sensors
	pub     Republisher
	logger  *logrus.Logger
	passes  int
}

func New(table *characteristic.Table, sensors platform.Sensors, pub Republisher, logger *logrus.Logger) *Sampler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Sampler{table: table, sensors: sensors, pub: pub, logger: logger}
}

// SampleAll updates every periodic sensor, then republishes once.
func (s *Sampler) SampleAll() error {
	return s.SampleWith()
}

// SampleWith applies changes together with a sampling pass. All table
// updates complete before the single republish. A failed read keeps the
// previous value for that sensor.
func (s *Sampler) SampleWith(changes ...Change) error {
	for _, sensor := range characteristic.Sensors() {
		if !sensor.Periodic() {
			continue
		}
		value, err := s.read(sensor)
		if err != nil {
			s.logger.WithError(err).WithField("sensor", sensor).Warn("Sensor read failed, keeping previous value")
			continue
		}
		s.table.Set(sensor.ID(), value)
	}
	for _, c := range changes {
		s.table.Set(c.Sensor.ID(), c.Value)
	}

	s.passes++
	s.logger.WithFields(logrus.Fields{
		"pass":    s.passes,
		"changes": len(changes),
	}).Debug("Sampling pass complete")

	if err := s.pub.Republish(s.table); err != nil {
		return fmt.Errorf("republish after sampling: %w", err)
	}
	return nil
}

func (s *Sampler) read(sensor characteristic.Sensor) ([]byte, error) {
	switch sensor {
	case characteristic.Battery:
		v, err := s.sensors.BatteryPercentage()
		if err != nil {
			return nil, err
		}
		return characteristic.EncodeBattery(v), nil
	case characteristic.Temperature:
		v, err := s.sensors.Temperature()
		if err != nil {
			return nil, err
		}
		return characteristic.EncodeTemperature(v), nil
	default:
		return nil, fmt.Errorf("sensor %s has no reader", sensor)
	}
}

// Passes is the number of completed sampling passes.
func (s *Sampler) Passes() int {
	return s.passes
}
