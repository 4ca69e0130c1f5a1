package goble

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// fakeDevice implements ble.Device and records what the registry hands it.
type fakeDevice struct {
	mu        sync.Mutex
	services  []*ble.Service
	setErr    error
	advName   string
	advUUIDs  []ble.UUID
	stopped   bool
	advertise chan struct{}
}

func (d *fakeDevice) AddService(svc *ble.Service) error { return nil }
func (d *fakeDevice) RemoveAllServices() error          { return nil }
func (d *fakeDevice) SetServices(svcs []*ble.Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setErr != nil {
		return d.setErr
	}
	d.services = svcs
	return nil
}
func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}
func (d *fakeDevice) Advertise(ctx context.Context, adv ble.Advertisement) error { return nil }
func (d *fakeDevice) AdvertiseNameAndServices(ctx context.Context, name string, ss ...ble.UUID) error {
	d.mu.Lock()
	d.advName = name
	d.advUUIDs = ss
	d.mu.Unlock()
	close(d.advertise)
	<-ctx.Done()
	return ctx.Err()
}
func (d *fakeDevice) AdvertiseIBeacon(ctx context.Context, u ble.UUID, major, minor uint16, pwr int8) error {
	return nil
}
func (d *fakeDevice) AdvertiseIBeaconData(ctx context.Context, b []byte) error        { return nil }
func (d *fakeDevice) AdvertiseMfgData(ctx context.Context, id uint16, b []byte) error { return nil }
func (d *fakeDevice) AdvertiseServiceData16(ctx context.Context, id uint16, b []byte) error {
	return nil
}
func (d *fakeDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error { return nil }
func (d *fakeDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error)        { return nil, nil }

// fakeNotifier is a subscriber whose writes can be made to fail.
type fakeNotifier struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	writes [][]byte
	err    error
}

func newFakeNotifier() *fakeNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeNotifier{ctx: ctx, cancel: cancel}
}

func (n *fakeNotifier) Write(b []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return 0, n.err
	}
	n.writes = append(n.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (n *fakeNotifier) Context() context.Context { return n.ctx }

func (n *fakeNotifier) Writes() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.writes...)
}

type RegistryTestSuite struct {
	suite.Suite
	dev             *fakeDevice
	registry        *Registry
	logger          *logrus.Logger
	originalFactory func() (ble.Device, error)
}

func (s *RegistryTestSuite) SetupTest() {
	s.logger, _ = test.NewNullLogger()
	s.dev = &fakeDevice{advertise: make(chan struct{})}
	s.originalFactory = DeviceFactory
	DeviceFactory = func() (ble.Device, error) { return s.dev, nil }

	var err error
	s.registry, err = NewRegistry(s.logger)
	s.Require().NoError(err)
}

func (s *RegistryTestSuite) TearDownTest() {
	DeviceFactory = s.originalFactory
}

func (s *RegistryTestSuite) service() radio.Service {
	entries := []characteristic.Entry{{
		ID:     characteristic.IDFromUUID(radio.DefaultServiceUUID),
		Record: characteristic.Record{Value: []byte("i=a;e=/b"), Readable: true, Description: "Device Configuration"},
	}}
	for _, sensor := range characteristic.Sensors() {
		entries = append(entries, characteristic.Entry{
			ID:     sensor.ID(),
			Record: characteristic.Record{Value: characteristic.Filler(), Readable: true, Notify: true},
		})
	}
	return radio.Service{UUID: radio.DefaultServiceUUID, Entries: entries}
}

func (s *RegistryTestSuite) TestSetServicesBuildsGATTService() {
	// GOAL: Verify every table entry becomes a characteristic with matching properties
	//
	// TEST SCENARIO: register 5 entries → one service → config is read-only with a description → sensors notify

	s.Require().NoError(s.registry.SetServices(s.service()))

	s.Require().Len(s.dev.services, 1, "exactly one service MUST be registered")
	svc := s.dev.services[0]
	s.Assert().True(svc.UUID.Equal(radio.DefaultServiceUUID))
	s.Require().Len(svc.Characteristics, 5)

	cfg := svc.Characteristics[0]
	s.Assert().True(cfg.UUID.Equal(radio.DefaultServiceUUID), "config characteristic MUST share the service UUID")
	s.Assert().NotZero(cfg.Property&ble.CharRead, "config MUST be readable")
	s.Assert().Zero(cfg.Property&ble.CharNotify, "config MUST NOT notify")
	s.Require().Len(cfg.Descriptors, 1)
	s.Assert().Equal([]byte("Device Configuration"), cfg.Descriptors[0].Value)

	battery := svc.Characteristics[1]
	s.Assert().True(battery.UUID.Equal(ble.UUID16(0x2A19)))
	s.Assert().NotZero(battery.Property&ble.CharNotify, "sensor MUST notify")
	s.Assert().Empty(battery.Descriptors, "sensor MUST NOT carry a description")

	err := s.registry.SetServices(s.service())
	s.Assert().ErrorIs(err, radio.ErrAlreadyPublished, "second registration MUST be rejected")
}

func (s *RegistryTestSuite) TestSetServicesFailureIsNormalized() {
	s.dev.setErr = errors.New("central manager has invalid state: 4")
	err := s.registry.SetServices(s.service())
	s.Assert().ErrorIs(err, radio.ErrAdapterUnavailable)

	err = s.registry.UpdateServices(s.service())
	s.Assert().ErrorIs(err, radio.ErrNotPublished, "failed registration MUST leave the registry unpublished")
}

func (s *RegistryTestSuite) TestUpdateServicesNotifiesSubscribers() {
	s.Require().NoError(s.registry.SetServices(s.service()))

	battery := s.registry.chars[characteristic.Battery.ID()]
	n := newFakeNotifier()
	defer n.cancel()
	done := make(chan struct{})
	go func() {
		battery.serve(n)
		close(done)
	}()
	s.Require().Eventually(func() bool { return battery.subscriberCount() == 1 }, timeout, tick)

	svc := s.service()
	svc.Entries[1].Value = []byte{42}
	s.Require().NoError(s.registry.UpdateServices(svc))

	s.Assert().Equal([][]byte{{42}}, n.Writes(), "subscriber MUST receive the new value")
	s.Assert().Equal([]byte{42}, battery.get(), "read handler MUST see the new value")

	n.cancel()
	<-done
	s.Assert().Zero(battery.subscriberCount(), "cancelled subscriber MUST be removed")
}

func (s *RegistryTestSuite) TestUpdateServicesBusy() {
	// GOAL: Verify a subscriber torn down mid-update yields ErrBusy while all values are stored

	s.Require().NoError(s.registry.SetServices(s.service()))

	temp := s.registry.chars[characteristic.Temperature.ID()]
	n := newFakeNotifier()
	n.err = errors.New("Can't update services until BLE restart")
	go temp.serve(n)
	defer n.cancel()
	s.Require().Eventually(func() bool { return temp.subscriberCount() == 1 }, timeout, tick)

	svc := s.service()
	svc.Entries[2].Value = []byte{20}
	svc.Entries[3].Value = []byte{1}
	err := s.registry.UpdateServices(svc)

	s.Assert().ErrorIs(err, radio.ErrBusy)
	s.Assert().Equal([]byte{20}, temp.get())
	s.Assert().Equal([]byte{1}, s.registry.chars[characteristic.Movement.ID()].get(), "later entries MUST still be stored")
}

func (s *RegistryTestSuite) TestUpdateUnknownCharacteristic() {
	s.Require().NoError(s.registry.SetServices(s.service()))
	svc := s.service()
	svc.Entries = append(svc.Entries, characteristic.Entry{ID: "ffe1", Record: characteristic.Record{Value: []byte{1}}})
	s.Assert().Error(s.registry.UpdateServices(svc))
}

func (s *RegistryTestSuite) TestAdvertise() {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.registry.Advertise(ctx, radio.Advertisement{
			Name:             "dec4IoT Device",
			ShowName:         true,
			ServiceUUID:      radio.DefaultServiceUUID,
			ManufacturerID:   radio.DefaultManufacturerID,
			ManufacturerData: []byte("{}"),
		})
	}()

	<-s.dev.advertise
	cancel()
	s.Assert().ErrorIs(<-errCh, context.Canceled)
	s.Assert().Equal("dec4IoT Device", s.dev.advName)
	s.Require().Len(s.dev.advUUIDs, 1)
	s.Assert().True(s.dev.advUUIDs[0].Equal(radio.DefaultServiceUUID))

	s.Require().NoError(s.registry.Close())
	s.Assert().True(s.dev.stopped)
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func TestNormalizeError(t *testing.T) {
	assert.Nil(t, NormalizeError(nil))
	assert.ErrorIs(t, NormalizeError(errors.New("Bluetooth is turned off")), radio.ErrAdapterUnavailable)
	assert.ErrorIs(t, NormalizeError(errors.New("operation in progress")), radio.ErrBusy)

	other := errors.New("att: invalid handle")
	assert.Same(t, other, NormalizeError(other), "unknown errors MUST pass through unchanged")
}

func TestNotifySkipsClosingSubscriber(t *testing.T) {
	logger, _ := test.NewNullLogger()
	st := newCharState("2a19", []byte{0}, logger)

	live, closing := newFakeNotifier(), newFakeNotifier()
	defer live.cancel()
	st.subscribers[live] = struct{}{}
	st.subscribers[closing] = struct{}{}
	closing.cancel()

	err := st.notify([]byte{7})
	assert.ErrorIs(t, err, radio.ErrBusy, "closing subscriber MUST report busy")
	assert.Equal(t, [][]byte{{7}}, live.Writes(), "live subscriber MUST still be notified")
	assert.Empty(t, closing.Writes())
}
