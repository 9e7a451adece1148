package driver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/aquabled/internal/apperr"
	"github.com/srg/aquabled/internal/device"
	"github.com/srg/aquabled/internal/protocol"
)

// fakeCharacteristic records every write it receives.
type fakeCharacteristic struct {
	mu     sync.Mutex
	writes [][]byte
	failAt int // 0 means never fail
}

func (c *fakeCharacteristic) UUID() string                         { return uartRXUUID }
func (c *fakeCharacteristic) KnownName() string                    { return "uart-rx" }
func (c *fakeCharacteristic) GetProperties() device.Properties     { return nil }
func (c *fakeCharacteristic) GetDescriptors() []device.Descriptor  { return nil }
func (c *fakeCharacteristic) Read(time.Duration) ([]byte, error)   { return nil, nil }
func (c *fakeCharacteristic) Write(data []byte, _ bool, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt != 0 && len(c.writes)+1 == c.failAt {
		c.writes = append(c.writes, data)
		return errWriteFailed
	}
	c.writes = append(c.writes, data)
	return nil
}

var errWriteFailed = &fakeError{"write failed"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }

func (c *fakeCharacteristic) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// fakeConnection hands back a single fake characteristic and remembers the
// subscription callback so tests can push notifications through it.
type fakeConnection struct {
	rx       *fakeCharacteristic
	callback func(*device.Record)
}

func (c *fakeConnection) Services() []device.Service { return nil }
func (c *fakeConnection) GetService(string) (device.Service, error) {
	return nil, nil
}
func (c *fakeConnection) GetCharacteristic(service, uuid string) (device.Characteristic, error) {
	if uuid == uartRXUUID {
		return c.rx, nil
	}
	return nil, &device.NotFoundError{}
}
func (c *fakeConnection) Subscribe(_ []*device.SubscribeOptions, _ device.StreamMode, _ time.Duration, callback func(*device.Record)) error {
	c.callback = callback
	return nil
}

// fakeDevice is a minimal device.Device backed by a fakeConnection.
type fakeDevice struct {
	address      string
	conn         *fakeConnection
	connected    bool
	disconnected int
}

func (d *fakeDevice) ID() string                       { return d.address }
func (d *fakeDevice) Name() string                     { return "fake" }
func (d *fakeDevice) Address() string                  { return d.address }
func (d *fakeDevice) RSSI() int                         { return 0 }
func (d *fakeDevice) TxPower() *int                     { return nil }
func (d *fakeDevice) IsConnectable() bool               { return true }
func (d *fakeDevice) AdvertisedServices() []string      { return nil }
func (d *fakeDevice) ManufacturerData() []byte          { return nil }
func (d *fakeDevice) ServiceData() map[string][]byte    { return nil }
func (d *fakeDevice) Update(device.Advertisement)       {}
func (d *fakeDevice) GetConnection() device.Connection  { return d.conn }
func (d *fakeDevice) IsConnected() bool                 { return d.connected }
func (d *fakeDevice) Connect(context.Context, *device.ConnectOptions) error {
	d.connected = true
	return nil
}
func (d *fakeDevice) Disconnect() error {
	d.connected = false
	d.disconnected++
	return nil
}

func newTestDriver(kind Kind) (*Driver, *fakeDevice) {
	rx := &fakeCharacteristic{}
	conn := &fakeConnection{rx: rx}
	dev := &fakeDevice{address: "AA:BB:CC:DD:EE:FF", conn: conn}
	connector := func(address string, logger *logrus.Logger) device.Device { return dev }
	drv := New(dev.address, kind, connector, logrus.New(), 24*time.Hour, 1000)
	return drv, dev
}

func TestConnectSubscribesAndArmsIdleTimer(t *testing.T) {
	drv, dev := newTestDriver(KindLight)
	if err := drv.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dev.connected {
		t.Error("expected underlying device to be connected")
	}
	if !drv.IsConnected() {
		t.Error("expected driver to report connected")
	}
	if dev.conn.callback == nil {
		t.Error("expected subscription callback to be registered")
	}
}

func TestSendCommandConnectsLazily(t *testing.T) {
	drv, dev := newTestDriver(KindPump)
	err := drv.SendCommand(context.Background(), protocol.CreateStatusRequestCommand)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dev.connected {
		t.Error("expected SendCommand to connect lazily")
	}
	if dev.conn.rx.writeCount() != 1 {
		t.Errorf("write count = %d, want 1", dev.conn.rx.writeCount())
	}
}

func TestSendCommandDisconnectsOnWriteFailure(t *testing.T) {
	drv, dev := newTestDriver(KindPump)
	if err := drv.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dev.conn.rx.failAt = 1

	err := drv.SendCommand(context.Background(), protocol.CreateStatusRequestCommand)
	if err == nil {
		t.Fatal("expected error from failed write")
	}
	if !apperrIsNotReachable(err) {
		t.Errorf("expected not-reachable error, got %v", err)
	}
	if dev.connected {
		t.Error("expected driver to force-disconnect after write failure")
	}
}

func apperrIsNotReachable(err error) bool {
	return errorsIs(err, apperr.ErrNotReachable)
}

func errorsIs(err, target error) bool {
	type iser interface{ Is(error) bool }
	for err != nil {
		if e, ok := err.(iser); ok && e.Is(target) {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestHandleLightNotificationUpdatesStatus(t *testing.T) {
	drv, dev := newTestDriver(KindLight)
	if err := drv.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := []byte{0x5B, 0x01, 0x0C, 0x00, 0x01, 0xFE, 0x04, 0x06, 0x1E, 10, 30, 50, 0, 0, 0, 0, 0}
	dev.conn.callback(&device.Record{Values: map[string][]byte{uartTXUUID: payload}})

	status := drv.LastStatus()
	if status.Light == nil {
		t.Fatal("expected light status to be recorded")
	}
}

func TestHandlePumpNotificationKeepsPreviousOnParseFailure(t *testing.T) {
	drv, dev := newTestDriver(KindPump)
	if err := drv.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	good := []byte{0x5B, 0x18, 0x30, 0x00, 0x01, 0xFE, 0x04, 0x0C, 0x38}
	good = append(good, make([]byte, 12)...)
	good = append(good, 0x04, 0x0C, 0x37)
	good = append(good, 0x00, 0x0C, 0x37, 0x11, 0x22, 0x33, 0x44, 0x01, 0x2C)
	good = append(good, 0x10, 0x20, 0x30, 0x40, 0x55)
	dev.conn.callback(&device.Record{Values: map[string][]byte{uartTXUUID: good}})

	first := drv.LastStatus()
	if first.Pump == nil {
		t.Fatal("expected first notification to parse")
	}

	dev.conn.callback(&device.Record{Values: map[string][]byte{uartTXUUID: {}}})
	second := drv.LastStatus()
	if second.Pump != first.Pump {
		t.Error("expected last status to be retained after a failed parse")
	}
}
