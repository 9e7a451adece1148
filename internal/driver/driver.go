// Package driver implements the per-peripheral connection state machine
// sitting on top of the generic BLE transport in internal/device: connect,
// write command frames, and route asynchronous notifications into the
// latest parsed status for one dosing pump or light unit.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/aquabled/internal/apperr"
	"github.com/srg/aquabled/internal/device"
	"github.com/srg/aquabled/internal/protocol"
)

// Nordic UART Service and its two characteristics: RX accepts writes from
// the host, TX notifies the host. Every supported peripheral exposes this
// service regardless of model.
const (
	uartServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	uartRXUUID      = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	uartTXUUID      = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// idleTimeout is how long a connected-but-unused peripheral is kept before
// the driver tears the BLE connection down on its own.
const idleTimeout = 120 * time.Second

// Kind distinguishes the two supported device families; notification
// framing and higher-level operations both depend on it.
type Kind string

const (
	KindPump  Kind = "doser"
	KindLight Kind = "light"
)

// Status is the tagged last-known-status union the driver exposes; exactly
// one of Pump/Light is set, matching the Kind the driver was built with.
type Status struct {
	Pump  *protocol.PumpStatus
	Light *protocol.LightStatus
}

// Connector constructs the underlying BLE device handle for an address.
// Exists so tests can substitute a fake without touching a real adapter;
// production code plugs in devicefactory.NewDevice.
type Connector func(address string, logger *logrus.Logger) device.Device

// Driver owns one peripheral's connection lifecycle, outgoing frame
// sequencing, and incoming notification parsing.
type Driver struct {
	Address string
	Kind    Kind

	connector Connector
	logger    *logrus.Logger
	msgIDs    *MsgIDSession

	connectionLock sync.Mutex
	operationLock  sync.Mutex

	statusMu   sync.Mutex
	lastStatus Status

	dev        device.Device
	conn       device.Connection
	rx         device.Characteristic
	idleTimer  *time.Timer
	connected  bool
}

// New builds a driver for one peripheral. resetPeriod/maxCommands configure
// the message-id session's reset policy.
func New(address string, kind Kind, connector Connector, logger *logrus.Logger, resetPeriod time.Duration, maxCommands int) *Driver {
	return &Driver{
		Address:   address,
		Kind:      kind,
		connector: connector,
		logger:    logger,
		msgIDs:    NewMsgIDSession(resetPeriod, maxCommands),
	}
}

// IsConnected reports whether the driver currently holds a live connection.
func (d *Driver) IsConnected() bool {
	d.connectionLock.Lock()
	defer d.connectionLock.Unlock()
	return d.connected
}

// LastStatus returns the most recently parsed notification, if any.
func (d *Driver) LastStatus() Status {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	return d.lastStatus
}

// Connect establishes the BLE connection, subscribes to UART notifications,
// and arms the idle-disconnect timer. Calling it while already connected
// just resets the idle timer.
func (d *Driver) Connect(ctx context.Context) error {
	d.connectionLock.Lock()
	defer d.connectionLock.Unlock()

	if d.connected {
		d.resetIdleTimerLocked()
		return nil
	}

	dev := d.connector(d.Address, d.logger)
	opts := &device.ConnectOptions{
		Address: d.Address,
		Services: []device.SubscribeOptions{
			{Service: uartServiceUUID, Characteristics: []string{uartTXUUID}},
		},
	}
	if err := dev.Connect(ctx, opts); err != nil {
		return apperr.Wrap(apperr.KindNotReachable, err, "connect %s", d.Address)
	}

	conn := dev.GetConnection()
	rx, err := conn.GetCharacteristic(uartServiceUUID, uartRXUUID)
	if err != nil {
		_ = dev.Disconnect()
		return apperr.Wrap(apperr.KindNotReachable, err, "resolve uart rx characteristic on %s", d.Address)
	}

	subOpts := []*device.SubscribeOptions{{Service: uartServiceUUID, Characteristics: []string{uartTXUUID}}}
	if err := conn.Subscribe(subOpts, device.StreamEveryUpdate, 0, d.onNotification); err != nil {
		_ = dev.Disconnect()
		return apperr.Wrap(apperr.KindNotReachable, err, "subscribe to uart tx on %s", d.Address)
	}

	d.dev = dev
	d.conn = conn
	d.rx = rx
	d.connected = true
	d.armIdleTimerLocked()
	return nil
}

// Disconnect tears the connection down and clears the driver's handles. It
// is safe to call when already disconnected.
func (d *Driver) Disconnect() error {
	d.connectionLock.Lock()
	defer d.connectionLock.Unlock()
	return d.disconnectLocked()
}

func (d *Driver) disconnectLocked() error {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	if !d.connected {
		return nil
	}
	d.connected = false
	dev := d.dev
	d.dev = nil
	d.conn = nil
	d.rx = nil
	if dev == nil {
		return nil
	}
	return dev.Disconnect()
}

func (d *Driver) armIdleTimerLocked() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(idleTimeout, func() {
		d.connectionLock.Lock()
		defer d.connectionLock.Unlock()
		_ = d.disconnectLocked()
	})
}

func (d *Driver) resetIdleTimerLocked() {
	if d.idleTimer != nil {
		d.idleTimer.Reset(idleTimeout)
	}
}

// SendCommand writes frames, built against the driver's message-id
// session, to the UART RX characteristic in order. On a recoverable
// transport error it backs off briefly, force-disconnects, and returns the
// error for the caller to decide whether to retry.
func (d *Driver) SendCommand(ctx context.Context, build func(id protocol.MsgID) ([]byte, error)) error {
	return d.sendFrames(ctx, []func(protocol.MsgID) ([]byte, error){build})
}

// SendFrames writes a batch of frames as one atomic operation with respect
// to other callers of this driver: no other command interleaves its writes
// between the frames of this batch.
func (d *Driver) SendFrames(ctx context.Context, builders []func(id protocol.MsgID) ([]byte, error)) error {
	return d.sendFrames(ctx, builders)
}

func (d *Driver) sendFrames(ctx context.Context, builders []func(protocol.MsgID) ([]byte, error)) error {
	d.operationLock.Lock()
	defer d.operationLock.Unlock()

	if !d.IsConnected() {
		if err := d.Connect(ctx); err != nil {
			return err
		}
	}

	for _, build := range builders {
		frame, err := build(d.msgIDs.Next())
		if err != nil {
			return apperr.Wrap(apperr.KindInvalidArgs, err, "build command frame for %s", d.Address)
		}
		if err := d.rx.Write(frame, false, 5*time.Second); err != nil {
			time.Sleep(250 * time.Millisecond)
			_ = d.Disconnect()
			return apperr.Wrap(apperr.KindNotReachable, err, "write command frame to %s", d.Address)
		}
	}

	d.connectionLock.Lock()
	d.resetIdleTimerLocked()
	d.connectionLock.Unlock()
	return nil
}

// RequestStatus builds and sends the status-request frame; the response
// arrives later via onNotification.
func (d *Driver) RequestStatus(ctx context.Context) error {
	return d.SendCommand(ctx, protocol.CreateStatusRequestCommand)
}

// onNotification routes one incoming payload to the parser matching the
// driver's device kind, replacing lastStatus on success.
func (d *Driver) onNotification(rec *device.Record) {
	for _, payload := range rec.Values {
		d.handleNotification(payload)
	}
	for _, batch := range rec.BatchValues {
		for _, payload := range batch {
			d.handleNotification(payload)
		}
	}
}

func (d *Driver) handleNotification(payload []byte) {
	switch d.Kind {
	case KindLight:
		d.handleLightNotification(payload)
	case KindPump:
		d.handlePumpNotification(payload)
	}
}

func (d *Driver) handleLightNotification(payload []byte) {
	if len(payload) < 6 || payload[0] != 0x5B {
		if d.logger != nil {
			d.logger.WithField("address", d.Address).Debugf("ignoring malformed light notification: % x", payload)
		}
		return
	}
	switch payload[5] {
	case 0xFE:
		status, err := protocol.ParseLightPayload(payload)
		if err != nil {
			if d.logger != nil {
				d.logger.WithError(err).WithField("address", d.Address).Warn("failed to parse light status")
			}
			return
		}
		d.statusMu.Lock()
		d.lastStatus = Status{Light: &status}
		d.statusMu.Unlock()
	case 0x0A:
		// command acknowledgement, nothing to record
	default:
		if d.logger != nil {
			d.logger.WithField("address", d.Address).Debugf("unrecognized light notification mode 0x%02x", payload[5])
		}
	}
}

func (d *Driver) handlePumpNotification(payload []byte) {
	status, err := protocol.ParseDoserPayload(payload)
	if err != nil {
		if d.logger != nil {
			d.logger.WithError(err).WithField("address", d.Address).Warn("failed to parse pump status, keeping previous")
		}
		return
	}
	d.statusMu.Lock()
	d.lastStatus = Status{Pump: &status}
	d.statusMu.Unlock()
}

// SetDailyDose submits the five-frame schedule batch for one dosing head
// and, if confirm is set, requests a status refresh and waits before
// returning the latest parsed status.
func (d *Driver) SetDailyDose(ctx context.Context, head byte, volumeTenthsML uint16, hour, minute byte, weekdayMask byte, confirm bool, wait time.Duration) (*protocol.PumpStatus, error) {
	if d.Kind != KindPump {
		return nil, apperr.New(apperr.KindWrongKind, "set_daily_dose called on a %s driver", d.Kind)
	}

	builders := []func(protocol.MsgID) ([]byte, error){
		func(id protocol.MsgID) ([]byte, error) { return protocol.CreatePrepareCommand(id, 0x04) },
		func(id protocol.MsgID) ([]byte, error) { return protocol.CreatePrepareCommand(id, 0x05) },
		func(id protocol.MsgID) ([]byte, error) { return protocol.CreateHeadSelectCommand(id, head) },
		func(id protocol.MsgID) ([]byte, error) {
			return protocol.CreateHeadDoseCommand(id, head, volumeTenthsML, weekdayMask)
		},
		func(id protocol.MsgID) ([]byte, error) { return protocol.CreateHeadScheduleCommand(id, head, hour, minute) },
	}
	if err := d.SendFrames(ctx, builders); err != nil {
		return nil, err
	}

	if !confirm {
		return nil, nil
	}

	if err := d.RequestStatus(ctx); err != nil {
		return nil, err
	}
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	status := d.LastStatus()
	return status.Pump, nil
}

func (k Kind) String() string {
	return string(k)
}
