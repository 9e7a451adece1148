// Package orchestrator is the process-singleton coordinator: it owns the
// device registry, the live status cache, bounded per-device command
// history, the configuration stores, and the background auto-discover and
// reconnect workers, persisting a single JSON state file across restarts.
package orchestrator

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/aquabled/internal/apperr"
	"github.com/srg/aquabled/internal/appconfig"
	"github.com/srg/aquabled/internal/atomicconfig"
	"github.com/srg/aquabled/internal/config"
	"github.com/srg/aquabled/internal/device"
	"github.com/srg/aquabled/internal/driver"
	"github.com/srg/aquabled/internal/protocol"
	"github.com/srg/aquabled/internal/task"
)

const commandHistoryLimit = 50

// modelRegistry maps a substring of an advertised device name to the kind
// and model name it identifies. Checked in order; the first match wins.
var modelRegistry = []struct {
	nameContains string
	kind         driver.Kind
	modelName    string
}{
	{"DYDOSE", driver.KindPump, "Dosing Pump"},
	{"WRGB", driver.KindLight, "WRGB Light"},
}

func modelForName(name string) (driver.Kind, string, bool) {
	upper := strings.ToUpper(name)
	for _, m := range modelRegistry {
		if strings.Contains(upper, m.nameContains) {
			return m.kind, m.modelName, true
		}
	}
	return "", "", false
}

// ChannelInfo names one light channel and its wire index, exposed for UI
// brightness sliders.
type ChannelInfo struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// CachedStatus is the serialized snapshot of one device's last known
// status, both held in memory and persisted to the state file.
type CachedStatus struct {
	Address    string                 `json:"device_type_address,omitempty"`
	DeviceType driver.Kind            `json:"device_type"`
	RawPayload string                 `json:"raw_payload,omitempty"`
	Parsed     map[string]interface{} `json:"parsed,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
	ModelName  string                 `json:"model_name,omitempty"`
	Channels   []ChannelInfo          `json:"channels,omitempty"`
}

// CommandRecord is one entry in a device's bounded command history.
type CommandRecord struct {
	ID         string                 `json:"id"`
	Address    string                 `json:"address"`
	Action     string                 `json:"action"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Status     string                 `json:"status"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// ScanResult describes one discovered, supported peripheral.
type ScanResult struct {
	Address    string      `json:"address"`
	Name       string      `json:"name"`
	Product    string      `json:"product"`
	DeviceType driver.Kind `json:"device_type"`
}

// Orchestrator owns every connected peripheral, its cached status, its
// command history, and the background workers that keep it connected.
type Orchestrator struct {
	cfg    *appconfig.Config
	logger *logrus.Logger

	connector driver.Connector
	scanner   func() (device.ScanningDevice, error)

	registryMu     sync.Mutex
	registry       map[driver.Kind]map[string]*driver.Driver
	primaryAddress map[driver.Kind]string

	statusCache *hashmap.Map[string, CachedStatus]

	commandMu sync.Mutex
	commands  map[string][]CommandRecord

	doserStore *config.DoserStore
	lightStore *config.LightStore

	displayTimezone string
	statePath       string

	workerCtx    context.Context
	workerCancel context.CancelFunc
	workerWG     sync.WaitGroup
	reconnecting sync.Mutex // prevents overlapping reconnect sweeps
}

// New builds an Orchestrator backed by cfg's configuration directory.
// connector constructs BLE device handles for the driver layer; scanner
// performs BLE discovery. Both are seams for tests.
func New(cfg *appconfig.Config, logger *logrus.Logger, connector driver.Connector, scanner func() (device.ScanningDevice, error)) (*Orchestrator, error) {
	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		return nil, err
	}
	devicesDir := filepath.Join(cfg.ConfigDir, "devices")
	doserStore, err := config.NewDoserStore(devicesDir)
	if err != nil {
		return nil, err
	}
	lightStore, err := config.NewLightStore(devicesDir)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:             cfg,
		logger:          logger,
		connector:       connector,
		scanner:         scanner,
		registry:        make(map[driver.Kind]map[string]*driver.Driver),
		primaryAddress:  make(map[driver.Kind]string),
		statusCache:     hashmap.New[string, CachedStatus](),
		commands:        make(map[string][]CommandRecord),
		doserStore:      doserStore,
		lightStore:      lightStore,
		displayTimezone: "UTC",
		statePath:       filepath.Join(cfg.ConfigDir, "state.json"),
	}
	return o, nil
}

func (o *Orchestrator) driverFor(kind driver.Kind, address string) *driver.Driver {
	o.registryMu.Lock()
	defer o.registryMu.Unlock()
	byAddr := o.registry[kind]
	if byAddr == nil {
		return nil
	}
	return byAddr[address]
}

func (o *Orchestrator) register(kind driver.Kind, address string, d *driver.Driver) {
	o.registryMu.Lock()
	defer o.registryMu.Unlock()
	if o.registry[kind] == nil {
		o.registry[kind] = make(map[string]*driver.Driver)
	}
	o.registry[kind][address] = d
	o.primaryAddress[kind] = address
}

// findByAddress locates a driver across every kind, returning its kind too.
func (o *Orchestrator) findByAddress(address string) (driver.Kind, *driver.Driver, bool) {
	o.registryMu.Lock()
	defer o.registryMu.Unlock()
	for kind, byAddr := range o.registry {
		if d, ok := byAddr[address]; ok {
			return kind, d, true
		}
	}
	return "", nil, false
}

// ConnectDevice resolves (or reuses) the driver for address, loads any
// persisted configuration for it, and refreshes its live status.
func (o *Orchestrator) ConnectDevice(ctx context.Context, address string, kind driver.Kind) (CachedStatus, error) {
	if existing := o.driverFor(kind, address); existing != nil {
		return o.RefreshStatus(ctx, kind, address, true)
	}

	d := driver.New(address, kind, o.connector, o.logger, o.cfg.MsgIDResetPeriod, o.cfg.MsgIDMaxCommands)
	if err := d.Connect(ctx); err != nil {
		return CachedStatus{}, err
	}
	o.register(kind, address, d)
	o.loadPersistedConfiguration(address, kind)

	return o.RefreshStatus(ctx, kind, address, true)
}

func (o *Orchestrator) loadPersistedConfiguration(address string, kind driver.Kind) {
	switch kind {
	case driver.KindPump:
		if dev, err := o.doserStore.GetDevice(address); err != nil {
			o.logger.WithError(err).Warnf("failed to load doser configuration for %s", address)
		} else if dev != nil {
			o.logger.Infof("loaded saved configuration for doser %s with %d configuration(s)", address, len(dev.Configurations))
		}
	case driver.KindLight:
		if dev, err := o.lightStore.GetDevice(address); err != nil {
			o.logger.WithError(err).Warnf("failed to load light configuration for %s", address)
		} else if dev != nil {
			o.logger.Infof("loaded saved profile for light %s with %d configuration(s)", address, len(dev.Configurations))
		}
	}
}

// RefreshStatus requests a fresh status notification from the connected
// driver for address, waits the configured capture window, and returns the
// serialized snapshot, optionally updating the cache and persisted state.
func (o *Orchestrator) RefreshStatus(ctx context.Context, kind driver.Kind, address string, persist bool) (CachedStatus, error) {
	d := o.driverFor(kind, address)
	if d == nil {
		return CachedStatus{}, apperr.New(apperr.KindNotConnected, "%s not connected", kind).WithAddress(address)
	}

	o.logger.Debugf("requesting %s status from %s", kind, address)
	if err := d.RequestStatus(ctx); err != nil {
		return CachedStatus{}, apperr.Wrap(apperr.KindNotReachable, err, "%s not reachable", kind).WithAddress(address)
	}

	select {
	case <-time.After(o.cfg.StatusWait):
	case <-ctx.Done():
		return CachedStatus{}, ctx.Err()
	}

	status := d.LastStatus()
	cached, err := o.buildCachedStatus(address, kind, status)
	if err != nil {
		return CachedStatus{}, err
	}

	if persist {
		o.statusCache.Insert(address, cached)
		if err := o.saveState(); err != nil {
			o.logger.WithError(err).Warn("failed to persist state after status refresh")
		}
	}
	return cached, nil
}

func (o *Orchestrator) buildCachedStatus(address string, kind driver.Kind, status driver.Status) (CachedStatus, error) {
	var rawPayload []byte
	var parsed map[string]interface{}
	var modelName string

	switch kind {
	case driver.KindPump:
		if status.Pump == nil {
			return CachedStatus{}, apperr.New(apperr.KindNoStatusReceived, "no status received from doser").WithAddress(address)
		}
		rawPayload = status.Pump.RawPayload
		parsed = pumpStatusToMap(*status.Pump)
		modelName = "Dosing Pump"
	case driver.KindLight:
		if status.Light == nil {
			return CachedStatus{}, apperr.New(apperr.KindNoStatusReceived, "no status received from light").WithAddress(address)
		}
		rawPayload = status.Light.RawPayload
		parsed = lightStatusToMap(*status.Light)
		modelName = "WRGB Light"
	}

	var rawHex string
	if rawPayload != nil {
		rawHex = hex.EncodeToString(rawPayload)
	}

	return CachedStatus{
		Address:    address,
		DeviceType: kind,
		RawPayload: rawHex,
		Parsed:     parsed,
		UpdatedAt:  time.Now(),
		ModelName:  modelName,
		Channels:   nil,
	}, nil
}

func pumpStatusToMap(s protocol.PumpStatus) map[string]interface{} {
	heads := make([]map[string]interface{}, 0, len(s.Heads))
	for _, h := range s.Heads {
		heads = append(heads, map[string]interface{}{
			"mode":            h.Mode,
			"hour":            h.Hour,
			"minute":          h.Minute,
			"dosed_tenths_ml": h.DosedTenthsML,
			"dosed_ml":        h.DosedML(),
		})
	}
	out := map[string]interface{}{"heads": heads}
	if s.Weekday != nil {
		out["weekday"] = *s.Weekday
	}
	if s.Hour != nil {
		out["hour"] = *s.Hour
	}
	if s.Minute != nil {
		out["minute"] = *s.Minute
	}
	if len(s.LifetimeTotalsTenthsML) > 0 {
		out["lifetime_totals_ml"] = s.LifetimeTotalsML()
	}
	return out
}

func lightStatusToMap(s protocol.LightStatus) map[string]interface{} {
	keyframes := make([]map[string]interface{}, 0, len(s.Keyframes))
	for _, k := range s.Keyframes {
		keyframes = append(keyframes, map[string]interface{}{
			"hour": k.Hour, "minute": k.Minute, "value": k.Value, "time": k.AsTime(),
		})
	}
	out := map[string]interface{}{"keyframes": keyframes}
	if s.Weekday != nil {
		out["weekday"] = *s.Weekday
	}
	if s.CurrentHour != nil {
		out["current_hour"] = *s.CurrentHour
	}
	if s.CurrentMinute != nil {
		out["current_minute"] = *s.CurrentMinute
	}
	return out
}

// ScanDevices performs a timed BLE scan and returns the discovered
// peripherals whose advertised name maps to a known model.
func (o *Orchestrator) ScanDevices(ctx context.Context, timeout time.Duration) ([]ScanResult, error) {
	scanDev, err := o.scanner()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotReachable, err, "open scanning adapter")
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var results []ScanResult
	var mu sync.Mutex
	err = scanDev.Scan(scanCtx, false, func(adv device.Advertisement) {
		name := adv.LocalName()
		kind, product, ok := modelForName(name)
		if !ok {
			return
		}
		mu.Lock()
		results = append(results, ScanResult{Address: adv.Addr(), Name: name, Product: product, DeviceType: kind})
		mu.Unlock()
	})
	if err != nil && scanCtx.Err() == nil {
		return nil, apperr.Wrap(apperr.KindNotReachable, err, "scan for devices")
	}
	return results, nil
}

// RequestStatus resolves address's kind (from cache, if known) and ensures
// the device is connected before returning a fresh status.
func (o *Orchestrator) RequestStatus(ctx context.Context, address string) (CachedStatus, error) {
	if cached, ok := o.statusCache.Get(address); ok {
		return o.ConnectDevice(ctx, address, cached.DeviceType)
	}
	return CachedStatus{}, apperr.New(apperr.KindUnknownDevice, "device %s is not known; scan first", address).WithAddress(address)
}

// SetDoserSchedule submits a daily-dose schedule to the given pump head and
// refreshes the cached status afterward.
func (o *Orchestrator) SetDoserSchedule(ctx context.Context, address string, headIndex int, volumeTenthsML uint16, hour, minute byte, weekdays []protocol.PumpWeekday, confirm bool, wait time.Duration) (CachedStatus, error) {
	d := o.driverFor(driver.KindPump, address)
	if d == nil {
		return CachedStatus{}, apperr.New(apperr.KindNotConnected, "doser not connected").WithAddress(address)
	}
	mask := protocol.EncodePumpWeekdays(weekdays)
	if _, err := d.SetDailyDose(ctx, byte(headIndex), volumeTenthsML, hour, minute, mask, confirm, wait); err != nil {
		return CachedStatus{}, err
	}
	return o.RefreshStatus(ctx, driver.KindPump, address, true)
}

// SetLightBrightness sets one color channel's brightness (0-100) and
// refreshes status.
func (o *Orchestrator) SetLightBrightness(ctx context.Context, address string, brightness, colorIndex byte) (CachedStatus, error) {
	d := o.driverFor(driver.KindLight, address)
	if d == nil {
		return CachedStatus{}, apperr.New(apperr.KindNotConnected, "light not connected").WithAddress(address)
	}
	build := func(id protocol.MsgID) ([]byte, error) {
		return protocol.CreateManualSettingCommand(id, colorIndex, brightness)
	}
	if err := d.SendCommand(ctx, build); err != nil {
		return CachedStatus{}, err
	}
	return o.RefreshStatus(ctx, driver.KindLight, address, true)
}

// SetManualMultiChannelBrightness sets several channels in one logical
// command, one frame per channel, atomic w.r.t. other commands on the
// device.
func (o *Orchestrator) SetManualMultiChannelBrightness(ctx context.Context, address string, channels map[byte]byte) (CachedStatus, error) {
	d := o.driverFor(driver.KindLight, address)
	if d == nil {
		return CachedStatus{}, apperr.New(apperr.KindNotConnected, "light not connected").WithAddress(address)
	}
	var builders []func(protocol.MsgID) ([]byte, error)
	for colorIndex, brightness := range channels {
		colorIndex, brightness := colorIndex, brightness
		builders = append(builders, func(id protocol.MsgID) ([]byte, error) {
			return protocol.CreateManualSettingCommand(id, colorIndex, brightness)
		})
	}
	if err := d.SendFrames(ctx, builders); err != nil {
		return CachedStatus{}, err
	}
	return o.RefreshStatus(ctx, driver.KindLight, address, true)
}

// TurnLightOn/TurnLightOff drive every known channel (0-2, matching the
// RGB/WRGB color slots) to full or zero brightness.
func (o *Orchestrator) TurnLightOn(ctx context.Context, address string) (CachedStatus, error) {
	return o.setAllChannels(ctx, address, 100)
}

func (o *Orchestrator) TurnLightOff(ctx context.Context, address string) (CachedStatus, error) {
	return o.setAllChannels(ctx, address, 0)
}

func (o *Orchestrator) setAllChannels(ctx context.Context, address string, brightness byte) (CachedStatus, error) {
	return o.SetManualMultiChannelBrightness(ctx, address, map[byte]byte{0: brightness, 1: brightness, 2: brightness})
}

// EnableAutoMode switches a light to its onboard auto-program and pushes
// the current time so the program's sunrise/sunset maths stay correct.
func (o *Orchestrator) EnableAutoMode(ctx context.Context, address string) (CachedStatus, error) {
	d := o.driverFor(driver.KindLight, address)
	if d == nil {
		return CachedStatus{}, apperr.New(apperr.KindNotConnected, "light not connected").WithAddress(address)
	}
	builders := []func(protocol.MsgID) ([]byte, error){
		protocol.CreateSwitchToAutoModeCommand,
		func(id protocol.MsgID) ([]byte, error) { return protocol.CreateSetTimeCommand(id, time.Now()) },
	}
	if err := d.SendFrames(ctx, builders); err != nil {
		return CachedStatus{}, err
	}
	return o.RefreshStatus(ctx, driver.KindLight, address, true)
}

// SetManualMode switches a light back to direct channel control.
func (o *Orchestrator) SetManualMode(ctx context.Context, address string) (CachedStatus, error) {
	return o.setAllChannels(ctx, address, 100)
}

// ResetAutoSettings clears every onboard auto-program entry.
func (o *Orchestrator) ResetAutoSettings(ctx context.Context, address string) (CachedStatus, error) {
	d := o.driverFor(driver.KindLight, address)
	if d == nil {
		return CachedStatus{}, apperr.New(apperr.KindNotConnected, "light not connected").WithAddress(address)
	}
	if err := d.SendCommand(ctx, protocol.CreateResetAutoSettingsCommand); err != nil {
		return CachedStatus{}, err
	}
	return o.RefreshStatus(ctx, driver.KindLight, address, true)
}

// AddLightAutoSetting adds one sunrise/sunset auto-program entry.
func (o *Orchestrator) AddLightAutoSetting(ctx context.Context, address string, sunriseH, sunriseM, sunsetH, sunsetM, rampMinutes byte, weekdays []protocol.LightWeekday, brightness protocol.RGB) (CachedStatus, error) {
	d := o.driverFor(driver.KindLight, address)
	if d == nil {
		return CachedStatus{}, apperr.New(apperr.KindNotConnected, "light not connected").WithAddress(address)
	}
	mask := protocol.EncodeLightWeekdays(weekdays)
	build := func(id protocol.MsgID) ([]byte, error) {
		return protocol.CreateAddAutoSettingCommand(id, sunriseH, sunriseM, sunsetH, sunsetM, rampMinutes, mask, brightness)
	}
	if err := d.SendCommand(ctx, build); err != nil {
		return CachedStatus{}, err
	}
	return o.RefreshStatus(ctx, driver.KindLight, address, true)
}

// AutoSaveConfig reports whether successful commands should be persisted
// into the device's configuration document.
func (o *Orchestrator) AutoSaveConfig() bool {
	return o.cfg.AutoSaveConfig
}

// SaveDoserScheduleConfig persists headIndex's new schedule into address's
// doser configuration, creating a default document first if none exists.
func (o *Orchestrator) SaveDoserScheduleConfig(address string, headIndex int, volumeTenthsML int, hour, minute int, weekdays []config.Weekday) error {
	device, err := o.doserStore.GetDevice(address)
	if err != nil {
		return err
	}
	if device == nil {
		created, err := config.CreateDefaultDoserDevice(address, "", o.displayTimezone)
		if err != nil {
			return err
		}
		device = &created
	}

	updated, err := atomicconfig.UpdatePumpSchedule(*device, headIndex, volumeTenthsML, hour, minute, weekdays)
	if err != nil {
		return err
	}
	return o.doserStore.UpsertDevice(&updated)
}

// SaveLightBrightnessConfig persists a manual channel-level profile into
// address's light configuration, creating a default document first if none
// exists.
func (o *Orchestrator) SaveLightBrightnessConfig(address string, levels map[string]int) error {
	device, err := o.lightStore.GetDevice(address)
	if err != nil {
		return err
	}
	if device == nil {
		created, err := config.CreateDefaultLightDevice(address, "", o.displayTimezone)
		if err != nil {
			return err
		}
		device = &created
	}

	channelLevels := config.NewChannelLevels()
	for key, value := range levels {
		channelLevels.Set(key, value)
	}
	updated, err := atomicconfig.UpdateLightProfile(*device, config.ManualProfile{Levels: channelLevels}, "Updated from set_brightness command")
	if err != nil {
		return err
	}
	return o.lightStore.UpsertDevice(&updated)
}

// SaveLightAutoSettingConfig appends a new sunrise/sunset auto program into
// address's light configuration's auto profile, creating a default document
// and an empty auto profile first if none exists.
func (o *Orchestrator) SaveLightAutoSettingConfig(address string, sunrise, sunset string, rampMinutes int, weekdays []config.Weekday, levels map[string]int) error {
	device, err := o.lightStore.GetDevice(address)
	if err != nil {
		return err
	}
	if device == nil {
		created, err := config.CreateDefaultLightDevice(address, "", o.displayTimezone)
		if err != nil {
			return err
		}
		device = &created
	}

	active, err := device.GetActiveConfiguration()
	if err != nil {
		return err
	}
	existing, err := active.LatestRevision().Profile()
	if err != nil {
		return err
	}
	auto, ok := existing.(config.AutoProfile)
	if !ok {
		auto = config.AutoProfile{}
	}

	channelLevels := config.NewChannelLevels()
	for key, value := range levels {
		channelLevels.Set(key, value)
	}
	auto.Programs = append(auto.Programs, config.AutoProgram{
		ID:          fmt.Sprintf("program-%d", len(auto.Programs)+1),
		Enabled:     true,
		Days:        weekdays,
		Sunrise:     sunrise,
		Sunset:      sunset,
		RampMinutes: rampMinutes,
		Levels:      channelLevels,
	})

	updated, err := atomicconfig.UpdateLightProfile(*device, auto, "Added auto program from add_auto_setting command")
	if err != nil {
		return err
	}
	return o.lightStore.UpsertDevice(&updated)
}

// DisconnectDevice locates address across kinds, disconnects it, and
// promotes a remaining peer of the same kind to primary if one exists.
func (o *Orchestrator) DisconnectDevice(address string) error {
	kind, d, ok := o.findByAddress(address)
	if !ok {
		return nil
	}
	if err := d.Disconnect(); err != nil {
		o.logger.WithError(err).Warnf("error disconnecting %s", address)
	}

	o.registryMu.Lock()
	delete(o.registry[kind], address)
	if len(o.registry[kind]) == 0 {
		delete(o.registry, kind)
		delete(o.primaryAddress, kind)
	} else if o.primaryAddress[kind] == address {
		for next := range o.registry[kind] {
			o.primaryAddress[kind] = next
			break
		}
	}
	o.registryMu.Unlock()
	return nil
}

// GetLiveStatuses attempts a non-persistent refresh for every connected
// device, returning the successful snapshots and a list of error strings
// for any failures other than not-connected (which is filtered silently).
func (o *Orchestrator) GetLiveStatuses(ctx context.Context) ([]CachedStatus, []string) {
	type target struct {
		kind    driver.Kind
		address string
	}
	var targets []target
	o.registryMu.Lock()
	for kind, byAddr := range o.registry {
		for address := range byAddr {
			targets = append(targets, target{kind, address})
		}
	}
	o.registryMu.Unlock()

	var results []CachedStatus
	var errs []string
	for _, t := range targets {
		status, err := o.RefreshStatus(ctx, t.kind, t.address, false)
		if err != nil {
			if errors_Is_NotConnected(err) {
				continue
			}
			errs = append(errs, err.Error())
			continue
		}
		results = append(results, status)
	}
	return results, errs
}

func errors_Is_NotConnected(err error) bool {
	type iser interface{ Is(error) bool }
	if e, ok := err.(iser); ok {
		return e.Is(apperr.ErrNotConnected)
	}
	return false
}

// Start loads persisted state and, depending on configuration, schedules
// the auto-discover and/or reconnect background workers.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.loadState(); err != nil {
		o.logger.WithError(err).Warn("failed to load persisted state")
	}
	o.logger.Infof("service start: loaded %d cached devices", o.statusCache.Len())

	o.workerCtx, o.workerCancel = context.WithCancel(ctx)

	discoverScheduled := false
	if o.statusCache.Len() == 0 && o.cfg.AutoDiscover {
		o.logger.Info("auto-discover enabled; scheduling background scan")
		o.workerWG.Add(1)
		task.Go(o.workerCtx, "auto-discover", func(ctx context.Context) {
			defer o.workerWG.Done()
			o.autoDiscoverWorker(ctx)
		})
		discoverScheduled = true
	}
	if o.cfg.AutoReconnect && !discoverScheduled {
		o.logger.Info("auto-reconnect enabled; attempting reconnect to cached devices")
		o.workerWG.Add(1)
		task.Go(o.workerCtx, "reconnect", func(ctx context.Context) {
			defer o.workerWG.Done()
			o.reconnectAndRefresh(ctx)
		})
	}
	return nil
}

func (o *Orchestrator) autoDiscoverWorker(ctx context.Context) {
	o.logger.Info("auto-discover worker: scanning for supported devices")
	connectedAny := o.autoDiscoverAndConnect(ctx)
	if connectedAny {
		if err := o.saveState(); err != nil {
			o.logger.WithError(err).Warn("failed to persist state after auto-discover")
		}
		return
	}
	if o.cfg.AutoReconnect {
		o.logger.Info("auto-discover found no devices; scheduling reconnect worker")
		o.workerWG.Add(1)
		task.Go(ctx, "reconnect", func(ctx context.Context) {
			defer o.workerWG.Done()
			o.reconnectAndRefresh(ctx)
		})
	}
}

func (o *Orchestrator) autoDiscoverAndConnect(ctx context.Context) bool {
	results, err := o.ScanDevices(ctx, 5*time.Second)
	if err != nil {
		o.logger.WithError(err).Warn("auto-discover scan failed")
		return false
	}
	connectedAny := false
	for _, r := range results {
		if _, err := o.ConnectDevice(ctx, r.Address, r.DeviceType); err != nil {
			o.logger.WithError(err).Warnf("connect failed for %s", r.Address)
			continue
		}
		o.logger.Infof("connected to %s (%s)", r.Address, r.DeviceType)
		connectedAny = true
	}
	return connectedAny
}

func (o *Orchestrator) reconnectAndRefresh(ctx context.Context) {
	o.reconnecting.Lock()
	defer o.reconnecting.Unlock()

	o.attemptReconnect(ctx)

	o.statusCache.Range(func(address string, status CachedStatus) bool {
		if _, err := o.ConnectDevice(ctx, address, status.DeviceType); err != nil {
			o.logger.WithError(err).Warnf("failed to refresh %s", address)
			return true
		}
		o.logger.Infof("refreshed %s %s", status.DeviceType, address)
		return true
	})
	if err := o.saveState(); err != nil {
		o.logger.WithError(err).Warn("failed to persist state after reconnect sweep")
	}
}

func (o *Orchestrator) attemptReconnect(ctx context.Context) {
	o.statusCache.Range(func(address string, status CachedStatus) bool {
		o.logger.Infof("attempting reconnect to %s (type=%s)", address, status.DeviceType)
		if _, err := o.ConnectDevice(ctx, address, status.DeviceType); err != nil {
			o.logger.WithError(err).Warnf("reconnect failed for %s", address)
		}
		return true
	})
}

// Stop cancels background workers, persists final state, and disconnects
// every registered device.
func (o *Orchestrator) Stop() error {
	if o.workerCancel != nil {
		o.workerCancel()
	}
	o.workerWG.Wait()

	if err := o.saveState(); err != nil {
		o.logger.WithError(err).Warn("failed to persist state during stop")
	}

	o.registryMu.Lock()
	defer o.registryMu.Unlock()
	for _, byAddr := range o.registry {
		for _, d := range byAddr {
			if err := d.Disconnect(); err != nil {
				o.logger.WithError(err).Warn("error disconnecting device during stop")
			}
		}
	}
	o.registry = make(map[driver.Kind]map[string]*driver.Driver)
	o.primaryAddress = make(map[driver.Kind]string)
	return nil
}

// persistedState is the on-disk shape of the state file.
type persistedState struct {
	Devices         map[string]CachedStatus   `json:"devices"`
	Commands        map[string][]CommandRecord `json:"commands"`
	DisplayTimezone string                    `json:"display_timezone"`
}

func (o *Orchestrator) loadState() error {
	raw, err := os.ReadFile(o.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var data persistedState
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	for address, status := range data.Devices {
		o.statusCache.Insert(address, status)
	}
	o.commandMu.Lock()
	if data.Commands != nil {
		o.commands = data.Commands
	}
	o.commandMu.Unlock()
	if data.DisplayTimezone != "" {
		o.displayTimezone = data.DisplayTimezone
	}
	return nil
}

func (o *Orchestrator) saveState() error {
	devices := make(map[string]CachedStatus)
	o.statusCache.Range(func(address string, status CachedStatus) bool {
		devices[address] = status
		return true
	})

	o.commandMu.Lock()
	commands := make(map[string][]CommandRecord, len(o.commands))
	for k, v := range o.commands {
		commands[k] = v
	}
	o.commandMu.Unlock()

	data := persistedState{Devices: devices, Commands: commands, DisplayTimezone: o.displayTimezone}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp := o.statePath + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, o.statePath)
}

// SaveCommand appends or updates a command record in address's bounded
// history (FIFO eviction beyond commandHistoryLimit entries).
func (o *Orchestrator) SaveCommand(rec CommandRecord) {
	o.commandMu.Lock()
	defer o.commandMu.Unlock()

	history := o.commands[rec.Address]
	for i, existing := range history {
		if existing.ID == rec.ID {
			history[i] = rec
			o.commands[rec.Address] = history
			return
		}
	}
	history = append(history, rec)
	if len(history) > commandHistoryLimit {
		history = history[len(history)-commandHistoryLimit:]
	}
	o.commands[rec.Address] = history
}

// GetCommands returns the most recent commands for address, newest last,
// bounded to limit entries (0 means unbounded).
func (o *Orchestrator) GetCommands(address string, limit int) []CommandRecord {
	o.commandMu.Lock()
	defer o.commandMu.Unlock()
	history := o.commands[address]
	if limit <= 0 || limit >= len(history) {
		out := make([]CommandRecord, len(history))
		copy(out, history)
		return out
	}
	return append([]CommandRecord(nil), history[len(history)-limit:]...)
}

// GetCommand finds one command record by id.
func (o *Orchestrator) GetCommand(address, id string) (CommandRecord, bool) {
	o.commandMu.Lock()
	defer o.commandMu.Unlock()
	for _, rec := range o.commands[address] {
		if rec.ID == id {
			return rec, true
		}
	}
	return CommandRecord{}, false
}

// StatusSnapshot returns a copy of the in-memory cache keyed by address.
// The map has no order; SortedAddresses gives a stable one.
func (o *Orchestrator) StatusSnapshot() map[string]CachedStatus {
	out := make(map[string]CachedStatus)
	o.statusCache.Range(func(address string, status CachedStatus) bool {
		out[address] = status
		return true
	})
	return out
}

// DoserConfigs exposes the doser configuration store for the HTTP
// configuration endpoints; the store is otherwise only touched internally
// by loadPersistedConfiguration and the auto-save methods above.
func (o *Orchestrator) DoserConfigs() *config.DoserStore {
	return o.doserStore
}

// LightConfigs exposes the light configuration store for the HTTP
// configuration endpoints.
func (o *Orchestrator) LightConfigs() *config.LightStore {
	return o.lightStore
}

// SortedAddresses is a small convenience for handlers that need stable
// iteration order when rendering the snapshot.
func SortedAddresses(snapshot map[string]CachedStatus) []string {
	addrs := make([]string, 0, len(snapshot))
	for a := range snapshot {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs
}
