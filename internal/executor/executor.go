// Package executor validates, serializes, and times out individual device
// commands, dispatching each to the orchestrator and, on success, folding
// the result back into the device's persisted configuration.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/aquabled/internal/apperr"
	"github.com/srg/aquabled/internal/config"
	"github.com/srg/aquabled/internal/orchestrator"
	"github.com/srg/aquabled/internal/protocol"
)

// Action names accepted by Execute; these are the command-request
// vocabulary, distinct from the orchestrator's Go method names.
const (
	ActionTurnOn                  = "turn_on"
	ActionTurnOff                 = "turn_off"
	ActionSetBrightness           = "set_brightness"
	ActionSetManualChannels       = "set_manual_multi_channel_brightness"
	ActionEnableAutoMode          = "enable_auto_mode"
	ActionSetManualMode           = "set_manual_mode"
	ActionResetAutoSettings       = "reset_auto_settings"
	ActionAddAutoSetting          = "add_auto_setting"
	ActionSetSchedule             = "set_schedule"
)

const (
	minTimeout     = 1 * time.Second
	maxTimeout     = 30 * time.Second
	defaultTimeout = 10 * time.Second
)

// Request is one command submission.
type Request struct {
	ID      string
	Action  string
	Args    map[string]interface{}
	Timeout time.Duration
}

// Executor serializes commands per device and runs them against an
// Orchestrator under a bounded deadline.
type Executor struct {
	orch   *orchestrator.Orchestrator
	logger *logrus.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds an Executor dispatching through orch.
func New(orch *orchestrator.Orchestrator, logger *logrus.Logger) *Executor {
	return &Executor{
		orch:   orch,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (e *Executor) lockFor(address string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[address]
	if !ok {
		l = &sync.Mutex{}
		e.locks[address] = l
	}
	return l
}

// Execute validates req, runs it under a per-address lock and a bounded
// deadline, persists the resulting record to the orchestrator's command
// history, and returns it. Execute never returns an error itself; failures
// are reported through the record's Status/Error fields.
func (e *Executor) Execute(ctx context.Context, address string, req Request) orchestrator.CommandRecord {
	now := time.Now()
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout < minTimeout {
		timeout = minTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}

	record := orchestrator.CommandRecord{
		ID:        id,
		Address:   address,
		Action:    req.Action,
		Args:      req.Args,
		Status:    "pending",
		CreatedAt: now,
	}

	if err := validateArgs(req.Action, req.Args); err != nil {
		record.Status = "failed"
		record.Error = err.Error()
		finished := time.Now()
		record.FinishedAt = &finished
		e.orch.SaveCommand(record)
		return record
	}

	lock := e.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	record.StartedAt = &started
	record.Status = "running"

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan map[string]interface{}, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := e.dispatch(execCtx, address, req.Action, req.Args)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()

	select {
	case <-execCtx.Done():
		record.Status = "timed_out"
		record.Error = apperr.New(apperr.KindTimeout, "command %s timed out after %s", req.Action, timeout).Error()
		e.logger.Warnf("command %s timed out for device %s after %s", req.Action, address, timeout)
	case err := <-errCh:
		record.Status = "failed"
		record.Error = err.Error()
		e.logger.WithError(err).Errorf("command %s failed for device %s", req.Action, address)
	case result := <-resultCh:
		record.Status = "success"
		record.Result = result
		e.saveConfigOnSuccess(address, req.Action, req.Args)
	}

	finished := time.Now()
	record.FinishedAt = &finished
	e.orch.SaveCommand(record)
	return record
}

func (e *Executor) dispatch(ctx context.Context, address, action string, args map[string]interface{}) (map[string]interface{}, error) {
	var status orchestrator.CachedStatus
	var err error

	switch action {
	case ActionTurnOn:
		status, err = e.orch.TurnLightOn(ctx, address)
	case ActionTurnOff:
		status, err = e.orch.TurnLightOff(ctx, address)
	case ActionSetBrightness:
		brightness := byteArg(args, "brightness")
		color := byteArg(args, "color")
		status, err = e.orch.SetLightBrightness(ctx, address, brightness, color)
	case ActionSetManualChannels:
		channels, cerr := channelsArg(args, "channels")
		if cerr != nil {
			return nil, cerr
		}
		status, err = e.orch.SetManualMultiChannelBrightness(ctx, address, channels)
	case ActionEnableAutoMode:
		status, err = e.orch.EnableAutoMode(ctx, address)
	case ActionSetManualMode:
		status, err = e.orch.SetManualMode(ctx, address)
	case ActionResetAutoSettings:
		status, err = e.orch.ResetAutoSettings(ctx, address)
	case ActionAddAutoSetting:
		status, err = e.dispatchAddAutoSetting(ctx, address, args)
	case ActionSetSchedule:
		status, err = e.dispatchSetSchedule(ctx, address, args)
	default:
		return nil, apperr.New(apperr.KindInvalidArgs, "unsupported action %q", action)
	}
	if err != nil {
		return nil, err
	}
	return cachedStatusToMap(status), nil
}

func (e *Executor) dispatchSetSchedule(ctx context.Context, address string, args map[string]interface{}) (orchestrator.CachedStatus, error) {
	headIndex := intArg(args, "head_index")
	volumeTenthsML := uint16(intArg(args, "volume_tenths_ml"))
	hour := byteArg(args, "hour")
	minute := byteArg(args, "minute")
	confirm := boolArg(args, "confirm", true)
	wait := time.Duration(floatArg(args, "wait_seconds", 2.0) * float64(time.Second))

	weekdayNames := weekdayNamesArg(args, "weekdays")
	pumpDays := pumpWeekdaysFromNames(weekdayNames)

	return e.orch.SetDoserSchedule(ctx, address, headIndex, volumeTenthsML, hour, minute, pumpDays, confirm, wait)
}

func (e *Executor) dispatchAddAutoSetting(ctx context.Context, address string, args map[string]interface{}) (orchestrator.CachedStatus, error) {
	sunriseH, sunriseM, err := parseHHMM(stringArg(args, "sunrise"))
	if err != nil {
		return orchestrator.CachedStatus{}, apperr.Wrap(apperr.KindInvalidArgs, err, "invalid sunrise")
	}
	sunsetH, sunsetM, err := parseHHMM(stringArg(args, "sunset"))
	if err != nil {
		return orchestrator.CachedStatus{}, apperr.Wrap(apperr.KindInvalidArgs, err, "invalid sunset")
	}
	ramp := byteArg(args, "ramp_up_minutes")
	level := byteArg(args, "brightness")
	brightness := protocol.RGB{R: level, G: level, B: level}

	weekdayNames := weekdayNamesArg(args, "weekdays")
	lightDays := lightWeekdaysFromNames(weekdayNames)

	return e.orch.AddLightAutoSetting(ctx, address, sunriseH, sunriseM, sunsetH, sunsetM, ramp, lightDays, brightness)
}

// saveConfigOnSuccess mirrors the successful command into the device's
// persisted configuration document, when auto-save is enabled. Failures are
// logged, never surfaced: a config-save failure must not fail the command
// that already succeeded on the device.
func (e *Executor) saveConfigOnSuccess(address, action string, args map[string]interface{}) {
	if !e.orch.AutoSaveConfig() {
		return
	}
	var err error
	switch action {
	case ActionSetSchedule:
		// Persisted documents index heads 1-4; the wire/command index is 0-3.
		err = e.orch.SaveDoserScheduleConfig(
			address,
			intArg(args, "head_index")+1,
			intArg(args, "volume_tenths_ml"),
			intArg(args, "hour"),
			intArg(args, "minute"),
			configWeekdaysFromNames(weekdayNamesArg(args, "weekdays")),
		)
	case ActionSetBrightness:
		err = e.orch.SaveLightBrightnessConfig(address, map[string]int{
			channelName(intArg(args, "color")): intArg(args, "brightness"),
		})
	case ActionAddAutoSetting:
		level := intArg(args, "brightness")
		err = e.orch.SaveLightAutoSettingConfig(
			address,
			stringArg(args, "sunrise"),
			stringArg(args, "sunset"),
			intArg(args, "ramp_up_minutes"),
			configWeekdaysFromNames(weekdayNamesArg(args, "weekdays")),
			map[string]int{"red": level, "green": level, "blue": level},
		)
	default:
		return
	}
	if err != nil {
		e.logger.WithError(err).Warnf("failed to persist configuration for %s after %s", address, action)
	}
}

func channelName(colorIndex int) string {
	switch colorIndex {
	case 0:
		return "red"
	case 1:
		return "green"
	case 2:
		return "blue"
	default:
		return fmt.Sprintf("channel_%d", colorIndex)
	}
}

func cachedStatusToMap(status orchestrator.CachedStatus) map[string]interface{} {
	return map[string]interface{}{
		"device_type": status.DeviceType,
		"parsed":      status.Parsed,
		"updated_at":  status.UpdatedAt,
		"model_name":  status.ModelName,
	}
}

var weekdayByName = map[string]config.Weekday{
	"Mon": config.Mon, "Tue": config.Tue, "Wed": config.Wed, "Thu": config.Thu,
	"Fri": config.Fri, "Sat": config.Sat, "Sun": config.Sun,
}

func configWeekdaysFromNames(names []string) []config.Weekday {
	out := make([]config.Weekday, 0, len(names))
	for _, n := range names {
		if d, ok := weekdayByName[n]; ok {
			out = append(out, d)
		}
	}
	return out
}

var pumpWeekdayByName = map[string]protocol.PumpWeekday{
	"Mon": protocol.PumpMonday, "Tue": protocol.PumpTuesday, "Wed": protocol.PumpWednesday,
	"Thu": protocol.PumpThursday, "Fri": protocol.PumpFriday, "Sat": protocol.PumpSaturday, "Sun": protocol.PumpSunday,
}

func pumpWeekdaysFromNames(names []string) []protocol.PumpWeekday {
	out := make([]protocol.PumpWeekday, 0, len(names))
	for _, n := range names {
		if d, ok := pumpWeekdayByName[n]; ok {
			out = append(out, d)
		}
	}
	return out
}

var lightWeekdayByName = map[string]protocol.LightWeekday{
	"Mon": protocol.LightMonday, "Tue": protocol.LightTuesday, "Wed": protocol.LightWednesday,
	"Thu": protocol.LightThursday, "Fri": protocol.LightFriday, "Sat": protocol.LightSaturday, "Sun": protocol.LightSunday,
}

func lightWeekdaysFromNames(names []string) []protocol.LightWeekday {
	out := make([]protocol.LightWeekday, 0, len(names))
	for _, n := range names {
		if d, ok := lightWeekdayByName[n]; ok {
			out = append(out, d)
		}
	}
	return out
}

func parseHHMM(s string) (byte, byte, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return byte(h), byte(m), nil
}
