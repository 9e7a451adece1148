// Package config defines the persisted configuration documents for dosing
// pumps and light units: revisioned, strictly-validated JSON structures with
// copy-on-write style validation, plus a per-device file store.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Weekday is a three-letter day name, matching the wire weekday vocabulary
// used throughout the pump/light schedule documents.
type Weekday string

const (
	Mon Weekday = "Mon"
	Tue Weekday = "Tue"
	Wed Weekday = "Wed"
	Thu Weekday = "Thu"
	Fri Weekday = "Fri"
	Sat Weekday = "Sat"
	Sun Weekday = "Sun"
)

var validWeekdays = map[Weekday]bool{Mon: true, Tue: true, Wed: true, Thu: true, Fri: true, Sat: true, Sun: true}

// Recurrence is the set of weekdays a schedule runs on.
type Recurrence struct {
	Days []Weekday `json:"days"`
}

func (r Recurrence) validate() error {
	if len(r.Days) == 0 {
		return fmt.Errorf("recurrence must include at least one day")
	}
	seen := make(map[Weekday]bool, len(r.Days))
	for _, d := range r.Days {
		if !validWeekdays[d] {
			return fmt.Errorf("invalid weekday %q", d)
		}
		if seen[d] {
			return fmt.Errorf("duplicate weekday %q", d)
		}
		seen[d] = true
	}
	return nil
}

// ScheduleMode is the discriminator carried by every dosing schedule variant.
type ScheduleMode string

const (
	ModeSingle         ScheduleMode = "single"
	ModeEveryHour      ScheduleMode = "every_hour"
	ModeCustomPeriods  ScheduleMode = "custom_periods"
	ModeTimer          ScheduleMode = "timer"
)

// Schedule is implemented by every dosing schedule variant.
type Schedule interface {
	Mode() ScheduleMode
	validate() error
}

// SingleSchedule doses a fixed daily volume at one time of day.
type SingleSchedule struct {
	DailyDoseML float64 `json:"dailyDoseMl"`
	StartTime   string  `json:"startTime"`
}

func (s SingleSchedule) Mode() ScheduleMode { return ModeSingle }
func (s SingleSchedule) validate() error {
	if s.DailyDoseML <= 0 {
		return fmt.Errorf("dailyDoseMl must be positive")
	}
	return validateTimeString(s.StartTime)
}

// EveryHourSchedule doses the configured daily volume spread hourly, starting
// at StartTime.
type EveryHourSchedule struct {
	DailyDoseML float64 `json:"dailyDoseMl"`
	StartTime   string  `json:"startTime"`
}

func (s EveryHourSchedule) Mode() ScheduleMode { return ModeEveryHour }
func (s EveryHourSchedule) validate() error {
	if s.DailyDoseML <= 0 {
		return fmt.Errorf("dailyDoseMl must be positive")
	}
	return validateTimeString(s.StartTime)
}

// CustomPeriod is one named window within a CustomPeriodsSchedule.
type CustomPeriod struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Doses     int    `json:"doses"`
}

// CustomPeriodsSchedule spreads the daily dose across explicit time windows.
type CustomPeriodsSchedule struct {
	DailyDoseML float64        `json:"dailyDoseMl"`
	Periods     []CustomPeriod `json:"periods"`
}

func (s CustomPeriodsSchedule) Mode() ScheduleMode { return ModeCustomPeriods }
func (s CustomPeriodsSchedule) validate() error {
	if s.DailyDoseML <= 0 {
		return fmt.Errorf("dailyDoseMl must be positive")
	}
	if len(s.Periods) == 0 {
		return fmt.Errorf("custom periods schedule requires at least one period")
	}
	total := 0
	for _, p := range s.Periods {
		if p.Doses < 1 {
			return fmt.Errorf("period doses must be at least 1")
		}
		if err := validateTimeString(p.StartTime); err != nil {
			return err
		}
		if err := validateTimeString(p.EndTime); err != nil {
			return err
		}
		total += p.Doses
	}
	if total > 24 {
		return fmt.Errorf("custom periods schedule cannot exceed 24 doses in total")
	}
	return nil
}

// TimerDose is a single timed dose within a TimerSchedule.
type TimerDose struct {
	Time        string  `json:"time"`
	QuantityML  float64 `json:"quantityMl"`
}

// TimerSchedule doses explicit volumes at explicit times.
type TimerSchedule struct {
	Doses                []TimerDose `json:"doses"`
	DefaultDoseQuantityML *float64   `json:"defaultDoseQuantityMl,omitempty"`
	DailyDoseML           *float64   `json:"dailyDoseMl,omitempty"`
}

func (s TimerSchedule) Mode() ScheduleMode { return ModeTimer }
func (s TimerSchedule) validate() error {
	if len(s.Doses) == 0 {
		return fmt.Errorf("timer schedule requires at least one dose")
	}
	if len(s.Doses) > 24 {
		return fmt.Errorf("timer schedule cannot include more than 24 doses")
	}
	for _, d := range s.Doses {
		if d.QuantityML <= 0 {
			return fmt.Errorf("dose quantity must be positive")
		}
		if err := validateTimeString(d.Time); err != nil {
			return err
		}
	}
	return nil
}

func validateTimeString(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("invalid time %q: %w", s, err)
	}
	return nil
}

// scheduleEnvelope is the wire shape used to marshal/unmarshal the Schedule
// discriminated union.
type scheduleEnvelope struct {
	Mode ScheduleMode `json:"mode"`
}

// UnmarshalScheduleJSON decodes a schedule document by sniffing its mode
// discriminator.
func UnmarshalScheduleJSON(raw []byte) (Schedule, error) {
	var env scheduleEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var sched Schedule
	switch env.Mode {
	case ModeSingle:
		var s SingleSchedule
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		sched = s
	case ModeEveryHour:
		var s EveryHourSchedule
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		sched = s
	case ModeCustomPeriods:
		var s CustomPeriodsSchedule
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		sched = s
	case ModeTimer:
		var s TimerSchedule
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		sched = s
	default:
		return nil, fmt.Errorf("unknown schedule mode %q", env.Mode)
	}
	if err := sched.validate(); err != nil {
		return nil, err
	}
	return sched, nil
}

// MarshalScheduleJSON encodes a schedule with its mode discriminator set.
func MarshalScheduleJSON(s Schedule) ([]byte, error) {
	type withMode struct {
		Mode ScheduleMode `json:"mode"`
		Schedule
	}
	return json.Marshal(marshalSchedule(s))
}

func marshalSchedule(s Schedule) interface{} {
	switch v := s.(type) {
	case SingleSchedule:
		return struct {
			Mode ScheduleMode `json:"mode"`
			SingleSchedule
		}{ModeSingle, v}
	case EveryHourSchedule:
		return struct {
			Mode ScheduleMode `json:"mode"`
			EveryHourSchedule
		}{ModeEveryHour, v}
	case CustomPeriodsSchedule:
		return struct {
			Mode ScheduleMode `json:"mode"`
			CustomPeriodsSchedule
		}{ModeCustomPeriods, v}
	case TimerSchedule:
		return struct {
			Mode ScheduleMode `json:"mode"`
			TimerSchedule
		}{ModeTimer, v}
	default:
		return s
	}
}

// Calibration maps pump run time to dispensed volume.
type Calibration struct {
	MLPerSecond      float64 `json:"mlPerSecond"`
	LastCalibratedAt string  `json:"lastCalibratedAt"`
}

func (c Calibration) validate() error {
	if c.MLPerSecond <= 0 {
		return fmt.Errorf("mlPerSecond must be positive")
	}
	return nil
}

// VolumeTracking is optional reservoir-level tracking metadata for a head.
type VolumeTracking struct {
	Enabled        bool     `json:"enabled"`
	CapacityML     *float64 `json:"capacityMl,omitempty"`
	CurrentML      *float64 `json:"currentMl,omitempty"`
	LowThresholdML *float64 `json:"lowThresholdMl,omitempty"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
}

func (v VolumeTracking) validate() error {
	for _, f := range []*float64{v.CapacityML, v.CurrentML, v.LowThresholdML} {
		if f != nil && *f < 0 {
			return fmt.Errorf("volume tracking fields must be non-negative")
		}
	}
	return nil
}

// DoserHeadStats is runtime-observed dispensing statistics for a head.
type DoserHeadStats struct {
	DosesToday      *int     `json:"dosesToday,omitempty"`
	MLDispensedToday *float64 `json:"mlDispensedToday,omitempty"`
}

// DoserHead is one dosing head's full configuration.
type DoserHead struct {
	Index                   int             `json:"index"`
	Label                   string          `json:"label,omitempty"`
	Active                  bool            `json:"active"`
	ScheduleRaw             json.RawMessage `json:"schedule"`
	Recurrence              Recurrence      `json:"recurrence"`
	MissedDoseCompensation  bool            `json:"missedDoseCompensation"`
	VolumeTracking          *VolumeTracking `json:"volumeTracking,omitempty"`
	Calibration             Calibration     `json:"calibration"`
	Stats                   *DoserHeadStats `json:"stats,omitempty"`
}

// Schedule decodes the head's discriminated schedule document.
func (h DoserHead) Schedule() (Schedule, error) {
	return UnmarshalScheduleJSON(h.ScheduleRaw)
}

// SetSchedule encodes sched into the head's raw schedule field.
func (h *DoserHead) SetSchedule(sched Schedule) error {
	raw, err := MarshalScheduleJSON(sched)
	if err != nil {
		return err
	}
	h.ScheduleRaw = raw
	return nil
}

func (h DoserHead) validate() error {
	if h.Index < 1 || h.Index > 4 {
		return fmt.Errorf("head index must be 1-4, got %d", h.Index)
	}
	sched, err := h.Schedule()
	if err != nil {
		return fmt.Errorf("head %d: %w", h.Index, err)
	}
	if err := sched.validate(); err != nil {
		return fmt.Errorf("head %d: %w", h.Index, err)
	}
	if err := h.Recurrence.validate(); err != nil {
		return fmt.Errorf("head %d: %w", h.Index, err)
	}
	if err := h.Calibration.validate(); err != nil {
		return fmt.Errorf("head %d: %w", h.Index, err)
	}
	if h.VolumeTracking != nil {
		if err := h.VolumeTracking.validate(); err != nil {
			return fmt.Errorf("head %d: %w", h.Index, err)
		}
	}
	return nil
}

// ConfigurationRevision is a single saved snapshot of a device's head set.
type ConfigurationRevision struct {
	Revision int         `json:"revision"`
	SavedAt  string      `json:"savedAt"`
	Heads    []DoserHead `json:"heads"`
	Note     string      `json:"note,omitempty"`
	SavedBy  string      `json:"savedBy,omitempty"`
}

func (r ConfigurationRevision) validate() error {
	if r.Revision < 1 {
		return fmt.Errorf("revision must be >= 1")
	}
	if len(r.Heads) == 0 {
		return fmt.Errorf("configuration revision must include at least one head")
	}
	if len(r.Heads) > 4 {
		return fmt.Errorf("configuration revision cannot have more than four heads")
	}
	seen := make(map[int]bool, len(r.Heads))
	for _, h := range r.Heads {
		if seen[h.Index] {
			return fmt.Errorf("duplicate head index %d", h.Index)
		}
		seen[h.Index] = true
		if err := h.validate(); err != nil {
			return err
		}
	}
	return nil
}

// DeviceConfiguration is a named, ordered sequence of revisions.
type DeviceConfiguration struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Revisions   []ConfigurationRevision `json:"revisions"`
	CreatedAt   string                  `json:"createdAt"`
	UpdatedAt   string                  `json:"updatedAt"`
	Description string                  `json:"description,omitempty"`
}

func (c DeviceConfiguration) validate() error {
	if len(c.Revisions) == 0 {
		return fmt.Errorf("device configuration must include at least one revision")
	}
	seen := make(map[int]bool, len(c.Revisions))
	for i, r := range c.Revisions {
		if seen[r.Revision] {
			return fmt.Errorf("duplicate revision number %d", r.Revision)
		}
		seen[r.Revision] = true
		if err := r.validate(); err != nil {
			return err
		}
		if i == 0 && r.Revision != 1 {
			return fmt.Errorf("configuration revisions must start at 1")
		}
		if i > 0 && r.Revision != c.Revisions[i-1].Revision+1 {
			return fmt.Errorf("configuration revision numbers must increase sequentially")
		}
	}
	return nil
}

// LatestRevision returns the most recent revision, which callers must ensure
// is non-empty via validate.
func (c DeviceConfiguration) LatestRevision() ConfigurationRevision {
	return c.Revisions[len(c.Revisions)-1]
}

// DoserDevice is the top-level persisted document for one dosing pump.
type DoserDevice struct {
	ID                    string                `json:"id"`
	Name                  string                `json:"name,omitempty"`
	Timezone              string                `json:"timezone"`
	Configurations        []DeviceConfiguration `json:"configurations"`
	ActiveConfigurationID string                `json:"activeConfigurationId,omitempty"`
	CreatedAt             string                `json:"createdAt,omitempty"`
	UpdatedAt             string                `json:"updatedAt,omitempty"`
}

// Validate checks structural invariants and fills in ActiveConfigurationID
// when unset, mirroring the behavior expected of a freshly-loaded document.
func (d *DoserDevice) Validate() error {
	if len(d.Configurations) == 0 {
		return fmt.Errorf("a doser device must have at least one configuration")
	}
	seen := make(map[string]bool, len(d.Configurations))
	for _, c := range d.Configurations {
		if seen[c.ID] {
			return fmt.Errorf("duplicate configuration id %q", c.ID)
		}
		seen[c.ID] = true
		if err := c.validate(); err != nil {
			return fmt.Errorf("configuration %q: %w", c.ID, err)
		}
	}
	if d.ActiveConfigurationID == "" {
		d.ActiveConfigurationID = d.Configurations[0].ID
	} else if !seen[d.ActiveConfigurationID] {
		return fmt.Errorf("active configuration id %q does not match any configuration", d.ActiveConfigurationID)
	}
	return nil
}

// GetConfiguration returns the configuration with the given id.
func (d DoserDevice) GetConfiguration(id string) (DeviceConfiguration, error) {
	for _, c := range d.Configurations {
		if c.ID == id {
			return c, nil
		}
	}
	return DeviceConfiguration{}, fmt.Errorf("configuration %q not found", id)
}

// GetActiveConfiguration returns the device's currently active configuration.
func (d DoserDevice) GetActiveConfiguration() (DeviceConfiguration, error) {
	if d.ActiveConfigurationID == "" {
		return DeviceConfiguration{}, fmt.Errorf("device does not have an active configuration set")
	}
	return d.GetConfiguration(d.ActiveConfigurationID)
}

// DeviceMetadata is the lightweight, server-side-only naming overlay kept for
// devices that have not yet (or no longer) carry a full configuration.
type DeviceMetadata struct {
	ID             string         `json:"id"`
	Name           string         `json:"name,omitempty"`
	Timezone       string         `json:"timezone"`
	HeadNames      map[int]string `json:"headNames,omitempty"`
	AutoReconnect  bool           `json:"autoReconnect"`
	CreatedAt      string         `json:"createdAt,omitempty"`
	UpdatedAt      string         `json:"updatedAt,omitempty"`
}
