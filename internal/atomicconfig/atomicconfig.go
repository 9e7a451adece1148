// Package atomicconfig provides copy-on-write mutators over configuration
// documents: every update takes a document, returns a new one with the
// requested change applied, and never mutates its argument in place.
package atomicconfig

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/srg/aquabled/internal/config"
)

// UpdateError wraps a failure encountered while applying an atomic update.
type UpdateError struct {
	Op  string
	Err error
}

func (e *UpdateError) Error() string { return fmt.Sprintf("atomic update %s: %v", e.Op, e.Err) }
func (e *UpdateError) Unwrap() error { return e.Err }

func nowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

func cloneDoserDevice(device config.DoserDevice) (config.DoserDevice, error) {
	raw, err := json.Marshal(device)
	if err != nil {
		return config.DoserDevice{}, err
	}
	var out config.DoserDevice
	if err := json.Unmarshal(raw, &out); err != nil {
		return config.DoserDevice{}, err
	}
	return out, nil
}

// UpdatePumpSchedule returns a new device with headIndex's schedule replaced
// by a single daily dose of volumeTenthsML at hour:minute, optionally
// restricting the recurrence to weekdays.
func UpdatePumpSchedule(device config.DoserDevice, headIndex int, volumeTenthsML int, hour, minute int, weekdays []config.Weekday) (config.DoserDevice, error) {
	updated, err := cloneDoserDevice(device)
	if err != nil {
		return config.DoserDevice{}, &UpdateError{"pump schedule", err}
	}

	active, err := updated.GetActiveConfiguration()
	if err != nil {
		return config.DoserDevice{}, &UpdateError{"pump schedule", err}
	}
	configIdx := -1
	for i, c := range updated.Configurations {
		if c.ID == active.ID {
			configIdx = i
			break
		}
	}
	cfg := &updated.Configurations[configIdx]
	latestIdx := len(cfg.Revisions) - 1

	headIdx := -1
	for i, h := range cfg.Revisions[latestIdx].Heads {
		if h.Index == headIndex {
			headIdx = i
			break
		}
	}
	if headIdx < 0 {
		return config.DoserDevice{}, &UpdateError{"pump schedule", fmt.Errorf("head %d not found in device %s configuration", headIndex, device.ID)}
	}

	head := &cfg.Revisions[latestIdx].Heads[headIdx]
	head.Active = true
	startTime := fmt.Sprintf("%02d:%02d", hour, minute)
	if err := head.SetSchedule(config.SingleSchedule{
		DailyDoseML: float64(volumeTenthsML) / 10.0,
		StartTime:   startTime,
	}); err != nil {
		return config.DoserDevice{}, &UpdateError{"pump schedule", err}
	}
	if len(weekdays) > 0 {
		head.Recurrence.Days = weekdays
	}

	timestamp := nowISO()
	cfg.UpdatedAt = timestamp
	updated.UpdatedAt = timestamp

	if err := updated.Validate(); err != nil {
		return config.DoserDevice{}, &UpdateError{"pump schedule", err}
	}
	return updated, nil
}

// UpdateDoserDeviceProps returns a new device with name and/or timezone
// overwritten when non-nil.
func UpdateDoserDeviceProps(device config.DoserDevice, name, timezone *string) (config.DoserDevice, error) {
	updated, err := cloneDoserDevice(device)
	if err != nil {
		return config.DoserDevice{}, &UpdateError{"device properties", err}
	}
	if name != nil {
		updated.Name = *name
	}
	if timezone != nil {
		updated.Timezone = *timezone
	}
	updated.UpdatedAt = nowISO()
	return updated, nil
}

// CreateNewRevision returns a new device with a fresh revision (numbered one
// past the active configuration's latest) appended, containing heads.
func CreateNewRevision(device config.DoserDevice, heads []config.DoserHead, note, savedBy string) (config.DoserDevice, error) {
	updated, err := cloneDoserDevice(device)
	if err != nil {
		return config.DoserDevice{}, &UpdateError{"new revision", err}
	}
	active, err := updated.GetActiveConfiguration()
	if err != nil {
		return config.DoserDevice{}, &UpdateError{"new revision", err}
	}
	configIdx := -1
	for i, c := range updated.Configurations {
		if c.ID == active.ID {
			configIdx = i
			break
		}
	}
	cfg := &updated.Configurations[configIdx]

	next := cfg.LatestRevision().Revision + 1
	timestamp := nowISO()
	cfg.Revisions = append(cfg.Revisions, config.ConfigurationRevision{
		Revision: next,
		SavedAt:  timestamp,
		Heads:    heads,
		Note:     note,
		SavedBy:  savedBy,
	})
	cfg.UpdatedAt = timestamp
	updated.UpdatedAt = timestamp

	if err := updated.Validate(); err != nil {
		return config.DoserDevice{}, &UpdateError{"new revision", err}
	}
	return updated, nil
}

// UpdateDeviceMetadata returns a new DeviceMetadata with the given fields
// overwritten when non-nil.
func UpdateDeviceMetadata(metadata config.DeviceMetadata, name, timezone *string, headNames map[int]string) (config.DeviceMetadata, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return config.DeviceMetadata{}, &UpdateError{"device metadata", err}
	}
	var updated config.DeviceMetadata
	if err := json.Unmarshal(raw, &updated); err != nil {
		return config.DeviceMetadata{}, &UpdateError{"device metadata", err}
	}

	if name != nil {
		updated.Name = *name
	}
	if timezone != nil {
		updated.Timezone = *timezone
	}
	if headNames != nil {
		copied := make(map[int]string, len(headNames))
		for k, v := range headNames {
			copied[k] = v
		}
		updated.HeadNames = copied
	}
	updated.UpdatedAt = nowISO()
	return updated, nil
}

func cloneLightDevice(device config.LightDevice) (config.LightDevice, error) {
	raw, err := json.Marshal(device)
	if err != nil {
		return config.LightDevice{}, err
	}
	var out config.LightDevice
	if err := json.Unmarshal(raw, &out); err != nil {
		return config.LightDevice{}, err
	}
	return out, nil
}

// UpdateLightProfile returns a new device with the active configuration's
// latest profile revision superseded by a fresh one built from profile.
func UpdateLightProfile(device config.LightDevice, profile config.Profile, note string) (config.LightDevice, error) {
	updated, err := cloneLightDevice(device)
	if err != nil {
		return config.LightDevice{}, &UpdateError{"light profile", err}
	}
	active, err := updated.GetActiveConfiguration()
	if err != nil {
		return config.LightDevice{}, &UpdateError{"light profile", err}
	}
	configIdx := -1
	for i, c := range updated.Configurations {
		if c.ID == active.ID {
			configIdx = i
			break
		}
	}
	cfg := &updated.Configurations[configIdx]

	next := cfg.LatestRevision().Revision + 1
	timestamp := nowISO()
	revision := config.LightProfileRevision{Revision: next, SavedAt: timestamp, Note: note}
	if err := revision.SetProfile(profile); err != nil {
		return config.LightDevice{}, &UpdateError{"light profile", err}
	}
	cfg.Revisions = append(cfg.Revisions, revision)
	cfg.UpdatedAt = timestamp
	updated.UpdatedAt = timestamp

	if err := updated.Validate(); err != nil {
		return config.LightDevice{}, &UpdateError{"light profile", err}
	}
	return updated, nil
}
