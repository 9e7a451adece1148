package config

// CreateDefaultDoserDevice builds a fresh DoserDevice with four inactive
// heads, each dosing 10ml at 09:00 every day. address becomes the device id;
// name falls back to a short label derived from it when empty.
func CreateDefaultDoserDevice(address, name, timezone string) (DoserDevice, error) {
	if name == "" {
		name = defaultDeviceName("Doser", address)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	timestamp := nowISO()

	heads := make([]DoserHead, 0, 4)
	for idx := 1; idx <= 4; idx++ {
		head := DoserHead{
			Index:  idx,
			Label:  defaultHeadLabel(idx),
			Active: false,
			Recurrence: Recurrence{
				Days: []Weekday{Mon, Tue, Wed, Thu, Fri, Sat, Sun},
			},
			Calibration: Calibration{MLPerSecond: 0.1, LastCalibratedAt: timestamp},
		}
		if err := head.SetSchedule(SingleSchedule{DailyDoseML: 10.0, StartTime: "09:00"}); err != nil {
			return DoserDevice{}, err
		}
		heads = append(heads, head)
	}

	device := DoserDevice{
		ID:       address,
		Name:     name,
		Timezone: timezone,
		Configurations: []DeviceConfiguration{{
			ID:          "default",
			Name:        "Default Configuration",
			Description: "Auto-generated default configuration",
			CreatedAt:   timestamp,
			UpdatedAt:   timestamp,
			Revisions: []ConfigurationRevision{{
				Revision: 1,
				SavedAt:  timestamp,
				Heads:    heads,
				Note:     "Initial configuration",
				SavedBy:  "system",
			}},
		}},
		ActiveConfigurationID: "default",
		CreatedAt:             timestamp,
		UpdatedAt:             timestamp,
	}
	return device, nil
}

// CreateDefaultLightDevice builds a fresh LightDevice with the three
// standard RGB channels, starting in a manual profile at zero brightness.
func CreateDefaultLightDevice(address, name, timezone string) (LightDevice, error) {
	if name == "" {
		name = defaultDeviceName("Light", address)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	timestamp := nowISO()

	levels := newChannelLevels()
	levels.Set("red", 0)
	levels.Set("green", 0)
	levels.Set("blue", 0)

	revision := LightProfileRevision{Revision: 1, SavedAt: timestamp, Note: "Initial configuration", SavedBy: "system"}
	if err := revision.SetProfile(ManualProfile{Levels: levels}); err != nil {
		return LightDevice{}, err
	}

	device := LightDevice{
		ID:       address,
		Name:     name,
		Timezone: timezone,
		Configurations: []LightDeviceConfiguration{{
			ID:   "default",
			Name: "Default Configuration",
			Channels: []ChannelDef{
				{Key: "red", Label: "Red", Min: 0, Max: 100, Step: 1},
				{Key: "green", Label: "Green", Min: 0, Max: 100, Step: 1},
				{Key: "blue", Label: "Blue", Min: 0, Max: 100, Step: 1},
			},
			Description: "Auto-generated default configuration",
			CreatedAt:   timestamp,
			UpdatedAt:   timestamp,
			Revisions:   []LightProfileRevision{revision},
		}},
		ActiveConfigurationID: "default",
		CreatedAt:             timestamp,
		UpdatedAt:             timestamp,
	}
	return device, nil
}

func defaultDeviceName(prefix, address string) string {
	if len(address) > 8 {
		return prefix + " " + address[len(address)-8:]
	}
	return prefix + " " + address
}

func defaultHeadLabel(idx int) string {
	switch idx {
	case 1:
		return "Head 1"
	case 2:
		return "Head 2"
	case 3:
		return "Head 3"
	default:
		return "Head 4"
	}
}
