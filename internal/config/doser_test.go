package config

import "testing"

func validDoserHead(index int) DoserHead {
	h := DoserHead{
		Index:      index,
		Active:     true,
		Recurrence: Recurrence{Days: []Weekday{Mon, Wed, Fri}},
		Calibration: Calibration{
			MLPerSecond:      1.5,
			LastCalibratedAt: "2026-01-01T00:00:00Z",
		},
	}
	if err := h.SetSchedule(SingleSchedule{DailyDoseML: 10, StartTime: "08:30"}); err != nil {
		panic(err)
	}
	return h
}

func TestDoserDeviceValidate(t *testing.T) {
	device := DoserDevice{
		ID:       "dev-1",
		Timezone: "UTC",
		Configurations: []DeviceConfiguration{{
			ID:        "cfg-1",
			Name:      "default",
			CreatedAt: "2026-01-01T00:00:00Z",
			UpdatedAt: "2026-01-01T00:00:00Z",
			Revisions: []ConfigurationRevision{{
				Revision: 1,
				SavedAt:  "2026-01-01T00:00:00Z",
				Heads:    []DoserHead{validDoserHead(1)},
			}},
		}},
	}
	if err := device.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if device.ActiveConfigurationID != "cfg-1" {
		t.Errorf("expected active configuration to default to cfg-1, got %q", device.ActiveConfigurationID)
	}
}

func TestDoserDeviceValidateRejectsNonSequentialRevisions(t *testing.T) {
	device := DoserDevice{
		ID:       "dev-1",
		Timezone: "UTC",
		Configurations: []DeviceConfiguration{{
			ID:   "cfg-1",
			Name: "default",
			Revisions: []ConfigurationRevision{
				{Revision: 1, SavedAt: "t", Heads: []DoserHead{validDoserHead(1)}},
				{Revision: 3, SavedAt: "t", Heads: []DoserHead{validDoserHead(1)}},
			},
		}},
	}
	if err := device.Validate(); err == nil {
		t.Error("expected error for non-sequential revisions")
	}
}

func TestDoserDeviceValidateRejectsDuplicateHeadIndex(t *testing.T) {
	device := DoserDevice{
		ID:       "dev-1",
		Timezone: "UTC",
		Configurations: []DeviceConfiguration{{
			ID:   "cfg-1",
			Name: "default",
			Revisions: []ConfigurationRevision{{
				Revision: 1,
				SavedAt:  "t",
				Heads:    []DoserHead{validDoserHead(1), validDoserHead(1)},
			}},
		}},
	}
	if err := device.Validate(); err == nil {
		t.Error("expected error for duplicate head index")
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	h := validDoserHead(2)
	sched, err := h.Schedule()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	single, ok := sched.(SingleSchedule)
	if !ok {
		t.Fatalf("expected SingleSchedule, got %T", sched)
	}
	if single.DailyDoseML != 10 || single.StartTime != "08:30" {
		t.Errorf("unexpected schedule contents: %+v", single)
	}
}

func TestCustomPeriodsScheduleRejectsTooManyDoses(t *testing.T) {
	s := CustomPeriodsSchedule{
		DailyDoseML: 5,
		Periods: []CustomPeriod{
			{StartTime: "06:00", EndTime: "08:00", Doses: 20},
			{StartTime: "18:00", EndTime: "20:00", Doses: 10},
		},
	}
	if err := s.validate(); err == nil {
		t.Error("expected error for more than 24 total doses")
	}
}

func TestTimerScheduleRejectsEmptyDoses(t *testing.T) {
	s := TimerSchedule{}
	if err := s.validate(); err == nil {
		t.Error("expected error for empty timer schedule")
	}
}

func TestRecurrenceRejectsDuplicateDays(t *testing.T) {
	r := Recurrence{Days: []Weekday{Mon, Mon}}
	if err := r.validate(); err == nil {
		t.Error("expected error for duplicate weekday")
	}
}
