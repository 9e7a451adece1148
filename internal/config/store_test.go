package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDoserStoreUpsertAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDoserStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	device := &DoserDevice{
		ID:       "dev-1",
		Timezone: "UTC",
		Configurations: []DeviceConfiguration{{
			ID:   "cfg-1",
			Name: "default",
			Revisions: []ConfigurationRevision{{
				Revision: 1,
				SavedAt:  "t",
				Heads:    []DoserHead{validDoserHead(1)},
			}},
		}},
	}
	if err := store.UpsertDevice(device); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.GetDevice("dev-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected device to be found")
	}
	if got.ActiveConfigurationID != "cfg-1" {
		t.Errorf("active configuration = %q, want cfg-1", got.ActiveConfigurationID)
	}

	if _, err := os.Stat(filepath.Join(dir, "dev-1.json")); err != nil {
		t.Fatalf("expected device file to exist: %v", err)
	}
}

func TestDoserStoreReadsLegacyEnvelope(t *testing.T) {
	dir := t.TempDir()
	device := DoserDevice{
		ID:       "legacy-1",
		Timezone: "UTC",
		Configurations: []DeviceConfiguration{{
			ID:   "cfg-1",
			Name: "default",
			Revisions: []ConfigurationRevision{{
				Revision: 1,
				SavedAt:  "t",
				Heads:    []DoserHead{validDoserHead(1)},
			}},
		}},
	}
	raw, err := json.Marshal(device)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "legacy-1.json"), raw, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store, err := NewDoserStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.GetDevice("legacy-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ID != "legacy-1" {
		t.Fatalf("expected to read legacy device, got %+v", got)
	}
}

func TestDoserStoreAddRevision(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDoserStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	device := &DoserDevice{
		ID:       "dev-1",
		Timezone: "UTC",
		Configurations: []DeviceConfiguration{{
			ID:   "cfg-1",
			Name: "default",
			Revisions: []ConfigurationRevision{{
				Revision: 1,
				SavedAt:  "t",
				Heads:    []DoserHead{validDoserHead(1)},
			}},
		}},
	}
	if err := store.UpsertDevice(device); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rev, err := store.AddRevision("dev-1", "cfg-1", []DoserHead{validDoserHead(1)}, "bump")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rev.Revision != 2 {
		t.Errorf("expected revision 2, got %d", rev.Revision)
	}

	got, err := store.GetDevice("dev-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	config, err := got.GetConfiguration("cfg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(config.Revisions) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(config.Revisions))
	}
}

func TestDoserStoreDeleteDevice(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDoserStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	device := &DoserDevice{
		ID:       "dev-1",
		Timezone: "UTC",
		Configurations: []DeviceConfiguration{{
			ID:   "cfg-1",
			Name: "default",
			Revisions: []ConfigurationRevision{{
				Revision: 1,
				SavedAt:  "t",
				Heads:    []DoserHead{validDoserHead(1)},
			}},
		}},
	}
	if err := store.UpsertDevice(device); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deleted, err := store.DeleteDevice("dev-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("expected device to have been deleted")
	}
	got, err := store.GetDevice("dev-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected device to be gone")
	}
}

func TestLightStoreUpsertAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLightStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	revision := LightProfileRevision{Revision: 1, SavedAt: "t"}
	if err := revision.SetProfile(ManualProfile{Levels: manualLevels()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	device := &LightDevice{
		ID:       "light-1",
		Timezone: "UTC",
		Configurations: []LightDeviceConfiguration{{
			ID:        "cfg-1",
			Name:      "default",
			Channels:  []ChannelDef{{Key: "red", Max: 100, Step: 1}},
			Revisions: []LightProfileRevision{revision},
		}},
	}
	if err := store.UpsertDevice(device); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.GetDevice("light-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected device to be found")
	}
}
