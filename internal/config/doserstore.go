package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const doserDeviceType = "doser"

// DoserStore is a per-device-file JSON store for dosing pump configuration
// documents, one file per device named by its id under basePath.
type DoserStore struct {
	basePath string
}

// NewDoserStore opens (creating if necessary) a doser configuration store
// rooted at basePath.
func NewDoserStore(basePath string) (*DoserStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &DoserStore{basePath: basePath}, nil
}

func (s *DoserStore) devicePath(deviceID string) string {
	return filepath.Join(s.basePath, deviceID+".json")
}

// GetDevice returns the device with the given id, or nil if not found.
func (s *DoserStore) GetDevice(deviceID string) (*DoserDevice, error) {
	dataRaw, found, err := readEnveloped(s.devicePath(deviceID), doserDeviceType)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var device DoserDevice
	if err := json.Unmarshal(dataRaw, &device); err != nil {
		return nil, fmt.Errorf("could not parse device file %s: %w", s.devicePath(deviceID), err)
	}
	if err := device.Validate(); err != nil {
		return nil, err
	}
	return &device, nil
}

// ListDevices returns every persisted device, silently skipping files that
// fail to parse rather than aborting the whole listing.
func (s *DoserStore) ListDevices() ([]*DoserDevice, error) {
	files, err := listDeviceFiles(s.basePath)
	if err != nil {
		return nil, err
	}
	var devices []*DoserDevice
	for _, path := range files {
		id := fileStem(path)
		device, err := s.GetDevice(id)
		if err != nil {
			continue
		}
		if device != nil {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

// UpsertDevice validates and persists device, creating or overwriting its
// file.
func (s *DoserStore) UpsertDevice(device *DoserDevice) error {
	if err := device.Validate(); err != nil {
		return err
	}
	return writeAtomic(s.devicePath(device.ID), doserDeviceType, device.ID, device)
}

// DeleteDevice removes a device's file, returning whether it existed.
func (s *DoserStore) DeleteDevice(deviceID string) (bool, error) {
	err := os.Remove(s.devicePath(deviceID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateConfiguration appends a new named configuration (starting at
// revision 1) to an existing device and persists it.
func (s *DoserStore) CreateConfiguration(deviceID, name string, heads []DoserHead, setActive bool) (*DeviceConfiguration, error) {
	device, err := s.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("device %q not found", deviceID)
	}
	for _, c := range device.Configurations {
		if c.ID == name {
			return nil, fmt.Errorf("configuration %q already exists for device %q", name, deviceID)
		}
	}

	timestamp := nowISO()
	config := DeviceConfiguration{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: timestamp,
		UpdatedAt: timestamp,
		Revisions: []ConfigurationRevision{{
			Revision: 1,
			SavedAt:  timestamp,
			Heads:    heads,
		}},
	}
	device.Configurations = append(device.Configurations, config)
	device.UpdatedAt = timestamp
	if setActive || device.ActiveConfigurationID == "" {
		device.ActiveConfigurationID = config.ID
	}

	if err := s.UpsertDevice(device); err != nil {
		return nil, err
	}
	return &config, nil
}

// AddRevision appends a new revision to an existing configuration.
func (s *DoserStore) AddRevision(deviceID, configurationID string, heads []DoserHead, note string) (*ConfigurationRevision, error) {
	device, err := s.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("device %q not found", deviceID)
	}

	idx := -1
	for i, c := range device.Configurations {
		if c.ID == configurationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("configuration %q not found", configurationID)
	}

	config := &device.Configurations[idx]
	next := config.LatestRevision().Revision + 1
	timestamp := nowISO()
	revision := ConfigurationRevision{
		Revision: next,
		SavedAt:  timestamp,
		Heads:    heads,
		Note:     note,
	}
	config.Revisions = append(config.Revisions, revision)
	config.UpdatedAt = timestamp
	device.UpdatedAt = timestamp

	if err := s.UpsertDevice(device); err != nil {
		return nil, err
	}
	return &revision, nil
}

// GetDeviceMetadata derives naming metadata from the device's latest
// revision, or nil if the device doesn't exist.
func (s *DoserStore) GetDeviceMetadata(deviceID string) (*DeviceMetadata, error) {
	device, err := s.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, nil
	}
	headNames := map[int]string{}
	if len(device.Configurations) > 0 {
		latestConfig := device.Configurations[len(device.Configurations)-1]
		if len(latestConfig.Revisions) > 0 {
			latestRevision := latestConfig.LatestRevision()
			for _, h := range latestRevision.Heads {
				if h.Label != "" {
					headNames[h.Index] = h.Label
				}
			}
		}
	}
	if len(headNames) == 0 {
		headNames = nil
	}
	return &DeviceMetadata{
		ID:        device.ID,
		Name:      device.Name,
		Timezone:  device.Timezone,
		HeadNames: headNames,
		CreatedAt: device.CreatedAt,
		UpdatedAt: device.UpdatedAt,
	}, nil
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
