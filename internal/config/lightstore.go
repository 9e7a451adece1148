package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const lightDeviceType = "light"

// LightStore is a per-device-file JSON store for light unit configuration
// documents, mirroring DoserStore's on-disk layout and envelope format.
type LightStore struct {
	basePath string
}

// NewLightStore opens (creating if necessary) a light configuration store
// rooted at basePath.
func NewLightStore(basePath string) (*LightStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &LightStore{basePath: basePath}, nil
}

func (s *LightStore) devicePath(deviceID string) string {
	return filepath.Join(s.basePath, deviceID+".json")
}

// GetDevice returns the device with the given id, or nil if not found.
func (s *LightStore) GetDevice(deviceID string) (*LightDevice, error) {
	dataRaw, found, err := readEnveloped(s.devicePath(deviceID), lightDeviceType)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var device LightDevice
	if err := json.Unmarshal(dataRaw, &device); err != nil {
		return nil, fmt.Errorf("could not parse device file %s: %w", s.devicePath(deviceID), err)
	}
	if err := device.Validate(); err != nil {
		return nil, err
	}
	return &device, nil
}

// ListDevices returns every persisted light device, skipping files that fail
// to parse.
func (s *LightStore) ListDevices() ([]*LightDevice, error) {
	files, err := listDeviceFiles(s.basePath)
	if err != nil {
		return nil, err
	}
	var devices []*LightDevice
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

// UpsertDevice validates and persists device.
func (s *LightStore) UpsertDevice(device *LightDevice) error {
	if err := device.Validate(); err != nil {
		return err
	}
	return writeAtomic(s.devicePath(device.ID), lightDeviceType, device.ID, device)
}

// DeleteDevice removes a device's file, returning whether it existed.
func (s *LightStore) DeleteDevice(deviceID string) (bool, error) {
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
// revision 1) to an existing light device and persists it.
func (s *LightStore) CreateConfiguration(deviceID, name string, channels []ChannelDef, profile Profile, setActive bool) (*LightDeviceConfiguration, error) {
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
	revision := LightProfileRevision{Revision: 1, SavedAt: timestamp}
	if err := revision.SetProfile(profile); err != nil {
		return nil, err
	}

	config := LightDeviceConfiguration{
		ID:        uuid.NewString(),
		Name:      name,
		Channels:  channels,
		CreatedAt: timestamp,
		UpdatedAt: timestamp,
		Revisions: []LightProfileRevision{revision},
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

// AddRevision appends a new profile revision to an existing configuration.
func (s *LightStore) AddRevision(deviceID, configurationID string, profile Profile, note string) (*LightProfileRevision, error) {
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
	revision := LightProfileRevision{Revision: next, SavedAt: timestamp, Note: note}
	if err := revision.SetProfile(profile); err != nil {
		return nil, err
	}
	config.Revisions = append(config.Revisions, revision)
	config.UpdatedAt = timestamp
	device.UpdatedAt = timestamp

	if err := s.UpsertDevice(device); err != nil {
		return nil, err
	}
	return &revision, nil
}
