package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// envelope is the on-disk wrapper written around every current-format device
// document. It lets a reader recognize wrong-device-type files cheaply
// without decoding the full payload.
type envelope struct {
	DeviceType  string          `json:"device_type"`
	DeviceID    string          `json:"device_id"`
	LastUpdated string          `json:"last_updated"`
	DeviceData  json.RawMessage `json:"device_data"`
}

func nowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// listDeviceFiles returns every "*.json" file directly under dir, excluding
// the "*.metadata.json" sidecar files used for name-only devices.
func listDeviceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".metadata.json") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// writeAtomic serializes data as indented JSON wrapped in the
// current-format envelope and writes it via a temp-file-then-rename so a
// reader never observes a partially written file.
func writeAtomic(path, deviceType, deviceID string, data interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	deviceData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	env := envelope{
		DeviceType:  deviceType,
		DeviceID:    deviceID,
		LastUpdated: nowISO(),
		DeviceData:  deviceData,
	}
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readEnveloped reads path and returns the device-data payload, tolerating
// both the current envelope format and the legacy format where the file's
// top-level object *is* the device document.
func readEnveloped(path, deviceType string) (json.RawMessage, bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, false, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false, fmt.Errorf("could not parse device file %s: %w", path, err)
	}

	if typeRaw, ok := probe["device_type"]; ok {
		var typ string
		if err := json.Unmarshal(typeRaw, &typ); err != nil {
			return nil, false, fmt.Errorf("could not parse device file %s: %w", path, err)
		}
		if typ != deviceType {
			return nil, false, nil
		}
		dataRaw, ok := probe["device_data"]
		if !ok {
			return nil, false, fmt.Errorf("device file %s missing device_data", path)
		}
		return dataRaw, true, nil
	}

	// Legacy format: the whole file is the device document.
	return raw, true, nil
}
