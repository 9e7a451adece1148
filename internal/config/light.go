package config

import (
	"encoding/json"
	"fmt"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ChannelLevels preserves channel-key insertion order across encode/decode,
// matching how hand-authored profile documents list channels.
type ChannelLevels = *orderedmap.OrderedMap[string, int]

func newChannelLevels() ChannelLevels {
	return orderedmap.New[string, int]()
}

// NewChannelLevels constructs an empty, insertion-ordered channel level map
// for callers outside the package building a ManualProfile.
func NewChannelLevels() ChannelLevels {
	return newChannelLevels()
}

// ChannelDef describes one color/level channel a light unit exposes.
type ChannelDef struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Step  int    `json:"step"`
}

func (c ChannelDef) validate() error {
	if c.Key == "" {
		return fmt.Errorf("channel key cannot be empty")
	}
	if c.Max < c.Min {
		return fmt.Errorf("channel %q: max must be >= min", c.Key)
	}
	if c.Step <= 0 {
		return fmt.Errorf("channel %q: step must be positive", c.Key)
	}
	return nil
}

// ProfileMode is the discriminator carried by every light profile variant.
type ProfileMode string

const (
	ProfileManual ProfileMode = "manual"
	ProfileCustom ProfileMode = "custom"
	ProfileAuto   ProfileMode = "auto"
)

// Profile is implemented by every light profile variant.
type Profile interface {
	Mode() ProfileMode
	validate() error
}

// ManualProfile holds fixed channel levels with no time component.
type ManualProfile struct {
	Levels ChannelLevels `json:"levels"`
}

func (p ManualProfile) Mode() ProfileMode { return ProfileManual }
func (p ManualProfile) validate() error {
	if p.Levels == nil || p.Levels.Len() == 0 {
		return fmt.Errorf("manual profile requires at least one channel level")
	}
	return nil
}

// CustomPoint is one timed level point within a CustomProfile.
type CustomPoint struct {
	Time   string        `json:"time"`
	Levels ChannelLevels `json:"levels"`
}

// InterpolationKind selects how levels transition between CustomPoints.
type InterpolationKind string

const (
	InterpolationStep   InterpolationKind = "step"
	InterpolationLinear InterpolationKind = "linear"
)

// CustomProfile is a time-indexed sequence of level points.
type CustomProfile struct {
	Interpolation InterpolationKind `json:"interpolation"`
	Points        []CustomPoint     `json:"points"`
}

func (p CustomProfile) Mode() ProfileMode { return ProfileCustom }
func (p CustomProfile) validate() error {
	if p.Interpolation != InterpolationStep && p.Interpolation != InterpolationLinear {
		return fmt.Errorf("invalid interpolation %q", p.Interpolation)
	}
	if len(p.Points) == 0 {
		return fmt.Errorf("custom profile requires at least one point")
	}
	if len(p.Points) > 24 {
		return fmt.Errorf("custom profile cannot contain more than 24 points")
	}
	lastMinutes := -1
	seen := make(map[int]bool, len(p.Points))
	for _, pt := range p.Points {
		minutes, err := timeToMinutes(pt.Time)
		if err != nil {
			return err
		}
		if seen[minutes] {
			return fmt.Errorf("custom profile point times must be unique")
		}
		seen[minutes] = true
		if minutes < lastMinutes {
			return fmt.Errorf("custom profile point times must be strictly increasing")
		}
		lastMinutes = minutes
	}
	return nil
}

// AutoProgram is a sunrise/sunset ramp that runs on a set of weekdays.
type AutoProgram struct {
	ID          string        `json:"id"`
	Label       string        `json:"label,omitempty"`
	Enabled     bool          `json:"enabled"`
	Days        []Weekday     `json:"days"`
	Sunrise     string        `json:"sunrise"`
	Sunset      string        `json:"sunset"`
	RampMinutes int           `json:"rampMinutes"`
	Levels      ChannelLevels `json:"levels"`
}

func (p AutoProgram) validate() error {
	if p.ID == "" {
		return fmt.Errorf("auto program id cannot be empty")
	}
	if len(p.Days) == 0 {
		return fmt.Errorf("auto program must include at least one day")
	}
	seen := make(map[Weekday]bool, len(p.Days))
	for _, d := range p.Days {
		if !validWeekdays[d] {
			return fmt.Errorf("invalid weekday %q", d)
		}
		if seen[d] {
			return fmt.Errorf("duplicate day %q", d)
		}
		seen[d] = true
	}
	sunrise, err := timeToMinutes(p.Sunrise)
	if err != nil {
		return err
	}
	sunset, err := timeToMinutes(p.Sunset)
	if err != nil {
		return err
	}
	if sunset <= sunrise {
		return fmt.Errorf("sunset must be after sunrise")
	}
	if p.RampMinutes < 0 {
		return fmt.Errorf("ramp minutes must be non-negative")
	}
	return nil
}

// AutoProfile runs up to seven AutoPrograms.
type AutoProfile struct {
	Programs []AutoProgram `json:"programs"`
}

func (p AutoProfile) Mode() ProfileMode { return ProfileAuto }
func (p AutoProfile) validate() error {
	if len(p.Programs) > 7 {
		return fmt.Errorf("auto profile cannot include more than 7 programs")
	}
	for _, prog := range p.Programs {
		if err := prog.validate(); err != nil {
			return err
		}
	}
	return nil
}

func timeToMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

type profileEnvelope struct {
	Mode ProfileMode `json:"mode"`
}

// UnmarshalProfileJSON decodes a profile document by sniffing its mode
// discriminator.
func UnmarshalProfileJSON(raw []byte) (Profile, error) {
	var env profileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var profile Profile
	switch env.Mode {
	case ProfileManual:
		var p ManualProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		profile = p
	case ProfileCustom:
		var p CustomProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		profile = p
	case ProfileAuto:
		var p AutoProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		profile = p
	default:
		return nil, fmt.Errorf("unknown profile mode %q", env.Mode)
	}
	if err := profile.validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

// MarshalProfileJSON encodes a profile with its mode discriminator set.
func MarshalProfileJSON(p Profile) ([]byte, error) {
	switch v := p.(type) {
	case ManualProfile:
		return json.Marshal(struct {
			Mode ProfileMode `json:"mode"`
			ManualProfile
		}{ProfileManual, v})
	case CustomProfile:
		return json.Marshal(struct {
			Mode ProfileMode `json:"mode"`
			CustomProfile
		}{ProfileCustom, v})
	case AutoProfile:
		return json.Marshal(struct {
			Mode ProfileMode `json:"mode"`
			AutoProfile
		}{ProfileAuto, v})
	default:
		return nil, fmt.Errorf("unknown profile type %T", p)
	}
}

// LightProfileRevision is a single saved revision of a light's profile.
type LightProfileRevision struct {
	Revision    int             `json:"revision"`
	SavedAt     string          `json:"savedAt"`
	ProfileRaw  json.RawMessage `json:"profile"`
	Note        string          `json:"note,omitempty"`
	SavedBy     string          `json:"savedBy,omitempty"`
}

// Profile decodes the revision's discriminated profile document.
func (r LightProfileRevision) Profile() (Profile, error) {
	return UnmarshalProfileJSON(r.ProfileRaw)
}

// SetProfile encodes p into the revision's raw profile field.
func (r *LightProfileRevision) SetProfile(p Profile) error {
	raw, err := MarshalProfileJSON(p)
	if err != nil {
		return err
	}
	r.ProfileRaw = raw
	return nil
}

func (r LightProfileRevision) validate() error {
	if r.Revision < 1 {
		return fmt.Errorf("revision must be >= 1")
	}
	p, err := r.Profile()
	if err != nil {
		return err
	}
	return p.validate()
}

// LightDeviceConfiguration is a named, ordered sequence of profile revisions
// plus the channel layout the profiles are defined against.
type LightDeviceConfiguration struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Channels    []ChannelDef           `json:"channels"`
	Revisions   []LightProfileRevision `json:"revisions"`
	CreatedAt   string                 `json:"createdAt"`
	UpdatedAt   string                 `json:"updatedAt"`
	Description string                 `json:"description,omitempty"`
}

func (c LightDeviceConfiguration) validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("light configuration must declare at least one channel")
	}
	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if seen[ch.Key] {
			return fmt.Errorf("duplicate channel key %q", ch.Key)
		}
		seen[ch.Key] = true
		if err := ch.validate(); err != nil {
			return err
		}
	}
	if len(c.Revisions) == 0 {
		return fmt.Errorf("light configuration must include at least one revision")
	}
	seenRev := make(map[int]bool, len(c.Revisions))
	for i, r := range c.Revisions {
		if seenRev[r.Revision] {
			return fmt.Errorf("duplicate revision number %d", r.Revision)
		}
		seenRev[r.Revision] = true
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

// LatestRevision returns the most recent profile revision.
func (c LightDeviceConfiguration) LatestRevision() LightProfileRevision {
	return c.Revisions[len(c.Revisions)-1]
}

// LightDevice is the top-level persisted document for one light unit.
type LightDevice struct {
	ID                    string                     `json:"id"`
	Name                  string                     `json:"name,omitempty"`
	Timezone              string                     `json:"timezone"`
	Configurations        []LightDeviceConfiguration `json:"configurations"`
	ActiveConfigurationID string                     `json:"activeConfigurationId,omitempty"`
	CreatedAt             string                     `json:"createdAt,omitempty"`
	UpdatedAt             string                     `json:"updatedAt,omitempty"`
}

// Validate checks structural invariants and defaults ActiveConfigurationID.
func (d *LightDevice) Validate() error {
	if len(d.Configurations) == 0 {
		return fmt.Errorf("a light device must have at least one configuration")
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
func (d LightDevice) GetConfiguration(id string) (LightDeviceConfiguration, error) {
	for _, c := range d.Configurations {
		if c.ID == id {
			return c, nil
		}
	}
	return LightDeviceConfiguration{}, fmt.Errorf("configuration %q not found", id)
}

// GetActiveConfiguration returns the device's currently active configuration.
func (d LightDevice) GetActiveConfiguration() (LightDeviceConfiguration, error) {
	if d.ActiveConfigurationID == "" {
		return LightDeviceConfiguration{}, fmt.Errorf("device does not have an active configuration set")
	}
	return d.GetConfiguration(d.ActiveConfigurationID)
}
