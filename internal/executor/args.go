package executor

import (
	"github.com/srg/aquabled/internal/apperr"
)

// noArgActions never accept arguments.
var noArgActions = map[string]bool{
	ActionTurnOn:            true,
	ActionTurnOff:           true,
	ActionEnableAutoMode:    true,
	ActionSetManualMode:     true,
	ActionResetAutoSettings: true,
}

// validateArgs checks that action's arguments are present, absent, and
// shaped as the action requires, mirroring the per-action argument schemas
// a caller would otherwise enforce at the API boundary.
func validateArgs(action string, args map[string]interface{}) error {
	if noArgActions[action] {
		if len(args) > 0 {
			return apperr.New(apperr.KindInvalidArgs, "action %q does not accept arguments", action)
		}
		return nil
	}

	switch action {
	case ActionSetBrightness:
		if _, err := requireIntRange(args, "brightness", 0, 100); err != nil {
			return err
		}
		if _, err := requireIntRange(args, "color", 0, 3); err != nil {
			return err
		}
	case ActionSetManualChannels:
		raw, ok := args["channels"]
		if !ok {
			return apperr.New(apperr.KindInvalidArgs, "action %q requires 'channels'", action)
		}
		list, ok := raw.([]interface{})
		if !ok || len(list) == 0 || len(list) > 4 {
			return apperr.New(apperr.KindInvalidArgs, "'channels' must be a list of 1-4 brightness values")
		}
		for i, v := range list {
			n, ok := toInt(v)
			if !ok || n < 0 || n > 100 {
				return apperr.New(apperr.KindInvalidArgs, "channel %d brightness must be 0-100", i)
			}
		}
	case ActionSetSchedule:
		if _, err := requireIntRange(args, "head_index", 0, 3); err != nil {
			return err
		}
		if _, err := requireIntRange(args, "volume_tenths_ml", 0, 65535); err != nil {
			return err
		}
		if _, err := requireIntRange(args, "hour", 0, 23); err != nil {
			return err
		}
		if _, err := requireIntRange(args, "minute", 0, 59); err != nil {
			return err
		}
		if raw, ok := args["weekdays"]; ok {
			if _, err := weekdayList(raw); err != nil {
				return err
			}
		}
	case ActionAddAutoSetting:
		if err := requireHHMM(args, "sunrise"); err != nil {
			return err
		}
		if err := requireHHMM(args, "sunset"); err != nil {
			return err
		}
		if _, err := requireIntRange(args, "brightness", 0, 100); err != nil {
			return err
		}
		if raw, ok := args["weekdays"]; ok {
			if _, err := weekdayList(raw); err != nil {
				return err
			}
		}
	default:
		return apperr.New(apperr.KindInvalidArgs, "unsupported action %q", action)
	}
	return nil
}

func requireIntRange(args map[string]interface{}, key string, min, max int) (int, error) {
	raw, ok := args[key]
	if !ok {
		return 0, apperr.New(apperr.KindInvalidArgs, "missing required argument %q", key)
	}
	n, ok := toInt(raw)
	if !ok || n < min || n > max {
		return 0, apperr.New(apperr.KindInvalidArgs, "%q must be %d-%d", key, min, max)
	}
	return n, nil
}

func requireHHMM(args map[string]interface{}, key string) error {
	raw, ok := args[key]
	if !ok {
		return apperr.New(apperr.KindInvalidArgs, "missing required argument %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return apperr.New(apperr.KindInvalidArgs, "%q must be a string", key)
	}
	if _, _, err := parseHHMM(s); err != nil {
		return apperr.Wrap(apperr.KindInvalidArgs, err, "%q must be HH:MM", key)
	}
	return nil
}

func weekdayList(raw interface{}) ([]string, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, apperr.New(apperr.KindInvalidArgs, "'weekdays' must be a list of day names")
	}
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, apperr.New(apperr.KindInvalidArgs, "'weekdays' entries must be strings")
		}
		if seen[s] {
			return nil, apperr.New(apperr.KindInvalidArgs, "duplicate weekday %q", s)
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func intArg(args map[string]interface{}, key string) int {
	n, _ := toInt(args[key])
	return n
}

func byteArg(args map[string]interface{}, key string) byte {
	return byte(intArg(args, key))
}

func floatArg(args map[string]interface{}, key string, def float64) float64 {
	if v, ok := args[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

func boolArg(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func weekdayNamesArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	names, _ := weekdayList(raw)
	return names
}

func channelsArg(args map[string]interface{}, key string) (map[byte]byte, error) {
	raw, ok := args[key]
	if !ok {
		return nil, apperr.New(apperr.KindInvalidArgs, "missing required argument %q", key)
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, apperr.New(apperr.KindInvalidArgs, "%q must be a list", key)
	}
	out := make(map[byte]byte, len(list))
	for i, v := range list {
		n, ok := toInt(v)
		if !ok {
			return nil, apperr.New(apperr.KindInvalidArgs, "channel %d brightness must be numeric", i)
		}
		out[byte(i)] = byte(n)
	}
	return out, nil
}
