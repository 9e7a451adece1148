package protocol

import "fmt"

const (
	lightModeStatus byte = 0xFE
	lightTailSize        = 5
)

// LightKeyframe is a single scheduled point in a light's program.
type LightKeyframe struct {
	Hour, Minute, Value byte
}

// AsTime renders the keyframe's time as "HH:MM".
func (k LightKeyframe) AsTime() string {
	return fmt.Sprintf("%02d:%02d", k.Hour, k.Minute)
}

// LightTimeMarker is a "00 02 HH MM" sentinel embedded in a light status
// body, carrying the controller's own clock rather than a keyframe.
type LightTimeMarker struct {
	Hour, Minute byte
}

// LightStatus is the decoded view of a 0x5B ... 0xFE light status
// notification.
type LightStatus struct {
	MessageID             *MsgID
	ResponseMode          *byte
	Weekday               *byte
	CurrentHour           *byte
	CurrentMinute         *byte
	Keyframes             []LightKeyframe
	TimeMarkers           []LightTimeMarker
	Tail                  []byte
	RawPayload            []byte
}

// ParseLightPayload decodes a light status notification. Like
// ParseDoserPayload, it tolerates both a full 0x5B-framed notification and
// an already-trimmed body.
func ParseLightPayload(payload []byte) (LightStatus, error) {
	if len(payload) == 0 {
		return LightStatus{}, fmt.Errorf("protocol: empty light payload")
	}

	status := LightStatus{RawPayload: append([]byte(nil), payload...)}
	body := payload

	if payload[0] == 0x5B && len(payload) >= 9 {
		id := MsgID{Hi: payload[3], Lo: payload[4]}
		status.MessageID = &id
		mode := payload[5]
		status.ResponseMode = &mode
		weekday := payload[6]
		status.Weekday = &weekday
		hour := payload[7]
		status.CurrentHour = &hour
		minute := payload[8]
		status.CurrentMinute = &minute
		body = payload[9:]
	}

	bodyBytes := body
	if len(bodyBytes) >= lightTailSize {
		split := len(bodyBytes) - lightTailSize
		status.Tail = append([]byte(nil), bodyBytes[split:]...)
		bodyBytes = bodyBytes[:split]
	}

	var lastMinutes = -1
	i := 0
	for i < len(bodyBytes) {
		remaining := len(bodyBytes) - i

		// Sentinel 00 02 HH MM marks the controller's current clock.
		if remaining >= 4 && bodyBytes[i] == 0x00 && bodyBytes[i+1] == 0x02 {
			status.TimeMarkers = append(status.TimeMarkers, LightTimeMarker{
				Hour:   bodyBytes[i+2],
				Minute: bodyBytes[i+3],
			})
			i += 4
			continue
		}

		if remaining < 3 {
			break
		}

		hour, minute, value := bodyBytes[i], bodyBytes[i+1], bodyBytes[i+2]
		if hour == 0 && minute == 0 && value == 0 {
			// padding / unused slot
			i += 3
			continue
		}

		totalMinutes := int(hour)*60 + int(minute)
		if lastMinutes != -1 && totalMinutes < lastMinutes {
			// remaining bytes are trailing artifacts once time regresses
			break
		}

		status.Keyframes = append(status.Keyframes, LightKeyframe{Hour: hour, Minute: minute, Value: value})
		lastMinutes = totalMinutes
		i += 3
	}

	return status, nil
}
