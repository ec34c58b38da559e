package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 form used on the wire and in storage.
// Microsecond precision with a trailing Z, as the console UI has always parsed it.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// OrbitAltitude is the altitude above which a flight counts as in orbit.
const OrbitAltitude = 100000.0

type Status int

const (
	StatusCountdown Status = iota
	StatusInOrbit
)

// Display strings kept for compatibility with existing consoles and stored rows.
const (
	statusCountdownLabel = "Cuenta regresiva"
	statusInOrbitLabel   = "En órbita"
)

func (s Status) String() string {
	switch s {
	case StatusInOrbit:
		return statusInOrbitLabel
	default:
		return statusCountdownLabel
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var label string
	if err := json.Unmarshal(b, &label); err != nil {
		return err
	}
	parsed, err := ParseStatus(label)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus maps a display string back to a Status.
func ParseStatus(label string) (Status, error) {
	switch label {
	case statusCountdownLabel:
		return StatusCountdown, nil
	case statusInOrbitLabel:
		return StatusInOrbit, nil
	}
	return StatusCountdown, fmt.Errorf("unknown flight status %q", label)
}

// Sample is one tick of simulated telemetry for a mission.
// Its JSON form carries the mission id and a TimestampLayout timestamp.
type Sample struct {
	Timestamp time.Time
	MissionID int64
	Altitude  float64
	Velocity  float64
	Fuel      float64
	Status    Status
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts TimestampLayout and falls back to RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

type sampleJSON struct {
	Timestamp string  `json:"timestamp"`
	MissionID int64   `json:"mission_id"`
	Altitude  float64 `json:"altitude"`
	Velocity  float64 `json:"velocity"`
	Fuel      float64 `json:"fuel"`
	Status    Status  `json:"status"`
}

func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		Timestamp: FormatTimestamp(s.Timestamp),
		MissionID: s.MissionID,
		Altitude:  s.Altitude,
		Velocity:  s.Velocity,
		Fuel:      s.Fuel,
		Status:    s.Status,
	})
}

func (s *Sample) UnmarshalJSON(b []byte) error {
	var raw sampleJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return fmt.Errorf("sample timestamp: %w", err)
	}
	*s = Sample{
		Timestamp: ts,
		MissionID: raw.MissionID,
		Altitude:  raw.Altitude,
		Velocity:  raw.Velocity,
		Fuel:      raw.Fuel,
		Status:    raw.Status,
	}
	return nil
}

// Frame is the payload pushed to stream viewers. It omits the mission id.
type Frame struct {
	Timestamp string  `json:"timestamp"`
	Altitude  float64 `json:"altitude"`
	Velocity  float64 `json:"velocity"`
	Fuel      float64 `json:"fuel"`
	Status    Status  `json:"status"`
}

func (s Sample) Frame() Frame {
	return Frame{
		Timestamp: FormatTimestamp(s.Timestamp),
		Altitude:  s.Altitude,
		Velocity:  s.Velocity,
		Fuel:      s.Fuel,
		Status:    s.Status,
	}
}
