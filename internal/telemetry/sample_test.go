package telemetry

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFrameJSON(t *testing.T) {
	s := Sample{
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 123456000, time.UTC),
		MissionID: 1,
		Altitude:  100100.5,
		Velocity:  4210,
		Fuel:      12.25,
		Status:    StatusInOrbit,
	}
	data, err := json.Marshal(s.Frame())
	if err != nil {
		t.Fatal(err)
	}
	want := `{"timestamp":"2025-03-01T12:00:00.123456Z","altitude":100100.5,"velocity":4210,"fuel":12.25,"status":"En órbita"}`
	if string(data) != want {
		t.Fatalf("frame = %s\nwant    %s", data, want)
	}
}

func TestSampleJSONCarriesMission(t *testing.T) {
	s := Sample{Timestamp: epoch, MissionID: 4, Altitude: 80, Velocity: 30, Fuel: 99.9}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"mission_id":4`) || !strings.Contains(string(data), `"status":"Cuenta regresiva"`) {
		t.Fatalf("unexpected sample JSON %s", data)
	}
	var back Sample
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != s {
		t.Fatalf("decoded %+v, want %+v", back, s)
	}
}

func TestSampleJSONRejectsUnknownStatus(t *testing.T) {
	var s Sample
	err := json.Unmarshal([]byte(`{"timestamp":"2025-03-01T12:00:00.000000Z","status":"Aterrizado"}`), &s)
	if err == nil {
		t.Fatal("expected error")
	}
}
