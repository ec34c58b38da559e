// Package store persists missions, their status history and the telemetry log.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KaraAliOsman/Trabajo-3/internal/telemetry"
)

var ErrNotFound = errors.New("not found")

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Record is a persisted telemetry sample.
type Record struct {
	ID int64
	telemetry.Sample
}

func (r Record) MarshalJSON() ([]byte, error) {
	return r.Sample.MarshalJSON()
}

// TelemetryStore is the append-only telemetry log.
type TelemetryStore interface {
	telemetry.Appender
	// At returns the first sample of missionID stamped exactly ts.
	At(ctx context.Context, missionID int64, ts time.Time) (Record, error)
	// Range returns samples of missionID in append order. Zero bounds are
	// open; limit <= 0 means no limit.
	Range(ctx context.Context, missionID int64, from, to time.Time, limit int) ([]Record, error)
}

type Mission struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	FlightPlan string `json:"flight_plan"`
}

type MissionStore interface {
	ListMissions(ctx context.Context) ([]Mission, error)
	GetMission(ctx context.Context, id int64) (Mission, error)
	CreateMission(ctx context.Context, m Mission) (Mission, error)
	UpdateMissionStatus(ctx context.Context, id int64, status string) error
}

// StatusEvent is one entry of a mission's status history.
type StatusEvent struct {
	Status  string    `json:"status"`
	Time    time.Time `json:"time"`
	Message string    `json:"message,omitempty"`
	Source  string    `json:"source,omitempty"` // which component reported this status
}

type HistoryStore interface {
	AddEvent(ctx context.Context, missionID int64, ev StatusEvent) error
	History(ctx context.Context, missionID int64) ([]StatusEvent, error)
}

type Store interface {
	TelemetryStore
	MissionStore
	HistoryStore
	Close() error
}

// Seed mission created in an empty database.
var defaultMission = Mission{
	Name:       "Odyssey One",
	Status:     "Preparación",
	FlightPlan: "Lanzamiento desde plataforma A, órbita baja terrestre, fase de prueba de sistemas.",
}

// Open returns the store for driver. dsn is a file path for sqlite and a
// connection URL for postgres; it is ignored for memory.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, DriverPostgres, "":
		if driver == "" {
			driver = DriverSQLite
		}
		return OpenSQL(ctx, driver, dsn)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
