package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/KaraAliOsman/Trabajo-3/internal/telemetry"
)

const (
	defaultSQLitePath  = "starlaunch.db"
	defaultPostgresDSN = "postgres://localhost/starlaunch?sslmode=disable"
)

var sqlOpen = sql.Open

type dialect struct {
	driver   string
	schema   []string
	numbered bool // $1, $2, ... placeholders instead of ?
}

var sqliteDialect = dialect{
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS missions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			flight_plan TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS telemetry_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			mission_id INTEGER NOT NULL,
			altitude REAL NOT NULL,
			velocity REAL NOT NULL,
			fuel REAL NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS telemetry_logs_mission_ts ON telemetry_logs (mission_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS mission_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mission_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT ''
		)`,
	},
}

var postgresDialect = dialect{
	driver:   "pgx",
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS missions (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			flight_plan TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS telemetry_logs (
			id BIGSERIAL PRIMARY KEY,
			timestamp TEXT NOT NULL,
			mission_id BIGINT NOT NULL,
			altitude DOUBLE PRECISION NOT NULL,
			velocity DOUBLE PRECISION NOT NULL,
			fuel DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS telemetry_logs_mission_ts ON telemetry_logs (mission_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS mission_events (
			id BIGSERIAL PRIMARY KEY,
			mission_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT ''
		)`,
	},
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore is backed by one database/sql pool shared by every stream. Each
// append runs in its own transaction.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

var _ Store = (*SQLStore)(nil)

// OpenSQL opens driver (sqlite or postgres), applies the schema and seeds the
// default mission into an empty missions table.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var d dialect
	switch driver {
	case DriverSQLite:
		d = sqliteDialect
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		if !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
	case DriverPostgres:
		d = postgresDialect
		if dsn == "" {
			dsn = defaultPostgresDSN
		}
	default:
		return nil, fmt.Errorf("unknown sql driver %q", driver)
	}

	db, err := sqlOpen(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows one writer; a single connection serializes appends.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM missions`).Scan(&n); err != nil {
		return fmt.Errorf("count missions: %w", err)
	}
	if n == 0 {
		if _, err := s.CreateMission(ctx, defaultMission); err != nil {
			return fmt.Errorf("seed mission: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Append(ctx context.Context, sample telemetry.Sample) (telemetry.Ack, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return telemetry.Ack{}, &telemetry.StorageError{Op: "begin", Err: err}
	}
	var id int64
	err = tx.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO telemetry_logs (timestamp, mission_id, altitude, velocity, fuel, status)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		telemetry.FormatTimestamp(sample.Timestamp), sample.MissionID,
		sample.Altitude, sample.Velocity, sample.Fuel, sample.Status.String(),
	).Scan(&id)
	if err != nil {
		_ = tx.Rollback()
		return telemetry.Ack{}, &telemetry.StorageError{Op: "insert", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return telemetry.Ack{}, &telemetry.StorageError{Op: "commit", Err: err}
	}
	return telemetry.Ack{ID: id}, nil
}

const selectTelemetry = `SELECT id, timestamp, mission_id, altitude, velocity, fuel, status FROM telemetry_logs`

func (s *SQLStore) At(ctx context.Context, missionID int64, ts time.Time) (Record, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(selectTelemetry+` WHERE mission_id = ? AND timestamp = ? ORDER BY id LIMIT 1`),
		missionID, telemetry.FormatTimestamp(ts))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *SQLStore) Range(ctx context.Context, missionID int64, from, to time.Time, limit int) ([]Record, error) {
	query := selectTelemetry + ` WHERE mission_id = ?`
	args := []any{missionID}
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, telemetry.FormatTimestamp(from))
	}
	if !to.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, telemetry.FormatTimestamp(to))
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select telemetry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec    Record
		ts     string
		status string
	)
	if err := sc.Scan(&rec.ID, &ts, &rec.MissionID, &rec.Altitude, &rec.Velocity, &rec.Fuel, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan telemetry: %w", err)
	}
	t, err := telemetry.ParseTimestamp(ts)
	if err != nil {
		return Record{}, fmt.Errorf("telemetry %d timestamp: %w", rec.ID, err)
	}
	st, err := telemetry.ParseStatus(status)
	if err != nil {
		return Record{}, fmt.Errorf("telemetry %d: %w", rec.ID, err)
	}
	rec.Timestamp = t
	rec.Status = st
	return rec, nil
}

func (s *SQLStore) ListMissions(ctx context.Context) ([]Mission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, status, flight_plan FROM missions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select missions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	missions := make([]Mission, 0)
	for rows.Next() {
		var m Mission
		if err := rows.Scan(&m.ID, &m.Name, &m.Status, &m.FlightPlan); err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

func (s *SQLStore) GetMission(ctx context.Context, id int64) (Mission, error) {
	var m Mission
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT id, name, status, flight_plan FROM missions WHERE id = ?`), id).
		Scan(&m.ID, &m.Name, &m.Status, &m.FlightPlan)
	if errors.Is(err, sql.ErrNoRows) {
		return Mission{}, ErrNotFound
	}
	if err != nil {
		return Mission{}, fmt.Errorf("select mission %d: %w", id, err)
	}
	return m, nil
}

func (s *SQLStore) CreateMission(ctx context.Context, m Mission) (Mission, error) {
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO missions (name, status, flight_plan)
		VALUES (?, ?, ?)
		RETURNING id`), m.Name, m.Status, m.FlightPlan).Scan(&m.ID)
	if err != nil {
		return Mission{}, fmt.Errorf("insert mission: %w", err)
	}
	return m, nil
}

func (s *SQLStore) UpdateMissionStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE missions SET status = ? WHERE id = ?`), status, id)
	if err != nil {
		return fmt.Errorf("update mission %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) AddEvent(ctx context.Context, missionID int64, ev StatusEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO mission_events (mission_id, status, recorded_at, message, source)
		VALUES (?, ?, ?, ?, ?)`),
		missionID, ev.Status, ev.Time.UTC().Format(time.RFC3339Nano), ev.Message, ev.Source)
	if err != nil {
		return fmt.Errorf("insert mission event: %w", err)
	}
	return nil
}

func (s *SQLStore) History(ctx context.Context, missionID int64) ([]StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT status, recorded_at, message, source FROM mission_events
		WHERE mission_id = ? ORDER BY id`), missionID)
	if err != nil {
		return nil, fmt.Errorf("select mission events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	events := make([]StatusEvent, 0)
	for rows.Next() {
		var (
			ev StatusEvent
			at string
		)
		if err := rows.Scan(&ev.Status, &at, &ev.Message, &ev.Source); err != nil {
			return nil, fmt.Errorf("scan mission event: %w", err)
		}
		if ev.Time, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("mission event time: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
