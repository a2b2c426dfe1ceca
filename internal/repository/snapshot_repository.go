// Package repository provides data access implementations
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Record is the persisted outcome of the latest refresh cycle
type Record struct {
	Snapshot  *entities.GridSnapshot // nil when the cycle failed as a whole
	Failure   string                 // set when the cycle failed as a whole
	UpdatedAt time.Time
}

// SnapshotRepository keeps only the latest refresh outcome
type SnapshotRepository interface {
	SaveSnapshot(snapshot *entities.GridSnapshot) error
	SaveFailure(failure error, at time.Time) error
	LoadLatest() (*Record, error)
	Close() error
}

// SQLiteSnapshotRepository implements SnapshotRepository using SQLite
type SQLiteSnapshotRepository struct {
	db     *sql.DB
	DBPath string
	logger *zap.Logger
}

// NewSQLiteSnapshotRepository creates and initializes a new SQLite repository
func NewSQLiteSnapshotRepository(dbPath string, logger *zap.Logger) (*SQLiteSnapshotRepository, error) {
	if dbPath == "" {
		dbPath = filepath.Join("data", "nuclear.db")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	logger = logger.Named("repository")
	logger.Info("Opening database", zap.String("path", dbPath))
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps the replace transaction serialized
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS grid_snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		cycle_id TEXT,
		total_output REAL,
		total_reactors INTEGER,
		active_reactors INTEGER,
		built_at DATETIME,
		failure TEXT,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS plant_snapshot (
		plant TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		power_plant TEXT,
		timestamp DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS reactor_reading (
		plant TEXT NOT NULL REFERENCES plant_snapshot(plant),
		position INTEGER NOT NULL,
		reactor TEXT NOT NULL,
		output REAL NOT NULL,
		percent REAL,
		value_date TEXT,
		unit TEXT NOT NULL,
		PRIMARY KEY (plant, reactor)
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteSnapshotRepository{
		db:     db,
		DBPath: dbPath,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (r *SQLiteSnapshotRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveSnapshot replaces the stored snapshot in one transaction
func (r *SQLiteSnapshotRepository) SaveSnapshot(snapshot *entities.GridSnapshot) error {
	if snapshot == nil {
		return errors.New("snapshot is nil")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearTables(tx); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO grid_snapshot(id, cycle_id, total_output, total_reactors, active_reactors, built_at, failure, updated_at)
		VALUES(1, ?, ?, ?, ?, ?, NULL, ?)`,
		snapshot.CycleID,
		snapshot.TotalOutput,
		snapshot.TotalReactors,
		snapshot.ActiveReactors,
		snapshot.BuiltAt.UTC(),
		snapshot.BuiltAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert grid snapshot: %w", err)
	}

	plantStmt, err := tx.Prepare(`INSERT INTO plant_snapshot(plant, position, power_plant, timestamp) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer plantStmt.Close()

	readingStmt, err := tx.Prepare(`
		INSERT INTO reactor_reading(plant, position, reactor, output, percent, value_date, unit)
		VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer readingStmt.Close()

	for i, p := range snapshot.OrderedPlants() {
		if _, err := plantStmt.Exec(p.Plant, i, p.PowerPlant, p.Timestamp.UTC()); err != nil {
			return fmt.Errorf("failed to insert plant %s: %w", p.Plant, err)
		}
		for j, rd := range p.Readings {
			var percent sql.NullFloat64
			if rd.Percent != nil {
				percent = sql.NullFloat64{Float64: *rd.Percent, Valid: true}
			}
			valueDate := sql.NullString{String: rd.ValueDate, Valid: rd.ValueDate != ""}
			if _, err := readingStmt.Exec(p.Plant, j, rd.Reactor, rd.Output, percent, valueDate, rd.Unit); err != nil {
				return fmt.Errorf("failed to insert reading for %s at %s: %w", rd.Reactor, p.Plant, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("Saved grid snapshot",
		zap.String("cycle_id", snapshot.CycleID), zap.Int("plants", len(snapshot.Plants)))
	return nil
}

// SaveFailure replaces the stored snapshot with a failed-cycle marker
func (r *SQLiteSnapshotRepository) SaveFailure(failure error, at time.Time) error {
	msg := "refresh failed"
	if failure != nil {
		msg = failure.Error()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearTables(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO grid_snapshot(id, failure, updated_at) VALUES(1, ?, ?)`, msg, at.UTC()); err != nil {
		return fmt.Errorf("failed to insert failure marker: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadLatest returns the latest stored outcome, or nil when nothing was stored yet
func (r *SQLiteSnapshotRepository) LoadLatest() (*Record, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		cycleID        sql.NullString
		totalOutput    sql.NullFloat64
		totalReactors  sql.NullInt64
		activeReactors sql.NullInt64
		builtAt        sql.NullTime
		failure        sql.NullString
		updatedAt      time.Time
	)
	err = tx.QueryRow(`
		SELECT cycle_id, total_output, total_reactors, active_reactors, built_at, failure, updated_at
		FROM grid_snapshot WHERE id = 1`).
		Scan(&cycleID, &totalOutput, &totalReactors, &activeReactors, &builtAt, &failure, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query grid snapshot: %w", err)
	}

	rec := &Record{UpdatedAt: updatedAt}
	if failure.Valid {
		rec.Failure = failure.String
		return rec, nil
	}

	plants, err := loadPlants(tx)
	if err != nil {
		return nil, err
	}

	snap := entities.NewGridSnapshot(cycleID.String, plants, builtAt.Time)
	rec.Snapshot = snap
	return rec, nil
}

func loadPlants(tx *sql.Tx) ([]entities.PlantSnapshot, error) {
	rows, err := tx.Query(`SELECT plant, power_plant, timestamp FROM plant_snapshot ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query plant snapshots: %w", err)
	}
	var plants []entities.PlantSnapshot
	for rows.Next() {
		var (
			p          entities.PlantSnapshot
			powerPlant sql.NullString
		)
		if err := rows.Scan(&p.Plant, &powerPlant, &p.Timestamp); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p.PowerPlant = powerPlant.String
		plants = append(plants, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	rows.Close()

	for i := range plants {
		readings, err := loadReadings(tx, plants[i].Plant)
		if err != nil {
			return nil, err
		}
		plants[i].Readings = readings
	}
	return plants, nil
}

func loadReadings(tx *sql.Tx, plant string) ([]entities.ReactorReading, error) {
	rows, err := tx.Query(`
		SELECT reactor, output, percent, value_date, unit
		FROM reactor_reading WHERE plant = ? ORDER BY position`, plant)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings for %s: %w", plant, err)
	}
	defer rows.Close()

	var readings []entities.ReactorReading
	for rows.Next() {
		var (
			rd        entities.ReactorReading
			percent   sql.NullFloat64
			valueDate sql.NullString
		)
		if err := rows.Scan(&rd.Reactor, &rd.Output, &percent, &valueDate, &rd.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if percent.Valid {
			v := percent.Float64
			rd.Percent = &v
		}
		rd.ValueDate = valueDate.String
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return readings, nil
}

func clearTables(tx *sql.Tx) error {
	for _, table := range []string{"reactor_reading", "plant_snapshot", "grid_snapshot"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
