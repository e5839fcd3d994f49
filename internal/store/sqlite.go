package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/tracesim/internal/constants"
	"github.com/nvandessel/tracesim/internal/experiment"
	"github.com/nvandessel/tracesim/internal/models"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store using SQLite for persistence.
// It is safe for concurrent use; workers record runs through it directly.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLiteStore rooted at projectRoot.
// It creates the database at .tracesim/tracesim.db.
func NewSQLiteStore(projectRoot string) (*SQLiteStore, error) {
	dir := LocalPath(projectRoot)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", constants.DirName, err)
	}

	return OpenSQLiteStore(filepath.Join(dir, constants.DatabaseFile))
}

// OpenSQLiteStore opens (or creates) the database at dbPath.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	ctx := context.Background()

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// StartExperiment implements experiment.ExperimentSink.
func (s *SQLiteStore) StartExperiment(ctx context.Context, info experiment.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := json.Marshal(info.ScenarioIDs)
	if err != nil {
		return fmt.Errorf("marshal scenario ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO experiments (id, name, country, area, seed, repeats, parallelism, horizon, scenario_ids, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Name, info.Region.Country, info.Region.Area, info.Seed, info.Repeats,
		info.Parallelism, info.Horizon, string(ids), experiment.StateRunning.String(),
		time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert experiment %s: %w", info.ID, err)
	}
	return nil
}

// FinishExperiment implements experiment.ExperimentSink.
func (s *SQLiteStore) FinishExperiment(ctx context.Context, experimentID string, state experiment.State, summary experiment.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE experiments SET state = ?, summary = ?, finished_at = ? WHERE id = ?`,
		state.String(), string(data), time.Now().UTC().Format(timeLayout), experimentID)
	if err != nil {
		return fmt.Errorf("failed to update experiment %s: %w", experimentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("experiment %s: %w", experimentID, ErrNotFound)
	}
	return nil
}

// RecordRun implements experiment.ResultSink. Re-recording a key
// overwrites the previous row.
func (s *SQLiteStore) RecordRun(ctx context.Context, experimentID string, result models.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var handle, data, errMsg sql.NullString
	if result.Trajectory != nil {
		handle = sql.NullString{String: result.Trajectory.Handle, Valid: result.Trajectory.Handle != ""}
		data = sql.NullString{String: string(result.Trajectory.Data), Valid: len(result.Trajectory.Data) > 0}
	}
	if result.Failure != nil {
		errMsg = sql.NullString{String: result.Failure.Message, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		    (experiment_id, scenario_id, repeat, seed, status, params_hash, trajectory_handle, trajectory_data, error, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		experimentID, result.Key.ScenarioID, result.Key.Repeat, result.Seed, result.Status(),
		result.ParamsHash, handle, data, errMsg, result.Duration.Milliseconds(),
		time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", result.Key, err)
	}
	return nil
}

// ListRuns returns the runs of an experiment ordered by scenario and repeat.
func (s *SQLiteStore) ListRuns(ctx context.Context, experimentID string) ([]models.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario_id, repeat, seed, status, params_hash, trajectory_handle, trajectory_data, error, duration_ms
		FROM runs WHERE experiment_id = ? ORDER BY scenario_id, repeat`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunResult
	for rows.Next() {
		var (
			key                              models.RunKey
			seed, durationMS                 int64
			status                           string
			paramsHash, handle, data, errMsg sql.NullString
		)
		if err := rows.Scan(&key.ScenarioID, &key.Repeat, &seed, &status, &paramsHash, &handle, &data, &errMsg, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		res := models.RunResult{
			Key:        key,
			Seed:       seed,
			ParamsHash: paramsHash.String,
			Duration:   time.Duration(durationMS) * time.Millisecond,
		}
		switch status {
		case "succeeded":
			res.Trajectory = &models.Trajectory{Handle: handle.String}
			if data.Valid {
				res.Trajectory.Data = json.RawMessage(data.String)
			}
		default:
			res.Failure = &models.RunFailure{
				Key:       key,
				Seed:      seed,
				Message:   errMsg.String,
				Cancelled: status == "cancelled",
			}
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ListExperiments returns experiments, most recent first.
func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]ExperimentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, experimentSelect+` ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiments: %w", err)
	}
	defer rows.Close()

	var out []ExperimentRecord
	for rows.Next() {
		rec, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetExperiment returns one experiment or ErrNotFound.
func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*ExperimentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, experimentSelect+` WHERE id = ?`, id)
	rec, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	return rec, err
}

const experimentSelect = `
	SELECT id, name, country, area, seed, repeats, parallelism, horizon, scenario_ids, state, summary, started_at, finished_at
	FROM experiments`

// timeLayout is fixed-width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*ExperimentRecord, error) {
	var (
		rec                 ExperimentRecord
		idsJSON, startedAt  string
		summary, finishedAt sql.NullString
	)
	err := row.Scan(&rec.Info.ID, &rec.Info.Name, &rec.Info.Region.Country, &rec.Info.Region.Area,
		&rec.Info.Seed, &rec.Info.Repeats, &rec.Info.Parallelism, &rec.Info.Horizon,
		&idsJSON, &rec.State, &summary, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}

	if err := json.Unmarshal([]byte(idsJSON), &rec.Info.ScenarioIDs); err != nil {
		return nil, fmt.Errorf("experiment %s: parse scenario ids: %w", rec.Info.ID, err)
	}
	if summary.Valid {
		var sum experiment.Summary
		if err := json.Unmarshal([]byte(summary.String), &sum); err != nil {
			return nil, fmt.Errorf("experiment %s: parse summary: %w", rec.Info.ID, err)
		}
		rec.Summary = &sum
	}
	if t, err := time.Parse(timeLayout, startedAt); err == nil {
		rec.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(timeLayout, finishedAt.String); err == nil {
			rec.FinishedAt = &t
		}
	}
	return &rec, nil
}

// ImportCalibration upserts calibration iterations in one transaction.
func (s *SQLiteStore) ImportCalibration(ctx context.Context, records []CalibrationRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timeLayout)
	for _, r := range records {
		if err := r.Region.Validate(); err != nil {
			return 0, err
		}
		params, err := json.Marshal(r.Params)
		if err != nil {
			return 0, fmt.Errorf("marshal params for iteration %d: %w", r.Iteration, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO calibration_iterations (country, area, multi_objective, iteration, loss, params, imported_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.Region.Country, r.Region.Area, boolToInt(r.MultiObjective), r.Iteration, r.Loss, string(params), now); err != nil {
			return 0, fmt.Errorf("failed to import iteration %d: %w", r.Iteration, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit calibration import: %w", err)
	}
	return len(records), nil
}

// CalibratedParams returns the lowest-loss iteration below maxIterations.
func (s *SQLiteStore) CalibratedParams(ctx context.Context, region models.Region, multiObjective bool, maxIterations *int) (models.Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT iteration, params FROM calibration_iterations
		WHERE country = ? AND area = ? AND multi_objective = ?`
	args := []any{region.Country, region.Area, boolToInt(multiObjective)}
	if maxIterations != nil {
		query += ` AND iteration < ?`
		args = append(args, *maxIterations)
	}
	query += ` ORDER BY loss ASC, iteration ASC LIMIT 1`

	var (
		iteration int
		raw       string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&iteration, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Params{}, fmt.Errorf("%s: %w", region, ErrNoCalibration)
	}
	if err != nil {
		return models.Params{}, fmt.Errorf("failed to query calibration: %w", err)
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return models.Params{}, fmt.Errorf("calibration %s iteration %d: parse params: %w", region, iteration, err)
	}
	return models.ParamsFrom(values)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
