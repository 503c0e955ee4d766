package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/database"
)

const selectColumns = `id, trigger_type, trigger_params, target_ref, arguments, next_fire_time`

// SQLStore implements Store on the scheduler_jobs table.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a job store over db. The schema must already exist.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

type jobRow struct {
	ID            string             `db:"id"`
	TriggerType   string             `db:"trigger_type"`
	TriggerParams string             `db:"trigger_params"`
	TargetRef     string             `db:"target_ref"`
	Arguments     string             `db:"arguments"`
	NextFireTime  database.Timestamp `db:"next_fire_time"`
}

func (r jobRow) record() (*Record, error) {
	rec := &Record{
		ID:            r.ID,
		TriggerType:   r.TriggerType,
		TriggerParams: json.RawMessage(r.TriggerParams),
		TargetRef:     r.TargetRef,
		NextFireTime:  r.NextFireTime.Time,
	}
	if err := json.Unmarshal([]byte(r.Arguments), &rec.Arguments); err != nil {
		return nil, fmt.Errorf("decode arguments of job %s: %w", r.ID, err)
	}
	return rec, nil
}

// Upsert inserts or replaces rec in a single statement.
func (s *SQLStore) Upsert(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return errors.New("job id is required")
	}

	params := rec.TriggerParams
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	args := rec.Arguments
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}

	now := database.NewTimestamp(s.now())
	query := s.db.Rebind(`
		INSERT INTO scheduler_jobs (id, trigger_type, trigger_params, target_ref, arguments, next_fire_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			trigger_type = excluded.trigger_type,
			trigger_params = excluded.trigger_params,
			target_ref = excluded.target_ref,
			arguments = excluded.arguments,
			next_fire_time = excluded.next_fire_time,
			updated_at = excluded.updated_at
	`)

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.TriggerType,
		string(params),
		rec.TargetRef,
		string(argsJSON),
		database.NewTimestamp(rec.NextFireTime),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert job %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves a job by its ID.
func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	var row jobRow
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM scheduler_jobs WHERE id = ?`)

	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.record()
}

// DueBefore returns jobs whose next fire time is at or before t.
func (s *SQLStore) DueBefore(ctx context.Context, t time.Time) ([]*Record, error) {
	query := s.db.Rebind(`
		SELECT ` + selectColumns + `
		FROM scheduler_jobs
		WHERE next_fire_time <= ?
		ORDER BY next_fire_time, id
	`)
	return s.selectRecords(ctx, query, database.NewTimestamp(t))
}

// List returns every stored job.
func (s *SQLStore) List(ctx context.Context) ([]*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM scheduler_jobs ORDER BY next_fire_time, id`
	return s.selectRecords(ctx, query)
}

func (s *SQLStore) selectRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// UpdateNextFireTime moves an existing job to next.
func (s *SQLStore) UpdateNextFireTime(ctx context.Context, id string, next time.Time) (bool, error) {
	query := s.db.Rebind(`UPDATE scheduler_jobs SET next_fire_time = ?, updated_at = ? WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, query,
		database.NewTimestamp(next),
		database.NewTimestamp(s.now()),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return rowsChanged(result)
}

// Delete removes a job.
func (s *SQLStore) Delete(ctx context.Context, id string) (bool, error) {
	query := s.db.Rebind(`DELETE FROM scheduler_jobs WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return rowsChanged(result)
}

// NextFireTime returns the earliest scheduled fire time.
func (s *SQLStore) NextFireTime(ctx context.Context) (time.Time, bool, error) {
	var next sql.Null[database.Timestamp]
	if err := s.db.GetContext(ctx, &next, `SELECT MIN(next_fire_time) FROM scheduler_jobs`); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read next fire time: %w", err)
	}
	if !next.Valid {
		return time.Time{}, false, nil
	}
	return next.V.Time, true, nil
}

func rowsChanged(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
