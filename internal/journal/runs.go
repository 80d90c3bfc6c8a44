package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dl-alexandre/docdr/internal/utils"
)

func (d *DB) StartRun(ctx context.Context, run Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, style, organization_id, filter, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Kind, run.Style, run.OrganizationID, run.Filter, run.StartedAt.UnixNano(), run.Status)
	return err
}

// FinishRun closes a run. style is updated too since a run learns its style
// only after deciding it.
func (d *DB) FinishRun(ctx context.Context, id, style, status, summary, runErr string, finishedAt time.Time) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE runs SET style = ?, status = ?, summary = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, style, status, summary, runErr, finishedAt.UnixNano(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, utils.ErrNotFound)
	}
	return nil
}

const runColumns = `id, kind, style, organization_id, filter, started_at, finished_at, status, summary, error`

// ListRuns returns the latest runs first; limit <= 0 returns all
func (d *DB) ListRuns(ctx context.Context, limit int) (runs []Run, err error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (d *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (Run, error) {
	var (
		run                            Run
		style, filter, summary, runErr sql.NullString
		startedAt                      int64
		finishedAt                     sql.NullInt64
	)
	err := scanner.Scan(&run.ID, &run.Kind, &style, &run.OrganizationID, &filter, &startedAt, &finishedAt, &run.Status, &summary, &runErr)
	if err != nil {
		return Run{}, err
	}
	run.Style = style.String
	run.Filter = filter.String
	run.Summary = summary.String
	run.Error = runErr.String
	run.StartedAt = time.Unix(0, startedAt).UTC()
	if finishedAt.Valid {
		run.FinishedAt = time.Unix(0, finishedAt.Int64).UTC()
	}
	return run, nil
}
