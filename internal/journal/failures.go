package journal

import (
	"context"
)

// RecordFailures appends failures to a run in one transaction
func (d *DB) RecordFailures(ctx context.Context, runID string, failures []Failure) (err error) {
	if len(failures) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	var next int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM failures WHERE run_id = ?`, runID)
	if err := row.Scan(&next); err != nil {
		_ = tx.Rollback()
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO failures (run_id, seq, action_kind, username, folder_id, document_id, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, f := range failures {
		next++
		if _, err := stmt.ExecContext(ctx, runID, next, f.ActionKind, f.Username, f.FolderID, f.DocumentID, f.Error); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) ListFailures(ctx context.Context, runID string) (failures []Failure, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT run_id, action_kind, username, folder_id, document_id, error
		FROM failures WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.RunID, &f.ActionKind, &f.Username, &f.FolderID, &f.DocumentID, &f.Error); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return failures, nil
}
