package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/run"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.StrandError{
	Code:    errors.ErrAlreadyExists,
	Status:  409,
	Message: "unique constraint violation",
}

const runColumns = `id, workspace_raw, workspace_norm, kind, policy,
	input_text, output_text, valid, outcome,
	input_chars, output_chars, created_at, deleted_at`

// ListFilters narrows ListByWorkspace results. Zero values match everything.
type ListFilters struct {
	WorkspaceNorm string
	Kind          run.Kind
}

// Insert stores a new run.
func Insert(ctx context.Context, q Querier, r *run.Run) error {
	query := `INSERT INTO runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query, insertArgs(r)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// Upsert inserts a run or overwrites every column of the row with the same id.
func Upsert(ctx context.Context, q Querier, r *run.Run) error {
	query := `INSERT INTO runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace_raw = excluded.workspace_raw,
			workspace_norm = excluded.workspace_norm,
			kind = excluded.kind,
			policy = excluded.policy,
			input_text = excluded.input_text,
			output_text = excluded.output_text,
			valid = excluded.valid,
			outcome = excluded.outcome,
			input_chars = excluded.input_chars,
			output_chars = excluded.output_chars,
			created_at = excluded.created_at,
			deleted_at = excluded.deleted_at`

	if _, err := q.ExecContext(ctx, query, insertArgs(r)...); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func insertArgs(r *run.Run) []any {
	var valid sql.NullBool
	if r.Valid != nil {
		valid = sql.NullBool{Bool: *r.Valid, Valid: true}
	}
	var deletedAt sql.NullInt64
	if r.DeletedAt != nil {
		deletedAt = sql.NullInt64{Int64: *r.DeletedAt, Valid: true}
	}
	return []any{
		r.ID, r.WorkspaceRaw, r.WorkspaceNorm, string(r.Kind), toNullString(r.Policy),
		r.InputText, r.OutputText, valid, toNullString(r.Outcome),
		r.InputChars, r.OutputChars, r.CreatedAt, deletedAt,
	}
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite reports both UNIQUE and PRIMARY KEY violations this way
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves a run by its ULID.
// If includeDeleted is false, soft-deleted runs are excluded.
func GetByID(ctx context.Context, q Querier, id string, includeDeleted bool) (*run.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	r, err := scanRun(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// Exists reports whether a run with the given id exists, deleted or not.
func Exists(ctx context.Context, q Querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// ListByWorkspace returns run summaries newest first, plus the total matching count.
func ListByWorkspace(ctx context.Context, q Querier, f ListFilters, limit, offset int, includeDeleted bool) ([]run.Summary, int, error) {
	where := []string{"1 = 1"}
	var args []any
	if f.WorkspaceNorm != "" {
		where = append(where, "workspace_norm = ?")
		args = append(args, f.WorkspaceNorm)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if !includeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	// id breaks ties between runs recorded in the same second
	query := `SELECT ` + runColumns + ` FROM runs WHERE ` + clause +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := q.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	summaries := []run.Summary{}
	for rows.Next() {
		r, err := ScanRunFromRows(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		summaries = append(summaries, r.ToSummary())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return summaries, total, nil
}

// SoftDelete marks a run as deleted by setting deleted_at.
func SoftDelete(ctx context.Context, q Querier, id string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// PurgeDeleted permanently removes soft-deleted runs.
// workspaceNorm limits the purge to one workspace; olderThanDays keeps recent deletions.
func PurgeDeleted(ctx context.Context, q Querier, workspaceNorm *string, olderThanDays *int) (int64, error) {
	query := `DELETE FROM runs WHERE deleted_at IS NOT NULL`
	var args []any
	if workspaceNorm != nil {
		query += " AND workspace_norm = ?"
		args = append(args, *workspaceNorm)
	}
	if olderThanDays != nil {
		cutoff := time.Now().Add(-time.Duration(*olderThanDays) * 24 * time.Hour).Unix()
		query += " AND deleted_at < ?"
		args = append(args, cutoff)
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// StreamForExport returns rows for export in creation order.
// Callers must close the rows and scan them with ScanRunFromRows.
func StreamForExport(ctx context.Context, q Querier, workspaceNorm *string, includeDeleted bool) (*sql.Rows, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1 = 1`
	var args []any
	if workspaceNorm != nil {
		query += " AND workspace_norm = ?"
		args = append(args, *workspaceNorm)
	}
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a Run struct.
func scanRun(row scanner) (*run.Run, error) {
	var (
		r         run.Run
		kind      string
		policy    sql.NullString
		valid     sql.NullBool
		outcome   sql.NullString
		deletedAt sql.NullInt64
	)

	err := row.Scan(
		&r.ID, &r.WorkspaceRaw, &r.WorkspaceNorm, &kind, &policy,
		&r.InputText, &r.OutputText, &valid, &outcome,
		&r.InputChars, &r.OutputChars, &r.CreatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Kind = run.Kind(kind)
	r.Policy = fromNullString(policy)
	r.Outcome = fromNullString(outcome)
	if valid.Valid {
		r.Valid = &valid.Bool
	}
	if deletedAt.Valid {
		r.DeletedAt = &deletedAt.Int64
	}
	return &r, nil
}

// ScanRunFromRows scans the current row of a StreamForExport or list query.
func ScanRunFromRows(rows *sql.Rows) (*run.Run, error) {
	return scanRun(rows)
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
