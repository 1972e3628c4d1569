// Package sqlite implements the storage adapter over a SQLite database.
//
// Records are stored as JSON payloads in a single generic table; filters and
// sorts go through SQLite's JSON functions so the adapter contract stays
// identical to the in-memory backend. The engine's own schema and constraint
// machinery is never exposed through the contract.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/adapter/sqlite/migrations"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
	"github.com/kmarchand/studioforge/internal/platform/storage/sqlitemigrate"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Store implements the adapter contract over SQLite.
type Store struct {
	sqlDB  *sql.DB
	tracer trace.Tracer
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the record store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		sqlDB:  sqlDB,
		tracer: otel.Tracer("studioforge/dbal/sqlite"),
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) span(ctx context.Context, op string, kind entity.Kind) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "dbal.sqlite."+op,
		trace.WithAttributes(attribute.String("dbal.kind", string(kind))))
}

// Create stores a new record.
func (s *Store) Create(ctx context.Context, rec entity.Record) error {
	ctx, span := s.span(ctx, "create", rec.RecordKind())
	defer span.End()
	return createIn(ctx, s.sqlDB, rec)
}

func createIn(ctx context.Context, q queryer, rec entity.Record) error {
	id := rec.RecordID()
	if strings.TrimSpace(id) == "" {
		return apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("%s id is required", rec.RecordKind()),
			map[string]string{"kind": string(rec.RecordKind())})
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "encode record", err)
	}

	now := toMillis(time.Now())
	_, err = q.ExecContext(ctx, `
INSERT INTO dal_records (kind, id, data, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`, string(rec.RecordKind()), id, string(data), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.WithMetadata(apperrors.CodeConflict,
				fmt.Sprintf("%s already exists: %s", rec.RecordKind(), id),
				map[string]string{"kind": string(rec.RecordKind()), "id": id})
		}
		return apperrors.Wrap(apperrors.CodeInternal, "insert record", err)
	}
	return nil
}

// Read returns the record with the given primary key.
func (s *Store) Read(ctx context.Context, kind entity.Kind, id string) (entity.Record, error) {
	ctx, span := s.span(ctx, "read", kind)
	defer span.End()
	return readIn(ctx, s.sqlDB, kind, id)
}

func readIn(ctx context.Context, q queryer, kind entity.Kind, id string) (entity.Record, error) {
	var data string
	row := q.QueryRowContext(ctx, `
SELECT data FROM dal_records WHERE kind = ? AND id = ?
`, string(kind), id)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, adapter.ErrNotFound
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "query record", err)
	}
	rec, err := entity.Decode(kind, []byte(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "decode record", err)
	}
	return rec, nil
}

// FindFirst returns the earliest-inserted record matching all predicates.
func (s *Store) FindFirst(ctx context.Context, kind entity.Kind, where entity.Fields) (entity.Record, error) {
	ctx, span := s.span(ctx, "find_first", kind)
	defer span.End()
	return findFirstIn(ctx, s.sqlDB, kind, where)
}

func findFirstIn(ctx context.Context, q queryer, kind entity.Kind, where entity.Fields) (entity.Record, error) {
	clause, args, err := whereClause(kind, where)
	if err != nil {
		return nil, err
	}

	var data string
	row := q.QueryRowContext(ctx,
		"SELECT data FROM dal_records "+clause+" ORDER BY seq ASC LIMIT 1", args...)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, adapter.ErrNotFound
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "query record", err)
	}
	rec, err := entity.Decode(kind, []byte(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "decode record", err)
	}
	return rec, nil
}

// Update applies a partial patch to an existing record.
func (s *Store) Update(ctx context.Context, kind entity.Kind, id string, patch entity.Fields) (entity.Record, error) {
	ctx, span := s.span(ctx, "update", kind)
	defer span.End()
	return updateIn(ctx, s.sqlDB, kind, id, patch)
}

func updateIn(ctx context.Context, q queryer, kind entity.Kind, id string, patch entity.Fields) (entity.Record, error) {
	existing, err := readIn(ctx, q, kind, id)
	if err != nil {
		return nil, err
	}

	merged, err := entity.Merge(existing, patch)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "merge record", err)
	}
	if merged.RecordID() != id {
		return nil, apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("%s primary key is immutable", kind),
			map[string]string{"kind": string(kind), "id": id})
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "encode record", err)
	}

	_, err = q.ExecContext(ctx, `
UPDATE dal_records SET data = ?, updated_at = ? WHERE kind = ? AND id = ?
`, string(data), toMillis(time.Now()), string(kind), id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "update record", err)
	}
	return merged, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, kind entity.Kind, id string) error {
	ctx, span := s.span(ctx, "delete", kind)
	defer span.End()
	return deleteIn(ctx, s.sqlDB, kind, id)
}

func deleteIn(ctx context.Context, q queryer, kind entity.Kind, id string) error {
	res, err := q.ExecContext(ctx, `
DELETE FROM dal_records WHERE kind = ? AND id = ?
`, string(kind), id)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "delete record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "delete record", err)
	}
	if affected == 0 {
		return adapter.ErrNotFound
	}
	return nil
}

// List returns a filtered, sorted, paged listing.
func (s *Store) List(ctx context.Context, kind entity.Kind, opts adapter.ListOptions) (adapter.ListResult, error) {
	ctx, span := s.span(ctx, "list", kind)
	defer span.End()
	return listIn(ctx, s.sqlDB, kind, opts)
}

func listIn(ctx context.Context, q queryer, kind entity.Kind, opts adapter.ListOptions) (adapter.ListResult, error) {
	clause, args, err := whereClause(kind, opts.Filter)
	if err != nil {
		return adapter.ListResult{}, err
	}

	var total int
	row := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM dal_records "+clause, args...)
	if err := row.Scan(&total); err != nil {
		return adapter.ListResult{}, apperrors.Wrap(apperrors.CodeInternal, "count records", err)
	}

	orderBy, err := orderClause(opts.Sort)
	if err != nil {
		return adapter.ListResult{}, err
	}

	page, limit := opts.Normalized()
	offset := (page - 1) * limit

	queryArgs := append(append([]any{}, args...), limit, offset)
	rows, err := q.QueryContext(ctx,
		"SELECT data FROM dal_records "+clause+orderBy+" LIMIT ? OFFSET ?", queryArgs...)
	if err != nil {
		return adapter.ListResult{}, apperrors.Wrap(apperrors.CodeInternal, "query records", err)
	}
	defer func() { _ = rows.Close() }()

	var records []entity.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return adapter.ListResult{}, apperrors.Wrap(apperrors.CodeInternal, "scan record", err)
		}
		rec, err := entity.Decode(kind, []byte(data))
		if err != nil {
			return adapter.ListResult{}, apperrors.Wrap(apperrors.CodeInternal, "decode record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return adapter.ListResult{}, apperrors.Wrap(apperrors.CodeInternal, "iterate records", err)
	}

	return adapter.ListResult{
		Records: records,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: page*limit < total,
	}, nil
}

// Transact runs fn inside an engine transaction so compound mutations commit
// or roll back as one unit.
func (s *Store) Transact(ctx context.Context, fn func(tx adapter.Adapter) error) error {
	ctx, span := s.tracer.Start(ctx, "dbal.sqlite.transact")
	defer span.End()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "begin transaction", err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "commit transaction", err)
	}
	return nil
}

// txStore exposes the adapter surface against an open transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Create(ctx context.Context, rec entity.Record) error {
	return createIn(ctx, t.tx, rec)
}

func (t *txStore) Read(ctx context.Context, kind entity.Kind, id string) (entity.Record, error) {
	return readIn(ctx, t.tx, kind, id)
}

func (t *txStore) FindFirst(ctx context.Context, kind entity.Kind, where entity.Fields) (entity.Record, error) {
	return findFirstIn(ctx, t.tx, kind, where)
}

func (t *txStore) Update(ctx context.Context, kind entity.Kind, id string, patch entity.Fields) (entity.Record, error) {
	return updateIn(ctx, t.tx, kind, id, patch)
}

func (t *txStore) Delete(ctx context.Context, kind entity.Kind, id string) error {
	return deleteIn(ctx, t.tx, kind, id)
}

func (t *txStore) List(ctx context.Context, kind entity.Kind, opts adapter.ListOptions) (adapter.ListResult, error) {
	return listIn(ctx, t.tx, kind, opts)
}

func (t *txStore) Transact(ctx context.Context, fn func(tx adapter.Adapter) error) error {
	// Nested transactions reuse the open one.
	return fn(t)
}

func (t *txStore) Close() error {
	return nil
}

// whereClause builds an equality predicate over JSON fields. Field names are
// restricted to identifier characters before being spliced into the path.
func whereClause(kind entity.Kind, where entity.Fields) (string, []any, error) {
	clauses := []string{"kind = ?"}
	args := []any{string(kind)}

	for _, field := range fieldNames(where) {
		if !fieldNamePattern.MatchString(field) {
			return "", nil, apperrors.WithMetadata(apperrors.CodeValidation,
				fmt.Sprintf("invalid filter field %q", field),
				map[string]string{"field": field})
		}
		clauses = append(clauses, fmt.Sprintf("json_extract(data, '$.%s') = ?", field))
		args = append(args, bindValue(where[field]))
	}

	return "WHERE " + strings.Join(clauses, " AND "), args, nil
}

func orderClause(by []adapter.SortField) (string, error) {
	if len(by) == 0 {
		return " ORDER BY seq ASC", nil
	}
	parts := make([]string, 0, len(by)+1)
	for _, field := range by {
		if !fieldNamePattern.MatchString(field.Field) {
			return "", apperrors.WithMetadata(apperrors.CodeValidation,
				fmt.Sprintf("invalid sort field %q", field.Field),
				map[string]string{"field": field.Field})
		}
		direction := "ASC"
		if field.Desc {
			direction = "DESC"
		}
		parts = append(parts, fmt.Sprintf("json_extract(data, '$.%s') %s", field.Field, direction))
	}
	parts = append(parts, "seq ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// bindValue converts a filter value to a SQLite-comparable form. JSON booleans
// extract as integers, so bools bind as 0/1.
func bindValue(value any) any {
	switch v := entity.Normalize(value).(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return v
	}
}

func fieldNames(where entity.Fields) []string {
	names := make([]string, 0, len(where))
	for name := range where {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isUniqueViolation(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed") || strings.Contains(value, "constraint violation")
}

var _ adapter.Adapter = (*Store)(nil)
var _ adapter.Adapter = (*txStore)(nil)
