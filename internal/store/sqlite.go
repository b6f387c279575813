package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/episim/internal/results"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRunStore implements RunStore on a SQLite database.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteRunStore opens (creating if needed) the database at dbPath.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// Save implements RunStore.
func (s *SQLiteRunStore) Save(ctx context.Context, run Run) (string, error) {
	if err := validate(run); err != nil {
		return "", err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}

	params, err := marshalNullable(run.Parameters, len(run.Parameters) > 0)
	if err != nil {
		return "", fmt.Errorf("failed to encode parameters: %w", err)
	}
	summary, err := marshalNullable(run.Summary, len(run.Summary) > 0)
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	res, err := marshalNullable(run.Results, run.Results != nil)
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	report := sql.NullString{String: string(run.Report), Valid: len(run.Report) > 0}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, label, kind, created_at, seed, n_runs, n_days, parameters, summary, results, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Label, string(run.Kind), run.CreatedAt.UTC().Format(timeLayout),
		run.Seed, run.NRuns, run.NDays, params, summary, res, report)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, tag := range dedupTags(run.Tags) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_tags (run_id, tag) VALUES (?, ?)`, run.ID, tag); err != nil {
			return "", fmt.Errorf("failed to insert tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// Get implements RunStore.
func (s *SQLiteRunStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, kind, created_at, seed, n_runs, n_days, parameters, summary, results, report
		FROM runs WHERE id = ?`, fullID)

	var (
		run                              Run
		kind, created                    string
		params, summary, res, reportJSON sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Label, &kind, &created, &run.Seed, &run.NRuns, &run.NDays,
		&params, &summary, &res, &reportJSON); err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", fullID, err)
	}
	run.Kind = Kind(kind)
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if err := unmarshalNullable(params, &run.Parameters); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := unmarshalNullable(summary, &run.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	if res.Valid {
		r, err := results.ReadJSON(strings.NewReader(res.String))
		if err != nil {
			return nil, err
		}
		run.Results = r
	}
	if reportJSON.Valid {
		run.Report = json.RawMessage(reportJSON.String)
	}
	if run.Tags, err = s.loadTags(ctx, run.ID); err != nil {
		return nil, err
	}
	return &run, nil
}

// resolveID maps an id or unique id prefix to a full id.
func (s *SQLiteRunStore) resolveID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(id) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to look up run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var got string
		if err := rows.Scan(&got); err != nil {
			return "", fmt.Errorf("failed to scan run id: %w", err)
		}
		if got == id {
			return got, nil
		}
		ids = append(ids, got)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %s and others", ErrAmbiguousID, id, strings.Join(ids, ", "))
	}
}

func (s *SQLiteRunStore) loadTags(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM run_tags WHERE run_id = ? ORDER BY tag`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// List implements RunStore.
func (s *SQLiteRunStore) List(ctx context.Context, f ListFilter) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT r.id, r.label, r.kind, r.created_at, r.seed, r.n_runs, r.n_days, r.summary FROM runs r`
	var (
		where []string
		args  []any
	)
	if f.Tag != "" {
		query += ` JOIN run_tags t ON t.run_id = r.id`
		where = append(where, `t.tag = ?`)
		args = append(args, f.Tag)
	}
	if f.Kind != "" {
		where = append(where, `r.kind = ?`)
		args = append(args, string(f.Kind))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY r.created_at DESC, r.id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run           Run
			kind, created string
			summary       sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Label, &kind, &created, &run.Seed, &run.NRuns, &run.NDays, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Kind = Kind(kind)
		if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if err := unmarshalNullable(summary, &run.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range runs {
		if runs[i].Tags, err = s.loadTags(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Delete implements RunStore. Tags are removed by the foreign key cascade.
func (s *SQLiteRunStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, fullID); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", fullID, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func marshalNullable(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable(ns sql.NullString, v any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), v)
}

func dedupTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
