// Package migrate applies the security schema to PostgreSQL.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embedded embed.FS

// Schema returns the migrations compiled into the binary.
func Schema() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

const defaultHistoryTable = "schema_migrations"

// ErrNothingApplied is returned by Down when the history is empty.
var ErrNothingApplied = errors.New("no migrations applied")

// Status is one migration as seen by Manager.Status.
type Status struct {
	Name      string
	AppliedAt *time.Time
}

// migration pairs NAME.up.sql with an optional NAME.down.sql.
type migration struct {
	name string
	up   string
	down string
}

// Manager applies NAME.up.sql files from a file system in name order and
// records each applied NAME in a history table. A migration and its history
// row commit in one transaction.
type Manager struct {
	db      *sql.DB
	source  fs.FS
	history string
}

// Option configures Manager.
type Option func(*Manager)

// WithHistoryTable overrides the default schema_migrations table.
func WithHistoryTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.history = name
		}
	}
}

func NewManager(db *sql.DB, source fs.FS, opts ...Option) *Manager {
	m := &Manager{db: db, source: source, history: defaultHistoryTable}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	migrations, err := m.load()
	if err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	for _, mig := range migrations {
		if _, ok := applied[mig.name]; ok {
			continue
		}
		record := fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.history)
		if err := m.run(ctx, mig.up, record, mig.name, time.Now().UTC()); err != nil {
			return fmt.Errorf("apply migration %s: %w", mig.name, err)
		}
	}
	return nil
}

// Down reverts the most recently applied migration.
func (m *Manager) Down(ctx context.Context) error {
	migrations, err := m.load()
	if err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	var last *migration
	for i := range migrations {
		if _, ok := applied[migrations[i].name]; ok {
			last = &migrations[i]
		}
	}
	if last == nil {
		return ErrNothingApplied
	}
	if last.down == "" {
		return fmt.Errorf("missing down migration for %s", last.name)
	}
	forget := fmt.Sprintf(`delete from %s where name = $1`, m.history)
	if err := m.run(ctx, last.down, forget, last.name); err != nil {
		return fmt.Errorf("revert migration %s: %w", last.name, err)
	}
	return nil
}

// Status lists every known migration in apply order with its apply time, nil
// while pending.
func (m *Manager) Status(ctx context.Context) ([]Status, error) {
	migrations, err := m.load()
	if err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(migrations))
	for _, mig := range migrations {
		st := Status{Name: mig.name}
		if at, ok := applied[mig.name]; ok {
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *Manager) applied(ctx context.Context) (map[string]time.Time, error) {
	ddl := fmt.Sprintf(`create table if not exists %s (
		name text primary key,
		applied_at timestamptz not null default now()
	)`, m.history)
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("ensure %s: %w", m.history, err)
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name, applied_at from %s`, m.history))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			name string
			at   time.Time
		)
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		out[name] = at
	}
	return out, rows.Err()
}

// run executes the statements of file and then the bookkeeping statement in
// one transaction.
func (m *Manager) run(ctx context.Context, file, bookkeeping string, args ...any) error {
	body, err := fs.ReadFile(m.source, file)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(body)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) load() ([]migration, error) {
	if m.source == nil {
		return nil, errors.New("migrate: no migration source")
	}
	entries, err := fs.ReadDir(m.source, ".")
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		file := e.Name()
		var name string
		var up bool
		switch {
		case strings.HasSuffix(file, ".up.sql"):
			name, up = strings.TrimSuffix(file, ".up.sql"), true
		case strings.HasSuffix(file, ".down.sql"):
			name = strings.TrimSuffix(file, ".down.sql")
		default:
			continue
		}
		mig := byName[name]
		if mig == nil {
			mig = &migration{name: name}
			byName[name] = mig
		}
		if up {
			mig.up = file
		} else {
			mig.down = file
		}
	}
	out := make([]migration, 0, len(byName))
	for _, mig := range byName {
		if mig.up == "" {
			return nil, fmt.Errorf("down migration %s has no up file", mig.name)
		}
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// splitStatements cuts sql at semicolons outside single-quoted literals and
// drops "--" line comments and empty statements.
func splitStatements(sql string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			inString = !inString
			current.WriteByte(c)
		case !inString && c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			current.WriteByte('\n')
		case !inString && c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return stmts
}
