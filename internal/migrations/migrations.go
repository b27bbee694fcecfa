package migrations

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"text/template"
	"time"

	"github.com/jmoiron/sqlx"
)

// migration ..
type migration struct {
	version string
	done    bool
	up      func(*sqlx.Tx) error
	down    func(*sqlx.Tx) error
}

// Migrator ..
type Migrator struct {
	db         *sqlx.DB
	versions   []string
	migrations map[string]*migration
}

// registry collects migrations from init functions.
var m = &Migrator{
	versions:   []string{},
	migrations: map[string]*migration{},
}

const migrationTemplate = `package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "{{.Version}}",
		up:      mig_{{.Version}}_{{.Title}}_up,
		down:    mig_{{.Version}}_{{.Title}}_down,
	})
}

func mig_{{.Version}}_{{.Title}}_up(tx *sqlx.Tx) error {
	return nil
}

func mig_{{.Version}}_{{.Title}}_down(tx *sqlx.Tx) error {
	return nil
}
`

// NewMigrator returns a migrator bound to db with the applied versions loaded.
func NewMigrator(db *sqlx.DB) (*Migrator, error) {
	mg := &Migrator{
		db:         db,
		versions:   append([]string{}, m.versions...),
		migrations: map[string]*migration{},
	}
	for v, reg := range m.migrations {
		cp := *reg
		mg.migrations[v] = &cp
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version varchar(255)
	);`)
	if err != nil {
		slog.Error("Unable to create `schema_migrations` table", slog.Any("error", err))
		return nil, err
	}

	rows, err := db.Query("SELECT version FROM schema_migrations;")
	if err != nil {
		slog.Error("Unable to fetch completed migrations", slog.Any("error", err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			slog.Error("Unable to read row", slog.Any("error", err))
			return nil, err
		}

		if mg.migrations[version] != nil {
			mg.migrations[version].done = true
		}
	}

	return mg, rows.Err()
}

// addMigration ..
func (m *Migrator) addMigration(mg *migration) {
	m.migrations[mg.version] = mg

	index := 0
	for index < len(m.versions) {
		if m.versions[index] > mg.version {
			break
		}
		index++
	}

	m.versions = append(m.versions, mg.version)
	copy(m.versions[index+1:], m.versions[index:])
	m.versions[index] = mg.version
}

// Pending lists versions that have not been applied.
func (m *Migrator) Pending() []string {
	var out []string
	for _, v := range m.versions {
		if !m.migrations[v].done {
			out = append(out, v)
		}
	}
	return out
}

// MigrationStatus ..
func (m *Migrator) MigrationStatus() error {
	for _, v := range m.versions {
		mg := m.migrations[v]

		if mg.done {
			slog.Info(fmt.Sprintf("Migration %s... completed", v))
		} else {
			slog.Info(fmt.Sprintf("Migration %s... pending", v))
		}
	}

	return nil
}

// CreateMigration ..
func (m *Migrator) CreateMigration(title string) error {
	if title == "" {
		return fmt.Errorf("migration name is required")
	}

	var out bytes.Buffer

	in := struct {
		Version string
		Title   string
	}{
		Version: time.Now().UTC().Format("20060102150405"),
		Title:   title,
	}

	t := template.Must(template.New("migration").Parse(migrationTemplate))
	if err := t.Execute(&out, in); err != nil {
		slog.Error("Unable to execute migration template", slog.Any("error", err))
		return err
	}

	f, err := os.Create(fmt.Sprintf("./internal/migrations/%s_%s.go", in.Version, title))
	if err != nil {
		slog.Error("Unable to create the migration file", slog.Any("error", err))
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(out.String()); err != nil {
		slog.Error("Unable to write to the migration file", slog.Any("error", err))
		return err
	}

	slog.Info("Generated new migration file...", slog.String("filename", f.Name()))
	return nil
}

// Up ..
func (m *Migrator) Up(step int) (err error) {
	tx, err := m.db.BeginTxx(context.TODO(), &sql.TxOptions{})
	if err != nil {
		slog.Error("Unable to start transaction to run migrations", slog.Any("error", err))
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic", slog.Any("details", r))
			_ = tx.Rollback()
			err = fmt.Errorf("migration panicked: %v", r)
		}
	}()

	var applied []*migration
	count := 0
	for _, v := range m.versions {
		if step > 0 && count == step {
			break
		}

		mg := m.migrations[v]
		l := slog.With(slog.String("version", mg.version))

		if mg.done {
			continue
		}

		l.Info("Running up migration...")
		if err := mg.up(tx); err != nil {
			_ = tx.Rollback()
			l.Error("Error occured while running migration", slog.Any("error", err))
			return fmt.Errorf("migration %s: %w", mg.version, err)
		}

		if _, err := tx.Exec(tx.Rebind("INSERT INTO schema_migrations VALUES (?);"), mg.version); err != nil {
			_ = tx.Rollback()
			l.Error("Failed to insert completed migrations to `schema_migrations`", slog.Any("error", err))
			return err
		}

		applied = append(applied, mg)
		count++
		l.Info("Finished up migration...")
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	for _, mg := range applied {
		mg.done = true
	}

	return nil
}

// Down ..
func (m *Migrator) Down(step int) (err error) {
	tx, err := m.db.BeginTxx(context.TODO(), &sql.TxOptions{})
	if err != nil {
		slog.Error("Unable to start transaction to run migrations", slog.Any("error", err))
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic", slog.Any("details", r))
			_ = tx.Rollback()
			err = fmt.Errorf("migration panicked: %v", r)
		}
	}()

	var reverted []*migration
	count := 0
	for _, v := range reverse(m.versions) {
		if step > 0 && count == step {
			break
		}

		mg := m.migrations[v]
		l := slog.With(slog.String("version", mg.version))

		if !mg.done {
			continue
		}

		l.Info("Running down migration...")
		if err := mg.down(tx); err != nil {
			_ = tx.Rollback()
			l.Error("Error occured while running migration", slog.Any("error", err))
			return fmt.Errorf("migration %s: %w", mg.version, err)
		}

		if _, err := tx.Exec(tx.Rebind("DELETE FROM schema_migrations WHERE version = ?;"), mg.version); err != nil {
			_ = tx.Rollback()
			l.Error("Failed to remove reverted migrations from `schema_migrations`", slog.Any("error", err))
			return err
		}

		reverted = append(reverted, mg)
		count++
		l.Info("Finished down migration...")
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	for _, mg := range reverted {
		mg.done = false
	}

	return nil
}

// reverse returns a reversed copy.
func reverse(arr []string) []string {
	out := make([]string, len(arr))
	for i, v := range arr {
		out[len(arr)-1-i] = v
	}
	return out
}

// isPostgres reports whether tx talks to postgres; sqlite skips postgres-only objects.
func isPostgres(tx *sqlx.Tx) bool {
	return tx.DriverName() == "postgres"
}

// execAll runs statements in order and stops at the first failure.
func execAll(tx *sqlx.Tx, stmts ...string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
