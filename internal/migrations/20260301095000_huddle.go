package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301095000",
		up:      mig_20260301095000_huddle_up,
		down:    mig_20260301095000_huddle_down,
	})
}

func mig_20260301095000_huddle_up(tx *sqlx.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS huddle_kpis (
            id UUID PRIMARY KEY,
            slug VARCHAR(100) NOT NULL UNIQUE,
            name VARCHAR(255) NOT NULL,
            department VARCHAR(100) NOT NULL DEFAULT '',
            unit VARCHAR(20) NOT NULL DEFAULT 'count',
            target NUMERIC(14,2),
            position INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS huddle_kpi_values (
            id UUID PRIMARY KEY,
            kpi_id UUID NOT NULL REFERENCES huddle_kpis(id) ON DELETE CASCADE,
            snapshot_date DATE NOT NULL,
            value NUMERIC(14,2) NOT NULL,
            note TEXT NOT NULL DEFAULT '',
            updated_by VARCHAR(255) NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            UNIQUE (kpi_id, snapshot_date)
        );`,
	)
}

func mig_20260301095000_huddle_down(tx *sqlx.Tx) error {
	return execAll(tx,
		`DROP TABLE IF EXISTS huddle_kpi_values;`,
		`DROP TABLE IF EXISTS huddle_kpis;`,
	)
}
