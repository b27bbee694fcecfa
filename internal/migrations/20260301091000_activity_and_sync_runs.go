package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301091000",
		up:      mig_20260301091000_activity_and_sync_runs_up,
		down:    mig_20260301091000_activity_and_sync_runs_down,
	})
}

func mig_20260301091000_activity_and_sync_runs_up(tx *sqlx.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS activity_log (
            id UUID PRIMARY KEY,
            resource_type VARCHAR(50) NOT NULL,
            resource_id VARCHAR(100) NOT NULL,
            action VARCHAR(50) NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            actor_id UUID,
            actor_name VARCHAR(255) NOT NULL DEFAULT 'system',
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_activity_resource ON activity_log(resource_type, resource_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
            id UUID PRIMARY KEY,
            kind VARCHAR(50) NOT NULL,
            status VARCHAR(20) NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
            started_at TIMESTAMP NOT NULL,
            completed_at TIMESTAMP,
            fetched INTEGER NOT NULL DEFAULT 0,
            upserted INTEGER NOT NULL DEFAULT 0,
            errors INTEGER NOT NULL DEFAULT 0,
            message TEXT NOT NULL DEFAULT '',
            triggered_by VARCHAR(255) NOT NULL DEFAULT 'system'
        );`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_kind ON sync_runs(kind, started_at);`,
	)
}

func mig_20260301091000_activity_and_sync_runs_down(tx *sqlx.Tx) error {
	return execAll(tx,
		`DROP TABLE IF EXISTS sync_runs;`,
		`DROP TABLE IF EXISTS activity_log;`,
	)
}
