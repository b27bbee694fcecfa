package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301094000",
		up:      mig_20260301094000_job_trackers_up,
		down:    mig_20260301094000_job_trackers_down,
	})
}

func mig_20260301094000_job_trackers_up(tx *sqlx.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS job_trackers (
            id UUID PRIMARY KEY,
            st_job_id BIGINT UNIQUE,
            job_number VARCHAR(100) NOT NULL DEFAULT '',
            customer_name VARCHAR(255) NOT NULL,
            customer_phone VARCHAR(50) NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            status VARCHAR(20) NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'closed')),
            created_by VARCHAR(255) NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS tracker_milestones (
            id UUID PRIMARY KEY,
            tracker_id UUID NOT NULL REFERENCES job_trackers(id) ON DELETE CASCADE,
            name VARCHAR(255) NOT NULL,
            position INTEGER NOT NULL DEFAULT 0,
            status VARCHAR(20) NOT NULL DEFAULT 'pending',
            sync_state VARCHAR(20) NOT NULL DEFAULT 'local',
            notify_customer BOOLEAN NOT NULL DEFAULT FALSE,
            completed_at TIMESTAMP,
            completed_by VARCHAR(255),
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            UNIQUE (tracker_id, name)
        );`,
	)
}

func mig_20260301094000_job_trackers_down(tx *sqlx.Tx) error {
	return execAll(tx,
		`DROP TABLE IF EXISTS tracker_milestones;`,
		`DROP TABLE IF EXISTS job_trackers;`,
	)
}
