package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301092000",
		up:      mig_20260301092000_payables_up,
		down:    mig_20260301092000_payables_down,
	})
}

func mig_20260301092000_payables_up(tx *sqlx.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS contractors (
            id UUID PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            email VARCHAR(255) NOT NULL DEFAULT '',
            phone VARCHAR(50) NOT NULL DEFAULT '',
            trade VARCHAR(50) NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS contractor_rates (
            id UUID PRIMARY KEY,
            contractor_id UUID NOT NULL REFERENCES contractors(id) ON DELETE CASCADE,
            trade VARCHAR(50) NOT NULL,
            job_type VARCHAR(100) NOT NULL,
            amount NUMERIC(12,2) NOT NULL,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            UNIQUE (contractor_id, trade, job_type)
        );`,
		`CREATE TABLE IF NOT EXISTS contractor_jobs (
            id UUID PRIMARY KEY,
            contractor_id UUID NOT NULL REFERENCES contractors(id) ON DELETE CASCADE,
            job_number VARCHAR(100) NOT NULL,
            trade VARCHAR(50) NOT NULL,
            job_type VARCHAR(100) NOT NULL,
            completed_on DATE NOT NULL,
            payment_status VARCHAR(20) NOT NULL DEFAULT 'none' CHECK (payment_status IN ('none', 'requested', 'approved', 'paid')),
            payment_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
            paid_at TIMESTAMP,
            notes TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_contractor_jobs_contractor ON contractor_jobs(contractor_id, completed_on);`,
		`CREATE INDEX IF NOT EXISTS idx_contractor_jobs_status ON contractor_jobs(payment_status);`,
	)
}

func mig_20260301092000_payables_down(tx *sqlx.Tx) error {
	return execAll(tx,
		`DROP TABLE IF EXISTS contractor_jobs;`,
		`DROP TABLE IF EXISTS contractor_rates;`,
		`DROP TABLE IF EXISTS contractors;`,
	)
}
