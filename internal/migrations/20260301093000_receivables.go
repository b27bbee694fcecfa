package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301093000",
		up:      mig_20260301093000_receivables_up,
		down:    mig_20260301093000_receivables_down,
	})
}

func mig_20260301093000_receivables_up(tx *sqlx.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS ar_invoices (
            id UUID PRIMARY KEY,
            st_invoice_id BIGINT NOT NULL UNIQUE,
            st_customer_id BIGINT NOT NULL DEFAULT 0,
            invoice_number VARCHAR(100) NOT NULL DEFAULT '',
            customer_name VARCHAR(255) NOT NULL DEFAULT '',
            job_number VARCHAR(100) NOT NULL DEFAULT '',
            business_unit VARCHAR(255) NOT NULL DEFAULT '',
            invoice_date DATE,
            due_date DATE,
            total NUMERIC(12,2) NOT NULL DEFAULT 0,
            balance NUMERIC(12,2) NOT NULL DEFAULT 0,
            status VARCHAR(20) NOT NULL DEFAULT 'open',
            payment_method VARCHAR(100) NOT NULL DEFAULT '',
            enriched_at TIMESTAMP,
            enrich_attempts INTEGER NOT NULL DEFAULT 0,
            synced_at TIMESTAMP NOT NULL,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_ar_invoices_status ON ar_invoices(status, invoice_date);`,
		`CREATE INDEX IF NOT EXISTS idx_ar_invoices_enrich ON ar_invoices(enriched_at, enrich_attempts);`,
		`CREATE TABLE IF NOT EXISTS ar_payments (
            id UUID PRIMARY KEY,
            st_payment_id BIGINT NOT NULL,
            invoice_id UUID NOT NULL REFERENCES ar_invoices(id) ON DELETE CASCADE,
            amount NUMERIC(12,2) NOT NULL,
            paid_on DATE,
            method VARCHAR(100) NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            UNIQUE (st_payment_id, invoice_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_ar_payments_invoice ON ar_payments(invoice_id);`,
		`CREATE TABLE IF NOT EXISTS collection_tasks (
            id UUID PRIMARY KEY,
            invoice_id UUID NOT NULL REFERENCES ar_invoices(id) ON DELETE CASCADE,
            title VARCHAR(255) NOT NULL,
            assignee VARCHAR(255) NOT NULL DEFAULT '',
            due_on DATE,
            status VARCHAR(20) NOT NULL DEFAULT 'pending',
            sync_state VARCHAR(20) NOT NULL DEFAULT 'local',
            st_task_id BIGINT,
            completed_at TIMESTAMP,
            completed_by VARCHAR(255),
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_collection_tasks_invoice ON collection_tasks(invoice_id);`,
	)
}

func mig_20260301093000_receivables_down(tx *sqlx.Tx) error {
	return execAll(tx,
		`DROP TABLE IF EXISTS collection_tasks;`,
		`DROP TABLE IF EXISTS ar_payments;`,
		`DROP TABLE IF EXISTS ar_invoices;`,
	)
}
