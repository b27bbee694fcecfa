package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301096000",
		up:      mig_20260301096000_media_assets_up,
		down:    mig_20260301096000_media_assets_down,
	})
}

func mig_20260301096000_media_assets_up(tx *sqlx.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS media_assets (
            id UUID PRIMARY KEY,
            category VARCHAR(20) NOT NULL CHECK (category IN ('image', 'video')),
            original_name VARCHAR(255) NOT NULL DEFAULT '',
            mime_type VARCHAR(100) NOT NULL,
            size_bytes BIGINT NOT NULL,
            path TEXT NOT NULL,
            uploaded_by VARCHAR(255) NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL
        );`,
	)
}

func mig_20260301096000_media_assets_down(tx *sqlx.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS media_assets;`)
	return err
}
