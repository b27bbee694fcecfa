package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301097000",
		up:      mig_20260301097000_sync_run_notify_up,
		down:    mig_20260301097000_sync_run_notify_down,
	})
}

// Postgres publishes finished sync runs on the sync_events channel as
// "<kind>:<status>:<id>". There is no equivalent on sqlite.
func mig_20260301097000_sync_run_notify_up(tx *sqlx.Tx) error {
	if !isPostgres(tx) {
		return nil
	}

	return execAll(tx,
		`CREATE OR REPLACE FUNCTION notify_sync_run_finished()
		RETURNS TRIGGER AS $$
		BEGIN
			IF NEW.status <> 'running' AND OLD.status = 'running' THEN
				PERFORM pg_notify('sync_events', NEW.kind || ':' || NEW.status || ':' || NEW.id::text);
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;`,
		`CREATE TRIGGER sync_runs_notify
		AFTER UPDATE ON sync_runs
		FOR EACH ROW EXECUTE FUNCTION notify_sync_run_finished();`,
	)
}

func mig_20260301097000_sync_run_notify_down(tx *sqlx.Tx) error {
	if !isPostgres(tx) {
		return nil
	}

	return execAll(tx,
		`DROP TRIGGER IF EXISTS sync_runs_notify ON sync_runs;`,
		`DROP FUNCTION IF EXISTS notify_sync_run_finished();`,
	)
}
