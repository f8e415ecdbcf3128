package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS deliveries (
	id              TEXT PRIMARY KEY,
	notification_id TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	level           TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL CHECK(source IN ('fetch', 'push')),
	received_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deliveries_notification_id ON deliveries(notification_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_received_at ON deliveries(received_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS acks (
	id              TEXT PRIMARY KEY,
	notification_id TEXT NOT NULL,
	status          TEXT NOT NULL CHECK(status IN ('ok', 'failed')),
	error           TEXT NOT NULL DEFAULT '',
	acked_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_acks_notification_id ON acks(notification_id, acked_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
