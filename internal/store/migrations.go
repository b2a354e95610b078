package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create kv",
		SQL: `
			CREATE TABLE kv (
				key         TEXT PRIMARY KEY,
				value       TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "add kv namespace",
		SQL: `
			ALTER TABLE kv ADD COLUMN namespace TEXT NOT NULL DEFAULT '';
			CREATE INDEX idx_kv_namespace ON kv (namespace, updated_at);
		`,
	},
}
