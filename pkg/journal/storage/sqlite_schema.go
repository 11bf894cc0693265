package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the journal database schema.
const Schema = `
-- Journal entries table
CREATE TABLE IF NOT EXISTS journal (
    id TEXT PRIMARY KEY,
    time TIMESTAMP NOT NULL,
    request_id TEXT NOT NULL,

    provider TEXT NOT NULL,
    model TEXT,
    operation TEXT NOT NULL,
    attempt INTEGER,
    fallback BOOLEAN,

    outcome TEXT NOT NULL,
    error_code TEXT,
    latency_ms INTEGER,

    prompt_tokens INTEGER,
    completion_tokens INTEGER,
    total_tokens INTEGER,
    cost REAL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_journal_time ON journal(time);
CREATE INDEX IF NOT EXISTS idx_journal_request_id ON journal(request_id);
CREATE INDEX IF NOT EXISTS idx_journal_provider ON journal(provider);
CREATE INDEX IF NOT EXISTS idx_journal_outcome ON journal(outcome);
CREATE INDEX IF NOT EXISTS idx_journal_total_tokens ON journal(total_tokens);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
