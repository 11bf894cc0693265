package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"nimbus-hq/helios/pkg/journal"
)

// SQLiteConfig contains configuration for the SQLite journal backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/journal.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements journal.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite journal backend. It initializes the
// schema and enables WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "journal.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, journal.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite journal storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return journal.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return journal.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return journal.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return journal.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return journal.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return journal.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Store persists a journal entry to the database.
func (s *SQLiteStorage) Store(ctx context.Context, entry *journal.Entry) error {
	query := `
		INSERT INTO journal (
			id, time, request_id,
			provider, model, operation, attempt, fallback,
			outcome, error_code, latency_ms,
			prompt_tokens, completion_tokens, total_tokens, cost
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var errorCode interface{}
	if entry.ErrorCode != "" {
		errorCode = entry.ErrorCode
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.Time, entry.RequestID,
		entry.Provider, entry.Model, entry.Operation, entry.Attempt, entry.Fallback,
		entry.Outcome, errorCode, entry.Latency.Milliseconds(),
		entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens, entry.Cost,
	)
	if err != nil {
		return journal.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query retrieves journal entries matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, q *journal.Query) ([]*journal.Entry, error) {
	whereClause, args := buildWhereClause(q)

	sqlQuery := "SELECT * FROM journal"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s", orderColumn(q.SortBy), orderDirection(q.SortOrder))

	limit := 100
	if q.Limit > 0 {
		limit = q.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, journal.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	entries := []*journal.Entry{}
	for rows.Next() {
		entry, err := scanRow(rows)
		if err != nil {
			return nil, journal.NewStorageError("sqlite", "scan", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, journal.NewStorageError("sqlite", "query", err)
	}

	return entries, nil
}

// Count returns the number of journal entries matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, q *journal.Query) (int64, error) {
	whereClause, args := buildWhereClause(q)

	sqlQuery := "SELECT COUNT(*) FROM journal"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, journal.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes journal entries matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, q *journal.Query) (int64, error) {
	whereClause, args := buildWhereClause(q)

	sqlQuery := "DELETE FROM journal"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, journal.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, journal.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Close releases resources held by the backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return journal.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite journal storage closed")
	return nil
}

// orderColumn maps a Query.SortBy value onto a journal column. Unknown values
// sort by time so callers can never inject SQL through the sort field.
func orderColumn(sortBy string) string {
	switch sortBy {
	case "latency":
		return "latency_ms"
	case "tokens":
		return "total_tokens"
	case "cost":
		return "cost"
	default:
		return "time"
	}
}

func orderDirection(sortOrder string) string {
	if sortOrder == "asc" {
		return "ASC"
	}
	return "DESC"
}

// buildWhereClause builds a SQL WHERE clause from query filters. Returns the
// clause without the "WHERE" keyword and the query arguments.
func buildWhereClause(q *journal.Query) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q.StartTime != nil {
		conditions = append(conditions, "time >= ?")
		args = append(args, *q.StartTime)
	}
	if q.EndTime != nil {
		conditions = append(conditions, "time <= ?")
		args = append(args, *q.EndTime)
	}
	if q.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, q.RequestID)
	}
	if q.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, q.Provider)
	}
	if q.Model != "" {
		conditions = append(conditions, "model = ?")
		args = append(args, q.Model)
	}
	if q.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, q.Operation)
	}
	if q.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, q.Outcome)
	}
	if q.ErrorCode != "" {
		conditions = append(conditions, "error_code = ?")
		args = append(args, q.ErrorCode)
	}
	if q.MinTokens != nil {
		conditions = append(conditions, "total_tokens >= ?")
		args = append(args, *q.MinTokens)
	}
	if q.MaxTokens != nil {
		conditions = append(conditions, "total_tokens <= ?")
		args = append(args, *q.MaxTokens)
	}

	return strings.Join(conditions, " AND "), args
}

// scanRow scans a database row into a journal entry.
func scanRow(rows *sql.Rows) (*journal.Entry, error) {
	var entry journal.Entry
	var latencyMs int64
	var errorCode sql.NullString

	err := rows.Scan(
		&entry.ID, &entry.Time, &entry.RequestID,
		&entry.Provider, &entry.Model, &entry.Operation, &entry.Attempt, &entry.Fallback,
		&entry.Outcome, &errorCode, &latencyMs,
		&entry.PromptTokens, &entry.CompletionTokens, &entry.TotalTokens, &entry.Cost,
	)
	if err != nil {
		return nil, err
	}

	if errorCode.Valid {
		entry.ErrorCode = errorCode.String
	}
	entry.Latency = time.Duration(latencyMs) * time.Millisecond

	return &entry, nil
}
