// Package sqlite provides the SQLite implementation of the record store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and small-scale deployments. Embedding vectors are stored as JSON strings
// in TEXT fields; similarity ranking happens in the retrieval layer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/recallhq/memlayer-go/pkg/storage"
)

// Client implements storage.Store using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// recordsTable is the name of the table storing records.
	recordsTable string

	// rulesTable is the name of the table storing retention rules.
	rulesTable string
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// RecordsTable is the name of the records table (default "records").
	RecordsTable string

	// RulesTable is the name of the retention rules table
	// (default "retention_rules").
	RulesTable string
}

// NewClient creates a new SQLite store client.
//
// Parameters:
//   - cfg: Configuration containing the database path and table names
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{
		db:           db,
		recordsTable: tableOrDefault(cfg.RecordsTable, "records"),
		rulesTable:   tableOrDefault(cfg.RulesTable, "retention_rules"),
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

func tableOrDefault(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// initTables initializes the database table structure.
func (c *Client) initTables(ctx context.Context) error {
	recordsQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			conversation_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			embedding TEXT,
			embedding_status TEXT NOT NULL DEFAULT 'pending',
			importance_score REAL NOT NULL DEFAULT 0,
			archived INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`, c.recordsTable)

	if _, err := c.db.ExecContext(ctx, recordsQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	rulesQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			rule_type TEXT NOT NULL,
			conditions TEXT NOT NULL DEFAULT '{}',
			action TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 100,
			enabled INTEGER NOT NULL DEFAULT 1,
			last_applied DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`, c.rulesTable)

	if _, err := c.db.ExecContext(ctx, rulesQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tenant ON %s(tenant_id)`,
			c.recordsTable, c.recordsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tenant_conv ON %s(tenant_id, conversation_id)`,
			c.recordsTable, c.recordsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tenant ON %s(tenant_id)`,
			c.rulesTable, c.rulesTable),
	}
	for _, q := range indexes {
		if _, err := c.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}

	return nil
}

// Insert inserts a record into the SQLite database.
//
// CreatedAt and UpdatedAt are set by the store.
func (c *Client) Insert(ctx context.Context, record *storage.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, tenant_id, conversation_id, role, content, metadata, embedding,
		 embedding_status, importance_score, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.recordsTable)

	metadataJSON, embeddingJSON, err := encodeRecordFields(record)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	status := record.EmbeddingStatus
	if status == "" {
		status = storage.EmbeddingPending
	}

	_, err = c.db.ExecContext(ctx, query,
		record.ID,
		record.TenantID,
		nullableString(record.ConversationID),
		record.Role,
		record.Content,
		metadataJSON,
		embeddingJSON,
		status,
		record.ImportanceScore,
		boolToInt(record.Archived),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	record.EmbeddingStatus = status

	return nil
}

// Get retrieves a record by ID, scoped to a tenant.
func (c *Client) Get(ctx context.Context, tenantID string, id int64) (*storage.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, tenant_id, conversation_id, role, content, metadata, embedding,
		       embedding_status, importance_score, archived, created_at, updated_at
		FROM %s
		WHERE id = ? AND tenant_id = ?
	`, c.recordsTable)

	row := c.db.QueryRowContext(ctx, query, id, tenantID)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("Get: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return record, nil
}

// Update applies a partial update to a record, scoped to a tenant.
func (c *Client) Update(ctx context.Context, tenantID string, id int64, fields *storage.RecordUpdate) (*storage.Record, error) {
	if fields == nil {
		return c.Get(ctx, tenantID, id)
	}

	setClauses, args, err := buildUpdateSet(fields)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ? AND tenant_id = ?`,
		c.recordsTable, setClauses)
	args = append(args, id, tenantID)

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("Update: %w", storage.ErrNotFound)
	}

	return c.Get(ctx, tenantID, id)
}

// Delete removes a record permanently, scoped to a tenant.
func (c *Client) Delete(ctx context.Context, tenantID string, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND tenant_id = ?`, c.recordsTable)

	result, err := c.db.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("Delete: %w", storage.ErrNotFound)
	}

	return nil
}

// Query retrieves records for a tenant with optional filtering.
//
// Results are ordered by created_at descending, id descending, which keeps
// the candidate order deterministic for equal timestamps.
func (c *Client) Query(ctx context.Context, tenantID string, opts *storage.QueryOptions) ([]*storage.Record, error) {
	if opts == nil {
		opts = &storage.QueryOptions{}
	}

	whereClause, args := buildQueryFilters(tenantID, opts)

	query := fmt.Sprintf(`
		SELECT id, tenant_id, conversation_id, role, content, metadata, embedding,
		       embedding_status, importance_score, archived, created_at, updated_at
		FROM %s
		%s
		ORDER BY created_at DESC, id DESC
	`, c.recordsTable, whereClause)

	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*storage.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("Query: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}

	return records, nil
}

// ListRules returns a tenant's retention rules ordered by ascending priority.
func (c *Client) ListRules(ctx context.Context, tenantID string) ([]*storage.RetentionRule, error) {
	query := fmt.Sprintf(`
		SELECT id, tenant_id, name, description, rule_type, conditions, action,
		       priority, enabled, last_applied, created_at, updated_at
		FROM %s
		WHERE tenant_id = ?
		ORDER BY priority ASC, id ASC
	`, c.rulesTable)

	rows, err := c.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []*storage.RetentionRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRules: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}

	return rules, nil
}

// CreateRule inserts a new retention rule.
func (c *Client) CreateRule(ctx context.Context, rule *storage.RetentionRule) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, tenant_id, name, description, rule_type, conditions, action,
		 priority, enabled, last_applied, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.rulesTable)

	conditions := string(rule.Conditions)
	if conditions == "" {
		conditions = "{}"
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := c.db.ExecContext(ctx, query,
		rule.ID,
		rule.TenantID,
		rule.Name,
		rule.Description,
		rule.RuleType,
		conditions,
		rule.Action,
		rule.Priority,
		boolToInt(rule.Enabled),
		rule.LastApplied,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("CreateRule: %w", err)
	}

	return nil
}

// DeleteRule removes a retention rule, scoped to a tenant.
func (c *Client) DeleteRule(ctx context.Context, tenantID string, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND tenant_id = ?`, c.rulesTable)

	result, err := c.db.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("DeleteRule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteRule: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("DeleteRule: %w", storage.ErrNotFound)
	}

	return nil
}

// UpdateLastApplied stamps a rule's LastApplied timestamp.
func (c *Client) UpdateLastApplied(ctx context.Context, tenantID string, id int64, appliedAt time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET last_applied = ?, updated_at = ? WHERE id = ? AND tenant_id = ?
	`, c.rulesTable)

	result, err := c.db.ExecContext(ctx, query, appliedAt.UTC(), time.Now().UTC(), id, tenantID)
	if err != nil {
		return fmt.Errorf("UpdateLastApplied: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateLastApplied: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("UpdateLastApplied: %w", storage.ErrNotFound)
	}

	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// encodeRecordFields marshals the metadata and embedding of a record.
//
// A nil embedding is stored as SQL NULL, distinguishing "no embedding yet"
// from an empty vector.
func encodeRecordFields(record *storage.Record) (metadata string, embedding interface{}, err error) {
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return "", nil, err
	}

	if record.Embedding == nil {
		return string(metadataJSON), nil, nil
	}

	embeddingJSON, err := json.Marshal(record.Embedding)
	if err != nil {
		return "", nil, err
	}
	return string(metadataJSON), string(embeddingJSON), nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
