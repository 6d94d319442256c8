// Package mysql provides the MySQL implementation of the record store.
//
// Embedding vectors and metadata are stored as JSON columns. Similarity
// ranking happens in the retrieval layer.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/recallhq/memlayer-go/pkg/storage"
)

// Client implements storage.Store using MySQL as the backend.
type Client struct {
	db           *sql.DB
	recordsTable string
	rulesTable   string
}

// Config contains MySQL configuration.
type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	RecordsTable string
	RulesTable   string
}

// NewClient creates a new MySQL store client.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
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
			id BIGINT PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			conversation_id VARCHAR(64),
			role VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			metadata JSON,
			embedding JSON,
			embedding_status VARCHAR(16) NOT NULL DEFAULT 'pending',
			importance_score DOUBLE NOT NULL DEFAULT 0,
			archived TINYINT(1) NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			INDEX idx_tenant (tenant_id),
			INDEX idx_tenant_conv (tenant_id, conversation_id)
		)
	`, c.recordsTable)

	if _, err := c.db.ExecContext(ctx, recordsQuery); err != nil {
		return fmt.Errorf("initTables: create records table: %w", err)
	}

	rulesQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			rule_type VARCHAR(32) NOT NULL,
			conditions JSON NOT NULL,
			action VARCHAR(32) NOT NULL,
			priority INT NOT NULL DEFAULT 100,
			enabled TINYINT(1) NOT NULL DEFAULT 1,
			last_applied DATETIME(6),
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			INDEX idx_tenant (tenant_id)
		)
	`, c.rulesTable)

	if _, err := c.db.ExecContext(ctx, rulesQuery); err != nil {
		return fmt.Errorf("initTables: create rules table: %w", err)
	}

	return nil
}

// Insert inserts a record.
//
// CreatedAt and UpdatedAt are set by the store.
func (c *Client) Insert(ctx context.Context, record *storage.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, tenant_id, conversation_id, role, content, metadata, embedding,
		 embedding_status, importance_score, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.recordsTable)

	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	var embeddingJSON interface{}
	if record.Embedding != nil {
		b, err := json.Marshal(record.Embedding)
		if err != nil {
			return fmt.Errorf("Insert: %w", err)
		}
		embeddingJSON = string(b)
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
		string(metadataJSON),
		embeddingJSON,
		status,
		record.ImportanceScore,
		record.Archived,
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

	// updated_at always changes, so zero affected rows means the record
	// does not exist for this tenant.
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
// Results are ordered by created_at descending, id descending.
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
		rule.Enabled,
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

	_, err := c.db.ExecContext(ctx, query, appliedAt.UTC(), time.Now().UTC(), id, tenantID)
	if err != nil {
		return fmt.Errorf("UpdateLastApplied: %w", err)
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

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// buildQueryFilters builds the WHERE clause for Query from the options.
func buildQueryFilters(tenantID string, opts *storage.QueryOptions) (string, []interface{}) {
	clauses := []string{"tenant_id = ?"}
	args := []interface{}{tenantID}

	if opts.ConversationID != "" {
		clauses = append(clauses, "conversation_id = ?")
		args = append(args, opts.ConversationID)
	}
	if opts.MinImportance != nil {
		clauses = append(clauses, "importance_score >= ?")
		args = append(args, *opts.MinImportance)
	}
	if !opts.IncludeArchived {
		clauses = append(clauses, "archived = 0")
	}
	if opts.MaxAge > 0 {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, time.Now().UTC().Add(-opts.MaxAge))
	}
	if opts.EmbeddingStatus != "" {
		clauses = append(clauses, "embedding_status = ?")
		args = append(args, opts.EmbeddingStatus)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

// buildUpdateSet builds the SET clause for a partial record update.
//
// UpdatedAt is always bumped.
func buildUpdateSet(fields *storage.RecordUpdate) (string, []interface{}, error) {
	var clauses []string
	var args []interface{}

	if fields.Content != nil {
		clauses = append(clauses, "content = ?")
		args = append(args, *fields.Content)
	}
	if fields.Metadata != nil {
		metadataJSON, err := json.Marshal(fields.Metadata)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "metadata = ?")
		args = append(args, string(metadataJSON))
	}
	if fields.Embedding != nil {
		embeddingJSON, err := json.Marshal(fields.Embedding)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "embedding = ?")
		args = append(args, string(embeddingJSON))
	}
	if fields.EmbeddingStatus != nil {
		clauses = append(clauses, "embedding_status = ?")
		args = append(args, *fields.EmbeddingStatus)
	}
	if fields.ImportanceScore != nil {
		clauses = append(clauses, "importance_score = ?")
		args = append(args, *fields.ImportanceScore)
	}
	if fields.Archived != nil {
		clauses = append(clauses, "archived = ?")
		args = append(args, *fields.Archived)
	}

	clauses = append(clauses, "updated_at = ?")
	args = append(args, time.Now().UTC())

	return strings.Join(clauses, ", "), args, nil
}
