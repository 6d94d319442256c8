package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/recallhq/memlayer-go/pkg/storage"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a record from a database row or rows.
func scanRecord(scanner rowScanner) (*storage.Record, error) {
	var record storage.Record
	var conversationID sql.NullString
	var metadataStr sql.NullString
	var embeddingStr sql.NullString
	var archived int

	err := scanner.Scan(
		&record.ID,
		&record.TenantID,
		&conversationID,
		&record.Role,
		&record.Content,
		&metadataStr,
		&embeddingStr,
		&record.EmbeddingStatus,
		&record.ImportanceScore,
		&archived,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.ConversationID = conversationID.String
	record.Archived = archived != 0

	if metadataStr.Valid && metadataStr.String != "" && metadataStr.String != "null" {
		if err := json.Unmarshal([]byte(metadataStr.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}

	if embeddingStr.Valid && embeddingStr.String != "" {
		if err := json.Unmarshal([]byte(embeddingStr.String), &record.Embedding); err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
	}

	return &record, nil
}

// scanRule scans a retention rule from a database row or rows.
func scanRule(scanner rowScanner) (*storage.RetentionRule, error) {
	var rule storage.RetentionRule
	var description sql.NullString
	var conditions string
	var enabled int
	var lastApplied sql.NullTime

	err := scanner.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.Name,
		&description,
		&rule.RuleType,
		&conditions,
		&rule.Action,
		&rule.Priority,
		&enabled,
		&lastApplied,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Conditions = json.RawMessage(conditions)
	rule.Enabled = enabled != 0
	if lastApplied.Valid {
		t := lastApplied.Time
		rule.LastApplied = &t
	}

	return &rule, nil
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
		args = append(args, boolToInt(*fields.Archived))
	}

	clauses = append(clauses, "updated_at = ?")
	args = append(args, time.Now().UTC())

	return strings.Join(clauses, ", "), args, nil
}
