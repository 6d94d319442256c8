package mysql

import (
	"database/sql"
	"encoding/json"
	"fmt"

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
	var metadataRaw []byte
	var embeddingRaw []byte
	var archived int

	err := scanner.Scan(
		&record.ID,
		&record.TenantID,
		&conversationID,
		&record.Role,
		&record.Content,
		&metadataRaw,
		&embeddingRaw,
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

	if len(metadataRaw) > 0 && string(metadataRaw) != "null" {
		if err := json.Unmarshal(metadataRaw, &record.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	if len(embeddingRaw) > 0 && string(embeddingRaw) != "null" {
		if err := json.Unmarshal(embeddingRaw, &record.Embedding); err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
	}

	return &record, nil
}

// scanRule scans a retention rule from a database row or rows.
func scanRule(scanner rowScanner) (*storage.RetentionRule, error) {
	var rule storage.RetentionRule
	var description sql.NullString
	var conditionsRaw []byte
	var enabled int
	var lastApplied sql.NullTime

	err := scanner.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.Name,
		&description,
		&rule.RuleType,
		&conditionsRaw,
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
	rule.Conditions = json.RawMessage(conditionsRaw)
	rule.Enabled = enabled != 0
	if lastApplied.Valid {
		t := lastApplied.Time
		rule.LastApplied = &t
	}

	return &rule, nil
}
