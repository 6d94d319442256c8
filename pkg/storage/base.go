// Package storage provides interfaces and types for record persistence backends.
//
// It defines the RecordStore and RuleStore interfaces that all storage
// implementations must satisfy, along with the stored record and retention
// rule row types and query options.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound indicates that a record or rule does not exist for the given
// tenant. Backends return it (wrapped) for missing rows and for rows that
// exist under a different tenant, so callers cannot probe across tenants.
var ErrNotFound = errors.New("not found")

// Embedding status values for a stored record.
//
// A record's embedding moves through a small state machine:
// pending -> completed | failed, and failed may be retried back to pending.
const (
	// EmbeddingPending means no embedding has been computed yet.
	EmbeddingPending = "pending"

	// EmbeddingCompleted means the embedding is present and has the
	// configured dimensionality.
	EmbeddingCompleted = "completed"

	// EmbeddingFailed means the last embedding attempt failed; the record
	// is excluded from retrieval until retried.
	EmbeddingFailed = "failed"
)

// Record represents a memory record stored in the record store.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. It mirrors the core.Record structure.
type Record struct {
	// ID is the unique identifier of the record.
	ID int64

	// TenantID identifies the tenant who owns this record. Every storage
	// operation is scoped by it.
	TenantID string

	// ConversationID groups records belonging to one conversation.
	// Empty means the record is not attached to a conversation.
	ConversationID string

	// Role is the speaker role of the message (system, user, assistant).
	Role string

	// Content is the text content of the record.
	Content string

	// Metadata contains additional structured information.
	Metadata map[string]interface{}

	// Embedding is the vector embedding for similarity ranking.
	// Nil until the embedding has been computed.
	Embedding []float64

	// EmbeddingStatus is one of EmbeddingPending, EmbeddingCompleted,
	// EmbeddingFailed.
	EmbeddingStatus string

	// ImportanceScore is the derived importance in [0, 1].
	ImportanceScore float64

	// Archived marks the record as archived. Archived records stay
	// readable by ID but are excluded from retrieval candidates by default.
	Archived bool

	// CreatedAt is when the record was created.
	CreatedAt time.Time

	// UpdatedAt is when the record was last updated.
	UpdatedAt time.Time
}

// RetentionRule is a tenant-scoped lifecycle policy row.
//
// Conditions are kept as raw JSON at the storage level; the retention
// package parses them into typed condition structs and rejects malformed
// shapes at load time.
type RetentionRule struct {
	// ID is the unique identifier of the rule.
	ID int64

	// TenantID identifies the tenant the rule belongs to.
	TenantID string

	// Name is a human readable rule name.
	Name string

	// Description is free text describing the rule's intent.
	Description string

	// RuleType is one of: age, importance, conversation_age, max_items, custom.
	RuleType string

	// Conditions is the rule_type-specific parameter bag, JSON encoded.
	Conditions json.RawMessage

	// Action is one of: archive, delete, move_to_cold_storage.
	Action string

	// Priority orders evaluation; lower values are evaluated first.
	Priority int

	// Enabled toggles the rule without deleting it.
	Enabled bool

	// LastApplied is when the rule last took part in a successful
	// non-dry-run retention run (nil if never).
	LastApplied *time.Time

	// CreatedAt is when the rule was created.
	CreatedAt time.Time

	// UpdatedAt is when the rule was last updated.
	UpdatedAt time.Time
}

// RecordUpdate describes a partial update to a record.
//
// Nil fields are left unchanged. UpdatedAt is always bumped by the store.
type RecordUpdate struct {
	// Content replaces the record content.
	Content *string

	// Metadata replaces the record metadata.
	Metadata map[string]interface{}

	// Embedding replaces the embedding vector.
	Embedding []float64

	// EmbeddingStatus replaces the embedding status.
	EmbeddingStatus *string

	// ImportanceScore replaces the importance score.
	ImportanceScore *float64

	// Archived sets or clears the archived flag.
	Archived *bool
}

// RecordStore defines the interface for record persistence backends.
//
// All storage implementations (SQLite, PostgreSQL, MySQL) must implement
// this interface. Tenant isolation is caller-enforced: every operation
// carries a tenant scope and implementations must filter by it.
type RecordStore interface {
	// Insert inserts a record into the store.
	Insert(ctx context.Context, record *Record) error

	// Get retrieves a record by ID, scoped to a tenant.
	//
	// Returns the record only if it belongs to tenantID.
	Get(ctx context.Context, tenantID string, id int64) (*Record, error)

	// Update applies a partial update to a record, scoped to a tenant.
	//
	// The update succeeds only if the record belongs to tenantID.
	// Returns the updated record.
	Update(ctx context.Context, tenantID string, id int64, fields *RecordUpdate) (*Record, error)

	// Delete removes a record permanently, scoped to a tenant.
	Delete(ctx context.Context, tenantID string, id int64) error

	// Query retrieves records for a tenant with optional filtering.
	Query(ctx context.Context, tenantID string, opts *QueryOptions) ([]*Record, error)

	// Close closes the store and releases resources.
	Close() error
}

// RuleStore defines the interface for retention rule persistence.
//
// The retention engine consumes rules read-only and stamps LastApplied
// after a successful non-dry-run execution.
type RuleStore interface {
	// ListRules returns a tenant's rules ordered by ascending priority.
	ListRules(ctx context.Context, tenantID string) ([]*RetentionRule, error)

	// CreateRule inserts a new rule.
	CreateRule(ctx context.Context, rule *RetentionRule) error

	// DeleteRule removes a rule, scoped to a tenant.
	DeleteRule(ctx context.Context, tenantID string, id int64) error

	// UpdateLastApplied stamps a rule's LastApplied timestamp.
	UpdateLastApplied(ctx context.Context, tenantID string, id int64, appliedAt time.Time) error
}

// Store combines record and rule persistence.
//
// All SQL backends in this module implement both interfaces over one
// database handle.
type Store interface {
	RecordStore
	RuleStore
}

// QueryOptions contains filters for Query operations.
type QueryOptions struct {
	// ConversationID filters records to a single conversation.
	ConversationID string

	// MinImportance filters out records with a lower importance score.
	MinImportance *float64

	// IncludeArchived returns records regardless of the archived flag.
	// When false (the default) only non-archived records are returned,
	// which is the candidate set retrieval expects.
	IncludeArchived bool

	// MaxAge filters out records created more than MaxAge ago.
	MaxAge time.Duration

	// EmbeddingStatus filters on embedding status (e.g. EmbeddingCompleted).
	EmbeddingStatus string

	// Limit sets the maximum number of records to return (0 = no limit).
	Limit int

	// Offset sets the number of records to skip (for pagination).
	Offset int
}
