package core

import "time"

// Speaker roles recognized by the importance scorer. Any other role string
// is accepted and scored with the default role weight.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Embedding status values, mirrored from the storage layer.
const (
	// EmbeddingPending means no embedding has been computed yet.
	EmbeddingPending = "pending"

	// EmbeddingCompleted means the embedding is present.
	EmbeddingCompleted = "completed"

	// EmbeddingFailed means the last embedding attempt failed.
	EmbeddingFailed = "failed"
)

// Record is a stored memory record.
//
// A record belongs to exactly one tenant and optionally to one conversation
// within that tenant. Its embedding is computed out of band of the insert,
// so EmbeddingStatus tells callers whether the record can take part in
// similarity retrieval yet.
type Record struct {
	// ID is the unique identifier of the record.
	ID int64 `json:"id"`

	// TenantID identifies the tenant who owns this record.
	TenantID string `json:"tenant_id"`

	// ConversationID groups records belonging to one conversation.
	// Empty means the record is standalone.
	ConversationID string `json:"conversation_id,omitempty"`

	// Role is the speaker role of the message.
	Role string `json:"role"`

	// Content is the text content of the record.
	Content string `json:"content"`

	// Metadata contains additional structured information.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Embedding is the vector embedding, nil until computed.
	Embedding []float64 `json:"embedding,omitempty"`

	// EmbeddingStatus is one of EmbeddingPending, EmbeddingCompleted,
	// EmbeddingFailed.
	EmbeddingStatus string `json:"embedding_status"`

	// ImportanceScore is the derived importance in [0, 1].
	ImportanceScore float64 `json:"importance_score"`

	// Archived marks the record as archived. Archived records stay
	// readable by ID but are excluded from retrieval.
	Archived bool `json:"archived"`

	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// RankedRecord is a retrieval result: a record with its ranking breakdown.
type RankedRecord struct {
	// Record is the retrieved record.
	Record *Record `json:"record"`

	// Score is the composite relevance score the ranking is sorted by.
	Score float64 `json:"score"`

	// Similarity is the raw cosine similarity to the query, in [-1, 1].
	Similarity float64 `json:"similarity"`

	// Decay is the time-decay factor for the record's age, in (0, 1].
	Decay float64 `json:"decay"`
}

// BatchItem is one entry of an IngestBatch call.
type BatchItem struct {
	// Content is the text to ingest.
	Content string `json:"content"`

	// ConversationID optionally attaches the record to a conversation.
	ConversationID string `json:"conversation_id,omitempty"`

	// Role is the speaker role; empty defaults to RoleUser.
	Role string `json:"role,omitempty"`

	// Metadata contains additional structured information.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// ImportanceHint optionally biases the importance score, in [0, 1].
	ImportanceHint *float64 `json:"importance_hint,omitempty"`
}

// BatchError reports a failed item of an IngestBatch call.
type BatchError struct {
	// Index is the position of the failed item in the input slice.
	Index int `json:"index"`

	// Err is the failure.
	Err error `json:"-"`
}

// BatchResult is the outcome of an IngestBatch call.
//
// Items fail independently: Records holds the successfully ingested records
// and Errors the failures, so one bad item never discards its siblings.
type BatchResult struct {
	// Records are the successfully ingested records, in input order.
	Records []*Record `json:"records"`

	// Errors lists the items that could not be ingested.
	Errors []BatchError `json:"errors,omitempty"`
}
