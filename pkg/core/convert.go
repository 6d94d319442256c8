package core

import "github.com/recallhq/memlayer-go/pkg/storage"

// fromStorageRecord converts a storage.Record to a core.Record.
func fromStorageRecord(record *storage.Record) *Record {
	if record == nil {
		return nil
	}
	return &Record{
		ID:              record.ID,
		TenantID:        record.TenantID,
		ConversationID:  record.ConversationID,
		Role:            record.Role,
		Content:         record.Content,
		Metadata:        record.Metadata,
		Embedding:       record.Embedding,
		EmbeddingStatus: record.EmbeddingStatus,
		ImportanceScore: record.ImportanceScore,
		Archived:        record.Archived,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
}
