package core

// IngestOption is a function type for configuring Ingest operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type IngestOption func(*IngestOptions)

// IngestOptions contains configuration options for Ingest operations.
type IngestOptions struct {
	// ConversationID attaches the record to a conversation.
	ConversationID string

	// Role is the speaker role of the message (defaults to RoleUser).
	Role string

	// Metadata contains additional metadata about the record.
	Metadata map[string]interface{}

	// ImportanceHint biases the importance score, in [0, 1].
	// Nil means no explicit hint.
	ImportanceHint *float64
}

// WithConversationID sets the conversation for Ingest operations.
//
// Example:
//
//	record, _ := client.Ingest(ctx, "tenant_001", "content",
//	    core.WithConversationID("conv_42"))
func WithConversationID(conversationID string) IngestOption {
	return func(opts *IngestOptions) {
		opts.ConversationID = conversationID
	}
}

// WithRole sets the speaker role for Ingest operations.
func WithRole(role string) IngestOption {
	return func(opts *IngestOptions) {
		opts.Role = role
	}
}

// WithMetadata sets the metadata for Ingest operations.
func WithMetadata(metadata map[string]interface{}) IngestOption {
	return func(opts *IngestOptions) {
		opts.Metadata = metadata
	}
}

// WithImportanceHint sets an explicit importance hint for Ingest operations.
//
// The hint feeds the explicit component of the importance score; it does
// not replace the score outright.
func WithImportanceHint(hint float64) IngestOption {
	return func(opts *IngestOptions) {
		h := hint
		opts.ImportanceHint = &h
	}
}

func applyIngestOptions(opts []IngestOption) *IngestOptions {
	options := &IngestOptions{Role: RoleUser}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// RetrieveOption is a function type for configuring Retrieve operations.
type RetrieveOption func(*RetrieveOptions)

// RetrieveOptions contains configuration options for Retrieve operations.
type RetrieveOptions struct {
	// TopK is the number of results to return (0 uses the configured
	// default).
	TopK int

	// ConversationID restricts candidates to one conversation.
	ConversationID string

	// MinImportance filters out candidates below the given importance.
	MinImportance *float64
}

// WithTopK sets the result count for Retrieve operations.
//
// Example:
//
//	results, _ := client.Retrieve(ctx, "tenant_001", "query", core.WithTopK(5))
func WithTopK(topK int) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.TopK = topK
	}
}

// WithConversationFilter restricts Retrieve candidates to one conversation.
func WithConversationFilter(conversationID string) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.ConversationID = conversationID
	}
}

// WithMinImportance filters Retrieve candidates below the given importance.
func WithMinImportance(min float64) RetrieveOption {
	return func(opts *RetrieveOptions) {
		m := min
		opts.MinImportance = &m
	}
}

func applyRetrieveOptions(opts []RetrieveOption) *RetrieveOptions {
	options := &RetrieveOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// UpdateOption is a function type for configuring Update operations.
type UpdateOption func(*UpdateOptions)

// UpdateOptions contains configuration options for Update operations.
type UpdateOptions struct {
	// Content replaces the record content. A content change re-embeds the
	// record and recomputes its importance score.
	Content *string

	// Metadata replaces the record metadata.
	Metadata map[string]interface{}

	// ImportanceHint recomputes the importance score with a new explicit
	// hint, without requiring a content change.
	ImportanceHint *float64
}

// WithNewContent replaces the record content on Update.
//
// Example:
//
//	record, _ := client.Update(ctx, "tenant_001", id,
//	    core.WithNewContent("corrected content"))
func WithNewContent(content string) UpdateOption {
	return func(opts *UpdateOptions) {
		c := content
		opts.Content = &c
	}
}

// WithNewMetadata replaces the record metadata on Update.
func WithNewMetadata(metadata map[string]interface{}) UpdateOption {
	return func(opts *UpdateOptions) {
		opts.Metadata = metadata
	}
}

// WithNewImportanceHint recomputes the importance score with the given
// explicit hint on Update.
func WithNewImportanceHint(hint float64) UpdateOption {
	return func(opts *UpdateOptions) {
		h := hint
		opts.ImportanceHint = &h
	}
}

func applyUpdateOptions(opts []UpdateOption) *UpdateOptions {
	options := &UpdateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
