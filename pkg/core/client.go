package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/recallhq/memlayer-go/pkg/cache"
	"github.com/recallhq/memlayer-go/pkg/embedder"
	mockEmbedder "github.com/recallhq/memlayer-go/pkg/embedder/mock"
	openaiEmbedder "github.com/recallhq/memlayer-go/pkg/embedder/openai"
	"github.com/recallhq/memlayer-go/pkg/retention"
	"github.com/recallhq/memlayer-go/pkg/retrieval"
	"github.com/recallhq/memlayer-go/pkg/scoring"
	"github.com/recallhq/memlayer-go/pkg/storage"
	mysqlStore "github.com/recallhq/memlayer-go/pkg/storage/mysql"
	postgresStore "github.com/recallhq/memlayer-go/pkg/storage/postgres"
	sqliteStore "github.com/recallhq/memlayer-go/pkg/storage/sqlite"
)

// Client is the main memlayer client.
//
// It orchestrates the full record lifecycle:
//   - Ingest: persist a message, score its importance, compute its embedding
//   - Retrieve: rank stored records against a query by similarity, decay,
//     and importance
//   - Retention: run tenant-scoped lifecycle rules
//
// Every operation is tenant-scoped; a client serves all tenants of its
// store. The client is safe for concurrent use.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	record, _ := client.Ingest(ctx, "tenant_001", "User prefers Go",
//	    core.WithConversationID("conv_42"),
//	    core.WithRole(core.RoleUser),
//	)
type Client struct {
	// config contains the client configuration.
	config *Config

	// store persists records and retention rules.
	store storage.Store

	// embedder is the embedding provider for vector generation.
	embedder embedder.Provider

	// scorer computes importance scores at ingestion time.
	scorer *scoring.Scorer

	// retriever ranks candidates for queries.
	retriever *retrieval.Retriever

	// engine executes retention rule sets.
	engine *retention.Engine

	// embeddingCache caches query embeddings (nil if disabled).
	embeddingCache *cache.EmbeddingCache

	// snowflakeNode generates unique IDs for records.
	snowflakeNode *snowflake.Node

	// wg tracks in-flight asynchronous embedding work.
	wg sync.WaitGroup
}

// ClientOption customizes client construction beyond what Config expresses.
type ClientOption func(*clientOptions)

type clientOptions struct {
	store    storage.Store
	embedder embedder.Provider
	mover    retention.Mover
	custom   retention.CustomEvaluator
}

// WithStore injects a pre-built store, bypassing Config.Storage. Useful for
// custom backends and tests.
func WithStore(store storage.Store) ClientOption {
	return func(opts *clientOptions) {
		opts.store = store
	}
}

// WithEmbedder injects a pre-built embedding provider, bypassing
// Config.Embedding.
func WithEmbedder(provider embedder.Provider) ClientOption {
	return func(opts *clientOptions) {
		opts.embedder = provider
	}
}

// WithColdStorageMover configures the destination for retention rules with
// the move_to_cold_storage action.
func WithColdStorageMover(mover retention.Mover) ClientOption {
	return func(opts *clientOptions) {
		opts.mover = mover
	}
}

// WithCustomRuleEvaluator configures the predicate used by retention rules
// of type custom.
func WithCustomRuleEvaluator(eval retention.CustomEvaluator) ClientOption {
	return func(opts *clientOptions) {
		opts.custom = eval
	}
}

// NewClient creates a new memlayer client.
//
// The client is initialized with:
//   - Storage backend (SQLite, PostgreSQL, or MySQL)
//   - Embedding provider (OpenAI or the deterministic mock)
//   - Importance scorer, retriever, and retention engine per Config
//
// Parameters:
//   - cfg: Configuration containing storage, embedding, scoring, and
//     retrieval settings
//   - opts: Optional injection points (store, embedder, retention hooks)
//
// Returns a new Client instance, or an error if initialization fails.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Injected dependencies skip the corresponding config validation.
	if options.store == nil || options.embedder == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	store := options.store
	if store == nil {
		var err error
		store, err = initStorage(cfg.Storage)
		if err != nil {
			return nil, err
		}
	}

	embedderProvider := options.embedder
	if embedderProvider == nil {
		var err error
		embedderProvider, err = initEmbedder(cfg.Embedding)
		if err != nil {
			return nil, err
		}
	}

	scorer, err := initScorer(cfg.Scoring)
	if err != nil {
		return nil, NewLayerError("NewClient", err)
	}

	retriever, err := initRetriever(cfg.Retrieval)
	if err != nil {
		return nil, NewLayerError("NewClient", err)
	}

	var engineOpts []retention.EngineOption
	if options.mover != nil {
		engineOpts = append(engineOpts, retention.WithMover(options.mover))
	}
	if options.custom != nil {
		engineOpts = append(engineOpts, retention.WithCustomEvaluator(options.custom))
	}

	var embeddingCache *cache.EmbeddingCache
	if cfg.Cache.Enabled {
		embeddingCache, err = cache.New(cache.Config{
			MaxCost: cfg.Cache.MaxCostBytes,
			TTL:     time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		})
		if err != nil {
			return nil, NewLayerError("NewClient", err)
		}
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewLayerError("NewClient", err)
	}

	return &Client{
		config:         cfg,
		store:          store,
		embedder:       embedderProvider,
		scorer:         scorer,
		retriever:      retriever,
		engine:         retention.NewEngine(store, store, engineOpts...),
		embeddingCache: embeddingCache,
		snowflakeNode:  node,
	}, nil
}

// Ingest persists one message as a memory record.
//
// The method:
//  1. Computes the importance score from recency, role, and the optional
//     explicit hint
//  2. Inserts the record with a pending embedding
//  3. Computes the embedding, synchronously by default or in the
//     background when Config.Embedding.Async is set
//
// Embedding failure never fails ingestion. A provider error leaves the
// record with a failed embedding (retryable via RetryEmbedding); a timeout
// leaves it pending. Either way the record is persisted and returned.
//
// Parameters:
//   - ctx: Context for cancellation
//   - tenantID: Owning tenant (required)
//   - content: Message text (required)
//   - opts: Optional parameters (ConversationID, Role, Metadata,
//     ImportanceHint)
//
// Returns the created record, or an error if validation or the insert fails.
func (c *Client) Ingest(ctx context.Context, tenantID, content string, opts ...IngestOption) (*Record, error) {
	if tenantID == "" {
		return nil, NewLayerError("Ingest", fmt.Errorf("%w: tenant id is required", ErrInvalidInput))
	}
	if content == "" {
		return nil, NewLayerError("Ingest", fmt.Errorf("%w: content is required", ErrInvalidInput))
	}

	ingestOpts := applyIngestOptions(opts)
	now := time.Now().UTC()

	record := &storage.Record{
		ID:              c.snowflakeNode.Generate().Int64(),
		TenantID:        tenantID,
		ConversationID:  ingestOpts.ConversationID,
		Role:            ingestOpts.Role,
		Content:         content,
		Metadata:        ingestOpts.Metadata,
		EmbeddingStatus: storage.EmbeddingPending,
		ImportanceScore: c.scorer.ScoreAt(now, ingestOpts.Role, ingestOpts.ImportanceHint, now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := c.store.Insert(ctx, record); err != nil {
		return nil, NewLayerError("Ingest", fmt.Errorf("%w: %v", ErrStorageOperation, err))
	}

	if c.config.Embedding.Async {
		// Snapshot before the goroutine starts mutating the record.
		result := fromStorageRecord(record)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.embedRecord(context.Background(), record)
		}()
		return result, nil
	}

	c.embedRecord(ctx, record)
	return fromStorageRecord(record), nil
}

// IngestBatch ingests multiple messages with per-item isolation.
//
// Every item is inserted independently; an item that fails validation or
// insertion is reported in the result's Errors without affecting its
// siblings. Embeddings for the inserted records are computed in one batch
// call; a batch embedding failure marks those records' embeddings failed
// (retryable) but does not undo the inserts.
//
// Parameters:
//   - ctx: Context for cancellation
//   - tenantID: Owning tenant (required)
//   - items: Messages to ingest
//
// Returns a BatchResult with the ingested records and per-item errors.
func (c *Client) IngestBatch(ctx context.Context, tenantID string, items []BatchItem) (*BatchResult, error) {
	if tenantID == "" {
		return nil, NewLayerError("IngestBatch", fmt.Errorf("%w: tenant id is required", ErrInvalidInput))
	}

	result := &BatchResult{}
	var inserted []*storage.Record
	now := time.Now().UTC()

	for i, item := range items {
		if item.Content == "" {
			result.Errors = append(result.Errors, BatchError{
				Index: i,
				Err:   fmt.Errorf("%w: content is required", ErrInvalidInput),
			})
			continue
		}

		role := item.Role
		if role == "" {
			role = RoleUser
		}

		record := &storage.Record{
			ID:              c.snowflakeNode.Generate().Int64(),
			TenantID:        tenantID,
			ConversationID:  item.ConversationID,
			Role:            role,
			Content:         item.Content,
			Metadata:        item.Metadata,
			EmbeddingStatus: storage.EmbeddingPending,
			ImportanceScore: c.scorer.ScoreAt(now, role, item.ImportanceHint, now),
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := c.store.Insert(ctx, record); err != nil {
			result.Errors = append(result.Errors, BatchError{
				Index: i,
				Err:   fmt.Errorf("%w: %v", ErrStorageOperation, err),
			})
			continue
		}
		inserted = append(inserted, record)
	}

	if len(inserted) > 0 && !c.config.Embedding.Async {
		c.embedBatch(ctx, inserted)
	}

	for _, record := range inserted {
		result.Records = append(result.Records, fromStorageRecord(record))
	}

	if len(inserted) > 0 && c.config.Embedding.Async {
		records := inserted
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.embedBatch(context.Background(), records)
		}()
	}
	return result, nil
}

// Retrieve ranks stored records against a query and returns the best topK.
//
// The method:
//  1. Embeds the query (served from the embedding cache when enabled)
//  2. Loads ranking candidates: non-archived records with completed
//     embeddings, optionally filtered by conversation and importance
//  3. Ranks them by the composite of similarity, decay, and importance
//
// Parameters:
//   - ctx: Context for cancellation
//   - tenantID: Tenant to search in (required)
//   - query: Query text (required)
//   - opts: Optional parameters (TopK, ConversationID, MinImportance)
//
// Returns ranked results, best first. An unset topK falls back to the
// configured default; a negative topK is rejected. Fewer than topK results
// (including none) is a normal outcome, not an error.
func (c *Client) Retrieve(ctx context.Context, tenantID, query string, opts ...RetrieveOption) ([]*RankedRecord, error) {
	if tenantID == "" {
		return nil, NewLayerError("Retrieve", fmt.Errorf("%w: tenant id is required", ErrInvalidInput))
	}
	if query == "" {
		return nil, NewLayerError("Retrieve", fmt.Errorf("%w: query is required", ErrInvalidInput))
	}

	retrieveOpts := applyRetrieveOptions(opts)
	topK := retrieveOpts.TopK
	if topK < 0 {
		return nil, NewLayerError("Retrieve", fmt.Errorf("%w: got %d", retrieval.ErrInvalidTopK, topK))
	}
	if topK == 0 {
		topK = c.config.Retrieval.DefaultTopK
		if topK <= 0 {
			topK = DefaultTopK
		}
	}

	queryEmbedding, err := c.queryEmbedding(ctx, tenantID, query)
	if err != nil {
		return nil, NewLayerError("Retrieve", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}

	candidateLimit := c.config.Retrieval.CandidateLimit
	if candidateLimit == 0 {
		candidateLimit = DefaultCandidateLimit
	}
	if candidateLimit < 0 {
		candidateLimit = 0
	}

	candidates, err := c.store.Query(ctx, tenantID, &storage.QueryOptions{
		ConversationID:  retrieveOpts.ConversationID,
		MinImportance:   retrieveOpts.MinImportance,
		EmbeddingStatus: storage.EmbeddingCompleted,
		Limit:           candidateLimit,
	})
	if err != nil {
		return nil, NewLayerError("Retrieve", fmt.Errorf("%w: %v", ErrStorageOperation, err))
	}

	ranked, err := c.retriever.Rank(queryEmbedding, candidates, topK)
	if err != nil {
		return nil, NewLayerError("Retrieve", err)
	}

	results := make([]*RankedRecord, len(ranked))
	for i, r := range ranked {
		results[i] = &RankedRecord{
			Record:     fromStorageRecord(r.Record),
			Score:      r.Score,
			Similarity: r.Similarity,
			Decay:      r.Decay,
		}
	}
	return results, nil
}

// Get retrieves a record by ID, scoped to a tenant.
//
// Returns ErrNotFound (wrapped) if the record does not exist or belongs to
// a different tenant.
func (c *Client) Get(ctx context.Context, tenantID string, id int64) (*Record, error) {
	record, err := c.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, NewLayerError("Get", c.mapStorageError(err))
	}
	return fromStorageRecord(record), nil
}

// Update applies a partial update to a record.
//
// A content change re-embeds the record and recomputes its importance
// score; a new importance hint recomputes the score without re-embedding.
// Metadata replaces wholesale.
//
// Parameters:
//   - ctx: Context for cancellation
//   - tenantID: Owning tenant
//   - id: Record ID
//   - opts: What to change (WithNewContent, WithNewMetadata,
//     WithNewImportanceHint)
//
// Returns the updated record.
func (c *Client) Update(ctx context.Context, tenantID string, id int64, opts ...UpdateOption) (*Record, error) {
	updateOpts := applyUpdateOptions(opts)
	if updateOpts.Content == nil && updateOpts.Metadata == nil && updateOpts.ImportanceHint == nil {
		return nil, NewLayerError("Update", fmt.Errorf("%w: nothing to update", ErrInvalidInput))
	}
	if updateOpts.Content != nil && *updateOpts.Content == "" {
		return nil, NewLayerError("Update", fmt.Errorf("%w: content must not be empty", ErrInvalidInput))
	}

	current, err := c.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, NewLayerError("Update", c.mapStorageError(err))
	}

	fields := &storage.RecordUpdate{
		Content:  updateOpts.Content,
		Metadata: updateOpts.Metadata,
	}

	if updateOpts.Content != nil || updateOpts.ImportanceHint != nil {
		score := c.scorer.Score(current.CreatedAt, current.Role, updateOpts.ImportanceHint)
		fields.ImportanceScore = &score
	}
	if updateOpts.Content != nil {
		pending := storage.EmbeddingPending
		fields.EmbeddingStatus = &pending
	}

	updated, err := c.store.Update(ctx, tenantID, id, fields)
	if err != nil {
		return nil, NewLayerError("Update", c.mapStorageError(err))
	}

	if updateOpts.Content != nil {
		c.embedRecord(ctx, updated)
	}
	return fromStorageRecord(updated), nil
}

// Archive marks a record as archived, removing it from retrieval candidates
// while keeping it readable by ID.
func (c *Client) Archive(ctx context.Context, tenantID string, id int64) error {
	archived := true
	_, err := c.store.Update(ctx, tenantID, id, &storage.RecordUpdate{Archived: &archived})
	return NewLayerError("Archive", c.mapStorageError(err))
}

// Unarchive clears a record's archived flag.
func (c *Client) Unarchive(ctx context.Context, tenantID string, id int64) error {
	archived := false
	_, err := c.store.Update(ctx, tenantID, id, &storage.RecordUpdate{Archived: &archived})
	return NewLayerError("Unarchive", c.mapStorageError(err))
}

// Delete removes a record permanently.
func (c *Client) Delete(ctx context.Context, tenantID string, id int64) error {
	return NewLayerError("Delete", c.mapStorageError(c.store.Delete(ctx, tenantID, id)))
}

// RetryEmbedding retries embedding generation for a record whose embedding
// previously failed.
//
// Only records in the failed state are retryable; anything else returns
// ErrEmbeddingNotRetryable. The record moves back to pending before the
// attempt, so the state machine is the same as at ingestion.
func (c *Client) RetryEmbedding(ctx context.Context, tenantID string, id int64) (*Record, error) {
	current, err := c.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, NewLayerError("RetryEmbedding", c.mapStorageError(err))
	}
	if current.EmbeddingStatus != storage.EmbeddingFailed {
		return nil, NewLayerError("RetryEmbedding",
			fmt.Errorf("%w: status is %q", ErrEmbeddingNotRetryable, current.EmbeddingStatus))
	}

	pending := storage.EmbeddingPending
	updated, err := c.store.Update(ctx, tenantID, id, &storage.RecordUpdate{EmbeddingStatus: &pending})
	if err != nil {
		return nil, NewLayerError("RetryEmbedding", c.mapStorageError(err))
	}

	c.embedRecord(ctx, updated)
	return fromStorageRecord(updated), nil
}

// RunRetention executes the tenant's retention rule set.
//
// With dryRun set, the returned result reports what a real run would do
// without changing any state. See the retention package for evaluation
// semantics.
func (c *Client) RunRetention(ctx context.Context, tenantID string, dryRun bool) (*retention.RunResult, error) {
	result, err := c.engine.Run(ctx, tenantID, dryRun)
	if err != nil {
		return result, NewLayerError("RunRetention", err)
	}
	return result, nil
}

// CreateRetentionRule validates and persists a retention rule.
//
// The rule's conditions are parsed against its rule type before the insert,
// so malformed rules are rejected here rather than at run time. A zero ID
// is replaced with a generated one; the assigned ID is written back to the
// rule.
func (c *Client) CreateRetentionRule(ctx context.Context, rule *storage.RetentionRule) error {
	if _, err := retention.ParseRule(rule); err != nil {
		return NewLayerError("CreateRetentionRule", err)
	}
	if rule.ID == 0 {
		rule.ID = c.snowflakeNode.Generate().Int64()
	}
	if err := c.store.CreateRule(ctx, rule); err != nil {
		return NewLayerError("CreateRetentionRule", fmt.Errorf("%w: %v", ErrStorageOperation, err))
	}
	return nil
}

// ListRetentionRules returns the tenant's rules ordered by priority.
func (c *Client) ListRetentionRules(ctx context.Context, tenantID string) ([]*storage.RetentionRule, error) {
	rules, err := c.store.ListRules(ctx, tenantID)
	if err != nil {
		return nil, NewLayerError("ListRetentionRules", fmt.Errorf("%w: %v", ErrStorageOperation, err))
	}
	return rules, nil
}

// DeleteRetentionRule removes a rule.
func (c *Client) DeleteRetentionRule(ctx context.Context, tenantID string, id int64) error {
	return NewLayerError("DeleteRetentionRule", c.mapStorageError(c.store.DeleteRule(ctx, tenantID, id)))
}

// Close waits for background embedding work and releases all resources.
func (c *Client) Close() error {
	c.wg.Wait()
	if c.embeddingCache != nil {
		c.embeddingCache.Close()
	}
	if err := c.embedder.Close(); err != nil {
		return NewLayerError("Close", err)
	}
	return NewLayerError("Close", c.store.Close())
}

// embedRecord computes and persists a record's embedding, updating the
// in-memory record to match.
//
// Outcome mapping:
//   - success: embedding stored, status completed
//   - timeout or cancellation: status stays pending (the attempt may be
//     repeated; nothing is known about the provider's state)
//   - provider error: status failed, retryable via RetryEmbedding
func (c *Client) embedRecord(ctx context.Context, record *storage.Record) {
	embedCtx, cancel := context.WithTimeout(ctx, c.config.EmbedTimeout())
	defer cancel()

	embedding, err := c.embedder.Embed(embedCtx, record.Content)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		c.markEmbeddingFailed(record)
		return
	}

	completed := storage.EmbeddingCompleted
	updated, err := c.store.Update(context.Background(), record.TenantID, record.ID, &storage.RecordUpdate{
		Embedding:       embedding,
		EmbeddingStatus: &completed,
	})
	if err != nil {
		// The record may have been deleted concurrently; nothing to do.
		return
	}
	*record = *updated
}

// embedBatch embeds a group of records in one provider call.
func (c *Client) embedBatch(ctx context.Context, records []*storage.Record) {
	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Content
	}

	embedCtx, cancel := context.WithTimeout(ctx, c.config.EmbedTimeout())
	defer cancel()

	embeddings, err := c.embedder.EmbedBatch(embedCtx, texts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		for _, record := range records {
			c.markEmbeddingFailed(record)
		}
		return
	}

	completed := storage.EmbeddingCompleted
	for i, record := range records {
		updated, err := c.store.Update(context.Background(), record.TenantID, record.ID, &storage.RecordUpdate{
			Embedding:       embeddings[i],
			EmbeddingStatus: &completed,
		})
		if err != nil {
			continue
		}
		*record = *updated
	}
}

func (c *Client) markEmbeddingFailed(record *storage.Record) {
	failed := storage.EmbeddingFailed
	updated, err := c.store.Update(context.Background(), record.TenantID, record.ID, &storage.RecordUpdate{
		EmbeddingStatus: &failed,
	})
	if err != nil {
		return
	}
	*record = *updated
}

// queryEmbedding returns the embedding for a query text, via the cache when
// enabled.
func (c *Client) queryEmbedding(ctx context.Context, tenantID, query string) ([]float64, error) {
	if c.embeddingCache != nil {
		if embedding, ok := c.embeddingCache.Get(tenantID, query); ok {
			return embedding, nil
		}
	}

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if c.embeddingCache != nil {
		c.embeddingCache.Set(tenantID, query, embedding)
	}
	return embedding, nil
}

// mapStorageError translates storage sentinel errors to core sentinels.
func (c *Client) mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageOperation, err)
}

// initStorage creates the configured storage backend.
func initStorage(cfg StorageConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:       cfg.DBPath,
			RecordsTable: cfg.RecordsTable,
			RulesTable:   cfg.RulesTable,
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:         cfg.Host,
			Port:         cfg.Port,
			User:         cfg.User,
			Password:     cfg.Password,
			DBName:       cfg.DBName,
			SSLMode:      cfg.SSLMode,
			RecordsTable: cfg.RecordsTable,
			RulesTable:   cfg.RulesTable,
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:         cfg.Host,
			Port:         cfg.Port,
			User:         cfg.User,
			Password:     cfg.Password,
			DBName:       cfg.DBName,
			RecordsTable: cfg.RecordsTable,
			RulesTable:   cfg.RulesTable,
		})
	default:
		return nil, NewLayerError("NewClient",
			fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, cfg.Provider))
	}
}

// initEmbedder creates the configured embedding provider.
func initEmbedder(cfg EmbeddingConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "mock":
		dims := cfg.Dimensions
		if dims == 0 {
			dims = DefaultEmbeddingDimensions
		}
		return mockEmbedder.NewProvider(dims), nil
	default:
		return nil, NewLayerError("NewClient",
			fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, cfg.Provider))
	}
}

// initScorer builds the importance scorer from config; all-zero weights
// select the defaults.
func initScorer(cfg ScoringConfig) (*scoring.Scorer, error) {
	weights := scoring.Weights{
		Recency:  cfg.RecencyWeight,
		Role:     cfg.RoleWeight,
		Explicit: cfg.ExplicitWeight,
	}
	if weights.Recency == 0 && weights.Role == 0 && weights.Explicit == 0 {
		weights = scoring.DefaultWeights()
	}

	var opts []scoring.Option
	if cfg.RecencyWindowHours > 0 {
		opts = append(opts, scoring.WithRecencyWindow(time.Duration(cfg.RecencyWindowHours)*time.Hour))
	}
	return scoring.NewScorer(weights, opts...)
}

// initRetriever builds the retriever from config; all-zero composite
// weights select the defaults, and a negative half-life disables decay.
func initRetriever(cfg RetrievalConfig) (*retrieval.Retriever, error) {
	var opts []retrieval.Option

	if cfg.SimilarityWeight != 0 || cfg.DecayWeight != 0 || cfg.ImportanceWeight != 0 {
		scorer, err := retrieval.NewWeightedScorer(cfg.SimilarityWeight, cfg.DecayWeight, cfg.ImportanceWeight)
		if err != nil {
			return nil, err
		}
		opts = append(opts, retrieval.WithCompositeScorer(scorer))
	}

	if cfg.HalfLifeHours < 0 {
		opts = append(opts, retrieval.WithHalfLife(0))
	} else if cfg.HalfLifeHours > 0 {
		opts = append(opts, retrieval.WithHalfLife(time.Duration(cfg.HalfLifeHours*float64(time.Hour))))
	}

	return retrieval.NewRetriever(opts...), nil
}
