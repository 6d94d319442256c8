package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a memlayer client.
//
// It includes settings for:
//   - Storage backend (for record and rule persistence)
//   - Embedding provider (for vector generation)
//   - Importance scoring (weights and recency window)
//   - Retrieval (composite weights, decay half-life, limits)
//   - Query embedding cache (optional)
//
// Example:
//
//	config := &core.Config{
//	    Storage: core.StorageConfig{
//	        Provider: "sqlite",
//	        DBPath:   "./memlayer.db",
//	    },
//	    Embedding: core.EmbeddingConfig{
//	        Provider:   "openai",
//	        APIKey:     "sk-...",
//	        Dimensions: 1536,
//	    },
//	}
type Config struct {
	// Storage contains storage backend configuration.
	Storage StorageConfig `json:"storage"`

	// Embedding contains embedding provider configuration.
	Embedding EmbeddingConfig `json:"embedding"`

	// Scoring contains importance scoring configuration.
	Scoring ScoringConfig `json:"scoring"`

	// Retrieval contains ranking configuration.
	Retrieval RetrievalConfig `json:"retrieval"`

	// Cache contains query embedding cache configuration.
	Cache CacheConfig `json:"cache"`
}

// StorageConfig contains configuration for the storage backend.
//
// Supported providers: sqlite, postgres, mysql
type StorageConfig struct {
	// Provider is the storage backend name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// DBPath is the database file path (sqlite only).
	DBPath string `json:"db_path,omitempty"`

	// Host, Port, User, Password, DBName configure the server-based
	// backends (postgres, mysql).
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	DBName   string `json:"db_name,omitempty"`

	// SSLMode sets the connection SSL mode (postgres only, default "disable").
	SSLMode string `json:"ssl_mode,omitempty"`

	// RecordsTable overrides the records table name (default "records").
	RecordsTable string `json:"records_table,omitempty"`

	// RulesTable overrides the retention rules table name
	// (default "retention_rules").
	RulesTable string `json:"rules_table,omitempty"`
}

// EmbeddingConfig contains configuration for the embedding provider.
//
// Supported providers: openai, mock
type EmbeddingConfig struct {
	// Provider is the embedding provider name (openai, mock).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key,omitempty"`

	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string `json:"model,omitempty"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the embedding vector size (default 1536).
	Dimensions int `json:"dimensions,omitempty"`

	// TimeoutSeconds bounds a single embedding call during ingestion
	// (default 10). On timeout the record stays pending.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`

	// Async computes embeddings in the background: Ingest returns as soon
	// as the record is persisted with a pending embedding.
	Async bool `json:"async,omitempty"`
}

// ScoringConfig contains configuration for importance scoring.
//
// All-zero weights mean the defaults (recency 0.4, role 0.2, explicit 0.4).
type ScoringConfig struct {
	// RecencyWeight, RoleWeight, ExplicitWeight are the component weights.
	// They are normalized, so only their ratio matters.
	RecencyWeight  float64 `json:"recency_weight,omitempty"`
	RoleWeight     float64 `json:"role_weight,omitempty"`
	ExplicitWeight float64 `json:"explicit_weight,omitempty"`

	// RecencyWindowHours is the window over which the recency component
	// falls linearly from 1 to 0 (default 24).
	RecencyWindowHours int `json:"recency_window_hours,omitempty"`
}

// RetrievalConfig contains configuration for retrieval ranking.
//
// All-zero composite weights mean the defaults (similarity 0.6, decay 0.2,
// importance 0.2).
type RetrievalConfig struct {
	// SimilarityWeight, DecayWeight, ImportanceWeight are the composite
	// score weights. They are normalized, so only their ratio matters.
	SimilarityWeight float64 `json:"similarity_weight,omitempty"`
	DecayWeight      float64 `json:"decay_weight,omitempty"`
	ImportanceWeight float64 `json:"importance_weight,omitempty"`

	// HalfLifeHours is the decay half-life (default 24). A negative value
	// disables decay.
	HalfLifeHours float64 `json:"half_life_hours,omitempty"`

	// DefaultTopK is the result count when a Retrieve call does not set
	// one (default 8).
	DefaultTopK int `json:"default_top_k,omitempty"`

	// CandidateLimit caps how many stored records are loaded as ranking
	// candidates per query (default 64, 0 keeps the default; negative
	// means no cap).
	CandidateLimit int `json:"candidate_limit,omitempty"`
}

// CacheConfig contains configuration for the query embedding cache.
type CacheConfig struct {
	// Enabled turns the cache on.
	Enabled bool `json:"enabled"`

	// MaxCostBytes bounds the total cached vector bytes (default 64 MiB).
	MaxCostBytes int64 `json:"max_cost_bytes,omitempty"`

	// TTLSeconds is the entry lifetime (default 300).
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

// Defaults applied where the configuration leaves values unset.
const (
	DefaultEmbeddingDimensions = 1536
	DefaultEmbeddingTimeout    = 10 * time.Second
	DefaultTopK                = 8
	DefaultCandidateLimit      = 64
)

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMS, EMBEDDING_TIMEOUT_SECONDS,
//     EMBEDDING_ASYNC
//   - MEMORY_RECENCY_WEIGHT, MEMORY_ROLE_WEIGHT, MEMORY_EXPLICIT_WEIGHT,
//     MEMORY_RECENCY_WINDOW_HOURS
//   - RETRIEVAL_TOP_K, RETRIEVAL_CANDIDATE_LIMIT, RETRIEVAL_HALF_LIFE_HOURS
//   - CACHE_ENABLED, CACHE_TTL_SECONDS
//
// Returns a Config instance, or an error if loading fails.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	storageConfig := StorageConfig{Provider: provider}
	switch provider {
	case "sqlite":
		storageConfig.DBPath = getEnvOrDefault("SQLITE_PATH", "./memlayer.db")
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storageConfig.Host = getEnvOrDefault("POSTGRES_HOST", "localhost")
		storageConfig.Port = port
		storageConfig.User = getEnvOrDefault("POSTGRES_USER", "postgres")
		storageConfig.Password = os.Getenv("POSTGRES_PASSWORD")
		storageConfig.DBName = getEnvOrDefault("POSTGRES_DATABASE", "memlayer")
		storageConfig.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storageConfig.Host = getEnvOrDefault("MYSQL_HOST", "localhost")
		storageConfig.Port = port
		storageConfig.User = getEnvOrDefault("MYSQL_USER", "root")
		storageConfig.Password = os.Getenv("MYSQL_PASSWORD")
		storageConfig.DBName = getEnvOrDefault("MYSQL_DATABASE", "memlayer")
	}

	embeddingProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	embeddingModel := os.Getenv("EMBEDDING_MODEL")
	if embeddingModel == "" && embeddingProvider == "openai" {
		embeddingModel = "text-embedding-3-small"
	}
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMS", "1536"))
	embedTimeout, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_TIMEOUT_SECONDS", "10"))

	recencyWeight, _ := strconv.ParseFloat(getEnvOrDefault("MEMORY_RECENCY_WEIGHT", "0"), 64)
	roleWeight, _ := strconv.ParseFloat(getEnvOrDefault("MEMORY_ROLE_WEIGHT", "0"), 64)
	explicitWeight, _ := strconv.ParseFloat(getEnvOrDefault("MEMORY_EXPLICIT_WEIGHT", "0"), 64)
	recencyWindow, _ := strconv.Atoi(getEnvOrDefault("MEMORY_RECENCY_WINDOW_HOURS", "0"))

	topK, _ := strconv.Atoi(getEnvOrDefault("RETRIEVAL_TOP_K", "0"))
	candidateLimit, _ := strconv.Atoi(getEnvOrDefault("RETRIEVAL_CANDIDATE_LIMIT", "0"))
	halfLife, _ := strconv.ParseFloat(getEnvOrDefault("RETRIEVAL_HALF_LIFE_HOURS", "0"), 64)

	cacheTTL, _ := strconv.Atoi(getEnvOrDefault("CACHE_TTL_SECONDS", "0"))

	config := &Config{
		Storage: storageConfig,
		Embedding: EmbeddingConfig{
			Provider:       embeddingProvider,
			APIKey:         os.Getenv("EMBEDDING_API_KEY"),
			Model:          embeddingModel,
			BaseURL:        os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions:     dims,
			TimeoutSeconds: embedTimeout,
			Async:          os.Getenv("EMBEDDING_ASYNC") == "true",
		},
		Scoring: ScoringConfig{
			RecencyWeight:      recencyWeight,
			RoleWeight:         roleWeight,
			ExplicitWeight:     explicitWeight,
			RecencyWindowHours: recencyWindow,
		},
		Retrieval: RetrievalConfig{
			DefaultTopK:    topK,
			CandidateLimit: candidateLimit,
			HalfLifeHours:  halfLife,
		},
		Cache: CacheConfig{
			Enabled:    os.Getenv("CACHE_ENABLED") == "true",
			TTLSeconds: cacheTTL,
		},
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewLayerError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewLayerError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that:
//   - The storage provider is one of sqlite, postgres, mysql
//   - The embedding provider is one of openai, mock
//   - Embedding dimensions are non-negative
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "sqlite", "postgres", "mysql":
	default:
		return NewLayerError("Validate",
			fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, c.Storage.Provider))
	}

	switch c.Embedding.Provider {
	case "openai", "mock":
	default:
		return NewLayerError("Validate",
			fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider))
	}

	if c.Embedding.Dimensions < 0 {
		return NewLayerError("Validate",
			fmt.Errorf("%w: embedding dimensions must not be negative", ErrInvalidConfig))
	}

	return nil
}

// EmbedTimeout returns the configured per-call embedding timeout.
func (c *Config) EmbedTimeout() time.Duration {
	if c.Embedding.TimeoutSeconds <= 0 {
		return DefaultEmbeddingTimeout
	}
	return time.Duration(c.Embedding.TimeoutSeconds) * time.Second
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
