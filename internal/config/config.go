// Package config loads process configuration from environment variables,
// with an optional YAML file providing defaults that the environment can
// still override.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the full set of recognized options (spec.md section 6).
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Debug     DebugConfig     `yaml:"debug"`
	Provider  ProviderConfig  `yaml:"provider"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Retry     RetryConfig     `yaml:"retry"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Price     PriceConfig     `yaml:"price"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	API       APIConfig       `yaml:"api"`
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOGGING_LEVEL"`
}

type DebugConfig struct {
	ListenAddress string `yaml:"address" envconfig:"DEBUG_ADDRESS"`
	ListenPort    uint   `yaml:"port"    envconfig:"DEBUG_PORT"`
}

// ProviderConfig configures the Upstream Transaction Provider client.
type ProviderConfig struct {
	BaseURL    string   `yaml:"baseUrl"    envconfig:"HELIUS_BASE_URL"`
	APIKey     string   `yaml:"apiKey"     envconfig:"HELIUS_API_KEY"`
	TimeoutMs  uint     `yaml:"timeoutMs"  envconfig:"INDEXER_TIMEOUT_MS"`
	PageLimit  uint     `yaml:"pageLimit"  envconfig:"INDEXER_PAGE_LIMIT"`
	MaxPages   uint     `yaml:"maxPages"   envconfig:"MAX_PAGES"`
	AMMProgram []string `yaml:"ammProgramAllowList" envconfig:"AMM_PROGRAM_ALLOWLIST"`
}

func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// StorageConfig configures the durable store. DSN is optional; when empty,
// a local sqlite file under Directory is used.
type StorageConfig struct {
	Directory string `yaml:"dir" envconfig:"STORAGE_DIR"`
	DSN       string `yaml:"dsn" envconfig:"DATABASE_URL"`
}

// RateLimitConfig bounds the shared provider and resolver work queues.
type RateLimitConfig struct {
	ProviderConcurrency   int     `yaml:"providerConcurrency"   envconfig:"PROVIDER_QUEUE_CONCURRENCY"`
	ProviderRatePerSecond float64 `yaml:"providerRatePerSecond" envconfig:"PROVIDER_QUEUE_RPS"`
	MetadataConcurrency   int     `yaml:"metadataConcurrency"   envconfig:"METADATA_QUEUE_CONCURRENCY"`
	MetadataRatePerSecond float64 `yaml:"metadataRatePerSecond" envconfig:"METADATA_QUEUE_RPS"`
}

// RetryConfig is the exponential-backoff-with-jitter policy for
// UpstreamTransient failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts" envconfig:"RETRY_MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"baseDelay"   envconfig:"RETRY_BASE_DELAY"`
	Factor      float64       `yaml:"factor"      envconfig:"RETRY_FACTOR"`
	MaxDelay    time.Duration `yaml:"maxDelay"    envconfig:"RETRY_MAX_DELAY"`
}

type IndexerConfig struct {
	ReconcileWindowSlots uint64        `yaml:"reconcileWindowSlots" envconfig:"RECONCILE_WINDOW_SLOTS"`
	ReconcileChunkSlots  uint64        `yaml:"reconcileChunkSlots"  envconfig:"RECONCILE_CHUNK_SLOTS"`
	ReconcilePause       time.Duration `yaml:"reconcilePause"       envconfig:"RECONCILE_PAUSE"`
}

// PriceConfig selects which Price Oracle implementation backs the service.
type PriceConfig struct {
	Provider   string `yaml:"provider"   envconfig:"PRICE_PROVIDER"`
	BaseURLA   string `yaml:"baseUrlA"   envconfig:"ORACLE_A_BASE_URL"`
	BaseURLB   string `yaml:"baseUrlB"   envconfig:"ORACLE_B_BASE_URL"`
	TimeoutMs  uint   `yaml:"timeoutMs"  envconfig:"ORACLE_TIMEOUT_MS"`
}

func (c PriceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// MetadataConfig configures the Token Metadata Resolver's upstream sources,
// tried in order after the built-in local table: resolver-A, then
// resolver-B, then resolver-C, per spec.md section 3's TokenMeta.source
// enum.
type MetadataConfig struct {
	ResolverABaseURL string `yaml:"resolverABaseUrl" envconfig:"RESOLVER_A_BASE_URL"`
	ResolverBBaseURL string `yaml:"resolverBBaseUrl" envconfig:"RESOLVER_B_BASE_URL"`
	ResolverCBaseURL string `yaml:"resolverCBaseUrl" envconfig:"RESOLVER_C_BASE_URL"`
	TimeoutMs        uint   `yaml:"timeoutMs"        envconfig:"RESOLVER_TIMEOUT_MS"`
}

func (c MetadataConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// APIConfig configures the read-only HTTP/WebSocket front-end, including
// its in-process request-dedup/result cache (spec.md section 5: "this
// belongs to the request front-end, not to the core").
type APIConfig struct {
	ListenAddress  string        `yaml:"address"  envconfig:"API_ADDRESS"`
	ListenPort     uint          `yaml:"port"      envconfig:"API_PORT"`
	CacheDir       string        `yaml:"cacheDir"  envconfig:"API_CACHE_DIR"`
	CacheTTL       time.Duration `yaml:"cacheTtl"  envconfig:"API_CACHE_TTL"`
}

// globalConfig carries defaults; Load overlays a YAML file then the
// environment, matching the teacher's singleton-config idiom.
var globalConfig = &Config{
	Logging: LoggingConfig{Level: "info"},
	Debug: DebugConfig{
		ListenAddress: "localhost",
		ListenPort:    0,
	},
	Provider: ProviderConfig{
		BaseURL:   "https://api.helius.xyz",
		TimeoutMs: 20000,
		PageLimit: 1000,
		MaxPages:  1000,
		AMMProgram: []string{
			"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8", // Raydium AMM v4
			"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",  // Orca Whirlpools
			"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK", // Raydium CLMM
			"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",  // Jupiter aggregator v6
		},
	},
	Storage: StorageConfig{
		Directory: "./.walletindexer",
	},
	RateLimit: RateLimitConfig{
		ProviderConcurrency:   2,
		ProviderRatePerSecond: 2,
		MetadataConcurrency:   4,
		MetadataRatePerSecond: 10,
	},
	Retry: RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Factor:      2,
		MaxDelay:    10 * time.Second,
	},
	Indexer: IndexerConfig{
		ReconcileWindowSlots: 10_000,
		ReconcileChunkSlots:  1_000,
		ReconcilePause:       250 * time.Millisecond,
	},
	Price: PriceConfig{
		Provider:  "oracle-a",
		BaseURLA:  "https://oracle-a.example.com",
		BaseURLB:  "https://oracle-b.example.com",
		TimeoutMs: 10000,
	},
	Metadata: MetadataConfig{
		ResolverABaseURL: "https://resolver-a.example.com",
		ResolverBBaseURL: "https://resolver-b.example.com",
		ResolverCBaseURL: "https://resolver-c.example.com",
		TimeoutMs:        10000,
	},
	API: APIConfig{
		ListenAddress: "localhost",
		ListenPort:    8080,
		CacheDir:      "./.walletindexer/apicache",
		CacheTTL:      30 * time.Second,
	},
}

// Load reads an optional YAML config file, then overlays environment
// variables, and returns the resolved configuration.
func Load(configFile string) (*Config, error) {
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// "dummy" app name keeps envconfig from picking up unrelated env vars
	// not explicitly annotated above.
	if err := envconfig.Process("dummy", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if globalConfig.Provider.APIKey == "" {
		return nil, fmt.Errorf("HELIUS_API_KEY is required")
	}
	if globalConfig.Price.Provider != "oracle-a" && globalConfig.Price.Provider != "oracle-b" {
		return nil, fmt.Errorf("unknown price provider: %s", globalConfig.Price.Provider)
	}
	return globalConfig, nil
}

// GetConfig returns the global configuration instance.
func GetConfig() *Config {
	return globalConfig
}
