package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Enhancement providers.
const (
	ProviderCompletion = "completion"
	ProviderOpenAI     = "openai"
)

// Dedup modes.
const (
	DedupExact = "exact"
	DedupBloom = "bloom"
)

// Config holds the complete application configuration, loadable from
// environment variables (CATALOG_ prefix), flags, or YAML config files.
type Config struct {
	Addr     string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Schedule string `default:"0 0 * * *" usage:"Cron spec of the scheduled run (UTC); empty disables it"`
	Feed     FeedConfig
	Storage  StorageConfig
	Enrich   EnrichConfig
	Lock     LockConfig
	Graceful GracefulConfig
}

// FeedConfig controls ingestion.
type FeedConfig struct {
	Path               string  `default:"data/data.txt" usage:"Feed file; .gz feeds are decompressed"`
	Dedup              string  `default:"exact" usage:"Dedup tracker: exact or bloom"`
	BloomCapacity      uint    `default:"10000000" usage:"Expected distinct rows for the bloom tracker" flag:"bloom-capacity"`
	BloomFPRate        float64 `default:"0.001" usage:"Bloom tracker false-positive rate" flag:"bloom-fp-rate"`
	MaxPersistFailures int     `default:"0" usage:"Abort a run after this many failed rows; 0 means never" flag:"max-persist-failures"`
}

// StorageConfig selects the product store.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Store driver: postgres or badger"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CATALOG_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	BadgerDir   string `default:"data/badger" usage:"Badger data directory" flag:"badger-dir"`
}

// EnrichConfig controls the enrichment job and its text generation backend.
type EnrichConfig struct {
	Provider    string        `default:"completion" usage:"Enhancement backend: completion or openai"`
	URL         string        `usage:"Completion endpoint, or OpenAI-compatible base URL (OPENAPI_URL)"`
	Token       string        `usage:"Bearer token of the text generation service (OPENAPI_API)"`
	Model       string        `usage:"Chat model for the openai provider"`
	Temperature float64       `default:"0.7" usage:"Sampling temperature for the openai provider"`
	BatchSize   int           `default:"10" usage:"Products enriched per run" flag:"batch-size"`
	FailFast    bool          `default:"true" usage:"Stop enrichment at the first failure" flag:"fail-fast"`
	Timeout     time.Duration `default:"60s" usage:"Text generation request timeout"`
}

// LockConfig configures the cross-replica run lock.
type LockConfig struct {
	RedisAddr string        `usage:"Redis address; empty guards runs within the process only" flag:"redis-addr"`
	Key       string        `default:"catalog:run" usage:"Redis lock key"`
	TTL       time.Duration `default:"1h" usage:"Lock expiry for crashed holders"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads and validates configuration from flags, environment
// variables and YAML config files.
func LoadConfig() (*Config, error) {
	cfg, err := load(false)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvConfig loads configuration without command line flags, for binaries
// that parse their own. The caller applies its overrides and then calls
// Validate.
func LoadEnvConfig() (*Config, error) {
	return load(true)
}

func load(skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CATALOG",
		SkipFlags: skipFlags,
		Files:     []string{"config.yaml", "/etc/catalog/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

// Validate checks option combinations.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set CATALOG_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverBadger:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Enrich.Provider {
	case ProviderCompletion:
		if c.Enrich.URL == "" {
			return errors.New("enhancement URL is required: set CATALOG_ENRICH_URL or OPENAPI_URL")
		}
	case ProviderOpenAI:
	default:
		return errors.Errorf("unknown enhancement provider %q", c.Enrich.Provider)
	}

	switch c.Feed.Dedup {
	case DedupExact:
	case DedupBloom:
		if c.Feed.BloomCapacity == 0 || c.Feed.BloomFPRate <= 0 || c.Feed.BloomFPRate >= 1 {
			return errors.New("bloom dedup needs a positive capacity and a false-positive rate in (0, 1)")
		}
	default:
		return errors.Errorf("unknown dedup mode %q", c.Feed.Dedup)
	}
	return nil
}

// applyPlatformDefaults maps the unprefixed variable names used by hosting
// platforms and earlier deployments onto the configuration.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst != "" {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	fallback(&c.Storage.DatabaseURL, "DATABASE_URL")
	fallback(&c.Enrich.URL, "OPENAPI_URL")
	fallback(&c.Enrich.Token, "OPENAPI_API")

	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
