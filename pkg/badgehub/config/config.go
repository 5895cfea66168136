package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/badgeteam/badgehub/pkg/badgehub"
	repomemory "github.com/badgeteam/badgehub/pkg/badgehub/repo/memory"
	repopg "github.com/badgeteam/badgehub/pkg/badgehub/repo/postgres"
	fsstorage "github.com/badgeteam/badgehub/pkg/badgehub/storage/fs"
	memorystorage "github.com/badgeteam/badgehub/pkg/badgehub/storage/memory"
	s3storage "github.com/badgeteam/badgehub/pkg/badgehub/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top
// of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:        "8080",
		Environment: "development",
		StorageURL:  "memory://",
		Badges:      []string{"why2025", "mch2022", "troopers23"},
		Categories: []string{
			"Uncategorised", "Event related", "Games", "Graphics",
			"Hardware", "Utility", "Wearable", "Data", "Silly",
			"Hacking", "Troll", "Unusable", "Adult", "Interpreter",
		},
		InstallCountRefreshInterval: 15 * time.Minute,
	}
}

// ServerConfig represents server configuration for the badgehub service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// DatabaseURL selects the metadata repository: empty or "memory" for
	// the in-memory repository, a postgres:// URL for Postgres.
	DatabaseURL string

	// StorageURL selects the blob store:
	//   memory://            - in-memory storage
	//   file:///path/to/data - filesystem storage
	//   s3://bucket?region=… - S3 or S3-compatible storage
	StorageURL string

	// JWTSecret is the HS256 secret shared with the identity provider.
	JWTSecret string

	// Vocabularies served to clients and enforced on draft metadata.
	Badges     []string
	Categories []string

	// InstallCountRefreshInterval is the cadence of the install-count
	// aggregate rebuild.
	InstallCountRefreshInterval time.Duration
}

// WithPort sets the HTTP listen port.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port != "" {
			c.Port = port
		}
		return nil
	}
}

// WithEnvironment sets the runtime environment name.
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env != "" {
			c.Environment = env
		}
		return nil
	}
}

// WithDatabaseURL sets the metadata repository connection string.
func WithDatabaseURL(databaseURL string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseURL = databaseURL
		return nil
	}
}

// WithStorageURL sets the blob store location.
func WithStorageURL(storageURL string) Option {
	return func(c *ServerConfig) error {
		if storageURL != "" {
			c.StorageURL = storageURL
		}
		return nil
	}
}

// WithJWTSecret sets the token verification secret.
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithBadges overrides the badge-device vocabulary.
func WithBadges(badges []string) Option {
	return func(c *ServerConfig) error {
		if len(badges) > 0 {
			c.Badges = badges
		}
		return nil
	}
}

// WithCategories overrides the category vocabulary.
func WithCategories(categories []string) Option {
	return func(c *ServerConfig) error {
		if len(categories) > 0 {
			c.Categories = categories
		}
		return nil
	}
}

// WithRefreshInterval sets the install-count rebuild cadence.
func WithRefreshInterval(interval time.Duration) Option {
	return func(c *ServerConfig) error {
		if interval < 0 {
			return errors.New("refresh interval must not be negative")
		}
		if interval > 0 {
			c.InstallCountRefreshInterval = interval
		}
		return nil
	}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseURL != "" && c.DatabaseURL != "memory" && !isPostgresURL(c.DatabaseURL) {
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", c.DatabaseURL)
	}
	switch {
	case c.StorageURL == "memory" || c.StorageURL == "memory://":
	case strings.HasPrefix(c.StorageURL, "file://"):
	case strings.HasPrefix(c.StorageURL, "s3://"):
	default:
		return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", c.StorageURL)
	}
	if c.Environment == "production" && c.JWTSecret == "" {
		return errors.New("jwt secret is required in production")
	}
	return nil
}

func isPostgresURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") ||
		strings.HasPrefix(databaseURL, "postgresql://")
}

// UsesPostgres reports whether the configuration selects the Postgres
// repository.
func (c *ServerConfig) UsesPostgres() bool {
	return isPostgresURL(c.DatabaseURL)
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context) (badgehub.Service, error) {
	repo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.buildBlobStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build blob store: %w", err)
	}

	return badgehub.New(
		badgehub.WithRepository(repo),
		badgehub.WithBlobStore(store),
		badgehub.WithBadges(c.Badges...),
		badgehub.WithCategories(c.Categories...),
	)
}

// buildRepository creates a MetadataRepository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (badgehub.MetadataRepository, error) {
	if !c.UsesPostgres() {
		return repomemory.New(), nil
	}

	pool, err := pgxpool.New(ctx, c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return repopg.NewWithPool(pool), nil
}

// buildBlobStore creates a BlobStore based on the storage URL
func (c *ServerConfig) buildBlobStore() (badgehub.BlobStore, error) {
	switch {
	case c.StorageURL == "memory" || c.StorageURL == "memory://":
		return memorystorage.New(), nil

	case strings.HasPrefix(c.StorageURL, "file://"):
		baseDir := strings.TrimPrefix(c.StorageURL, "file://")
		if baseDir == "" {
			return nil, errors.New("filesystem path cannot be empty in STORAGE_URL")
		}
		return fsstorage.New(fsstorage.Config{BaseDir: baseDir})

	case strings.HasPrefix(c.StorageURL, "s3://"):
		parsed, err := url.Parse(c.StorageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse STORAGE_URL: %w", err)
		}
		if parsed.Host == "" {
			return nil, errors.New("S3 bucket name cannot be empty in STORAGE_URL")
		}
		query := parsed.Query()
		return s3storage.New(s3storage.Config{
			Bucket:                 parsed.Host,
			Region:                 query.Get("region"),
			Endpoint:               query.Get("endpoint"),
			AccessKeyID:            query.Get("access_key_id"),
			SecretAccessKey:        query.Get("secret_access_key"),
			UsePathStyle:           query.Get("path_style") == "true",
			CreateBucketIfNotExist: query.Get("create_bucket") == "true",
		})

	default:
		return nil, fmt.Errorf("unsupported STORAGE_URL format: %s", c.StorageURL)
	}
}

// PingPostgres verifies connectivity to Postgres.
func PingPostgres(ctx context.Context, databaseURL string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
