package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultMaxKMLSize is the maximum accepted size of a KML payload in bytes.
	DefaultMaxKMLSize = 2 * 1024 * 1024

	// NoCache is the default Cache-Control policy for successful GET responses.
	// https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Cache-Control#preventing_caching
	NoCache = "no-cache, no-store, must-revalidate"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Metadata MetadataConfig
	KML      KMLConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	RoutePrefix     string
	AllowedDomains  []string
	CacheControl    string
	CacheControl4xx string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// StorageConfig configures the S3-compatible object store holding the
// gzipped KML bodies.
type StorageConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool

	// HostURL is the public base URL used to build the kml link of a
	// document. When empty the request host URL is used instead.
	HostURL string
}

// MetadataConfig configures the metadata store. Backend is either "mongo"
// (the default) or "sqlite" for single-node deployments.
type MetadataConfig struct {
	Backend    string
	MongoURI   string
	Database   string
	Collection string
	SQLitePath string
	Timeout    time.Duration
}

type KMLConfig struct {
	MaxSize              int64
	DefaultAuthorVersion string
}

// Load reads configuration from environment variables, optionally seeded
// from a .env file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	viper.AutomaticEnv()

	viper.SetDefault("HTTP_HOST", "0.0.0.0")
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("ROUTE_PREFIX", "")
	viper.SetDefault("ALLOWED_DOMAINS", ".*")
	viper.SetDefault("CACHE_CONTROL", NoCache)
	viper.SetDefault("CACHE_CONTROL_4XX", "public, max-age=3600")
	viper.SetDefault("S3_REGION", "eu-west-1")
	viper.SetDefault("S3_USE_SSL", true)
	viper.SetDefault("METADATA_BACKEND", "mongo")
	viper.SetDefault("MONGO_DATABASE", "kmlstore")
	viper.SetDefault("MONGO_COLLECTION", "kml_files")
	viper.SetDefault("SQLITE_PATH", "build/kmlstore.db")
	viper.SetDefault("METADATA_TIMEOUT_SECONDS", 10)
	viper.SetDefault("KML_MAX_SIZE", DefaultMaxKMLSize)
	viper.SetDefault("DEFAULT_AUTHOR_VERSION", "0.0.0")

	cfg := &Config{
		Server: ServerConfig{
			Host:            viper.GetString("HTTP_HOST"),
			Port:            viper.GetString("HTTP_PORT"),
			RoutePrefix:     viper.GetString("ROUTE_PREFIX"),
			AllowedDomains:  strings.Split(viper.GetString("ALLOWED_DOMAINS"), ","),
			CacheControl:    viper.GetString("CACHE_CONTROL"),
			CacheControl4xx: viper.GetString("CACHE_CONTROL_4XX"),
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
		},
		Storage: StorageConfig{
			Endpoint:  viper.GetString("S3_ENDPOINT"),
			Region:    viper.GetString("S3_REGION"),
			Bucket:    viper.GetString("S3_BUCKET_NAME"),
			AccessKey: viper.GetString("S3_ACCESS_KEY"),
			SecretKey: viper.GetString("S3_SECRET_KEY"),
			UseSSL:    viper.GetBool("S3_USE_SSL"),
			HostURL:   strings.TrimRight(viper.GetString("KML_STORAGE_HOST_URL"), "/"),
		},
		Metadata: MetadataConfig{
			Backend:    viper.GetString("METADATA_BACKEND"),
			MongoURI:   viper.GetString("MONGO_URI"),
			Database:   viper.GetString("MONGO_DATABASE"),
			Collection: viper.GetString("MONGO_COLLECTION"),
			SQLitePath: viper.GetString("SQLITE_PATH"),
			Timeout:    time.Duration(viper.GetInt("METADATA_TIMEOUT_SECONDS")) * time.Second,
		},
		KML: KMLConfig{
			MaxSize:              viper.GetInt64("KML_MAX_SIZE"),
			DefaultAuthorVersion: viper.GetString("DEFAULT_AUTHOR_VERSION"),
		},
	}

	if cfg.Storage.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET_NAME is required")
	}
	if cfg.Metadata.Backend == "mongo" && cfg.Metadata.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required for the mongo metadata backend")
	}

	return cfg, nil
}
