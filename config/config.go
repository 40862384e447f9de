// Package config loads process configuration with viper/godotenv, the same
// pair the teacher uses, but returns an explicit *Config the caller threads
// through the application container instead of leaving settings as
// viper package-level global state.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL        string
	TokenEncryptionKey string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string

	CollectorInterval time.Duration

	InitialSyncEnabled     bool
	InitialSyncMaxDays     int
	InitialSyncMaxReqs     int
	InitialSyncConcurrency int

	ImportMaxZipSizeMB int64
	ImportMaxRecords   int
	ImportBatchSize    int
	ImportUploadDir    string

	SpotifyConcurrency int
	RateLimitBudget    int

	EnrichEnabled   bool
	EnrichBatchSize int

	ServerPort      string
	ServerHost      string
	MCPSharedSecret string
}

// Load mirrors the teacher's config.Load: godotenv first, then viper
// defaults, env binding, and a fail-fast check on the variables that have
// no sane default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it. Using environment variables.")
	}

	viper.SetDefault("database_url", "./data/collector.db")
	viper.SetDefault("collector_interval_seconds", 600)
	viper.SetDefault("initial_sync_enabled", true)
	viper.SetDefault("initial_sync_max_days", 30)
	viper.SetDefault("initial_sync_max_requests", 200)
	viper.SetDefault("initial_sync_concurrency", 2)
	viper.SetDefault("import_max_zip_size_mb", 500)
	viper.SetDefault("import_max_records", 5_000_000)
	viper.SetDefault("import_batch_size", 5000)
	viper.SetDefault("import_upload_dir", "./data/uploads")
	viper.SetDefault("spotify_concurrency", 4)
	viper.SetDefault("rate_limit_budget", 5)
	viper.SetDefault("enrich_enabled", true)
	viper.SetDefault("enrich_batch_size", 25)
	viper.SetDefault("server_port", "8080")
	viper.SetDefault("server_host", "localhost")
	viper.SetDefault("spotify_redirect_uri", "http://localhost:8080/callback/spotify")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
		log.Println("Config file not found, using defaults and environment variables")
	} else {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}

	required := []string{"spotify_client_id", "spotify_client_secret", "token_encryption_key"}
	var missing []string
	for _, v := range required {
		if !viper.IsSet(v) {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: required variables not set: %s", strings.Join(missing, ", "))
	}

	return &Config{
		DatabaseURL:            viper.GetString("database_url"),
		TokenEncryptionKey:     viper.GetString("token_encryption_key"),
		SpotifyClientID:        viper.GetString("spotify_client_id"),
		SpotifyClientSecret:    viper.GetString("spotify_client_secret"),
		SpotifyRedirectURI:     viper.GetString("spotify_redirect_uri"),
		CollectorInterval:      time.Duration(viper.GetInt("collector_interval_seconds")) * time.Second,
		InitialSyncEnabled:     viper.GetBool("initial_sync_enabled"),
		InitialSyncMaxDays:     viper.GetInt("initial_sync_max_days"),
		InitialSyncMaxReqs:     viper.GetInt("initial_sync_max_requests"),
		InitialSyncConcurrency: viper.GetInt("initial_sync_concurrency"),
		ImportMaxZipSizeMB:     viper.GetInt64("import_max_zip_size_mb"),
		ImportMaxRecords:       viper.GetInt("import_max_records"),
		ImportBatchSize:        viper.GetInt("import_batch_size"),
		ImportUploadDir:        viper.GetString("import_upload_dir"),
		SpotifyConcurrency:     viper.GetInt("spotify_concurrency"),
		RateLimitBudget:        viper.GetInt("rate_limit_budget"),
		EnrichEnabled:          viper.GetBool("enrich_enabled"),
		EnrichBatchSize:        viper.GetInt("enrich_batch_size"),
		ServerPort:             viper.GetString("server_port"),
		ServerHost:             viper.GetString("server_host"),
		MCPSharedSecret:        viper.GetString("mcp_shared_secret"),
	}, nil
}
