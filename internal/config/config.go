// Package config loads CLI configuration from flags, environment variables,
// .env files, and an optional YAML config file, in that order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/policysync/pkg/constants"
)

// Backend names accepted for the registry selection.
const (
	BackendFiles     = "files"
	BackendFirestore = "firestore"
)

// Config holds the application configuration.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	Output  string

	// Config file
	ConfigFile string

	// Source repository
	GitHubOwner string
	GitHubRepo  string
	GitHubToken string
	Ref         string

	// Scope
	Prefix         string
	IgnorePatterns []string

	// Registry backend
	Backend      string
	RegistryPath string // files backend
	ProjectID    string // firestore backend

	// Object-store sink
	Bucket       string
	BucketPrefix string

	// Sync tuning
	FetchBatchSize   int
	PersistBatchSize int
	SyncInterval     time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load builds configuration from all sources in order of precedence:
// command-line flags (handled by cobra), environment variables, .env files,
// config file, then defaults.
func Load() (*Config, error) {
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("POLICYSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	bindTokens()

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName(".policysync")
		}
	}

	// Missing config file is fine; env and flags still apply.
	_ = viper.ReadInConfig()

	cfg := &Config{
		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		Output:  viper.GetString("output"),

		ConfigFile: viper.ConfigFileUsed(),

		GitHubOwner: viper.GetString("github_owner"),
		GitHubRepo:  viper.GetString("github_repo"),
		GitHubToken: GetString("GITHUB_TOKEN"),
		Ref:         viper.GetString("ref"),

		Prefix:         viper.GetString("prefix"),
		IgnorePatterns: viper.GetStringSlice("ignore_patterns"),

		Backend:      viper.GetString("backend"),
		RegistryPath: viper.GetString("registry_path"),
		ProjectID:    viper.GetString("project_id"),

		Bucket:       viper.GetString("bucket"),
		BucketPrefix: viper.GetString("bucket_prefix"),

		FetchBatchSize:   viper.GetInt("fetch_batch_size"),
		PersistBatchSize: viper.GetInt("persist_batch_size"),
		SyncInterval:     viper.GetDuration("sync_interval"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
	}

	// Defaults
	if cfg.Ref == "" {
		cfg.Ref = "main"
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendFiles
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = "./registry"
	}
	if cfg.FetchBatchSize == 0 {
		cfg.FetchBatchSize = constants.DefaultFetchBatchSize
	}
	if cfg.PersistBatchSize == 0 {
		cfg.PersistBatchSize = constants.DefaultPersistBatchSize
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = constants.DefaultSyncInterval
	}

	return cfg, nil
}

// GetString gets a string value, checking both the OS environment and Viper.
func GetString(key string) string {
	osValue := os.Getenv(key)
	viperValue := viper.GetString(key)
	if viperValue == "" && osValue != "" {
		return osValue
	}
	return viperValue
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// bindTokens explicitly binds credential environment variables that do not
// carry the POLICYSYNC_ prefix.
func bindTokens() {
	for _, key := range []string{
		"GITHUB_TOKEN",
		"GOOGLE_APPLICATION_CREDENTIALS",
	} {
		_ = viper.BindEnv(key)
	}
}

// getEnvOrDefault returns the environment variable value or the default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
