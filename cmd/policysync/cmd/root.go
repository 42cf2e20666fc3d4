// Package cmd implements the policysync command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentstation/policysync"
	"github.com/agentstation/policysync/internal/config"
	"github.com/agentstation/policysync/internal/objectstore/gcs"
	"github.com/agentstation/policysync/internal/registry/files"
	"github.com/agentstation/policysync/internal/registry/firestorex"
	"github.com/agentstation/policysync/internal/sources/github"
	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/logging"
	"github.com/agentstation/policysync/pkg/registry"
)

var (
	configFile string
	verbose    bool
	quiet      bool

	// Version information set by main.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// Date is the build date.
	Date = "unknown"

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "policysync",
	Short: "Policy document sync CLI",
	Long: `Policysync keeps a registry of policy documents in step with a source
repository. It detects added, updated, and removed documents between source
revisions, persists the changes, and notifies a downstream work queue.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal-aware context.
func Execute(version, commit, date string) error {
	Version = version
	Commit = commit
	Date = date
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ~/.policysync.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error logging")

	rootCmd.PersistentFlags().String("github-owner", "", "source repository owner")
	rootCmd.PersistentFlags().String("github-repo", "", "source repository name")
	rootCmd.PersistentFlags().String("ref", "main", "source ref to sync")
	rootCmd.PersistentFlags().String("prefix", "", "restrict sync to paths under this prefix")
	rootCmd.PersistentFlags().String("backend", config.BackendFiles, "registry backend (files|firestore)")
	rootCmd.PersistentFlags().String("registry-path", "./registry", "directory for the files backend")
	rootCmd.PersistentFlags().String("project-id", "", "GCP project for the firestore backend")
	rootCmd.PersistentFlags().String("bucket", "", "GCS bucket for document bodies (optional)")

	// Flags bind under the underscored keys config.Load reads; the env key
	// replacer only rewrites environment lookups, not flag bindings.
	for _, flag := range []string{
		"config", "github-owner", "github-repo", "ref", "prefix",
		"backend", "registry-path", "project-id", "bucket",
	} {
		key := strings.ReplaceAll(flag, "-", "_")
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}
}

// setup loads configuration and configures logging before any command runs.
func setup(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}
	if cfg.LogFormat == "json" {
		logging.SetDefault(logging.NewJSON(os.Stderr))
	}
	return nil
}

// newClient assembles a sync client from the loaded configuration.
// The returned cleanup closes any backend connections.
func newClient(ctx context.Context) (policysync.Client, func(), error) {
	if cfg.GitHubOwner == "" || cfg.GitHubRepo == "" {
		return nil, nil, &errors.ValidationError{
			Field:   "github-owner/github-repo",
			Message: "a source repository must be configured",
		}
	}

	repo, err := github.New(cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubToken)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var reg registry.Registry
	var queue registry.WorkQueue

	switch cfg.Backend {
	case config.BackendFiles:
		backend, err := files.New(cfg.RegistryPath)
		if err != nil {
			return nil, nil, err
		}
		reg, queue = backend, backend
	case config.BackendFirestore:
		fsClient, err := firestorex.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		backend, err := firestorex.New(fsClient)
		if err != nil {
			_ = fsClient.Close()
			return nil, nil, err
		}
		reg, queue = backend, backend
		cleanup = func() { _ = fsClient.Close() }
	default:
		return nil, nil, &errors.ValidationError{
			Field:   "backend",
			Value:   cfg.Backend,
			Message: "unknown registry backend",
		}
	}

	opts := []policysync.Option{
		policysync.WithSource(repo),
		policysync.WithRegistry(reg),
		policysync.WithWorkQueue(queue),
		policysync.WithRef(cfg.Ref),
		policysync.WithPrefix(cfg.Prefix),
		policysync.WithIgnorePatterns(cfg.IgnorePatterns...),
		policysync.WithFetchBatchSize(cfg.FetchBatchSize),
		policysync.WithPersistBatchSize(cfg.PersistBatchSize),
	}
	if syncInterval > 0 {
		opts = append(opts, policysync.WithSyncInterval(syncInterval))
	} else if cfg.SyncInterval > 0 {
		opts = append(opts, policysync.WithSyncInterval(cfg.SyncInterval))
	}

	if cfg.Bucket != "" {
		gcsClient, err := gcs.NewClient(ctx)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		store, err := gcs.New(gcsClient, cfg.Bucket, gcs.WithPrefix(cfg.BucketPrefix))
		if err != nil {
			cleanup()
			_ = gcsClient.Close()
			return nil, nil, err
		}
		opts = append(opts, policysync.WithObjectStore(store))
		prev := cleanup
		cleanup = func() {
			prev()
			_ = gcsClient.Close()
		}
	}

	client, err := policysync.New(opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return client, cleanup, nil
}
