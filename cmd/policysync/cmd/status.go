package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agentstation/policysync/internal/config"
	"github.com/agentstation/policysync/internal/registry/files"
	"github.com/agentstation/policysync/internal/registry/firestorex"
	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/registry"
)

var statusList bool

// statusCmd represents the status command.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the registry's last synced revision and record count",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&statusList, "list", "l", false, "list tracked document identities")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var reg registry.Registry
	switch cfg.Backend {
	case config.BackendFiles:
		backend, err := files.New(cfg.RegistryPath)
		if err != nil {
			return err
		}
		reg = backend
	case config.BackendFirestore:
		fsClient, err := firestorex.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return err
		}
		defer func() { _ = fsClient.Close() }()
		backend, err := firestorex.New(fsClient)
		if err != nil {
			return err
		}
		reg = backend
	default:
		return &errors.ValidationError{
			Field:   "backend",
			Value:   cfg.Backend,
			Message: "unknown registry backend",
		}
	}

	revision, err := reg.LastRevision(ctx)
	if err != nil {
		return err
	}
	snapshot, err := reg.Snapshot(ctx, cfg.Prefix)
	if err != nil {
		return err
	}

	fmt.Printf("Revision: %s\n", short(revision))
	fmt.Printf("Tracked:  %d document(s)\n", len(snapshot))

	if statusList {
		identities := make([]string, 0, len(snapshot))
		for identity := range snapshot {
			identities = append(identities, identity)
		}
		sort.Strings(identities)
		for _, identity := range identities {
			record := snapshot[identity]
			fmt.Printf("  %-40s %s  %s\n", identity, short(record.VersionToken), record.Path)
		}
	}
	return nil
}
