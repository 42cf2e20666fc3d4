package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/policysync"
)

var (
	syncDryRun   bool
	syncInterval time.Duration
)

// syncCmd represents the sync command.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the registry with the source repository",
	Long: `Sync resolves the source repository's current revision, detects the
documents added, updated, and removed since the registry's last synced
revision, persists the changes, and enqueues downstream work items.

Runs are idempotent: re-running after a failure or abandonment converges on
the same final state. The revision pointer only advances when every content
fetch in the transition succeeded.`,
	Example: `  policysync sync --github-owner acme --github-repo policies
  policysync sync --dry-run
  policysync sync --backend firestore --project-id my-project
  policysync sync --bucket policy-bodies --prefix handbook/`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "classify and report without persisting anything")
	syncCmd.Flags().DurationVar(&syncInterval, "interval", 0, "keep syncing at this interval until interrupted")
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	client, cleanup, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := client.Sync(ctx, policysync.WithDryRun(syncDryRun))
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	printSyncResult(result)

	if syncInterval > 0 && !syncDryRun {
		if err := client.AutoSyncOn(); err != nil {
			return err
		}
		fmt.Printf("Syncing every %s, press Ctrl-C to stop\n", syncInterval)
		<-ctx.Done()
		return client.AutoSyncOff()
	}
	return nil
}

func printSyncResult(result *policysync.SyncResult) {
	if result.ChangeSet == nil {
		fmt.Printf("Already up to date at revision %s\n", short(result.Revision))
		return
	}

	caser := cases.Title(language.English)
	mode := "sync"
	if result.DryRun {
		mode = "dry run"
	}
	fmt.Printf("%s complete: %s -> %s\n",
		caser.String(mode), short(result.PreviousRevision), short(result.Revision))

	if result.Reconciliation != nil {
		stats := result.Reconciliation.Stats
		fmt.Printf("  scanned %d, added %d, updated %d, deleted %d\n",
			stats.Scanned, stats.Added, stats.Updated, stats.Deleted)
	}
	if failed := len(result.ChangeSet.Failed); failed > 0 {
		fmt.Printf("  %d document(s) failed to fetch and will be retried next run\n", failed)
	}
	if !result.DryRun && !result.PointerAdvanced {
		fmt.Println("  revision pointer was not advanced")
	}
}

// short abbreviates a revision token for display.
func short(revision string) string {
	if revision == "" {
		return "(none)"
	}
	if len(revision) > 12 {
		return revision[:12]
	}
	return revision
}
