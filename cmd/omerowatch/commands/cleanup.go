package commands

import (
	"fmt"
	"time"

	"github.com/cecad-imaging/omerowatch/pkg/db"
	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cleanupAll       bool
	cleanupFailed    bool
	cleanupOlderThan time.Duration
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune the fetch ledger",
	Long: `Remove ledger entries. Volumes already handed off are not touched.
  --all                Remove every entry
  --failed             Remove failed fetches
  --older-than <dur>   Remove entries created more than <dur> ago (e.g. 720h)`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove every entry")
	cleanupCmd.Flags().BoolVar(&cleanupFailed, "failed", false, "Remove failed fetches")
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "Remove entries older than this")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	repo, _, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	var removed int64
	switch {
	case cleanupAll:
		removed, err = repo.DeleteAll()
	case cleanupFailed:
		removed, err = repo.DeleteByStatus(db.StatusFailed)
	case cleanupOlderThan > 0:
		removed, err = repo.DeleteOlderThan(time.Now().Add(-cleanupOlderThan))
	default:
		return fmt.Errorf("must specify --all, --failed, or --older-than")
	}
	if err != nil {
		return errors.Wrap(err, "cleanup failed")
	}

	fmt.Printf("🧹 Removed %d ledger entries\n", removed)
	return nil
}
