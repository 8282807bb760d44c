package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	cacheCleanOlderThan time.Duration
	cacheCleanDryRun    bool
)

var cacheCleanCmd = &cobra.Command{
	Use:   "cache-clean",
	Short: "evict stale fetch-cache entries (archives by access age, shared sources with no referencing configuration)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheCleanDryRun {
			fmt.Printf("would evict entries older than %s\n", cacheCleanOlderThan)
			return nil
		}
		stats, err := current.app.Cache.GC(cacheCleanOlderThan)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d archive(s), %d shared source tree(s)\n", stats.ArchivesRemoved, stats.SourcesRemoved)
		return nil
	},
}

func init() {
	cacheCleanCmd.Flags().DurationVar(&cacheCleanOlderThan, "older-than", 30*24*time.Hour, "evict entries not accessed within this duration")
	cacheCleanCmd.Flags().BoolVar(&cacheCleanDryRun, "dry-run", false, "report what would be evicted without removing anything")
}
