package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/obsmetrics"
)

var statusMetrics bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "list the current configuration's selected packages and repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusMetrics {
			return obsmetrics.Dump(os.Stdout)
		}

		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		fmt.Printf("configuration %s (uuid %s, type %s)\n", h.Dir, h.UUID, h.Type)

		rows, err := h.DB.Query(`SELECT name, version, state, substate FROM selected_package ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name, version, state, substate string
			if err := rows.Scan(&name, &version, &state, &substate); err != nil {
				return err
			}
			if substate != "none" {
				fmt.Printf("  %s/%s %s (%s)\n", name, version, state, substate)
			} else {
				fmt.Printf("  %s/%s %s\n", name, version, state)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		repos, err := dbstore.ListRepositories(h)
		if err != nil {
			return err
		}
		for _, r := range repos {
			mark := ""
			if r.Masked {
				mark = " (masked)"
			}
			fmt.Printf("  repository %s -> %s%s\n", r.CanonicalName, r.Location, mark)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusMetrics, "metrics", false, "dump prometheus metrics in text exposition format instead of status")
}
