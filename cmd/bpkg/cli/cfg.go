package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
)

var cfgLinkName string
var cfgLinkRelative bool
var cfgUnlinkPrivate bool

var cfgCreateCmd = &cobra.Command{
	Use:   "cfg-create [dir]",
	Short: "create (or re-open) a configuration at dir",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := configDir()
		if len(args) == 1 {
			dir = args[0]
		}
		h, err := dbstore.Open(dir)
		if err != nil {
			return err
		}
		fmt.Printf("created configuration %s (uuid %s)\n", h.Dir, h.UUID)
		return nil
	},
}

var cfgLinkCmd = &cobra.Command{
	Use:   "cfg-link <other-dir>",
	Short: "link the current configuration to another",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		return dbstore.Link(h, args[0], dbstore.LinkOptions{Name: cfgLinkName, Relative: cfgLinkRelative})
	},
}

var cfgUnlinkCmd = &cobra.Command{
	Use:   "cfg-unlink <uuid>",
	Short: "remove an explicit link to another configuration, by its uuid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		return dbstore.Unlink(h, args[0], cfgUnlinkPrivate)
	},
}

func init() {
	cfgLinkCmd.Flags().StringVar(&cfgLinkName, "name", "", "friendly name for the link")
	cfgLinkCmd.Flags().BoolVar(&cfgLinkRelative, "relative", false, "store the link path as relative")
	cfgUnlinkCmd.Flags().BoolVar(&cfgUnlinkPrivate, "private", false, "the unlinked configuration is private: remove both sides and its directory")
}
