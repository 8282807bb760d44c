package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/repo"
)

var repAddCmd = &cobra.Command{
	Use:   "rep-add <location>",
	Short: "add a repository (pkg URL, dir path, or git URL) to the current configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := repo.ParseLocation(args[0])
		if err != nil {
			return err
		}
		name, err := loc.CanonicalName()
		if err != nil {
			return err
		}
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		if err := dbstore.AddRepository(h, loc.Serialize(), name, ""); err != nil {
			return err
		}
		fmt.Printf("added %s as %s\n", loc.Serialize(), name)
		return nil
	},
}

var repRemoveAll bool

var repRemoveCmd = &cobra.Command{
	Use:   "rep-remove [canonical-name...]",
	Short: "remove one or more repositories, or every repository with --all",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		if repRemoveAll {
			rows, err := dbstore.ListRepositories(h)
			if err != nil {
				return err
			}
			for _, r := range rows {
				if err := dbstore.RemoveRepository(h, r.CanonicalName); err != nil {
					return err
				}
			}
			return nil
		}
		for _, name := range args {
			if err := dbstore.RemoveRepository(h, name); err != nil {
				return err
			}
		}
		return nil
	},
}

var repMaskCmd = &cobra.Command{
	Use:   "rep-mask <canonical-name>",
	Short: "mask a repository, hiding it from C6 queries without modifying its stored state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		return dbstore.SetRepositoryMasked(h, args[0], true)
	},
}

var repUnmaskCmd = &cobra.Command{
	Use:   "rep-unmask <canonical-name>",
	Short: "undo rep-mask",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		return dbstore.SetRepositoryMasked(h, args[0], false)
	},
}

var repFetchCmd = &cobra.Command{
	Use:   "rep-fetch",
	Short: "fetch/refresh the repository graph (manifests, git refs) for the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, h, err := repositoriesFor(configDir())
		if err != nil {
			return err
		}
		g, _, err := current.app.GraphFor(context.Background(), configDir())
		if err != nil {
			return err
		}
		for _, r := range rows {
			if g.IsMasked(h.UUID, r.CanonicalName) {
				fmt.Printf("%s: masked\n", r.CanonicalName)
				continue
			}
			repoEntry, ok := g.Get(r.CanonicalName)
			n := 0
			if ok {
				for _, f := range repoEntry.Fragments {
					n += len(f.Packages)
				}
			}
			fmt.Printf("%s: %d package(s)\n", r.CanonicalName, n)
		}
		return nil
	},
}

func init() {
	repRemoveCmd.Flags().BoolVar(&repRemoveAll, "all", false, "remove every repository, fragment, and available package")
}

func repositoriesFor(dir string) ([]dbstore.RepositoryRow, *dbstore.Handle, error) {
	h, err := dbstore.Open(dir)
	if err != nil {
		return nil, nil, err
	}
	rows, err := dbstore.ListRepositories(h)
	if err != nil {
		return nil, nil, err
	}
	return rows, h, nil
}
