package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/pkgstate"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

var fetchFromFile string

var fetchCmd = &cobra.Command{
	Use:   "fetch <name> <version>",
	Short: "fetch a package archive directly from a local file into the current configuration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := ver.ParseName(args[0])
		if err != nil {
			return err
		}
		version, err := ver.Parse(args[1])
		if err != nil {
			return err
		}
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		sum, err := sha256OfFile(fetchFromFile)
		if err != nil {
			return err
		}
		src := pkgstate.FetchSource{
			SHA256Sum: sum,
			Open:      func() (io.ReadCloser, error) { return os.Open(fetchFromFile) },
		}
		return pkgstate.Fetch(h, configDir(), name, version, src)
	},
}

var unpackCmd = &cobra.Command{
	Use:   "unpack <name> <version>",
	Short: "unpack a fetched package's archive into the configuration directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		return pkgstate.UnpackFromArchive(h, configDir(), args[0], args[1])
	},
}

var configureDryRun bool

var configureCmd = &cobra.Command{
	Use:   "configure <name>",
	Short: "run the build-system driver's configure step on an unpacked package (bypassing the resolver)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := ver.ParseName(args[0])
		if err != nil {
			return err
		}
		if configureDryRun {
			fmt.Printf("would run: %s configure <src-root of %s> @%s\n", current.cfg.Driver, name, name)
			return nil
		}
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		return pkgstate.Configure(h, configDir(), name, nil, nil, current.cfg.Driver)
	},
}

var disfigureClean, disfigureDryRun bool

var disfigureCmd = &cobra.Command{
	Use:   "disfigure <name>",
	Short: "disfigure a configured package back to unpacked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := ver.ParseName(args[0])
		if err != nil {
			return err
		}
		if disfigureDryRun {
			fmt.Printf("would run: %s disfigure @<out-root of %s>", current.cfg.Driver, name)
			if disfigureClean {
				fmt.Print(" (then clean)")
			}
			fmt.Println()
			return nil
		}
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		return pkgstate.Disfigure(h, name, current.cfg.Driver, disfigureClean)
	},
}

var purgeKeep, purgeForce bool

var purgeCmd = &cobra.Command{
	Use:   "purge <name>",
	Short: "purge a fetched/unpacked package, removing its owned artifacts and row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := ver.ParseName(args[0])
		if err != nil {
			return err
		}
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		return pkgstate.Purge(h, name, pkgstate.PurgeOptions{Keep: purgeKeep, Force: purgeForce})
	},
}

var dropDependents, dropYes bool

var dropCmd = &cobra.Command{
	Use:   "drop <name>",
	Short: "disfigure-then-purge a package plus, with --drop-dependent, its transitive dependents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := ver.ParseName(args[0])
		if err != nil {
			return err
		}
		h, err := dbstore.Open(configDir())
		if err != nil {
			return err
		}
		yes := dropYes || current.cfg.Yes
		if dropDependents && !yes {
			yes = confirm(fmt.Sprintf("drop %s and its dependents?", name))
		}
		return pkgstate.Drop(h, name, pkgstate.DropOptions{
			DropDependents: dropDependents,
			Yes:            yes,
			Driver:         current.cfg.Driver,
		})
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFromFile, "file", "", "path to the archive to fetch from")
	fetchCmd.MarkFlagRequired("file")
	configureCmd.Flags().BoolVar(&configureDryRun, "dry-run", false, "print the planned driver invocation without running it")
	disfigureCmd.Flags().BoolVar(&disfigureClean, "clean", false, "also run the build system's clean step")
	disfigureCmd.Flags().BoolVar(&disfigureDryRun, "dry-run", false, "print the planned driver invocation without running it")
	purgeCmd.Flags().BoolVar(&purgeKeep, "keep", false, "keep the archive even if it is owned")
	purgeCmd.Flags().BoolVar(&purgeForce, "force", false, "allow purging a broken package")
	dropCmd.Flags().BoolVar(&dropDependents, "drop-dependent", false, "also drop transitive dependents")
	dropCmd.Flags().BoolVar(&dropYes, "yes", false, "suppress the dependents confirmation prompt")
}
