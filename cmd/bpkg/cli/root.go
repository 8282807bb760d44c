// Package cli builds bpkg's cobra command tree and wires each
// subcommand's RunE to internal/app, matching spec.md §2's "a command
// parses arguments and opens a configuration" control flow.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bpkg-toolchain/bpkg/internal/app"
	"github.com/bpkg-toolchain/bpkg/internal/config"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
	"github.com/bpkg-toolchain/bpkg/pkg/logger"
)

// env holds everything a subcommand's RunE needs, built once by
// PersistentPreRunE and torn down by PersistentPostRunE.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	record *diag.Record
	app    *app.App
	ctx    context.Context
}

var (
	rootCmd = &cobra.Command{
		Use:           "bpkg",
		Short:         "bpkg resolves, fetches, and configures C/C++-style packages into a persistent configuration",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	current *env

	flagCfgDir     string
	flagVerbosity  int
	flagPkgProxy   string
	flagFetchCache string
	flagSharedSrc  bool
	flagOffline    bool
	flagYes        bool
	flagDriver     string
	flagRCFile     string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagCfgDir, "cfg", "", "configuration directory (default: current directory)")
	pf.CountVarP(&flagVerbosity, "verbose", "v", "increase verbosity (repeatable)")
	pf.StringVar(&flagPkgProxy, "pkg-proxy", "", "HTTP proxy URL for pkg-repository fetches")
	pf.StringVar(&flagFetchCache, "fetch-cache-path", "", "root of the local fetch cache")
	pf.BoolVar(&flagSharedSrc, "shared-src", false, "reference cached source trees instead of copying them")
	pf.BoolVar(&flagOffline, "offline", false, "refuse network/VCS I/O, serve only cached content")
	pf.BoolVar(&flagYes, "yes", false, "auto-confirm prompts (certificate trust, drop-dependents)")
	pf.StringVar(&flagDriver, "driver", "", "path to the external build-system driver executable")
	pf.StringVar(&flagRCFile, "rc-file", "", "path to .bpkgrc.yaml (default: $HOME/.bpkgrc.yaml)")

	rootCmd.AddCommand(
		cfgCreateCmd, cfgLinkCmd, cfgUnlinkCmd,
		repAddCmd, repRemoveCmd, repFetchCmd, repMaskCmd, repUnmaskCmd,
		buildCmd,
		fetchCmd, unpackCmd, configureCmd, disfigureCmd, purgeCmd, dropCmd,
		statusCmd, cacheCleanCmd,
	)

	rootCmd.PersistentPreRunE = setupEnv
	rootCmd.PersistentPostRunE = teardownEnv
}

// setupEnv loads the merged configuration, builds the logger, and opens
// the fetch cache, shared by every subcommand's RunE via `current`.
func setupEnv(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagRCFile, func(v *viper.Viper) {
		if flagCfgDir != "" {
			v.Set("cfg", flagCfgDir)
		}
		if flagVerbosity > 0 {
			v.Set("verbosity", flagVerbosity)
			v.Set("log.level", logger.LevelFromVerbosity(flagVerbosity))
		}
		if flagPkgProxy != "" {
			v.Set("pkg_proxy", flagPkgProxy)
		}
		if flagFetchCache != "" {
			v.Set("fetch_cache_path", flagFetchCache)
		}
		if cmd.Flags().Changed("shared-src") {
			v.Set("shared_src", flagSharedSrc)
		}
		if cmd.Flags().Changed("offline") {
			v.Set("offline", flagOffline)
		}
		if cmd.Flags().Changed("yes") {
			v.Set("yes", flagYes)
		}
		if flagDriver != "" {
			v.Set("driver", flagDriver)
		}
	})
	if err != nil {
		return err
	}

	log := logger.NewLogger(logger.Config{
		Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output,
		Filename: cfg.Log.Filename, MaxSize: cfg.Log.MaxSize, MaxBackups: cfg.Log.MaxBackups,
		MaxAge: cfg.Log.MaxAge, Compress: cfg.Log.Compress,
	})
	invocationID := logger.GenerateInvocationID()
	ctx := logger.WithInvocationID(context.Background(), invocationID)
	log = logger.FromContext(ctx, log)

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	current = &env{cfg: cfg, logger: log, record: diag.NewRecord("bpkg"), app: a, ctx: ctx}
	return nil
}

func teardownEnv(cmd *cobra.Command, args []string) error {
	if current == nil || current.app == nil {
		return nil
	}
	err := current.app.Close()
	current = nil
	return err
}

// Execute runs the command tree and returns the process exit code, per
// spec.md §6: 0 success, 1 diagnosed failure, 2 internal invariant
// violation (diag.KindLogic).
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	rec := diag.NewRecord("bpkg")
	rec.FlushError(os.Stderr, err)
	return diag.KindOf(err).ExitCode()
}

// parseRootArg parses a "<name>" or "<name>/<constraint>" build-root
// argument, per the depends-entry constraint grammar (internal/ver's
// ParseConstraint accepts a bare version too, as equality sugar).
func parseRootArg(s string) (ver.Name, *ver.Constraint, error) {
	name, constraintStr, hasConstraint := strings.Cut(s, "/")
	n, err := ver.ParseName(name)
	if err != nil {
		return "", nil, diag.Wrap(diag.KindUserInput, err, "cli: invalid package name in %q", s)
	}
	if !hasConstraint || constraintStr == "" {
		return n, nil, nil
	}
	c, err := ver.ParseConstraint(constraintStr)
	if err != nil {
		return "", nil, diag.Wrap(diag.KindUserInput, err, "cli: invalid version constraint in %q", s)
	}
	return n, &c, nil
}

func configDir() string {
	if current.cfg.ConfigDir == "" {
		return "."
	}
	return current.cfg.ConfigDir
}

func confirm(prompt string) bool {
	if current.cfg.Yes {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	var resp string
	fmt.Scanln(&resp)
	resp = strings.ToLower(strings.TrimSpace(resp))
	return resp == "y" || resp == "yes"
}
