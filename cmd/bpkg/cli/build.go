package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bpkg-toolchain/bpkg/internal/app"
	"github.com/bpkg-toolchain/bpkg/internal/obsmetrics"
	"github.com/bpkg-toolchain/bpkg/internal/resolve"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

var buildCmd = &cobra.Command{
	Use:   "build <name>[/<constraint>]...",
	Short: "resolve and build the named packages (and their dependencies) into the current configuration",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		defer func() { obsmetrics.ResolveDuration.Observe(time.Since(start).Seconds()) }()

		roots := make([]app.RootSpec, 0, len(args))
		for _, a := range args {
			name, constraint, err := parseRootArg(a)
			if err != nil {
				return err
			}
			roots = append(roots, app.RootSpec{ConfigDir: configDir(), Name: name, Constraint: constraint})
		}

		plan, err := current.app.Build(current.ctx, resolve.Driver{
			Build2Version: mustVersion("0"),
			BpkgVersion:   mustVersion("0"),
		}, roots)
		if err != nil {
			obsmetrics.ResolveAttempts.WithLabelValues("failure").Inc()
			return err
		}
		obsmetrics.ResolveAttempts.WithLabelValues("success").Inc()

		for _, e := range plan.Entries {
			fmt.Printf("configured %s/%s\n", e.Key.Name, e.Version)
		}
		return nil
	},
}

func mustVersion(s string) ver.Version {
	v, _ := ver.Parse(s)
	return v
}
