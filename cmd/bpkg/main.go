// Command bpkg is the command-line front end over the configuration
// store (C2), package state machine (C3), repository/fetch pipeline
// (C4/C5), query layer (C6), and dependency resolver (C7) implemented
// under internal/. It parses arguments with cobra, merges global flags
// through the same viper-backed internal/config layer, and dispatches to
// internal/app for everything that touches a configuration.
package main

import (
	"os"

	"github.com/bpkg-toolchain/bpkg/cmd/bpkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
