package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arbordb/arbor/cmd/bench"
	"github.com/arbordb/arbor/cmd/smoke"
	"github.com/arbordb/arbor/cmd/util"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "arbor",
		Short: "embedded storage engine",
		Long: fmt.Sprintf(`arbor (v%s)

An embedded storage engine for JSON-like values with transparent
compression, encryption, caching, field indexing, write-ahead intent
logging, and adaptive resource management.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of arbor",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("arbor v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(smoke.SmokeCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupEngineFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
