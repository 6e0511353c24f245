// Package main provides the entry point for the context crystal CLI and HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootFlags are the persistent flags shared by every command
type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "crystal",
		Short: "Context Crystal conversation compressor",
		Long: `Context Crystal compresses long assistant conversations into a compact,
grounded continuation prompt: extraction -> compression -> verification -> optimization.

Configuration can be loaded from a JSON or YAML file using --config. Environment
variables fill credentials; command-line flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a config.json or config.yaml file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Print detailed debug information")

	root.AddCommand(
		newServeCmd(flags),
		newRunCmd(flags),
		newExtractCmd(flags),
		newSealCmd(flags),
		newOpenCmd(flags),
		newHashKeyCmd(),
		newValidateCmd(),
	)
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
