package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/twigtools/twig/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "twig",
	Short: "Twig: a node-store engine for exploring huge JSON and YAML documents",
	Long: `Twig ingests a JSON or YAML document into a queryable, ordered node
store and serves bounded child windows, jq-style path jumps and full-text
search over it. Stores are cached per source file and reused across runs.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the user config, falling back to defaults with a
// warning rather than refusing to run.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (using defaults)\n", err)
		return config.Default()
	}
	return cfg
}
