package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Loom - trust-verified intelligence brief synthesis",
	Long: `Loom synthesizes news articles into a personal intelligence brief.

It assembles article context under a token budget, dispatches synthesis to
an LLM, repairs malformed responses, scores analytical depth, and verifies
every draft against its sources before accepting it. Drafts that fail
verification are regenerated under progressively stricter constraints.`,
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Show debug-level logs")
}

// newLogger builds the process logger. Verbose runs get development
// output; otherwise warnings and errors only, keeping stdout clean for
// the rendered brief.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
