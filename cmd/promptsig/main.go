// Command promptsig renders, parses and runs signature manifests from the
// command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose  bool
	registry string
	env      string
	state    string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "promptsig",
	Short: "Typed LM signatures: render prompts, parse completions, call models",
	Long: `promptsig works with YAML signature manifests.

A manifest argument is either a path to a .yaml/.yml file or a name resolved
in the --registry directory (optionally preferring the --env variant).`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&registry, "registry", ".", "directory holding named manifests")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "prefer {name}.{env}.yaml manifests")
	rootCmd.PersistentFlags().StringVar(&state, "state", "", "saved predictor state to load (.yaml or .json)")
	rootCmd.AddCommand(renderCmd, parseCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
