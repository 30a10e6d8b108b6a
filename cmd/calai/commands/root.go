// Package commands defines all Cobra CLI commands for the calai binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/calai/calai-go/internal/audit"
	"github.com/calai/calai-go/internal/config"
	"github.com/calai/calai-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "calai",
		Short: "calai — a grounded calendar assistant over your events and notes",
		Long: `calai is a local-first assistant that answers questions from two sources:
a knowledge base of your notes and your Google Calendar.

It classifies each query, retrieves relevant passages and events, composes
an evidence-backed answer, and scores how well the answer is grounded in
the retrieved context. Event creation requests are checked for conflicts
against your free/busy schedule before anything is written.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.calai/config.yaml).
See 'calai --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.calai/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIndexCmd(),
		NewConnectCmd(),
		NewVersionCmd(),
	)

	return root
}
