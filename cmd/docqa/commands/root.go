// Package commands defines the Cobra CLI commands for the docqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/audit"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
)

var (
	// configPath holds the --config flag value.
	configPath string
	// envFile holds the --env-file flag value.
	envFile string
)

// NewRootCmd constructs the root command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "docqa answers questions from your own documents",
		Long: `docqa is a document-grounded question answering service.

Users upload plain-text documents, which are embedded and indexed. Questions
are answered by a chat model using the most similar documents as context,
and each user keeps a running conversation.

Configuration is read from the environment, a .env file, and a YAML file
(~/.docqa/config.yaml), in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// .env before YAML: both only fill unset keys, so .env outranks YAML.
			if _, err := config.LoadDotEnv(envFile, log); err != nil {
				return err
			}
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// LOG_* may have come from a file.
			log = logging.New()
			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docqa/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env if present)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewIngestCmd(),
		NewDocsCmd(),
		NewVersionCmd(),
	)

	return root
}
