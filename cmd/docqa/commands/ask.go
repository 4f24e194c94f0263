package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/qa"
)

// NewAskCmd constructs the `docqa ask` command, which answers one question
// against the owner's documents and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	var owner string
	var docIDs []string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against your uploaded documents",
		Long: `Answer a single question using the owner's documents as context.

Examples:
  docqa ask "what is the capital of France?"
  docqa ask --owner alice --doc 6f1c... "summarise the onboarding guide"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			a, err := buildApp(ctx, log, appOptions{chat: true})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = a.Close() }()

			res, err := a.qa.Answer(ctx, qa.Request{
				Query:       strings.Join(args, " "),
				OwnerID:     owner,
				DocumentIDs: docIDs,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Text)
			if len(res.Documents) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for i, id := range res.Documents {
					fmt.Fprintf(out, "  %s  %s (score %.3f)\n", id, res.Names[i], res.Scores[i])
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", defaultOwner, "Owner whose documents are searched")
	cmd.Flags().StringArrayVar(&docIDs, "doc", nil, "Restrict retrieval to this document id (repeatable)")

	return cmd
}
