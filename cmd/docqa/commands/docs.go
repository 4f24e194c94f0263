package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewDocsCmd constructs `docqa docs`, which lists and removes an owner's
// documents.
func NewDocsCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List or remove uploaded documents",
	}
	cmd.PersistentFlags().StringVarP(&owner, "owner", "o", defaultOwner, "Owner of the documents")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the owner's documents",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				a, err := buildApp(ctx, logging.New(), appOptions{})
				if err != nil {
					return fmt.Errorf("docs: %w", err)
				}
				defer func() { _ = a.Close() }()

				docs, err := a.docs.List(ctx, owner)
				if err != nil {
					return fmt.Errorf("docs: %w", err)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tUPLOADED")
				for _, d := range docs {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Name, d.UploadedAt.UTC().Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "rm [id...]",
			Short: "Remove documents by id",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				a, err := buildApp(ctx, logging.New(), appOptions{})
				if err != nil {
					return fmt.Errorf("docs: %w", err)
				}
				defer func() { _ = a.Close() }()

				for _, id := range args {
					if err := a.docs.Remove(ctx, owner, id); err != nil {
						return fmt.Errorf("docs: remove %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
				}
				return nil
			},
		},
	)
	return cmd
}
