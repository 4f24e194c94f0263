package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/documents"
	"github.com/54b3r/docqa-go/internal/logging"
)

// defaultOwner is the owner id used by CLI commands when --owner is not set.
const defaultOwner = "local"

// NewIngestCmd constructs the `docqa ingest` command, which uploads local
// files and URLs into the owner's document set.
func NewIngestCmd() *cobra.Command {
	var owner string
	var urls []string

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Upload text files or URLs as documents",
		Long: `Embed and store plain-text documents for an owner.

Files must be .txt, .text or .md. URLs are fetched over http(s); PDF
responses are rejected.

Examples:
  docqa ingest notes.md handbook.txt
  docqa ingest --owner alice --url https://example.com/faq.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			if len(args) == 0 && len(urls) == 0 {
				return fmt.Errorf("ingest: at least one file or --url is required")
			}

			a, err := buildApp(ctx, log, appOptions{localFetch: true})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = a.Close() }()

			reqs := make([]documents.UploadRequest, 0, len(args)+len(urls))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				reqs = append(reqs, documents.UploadRequest{
					OwnerID: owner,
					Name:    filepath.Base(path),
					Text:    string(data),
				})
			}
			for _, u := range urls {
				reqs = append(reqs, documents.UploadRequest{OwnerID: owner, URL: u})
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, req := range reqs {
				src := req.Name
				if src == "" {
					src = req.URL
				}
				doc, err := a.docs.Upload(ctx, req)
				if err != nil {
					failed++
					log.Error("ingest failed", slog.String("source", src), slog.Any("error", err))
					continue
				}
				fmt.Fprintf(out, "%s  %s\n", doc.ID, doc.Name)
			}

			log.Info("ingestion complete",
				slog.Int("sources", len(reqs)),
				slog.Int("failed", failed),
			)
			if failed > 0 {
				return fmt.Errorf("ingest: %d of %d sources failed", failed, len(reqs))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", defaultOwner, "Owner of the uploaded documents")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "URL to fetch and ingest (repeatable)")

	return cmd
}
