package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jonatan-kruse/typebout/internal/quote"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	var postgresURL string

	cmd := &cobra.Command{
		Use:   "import-quotes FILE",
		Short: "Add the quotes in a JSON file to the postgres quote store.",
		Long: "Reads a JSON array of {\"content\", \"author\"} objects, applies the\n" +
			"schema migrations and inserts every non-blank quote.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if postgresURL == "" {
				return errors.New("--postgres-url is required")
			}
			quotes, err := readQuotes(args[0])
			if err != nil {
				return err
			}
			return importQuotes(cmd.Context(), postgresURL, quotes)
		},
	}
	cmd.Flags().StringVar(&postgresURL, "postgres-url", "", "postgres connection string (env: TYPEBOUT_POSTGRES_URL)")
	return cmd
}

func readQuotes(path string) ([]quote.Quote, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	quotes, err := quote.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return quotes, nil
}

func importQuotes(ctx context.Context, connString string, quotes []quote.Quote) error {
	if err := quote.Migrate(connString); err != nil {
		return fmt.Errorf("migrate quotes: %w", err)
	}
	pg, err := quote.NewPostgres(ctx, connString)
	if err != nil {
		return err
	}
	defer pg.Close()

	for i, q := range quotes {
		if err := pg.Add(ctx, q); err != nil {
			return fmt.Errorf("quote %d: %w", i+1, err)
		}
	}
	log.Info().Int("added", len(quotes)).Msg("quotes imported")
	return nil
}
