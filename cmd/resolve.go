package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/chordsheet-resolver/internal/api"
	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
)

// newResolveCmd groups one-shot lookups that print JSON and exit.
func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Runs a single lookup and prints the result as JSON",
	}
	cmd.AddCommand(
		lookupCmd("artists <text>", "Finds artists by name", cobra.ExactArgs(1),
			func(ctx context.Context, svc api.Service, args []string) (any, error) {
				return svc.ResolveArtists(ctx, args[0])
			}),
		lookupCmd("songs <artist-path>", "Lists an artist's songs", cobra.ExactArgs(1),
			func(ctx context.Context, svc api.Service, args []string) (any, error) {
				return svc.ResolveArtistSongs(ctx, args[0])
			}),
		lookupCmd("metadata <url>", "Reads a chord sheet's header", cobra.ExactArgs(1),
			func(ctx context.Context, svc api.Service, args []string) (any, error) {
				return svc.Metadata(ctx, args[0])
			}),
		lookupCmd("sheet <url>", "Reads a chord sheet's body", cobra.ExactArgs(1),
			func(ctx context.Context, svc api.Service, args []string) (any, error) {
				return svc.ChordSheet(ctx, args[0])
			}),
		lookupCmd("cached", "Lists artists with a stored song list", cobra.NoArgs,
			func(ctx context.Context, svc api.Service, _ []string) (any, error) {
				return svc.ListCached(ctx), nil
			}),
		newSearchCmd(),
	)
	return cmd
}

func newSearchCmd() *cobra.Command {
	var artist, song string
	cmd := lookupCmd("search", "Searches by artist, song, or both", cobra.NoArgs,
		func(ctx context.Context, svc api.Service, _ []string) (any, error) {
			q, err := catalog.NewSearchQuery(artist, song)
			if err != nil {
				return nil, err
			}
			return svc.Search(ctx, q)
		})
	cmd.Flags().StringVar(&artist, "artist", "", "artist name")
	cmd.Flags().StringVar(&song, "song", "", "song title")
	return cmd
}

type lookupFunc func(ctx context.Context, svc api.Service, args []string) (any, error)

func lookupCmd(use, short string, args cobra.PositionalArgs, fn lookupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			return withApp(cmd, func(appInstance App) error {
				result, err := fn(cmd.Context(), appInstance.Service(), argv)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				return nil
			})
		},
	}
}
