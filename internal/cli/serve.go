package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer GET_SUMMARY requests read as JSON lines on stdin",
		Long: `Read requests such as {"type":"GET_SUMMARY","subjectKey":"ABC-1"} from
stdin, one per line, and write exactly one JSON reply line per request to
stdout in the same order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts.log.LogAttrs(ctx, slog.LevelInfo, "serving summary requests",
				slog.String("endpoint", opts.cfg.SummaryURL))
			err := opts.cfg.NewHandler(opts.log).Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
