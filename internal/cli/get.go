package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"worksummary/internal/reveal"
	"worksummary/internal/summary"
	"worksummary/internal/viewer"
)

// reportedError has already been shown to the user on stdout.
type reportedError struct {
	msg string
}

func (e *reportedError) Error() string { return e.msg }

func newGetCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON    bool
		authRetry bool
		plain     bool
		open      bool
	)
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Request the summary of one work item",
		Long: `Request the summary of one work item and reveal it on stdout.

With --json the reply is printed as a single JSON object instead:
{"summary":...}, {"error":...}, {"authUrl":...,"subjectKey":...} or
{"redirectUrl":...}. Use --auth-retry after signing in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := opts.cfg.NewHandler(opts.log)
			key := args[0]
			out := cmd.OutOrStdout()

			if asJSON {
				msg := handler.Handle(cmd.Context(), summary.Request{
					Type:       summary.TypeGetSummary,
					SubjectKey: key,
					AuthRetry:  authRetry,
				})
				if err := json.NewEncoder(out).Encode(msg); err != nil {
					return err
				}
				if msg.Error != "" {
					return &reportedError{msg: msg.Error}
				}
				return nil
			}

			sched := opts.cfg.NewScheduler()
			if plain {
				sched = reveal.NewScheduler(reveal.ModePlain, opts.cfg.PlainRevealDelay)
			}
			w := reveal.NewWriter(out)
			vopts := []viewer.Option{viewer.WithSurface(w), viewer.WithLogger(opts.log)}
			if authRetry {
				vopts = append(vopts, viewer.WithPromptedKey(key))
			}
			if open {
				vopts = append(vopts, viewer.WithOpener(viewer.BrowserOpener{Ctx: cmd.Context()}))
			}
			svc := viewer.New(handler, sched, vopts...)
			if err := svc.Do(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintln(out)
			if err := w.Err(); err != nil {
				return err
			}
			if svc.Phase() == viewer.PhaseError {
				return &reportedError{msg: svc.LastError()}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the reply as JSON instead of revealing it")
	cmd.Flags().BoolVar(&authRetry, "auth-retry", false, "Mark the request as a retry after signing in")
	cmd.Flags().BoolVar(&plain, "plain", false, "Reveal raw text without markup")
	cmd.Flags().BoolVar(&open, "open", false, "Open redirect targets in the browser")
	return cmd
}
