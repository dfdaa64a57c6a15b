package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"worksummary/internal/markup"
)

func newTokenizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokenize [TEXT]",
		Short: "Print the render tokens of summary text",
		Long:  "Print the render tokens of TEXT, or of stdin when TEXT is omitted, one per line.",
		Args:  cobra.MaximumNArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(raw)
			}
			out := cmd.OutOrStdout()
			for _, tok := range markup.Tokenize(text) {
				fmt.Fprintln(out, formatToken(tok))
			}
			return nil
		},
	}
}

func formatToken(t markup.Token) string {
	switch t.Kind {
	case markup.Text:
		return fmt.Sprintf("%s %q", t.Kind, t.Content)
	case markup.Hyperlink:
		return fmt.Sprintf("%s %q %q", t.Kind, t.URL, t.Label)
	default:
		return t.Kind.String()
	}
}
