package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"worksummary/internal/config"
)

type rootOptions struct {
	configPath string
	url        string
	verbose    bool

	cfg config.Config
	log *slog.Logger
}

// NewRootCommand builds the worksummary command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "worksummary",
		Short: "Request and display AI summaries of work items",
		Long: `worksummary asks a summary service for an AI-generated summary of a work
item and reveals it progressively in the terminal.

Configuration comes from defaults, an optional YAML file (--config or
WORKSUMMARY_CONFIG) and WORKSUMMARY_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.url, "url", "", "Override the summary endpoint")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newGetCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newTokenizeCmd())
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newVersionCmd(version))
	return root
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if u := strings.TrimSpace(o.url); u != "" {
		cfg.SummaryURL = u
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	level := cfg.Level()
	if o.verbose {
		level = slog.LevelDebug
	}
	o.cfg = cfg
	o.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// Execute runs the root command with SIGINT/SIGTERM cancelling its context.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(version).ExecuteContext(ctx); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}
