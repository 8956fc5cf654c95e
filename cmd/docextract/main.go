package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/bootstrap"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

var (
	jsonLogs bool
	verbose  bool

	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "docextract",
		Short:         "Extract structured data from Brazilian documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(newLogger())
		},
	}
	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "write logs as JSON to stderr")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		extractCmd(),
		textCmd(),
		infoCmd(),
		historyCmd(),
		exportCmd(),
		batchCmd(),
		dbhealthCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		failColor.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newLogger keeps the console readable: text logs drop time and level unless
// JSON output is requested.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg := common.LoadConfig()
	return bootstrap.New(ctx, cfg, slog.Default())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
