package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/repository"
)

type filterFlags struct {
	docType string
	status  string
	from    string
	to      string
	limit   int
	offset  int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.docType, "type", "t", "", "only this document type")
	cmd.Flags().StringVar(&f.status, "status", "", "SUCCESS or ERROR")
	cmd.Flags().StringVar(&f.from, "from", "", "from date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "to date YYYY-MM-DD")
}

func (f *filterFlags) build() (repository.LogFilter, error) {
	out := repository.LogFilter{Limit: f.limit, Offset: f.offset}
	if f.docType != "" {
		dt, ok := constants.Canonicalize(f.docType)
		if !ok {
			return out, fmt.Errorf("unknown document type %q (want one of %s)", f.docType, typesHelp())
		}
		out.DocumentType = string(dt)
	}
	if f.status != "" {
		st := constants.LogStatus(strings.ToUpper(f.status))
		if st != constants.LogStatusSuccess && st != constants.LogStatusError {
			return out, fmt.Errorf("--status must be SUCCESS or ERROR")
		}
		out.Status = st
	}
	var err error
	if out.From, err = common.ParseOptionalYMD(f.from); err != nil {
		return out, fmt.Errorf("--from: %w", err)
	}
	if out.To, err = common.ParseOptionalYMD(f.to); err != nil {
		return out, fmt.Errorf("--to: %w", err)
	}
	return out, nil
}

func historyCmd() *cobra.Command {
	var (
		ff       filterFlags
		asJSON   bool
		withStat bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past extractions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			filter, err := ff.build()
			if err != nil {
				return err
			}
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			logs, err := app.Logs.List(ctx, filter)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(logs)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tFILE\tTYPE\tSTATUS\tCONF\tTOKENS\tOCR\tMS")
			for _, l := range logs {
				st := okColor.Sprint(l.Status)
				if l.Status != constants.LogStatusSuccess {
					st = failColor.Sprint(l.Status)
				}
				ocrMark := "-"
				if l.UsedOCR {
					ocrMark = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.3f\t%d\t%s\t%d\n",
					l.CreatedAt.Local().Format("2006-01-02 15:04"), l.Filename, l.DocumentType,
					st, l.Confidence, l.TotalTokens, ocrMark, l.ProcessingTimeMs)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if withStat {
				s, err := app.Logs.Stats(ctx, filter)
				if err != nil {
					return err
				}
				dimColor.Printf("\n%d total, %d ok, %d errors, %d tokens, avg confidence %.3f\n",
					s.Total, s.Success, s.Errors, s.TotalTokens, s.AvgConfidence)
			}
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().IntVar(&ff.limit, "limit", 20, "max rows")
	cmd.Flags().IntVar(&ff.offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as JSON")
	cmd.Flags().BoolVar(&withStat, "stats", false, "print totals for the filter")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		ff  filterFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write extraction history to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			filter, err := ff.build()
			if err != nil {
				return err
			}
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			b, err := app.Exporter.ExportLogsXLSX(ctx, filter)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			okColor.Fprintf(os.Stderr, "✔ wrote %s (%d bytes)\n", out, len(b))
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "extractions.xlsx", "output XLSX path")
	return cmd
}

func dbhealthCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Ping the database and report log counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.DB.HealthCheck(ctx, timeout, nil); err != nil {
				return fmt.Errorf("database ping failed: %w", err)
			}
			n, err := app.Logs.Count(ctx, repository.LogFilter{})
			if err != nil {
				return err
			}
			okColor.Printf("✔ %s OK", app.DB.Dialect())
			dimColor.Printf(" (%d extraction logs)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "ping timeout")
	return cmd
}
