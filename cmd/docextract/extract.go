package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/bootstrap"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/document"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/pipeline"
)

func extractCmd() *cobra.Command {
	var (
		docType  string
		pages    int
		envelope bool
		showText bool
	)
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Run the full extraction on one file and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			out, err := app.Processor.Process(ctx, pipeline.Upload{
				Filename:     filepath.Base(args[0]),
				Data:         data,
				DocumentType: docType,
				PageLimit:    pages,
			})
			if err != nil {
				return err
			}

			res := out.Result.Map()
			if envelope {
				res = out.Result.Envelope()
			}
			res["document_type"] = string(out.DocumentType)
			res["used_ocr"] = out.UsedOCR
			res["elapsed_ms"] = out.ElapsedMs
			if showText {
				res["text"] = out.Text
			}
			if err := printJSON(res); err != nil {
				return err
			}

			if out.Result.Success {
				okColor.Fprintf(os.Stderr, "✔ %s %s confidence=%.3f tokens=%d\n",
					out.Filename, out.DocumentType, out.Result.Confidence, out.Result.Usage.TotalTokens)
			} else {
				failColor.Fprintf(os.Stderr, "✘ %s %s: %s\n", out.Filename, out.DocumentType, out.Result.Error)
			}
			for _, c := range out.Checks {
				dimColor.Fprintf(os.Stderr, "  check %s: %s\n", c.Field, c.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type ("+typesHelp()+"); detected from the filename when empty")
	cmd.Flags().IntVar(&pages, "pages", 0, "only read the first N pages")
	cmd.Flags().BoolVar(&envelope, "envelope", false, "print the nested {success, data: {data, usage, confidence}} shape")
	cmd.Flags().BoolVar(&showText, "show-text", false, "include the assembled text")
	return cmd
}

func textCmd() *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "text FILE",
		Short: "Print the assembled page text, running OCR where a page needs it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			app, err := bootstrap.NewTextStack(ctx, common.LoadConfig(), slog.Default())
			if err != nil {
				return err
			}
			defer app.Close()

			doc, err := document.Open(filepath.Base(args[0]), data, app.Rasterizer)
			if err != nil {
				return err
			}
			defer document.Close(doc)

			text, results := app.Assembler.Assemble(ctx, doc, pages)
			fmt.Println(text)
			for _, r := range results {
				src := "text"
				if r.UsedOCR {
					src = "ocr:" + r.OCREngine
				}
				dimColor.Fprintf(os.Stderr, "page %d: %s, %d chars\n", r.PageIndex+1, src, len([]rune(r.FinalText)))
				for _, w := range r.Warnings {
					failColor.Fprintf(os.Stderr, "  warning: %s\n", w)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 0, "only read the first N pages")
	return cmd
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Show PDF metadata and the detected document type",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := filepath.Base(args[0])
			out := map[string]any{
				"filename":      name,
				"document_type": string(constants.DetectFromFilename(name)),
			}
			if constants.MapExtToFormat(constants.NormalizeExt(filepath.Ext(name))) == constants.PDF {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				info, err := document.ReadInfo(data)
				if err != nil {
					return err
				}
				out["pdf"] = info
			}
			return printJSON(out)
		},
	}
}

func typesHelp() string {
	return strings.Join(constants.AsStringSlice(), ", ")
}
