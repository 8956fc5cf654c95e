package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/repository"
)

const (
	sheetLogs    = "Extractions"
	sheetSummary = "Summary"
	maxRows      = 10000
)

// Service produces XLSX bytes for extraction history exports.
type Service struct {
	logs   repository.ExtractionLogRepository
	logger *slog.Logger
}

func NewService(logs repository.ExtractionLogRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logs: logs, logger: logger}
}

// ExportLogsXLSX returns a workbook with one row per extraction log matching
// filter, plus a per-type summary sheet.
// If only From is set the window ends today (inclusive); dates are UTC days.
func (s *Service) ExportLogsXLSX(ctx context.Context, filter repository.LogFilter) ([]byte, error) {
	start := time.Now()
	filter = normalizeWindow(filter, time.Now())
	if filter.Limit <= 0 || filter.Limit > maxRows {
		filter.Limit = maxRows
	}

	rows, err := s.logs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	stats, err := s.logs.Stats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetLogs); err != nil {
		return nil, err
	}
	if err := writeLogs(f, rows); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return nil, err
	}
	if err := writeSummary(f, stats); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(sheetLogs)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_type", filter.DocumentType,
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

var logHeaders = []string{
	"Date",
	"File",
	"Document Type",
	"Status",
	"Confidence",
	"Pages",
	"OCR",
	"Model",
	"Input Tokens",
	"Output Tokens",
	"Total Tokens",
	"Time (ms)",
	"Original URL",
	"Error",
	"Data",
}

func writeLogs(f *excelize.File, rows []*repository.ExtractionLog) error {
	if err := f.SetSheetRow(sheetLogs, "A1", &logHeaders); err != nil {
		return err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheetLogs, 1, 1, style)
	}

	for i, r := range rows {
		data := ""
		if len(r.StructuredData) > 0 {
			if b, err := json.Marshal(r.StructuredData); err == nil {
				data = truncate(string(b), 2000)
			}
		}
		ocr := "no"
		if r.UsedOCR {
			ocr = "yes"
		}
		values := []any{
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			r.Filename,
			r.DocumentType,
			string(r.Status),
			r.Confidence,
			r.PageCount,
			ocr,
			r.ModelName,
			r.InputTokens,
			r.OutputTokens,
			r.TotalTokens,
			r.ProcessingTimeMs,
			r.OriginalURL,
			truncate(r.ErrorMessage, 140),
			data,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetLogs, cell, &values); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(sheetLogs, "A", "A", 20) // date
	_ = f.SetColWidth(sheetLogs, "B", "B", 36) // file
	_ = f.SetColWidth(sheetLogs, "C", "D", 14)
	_ = f.SetColWidth(sheetLogs, "E", "L", 12)
	_ = f.SetColWidth(sheetLogs, "M", "M", 60) // url
	_ = f.SetColWidth(sheetLogs, "N", "N", 48)
	_ = f.SetColWidth(sheetLogs, "O", "O", 80) // json
	return nil
}

func writeSummary(f *excelize.File, st repository.LogStats) error {
	header := []any{"Document Type", "Count", "Success", "Total Tokens", "Avg Confidence"}
	if err := f.SetSheetRow(sheetSummary, "A1", &header); err != nil {
		return err
	}

	types := make([]string, 0, len(st.ByType))
	for t := range st.ByType {
		types = append(types, t)
	}
	sort.Strings(types)

	row := 2
	for _, t := range types {
		ts := st.ByType[t]
		values := []any{t, ts.Count, ts.Success, ts.TotalTokens, ts.AvgConfidence}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetSummary, cell, &values); err != nil {
			return err
		}
		row++
	}
	total := []any{"TOTAL", st.Total, st.Success, st.TotalTokens, st.AvgConfidence}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(sheetSummary, cell, &total); err != nil {
		return err
	}
	_ = f.SetColWidth(sheetSummary, "A", "A", 18)
	_ = f.SetColWidth(sheetSummary, "B", "E", 14)
	return nil
}

// normalizeWindow truncates the window to UTC days and closes an open end.
func normalizeWindow(f repository.LogFilter, now time.Time) repository.LogFilter {
	if f.From != nil {
		d := day(*f.From)
		f.From = &d
	}
	if f.To != nil {
		// inclusive: up to the end of that day
		d := day(*f.To).Add(24*time.Hour - time.Nanosecond)
		f.To = &d
	}
	if f.From != nil && f.To == nil {
		d := day(now).Add(24*time.Hour - time.Nanosecond)
		f.To = &d
	}
	return f
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
