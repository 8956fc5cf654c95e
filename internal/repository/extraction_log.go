package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

const logTable = "extraction_logs"

// ExtractionLog is one processed upload, successful or not.
type ExtractionLog struct {
	ID               uuid.UUID
	Filename         string
	DocumentType     string
	OriginalKey      string
	OriginalURL      string
	PreviewKey       string
	PreviewURL       string
	ModelName        string
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	Confidence       float64
	StructuredData   map[string]any
	ExtractedText    string
	PageCount        int
	UsedOCR          bool
	ProcessingTimeMs int64
	Status           constants.LogStatus
	ErrorMessage     string
	CreatedAt        time.Time
}

// LogFilter narrows history queries. Zero values mean "any". From is an
// instant; To names a UTC calendar day and includes all of it.
type LogFilter struct {
	DocumentType string
	Status       constants.LogStatus
	From, To     *time.Time
	Limit        int
	Offset       int
}

// TypeStats aggregates logs of one document type.
type TypeStats struct {
	Count         int
	Success       int
	TotalTokens   int64
	AvgConfidence float64
}

// LogStats aggregates a filtered set of logs.
type LogStats struct {
	Total         int
	Success       int
	Errors        int
	TotalTokens   int64
	AvgConfidence float64
	ByType        map[string]TypeStats
}

type ExtractionLogRepository interface {
	Migrate(ctx context.Context) error
	Create(ctx context.Context, log *ExtractionLog) error
	Get(ctx context.Context, id uuid.UUID) (*ExtractionLog, error)
	List(ctx context.Context, filter LogFilter) ([]*ExtractionLog, error)
	Count(ctx context.Context, filter LogFilter) (int, error)
	Stats(ctx context.Context, filter LogFilter) (LogStats, error)
}

type extractionLogRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewExtractionLogRepository(drv *entsql.Driver, logger *slog.Logger) ExtractionLogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &extractionLogRepository{drv: drv, logger: logger}
}

var logColumns = []string{
	"id", "filename", "document_type",
	"original_key", "original_url", "preview_key", "preview_url",
	"model_name", "input_tokens", "output_tokens", "total_tokens",
	"confidence", "structured_data", "extracted_text",
	"page_count", "used_ocr", "processing_time_ms",
	"status", "error_message", "created_at",
}

func (r *extractionLogRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func (r *extractionLogRepository) postgres() bool {
	return r.drv.Dialect() == dialect.Postgres
}

// Migrate creates the table and indexes if they do not exist.
func (r *extractionLogRepository) Migrate(ctx context.Context) error {
	b := r.builder()
	types := map[string]string{
		"id": "TEXT", "text": "TEXT", "int": "INTEGER", "bigint": "INTEGER",
		"float": "REAL", "json": "TEXT", "bool": "INTEGER", "time": "DATETIME",
	}
	if r.postgres() {
		types = map[string]string{
			"id": "uuid", "text": "text", "int": "integer", "bigint": "bigint",
			"float": "double precision", "json": "jsonb", "bool": "boolean", "time": "timestamptz",
		}
	}
	col := func(name, kind string, attrs ...string) entsql.Querier {
		return b.Column(name).Type(strings.Join(append([]string{types[kind]}, attrs...), " "))
	}
	columns := []entsql.Querier{
		col("id", "id", "NOT NULL"),
		col("filename", "text", "NOT NULL"),
		col("document_type", "text"),
		col("original_key", "text"),
		col("original_url", "text"),
		col("preview_key", "text"),
		col("preview_url", "text"),
		col("model_name", "text"),
		col("input_tokens", "int", "DEFAULT 0"),
		col("output_tokens", "int", "DEFAULT 0"),
		col("total_tokens", "int", "DEFAULT 0"),
		col("confidence", "float", "DEFAULT 0"),
		col("structured_data", "json"),
		col("extracted_text", "text"),
		col("page_count", "int", "DEFAULT 0"),
		col("used_ocr", "bool"),
		col("processing_time_ms", "bigint"),
		col("status", "text", "NOT NULL"),
		col("error_message", "text"),
		col("created_at", "time", "NOT NULL"),
	}
	q := b.String(func(sb *entsql.Builder) {
		sb.WriteString("CREATE TABLE IF NOT EXISTS ").Ident(logTable).Pad().Wrap(func(w *entsql.Builder) {
			w.JoinComma(columns...)
			w.Comma().WriteString("PRIMARY KEY ").Wrap(func(pk *entsql.Builder) { pk.Ident("id") })
		})
	})
	args := []any{}
	if err := r.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("extraction_log.migrate.failed", "error", err)
		return fmt.Errorf("%w: create %s: %v", common.ErrDatabase, logTable, err)
	}

	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_extraction_logs_created_at ON " + logTable + " (created_at)",
		"CREATE INDEX IF NOT EXISTS idx_extraction_logs_type_status ON " + logTable + " (document_type, status)",
	} {
		if err := r.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			r.logger.Error("extraction_log.migrate.index_failed", "error", err)
			return fmt.Errorf("%w: create index: %v", common.ErrDatabase, err)
		}
	}
	r.logger.Debug("extraction_log.migrate.ok", "dialect", r.drv.Dialect())
	return nil
}

func (r *extractionLogRepository) Create(ctx context.Context, l *ExtractionLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	l.CreatedAt = l.CreatedAt.UTC()
	if l.Status == "" {
		l.Status = constants.LogStatusSuccess
	}

	data, err := r.jsonArg(l.StructuredData)
	if err != nil {
		return fmt.Errorf("%w: encode structured data: %v", common.ErrInvalidInput, err)
	}

	q, args := r.builder().Insert(logTable).
		Columns(logColumns...).
		Values(
			l.ID.String(), l.Filename, l.DocumentType,
			l.OriginalKey, l.OriginalURL, l.PreviewKey, l.PreviewURL,
			l.ModelName, l.InputTokens, l.OutputTokens, l.TotalTokens,
			l.Confidence, data, l.ExtractedText,
			l.PageCount, l.UsedOCR, l.ProcessingTimeMs,
			string(l.Status), l.ErrorMessage, l.CreatedAt,
		).
		Query()
	if err := r.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("extraction_log.create.failed", "id", l.ID, "filename", l.Filename, "error", err)
		return fmt.Errorf("%w: insert extraction log: %v", common.ErrDatabase, err)
	}
	r.logger.Debug("extraction_log.create.ok", "id", l.ID, "status", l.Status)
	return nil
}

func (r *extractionLogRepository) Get(ctx context.Context, id uuid.UUID) (*ExtractionLog, error) {
	b := r.builder()
	q, args := b.Select(logColumns...).
		From(b.Table(logTable)).
		Where(entsql.EQ("id", id.String())).
		Limit(1).
		Query()
	logs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("%w: extraction log %s", common.ErrNotFound, id)
	}
	return logs[0], nil
}

// List returns logs newest first.
func (r *extractionLogRepository) List(ctx context.Context, f LogFilter) ([]*ExtractionLog, error) {
	b := r.builder()
	sel := b.Select(logColumns...).From(b.Table(logTable))
	if p := f.predicate(); p != nil {
		sel.Where(p)
	}
	sel.OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			sel.Limit(math.MaxInt32)
		}
		sel.Offset(f.Offset)
	}
	q, args := sel.Query()
	return r.query(ctx, q, args)
}

func (r *extractionLogRepository) Count(ctx context.Context, f LogFilter) (int, error) {
	b := r.builder()
	sel := b.Select(entsql.Count("*")).From(b.Table(logTable))
	if p := f.predicate(); p != nil {
		sel.Where(p)
	}
	q, args := sel.Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("extraction_log.count.failed", "error", err)
		return 0, fmt.Errorf("%w: count extraction logs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("%w: scan count: %v", common.ErrDatabase, err)
		}
	}
	return n, rows.Err()
}

func (r *extractionLogRepository) Stats(ctx context.Context, f LogFilter) (LogStats, error) {
	b := r.builder()
	sel := b.Select(
		"document_type",
		"status",
		entsql.Count("*"),
		entsql.Sum("total_tokens"),
		entsql.Sum("confidence"),
	).From(b.Table(logTable))
	if p := f.predicate(); p != nil {
		sel.Where(p)
	}
	sel.GroupBy("document_type", "status")
	q, args := sel.Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("extraction_log.stats.failed", "error", err)
		return LogStats{}, fmt.Errorf("%w: extraction log stats: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	stats := LogStats{ByType: map[string]TypeStats{}}
	confSum := map[string]float64{}
	var allConf float64
	for rows.Next() {
		var (
			docType, status sql.NullString
			count           int
			tokens          sql.NullInt64
			conf            sql.NullFloat64
		)
		if err := rows.Scan(&docType, &status, &count, &tokens, &conf); err != nil {
			return LogStats{}, fmt.Errorf("%w: scan stats: %v", common.ErrDatabase, err)
		}
		ts := stats.ByType[docType.String]
		ts.Count += count
		ts.TotalTokens += tokens.Int64
		if constants.LogStatus(status.String) == constants.LogStatusSuccess {
			ts.Success += count
			stats.Success += count
		} else {
			stats.Errors += count
		}
		stats.ByType[docType.String] = ts
		stats.Total += count
		stats.TotalTokens += tokens.Int64
		confSum[docType.String] += conf.Float64
		allConf += conf.Float64
	}
	if err := rows.Err(); err != nil {
		return LogStats{}, fmt.Errorf("%w: iterate stats: %v", common.ErrDatabase, err)
	}
	for t, ts := range stats.ByType {
		if ts.Count > 0 {
			ts.AvgConfidence = round3(confSum[t] / float64(ts.Count))
			stats.ByType[t] = ts
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = round3(allConf / float64(stats.Total))
	}
	return stats, nil
}

func (r *extractionLogRepository) query(ctx context.Context, q string, args []any) ([]*ExtractionLog, error) {
	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("extraction_log.query.failed", "error", err)
		return nil, fmt.Errorf("%w: query extraction logs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*ExtractionLog
	for rows.Next() {
		l, err := scanLog(&rows)
		if err != nil {
			r.logger.Error("extraction_log.scan.failed", "error", err)
			return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate extraction logs: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func scanLog(rows *entsql.Rows) (*ExtractionLog, error) {
	var (
		l                                  ExtractionLog
		id                                 string
		docType, origKey, origURL, prevKey sql.NullString
		prevURL, model, data, text, errMsg sql.NullString
		status                             string
		inTok, outTok, totTok, pages       sql.NullInt64
		elapsed                            sql.NullInt64
		conf                               sql.NullFloat64
		usedOCR                            sql.NullBool
		created                            timeValue
	)
	if err := rows.Scan(
		&id, &l.Filename, &docType,
		&origKey, &origURL, &prevKey, &prevURL,
		&model, &inTok, &outTok, &totTok,
		&conf, &data, &text,
		&pages, &usedOCR, &elapsed,
		&status, &errMsg, &created,
	); err != nil {
		return nil, fmt.Errorf("scan extraction log: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	l.ID = parsed
	l.DocumentType = docType.String
	l.OriginalKey, l.OriginalURL = origKey.String, origURL.String
	l.PreviewKey, l.PreviewURL = prevKey.String, prevURL.String
	l.ModelName = model.String
	l.InputTokens, l.OutputTokens, l.TotalTokens = int(inTok.Int64), int(outTok.Int64), int(totTok.Int64)
	l.Confidence = conf.Float64
	l.ExtractedText = text.String
	l.PageCount = int(pages.Int64)
	l.UsedOCR = usedOCR.Bool
	l.ProcessingTimeMs = elapsed.Int64
	l.Status = constants.LogStatus(status)
	l.ErrorMessage = errMsg.String
	l.CreatedAt = created.t

	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &l.StructuredData); err != nil {
			return nil, fmt.Errorf("decode structured data: %w", err)
		}
	}
	return &l, nil
}

func (r *extractionLogRepository) jsonArg(data map[string]any) (any, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if r.postgres() {
		return b, nil
	}
	return string(b), nil
}

func (f LogFilter) predicate() *entsql.Predicate {
	var preds []*entsql.Predicate
	if f.DocumentType != "" {
		preds = append(preds, entsql.EQ("document_type", f.DocumentType))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if f.From != nil {
		preds = append(preds, entsql.GTE("created_at", f.From.UTC()))
	}
	if f.To != nil {
		preds = append(preds, entsql.LT("created_at", dayAfter(*f.To)))
	}
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return entsql.And(preds...)
	}
}

// dayAfter is midnight UTC following t's calendar day.
func dayAfter(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}

// timeValue scans timestamps returned either as time.Time (Postgres) or as
// text (SQLite).
type timeValue struct{ t time.Time }

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (v *timeValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		v.t = time.Time{}
		return nil
	case time.Time:
		v.t = x.UTC()
		return nil
	case string:
		return v.parse(x)
	case []byte:
		return v.parse(string(x))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (v *timeValue) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			v.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
