// Package importer loads CSV and XLSX audience files into profiles.
package importer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"audience/internal/core/apperror"
	"audience/internal/domain"
	"audience/internal/domain/profile"
	"audience/internal/domain/segment"
	"audience/pkg/logger"
)

var tracer = otel.Tracer("audience/importer")

const (
	DefaultMaxRows    = 50_000
	maxReportedErrors = 100
)

// ProfileWriter merges incoming rows into stored profiles.
type ProfileWriter interface {
	UpsertMany(ctx context.Context, rows []profile.Incoming) (profile.UpsertResult, error)
}

// SegmentCreator stores the cohort segment of an import.
type SegmentCreator interface {
	CreateImportSegment(ctx context.Context, name, tag string) (*segment.Segment, error)
}

// Options controls one import.
type Options struct {
	Format Format
	// Tag is added to every imported profile. Empty generates "import-<timestamp>".
	Tag           string
	CreateSegment bool
	SegmentName   string
	// DefaultStatus applies to rows without a status cell. Empty means Active.
	DefaultStatus profile.Status
}

// Result summarises an import. SegmentError is set when the rows landed but
// the import segment could not be created; the tag still selects them.
type Result struct {
	Total        int        `json:"total"`
	Inserted     int        `json:"inserted"`
	Updated      int        `json:"updated"`
	Skipped      int        `json:"skipped"`
	Errors       []RowError `json:"errors"`
	Tag          string     `json:"tag"`
	SegmentID    *string    `json:"segmentId,omitempty"`
	SegmentError string     `json:"segmentError,omitempty"`
	Columns      []Column   `json:"columns"`
}

type ServiceConfig struct {
	Profiles ProfileWriter
	Segments SegmentCreator
	// MaxRows caps data rows per file. Zero uses DefaultMaxRows.
	MaxRows int
	Now     func() time.Time
}

type Service struct {
	profiles ProfileWriter
	segments SegmentCreator
	maxRows  int
	now      func() time.Time
	hooks    *domain.HookRegistry[*Result]
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		profiles: cfg.Profiles,
		segments: cfg.Segments,
		maxRows:  cfg.MaxRows,
		now:      cfg.Now,
		hooks:    domain.NewHookRegistry[*Result](),
	}
	if s.maxRows <= 0 {
		s.maxRows = DefaultMaxRows
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Hooks exposes AfterImport listeners.
func (s *Service) Hooks() *domain.HookRegistry[*Result] {
	return s.hooks
}

// Import parses file, merges its valid rows into the tenant's profiles and
// optionally creates a segment for the imported cohort. Invalid rows are
// skipped and reported; a file that cannot be read at all is rejected.
func (s *Service) Import(ctx context.Context, file io.Reader, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "importer.import")
	defer span.End()

	if opts.DefaultStatus == "" {
		opts.DefaultStatus = profile.StatusActive
	}
	status, ok := profile.ParseStatus(string(opts.DefaultStatus))
	if !ok {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown default status %q", opts.DefaultStatus))
	}
	tag := strings.TrimSpace(opts.Tag)
	if tag == "" {
		tag = "import-" + s.now().Format("20060102-150405")
	}
	if strings.ContainsAny(tag, ",;") {
		return nil, apperror.NewValidation("import tag must not contain ',' or ';'")
	}

	table, err := Parse(file, opts.Format, s.maxRows)
	if err != nil {
		return nil, err
	}

	res := &Result{Total: len(table.Rows), Tag: tag, Errors: []RowError{}, Columns: table.Columns}
	rows := make([]profile.Incoming, 0, len(table.Rows))
	for _, row := range table.Rows {
		in, rowErr := MapRow(table.Columns, row, status)
		if rowErr == nil {
			in.Profile.AddTag(tag)
			in.Present[profile.FieldTags] = struct{}{}
			in.Profile.Normalize()
			if err := in.Profile.Validate(ctx); err != nil {
				rowErr = &RowError{Line: row.Line, Message: rowMessage(err)}
			}
		}
		if rowErr != nil {
			res.Skipped++
			if len(res.Errors) < maxReportedErrors {
				res.Errors = append(res.Errors, *rowErr)
			}
			continue
		}
		rows = append(rows, in)
	}

	if len(rows) == 0 {
		return nil, apperror.NewImportRejected("no valid rows").
			WithDetail("errors", res.Errors)
	}

	written, err := s.profiles.UpsertMany(ctx, rows)
	if err != nil {
		return nil, err
	}
	res.Inserted = written.Inserted
	res.Updated = written.Updated

	if opts.CreateSegment && s.segments != nil {
		seg, err := s.segments.CreateImportSegment(ctx, opts.SegmentName, tag)
		if err != nil {
			logger.Warn(ctx, "import segment not created", "tag", tag, "error", err)
			res.SegmentError = "import segment could not be created"
		} else {
			sid := seg.ID.String()
			res.SegmentID = &sid
		}
	}

	span.SetAttributes(
		attribute.Int("import.total", res.Total),
		attribute.Int("import.inserted", res.Inserted),
		attribute.Int("import.updated", res.Updated),
		attribute.Int("import.skipped", res.Skipped),
	)
	logger.Info(ctx, "profiles imported",
		"tag", tag,
		"total", res.Total,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"skipped", res.Skipped,
	)

	if err := s.hooks.Run(ctx, domain.AfterImport, res); err != nil {
		logger.Warn(ctx, "import hook failed", "tag", tag, "error", err)
	}
	return res, nil
}

func rowMessage(err error) string {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
