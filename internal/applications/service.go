package applications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/yuin/goldmark"
)

// ErrSyncUnsupported is returned by sources that cannot scan email.
var ErrSyncUnsupported = errors.New("email sync not supported by this record store")

// Source is the record store the dashboard reads from.
type Source interface {
	List(ctx context.Context) ([]Record, error)
	Create(ctx context.Context, in CreateInput) (*Record, error)
	SyncEmails(ctx context.Context) (*SyncResult, error)
}

// DashboardData is everything one dashboard view needs, computed over a
// single snapshot.
type DashboardData struct {
	Records  []Record     `json:"records"`
	Filtered []Record     `json:"filtered"`
	Counts   StatusCounts `json:"counts"`
	Months   []MonthCount `json:"months"`
	Summary  Summary      `json:"summary"`
	Flow     FlowGraph    `json:"flow"`
}

type Service struct {
	src      Source
	flow     FlowConfig
	validate *validator.Validate
	md       goldmark.Markdown
	log      *slog.Logger
	now      func() time.Time
}

func NewService(src Source, flow FlowConfig, log *slog.Logger) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("applieddate", func(fl validator.FieldLevel) bool {
		_, err := Record{AppliedDate: fl.Field().String()}.AppliedTime()
		return err == nil
	})

	return &Service{
		src:      src,
		flow:     flow,
		validate: v,
		md:       goldmark.New(),
		log:      log,
		now:      time.Now,
	}
}

// Snapshot fetches the full record list
func (s *Service) Snapshot(ctx context.Context) ([]Record, error) {
	records, err := s.src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch applications: %w", err)
	}
	return records, nil
}

// List returns the filtered records
func (s *Service) List(ctx context.Context, query, status string) ([]Record, error) {
	records, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(records, query, status), nil
}

// Dashboard fetches once and derives the table, charts and flow from that
// snapshot. Counts and flow cover every record; Filtered honours the query.
func (s *Service) Dashboard(ctx context.Context, query, status string) (*DashboardData, error) {
	records, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.Derive(records, query, status), nil
}

// Derive runs the aggregations over an already fetched snapshot.
func (s *Service) Derive(records []Record, query, status string) *DashboardData {
	counts := CountByStatus(records)
	return &DashboardData{
		Records:  records,
		Filtered: Filter(records, query, status),
		Counts:   counts,
		Months:   CountByMonth(records, s.log),
		Summary:  Summarize(records),
		Flow:     EstimateFlow(counts, s.flow),
	}
}

// Create validates and normalizes the input, then hands it to the source
func (s *Service) Create(ctx context.Context, in CreateInput) (*Record, error) {
	in.Company = strings.TrimSpace(in.Company)
	in.Position = strings.TrimSpace(in.Position)
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	in.AppliedDate = strings.TrimSpace(in.AppliedDate)

	if err := s.validate.Struct(in); err != nil {
		return nil, &ValidationError{err: err}
	}

	if in.Status == "" {
		in.Status = string(StatusApplied)
	}
	if in.AppliedDate == "" {
		in.AppliedDate = s.now().Format("2006-01-02")
	}

	rec, err := s.src.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}
	s.log.Info("application created", "id", rec.ID, "company", rec.Company)
	return rec, nil
}

// SyncEmails asks the record store to scan the mailbox for new applications
func (s *Service) SyncEmails(ctx context.Context) (*SyncResult, error) {
	res, err := s.src.SyncEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync emails: %w", err)
	}
	return res, nil
}

// RenderMarkdown converts application notes to HTML. Raw HTML in the notes
// is not passed through.
func (s *Service) RenderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(content), &buf); err != nil {
		return content
	}
	return buf.String()
}

// ValidationError wraps field errors from the validator
type ValidationError struct {
	err error
}

func (e *ValidationError) Error() string {
	var fields validator.ValidationErrors
	if !errors.As(e.err, &fields) {
		return e.err.Error()
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fieldMessage(f))
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return e.err }

func fieldMessage(f validator.FieldError) string {
	name := f.Field()
	switch f.Tag() {
	case "required":
		return name + " is required"
	case "oneof":
		return name + " must be one of: " + f.Param()
	case "applieddate":
		return name + " must be a date (YYYY-MM-DD)"
	case "url":
		return name + " must be a valid URL"
	case "max":
		return name + " is too long"
	}
	return name + " is invalid"
}
