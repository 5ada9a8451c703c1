package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/visitaudit/internal/imaging"
	"golang.org/x/sync/errgroup"
)

// ServiceConfig holds the tunables of a Service. Zero values select defaults.
type ServiceConfig struct {
	BatchSize     int           // Rows per engine step
	MaxConcurrent int           // Parallel passes
	MaxWaitTime   time.Duration // Wait for a pass slot before ErrTooManyPasses
	RunTimeout    time.Duration // Upper bound for one asynchronous run
	ResultTTL     time.Duration // How long finished runs stay retrievable
	Images        bool          // Run the image pass
	ImageOptions  imaging.Options
}

const (
	defaultRunTimeout = 10 * time.Minute
	defaultResultTTL  = 5 * time.Minute
)

// Service hosts validation passes: it resolves templates from an injected
// Registry, bounds concurrency with a PassLimiter, runs the tabular and
// image passes, and tracks asynchronous runs.
type Service struct {
	registry *Registry
	analyzer *imaging.Analyzer
	limiter  *PassLimiter
	cfg      ServiceConfig
	logger   *slog.Logger

	mu   sync.RWMutex
	runs map[string]*activeRun
}

// ValidateRequest is one validation input.
type ValidateRequest struct {
	Task      string
	Sheet     string // Empty selects the first sheet
	FileName  string
	Data      []byte
	Secondary *SecondaryInput // Optional cross-task row set
}

// SecondaryInput is a workbook of a different task type used by
// cross-task checks.
type SecondaryInput struct {
	Task  string
	Sheet string
	Data  []byte
}

// NewService creates a Service.
func NewService(registry *Registry, cfg ServiceConfig) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaultResultTTL
	}

	logger := slog.Default()
	opts := cfg.ImageOptions
	if opts.Logger == nil {
		opts.Logger = logger
	}

	return &Service{
		registry: registry,
		analyzer: imaging.NewAnalyzer(opts),
		limiter:  NewPassLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		cfg:      cfg,
		logger:   logger,
		runs:     make(map[string]*activeRun),
	}
}

// Registry returns the template registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Limiter returns the pass limiter for monitoring and graceful drain.
func (s *Service) Limiter() *PassLimiter {
	return s.limiter
}

// Template returns the template for a task name.
func (s *Service) Template(task string) (*TaskTemplate, error) {
	tmpl, ok := s.registry.Get(task)
	if !ok {
		return nil, fmt.Errorf("unknown task: %s", task)
	}
	return tmpl, nil
}

// Validate runs a validation pass synchronously. Content problems are
// reported inside the result; the only content error returned is a
// *SheetNotFoundError. Unknown tasks and a busy limiter are also errors.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (*ValidationResult, error) {
	release, err := s.limiter.Acquire(ctx, req.Task)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.execute(ctx, req, nil)
}

// execute runs the tabular and image passes concurrently and merges them.
func (s *Service) execute(ctx context.Context, req ValidateRequest, progress func(rows, errs int)) (*ValidationResult, error) {
	start := time.Now()

	tmpl, err := s.Template(req.Task)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("task", req.Task, "file", req.FileName).With(clientAttrs(ctx)...)
	logger.Info("validation started", "sheet", req.Sheet, "bytes", len(req.Data))

	secondary, issue, err := s.loadSecondary(tmpl, req.Secondary)
	if err != nil {
		return nil, err
	}

	var (
		tab    tabularOutcome
		report *imaging.Report
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tab, err = s.tabularPass(gctx, tmpl, req, secondary, logger, progress)
		return err
	})
	if s.cfg.Images {
		g.Go(func() error {
			report = s.analyzer.AnalyzeWorkbook(gctx, req.Data, req.Sheet)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("validation failed", "error", err)
		return nil, err
	}

	if issue != nil {
		tab.Errors = append(tab.Errors, issue.asValidationError())
	}

	result := buildResult(req.Task, tab, report, time.Since(start))
	logger.Info("validation completed",
		"rows", result.Summary.TotalRows,
		"errors", result.Summary.ErrorCount,
		"valid", result.IsValid,
		"incomplete", result.Incomplete,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// tabularPass extracts rows in batches and drives the rule engine.
func (s *Service) tabularPass(ctx context.Context, tmpl *TaskTemplate, req ValidateRequest, secondary *SecondaryRows, logger *slog.Logger, progress func(rows, errs int)) (tabularOutcome, error) {
	out := tabularOutcome{Sheet: req.Sheet}

	f, err := OpenWorkbook(req.Data)
	if err != nil {
		return structuralOutcome(out, err)
	}
	defer f.Close()

	stream, err := Extract(f, req.Sheet, tmpl)
	if err != nil {
		return structuralOutcome(out, err)
	}
	defer stream.Close()
	out.Sheet = stream.Sheet()

	if missing := stream.MissingHeaders(); len(missing) > 0 {
		logger.Debug("template headers not found", "sheet", out.Sheet, "missing", missing)
	}

	eng, err := NewEngine(tmpl, EngineOptions{Secondary: secondary, Logger: logger})
	if err != nil {
		return out, err
	}

	complete, err := eng.Drain(ctx, stream, s.cfg.BatchSize, func(rows, errs int) {
		logger.Debug("batch processed", "rows", rows, "errors", errs)
		if progress != nil {
			progress(rows, errs)
		}
	})
	if err != nil {
		out.Structural = &StructuralError{Sheet: out.Sheet, Reason: fmt.Sprintf("read rows: %v", err)}
	}

	out.Errors = eng.Finish()
	out.TotalRows = eng.RowsSeen()
	out.Flagged = eng.FlaggedRows()
	out.Incomplete = !complete && err == nil
	return out, nil
}

// structuralOutcome converts extractor failures. Sheet-not-found passes
// through as an error; structural failures become the outcome.
func structuralOutcome(out tabularOutcome, err error) (tabularOutcome, error) {
	var se *StructuralError
	if errors.As(err, &se) {
		out.Structural = se
		return out, nil
	}
	return out, err
}

// loadSecondary extracts the cross-task row set. An empty task selects the
// other task of the primary template's first cross-task rule. A structural
// problem in the secondary workbook is returned as an issue to report, not
// a failure.
func (s *Service) loadSecondary(primary *TaskTemplate, in *SecondaryInput) (*SecondaryRows, *StructuralError, error) {
	if in == nil || len(in.Data) == 0 {
		return nil, nil, nil
	}

	task := in.Task
	if task == "" && len(primary.Rules.CrossTask) > 0 {
		task = primary.Rules.CrossTask[0].OtherTask
	}
	tmpl, err := s.Template(task)
	if err != nil {
		return nil, nil, fmt.Errorf("secondary: %w", err)
	}

	f, err := OpenWorkbook(in.Data)
	if err != nil {
		return secondaryIssue(err)
	}
	defer f.Close()

	rows, err := ExtractAll(f, in.Sheet, tmpl)
	if err != nil {
		return secondaryIssue(err)
	}
	return &SecondaryRows{Template: tmpl, Rows: rows}, nil, nil
}

func secondaryIssue(err error) (*SecondaryRows, *StructuralError, error) {
	var se *StructuralError
	if errors.As(err, &se) {
		issue := *se
		issue.Reason = "secondary workbook: " + issue.Reason
		return nil, &issue, nil
	}
	return nil, nil, fmt.Errorf("secondary: %w", err)
}

// SheetNames lists the sheets of a workbook so a host can offer a choice
// after a *SheetNotFoundError.
func SheetNames(data []byte) ([]string, error) {
	f, err := OpenWorkbook(data)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
