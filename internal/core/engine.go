package core

// engine.go implements the Rule Engine orchestrator.
//
// The engine is driven in batches by its host:
//
//	eng, _ := NewEngine(tmpl, EngineOptions{})
//	for each batch { eng.Step(batch) }
//	errs := eng.Finish()
//
// Step runs the per-row validators over a batch and feeds the cross-row
// aggregators, whose state is cumulative across batches. Finish resolves
// the aggregators and returns the full ordered error list: per-row errors
// in row order, then cross-row errors in row order. Batch size never
// changes the output.
//
// An Engine is owned by exactly one pass and is not safe for concurrent use.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
)

// DefaultBatchSize is the number of rows processed between cancellation checks.
const DefaultBatchSize = 500

// SecondaryRows is the externally supplied row set for cross-task checks.
type SecondaryRows struct {
	Template *TaskTemplate
	Rows     []Row
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Secondary *SecondaryRows

	// Logger is the pass logger, already carrying the task. When nil the
	// default logger is scoped to the template name.
	Logger *slog.Logger
}

// RowSource yields rows in physical order. *RowStream implements it.
type RowSource interface {
	Next(max int) ([]Row, error)
}

// Engine evaluates one task template over one pass of rows.
type Engine struct {
	tmpl   *TaskTemplate
	checks []rowCheck
	aggs   []aggregator
	logger *slog.Logger

	tier1    []ValidationError
	sink     errorSink
	rows     int
	flagged  map[int]struct{}
	final    []ValidationError
	finished bool
}

// NewEngine compiles a template into validators and fresh aggregators.
func NewEngine(tmpl *TaskTemplate, opts EngineOptions) (*Engine, error) {
	if tmpl == nil {
		return nil, errors.New("nil task template")
	}

	checks, err := compileRowChecks(tmpl)
	if err != nil {
		return nil, fmt.Errorf("compile task %s: %w", tmpl.Name, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("task", tmpl.Name)
	}

	e := &Engine{
		tmpl:    tmpl,
		checks:  checks,
		logger:  logger,
		flagged: make(map[int]struct{}),
	}
	e.aggs = buildAggregators(tmpl, opts.Secondary, e.header)
	return e, nil
}

// buildAggregators creates the cross-row aggregators in their fixed order:
// unique, frequency, interval, cross-task.
func buildAggregators(tmpl *TaskTemplate, secondary *SecondaryRows, header func(string) string) []aggregator {
	var aggs []aggregator
	for _, rule := range tmpl.Rules.Unique {
		if len(rule.Fields) > 0 {
			aggs = append(aggs, newUniqueAggregator(rule, header(rule.Fields[0])))
		}
	}
	for _, rule := range tmpl.Rules.Frequency {
		aggs = append(aggs, newFrequencyAggregator(rule, header(rule.ImplementerField)))
	}
	for _, rule := range tmpl.Rules.Interval {
		aggs = append(aggs, newIntervalAggregator(rule, header(rule.DateField)))
	}
	for _, rule := range tmpl.Rules.CrossTask {
		var (
			otherTmpl *TaskTemplate
			rows      []Row
		)
		if secondary != nil && appliesTo(rule, secondary.Template) {
			otherTmpl, rows = secondary.Template, secondary.Rows
		}
		aggs = append(aggs, newCrossTaskAggregator(rule, header(rule.EntityField), otherTmpl, rows))
	}
	return aggs
}

func appliesTo(rule CrossTaskRule, other *TaskTemplate) bool {
	return rule.OtherTask == "" || other == nil || other.Name == rule.OtherTask
}

func (e *Engine) header(key string) string {
	if spec, ok := e.tmpl.Field(key); ok {
		return spec.Header
	}
	return key
}

// Step validates one batch. It returns the per-row errors of the batch;
// cross-row errors are only available from Finish.
func (e *Engine) Step(batch []Row) []ValidationError {
	if e.finished {
		return nil
	}

	start := len(e.tier1)
	for _, row := range batch {
		e.rows++
		for _, c := range e.checks {
			e.runCheck(c, row)
		}
		for _, a := range e.aggs {
			e.observe(a, row)
		}
	}

	out := append([]ValidationError(nil), e.tier1[start:]...)
	for _, ve := range out {
		e.flag(ve)
	}
	return out
}

// Finish resolves the cross-row aggregators and returns the full ordered
// error list. Further calls return the same list.
func (e *Engine) Finish() []ValidationError {
	if e.finished {
		return e.final
	}
	e.finished = true

	for _, a := range e.aggs {
		e.resolve(a)
	}

	primary := e.sink.primary
	sort.SliceStable(primary, func(i, j int) bool { return primary[i].Row < primary[j].Row })
	secondary := e.sink.secondary
	sort.SliceStable(secondary, func(i, j int) bool { return secondary[i].Row < secondary[j].Row })

	for _, ve := range primary {
		e.flag(ve)
	}

	e.final = make([]ValidationError, 0, len(e.tier1)+len(primary)+len(secondary))
	e.final = append(e.final, e.tier1...)
	e.final = append(e.final, primary...)
	e.final = append(e.final, secondary...)
	return e.final
}

// RowsSeen returns the number of rows stepped so far.
func (e *Engine) RowsSeen() int {
	return e.rows
}

// FlaggedRows returns the number of distinct primary rows carrying at least
// one error. Secondary row errors are not counted.
func (e *Engine) FlaggedRows() int {
	return len(e.flagged)
}

// ErrorsFound returns the number of errors found so far.
func (e *Engine) ErrorsFound() int {
	if e.finished {
		return len(e.final)
	}
	return len(e.tier1) + len(e.sink.primary)
}

// Drain steps every batch from src until it is exhausted or ctx is done.
// Cancellation is checked at batch boundaries only; a cancelled drain
// returns complete=false with a nil error so the caller can still Finish
// over the rows seen. onBatch, when non-nil, is called after every batch.
func (e *Engine) Drain(ctx context.Context, src RowSource, batchSize int, onBatch func(rows, errors int)) (complete bool, err error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for {
		if ctx.Err() != nil {
			e.logger.Warn("pass cancelled", "rows", e.rows)
			return false, nil
		}

		batch, err := src.Next(batchSize)
		e.Step(batch)
		if onBatch != nil && len(batch) > 0 {
			onBatch(e.rows, e.ErrorsFound())
		}

		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
	}
}

func (e *Engine) emit(ve ValidationError) {
	e.tier1 = append(e.tier1, ve)
}

func (e *Engine) flag(ve ValidationError) {
	if ve.Row > 0 {
		e.flagged[ve.Row] = struct{}{}
	}
}

// runCheck runs one per-row validator, converting a panic into a
// structure error positioned at the row and field.
func (e *Engine) runCheck(c rowCheck, row Row) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("validator panic recovered", "row", row.Number, "field", c.field, "panic", r)
			e.emit(e.panicError(row, c.field, r))
		}
	}()
	c.run(row, e.emit)
}

func (e *Engine) observe(a aggregator, row Row) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("aggregator panic recovered", "row", row.Number, "panic", r)
			e.sink.primary = append(e.sink.primary, e.panicError(row, "", r))
		}
	}()
	a.observe(row, &e.sink)
}

func (e *Engine) resolve(a aggregator) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("aggregator panic recovered", "panic", r)
			d := StructureDetail{Cause: fmt.Sprintf("cross-row check failed: %v", r)}
			e.sink.primary = append(e.sink.primary, ValidationError{
				Row:     0,
				Column:  "-",
				Message: describe(d),
				Detail:  d,
			})
		}
	}()
	a.finish(&e.sink)
}

func (e *Engine) panicError(row Row, key string, r any) ValidationError {
	d := StructureDetail{Cause: fmt.Sprintf("validation failed: %v", r)}
	ve := ValidationError{
		Sheet:   row.Sheet,
		Row:     row.Number,
		Column:  row.Column(key),
		Message: describe(d),
		Detail:  d,
	}
	if key != "" {
		ve.Field = e.header(key)
		ve.Value = row.Values[key].Raw
	}
	return ve
}
