// Package core provides the audit engine for visit-record spreadsheets.
//
// This package contains all domain logic independent of any UI or transport
// layer. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Architecture
//
//   - Task Templates: declarative [TaskTemplate] values (fields plus a
//     [RuleSet]) held by an injected [Registry]. The engine has no
//     task-name conditionals.
//   - Row Extractor: [Extract] streams one sheet of an xlsx workbook into
//     [Row] values in physical order.
//   - Rule Engine: [Engine] runs per-row validators and cross-row
//     aggregators batch by batch.
//   - Service: [Service] hosts passes, runs the image pass concurrently
//     and tracks asynchronous runs.
//
// # Driving the engine
//
//	eng, err := core.NewEngine(tmpl, core.EngineOptions{})
//	for {
//	    batch, err := stream.Next(core.DefaultBatchSize)
//	    eng.Step(batch)
//	    if err == io.EOF {
//	        break
//	    }
//	}
//	errs := eng.Finish()
//
// Per-row errors come first in row order, then cross-row errors in row
// order. The output does not depend on the batch size. Cancellation is
// checked between batches by [Engine.Drain]; a cancelled pass is still
// finished over the rows seen and the result is marked Incomplete.
//
// # Error Handling
//
// Findings are [ValidationError] values whose [Detail] is a closed set of
// variants, one per errorType. Sheet-level failures become a single
// "structure" finding at row 0, column "-". The only content error a
// [Service] returns is [*SheetNotFoundError].
//
// Technical errors are mapped to user-friendly messages using [MapError]:
//
//   - FILE001-FILE005: File errors (size, legacy format, unreadable)
//   - SHEET001-SHEET003: Sheet errors (missing sheet, header, data)
//   - TASK001-TASK002: Task template errors
//   - VAL001: Validator failures
//   - RUN001-RUN004: Run errors (busy, expired, cancelled, timeout)
package core
