package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T, cfg ServiceConfig, templates ...*TaskTemplate) *Service {
	t.Helper()
	reg, err := NewRegistry(templates...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return NewService(reg, cfg)
}

func meetingTemplate() *TaskTemplate {
	return &TaskTemplate{
		Name: "科室会",
		Fields: []FieldSpec{
			{Header: "医院名称", Key: "hospital", Required: true},
			{Header: "会议日期", Key: "meetingDate", Type: FieldDate, Required: true},
		},
	}
}

func TestServiceValidate(t *testing.T) {
	tmpl := hospitalTemplate()
	tmpl.Rules.Frequency = []FrequencyRule{{ImplementerField: "implementer", DateField: "visitDate", MaxPerDay: 1}}
	svc := newTestService(t, ServiceConfig{BatchSize: 1}, tmpl)

	data := buildWorkbook(t, [][]any{
		{"医院名称", "医生姓名", "医疗机构等级", "实施人", "拜访日期"},
		{"协和医院", "王医生", "等级医院", "张三", "2024-03-05"},
		{"人民医院", "李医生", "等级医院", "张三", "2024-03-05"},
		{"", "赵医生", "等级医院", "李四", "2024-03-05"},
	})

	result, err := svc.Validate(context.Background(), ValidateRequest{Task: "医院拜访", FileName: "visits.xlsx", Data: data})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if result.Summary.TotalRows != 3 || result.Summary.ValidRows != 1 || result.Summary.ErrorCount != 2 {
		t.Errorf("summary = %+v, want 3 rows, 1 valid, 2 errors", result.Summary)
	}
	if got := errorTypes(result.Errors); len(got) != 2 || got[0] != ErrorRequired || got[1] != ErrorFrequency {
		t.Errorf("errors = %v, want [required frequency]", got)
	}
	if result.IsValid || result.Incomplete {
		t.Errorf("IsValid = %v, Incomplete = %v, want false, false", result.IsValid, result.Incomplete)
	}
	if result.ImageValidation != nil {
		t.Error("image pass ran while disabled")
	}
}

func TestServiceValidateFailures(t *testing.T) {
	svc := newTestService(t, ServiceConfig{}, hospitalTemplate())
	data := buildWorkbook(t, [][]any{{"医院名称"}, {"协和医院"}})

	t.Run("sheet not found is an error", func(t *testing.T) {
		_, err := svc.Validate(context.Background(), ValidateRequest{Task: "医院拜访", Sheet: "拜访记录", Data: data})
		if !errors.Is(err, ErrSheetNotFound) {
			t.Errorf("error = %v, want sheet not found", err)
		}
	})

	t.Run("unknown task is an error", func(t *testing.T) {
		_, err := svc.Validate(context.Background(), ValidateRequest{Task: "门诊拜访", Data: data})
		if MapError(err).Code != "TASK001" {
			t.Errorf("error = %v, want unknown task", err)
		}
	})

	t.Run("structural problems are a result", func(t *testing.T) {
		result, err := svc.Validate(context.Background(), ValidateRequest{Task: "医院拜访", Data: []byte("plain text")})
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if result.IsValid || len(result.Errors) != 1 || result.Errors[0].Type() != ErrorStructure {
			t.Errorf("result = %+v, want one structure error", result)
		}
		if result.Errors[0].Row != 0 || result.Errors[0].Column != "-" {
			t.Errorf("structure error at %s%d, want row 0 column -", result.Errors[0].Column, result.Errors[0].Row)
		}
	})
}

func TestServiceCrossTask(t *testing.T) {
	visits := hospitalTemplate()
	visits.Rules.CrossTask = []CrossTaskRule{{OtherTask: "科室会", EntityField: "hospital", DateField: "visitDate", OtherDateField: "meetingDate"}}
	svc := newTestService(t, ServiceConfig{}, visits, meetingTemplate())

	primary := buildWorkbook(t, [][]any{
		{"医院名称", "拜访日期"},
		{"协和医院", "2024-03-05"},
		{"人民医院", "2024-03-05"},
	})

	t.Run("matching month is flagged in both sets", func(t *testing.T) {
		secondary := buildWorkbook(t, [][]any{
			{"医院名称", "会议日期"},
			{"协和医院", "2024-03-28"},
		})
		result, err := svc.Validate(context.Background(), ValidateRequest{
			Task:      "医院拜访",
			Data:      primary,
			Secondary: &SecondaryInput{Task: "科室会", Data: secondary},
		})
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if got := countType(result.Errors, ErrorCrossTask); got != 2 {
			t.Errorf("got %d cross-task errors, want 2 (%v)", got, result.Errors)
		}
		if result.Summary.ValidRows != 1 {
			t.Errorf("ValidRows = %d, want 1", result.Summary.ValidRows)
		}
	})

	t.Run("secondary task defaults to the cross-task rule", func(t *testing.T) {
		secondary := buildWorkbook(t, [][]any{
			{"医院名称", "会议日期"},
			{"人民医院", "2024-03-01"},
		})
		result, err := svc.Validate(context.Background(), ValidateRequest{
			Task:      "医院拜访",
			Data:      primary,
			Secondary: &SecondaryInput{Data: secondary},
		})
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if got := countType(result.Errors, ErrorCrossTask); got != 2 {
			t.Errorf("got %d cross-task errors, want 2", got)
		}
	})

	t.Run("unreadable secondary is reported in the result", func(t *testing.T) {
		result, err := svc.Validate(context.Background(), ValidateRequest{
			Task:      "医院拜访",
			Data:      primary,
			Secondary: &SecondaryInput{Task: "科室会", Data: []byte("garbage")},
		})
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if len(result.Errors) != 1 || result.Errors[0].Type() != ErrorStructure {
			t.Errorf("errors = %v, want one structure error for the secondary workbook", result.Errors)
		}
	})
}

func TestServiceAsyncRun(t *testing.T) {
	tmpl := hospitalTemplate()
	svc := newTestService(t, ServiceConfig{BatchSize: 1, ResultTTL: time.Minute}, tmpl)

	data := buildWorkbook(t, [][]any{
		{"医院名称", "拜访日期"},
		{"协和医院", "2024-03-05"},
		{"", "2024-03-06"},
	})

	runID, err := svc.StartValidation(context.Background(), ValidateRequest{Task: "医院拜访", FileName: "visits.xlsx", Data: data})
	if err != nil {
		t.Fatalf("StartValidation() error = %v", err)
	}

	updates, err := svc.SubscribeProgress(runID)
	if err != nil {
		t.Fatalf("SubscribeProgress() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := svc.GetResult(ctx, runID)
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	if result.RunID != runID {
		t.Errorf("RunID = %q, want %q", result.RunID, runID)
	}
	if result.Summary.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", result.Summary.ErrorCount)
	}

	var last RunProgress
	for p := range updates {
		last = p
	}
	if last.Phase != PhaseComplete || last.RowsProcessed != 2 || last.ErrorsFound != 1 {
		t.Errorf("final progress = %+v, want complete with 2 rows and 1 error", last)
	}

	progress, err := svc.GetProgress(runID)
	if err != nil || progress.Phase != PhaseComplete {
		t.Errorf("GetProgress() = %+v, %v", progress, err)
	}
	if err := svc.Limiter().WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain() error = %v, want the slot released", err)
	}
}

func TestServiceRunNotFound(t *testing.T) {
	svc := newTestService(t, ServiceConfig{}, hospitalTemplate())

	if _, err := svc.GetProgress("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetProgress() error = %v, want ErrRunNotFound", err)
	}
	if err := svc.CancelRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("CancelRun() error = %v, want ErrRunNotFound", err)
	}
	if _, err := svc.StartValidation(context.Background(), ValidateRequest{Task: "门诊拜访"}); err == nil {
		t.Error("StartValidation() accepted an unknown task")
	}
}

func TestServiceCancelledPassIsIncomplete(t *testing.T) {
	svc := newTestService(t, ServiceConfig{}, hospitalTemplate())
	data := buildWorkbook(t, [][]any{{"医院名称"}, {"协和医院"}, {""}, {"人民医院"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.execute(ctx, ValidateRequest{Task: "医院拜访", Data: data}, nil)
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if !result.Incomplete || result.Summary.TotalRows != 0 {
		t.Errorf("result = %+v, want incomplete with no rows", result)
	}
	if result.IsValid {
		t.Error("IsValid = true for a pass that never checked its rows")
	}
}
