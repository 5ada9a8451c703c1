package core

import (
	"fmt"
	"testing"
)

func hospitalTemplate() *TaskTemplate {
	return &TaskTemplate{
		Name: "医院拜访",
		Fields: []FieldSpec{
			{Header: "医院名称", Key: "hospital", Required: true},
			{Header: "医生姓名", Key: "doctor"},
			{Header: "医疗机构等级", Key: "level"},
			{Header: "实施人", Key: "implementer"},
			{Header: "拜访日期", Key: "visitDate", Type: FieldDate},
		},
	}
}

func TestUniqueAggregator(t *testing.T) {
	tmpl := hospitalTemplate()
	tmpl.Rules.Unique = []UniqueRule{{Fields: []string{"doctor"}}}

	const n = 5
	var rows []Row
	for i := 0; i < n; i++ {
		rows = append(rows, testRow(tmpl, i+2, map[string]string{"hospital": "协和医院", "doctor": "王医生"}))
	}
	rows = append(rows, testRow(tmpl, n+2, map[string]string{"hospital": "协和医院", "doctor": "李医生"}))

	errs := runEngine(t, tmpl, rows, DefaultBatchSize, EngineOptions{})
	if len(errs) != n-1 {
		t.Fatalf("got %d errors, want %d", len(errs), n-1)
	}
	for i, e := range errs {
		if e.Type() != ErrorUnique {
			t.Errorf("error %d type = %s, want unique", i, e.Type())
		}
		if want := i + 3; e.Row != want {
			t.Errorf("error %d row = %d, want %d", i, e.Row, want)
		}
		if d := e.Detail.(UniqueDetail); d.FirstRow != 2 {
			t.Errorf("error %d firstRow = %d, want 2", i, d.FirstRow)
		}
	}
}

func TestUniqueIgnoresIncompleteKeys(t *testing.T) {
	tmpl := hospitalTemplate()
	tmpl.Rules.Unique = []UniqueRule{{Fields: []string{"hospital", "doctor"}}}

	rows := []Row{
		testRow(tmpl, 2, map[string]string{"hospital": "协和医院"}),
		testRow(tmpl, 3, map[string]string{"hospital": "协和医院"}),
	}
	if errs := runEngine(t, tmpl, rows, 1, EngineOptions{}); countType(errs, ErrorUnique) != 0 {
		t.Errorf("got %v, want no unique errors", errs)
	}
}

func TestFrequencyAggregator(t *testing.T) {
	tmpl := hospitalTemplate()
	tmpl.Rules.Frequency = []FrequencyRule{{ImplementerField: "implementer", DateField: "visitDate", MaxPerDay: 5}}

	const n = 8
	var rows []Row
	for i := 0; i < n; i++ {
		rows = append(rows, testRow(tmpl, i+2, map[string]string{
			"hospital":    fmt.Sprintf("医院%d", i),
			"implementer": "张三",
			"visitDate":   "2024-03-05",
		}))
	}
	// Another implementer and another day do not count.
	rows = append(rows,
		testRow(tmpl, n+2, map[string]string{"hospital": "x", "implementer": "李四", "visitDate": "2024-03-05"}),
		testRow(tmpl, n+3, map[string]string{"hospital": "y", "implementer": "张三", "visitDate": "2024-03-06"}),
	)

	errs := runEngine(t, tmpl, rows, 3, EngineOptions{})
	if len(errs) != n-5 {
		t.Fatalf("got %d errors, want %d (%v)", len(errs), n-5, errs)
	}
	for i, e := range errs {
		// data rows 6..8 sit on sheet rows 7..9
		if want := i + 7; e.Row != want {
			t.Errorf("error %d row = %d, want %d", i, e.Row, want)
		}
		if e.Column != "D" {
			t.Errorf("error %d column = %q, want D", i, e.Column)
		}
		if d := e.Detail.(FrequencyDetail); d.Count != i+6 || d.Limit != 5 {
			t.Errorf("error %d detail = %+v", i, d)
		}
	}
}

func TestIntervalAggregator(t *testing.T) {
	tests := []struct {
		name     string
		dates    []string
		wantRows []int
	}{
		{"exactly the threshold", []string{"2024-03-01", "2024-03-08"}, nil},
		{"one day short", []string{"2024-03-01", "2024-03-07"}, []int{3}},
		{"same day", []string{"2024-03-01", "2024-03-01"}, []int{3}},
		{"later row dated earlier", []string{"2024-03-07", "2024-03-01"}, []int{2}},
		{"compares with nearest prior visit", []string{"2024-03-01", "2024-03-10", "2024-03-12"}, []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := hospitalTemplate()
			tmpl.Rules.Interval = []IntervalRule{{Kind: ErrorDateInterval, EntityFields: []string{"hospital"}, DateField: "visitDate", MinDays: 7}}

			var rows []Row
			for i, d := range tt.dates {
				rows = append(rows, testRow(tmpl, i+2, map[string]string{"hospital": "协和医院", "visitDate": d}))
			}
			// A different entity on the same dates never interacts.
			rows = append(rows, testRow(tmpl, len(tt.dates)+2, map[string]string{"hospital": "人民医院", "visitDate": tt.dates[0]}))

			errs := runEngine(t, tmpl, rows, 1, EngineOptions{})
			if len(errs) != len(tt.wantRows) {
				t.Fatalf("got %d errors, want %d (%v)", len(errs), len(tt.wantRows), errs)
			}
			for i, e := range errs {
				if e.Type() != ErrorDateInterval {
					t.Errorf("type = %s, want dateInterval", e.Type())
				}
				if e.Row != tt.wantRows[i] {
					t.Errorf("row = %d, want %d", e.Row, tt.wantRows[i])
				}
				if e.Column != "E" {
					t.Errorf("column = %q, want E", e.Column)
				}
			}
		})
	}
}

func TestSixMonthsInterval(t *testing.T) {
	tmpl := hospitalTemplate()
	tmpl.Rules.Interval = []IntervalRule{{Kind: ErrorSixMonthsInterval, EntityFields: []string{"hospital", "doctor"}, DateField: "visitDate", MinDays: 182}}

	rows := []Row{
		testRow(tmpl, 2, map[string]string{"hospital": "协和医院", "doctor": "王医生", "visitDate": "2024-01-10"}),
		testRow(tmpl, 3, map[string]string{"hospital": "协和医院", "doctor": "王医生", "visitDate": "2024-05-10"}),
		testRow(tmpl, 4, map[string]string{"hospital": "协和医院", "doctor": "李医生", "visitDate": "2024-05-10"}),
	}

	errs := runEngine(t, tmpl, rows, DefaultBatchSize, EngineOptions{})
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1 (%v)", len(errs), errs)
	}
	if errs[0].Type() != ErrorSixMonthsInterval || errs[0].Row != 3 {
		t.Errorf("got %s on row %d, want sixMonthsInterval on row 3", errs[0].Type(), errs[0].Row)
	}
}

func TestLevelDependentInterval(t *testing.T) {
	tmpl := hospitalTemplate()
	tmpl.Rules.Interval = []IntervalRule{{
		EntityFields: []string{"hospital"},
		DateField:    "visitDate",
		LevelField:   "level",
		LevelDays:    map[string]int{"等级医院": 7, "基层医疗": 3, "民营医院": 2},
	}}

	rows := []Row{
		// 等级医院: 5 days apart, threshold 7
		testRow(tmpl, 2, map[string]string{"hospital": "协和医院", "level": "等级医院", "visitDate": "2024-03-01"}),
		testRow(tmpl, 3, map[string]string{"hospital": "协和医院", "level": "等级医院", "visitDate": "2024-03-06"}),
		// 基层医疗: 3 days apart, threshold 3
		testRow(tmpl, 4, map[string]string{"hospital": "社区中心", "level": "基层医疗", "visitDate": "2024-03-01"}),
		testRow(tmpl, 5, map[string]string{"hospital": "社区中心", "level": "基层医疗", "visitDate": "2024-03-04"}),
		// unknown level has no threshold
		testRow(tmpl, 6, map[string]string{"hospital": "某诊所", "level": "诊所", "visitDate": "2024-03-01"}),
		testRow(tmpl, 7, map[string]string{"hospital": "某诊所", "level": "诊所", "visitDate": "2024-03-01"}),
	}

	errs := runEngine(t, tmpl, rows, 2, EngineOptions{})
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1 (%v)", len(errs), errs)
	}
	if errs[0].Row != 3 {
		t.Errorf("row = %d, want 3", errs[0].Row)
	}
	if d := errs[0].Detail.(IntervalDetail); d.MinDays != 7 || d.GapDays != 5 || d.PreviousRow != 2 {
		t.Errorf("detail = %+v", d)
	}
}

func TestCrossTaskAggregator(t *testing.T) {
	visits := hospitalTemplate()
	visits.Rules.CrossTask = []CrossTaskRule{{OtherTask: "科室会", EntityField: "hospital", DateField: "visitDate", OtherDateField: "meetingDate"}}

	meetings := &TaskTemplate{
		Name: "科室会",
		Fields: []FieldSpec{
			{Header: "医院名称", Key: "hospital"},
			{Header: "会议日期", Key: "meetingDate", Type: FieldDate},
		},
	}

	rows := []Row{
		testRow(visits, 2, map[string]string{"hospital": "协和医院", "visitDate": "2024-03-05"}),
		testRow(visits, 3, map[string]string{"hospital": "人民医院", "visitDate": "2024-03-05"}),
		testRow(visits, 4, map[string]string{"hospital": "协和医院", "visitDate": "2024-03-20"}),
		testRow(visits, 5, map[string]string{"hospital": "协和医院", "visitDate": "2024-04-02"}),
	}
	secondary := &SecondaryRows{
		Template: meetings,
		Rows: []Row{
			testRow(meetings, 2, map[string]string{"hospital": "协和医院", "meetingDate": "2024-03-28"}),
			testRow(meetings, 3, map[string]string{"hospital": "人民医院", "meetingDate": "2024-05-01"}),
		},
	}

	errs := runEngine(t, visits, rows, 2, EngineOptions{Secondary: secondary})

	type pos struct {
		sheetRow int
		column   string
	}
	want := []pos{{2, "A"}, {4, "A"}, {2, "A"}}
	if len(errs) != len(want) {
		t.Fatalf("got %d errors, want %d (%v)", len(errs), len(want), errs)
	}
	for i, e := range errs {
		if e.Type() != ErrorCrossTask {
			t.Errorf("error %d type = %s, want crossTaskValidation", i, e.Type())
		}
		if e.Row != want[i].sheetRow || e.Column != want[i].column {
			t.Errorf("error %d at %s%d, want %s%d", i, e.Column, e.Row, want[i].column, want[i].sheetRow)
		}
	}
	if d := errs[2].Detail.(CrossTaskDetail); d.Key != "协和医院|2024-03" || d.OtherTask != "科室会" {
		t.Errorf("secondary detail = %+v", d)
	}
}

func TestCrossTaskIgnoresOtherTasks(t *testing.T) {
	visits := hospitalTemplate()
	visits.Rules.CrossTask = []CrossTaskRule{{OtherTask: "科室会", EntityField: "hospital", DateField: "visitDate"}}

	other := &TaskTemplate{Name: "药店拜访", Fields: visits.Fields}
	rows := []Row{testRow(visits, 2, map[string]string{"hospital": "协和医院", "visitDate": "2024-03-05"})}
	secondary := &SecondaryRows{Template: other, Rows: []Row{testRow(other, 2, map[string]string{"hospital": "协和医院", "visitDate": "2024-03-05"})}}

	if errs := runEngine(t, visits, rows, 1, EngineOptions{Secondary: secondary}); len(errs) != 0 {
		t.Errorf("got %v, want no errors for a secondary set of another task", errs)
	}
}
