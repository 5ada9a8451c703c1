package core

import (
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(
		&TaskTemplate{Name: "医院拜访", Group: "拜访"},
		&TaskTemplate{Name: "科室会", Group: "会议"},
		&TaskTemplate{Name: "药店拜访", Group: "拜访"},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}

	all := reg.All()
	var names []string
	for _, tmpl := range all {
		names = append(names, tmpl.Group+"/"+tmpl.Name)
	}
	if got, want := strings.Join(names, ","), "会议/科室会,拜访/医院拜访,拜访/药店拜访"; got != want {
		t.Errorf("All() = %s, want %s", got, want)
	}

	if got := reg.Groups(); len(got) != 2 || got[0] != "会议" || got[1] != "拜访" {
		t.Errorf("Groups() = %v", got)
	}

	if _, ok := reg.Get("零售渠道拜访"); ok {
		t.Error("Get() found an unregistered task")
	}
}

func TestRegistryRejects(t *testing.T) {
	tests := []struct {
		name string
		tmpl *TaskTemplate
		want string
	}{
		{"nil template", nil, "invalid template"},
		{"missing name", &TaskTemplate{}, "invalid template"},
		{"duplicate", &TaskTemplate{Name: "科室会"}, "already registered"},
		{"bad pattern", &TaskTemplate{Name: "x", Fields: []FieldSpec{{Key: "a", Pattern: "(?"}}}, "invalid template x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _ := NewRegistry(&TaskTemplate{Name: "科室会"})
			err := reg.Register(tt.tmpl)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Register() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRegistryReplace(t *testing.T) {
	reg, _ := NewRegistry(&TaskTemplate{Name: "科室会", Label: "old"})

	if err := reg.Replace(&TaskTemplate{Name: "科室会", Label: "new"}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	tmpl, _ := reg.Get("科室会")
	if tmpl.Label != "new" {
		t.Errorf("Label = %q, want new", tmpl.Label)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}
