// Package schema defines the on-disk format of task templates and
// provides strict YAML and TOML parsing.
//
// A template file declares one task type: its columns and the generic
// rules that apply to them. Files are checked in three phases (strict
// decode, JSON Schema, domain rules) and converted to core.TaskTemplate
// values for the registry.
package schema

// TemplateFile is the top-level document describing one task type.
type TemplateFile struct {
	Name   string      `yaml:"name"            toml:"name"            json:"name"            jsonschema:"minLength=1"`
	Group  string      `yaml:"group,omitempty" toml:"group,omitempty" json:"group,omitempty"`
	Label  string      `yaml:"label,omitempty" toml:"label,omitempty" json:"label,omitempty"`
	Fields []FieldDef  `yaml:"fields"          toml:"fields"          json:"fields"          jsonschema:"minItems=1"`
	Rules  *RulesBlock `yaml:"rules,omitempty" toml:"rules,omitempty" json:"rules,omitempty"`
}

// FieldDef declares one expected column.
type FieldDef struct {
	Header   string   `yaml:"header"             toml:"header"             json:"header"             jsonschema:"minLength=1"`
	Key      string   `yaml:"key"                toml:"key"                json:"key"                jsonschema:"minLength=1"`
	Type     string   `yaml:"type,omitempty"     toml:"type,omitempty"     json:"type,omitempty"     jsonschema:"enum=text,enum=enum,enum=date,enum=time,enum=datetime,enum=number"`
	Required bool     `yaml:"required,omitempty" toml:"required,omitempty" json:"required,omitempty"`
	Enum     []string `yaml:"enum,omitempty"     toml:"enum,omitempty"     json:"enum,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty"  toml:"pattern,omitempty"  json:"pattern,omitempty"`
	Min      *float64 `yaml:"min,omitempty"      toml:"min,omitempty"      json:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"      toml:"max,omitempty"      json:"max,omitempty"`
}

// RulesBlock lists the rule instances a template enables.
type RulesBlock struct {
	Unique              []UniqueDef       `yaml:"unique,omitempty"              toml:"unique,omitempty"              json:"unique,omitempty"`
	Frequency           []FrequencyDef    `yaml:"frequency,omitempty"           toml:"frequency,omitempty"           json:"frequency,omitempty"`
	Interval            []IntervalDef     `yaml:"interval,omitempty"            toml:"interval,omitempty"            json:"interval,omitempty"`
	TimeRange           []TimeRangeDef    `yaml:"timeRange,omitempty"           toml:"timeRange,omitempty"           json:"timeRange,omitempty"`
	Duration            []DurationDef     `yaml:"duration,omitempty"            toml:"duration,omitempty"            json:"duration,omitempty"`
	MedicalLevel        []MedicalLevelDef `yaml:"medicalLevel,omitempty"        toml:"medicalLevel,omitempty"        json:"medicalLevel,omitempty"`
	ProhibitedContent   []ContentDef      `yaml:"prohibitedContent,omitempty"   toml:"prohibitedContent,omitempty"   json:"prohibitedContent,omitempty"`
	MaterialRequirement []MaterialDef     `yaml:"materialRequirement,omitempty" toml:"materialRequirement,omitempty" json:"materialRequirement,omitempty"`
	CrossTask           []CrossTaskDef    `yaml:"crossTask,omitempty"           toml:"crossTask,omitempty"           json:"crossTask,omitempty"`
}

// UniqueDef requires the combination of field values to be unique.
type UniqueDef struct {
	Fields []string `yaml:"fields" toml:"fields" json:"fields" jsonschema:"minItems=1"`
}

// FrequencyDef caps rows per implementer per day.
type FrequencyDef struct {
	Implementer string `yaml:"implementer" toml:"implementer" json:"implementer" jsonschema:"minLength=1"`
	Date        string `yaml:"date"        toml:"date"        json:"date"        jsonschema:"minLength=1"`
	MaxPerDay   int    `yaml:"maxPerDay"   toml:"maxPerDay"   json:"maxPerDay"   jsonschema:"minimum=1"`
}

// IntervalDef requires a minimum gap in days between visits to one entity.
// With levelField set, levelDays supplies the threshold per level value.
type IntervalDef struct {
	Kind       string         `yaml:"kind,omitempty"       toml:"kind,omitempty"       json:"kind,omitempty"       jsonschema:"enum=dateInterval,enum=sixMonthsInterval"`
	Entity     []string       `yaml:"entity"               toml:"entity"               json:"entity"               jsonschema:"minItems=1"`
	Date       string         `yaml:"date"                 toml:"date"                 json:"date"                 jsonschema:"minLength=1"`
	MinDays    int            `yaml:"minDays,omitempty"    toml:"minDays,omitempty"    json:"minDays,omitempty"    jsonschema:"minimum=0"`
	LevelField string         `yaml:"levelField,omitempty" toml:"levelField,omitempty" json:"levelField,omitempty"`
	LevelDays  map[string]int `yaml:"levelDays,omitempty"  toml:"levelDays,omitempty"  json:"levelDays,omitempty"`
}

// TimeRangeDef bounds time-of-day fields, bounds written "HH:MM".
type TimeRangeDef struct {
	Start    string `yaml:"start,omitempty" toml:"start,omitempty" json:"start,omitempty"`
	End      string `yaml:"end,omitempty"   toml:"end,omitempty"   json:"end,omitempty"`
	Earliest string `yaml:"earliest"        toml:"earliest"        json:"earliest"        jsonschema:"pattern=^[0-9]?[0-9]:[0-9][0-9]$"`
	Latest   string `yaml:"latest"          toml:"latest"          json:"latest"          jsonschema:"pattern=^[0-9]?[0-9]:[0-9][0-9]$"`
}

// DurationDef requires a minimum elapsed time in minutes.
type DurationDef struct {
	Field      string `yaml:"field,omitempty" toml:"field,omitempty" json:"field,omitempty"`
	Start      string `yaml:"start,omitempty" toml:"start,omitempty" json:"start,omitempty"`
	End        string `yaml:"end,omitempty"   toml:"end,omitempty"   json:"end,omitempty"`
	MinMinutes int    `yaml:"minMinutes"      toml:"minMinutes"      json:"minMinutes"      jsonschema:"minimum=1"`
}

// MedicalLevelDef restricts a field to fixed institution levels.
type MedicalLevelDef struct {
	Field   string   `yaml:"field"   toml:"field"   json:"field"   jsonschema:"minLength=1"`
	Allowed []string `yaml:"allowed" toml:"allowed" json:"allowed" jsonschema:"minItems=1"`
}

// ContentDef rejects field values containing any banned word.
type ContentDef struct {
	Field string   `yaml:"field" toml:"field" json:"field" jsonschema:"minLength=1"`
	Words []string `yaml:"words" toml:"words" json:"words" jsonschema:"minItems=1"`
}

// MaterialDef requires a field to mention the listed materials.
type MaterialDef struct {
	Field      string   `yaml:"field"                toml:"field"                json:"field"                jsonschema:"minLength=1"`
	Keywords   []string `yaml:"keywords"             toml:"keywords"             json:"keywords"             jsonschema:"minItems=1"`
	RequireAll bool     `yaml:"requireAll,omitempty" toml:"requireAll,omitempty" json:"requireAll,omitempty"`
}

// CrossTaskDef flags entity+month keys also present in another task's rows.
type CrossTaskDef struct {
	OtherTask   string `yaml:"otherTask"             toml:"otherTask"             json:"otherTask"             jsonschema:"minLength=1"`
	Entity      string `yaml:"entity"                toml:"entity"                json:"entity"                jsonschema:"minLength=1"`
	Date        string `yaml:"date"                  toml:"date"                  json:"date"                  jsonschema:"minLength=1"`
	OtherEntity string `yaml:"otherEntity,omitempty" toml:"otherEntity,omitempty" json:"otherEntity,omitempty"`
	OtherDate   string `yaml:"otherDate,omitempty"   toml:"otherDate,omitempty"   json:"otherDate,omitempty"`
}
