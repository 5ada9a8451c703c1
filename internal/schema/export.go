package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaID is the $id of the generated template schema.
const SchemaID = "https://github.com/JonMunkholm/visitaudit/schemas/task-template-v1.json"

// GenerateJSONSchema produces the JSON Schema document for TemplateFile
// using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&TemplateFile{})
	s.ID = SchemaID
	s.Title = "Visit audit task template v1"
	s.Description = "Columns and rule thresholds of one task type"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
