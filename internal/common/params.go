package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// EngineParametersSchema constrains the OCR_PARAMS_FILE document: a flat object
// of tesseract variable names to scalar values.
func EngineParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"propertyNames": map[string]any{
			"pattern": `^[a-z][a-z0-9_]*$`,
		},
		"additionalProperties": map[string]any{
			"type": []string{"string", "number", "boolean"},
		},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// ParseEngineParameters validates and flattens an engine parameter document
// into the string form tesseract expects.
func ParseEngineParameters(data []byte) (map[string]string, error) {
	if err := ValidateJSONAgainstSchema(EngineParametersSchema(), data); err != nil {
		return nil, NewAppError(CodeConfig, "invalid engine parameters", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewAppError(CodeConfig, "invalid engine parameters", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case bool:
			// tesseract booleans are 0/1
			if tv {
				out[k] = "1"
			} else {
				out[k] = "0"
			}
		case float64:
			out[k] = strconv.FormatFloat(tv, 'f', -1, 64)
		}
	}
	return out, nil
}

// LoadEngineParameters reads OCR_PARAMS_FILE. An empty path yields no parameters.
func LoadEngineParameters(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewAppError(CodeConfig, "read engine parameters", err)
	}
	return ParseEngineParameters(data)
}
