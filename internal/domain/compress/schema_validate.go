package compress

import (
	"encoding/json"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateSchemaShape confirms a tool's inputSchema at least parses as a
// well-formed JSON Schema fragment before the recursive description
// rewrite runs over it. Not a gate: a schema that fails to load is
// logged at debug and the description rewrite proceeds regardless of
// the outcome.
func ValidateSchemaShape(toolName string, schema map[string]any, logger *slog.Logger) {
	if schema == nil {
		return
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return
	}
	loader := gojsonschema.NewBytesLoader(raw)
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		if logger != nil {
			logger.Debug("tool input schema failed structural validation, compressing description anyway",
				"tool", toolName, "error", err)
		}
	}
}
