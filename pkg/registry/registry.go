// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

func LoadRegistry(path string) (*IntentRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg IntentRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// Lookup finds an intent by name. Matching is case-insensitive because the
// classifier output casing is not guaranteed.
func (r *IntentRegistry) Lookup(name string) (*Intent, bool) {
	for i := range r.Intents {
		if strings.EqualFold(r.Intents[i].Name, name) {
			return &r.Intents[i], true
		}
	}
	return nil, false
}

// ValidatePayload checks an intent payload against the intent's JSON schema.
// Intents without a schema accept any payload.
func (in *Intent) ValidatePayload(payload map[string]interface{}) error {
	if len(in.PayloadSchema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(in.PayloadSchema)
	documentLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("payload invalid: %s", strings.Join(msgs, "; "))
	}
	return nil
}
