// pkg/registry/schema.go
package registry

// IntentRegistry maps classified voice intents to internal REST endpoints.
type IntentRegistry struct {
	Version     string   `json:"version"`
	LastUpdated string   `json:"lastUpdated"`
	Intents     []Intent `json:"intents"`
}

type Intent struct {
	Name          string                 `json:"name"`
	DisplayName   string                 `json:"displayName"`
	Description   string                 `json:"description"`
	Method        string                 `json:"method"`
	Path          string                 `json:"path"`
	PayloadSchema map[string]interface{} `json:"payloadSchema,omitempty"`
	ResponseHint  string                 `json:"responseHint,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
}
