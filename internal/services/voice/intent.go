// internal/services/voice/intent.go
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	commonhttp "platform-services/internal/common/http"
	"platform-services/pkg/registry"
)

// IntentUnknown is the fallback when the classifier fails or the answer does
// not match a registered intent.
const IntentUnknown = "unknown"

// Classifier maps a transcript to one of the registered intent names plus the
// slot values the utterance mentioned, keyed by the intent schema's property
// names.
type Classifier interface {
	Classify(ctx context.Context, transcript string) (string, map[string]interface{}, error)
}

// ChatClassifier asks an OpenAI-compatible chat completion endpoint to pick
// an intent from the registry's fixed set.
type ChatClassifier struct {
	baseURL  string
	apiKey   string
	model    string
	client   *commonhttp.Client
	registry *registry.IntentRegistry
}

func NewChatClassifier(baseURL, apiKey, model string, timeout time.Duration, reg *registry.IntentRegistry) *ChatClassifier {
	return &ChatClassifier{
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		client:   commonhttp.NewClient(timeout),
		registry: reg,
	}
}

func (c *ChatClassifier) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You classify user utterances into exactly one intent and extract its slot values. ")
	b.WriteString(`Respond with a single JSON object {"intent": "<name>", "slots": {...}} and nothing else. `)
	b.WriteString("Omit slots the user did not mention. Intents:\n")
	for _, in := range c.registry.Intents {
		if slots := slotNames(in); len(slots) > 0 {
			fmt.Fprintf(&b, "- %s: %s (slots: %s)\n", in.Name, in.Description, strings.Join(slots, ", "))
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", in.Name, in.Description)
		}
	}
	fmt.Fprintf(&b, "- %s: none of the above\n", IntentUnknown)
	return b.String()
}

// slotNames lists the property names of an intent's payload schema in stable
// order, so the prompt does not shuffle between calls.
func slotNames(in registry.Intent) []string {
	props, ok := in.PayloadSchema["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *ChatClassifier) Classify(ctx context.Context, transcript string) (string, map[string]interface{}, error) {
	payload := map[string]interface{}{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: c.systemPrompt()},
			{Role: "user", Content: transcript},
		},
		"temperature": 0,
		"max_tokens":  128,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.DoWithRetry(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", nil, fmt.Errorf("classification failed with status %d: %s", resp.StatusCode, data)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil, fmt.Errorf("decode classification response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil, fmt.Errorf("classification returned no choices")
	}

	name, slots := parseAnswer(out.Choices[0].Message.Content)
	if name == IntentUnknown {
		return IntentUnknown, nil, nil
	}
	if _, ok := c.registry.Lookup(name); !ok {
		return IntentUnknown, nil, nil
	}
	return name, slots, nil
}

// parseAnswer reads the model's reply. The prompt asks for a JSON object, but
// models sometimes wrap it in a code fence or answer with a bare intent name;
// both are tolerated.
func parseAnswer(content string) (string, map[string]interface{}) {
	answer := strings.TrimSpace(content)
	answer = strings.TrimPrefix(answer, "```json")
	answer = strings.Trim(answer, "` \n")

	var parsed struct {
		Intent string                 `json:"intent"`
		Slots  map[string]interface{} `json:"slots"`
	}
	if err := json.Unmarshal([]byte(answer), &parsed); err == nil && parsed.Intent != "" {
		return strings.ToLower(strings.TrimSpace(parsed.Intent)), parsed.Slots
	}
	return strings.ToLower(answer), nil
}
