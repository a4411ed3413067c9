// internal/services/voice/dispatch.go
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	commonhttp "platform-services/internal/common/http"
	"platform-services/pkg/registry"
)

// Dispatcher executes a classified intent against the platform's own REST
// API, acting as the user who spoke the utterance.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent *registry.Intent, payload map[string]interface{}, bearerToken string) (string, error)
}

type restDispatcher struct {
	baseURL string
	client  *commonhttp.Client
}

func NewRESTDispatcher(baseURL string, timeout time.Duration) Dispatcher {
	return &restDispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  commonhttp.NewClient(timeout),
	}
}

func (d *restDispatcher) Dispatch(ctx context.Context, intent *registry.Intent, payload map[string]interface{}, bearerToken string) (string, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if err := intent.ValidatePayload(payload); err != nil {
		return "", err
	}

	path, remaining, err := expandPath(intent.Path, payload)
	if err != nil {
		return "", err
	}

	var body io.Reader
	target := d.baseURL + path
	if intent.Method == http.MethodGet {
		if len(remaining) > 0 {
			query := url.Values{}
			for key, value := range remaining {
				query.Set(key, fmt.Sprintf("%v", value))
			}
			target += "?" + query.Encode()
		}
	} else if len(remaining) > 0 {
		data, err := json.Marshal(remaining)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(intent.Method, target, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.DoWithContext(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("intent %s returned status %d: %s", intent.Name, resp.StatusCode, data)
	}

	return summarize(intent, data), nil
}

// expandPath fills {param} segments with matching payload values and returns
// the expanded path plus the slots the path did not consume. A placeholder
// with no matching slot is an error; the request would hit a wrong route.
func expandPath(path string, payload map[string]interface{}) (string, map[string]interface{}, error) {
	remaining := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		placeholder := "{" + key + "}"
		if strings.Contains(path, placeholder) {
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(fmt.Sprintf("%v", value)))
			continue
		}
		remaining[key] = value
	}
	if start := strings.IndexByte(path, '{'); start >= 0 {
		return "", nil, fmt.Errorf("no value for path parameter %s", path[start:])
	}
	return path, remaining, nil
}

// summarize turns the endpoint's JSON response into a short spoken sentence
// using the intent's response hint as the template.
func summarize(intent *registry.Intent, data []byte) string {
	hint := intent.ResponseHint
	if hint == "" {
		return fmt.Sprintf("Done. %s completed.", intent.DisplayName)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return hint
	}

	// Hints may reference top-level response fields as {field}.
	out := hint
	for key, value := range parsed {
		placeholder := "{" + key + "}"
		if !strings.Contains(out, placeholder) {
			continue
		}
		out = strings.ReplaceAll(out, placeholder, fmt.Sprintf("%v", value))
	}
	return out
}
