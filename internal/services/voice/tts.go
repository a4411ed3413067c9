// internal/services/voice/tts.go
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	commonhttp "platform-services/internal/common/http"
)

// Synthesizer turns response text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ElevenLabsClient calls the ElevenLabs text-to-speech API.
type ElevenLabsClient struct {
	baseURL string
	apiKey  string
	voiceID string
	client  *commonhttp.Client
}

func NewElevenLabsClient(baseURL, apiKey, voiceID string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		voiceID: voiceID,
		client:  commonhttp.NewClient(timeout),
	}
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]interface{}{
		"text": text,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.client.DoWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("synthesis failed with status %d: %s", resp.StatusCode, data)
	}
	return io.ReadAll(resp.Body)
}
