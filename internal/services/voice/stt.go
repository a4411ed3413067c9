// internal/services/voice/stt.go
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	commonhttp "platform-services/internal/common/http"
)

// Transcriber converts an audio utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// WhisperClient calls an OpenAI-compatible transcription endpoint.
type WhisperClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *commonhttp.Client
}

func NewWhisperClient(baseURL, apiKey, model string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  commonhttp.NewClient(timeout),
	}
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.DoWithRetry(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, data)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return out.Text, nil
}
