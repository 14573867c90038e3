package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	internaltranscriber "github.com/foxseedlab/rokuonkun/internal/transcriber"
)

const whisperRequestTimeout = 2 * time.Minute

// WhisperServerBackend posts utterances to an OpenAI-compatible transcription
// endpoint (whisper.cpp server, faster-whisper-server, or the hosted API).
type WhisperServerBackend struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewWhisperServerBackend(baseURL, model string) internaltranscriber.Backend {
	return &WhisperServerBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: whisperRequestTimeout},
	}
}

func (b *WhisperServerBackend) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wav); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", b.model); err != nil {
		return "", err
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return "", err
		}
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper server request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper server returned %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("whisper server returned invalid json: %w", err)
	}
	return parsed.Text, nil
}

func (b *WhisperServerBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

func truncateBody(raw []byte) string {
	const max = 256
	s := string(raw)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
