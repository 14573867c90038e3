package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	internaltranscriber "github.com/foxseedlab/rokuonkun/internal/transcriber"
	"google.golang.org/api/option"
)

const speechAPIEndpointPort = 443

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

// CloudSpeechBackend runs each utterance through the Cloud Speech v2 batch
// Recognize API. The gRPC client is heavy, so it is created once on first use
// and shared by every session for the life of the process.
type CloudSpeechBackend struct {
	cfg CloudSpeechConfig

	mu     sync.Mutex
	client *speech.Client
}

func NewCloudSpeechBackend(cfg CloudSpeechConfig) internaltranscriber.Backend {
	cfg.Location = strings.TrimSpace(cfg.Location)
	cfg.Model = strings.TrimSpace(cfg.Model)
	return &CloudSpeechBackend{cfg: cfg}
}

func (b *CloudSpeechBackend) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	client, err := b.sharedClient(ctx)
	if err != nil {
		return "", err
	}

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", b.cfg.ProjectID, b.cfg.Location),
		Config: &speechpb.RecognitionConfig{
			Model:         b.cfg.Model,
			LanguageCodes: []string{language},
			// WAV blobs carry their own header; let the API read it.
			DecodingConfig: &speechpb.RecognitionConfig_AutoDecodingConfig{
				AutoDecodingConfig: &speechpb.AutoDetectDecodingConfig{},
			},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{Content: wav},
	})
	if err != nil {
		return "", fmt.Errorf("cloud speech recognize: %w", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

func (b *CloudSpeechBackend) sharedClient(ctx context.Context) (*speech.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(b.cfg.CredentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}

	opts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if b.cfg.Location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", b.cfg.Location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create cloud speech client: %w", err)
	}
	b.client = client
	return client, nil
}

func (b *CloudSpeechBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}
