package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultVoiceEndpoint is the voice synthesis service used when none is configured.
const DefaultVoiceEndpoint = "http://127.0.0.1:8000/voice/generate"

type voiceRequest struct {
	Text string `json:"text"`
}

// VoiceClient calls the external voice synthesis service.
type VoiceClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVoiceClient creates a voice stage client.
func NewVoiceClient(endpoint string, httpClient *http.Client, logger *zap.Logger) *VoiceClient {
	if endpoint == "" {
		endpoint = DefaultVoiceEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoiceClient{endpoint: endpoint, httpClient: httpClient, logger: logger}
}

// Generate synthesizes narration for text and returns the hosted audio URL.
func (c *VoiceClient) Generate(ctx context.Context, text string) (VoiceArtifact, error) {
	c.logger.Info("sending text to voice service", zap.String("endpoint", c.endpoint), zap.Int("text_len", len(text)))

	url, err := c.synthesize(ctx, text)
	if err != nil {
		c.logger.Error("voice generation failed", zap.String("detail", upstreamDetail(err)), zap.Error(err))
		return VoiceArtifact{}, &VoiceError{Cause: err}
	}

	c.logger.Info("voice generated", zap.String("url", url))
	return VoiceArtifact{URL: url}, nil
}

func (c *VoiceClient) synthesize(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(voiceRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doURLRequest(c.httpClient, req)
}
