package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"go.uber.org/zap"
)

const (
	// DefaultVideoEndpoint is the video rendering service used when none is configured.
	DefaultVideoEndpoint = "http://127.0.0.1:8001/generate"

	audioFieldName   = "audio_file"
	audioFileName    = "voice.mp3"
	audioContentType = "audio/mpeg"
	textFieldName    = "text"
)

// VideoClient fetches synthesized audio and submits it with the script to the renderer.
type VideoClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVideoClient creates a video stage client.
func NewVideoClient(endpoint string, httpClient *http.Client, logger *zap.Logger) *VideoClient {
	if endpoint == "" {
		endpoint = DefaultVideoEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VideoClient{endpoint: endpoint, httpClient: httpClient, logger: logger}
}

// Generate renders a video from text and the audio hosted at voiceURL.
func (c *VideoClient) Generate(ctx context.Context, text, voiceURL string) (VideoArtifact, error) {
	c.logger.Info("sending text and audio to video service", zap.String("endpoint", c.endpoint), zap.String("voice_url", voiceURL))

	url, err := c.render(ctx, text, voiceURL)
	if err != nil {
		c.logger.Error("video generation failed", zap.String("detail", upstreamDetail(err)), zap.Error(err))
		return VideoArtifact{}, &VideoError{Cause: err}
	}

	c.logger.Info("video generated", zap.String("url", url))
	return VideoArtifact{URL: url}, nil
}

func (c *VideoClient) render(ctx context.Context, text, voiceURL string) (string, error) {
	audio, err := c.fetchAudio(ctx, voiceURL)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}

	body, contentType, err := renderForm(text, audio)
	if err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return doURLRequest(c.httpClient, req)
}

func (c *VideoClient) fetchAudio(ctx context.Context, voiceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voiceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// renderForm builds the multipart body: a text field and the audio as an mp3 file part.
func renderForm(text string, audio []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField(textFieldName, text); err != nil {
		return nil, "", err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, audioFieldName, audioFileName))
	h.Set("Content-Type", audioContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
