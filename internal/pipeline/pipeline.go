// Package pipeline generates a reel from a topic: script, then narration, then video.
package pipeline

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Script is the narrative text produced for a topic.
type Script struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// VoiceArtifact is a remotely hosted narration file.
type VoiceArtifact struct {
	URL string `json:"url"`
}

// VideoArtifact is a remotely hosted rendered video.
type VideoArtifact struct {
	URL string `json:"url"`
}

// Result is the output of one pipeline run.
type Result struct {
	Script Script        `json:"script"`
	Voice  VoiceArtifact `json:"voice"`
	Video  VideoArtifact `json:"video"`
}

// VoiceGenerator synthesizes narration for script text.
type VoiceGenerator interface {
	Generate(ctx context.Context, text string) (VoiceArtifact, error)
}

// VideoGenerator renders a video from script text and a narration URL.
type VideoGenerator interface {
	Generate(ctx context.Context, text, voiceURL string) (VideoArtifact, error)
}

// Config selects the stage implementations and their endpoints.
type Config struct {
	UseMock       bool
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	VoiceEndpoint string
	VideoEndpoint string
	// HTTPTimeout bounds each outbound call; zero means no timeout.
	HTTPTimeout time.Duration
}

// Pipeline runs the three stages in order. It holds no per-run state.
type Pipeline struct {
	script ScriptProvider
	voice  VoiceGenerator
	video  VideoGenerator
	logger *zap.Logger
}

// New creates a pipeline from explicit stages.
func New(script ScriptProvider, voice VoiceGenerator, video VideoGenerator, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{script: script, voice: voice, video: video, logger: logger}
}

// NewFromConfig wires the default stage clients from cfg.
func NewFromConfig(cfg Config, logger *zap.Logger) *Pipeline {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	return New(
		NewScriptProvider(cfg, httpClient, logger),
		NewVoiceClient(cfg.VoiceEndpoint, httpClient, logger),
		NewVideoClient(cfg.VideoEndpoint, httpClient, logger),
		logger,
	)
}

// Generate runs script, voice and video stages sequentially. A stage error is returned as is
// and later stages are not started; nothing produced by earlier stages is cleaned up.
func (p *Pipeline) Generate(ctx context.Context, topic string) (*Result, error) {
	script, err := p.script.Generate(ctx, topic)
	if err != nil {
		return nil, err
	}
	voice, err := p.voice.Generate(ctx, script.Content)
	if err != nil {
		return nil, err
	}
	video, err := p.video.Generate(ctx, script.Content, voice.URL)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("reel pipeline finished", zap.String("topic", topic), zap.String("video_url", video.URL))
	return &Result{Script: script, Voice: voice, Video: video}, nil
}
