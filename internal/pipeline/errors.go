package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidResponse is returned when an upstream service answers 2xx without the expected fields.
var ErrInvalidResponse = errors.New("invalid response from service")

// ScriptError is returned by the script stage. Error() never exposes the cause.
type ScriptError struct {
	Cause error
}

func (e *ScriptError) Error() string { return "script generation failed" }

func (e *ScriptError) Unwrap() error { return e.Cause }

// VoiceError is returned by the voice stage.
type VoiceError struct {
	Cause error
}

func (e *VoiceError) Error() string { return "voice generation failed" }

func (e *VoiceError) Unwrap() error { return e.Cause }

// VideoError is returned by the video stage.
type VideoError struct {
	Cause error
}

func (e *VideoError) Error() string { return "video generation failed" }

func (e *VideoError) Unwrap() error { return e.Cause }

// UpstreamError is a non-2xx answer from an external service.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Stage reports which stage produced err: "script", "voice", "video", or "" for anything else.
func Stage(err error) string {
	var (
		se *ScriptError
		ve *VoiceError
		de *VideoError
	)
	switch {
	case errors.As(err, &se):
		return "script"
	case errors.As(err, &ve):
		return "voice"
	case errors.As(err, &de):
		return "video"
	}
	return ""
}

// upstreamDetail returns the upstream response body when err carries one, else the error text.
func upstreamDetail(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Body != "" {
		return ue.Body
	}
	return err.Error()
}
