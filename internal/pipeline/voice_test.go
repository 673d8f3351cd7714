package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceClient_ForwardsTextAndReturnsURL(t *testing.T) {
	const text = "🎬 Here's a fun, engaging explanation about \"quotes\" & <tags>!\nline two"
	var received voiceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/voice/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"url":"http://localhost:8000/voice_outputs/voice_1.mp3","extra":true}`))
	}))
	defer srv.Close()

	c := NewVoiceClient(srv.URL+"/voice/generate", srv.Client(), nil)
	got, err := c.Generate(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, text, received.Text)
	assert.Equal(t, "http://localhost:8000/voice_outputs/voice_1.mp3", got.URL)
}

func TestVoiceClient_MissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"path":"voice_1.mp3"}`))
	}))
	defer srv.Close()

	_, err := NewVoiceClient(srv.URL, srv.Client(), nil).Generate(context.Background(), "hello")
	require.Error(t, err)

	var ve *VoiceError
	require.True(t, errors.As(err, &ve))
	assert.True(t, errors.Is(err, ErrInvalidResponse))
	assert.Equal(t, "voice generation failed", err.Error())
}

func TestVoiceClient_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html>ok</html>`))
	}))
	defer srv.Close()

	_, err := NewVoiceClient(srv.URL, srv.Client(), nil).Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidResponse))
}

func TestVoiceClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"gtts exploded"}`))
	}))
	defer srv.Close()

	_, err := NewVoiceClient(srv.URL, srv.Client(), nil).Generate(context.Background(), "hello")
	require.Error(t, err)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)
	assert.Equal(t, "voice", Stage(err))
	assert.NotContains(t, err.Error(), "gtts")
}

func TestVoiceClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewVoiceClient(url, nil, nil).Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, "voice", Stage(err))
}

func TestNewVoiceClient_DefaultEndpoint(t *testing.T) {
	assert.Equal(t, DefaultVoiceEndpoint, NewVoiceClient("", nil, nil).endpoint)
}
