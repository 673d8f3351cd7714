package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// urlResponse is the body shape shared by the voice and video services.
type urlResponse struct {
	URL string `json:"url"`
}

// doURLRequest sends req and returns the "url" field of a 2xx JSON answer.
func doURLRequest(client *http.Client, req *http.Request) (string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out urlResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.URL == "" {
		return "", ErrInvalidResponse
	}
	return out.URL, nil
}
