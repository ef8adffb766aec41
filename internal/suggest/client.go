package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPSuggester talks to the reply suggestion service over JSON.
type HTTPSuggester struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSuggester(baseURL string) *HTTPSuggester {
	return &HTTPSuggester{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (s *HTTPSuggester) Suggest(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("marshal suggest request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/suggest", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build suggest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call suggestion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("suggestion service returned %d", resp.StatusCode)
	}

	var body struct {
		Suggestion string `json:"suggestion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode suggest response: %w", err)
	}
	return body.Suggestion, nil
}
