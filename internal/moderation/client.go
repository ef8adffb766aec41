package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPClassifier talks to the content classification service over JSON.
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClassifier(baseURL string) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Per-attempt deadlines come from the gate's context.
		client: &http.Client{},
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/classify", bytes.NewReader(payload))
	if err != nil {
		return Verdict{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Verdict{}, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Verdict{}, &TransientError{Err: fmt.Errorf("classifier returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("classifier returned %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return Verdict{}, fmt.Errorf("decode classify response: %w", err)
	}
	return verdict, nil
}
