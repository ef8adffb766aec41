package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClassifierDecodesVerdict(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/classify" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"allowed":false,"notes":"possible PII","confidence":0.91}`))
	}))
	defer server.Close()

	client := NewHTTPClassifier(server.URL)
	verdict, err := client.Classify(context.Background(), "call me at 555-0100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody["text"] != "call me at 555-0100" {
		t.Fatalf("expected text payload, got %q", gotBody["text"])
	}
	if verdict.Allowed {
		t.Fatalf("expected denial")
	}
	if verdict.Notes != "possible PII" {
		t.Fatalf("expected notes, got %q", verdict.Notes)
	}
	if verdict.Confidence == nil || *verdict.Confidence != 0.91 {
		t.Fatalf("expected confidence 0.91, got %v", verdict.Confidence)
	}
}

func TestHTTPClassifierServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClassifier(server.URL)
	_, err := client.Classify(context.Background(), "text")

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError for 5xx, got %v", err)
	}
}

func TestHTTPClassifierClientErrorIsHard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPClassifier(server.URL)
	_, err := client.Classify(context.Background(), "text")

	if err == nil {
		t.Fatalf("expected error")
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		t.Fatalf("4xx must not be treated as transient: %v", err)
	}
}

func TestHTTPClassifierConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewHTTPClassifier(server.URL)
	_, err := client.Classify(context.Background(), "text")

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError for connection failure, got %v", err)
	}
}
