package translation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBatchTranslate(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"content": `{"John Smith": "约翰·史密斯", "Invented Name": "幻觉"}`,
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	engine := NewOpenAIEngine("test-key", discardLogger(), WithBaseURL(srv.URL), WithModel("test-model"))
	got, err := engine.BatchTranslate(context.Background(), []string{"John Smith"}, BatchOptions{Title: "Some Film", Year: 2021})
	if err != nil {
		t.Fatalf("BatchTranslate: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Model != "test-model" {
		t.Errorf("model = %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 || !strings.Contains(gotBody.Messages[1].Content, "Some Film (2021)") {
		t.Errorf("user message missing media context: %+v", gotBody.Messages)
	}

	if got["John Smith"] != "约翰·史密斯" {
		t.Errorf("translation = %q", got["John Smith"])
	}
	if _, ok := got["Invented Name"]; ok {
		t.Error("keys not in the request must be dropped")
	}
}

func TestBatchTranslateStripsCodeFence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"content": "```json\n{\"Jane Doe\": \"简·多伊\"}\n```",
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	engine := NewOpenAIEngine("k", discardLogger(), WithBaseURL(srv.URL))
	got, err := engine.BatchTranslate(context.Background(), []string{"Jane Doe"}, BatchOptions{})
	if err != nil {
		t.Fatalf("BatchTranslate: %v", err)
	}
	if got["Jane Doe"] != "简·多伊" {
		t.Errorf("translation = %q", got["Jane Doe"])
	}
}

func TestBatchTranslateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	engine := NewOpenAIEngine("k", discardLogger(), WithBaseURL(srv.URL))
	if _, err := engine.BatchTranslate(context.Background(), []string{"x"}, BatchOptions{}); err == nil {
		t.Fatal("expected error on HTTP 429")
	}
}

func TestBatchTranslateEmptyInput(t *testing.T) {
	engine := NewOpenAIEngine("k", discardLogger())
	got, err := engine.BatchTranslate(context.Background(), nil, BatchOptions{})
	if err != nil {
		t.Fatalf("BatchTranslate: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestBatchTranslateMissingKey(t *testing.T) {
	engine := NewOpenAIEngine("", discardLogger())
	if _, err := engine.BatchTranslate(context.Background(), []string{"x"}, BatchOptions{}); err == nil {
		t.Fatal("expected error without API key")
	}
}
