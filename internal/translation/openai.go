package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

const defaultPrompt = `You are a film localization assistant. Translate the given ` +
	`actor names and character roles into Simplified Chinese. Use the established ` +
	`Chinese transliteration for well-known people. Reply with a single JSON object ` +
	`mapping each input string to its translation. If you cannot translate an entry, ` +
	`omit it from the object. Do not add any other text.`

// OpenAIEngine translates batches through an OpenAI-compatible chat
// completions endpoint.
type OpenAIEngine struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
	apiKey  string
	model   string
	prompt  string
}

// OpenAIOption customizes an OpenAIEngine.
type OpenAIOption func(*OpenAIEngine)

// WithBaseURL points the engine at a different endpoint, such as a proxy or
// a test server.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(e *OpenAIEngine) { e.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithModel overrides the model name.
func WithModel(model string) OpenAIOption {
	return func(e *OpenAIEngine) {
		if model != "" {
			e.model = model
		}
	}
}

// WithPrompt overrides the system prompt.
func WithPrompt(prompt string) OpenAIOption {
	return func(e *OpenAIEngine) {
		if prompt != "" {
			e.prompt = prompt
		}
	}
}

// NewOpenAIEngine creates an engine for an OpenAI-compatible API.
func NewOpenAIEngine(apiKey string, logger *slog.Logger, opts ...OpenAIOption) *OpenAIEngine {
	e := &OpenAIEngine{
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With(slog.String("component", "translator")),
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		model:   defaultModel,
		prompt:  defaultPrompt,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the engine identifier recorded in the cache.
func (e *OpenAIEngine) Name() string { return "openai:" + e.model }

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// BatchTranslate sends one batch of texts and returns the translations the
// backend produced, keyed by original text. Hallucinated keys are dropped.
func (e *OpenAIEngine) BatchTranslate(ctx context.Context, texts []string, opts BatchOptions) (map[string]string, error) {
	if len(texts) == 0 {
		return map[string]string{}, nil
	}
	if e.apiKey == "" {
		return nil, fmt.Errorf("translator: API key not configured")
	}

	userMsg, err := buildUserMessage(texts, opts)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: e.prompt},
			{Role: "user", Content: userMsg},
		},
		Temperature:    0.2,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	e.logger.Debug("translating batch", slog.Int("texts", len(texts)), slog.String("title", opts.Title))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling translation backend: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading translation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("translation backend returned HTTP %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing translation response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("translation backend error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("translation backend returned no choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw map[string]string
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return nil, fmt.Errorf("parsing translation result: %w", err)
	}

	// Keep only keys we actually asked for.
	asked := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		asked[t] = struct{}{}
	}
	result := make(map[string]string, len(raw))
	for original, translated := range raw {
		if _, ok := asked[original]; !ok {
			continue
		}
		if translated = strings.TrimSpace(translated); translated != "" {
			result[original] = translated
		}
	}
	return result, nil
}

func buildUserMessage(texts []string, opts BatchOptions) (string, error) {
	list, err := json.Marshal(texts)
	if err != nil {
		return "", fmt.Errorf("encoding texts: %w", err)
	}
	var b strings.Builder
	if opts.Title != "" {
		b.WriteString("Media: ")
		b.WriteString(opts.Title)
		if opts.Year > 0 {
			fmt.Fprintf(&b, " (%d)", opts.Year)
		}
		b.WriteString("\n")
	}
	b.WriteString("Translate: ")
	b.Write(list)
	return b.String(), nil
}
