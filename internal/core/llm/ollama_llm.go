package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thinkbook-lm/thinkbook/internal/core"
)

// OllamaLLM generates completions through Ollama's /api/generate
// endpoint, in both single-shot and streaming modes.
type OllamaLLM struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

func NewOllamaLLM(baseURL, model string, maxTokens int, temperature float64) *OllamaLLM {
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaLLM{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      &http.Client{Timeout: 5 * time.Minute},
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (l *OllamaLLM) options() map[string]any {
	opts := map[string]any{"temperature": l.temperature}
	if l.maxTokens > 0 {
		opts["num_predict"] = l.maxTokens
	}
	return opts
}

func (l *OllamaLLM) post(ctx context.Context, stream bool, prompt string) (*http.Response, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   l.model,
		Prompt:  prompt,
		Stream:  stream,
		Options: l.options(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama generate: status=%d body=%s", resp.StatusCode, string(raw))
	}
	return resp, nil
}

func (l *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := l.post(ctx, false, prompt)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ollamaGenerateChunk
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama generate: decode: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama generate: %s", out.Error)
	}
	return out.Response, nil
}

// GenerateStream reads the NDJSON response line by line and forwards
// each non-empty fragment to emit. Returning an error from emit aborts
// the stream.
func (l *OllamaLLM) GenerateStream(ctx context.Context, prompt string, emit func(fragment string) error) error {
	resp, err := l.post(ctx, true, prompt)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("ollama generate: decode stream: %w", err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama generate: %s", chunk.Error)
		}
		if chunk.Response != "" {
			if err := emit(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ollama generate: read stream: %w", err)
	}
	return nil
}

var _ core.LLMProvider = (*OllamaLLM)(nil)
