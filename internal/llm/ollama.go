package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama summarizes consolidation batches with a model served by a local
// Ollama instance, keeping archived text on the machine.
type Ollama struct {
	url    string
	model  string
	client *http.Client
}

// generateRequest is the body of a non-streaming /api/generate call.
type generateRequest struct {
	Model   string `json:"model"`
	System  string `json:"system,omitempty"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict"`
	} `json:"options"`
}

// NewOllama creates a new Ollama client.
func NewOllama(url, model string) *Ollama {
	return &Ollama{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete asks the local model to condense one consolidation batch into
// an archive summary. The shared system prompt carries the archiving
// rules. An empty or non-200 reply is reported as ErrUnavailable so the
// batch stays warm.
func (o *Ollama) Complete(ctx context.Context, prompt string) (*Response, error) {
	reqBody := generateRequest{
		Model:  o.model,
		System: systemPrompt,
		Prompt: prompt,
	}
	// Low temperature keeps summaries close to the source wording.
	reqBody.Options.Temperature = 0.3
	reqBody.Options.NumPredict = 2048

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, unavailable("ollama api", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable("ollama api", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	var result struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, unavailable("decode response", err)
	}
	if strings.TrimSpace(result.Response) == "" {
		return nil, unavailable("ollama api", fmt.Errorf("empty response"))
	}

	return &Response{
		Content:    result.Response,
		Provider:   "ollama",
		TokensUsed: result.PromptEvalCount + result.EvalCount,
	}, nil
}
