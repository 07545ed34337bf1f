package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Ollama uses Ollama's embedding API.
type Ollama struct {
	url    string
	model  string
	dims   atomic.Int64
	client *http.Client
}

// NewOllama creates an embedder using Ollama's API. dims is a hint and is
// replaced by the length of the first vector returned.
func NewOllama(url, model string, dims int) *Ollama {
	o := &Ollama{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	o.dims.Store(int64(dims))
	return o
}

func (o *Ollama) Model() string  { return "ollama:" + o.model }
func (o *Ollama) Dimensions() int { return int(o.dims.Load()) }

// Embed sends text to Ollama's embed endpoint and returns the embedding vector.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in one request.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(map[string]any{
		"model": o.model,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, unavailable("ollama embed api", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("read embed response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable("ollama embed", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, unavailable("decode embed response", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, unavailable("ollama embed", fmt.Errorf("got %d embeddings for %d inputs", len(result.Embeddings), len(texts)))
	}
	for i, v := range result.Embeddings {
		if len(v) == 0 {
			return nil, unavailable("ollama embed", fmt.Errorf("empty embedding at %d", i))
		}
	}

	o.dims.Store(int64(len(result.Embeddings[0])))
	return result.Embeddings, nil
}

// ProbeOllama checks if Ollama is reachable and the embedding model is available.
func ProbeOllama(url, model string) bool {
	client := &http.Client{Timeout: 3 * time.Second}
	reqBody, _ := json.Marshal(map[string]any{
		"model": model,
		"input": "test",
	})
	resp, err := client.Post(url+"/api/embed", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
