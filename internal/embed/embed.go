// Package embed provides text embedding backends.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/mranderson01901234/los/internal/config"
)

// ErrModelUnavailable is wrapped by every error caused by the embedding
// capability being unreachable or misbehaving. Callers must not substitute
// zero vectors when they see it.
var ErrModelUnavailable = errors.New("model unavailable")

// Embedder generates vector embeddings for text. EmbedBatch returns one
// vector per input, identical to calling Embed on each.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
	Dimensions() int
}

// New builds the embedder named by cfg. An unreachable Ollama falls back
// to the hashing embedder so indexing still works offline. The fallback
// is logged: chunks embedded by the other model go stale until reindexed.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var emb Embedder
	switch cfg.Provider {
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		url := cfg.URL
		if url == "" {
			url = "http://localhost:11434"
		}
		if ProbeOllama(url, model) {
			emb = NewOllama(url, model, cfg.Dimensions)
		} else {
			emb = NewHashing(cfg.Dimensions)
			log.Printf("embed: ollama model %s unavailable at %s, falling back to %s; run 'los reindex' once it is back",
				model, url, emb.Model())
		}
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedder requires OPENAI_API_KEY or embedding.api_key")
		}
		emb = NewOpenAI(cfg.APIKey, cfg.URL, cfg.Model, cfg.Dimensions)
	case "hashing", "":
		emb = NewHashing(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		cached, err := NewCached(emb, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		return cached, nil
	}
	return emb, nil
}

// unavailable wraps err so errors.Is(err, ErrModelUnavailable) holds.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, op, err)
}

// Tokenize splits text into lowercase tokens, stripping punctuation.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r > 0x7f {
			current.WriteRune(r)
		} else {
			if current.Len() > 1 { // skip single-char tokens
				tokens = append(tokens, current.String())
			}
			current.Reset()
		}
	}
	if current.Len() > 1 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// Normalize performs in-place L2 normalization.
func Normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched or zero-length vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// IsZero reports whether vec carries no direction.
func IsZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
