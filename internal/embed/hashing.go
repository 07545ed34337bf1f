package embed

import (
	"context"
	"fmt"
	"hash/fnv"
)

// Hashing is an offline embedder that projects tokens into a fixed number
// of buckets with the hashing trick. It is deterministic and needs no
// model, so vectors stay comparable across restarts.
type Hashing struct {
	dims int
}

// NewHashing creates a hashing embedder with dims buckets (384 if dims <= 0).
func NewHashing(dims int) *Hashing {
	if dims <= 0 {
		dims = 384
	}
	return &Hashing{dims: dims}
}

func (h *Hashing) Model() string  { return fmt.Sprintf("hashing:%d", h.dims) }
func (h *Hashing) Dimensions() int { return h.dims }

// Embed returns the L2-normalized bucket vector for text. Text with no
// word tokens is hashed by character so the vector is never zero.
func (h *Hashing) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dims)
	tokens := Tokenize(text)
	for _, tok := range tokens {
		h.add(vec, tok, 1)
	}
	for i := 1; i < len(tokens); i++ {
		h.add(vec, tokens[i-1]+" "+tokens[i], 0.5)
	}
	if len(tokens) == 0 {
		for _, r := range text {
			h.add(vec, string(r), 1)
		}
	}
	if IsZero(vec) {
		vec[0] = 1
	}
	Normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (h *Hashing) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *Hashing) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
