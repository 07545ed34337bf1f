package embed

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached memoizes another embedder's vectors. Repeated queries and
// unchanged chunks on re-index skip the backend.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCached wraps inner with a cache holding up to maxEntries vectors.
func NewCached(inner Embedder, maxEntries int) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(maxEntries) * 10,
		MaxCost:            int64(maxEntries),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Model() string  { return c.inner.Model() }
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}

func (c *Cached) key(text string) string {
	return c.inner.Model() + "\x00" + text
}

func (c *Cached) get(text string) ([]float64, bool) {
	v, ok := c.cache.Get(c.key(text))
	if !ok {
		return nil, false
	}
	vec := v.([]float64)
	out := make([]float64, len(vec))
	copy(out, vec)
	return out, true
}

func (c *Cached) put(text string, vec []float64) {
	stored := make([]float64, len(vec))
	copy(stored, vec)
	c.cache.Set(c.key(text), stored, 1)
}

// Embed returns a cached vector or asks the wrapped embedder.
func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.get(text); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(text, v)
	return v, nil
}

// EmbedBatch forwards only the cache misses, in one call.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.get(t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, unavailable("embed batch", fmt.Errorf("got %d vectors for %d inputs", len(vecs), len(missTexts)))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.put(missTexts[j], vecs[j])
	}
	return out, nil
}
