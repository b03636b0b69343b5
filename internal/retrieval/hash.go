package retrieval

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEngine is a deterministic, offline embedding engine. Tokens are hashed
// into buckets and the vector is L2-normalized, so identical texts always
// produce identical vectors and token overlap yields nonzero similarity. Not
// semantic, but good enough to surface repeated material and to keep tests
// hermetic.
type HashEngine struct {
	dimensions int
}

// NewHashEngine creates a hash engine with the given dimensionality.
func NewHashEngine(dimensions int) *HashEngine {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEngine{dimensions: dimensions}
}

// Embed produces the bucket-count vector for one text.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dimensions)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the vector dimensionality.
func (e *HashEngine) Dimensions() int { return e.dimensions }

// Name returns the engine name.
func (e *HashEngine) Name() string { return "hash" }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
