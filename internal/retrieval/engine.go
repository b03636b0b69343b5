// Package retrieval embeds evidence documents and searches prior case
// material by similarity. The embedding backend is pluggable: the genai
// engine calls Gemini, the hash engine is a deterministic offline fallback.
package retrieval

import (
	"context"
	"fmt"

	"gumshoe/internal/config"
	"gumshoe/internal/logging"
)

// EmbeddingEngine produces fixed-dimension vectors for text.
type EmbeddingEngine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// NewEngine builds the configured embedding engine. Unknown providers and a
// missing API key fall back to the hash engine so retrieval always works.
func NewEngine(cfg config.RetrievalConfig) (EmbeddingEngine, error) {
	switch cfg.Provider {
	case "genai":
		if cfg.APIKey == "" {
			logging.RetrievalDebug("genai retrieval configured without an API key, using the hash engine")
			return NewHashEngine(cfg.Dimensions), nil
		}
		engine, err := NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize genai engine: %w", err)
		}
		return engine, nil
	case "hash", "":
		return NewHashEngine(cfg.Dimensions), nil
	default:
		logging.RetrievalDebug("Unknown retrieval provider %q, using the hash engine", cfg.Provider)
		return NewHashEngine(cfg.Dimensions), nil
	}
}
