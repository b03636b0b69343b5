package retrieval

import (
	"context"

	"gumshoe/internal/logging"
	"gumshoe/internal/store"
	"gumshoe/internal/types"
)

// CaseSearcher indexes evidence documents per case and answers similarity
// queries against them. Indexing failures are logged, not fatal: retrieval
// is an assist, never a gate on turn processing.
type CaseSearcher struct {
	engine EmbeddingEngine
	store  *store.LocalStore
	topK   int
}

// NewCaseSearcher creates a searcher over the store with the given engine.
func NewCaseSearcher(engine EmbeddingEngine, s *store.LocalStore, topK int) *CaseSearcher {
	if topK <= 0 {
		topK = 5
	}
	return &CaseSearcher{engine: engine, store: s, topK: topK}
}

// IndexEvidence embeds one evidence record's searchable text and stores it
// keyed by the evidence id, so re-indexing is idempotent.
func (cs *CaseSearcher) IndexEvidence(ctx context.Context, e *types.EvidenceProvided) error {
	text := searchableText(e)
	if text == "" {
		return nil
	}

	vec, err := cs.engine.Embed(ctx, text)
	if err != nil {
		logging.RetrievalDebug("Failed to embed evidence %s: %v", e.ID, err)
		return err
	}
	return cs.store.StoreCaseVector(e.CaseID, e.ID, text, vec)
}

// Search returns the most similar indexed documents for the case.
func (cs *CaseSearcher) Search(ctx context.Context, caseID, query string) ([]types.SearchHit, error) {
	vec, err := cs.engine.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := cs.store.SearchCaseVectors(caseID, vec, cs.topK)
	if err != nil {
		return nil, err
	}
	logging.Retrieval("Search on case %s: %d hits (engine=%s)", caseID, len(hits), cs.engine.Name())
	return hits, nil
}

// searchableText flattens an evidence record into the text worth indexing:
// key findings when present, otherwise the raw content. HTML documents are
// reduced to their visible text first.
func searchableText(e *types.EvidenceProvided) string {
	if len(e.KeyFindings) > 0 {
		joined := ""
		for i, f := range e.KeyFindings {
			if i > 0 {
				joined += ". "
			}
			joined += f
		}
		return joined
	}
	content := e.RawContent
	if e.Attachment != nil && isHTML(e.Attachment.ContentType) {
		if text, err := ExtractText(content); err == nil {
			return text
		}
	}
	return content
}

func isHTML(contentType string) bool {
	return contentType == "text/html" || contentType == "application/xhtml+xml"
}
