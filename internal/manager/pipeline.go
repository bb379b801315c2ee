package manager

import (
	"context"
	"strings"
	"time"

	"ragd/internal/backend"
)

const (
	ragPreamble       = "The reference documents are "
	ragQuestionMarker = ". The question is "
)

// composePrompt builds the generation prompt from the reranked documents.
func composePrompt(docs []string, question string) string {
	return ragPreamble + strings.Join(docs, "") + ragQuestionMarker + question
}

// retrieve embeds prompt once and searches the stored text chunks.
func (m *Manager) retrieve(ctx context.Context, el *backend.EncodeLease[string], sl *backend.StoreLease, prompt string) ([]string, error) {
	query := []string{prompt}
	start := time.Now()
	vecs, err := el.Encode(ctx, query)
	observeStage("embed", start)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	corpus := m.chunkCount
	m.mu.RUnlock()
	start = time.Now()
	docs, err := sl.Retrieve(ctx, collectionText, corpus, query, vecs)
	observeStage("retrieve", start)
	if err != nil {
		return nil, err
	}
	m.emit("retrieve", NameDB, map[string]any{"corpus_size": corpus, "matches": len(docs)})
	return docs, nil
}

// RetrieveAndGenerate runs the RAG pipeline: embed the prompt, retrieve the
// stored chunks, rerank them, and submit the composed prompt to the LLM. All
// four backends must be IDLE. The LLM stays RUNNING until its stream ends;
// the others are IDLE again when this returns. Returns the stream id.
func (m *Manager) RetrieveAndGenerate(ctx context.Context, prompt string) (string, error) {
	var (
		el *backend.EncodeLease[string]
		sl *backend.StoreLease
		rl *backend.RerankLease
		ll *backend.SubmitLease[string]
	)
	release, err := begin(
		acquireStep(&el, m.embed.Acquire),
		acquireStep(&sl, m.db.Acquire),
		acquireStep(&rl, m.rerank.Acquire),
		acquireStep(&ll, m.llm.Acquire),
	)
	if err != nil {
		return "", reject(msgRetrieveBusy, err)
	}
	defer release()

	docs, err := m.retrieve(ctx, el, sl, prompt)
	if err != nil {
		return "", err
	}
	topK := m.cfg.RAGTopK
	if topK <= 0 {
		topK = 1
	}
	start := time.Now()
	compressed, err := rl.Compress(ctx, prompt, docs, topK)
	observeStage("rerank", start)
	if err != nil {
		return "", err
	}
	m.emit("rerank", NameReranker, map[string]any{"top_k": topK, "candidates": len(docs), "selected": len(compressed)})
	m.log.Info().Int("top_k", topK).Str("prompt", prompt).Msg("selected documents")

	id, err := ll.Submit(composePrompt(compressed, prompt))
	if err != nil {
		return "", err
	}
	m.emit("submit", NameLLM, map[string]any{"stream_id": id, "rag": true})
	return id, nil
}
