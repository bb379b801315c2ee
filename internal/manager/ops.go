package manager

import (
	"context"
	"strings"
	"time"

	"ragd/internal/backend"
	"ragd/internal/imageutil"
)

// SubmitLLM starts a text generation and returns its stream id.
func (m *Manager) SubmitLLM(prompt string) (string, error) {
	id, err := m.llm.Submit(prompt)
	if err != nil {
		return "", reject(msgLLMBusy, err)
	}
	m.log.Debug().Str("backend", NameLLM).Str("stream_id", id).Int("prompt_len", len(prompt)).Msg("submit")
	m.emit("submit", NameLLM, map[string]any{"stream_id": id})
	return id, nil
}

// PollLLM returns the next text fragment without blocking.
func (m *Manager) PollLLM() (backend.Fragment, bool) {
	return m.polled(NameLLM, m.llm.Poll)
}

// UploadImage decodes data and stores it for the next vision submission.
func (m *Manager) UploadImage(data []byte) error {
	img, err := imageutil.Decode(data)
	if err != nil {
		return badRequestError{msg: err.Error()}
	}
	if err := m.vlm.SetImage(img); err != nil {
		return reject(msgVLMImageBusy, err)
	}
	m.log.Debug().Str("backend", NameVLM).Int("width", img.Width).Int("height", img.Height).Msg("image uploaded")
	return nil
}

// SubmitVLM starts a vision-language generation over the uploaded image.
func (m *Manager) SubmitVLM(prompt string) (string, error) {
	id, err := m.vlm.Submit(prompt)
	if err != nil {
		return "", reject(msgVLMBusy, err)
	}
	m.log.Debug().Str("backend", NameVLM).Str("stream_id", id).Int("prompt_len", len(prompt)).Msg("submit")
	m.emit("submit", NameVLM, map[string]any{"stream_id": id})
	return id, nil
}

// PollVLM returns the next vision fragment without blocking.
func (m *Manager) PollVLM() (backend.Fragment, bool) {
	return m.polled(NameVLM, m.vlm.Poll)
}

func (m *Manager) polled(name string, poll func() (backend.Fragment, bool)) (backend.Fragment, bool) {
	f, ok := poll()
	if ok && f.End {
		ev := m.log.Debug()
		fields := map[string]any{"stream_id": f.StreamID}
		if f.Err != nil {
			ev = m.log.Warn().Err(f.Err)
			fields["error"] = f.Err.Error()
		}
		ev.Str("backend", name).Str("stream_id", f.StreamID).Msg("stream end")
		m.emit("stream_end", name, fields)
	}
	return f, ok
}

// RunEmbeddings embeds data with the text embedding engine.
func (m *Manager) RunEmbeddings(ctx context.Context, data []string) (string, error) {
	vecs, err := m.embed.Encode(ctx, data)
	if err != nil {
		return "", reject(msgEmbedBusy, err)
	}
	m.log.Debug().Str("backend", NameEmbedding).Int("inputs", len(data)).Int("vectors", len(vecs)).Msg("embeddings")
	return msgEmbedOK, nil
}

// RunImageEmbeddings embeds the images at the given paths.
func (m *Manager) RunImageEmbeddings(ctx context.Context, paths []string) (string, error) {
	vecs, err := m.imageEmbed.Encode(ctx, paths)
	if err != nil {
		return "", reject(msgImageEmbedBusy, err)
	}
	m.log.Debug().Str("backend", NameImageEmbedding).Int("inputs", len(paths)).Int("vectors", len(vecs)).Msg("embeddings")
	return msgImageEmbedOK, nil
}

// StoreText embeds data and stores it in the text collection.
//
// The chunk count grows by len(data) on every call and is never reset while
// the process runs. Retrieval and the RAG pipeline search only the most recent
// chunk-count rows, so every chunk stored by this process stays searchable,
// while rows left by an earlier process are outside the window until stored
// again. Persisted totals are reported separately as stored_chunks in /status.
func (m *Manager) StoreText(ctx context.Context, data []string) (string, error) {
	var (
		sl *backend.StoreLease
		el *backend.EncodeLease[string]
	)
	release, err := begin(acquireStep(&sl, m.db.Acquire), acquireStep(&el, m.embed.Acquire))
	if err != nil {
		return "", reject(msgInsertBusy, err)
	}
	defer release()
	start := time.Now()
	vecs, err := el.Encode(ctx, data)
	observeStage("embed", start)
	if err != nil {
		return "", err
	}
	start = time.Now()
	err = sl.Store(ctx, collectionText, data, vecs)
	observeStage("store", start)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.chunkCount += len(data)
	total := m.chunkCount
	m.mu.Unlock()
	m.log.Info().Str("backend", NameDB).Int("stored", len(data)).Int("chunks", total).Msg("insert")
	m.emit("store", NameDB, map[string]any{"collection": collectionText, "count": len(data)})
	return msgInsertOK, nil
}

// StoreImages embeds the images at paths and stores the paths in the image
// collection. The image count accumulates like the chunk count of StoreText.
func (m *Manager) StoreImages(ctx context.Context, paths []string) (string, error) {
	var (
		sl *backend.StoreLease
		el *backend.EncodeLease[imageutil.Tensor]
	)
	release, err := begin(acquireStep(&sl, m.db.Acquire), acquireStep(&el, m.imageEmbed.Acquire))
	if err != nil {
		return "", reject(msgImageInsertBusy, err)
	}
	defer release()
	vecs, err := el.Encode(ctx, paths)
	if err != nil {
		return "", err
	}
	if err := sl.Store(ctx, collectionImage, paths, vecs); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.imageCount += len(paths)
	total := m.imageCount
	m.mu.Unlock()
	m.log.Info().Str("backend", NameDB).Int("stored", len(paths)).Int("images", total).Msg("insert images")
	m.emit("store", NameDB, map[string]any{"collection": collectionImage, "count": len(paths)})
	return msgInsertOK, nil
}

// RetrieveText searches the stored chunks for prompt and records the result.
func (m *Manager) RetrieveText(ctx context.Context, prompt string) (string, error) {
	var (
		sl *backend.StoreLease
		el *backend.EncodeLease[string]
	)
	release, err := begin(acquireStep(&sl, m.db.Acquire), acquireStep(&el, m.embed.Acquire))
	if err != nil {
		return "", reject(msgRetrieveBusy, err)
	}
	defer release()
	docs, err := m.retrieve(ctx, el, sl, prompt)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.lastText = docs
	m.mu.Unlock()
	m.log.Debug().Str("backend", NameDB).Strs("results", docs).Msg("retrieval")
	return msgRetrieveOK, nil
}

// RetrieveImage searches the stored images for the one at path and returns
// the matched identifiers, each followed by a space.
func (m *Manager) RetrieveImage(ctx context.Context, path string) (string, error) {
	var (
		sl *backend.StoreLease
		el *backend.EncodeLease[imageutil.Tensor]
	)
	release, err := begin(acquireStep(&sl, m.db.Acquire), acquireStep(&el, m.imageEmbed.Acquire))
	if err != nil {
		return "", reject(msgImageRetrieveBusy, err)
	}
	defer release()
	query := []string{path}
	vecs, err := el.Encode(ctx, query)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	corpus := m.imageCount
	m.mu.RUnlock()
	ids, err := sl.Retrieve(ctx, collectionImage, corpus, query, vecs)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.lastImages = ids
	m.mu.Unlock()
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte(' ')
	}
	return b.String(), nil
}
