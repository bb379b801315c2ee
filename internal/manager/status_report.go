package manager

import (
	"context"
	"fmt"
	"time"

	"ragd/internal/backend"
	"ragd/pkg/types"
)

// Health renders the legacy one-line state summary.
func (m *Manager) Health() string {
	return formatHealth(m.embed.State(), m.db.State(), m.llm.State())
}

func formatHealth(embedding, db, llm backend.State) string {
	return fmt.Sprintf("embedding_state: %s   db_state: %s   llm_state: %s", embedding, db, llm)
}

// statusCountTimeout bounds the vector store row counts in Status.
const statusCountTimeout = 2 * time.Second

// Status builds a detailed status response for /status. Stored row counts are
// zero while the vector store is not connected.
func (m *Manager) Status() types.StatusResponse {
	states := m.states()
	resp := types.StatusResponse{
		Backends:      make([]types.BackendStatus, 0, len(states)),
		Ready:         m.Ready(),
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		VLMHasImage:   m.vlm.HasImage(),
	}
	for _, s := range states {
		resp.Backends = append(resp.Backends, types.BackendStatus{Name: s.name, State: s.state.String()})
	}
	if m.db.State().Live() {
		ctx, cancel := context.WithTimeout(context.Background(), statusCountTimeout)
		if n, err := m.db.Count(ctx, collectionText); err == nil {
			resp.StoredChunks = n
		} else {
			m.log.Warn().Err(err).Msg("count stored chunks")
		}
		if n, err := m.db.Count(ctx, collectionImage); err == nil {
			resp.StoredImages = n
		} else {
			m.log.Warn().Err(err).Msg("count stored images")
		}
		cancel()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp.ChunkCount = m.chunkCount
	resp.ImageCount = m.imageCount
	resp.LastTextRetrieval = append([]string{}, m.lastText...)
	resp.LastImageRetrieval = append([]string{}, m.lastImages...)
	return resp
}
