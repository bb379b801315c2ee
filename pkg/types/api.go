package types

// DataRequest is the JSON body of the batch embedding and store endpoints.
type DataRequest struct {
	// Texts to embed, or image file paths for the image endpoints.
	// example: ["Go is a programming language.","SQLite is an embedded database."]
	Data []string `json:"data" example:"Go is a programming language."`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// BackendStatus is the state of one backend.
type BackendStatus struct {
	// Backend name.
	// example: llm
	Name string `json:"name" example:"llm"`
	// One of STOPPED, IDLE, RUNNING, ERROR.
	// example: IDLE
	State string `json:"state" example:"IDLE"`
}

// StatusResponse describes the server for GET /status.
type StatusResponse struct {
	// Every backend, in fixed order.
	Backends []BackendStatus `json:"backends"`
	// True when at least one backend is IDLE or RUNNING.
	// example: true
	Ready bool `json:"ready" example:"true"`
	// Text chunks stored since start; the retrieval window.
	// example: 3
	ChunkCount int `json:"chunk_count" example:"3"`
	// Images stored since start.
	// example: 0
	ImageCount int `json:"image_count" example:"0"`
	// Text chunks persisted in the vector store, across restarts.
	// example: 3
	StoredChunks int `json:"stored_chunks" example:"3"`
	// Images persisted in the vector store, across restarts.
	// example: 0
	StoredImages int `json:"stored_images" example:"0"`
	// Result of the most recent text retrieval.
	LastTextRetrieval []string `json:"last_text_retrieval"`
	// Result of the most recent image retrieval.
	LastImageRetrieval []string `json:"last_image_retrieval"`
	// Whether the vision backend holds an uploaded image.
	// example: false
	VLMHasImage bool `json:"vlm_has_image" example:"false"`
	// Seconds since the server started.
	// example: 120
	UptimeSeconds int64 `json:"uptime_seconds" example:"120"`
}
