// Package manager holds the process-wide orchestration state and the request
// operations behind every HTTP endpoint. It is structured into small files by
// concern:
//
//   - manager.go: core Manager type, backend names, readiness.
//   - config.go: ManagerConfig and NewWithConfig; engine load options.
//   - lifecycle.go: init/unload/reset for every backend, Close.
//   - ops.go: generation submit/poll, image upload, embeddings, store and retrieve.
//   - pipeline.go: the retrieval-augmented generation pipeline.
//   - admission.go: multi-backend admission with rollback.
//   - status_report.go: Health and Status reporting.
//   - errors.go, messages.go: typed errors and the plain-text bodies clients see.
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//
// Each operation returns the plain-text success body or an error; UserMessage
// renders an error as its body. Admission is an atomic check-and-set on each
// backend's state, so two requests can never both move a backend to RUNNING.
package manager
