package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ragd/internal/backend"
	"ragd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	InitLLM(ctx context.Context) (string, error)
	SubmitLLM(prompt string) (string, error)
	PollLLM() (backend.Fragment, bool)
	UnloadLLM() error
	ResetLLM() error

	InitVLM(ctx context.Context) (string, error)
	UploadImage(data []byte) error
	SubmitVLM(prompt string) (string, error)
	PollVLM() (backend.Fragment, bool)
	UnloadVLM() error
	ResetVLM() error

	InitEmbeddings(ctx context.Context) (string, error)
	RunEmbeddings(ctx context.Context, data []string) (string, error)
	UnloadEmbeddings() error
	InitImageEmbeddings(ctx context.Context) (string, error)
	RunImageEmbeddings(ctx context.Context, paths []string) (string, error)
	UnloadImageEmbeddings() error

	InitDB(ctx context.Context) (string, error)
	UnloadDB() error
	StoreText(ctx context.Context, data []string) (string, error)
	StoreImages(ctx context.Context, paths []string) (string, error)
	RetrieveText(ctx context.Context, prompt string) (string, error)
	RetrieveImage(ctx context.Context, path string) (string, error)
	RetrieveAndGenerate(ctx context.Context, prompt string) (string, error)

	Health() string
	Status() types.StatusResponse
	Ready() bool
}

// Stream headers set on submit and poll responses.
const (
	HeaderStreamID    = "X-Stream-ID"
	HeaderStreamEnd   = "X-Stream-End"
	HeaderStreamError = "X-Stream-Error"
)

// op is a request operation returning a plain-text body.
type op func(ctx context.Context, r *http.Request) (string, error)

// serve runs fn with a context joined to the server base context, then
// writes its body or its mapped error.
func serve(name string, fn op) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		start := time.Now()
		logStart(r, lvl, name)
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		body, err := fn(ctx, r)
		if err != nil {
			status := writeError(w, name, err)
			logEnd(r, lvl, name, status, start, err)
			return
		}
		writeText(w, http.StatusOK, body)
		logEnd(r, lvl, name, http.StatusOK, start, nil)
	}
}

// readBody reads the whole request body up to maxBodyBytes.
func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, badRequest("cannot read request body")
	}
	return b, nil
}

// readData parses a {"data": [...]} body.
func readData(r *http.Request) ([]string, error) {
	var req types.DataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, badRequest("invalid JSON body")
	}
	return req.Data, nil
}

func readPrompt(r *http.Request) (string, error) {
	b, err := readBody(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// withData adapts a list operation to op.
func withData(fn func(ctx context.Context, data []string) (string, error)) op {
	return func(ctx context.Context, r *http.Request) (string, error) {
		data, err := readData(r)
		if err != nil {
			return "", err
		}
		return fn(ctx, data)
	}
}

// withPrompt adapts a prompt operation to op.
func withPrompt(fn func(ctx context.Context, prompt string) (string, error)) op {
	return func(ctx context.Context, r *http.Request) (string, error) {
		p, err := readPrompt(r)
		if err != nil {
			return "", err
		}
		return fn(ctx, p)
	}
}

func initOp(fn func(ctx context.Context) (string, error)) op {
	return func(ctx context.Context, _ *http.Request) (string, error) { return fn(ctx) }
}

func unloadOp(fn func() error) op {
	return func(context.Context, *http.Request) (string, error) { return "", fn() }
}

// submit starts a generation and reports its stream id in a header.
func submit(name string, fn func(prompt string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		start := time.Now()
		logStart(r, lvl, name)
		prompt, err := readPrompt(r)
		var id string
		if err == nil {
			id, err = fn(prompt)
		}
		if err != nil {
			status := writeError(w, name, err)
			logEnd(r, lvl, name, status, start, err)
			return
		}
		w.Header().Set(HeaderStreamID, id)
		writeText(w, http.StatusOK, "")
		logEnd(r, lvl, name, http.StatusOK, start, nil)
	}
}

// poll returns the next fragment: 204 when nothing is queued, the fragment
// text otherwise. The end fragment carries HeaderStreamEnd and the configured
// end marker as its body.
func poll(name string, fn func() (backend.Fragment, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := fn()
		if !ok {
			pollsTotal.WithLabelValues(name, "empty").Inc()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set(HeaderStreamID, f.StreamID)
		if !f.End {
			pollsTotal.WithLabelValues(name, "fragment").Inc()
			logFragment(r, requestLogLevel(r), name, f.StreamID, f.Text)
			writeText(w, http.StatusOK, f.Text)
			return
		}
		pollsTotal.WithLabelValues(name, "end").Inc()
		w.Header().Set(HeaderStreamEnd, "1")
		if f.Err != nil {
			w.Header().Set(HeaderStreamError, f.Err.Error())
		}
		writeText(w, http.StatusOK, streamEndMarker)
	}
}

func uploadImage(svc Service) op {
	return func(_ context.Context, r *http.Request) (string, error) {
		b, err := readBody(r)
		if err != nil {
			return "", err
		}
		return "", svc.UploadImage(b)
	}
}

func corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool { return originAllowed(origin) },
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:  []string{"*"},
		ExposedHeaders:  []string{HeaderStreamID, HeaderStreamEnd, HeaderStreamError},
		MaxAge:          300,
	})
}

// limitBody caps request bodies at maxBodyBytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(corsMiddleware())
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(limitBody)

	r.Post("/llm_init", serve("llm_init", initOp(svc.InitLLM)))
	r.Post("/completions", submit("completions", svc.SubmitLLM))
	r.Get("/llm_streamer", poll("llm_streamer", svc.PollLLM))
	r.Post("/llm_streamer", poll("llm_streamer", svc.PollLLM))
	r.Post("/llm_unload", serve("llm_unload", unloadOp(svc.UnloadLLM)))
	r.Post("/llm_reset", serve("llm_reset", unloadOp(svc.ResetLLM)))

	r.Post("/vlm_init", serve("vlm_init", initOp(svc.InitVLM)))
	r.Post("/vlm_image_upload", serve("vlm_image_upload", uploadImage(svc)))
	r.Post("/vlm_completions", submit("vlm_completions", svc.SubmitVLM))
	r.Get("/vlm_streamer", poll("vlm_streamer", svc.PollVLM))
	r.Post("/vlm_streamer", poll("vlm_streamer", svc.PollVLM))
	r.Post("/vlm_unload", serve("vlm_unload", unloadOp(svc.UnloadVLM)))
	r.Post("/vlm_reset", serve("vlm_reset", unloadOp(svc.ResetVLM)))

	r.Post("/embeddings_init", serve("embeddings_init", initOp(svc.InitEmbeddings)))
	r.Post("/embeddings", serve("embeddings", withData(svc.RunEmbeddings)))
	r.Post("/embeddings_unload", serve("embeddings_unload", unloadOp(svc.UnloadEmbeddings)))
	r.Post("/image_embeddings_init", serve("image_embeddings_init", initOp(svc.InitImageEmbeddings)))
	r.Post("/image_embeddings", serve("image_embeddings", withData(svc.RunImageEmbeddings)))
	r.Post("/image_embeddings_unload", serve("image_embeddings_unload", unloadOp(svc.UnloadImageEmbeddings)))

	r.Post("/db_init", serve("db_init", initOp(svc.InitDB)))
	r.Post("/db_unload", serve("db_unload", unloadOp(svc.UnloadDB)))
	r.Post("/db_store_embeddings", serve("db_store_embeddings", withData(svc.StoreText)))
	r.Post("/db_store_image_embeddings", serve("db_store_image_embeddings", withData(svc.StoreImages)))
	r.Post("/db_retrieval", serve("db_retrieval", withPrompt(svc.RetrieveText)))
	r.Post("/db_retrieval_image", serve("db_retrieval_image", withPrompt(svc.RetrieveImage)))
	r.Post("/db_retrieval_llm", func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		start := time.Now()
		logStart(r, lvl, "db_retrieval_llm")
		prompt, err := readPrompt(r)
		var id string
		if err == nil {
			ctx, cancel := joinContexts(serverBaseCtx, r.Context())
			id, err = svc.RetrieveAndGenerate(ctx, prompt)
			cancel()
		}
		if err != nil {
			status := writeError(w, "db_retrieval_llm", err)
			logEnd(r, lvl, "db_retrieval_llm", status, start, err)
			return
		}
		w.Header().Set(HeaderStreamID, id)
		writeText(w, http.StatusOK, "")
		logEnd(r, lvl, "db_retrieval_llm", http.StatusOK, start, nil)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, svc.Health())
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}
