//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

const docTemplate = `{
  "swagger": "2.0",
  "info": {"title": "{{.Title}}", "description": "{{escape .Description}}", "version": "{{.Version}}"},
  "basePath": "{{.BasePath}}",
  "paths": {
    "/llm_init": {"post": {"summary": "Load the text generation engine", "produces": ["text/plain"], "responses": {"200": {"description": "Init llm success."}, "409": {"description": "already initialized"}}}},
    "/completions": {"post": {"summary": "Start a text generation; the body is the prompt", "consumes": ["text/plain"], "responses": {"200": {"description": "started, stream id in X-Stream-ID"}, "429": {"description": "busy"}, "503": {"description": "not initialized"}}}},
    "/llm_streamer": {"get": {"summary": "Poll the next generated fragment", "produces": ["text/plain"], "responses": {"200": {"description": "fragment, or end of stream when X-Stream-End is set"}, "204": {"description": "nothing queued"}}}},
    "/vlm_image_upload": {"post": {"summary": "Upload the image for the next vision generation", "consumes": ["application/octet-stream"], "responses": {"200": {"description": "stored"}, "400": {"description": "undecodable image"}}}},
    "/embeddings": {"post": {"summary": "Embed texts", "consumes": ["application/json"], "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/DataRequest"}}], "responses": {"200": {"description": "Embeddings success"}}}},
    "/db_store_embeddings": {"post": {"summary": "Embed and store text chunks", "consumes": ["application/json"], "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/DataRequest"}}], "responses": {"200": {"description": "insert success"}}}},
    "/db_retrieval_llm": {"post": {"summary": "Retrieve, rerank and generate", "consumes": ["text/plain"], "responses": {"200": {"description": "started, stream id in X-Stream-ID"}, "429": {"description": "busy"}}}},
    "/health": {"get": {"summary": "One-line backend states", "produces": ["text/plain"], "responses": {"200": {"description": "embedding_state: IDLE   db_state: IDLE   llm_state: IDLE"}}}},
    "/status": {"get": {"summary": "Detailed server status", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/StatusResponse"}}}}}
  },
  "definitions": {
    "DataRequest": {"type": "object", "properties": {"data": {"type": "array", "items": {"type": "string"}}}},
    "BackendStatus": {"type": "object", "properties": {"name": {"type": "string"}, "state": {"type": "string"}}},
    "StatusResponse": {"type": "object", "properties": {
      "backends": {"type": "array", "items": {"$ref": "#/definitions/BackendStatus"}},
      "ready": {"type": "boolean"},
      "chunk_count": {"type": "integer"},
      "image_count": {"type": "integer"},
      "stored_chunks": {"type": "integer"},
      "stored_images": {"type": "integer"},
      "last_text_retrieval": {"type": "array", "items": {"type": "string"}},
      "last_image_retrieval": {"type": "array", "items": {"type": "string"}},
      "vlm_has_image": {"type": "boolean"},
      "uptime_seconds": {"type": "integer"}
    }}
  }
}`

// SwaggerInfo describes the API served under /swagger.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Title:            "ragd API",
	Description:      "Local control plane for inference backends and a retrieval-augmented generation pipeline.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the Swagger UI and doc.json under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
