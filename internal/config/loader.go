package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kirsle/configdir"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// AppName names the per-user data directory.
const AppName = "ragd"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGD_"

// Config holds runtime parameters for the service. Load and Default fill in
// every field; flags given on the command line override file values.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	LLMModelPath            string `json:"llm_model_path" yaml:"llm_model_path" toml:"llm_model_path"`
	LLMDevice               string `json:"llm_device" yaml:"llm_device" toml:"llm_device"`
	VLMModelPath            string `json:"vlm_model_path" yaml:"vlm_model_path" toml:"vlm_model_path"`
	VLMDevice               string `json:"vlm_device" yaml:"vlm_device" toml:"vlm_device"`
	VLMCacheDir             string `json:"vlm_cache_dir" yaml:"vlm_cache_dir" toml:"vlm_cache_dir"`
	EmbeddingModelPath      string `json:"embedding_model_path" yaml:"embedding_model_path" toml:"embedding_model_path"`
	EmbeddingDevice         string `json:"embedding_device" yaml:"embedding_device" toml:"embedding_device"`
	ImageEmbeddingModelPath string `json:"image_embedding_model_path" yaml:"image_embedding_model_path" toml:"image_embedding_model_path"`
	ImageEmbeddingDevice    string `json:"image_embedding_device" yaml:"image_embedding_device" toml:"image_embedding_device"`
	RerankModelPath         string `json:"rerank_model_path" yaml:"rerank_model_path" toml:"rerank_model_path"`
	RerankDevice            string `json:"rerank_device" yaml:"rerank_device" toml:"rerank_device"`
	DBConnection            string `json:"db_connection" yaml:"db_connection" toml:"db_connection"`

	// Generation hyperparameters, passed to the engine unchanged.
	MaxNewTokens  int     `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	DoSample      bool    `json:"do_sample" yaml:"do_sample" toml:"do_sample"`
	TopK          int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP          float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	Temperature   float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	RepeatPenalty float32 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	Threads       int     `json:"threads" yaml:"threads" toml:"threads"`
	ContextSize   int     `json:"context_size" yaml:"context_size" toml:"context_size"`

	EnableMultiRoundChat bool `json:"enable_multi_round_chat" yaml:"enable_multi_round_chat" toml:"enable_multi_round_chat"`

	RetrieveTopK    int    `json:"retrieve_top_k" yaml:"retrieve_top_k" toml:"retrieve_top_k"`
	RAGTopK         int    `json:"rag_top_k" yaml:"rag_top_k" toml:"rag_top_k"`
	StreamBuffer    int    `json:"stream_buffer" yaml:"stream_buffer" toml:"stream_buffer"`
	StreamEndMarker string `json:"stream_end_marker" yaml:"stream_end_marker" toml:"stream_end_marker"`

	Verbose     bool     `json:"verbose" yaml:"verbose" toml:"verbose"`
	LogLevel    string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat   string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	// MaxBodyBytes bounds JSON and upload request bodies.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		Addr:                 "127.0.0.1:7890",
		LLMDevice:            "CPU",
		VLMDevice:            "CPU",
		VLMCacheDir:          "vlm_cache",
		EmbeddingDevice:      "CPU",
		ImageEmbeddingDevice: "CPU",
		RerankDevice:         "CPU",
		DBConnection:         DefaultDBPath(),
		MaxNewTokens:         64,
		TopK:                 0,
		TopP:                 0.7,
		Temperature:          0.95,
		RepeatPenalty:        1.0,
		RetrieveTopK:         3,
		RAGTopK:              1,
		StreamBuffer:         256,
		LogLevel:             "info",
		LogFormat:            "json",
		CORSOrigins:          []string{"*"},
		MaxBodyBytes:         32 << 20,
	}
}

// DefaultDBPath is the vector store location under the per-user config dir.
func DefaultDBPath() string {
	return filepath.Join(configdir.LocalConfig(AppName), "vectors.db")
}

// EnsureDataDir creates the directory holding path when path is a plain file path.
func EnsureDataDir(path string) error {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	return configdir.MakePath(filepath.Dir(path))
}

// Load reads a configuration file based on its extension on top of Default.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with RAGD_* environment variables.
func ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		"ADDR":                       &cfg.Addr,
		"LLM_MODEL_PATH":             &cfg.LLMModelPath,
		"LLM_DEVICE":                 &cfg.LLMDevice,
		"VLM_MODEL_PATH":             &cfg.VLMModelPath,
		"VLM_DEVICE":                 &cfg.VLMDevice,
		"VLM_CACHE_DIR":              &cfg.VLMCacheDir,
		"EMBEDDING_MODEL_PATH":       &cfg.EmbeddingModelPath,
		"EMBEDDING_DEVICE":           &cfg.EmbeddingDevice,
		"IMAGE_EMBEDDING_MODEL_PATH": &cfg.ImageEmbeddingModelPath,
		"IMAGE_EMBEDDING_DEVICE":     &cfg.ImageEmbeddingDevice,
		"RERANK_MODEL_PATH":          &cfg.RerankModelPath,
		"RERANK_DEVICE":              &cfg.RerankDevice,
		"DB_CONNECTION":              &cfg.DBConnection,
		"STREAM_END_MARKER":          &cfg.StreamEndMarker,
		"LOG_LEVEL":                  &cfg.LogLevel,
		"LOG_FORMAT":                 &cfg.LogFormat,
	}
	for k, p := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + k); ok {
			*p = v
		}
	}
	ints := map[string]*int{
		"MAX_NEW_TOKENS": &cfg.MaxNewTokens,
		"TOP_K":          &cfg.TopK,
		"THREADS":        &cfg.Threads,
		"CONTEXT_SIZE":   &cfg.ContextSize,
		"RETRIEVE_TOP_K": &cfg.RetrieveTopK,
		"RAG_TOP_K":      &cfg.RAGTopK,
		"STREAM_BUFFER":  &cfg.StreamBuffer,
	}
	for k, p := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + k); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*p = n
		}
	}
	floats := map[string]*float32{
		"TOP_P":          &cfg.TopP,
		"TEMPERATURE":    &cfg.Temperature,
		"REPEAT_PENALTY": &cfg.RepeatPenalty,
	}
	for k, p := range floats {
		if v, ok := os.LookupEnv(EnvPrefix + k); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*p = float32(f)
		}
	}
	bools := map[string]*bool{
		"DO_SAMPLE":               &cfg.DoSample,
		"ENABLE_MULTI_ROUND_CHAT": &cfg.EnableMultiRoundChat,
		"VERBOSE":                 &cfg.Verbose,
	}
	for k, p := range bools {
		if v, ok := os.LookupEnv(EnvPrefix + k); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*p = b
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "CORS_ORIGINS"); ok {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr is empty")
	}
	if c.MaxNewTokens <= 0 {
		return fmt.Errorf("max_new_tokens must be positive, got %d", c.MaxNewTokens)
	}
	if c.TopK < 0 {
		return fmt.Errorf("top_k must not be negative, got %d", c.TopK)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be within [0,1], got %v", c.TopP)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("temperature must not be negative, got %v", c.Temperature)
	}
	if c.RetrieveTopK <= 0 {
		return fmt.Errorf("retrieve_top_k must be positive, got %d", c.RetrieveTopK)
	}
	if c.RAGTopK <= 0 {
		return fmt.Errorf("rag_top_k must be positive, got %d", c.RAGTopK)
	}
	if c.StreamBuffer <= 0 {
		return fmt.Errorf("stream_buffer must be positive, got %d", c.StreamBuffer)
	}
	if strings.TrimSpace(c.DBConnection) == "" {
		return fmt.Errorf("db_connection is empty")
	}
	return nil
}
