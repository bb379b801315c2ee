package types

// Model is a model file discovered on disk.
type Model struct {
	// File name, used as the identifier.
	// example: bge-small-en-v1.5.Q8_0.gguf
	ID string `json:"id" example:"bge-small-en-v1.5.Q8_0.gguf"`
	// Absolute path to the model file.
	// example: /home/user/models/bge-small-en-v1.5.Q8_0.gguf
	Path string `json:"path" example:"/home/user/models/bge-small-en-v1.5.Q8_0.gguf"`
	// Quantization tag parsed from the file name, if any.
	// example: Q8_0
	Quant string `json:"quant,omitempty" example:"Q8_0"`
	// File size in bytes.
	// example: 36700000
	SizeBytes int64 `json:"size_bytes" example:"36700000"`
}
