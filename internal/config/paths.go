package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// ExpandPaths expands '~' in every model, cache and database path.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{
		&c.LLMModelPath,
		&c.VLMModelPath,
		&c.VLMCacheDir,
		&c.EmbeddingModelPath,
		&c.ImageEmbeddingModelPath,
		&c.RerankModelPath,
		&c.DBConnection,
	} {
		v, err := ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}
