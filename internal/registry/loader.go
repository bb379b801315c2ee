// Package registry discovers model files on disk and resolves configured
// model paths to the file an engine should load.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"ragd/internal/config"
	"ragd/pkg/types"
)

// ModelExt is the extension of single-file models.
const ModelExt = ".gguf"

var quantRe = regexp.MustCompile(`(?i)(?:^|[.\-_])((?:IQ|Q)\d(?:_[A-Z0-9]+)*|F16|F32|BF16)(?:[.\-_]|$)`)

// Scan lists the model files directly inside dir, sorted by ID.
func Scan(dir string) ([]types.Model, error) {
	base, err := config.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ModelExt) {
			continue
		}
		m := types.Model{ID: e.Name(), Path: filepath.Join(abs, e.Name()), Quant: quantOf(e.Name())}
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func quantOf(name string) string {
	m := quantRe.FindStringSubmatch(strings.TrimSuffix(name, filepath.Ext(name)))
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// Resolve maps a configured model path to what the engine loads. A file is
// returned as is. A directory holding exactly one model file resolves to that
// file; a directory with none is returned unchanged for engines that load
// model directories. Empty paths pass through.
func Resolve(path string) (string, error) {
	p, err := config.ExpandHome(path)
	if err != nil || p == "" {
		return p, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("model path: %w", err)
	}
	if !info.IsDir() {
		return p, nil
	}
	models, err := Scan(p)
	if err != nil {
		return "", err
	}
	switch len(models) {
	case 0:
		return p, nil
	case 1:
		return models[0].Path, nil
	default:
		ids := make([]string, len(models))
		for i, m := range models {
			ids[i] = m.ID
		}
		return "", fmt.Errorf("model path %s is ambiguous: %s", p, strings.Join(ids, ", "))
	}
}
