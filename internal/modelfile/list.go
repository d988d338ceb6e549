// Package modelfile discovers diffusion model files on disk and reads just
// enough of their headers to describe them.
package modelfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Extensions are the recognised model container formats. Matching is
// exact and case-sensitive.
var Extensions = []string{".safetensors", ".gguf"}

// IsModelName reports whether name carries a recognised extension. Leading
// dots belong to the base name, so ".gguf" has no extension at all.
func IsModelName(name string) bool {
	ext := filepath.Ext(name)
	if strings.Trim(strings.TrimSuffix(name, ext), ".") == "" {
		return false
	}
	return slices.Contains(Extensions, ext)
}

// List returns the model file names in dir, in directory order.
// A missing directory yields an empty list.
func List(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("models directory is empty")
	}
	ents, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	models := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !IsModelName(e.Name()) {
			continue
		}
		models = append(models, e.Name())
	}
	return models, nil
}

// Resolve maps a listed model name to its path inside dir. Names that
// would escape dir or are not recognised model files are rejected.
func Resolve(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid model name %q", name)
	}
	if !IsModelName(name) {
		return "", fmt.Errorf("unsupported model file %q", name)
	}
	path := filepath.Join(dir, name)
	st, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("model %q not found in %s", name, dir)
	}
	if st.IsDir() {
		return "", fmt.Errorf("model %q is a directory", name)
	}
	return path, nil
}

// BaseName strips the container extension from a model name.
func BaseName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
