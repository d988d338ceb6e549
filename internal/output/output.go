// Package output persists generated images.
package output

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samcharles93/cudiffusion/internal/modelfile"
)

// TimeLayout is the timestamp part of a saved image name.
const TimeLayout = "2006-01-02-150405.000000"

const maxAttempts = 64

// Dir writes PNG files into a single directory.
type Dir struct {
	path string
	now  func() time.Time
}

// New returns a Dir rooted at path. The directory is created on the first
// save.
func New(path string) *Dir {
	return &Dir{path: path, now: time.Now}
}

// Path returns the output directory.
func (d *Dir) Path() string { return d.path }

// Name builds the file name for an image produced by model at t.
func Name(model string, t time.Time) string {
	base := modelfile.BaseName(filepath.Base(model))
	if base == "" || base == "." {
		base = "image"
	}
	return base + "_" + t.Format(TimeLayout) + ".png"
}

// Save encodes img as PNG under a fresh timestamped name and returns the
// full path. Existing files are never overwritten.
func (d *Dir) Save(model string, img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("nil image")
	}
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return "", fmt.Errorf("create images directory: %w", err)
	}

	var (
		f    *os.File
		path string
		err  error
	)
	for range maxAttempts {
		path = filepath.Join(d.path, Name(model, d.now()))
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		time.Sleep(time.Microsecond)
	}
	if f == nil {
		return "", fmt.Errorf("no free image name after %d attempts", maxAttempts)
	}

	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// Entry is a saved image.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// List returns saved PNGs, newest first. A missing directory is empty.
func (d *Dir) List() ([]Entry, error) {
	ents, err := os.ReadDir(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || filepath.Ext(e.Name()) != ".png" {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: e.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return strings.Compare(b.Name, a.Name)
	})
	return out, nil
}

// Open resolves a saved image by name. Names with path components are
// rejected.
func (d *Dir) Open(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || filepath.Ext(name) != ".png" {
		return nil, fs.ErrNotExist
	}
	return os.Open(filepath.Join(d.path, name))
}
