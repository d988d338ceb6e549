// Package sdcpp binds the native stable-diffusion shim library and adapts
// it to diffusion.Engine.
package sdcpp

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

// EnvLibrary overrides the shim library location.
const EnvLibrary = "CUDIFFUSION_SD_LIBRARY"

// DefaultLibrary returns the platform's default shim file name.
func DefaultLibrary() string {
	if p := os.Getenv(EnvLibrary); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "darwin":
		return "./libsdshim.dylib"
	default:
		return "./libsdshim.so"
	}
}

// Library is a loaded shim. Its functions are bound once and shared by all
// engines created from it.
type Library struct {
	path string

	sdLoad func(modelPath string, vaeTiling bool, schedule, rngType string, threads int32) uintptr

	sdGenerate func(ctx uintptr, prompt, negative string, clipSkip int32,
		cfgScale, minCFG float32, initPath string, strength float32,
		width, height int32, sampleMethod string, steps int32, seed int64,
		dstPath string) int32

	sdFree func(ctx uintptr)
}

type libFunc struct {
	fptr any
	name string
}

// Open dlopens the shim at path and binds its entry points.
func Open(path string) (*Library, error) {
	if path == "" {
		return nil, errors.New("shim library path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("shim library %s: %w", path, err)
	}
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}

	lib := &Library{path: path}
	funcs := []libFunc{
		{&lib.sdLoad, "sd_load"},
		{&lib.sdGenerate, "sd_generate"},
		{&lib.sdFree, "sd_free"},
	}
	for _, lf := range funcs {
		sym, err := purego.Dlsym(handle, lf.name)
		if err != nil {
			_ = purego.Dlclose(handle)
			return nil, fmt.Errorf("shim library %s: missing symbol %s: %w", path, lf.name, err)
		}
		purego.RegisterFunc(lf.fptr, sym)
	}
	return lib, nil
}

// Path returns the file the library was loaded from.
func (l *Library) Path() string { return l.path }

// Lazy opens the library on first use so the process can start, and serve
// the UI, before the shim is available. A failed open is retried on the
// next call.
type Lazy struct {
	path string
	mu   sync.Mutex
	lib  *Library
}

// NewLazy returns a Lazy for path.
func NewLazy(path string) *Lazy {
	return &Lazy{path: path}
}

// Get returns the loaded library.
func (z *Lazy) Get() (*Library, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.lib != nil {
		return z.lib, nil
	}
	lib, err := Open(z.path)
	if err != nil {
		return nil, err
	}
	z.lib = lib
	return lib, nil
}
