package modelfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

const (
	ggufMagic = "GGUF"

	// maxSafetensorsHeader bounds the JSON header we are willing to read.
	maxSafetensorsHeader = 100 << 20
	maxGGUFString        = 1 << 24
)

// GGUF metadata value types.
const (
	ggufUint8 uint32 = iota
	ggufInt8
	ggufUint16
	ggufInt16
	ggufUint32
	ggufInt32
	ggufFloat32
	ggufBool
	ggufString
	ggufArray
	ggufUint64
	ggufInt64
	ggufFloat64
)

// Info describes a model file.
type Info struct {
	Name         string            `json:"name"`
	Format       string            `json:"format"`
	Size         int64             `json:"size"`
	Version      uint32            `json:"version,omitempty"`
	TensorCount  uint64            `json:"tensor_count"`
	KVCount      uint64            `json:"kv_count,omitempty"`
	Architecture string            `json:"architecture,omitempty"`
	DisplayName  string            `json:"display_name,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Probe reads the header of a .gguf or .safetensors file.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return Info{}, err
	}
	info := Info{Name: filepath.Base(path), Size: st.Size()}

	switch filepath.Ext(path) {
	case ".gguf":
		info.Format = "gguf"
		err = probeGGUF(bufio.NewReader(f), st.Size(), &info)
	case ".safetensors":
		info.Format = "safetensors"
		err = probeSafetensors(f, st.Size(), &info)
	default:
		err = fmt.Errorf("unsupported model file %q", info.Name)
	}
	if err != nil {
		return Info{}, fmt.Errorf("probe %s: %w", info.Name, err)
	}
	return info, nil
}

func probeSafetensors(r io.Reader, size int64, info *Info) error {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read header length: %w", err)
	}
	if n == 0 || n > maxSafetensorsHeader || int64(n)+8 > size {
		return fmt.Errorf("invalid header length %d", n)
	}
	header := make([]byte, n)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return fmt.Errorf("parse header: %w", err)
	}
	if meta, ok := raw["__metadata__"]; ok {
		delete(raw, "__metadata__")
		var m map[string]string
		if err := json.Unmarshal(meta, &m); err == nil && len(m) > 0 {
			info.Metadata = m
			info.Architecture = m["modelspec.architecture"]
			info.DisplayName = m["modelspec.title"]
		}
	}
	info.TensorCount = uint64(len(raw))
	return nil
}

type ggufReader struct {
	r    *bufio.Reader
	size int64
	off  int64
}

func probeGGUF(br *bufio.Reader, size int64, info *Info) error {
	r := &ggufReader{r: br, size: size}

	magic, err := r.bytes(4)
	if err != nil {
		return err
	}
	if string(magic) != ggufMagic {
		return fmt.Errorf("invalid magic: %q", string(magic))
	}
	if info.Version, err = r.u32(); err != nil {
		return err
	}
	if info.TensorCount, err = r.u64(); err != nil {
		return err
	}
	if info.KVCount, err = r.u64(); err != nil {
		return err
	}

	for i := uint64(0); i < info.KVCount; i++ {
		key, err := r.str()
		if err != nil {
			return fmt.Errorf("read key %d: %w", i, err)
		}
		typ, err := r.u32()
		if err != nil {
			return fmt.Errorf("read type of %s: %w", key, err)
		}
		if typ != ggufString {
			if err := r.skip(typ); err != nil {
				return fmt.Errorf("read value of %s: %w", key, err)
			}
			continue
		}
		val, err := r.str()
		if err != nil {
			return fmt.Errorf("read value of %s: %w", key, err)
		}
		switch key {
		case "general.architecture":
			info.Architecture = val
		case "general.name":
			info.DisplayName = val
		}
	}
	return nil
}

func (r *ggufReader) bytes(n int64) ([]byte, error) {
	if n < 0 || r.off+n > r.size {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	r.off += n
	return buf, nil
}

func (r *ggufReader) discard(n int64) error {
	if n < 0 || r.off+n > r.size {
		return io.ErrUnexpectedEOF
	}
	if _, err := r.r.Discard(int(n)); err != nil {
		return err
	}
	r.off += n
	return nil
}

func (r *ggufReader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *ggufReader) u64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *ggufReader) str() (string, error) {
	n, err := r.u64()
	if err != nil {
		return "", err
	}
	if n > maxGGUFString {
		return "", fmt.Errorf("string length too large: %d", n)
	}
	b, err := r.bytes(int64(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func scalarSize(typ uint32) int64 {
	switch typ {
	case ggufUint8, ggufInt8, ggufBool:
		return 1
	case ggufUint16, ggufInt16:
		return 2
	case ggufUint32, ggufInt32, ggufFloat32:
		return 4
	case ggufUint64, ggufInt64, ggufFloat64:
		return 8
	default:
		return -1
	}
}

// skip advances past a value of the given type without decoding it.
func (r *ggufReader) skip(typ uint32) error {
	switch typ {
	case ggufString:
		n, err := r.u64()
		if err != nil {
			return err
		}
		if n > math.MaxInt64 {
			return io.ErrUnexpectedEOF
		}
		return r.discard(int64(n))
	case ggufArray:
		elem, err := r.u32()
		if err != nil {
			return err
		}
		count, err := r.u64()
		if err != nil {
			return err
		}
		if sz := scalarSize(elem); sz > 0 {
			if count > uint64(r.size) {
				return io.ErrUnexpectedEOF
			}
			return r.discard(int64(count) * sz)
		}
		for i := uint64(0); i < count; i++ {
			if err := r.skip(elem); err != nil {
				return err
			}
		}
		return nil
	default:
		sz := scalarSize(typ)
		if sz < 0 {
			return fmt.Errorf("unknown value type %d", typ)
		}
		return r.discard(sz)
	}
}
