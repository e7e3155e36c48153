// Package compress hands member payloads to an external LZ tool. The
// container code only needs to know which payloads are compressed and how
// large they are.
package compress

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// LZ header kinds used by the DS BIOS routines.
const (
	KindLZ10 = 0x10
	KindLZ11 = 0x11
)

// Codec converts between stored and plain payloads.
type Codec interface {
	Compress(ctx context.Context, data []byte) ([]byte, error)
	Decompress(ctx context.Context, data []byte) ([]byte, error)
}

// Sniff reports whether data starts with an LZ10/LZ11 header and returns
// the decompressed size it announces.
func Sniff(data []byte) (kind byte, size int, ok bool) {
	if len(data) < 4 {
		return 0, 0, false
	}
	kind = data[0]
	if kind != KindLZ10 && kind != KindLZ11 {
		return 0, 0, false
	}
	size = int(data[1]) | int(data[2])<<8 | int(data[3])<<16
	if size == 0 {
		if len(data) < 8 {
			return 0, 0, false
		}
		size = int(data[4]) | int(data[5])<<8 | int(data[6])<<16 | int(data[7])<<24
	}
	// LZ streams never expand by more than a flag byte per 8 bytes
	if size == 0 || len(data) > size+size/8+16 {
		return 0, 0, false
	}
	return kind, size, true
}

// External runs a command-line tool that rewrites a file in place, like
// "lzss -evn FILE" and "lzss -d FILE".
type External struct {
	// Path is the tool binary.
	Path string
	// CompressArgs precede the file name when compressing.
	CompressArgs []string
	// DecompressArgs precede the file name when decompressing.
	DecompressArgs []string
}

// NewExternal returns the lzss command line used by the build scripts.
func NewExternal(path string) *External {
	if path == "" {
		path = "lzss"
	}
	return &External{Path: path, CompressArgs: []string{"-evn"}, DecompressArgs: []string{"-d"}}
}

func (e *External) Compress(ctx context.Context, data []byte) ([]byte, error) {
	out, err := e.run(ctx, e.CompressArgs, data)
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return out, nil
}

func (e *External) Decompress(ctx context.Context, data []byte) ([]byte, error) {
	out, err := e.run(ctx, e.DecompressArgs, data)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

func (e *External) run(ctx context.Context, args []string, data []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "toh-lz-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("write payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Path, append(append([]string{}, args...), path)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		log.Debug().Str("tool", e.Path).Bytes("output", output).Msg("Compression tool failed")
		return nil, fmt.Errorf("%s %v: %w", e.Path, args, err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return out, nil
}
