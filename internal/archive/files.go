package archive

import (
	"fmt"
	"os"
)

// OpenFiles reads a container from disk. An empty detailPath opens a flat
// container.
func OpenFiles(headerPath, detailPath string, opts Options) (*Archive, error) {
	header, detail, err := readPair(headerPath, detailPath)
	if err != nil {
		return nil, err
	}
	a, err := Open(header, detail, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", headerPath, err)
	}
	return a, nil
}

// OpenNestedFiles is OpenFiles for type-1 containers.
func OpenNestedFiles(headerPath, detailPath string, opts Options) (*Nested, error) {
	header, detail, err := readPair(headerPath, detailPath)
	if err != nil {
		return nil, err
	}
	n, err := OpenNested(header, detail, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", headerPath, err)
	}
	return n, nil
}

func readPair(headerPath, detailPath string) ([]byte, []byte, error) {
	header, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read container header: %w", err)
	}
	if detailPath == "" {
		return header, nil, nil
	}
	detail, err := os.ReadFile(detailPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read container detail: %w", err)
	}
	return header, detail, nil
}

// WriteFiles writes packed output. detail is skipped for flat containers.
func WriteFiles(headerPath, detailPath string, header, detail []byte) error {
	if err := os.WriteFile(headerPath, header, 0644); err != nil {
		return fmt.Errorf("write container header: %w", err)
	}
	if detail == nil {
		return nil
	}
	if err := os.WriteFile(detailPath, detail, 0644); err != nil {
		return fmt.Errorf("write container detail: %w", err)
	}
	return nil
}

// MemberName is the file name used when a member is unpacked to disk.
func MemberName(e Entry) string {
	if e.Name != "" {
		return fmt.Sprintf("%04d_%s", e.Index, e.Name)
	}
	return fmt.Sprintf("%04d.bin", e.Index)
}
