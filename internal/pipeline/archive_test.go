package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"toh-translator/internal/archive"
)

// fps4 builds a flat container with offset, padded size and file size
// fields.
func fps4(members ...[]byte) []byte {
	le := binary.LittleEndian
	const headerSize, entrySize = 0x1C, 12
	count := len(members) + 1
	tableEnd := headerSize + count*entrySize
	start := (tableEnd + 15) &^ 15

	head := make([]byte, start)
	copy(head, "FPS4")
	le.PutUint32(head[0x04:], uint32(count))
	le.PutUint32(head[0x08:], headerSize)
	le.PutUint32(head[0x0C:], uint32(start))
	le.PutUint16(head[0x10:], entrySize)
	le.PutUint16(head[0x12:], archive.FieldOffset|archive.FieldPaddedSize|archive.FieldFileSize)

	var body []byte
	pos := start
	for i, m := range members {
		padded := (len(m) + 15) &^ 15
		e := head[headerSize+i*entrySize:]
		le.PutUint32(e[0:], uint32(pos))
		le.PutUint32(e[4:], uint32(padded))
		le.PutUint32(e[8:], uint32(len(m)))
		body = append(body, m...)
		body = append(body, make([]byte, padded-len(m))...)
		pos += padded
	}
	le.PutUint32(head[headerSize+len(members)*entrySize:], uint32(pos))
	return append(head, body...)
}

func TestUnpackRepackArchive(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	inner := fps4([]byte("inner-a"), []byte("inner-b"))
	outer := fps4(inner, []byte("plain member"), []byte("third"))
	dir := t.TempDir()
	headerPath := filepath.Join(dir, "m.b")
	if err := os.WriteFile(headerPath, outer, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	members := filepath.Join(dir, "members")
	n, err := p.UnpackArchive(ctx, headerPath, "", members)
	if err != nil {
		t.Fatalf("UnpackArchive: %v", err)
	}
	if n != 5 {
		t.Fatalf("unpacked %d files, want 5", n)
	}
	got, err := os.ReadFile(filepath.Join(members, "0000", "0001.bin"))
	if err != nil || string(got) != "inner-b" {
		t.Fatalf("nested member = %q, %v; want inner-b", got, err)
	}

	// unchanged members repack to the same bytes
	prefix := filepath.Join(dir, "same")
	if err := p.RepackArchive(ctx, headerPath, "", members, prefix); err != nil {
		t.Fatalf("RepackArchive: %v", err)
	}
	same, err := os.ReadFile(prefix + ".b")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(same, outer) {
		t.Fatal("repack of unchanged members differs from the input")
	}

	if err := os.WriteFile(filepath.Join(members, "0000", "0001.bin"), []byte("a longer inner member"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Remove(filepath.Join(members, "0002.bin")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	prefix = filepath.Join(dir, "changed")
	if err := p.RepackArchive(ctx, headerPath, "", members, prefix); err != nil {
		t.Fatalf("RepackArchive: %v", err)
	}

	a, err := archive.OpenFiles(prefix+".b", "", archive.Options{})
	if err != nil {
		t.Fatalf("OpenFiles: %v", err)
	}
	sub, err := a.Extract(0)
	if err != nil {
		t.Fatalf("Extract(0): %v", err)
	}
	in, err := archive.Open(sub, nil, archive.Options{})
	if err != nil {
		t.Fatalf("Open(inner): %v", err)
	}
	if got, _ := in.Extract(1); string(got) != "a longer inner member" {
		t.Fatalf("inner member 1 = %q", got)
	}
	if got, _ := a.Extract(1); string(got) != "plain member" {
		t.Fatalf("member 1 = %q", got)
	}
	if got, _ := a.Extract(2); string(got) != "third" {
		t.Fatalf("missing member file did not keep the original: %q", got)
	}
}
