package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"toh-translator/internal/archive"
	"toh-translator/internal/compress"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// UnpackArchive writes every member of a container to outDir, decompressed.
// Members that are themselves containers are also unpacked into a
// directory named after the member.
func (p *Pipeline) UnpackArchive(ctx context.Context, headerPath, detailPath, outDir string) (int, error) {
	a, err := archive.OpenFiles(headerPath, detailPath, archive.Options{Alignment: p.align})
	if err != nil {
		return 0, err
	}
	return p.unpack(ctx, a, outDir)
}

func (p *Pipeline) unpack(ctx context.Context, a *archive.Archive, outDir string) (int, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	counts := make([]int, len(a.Entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, e := range a.Entries {
		g.Go(func() error {
			payload, err := a.Extract(i)
			if err != nil {
				return err
			}
			if e.Compressed {
				if payload, err = p.lz.Decompress(ctx, payload); err != nil {
					return fmt.Errorf("member %d: %w", e.Index, err)
				}
			}
			name := archive.MemberName(e)
			if err := os.WriteFile(filepath.Join(outDir, name), payload, 0644); err != nil {
				return fmt.Errorf("write member %d: %w", e.Index, err)
			}
			counts[i] = 1

			if archive.IsContainer(payload) {
				inner, err := archive.Open(payload, nil, archive.Options{Alignment: p.align})
				if err != nil {
					log.Warn().Err(err).Int("member", e.Index).Msg("Member looks like a container but does not open")
					return nil
				}
				n, err := p.unpack(ctx, inner, filepath.Join(outDir, memberDir(name)))
				if err != nil {
					return err
				}
				counts[i] += n
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// memberDir is the directory a nested member is unpacked into.
func memberDir(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// RepackArchive rebuilds a container from the files in membersDir, laid
// out as UnpackArchive wrote them. Missing member files keep their
// original payload. Members stored compressed are compressed again. The
// output goes to outPrefix plus the extensions of the input files.
func (p *Pipeline) RepackArchive(ctx context.Context, headerPath, detailPath, membersDir, outPrefix string) error {
	a, err := archive.OpenFiles(headerPath, detailPath, archive.Options{Alignment: p.align})
	if err != nil {
		return err
	}
	if err := p.repack(ctx, a, membersDir); err != nil {
		return err
	}
	header, detail, err := a.Pack()
	if err != nil {
		return fmt.Errorf("pack container: %w", err)
	}

	detailOut := ""
	if detailPath != "" {
		detailOut = outPrefix + filepath.Ext(detailPath)
	}
	return archive.WriteFiles(outPrefix+filepath.Ext(headerPath), detailOut, header, detail)
}

// repack replaces the members of a from dir. Payloads are prepared in
// parallel and applied in index order.
func (p *Pipeline) repack(ctx context.Context, a *archive.Archive, dir string) error {
	payloads := make([][]byte, len(a.Entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, e := range a.Entries {
		g.Go(func() error {
			payload, err := p.memberPayload(ctx, e, dir)
			if err != nil {
				return fmt.Errorf("member %d: %w", e.Index, err)
			}
			payloads[i] = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, payload := range payloads {
		if payload == nil {
			continue
		}
		if err := a.Replace(i, payload); err != nil {
			return err
		}
	}
	return nil
}

// memberPayload returns the stored payload for e, or nil to keep the
// original.
func (p *Pipeline) memberPayload(ctx context.Context, e archive.Entry, dir string) ([]byte, error) {
	name := archive.MemberName(e)
	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read member: %w", err)
	}

	sub := filepath.Join(dir, memberDir(name))
	if info, err := os.Stat(sub); err == nil && info.IsDir() && archive.IsContainer(data) {
		inner, err := archive.Open(data, nil, archive.Options{Alignment: p.align})
		if err != nil {
			return nil, err
		}
		if err := p.repack(ctx, inner, sub); err != nil {
			return nil, err
		}
		if data, _, err = inner.Pack(); err != nil {
			return nil, err
		}
	}

	if _, _, packed := compress.Sniff(data); e.Compressed && !packed {
		return p.lz.Compress(ctx, data)
	}
	return data, nil
}
