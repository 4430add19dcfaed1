package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/docship/docship/agent/internal/fault"
	"github.com/docship/docship/agent/internal/scanner"
)

// Artifact is one packaged container produced from a single scan result.
type Artifact struct {
	// Path is the archive location on disk.
	Path string `json:"path"`

	// Entries lists the basenames stored in the archive, in write order.
	Entries []string `json:"entries"`

	// Replaced lists source paths whose basename collided with a later file
	// in scan order and were therefore not stored.
	Replaced []string `json:"replaced,omitempty"`

	// Size is the archive size in bytes after it was closed.
	Size int64 `json:"size"`
}

// Build writes one deflate-compressed zip archive at dest containing every
// file in files, stored under its basename.
//
// Basename collisions resolve last-write-wins in scan order: only the later
// file is stored and the earlier paths are reported in Artifact.Replaced.
// On failure the partially written archive is left in place; the cleanup
// stage removes it with the other transient artifacts.
func Build(ctx context.Context, files []scanner.FileRecord, dest string) (*Artifact, error) {
	winners, replaced := resolveCollisions(files)
	for _, p := range replaced {
		slog.Warn("archive: basename collision, earlier file replaced",
			"replaced", p, "name", filepath.Base(p))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fault.New(fault.KindArchive, "create work dir", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return nil, fault.New(fault.KindArchive, "create "+dest, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	art := &Artifact{Path: dest, Replaced: replaced}

	for _, f := range winners {
		if err := ctx.Err(); err != nil {
			return nil, fault.New(fault.KindArchive, "build", err)
		}
		if err := addFile(zw, f); err != nil {
			return nil, fault.New(fault.KindArchive, "add "+f.Path, err)
		}
		art.Entries = append(art.Entries, f.Base())
	}

	if err := zw.Close(); err != nil {
		return nil, fault.New(fault.KindArchive, "finalize", err)
	}
	if err := out.Sync(); err != nil {
		return nil, fault.New(fault.KindArchive, "sync", err)
	}
	if info, err := out.Stat(); err == nil {
		art.Size = info.Size()
	}

	slog.Info("archive: built",
		"path", dest,
		"entries", len(art.Entries),
		"replaced", len(art.Replaced),
		"bytes", art.Size)
	return art, nil
}

// resolveCollisions returns the records that survive basename deduplication,
// each at the scan position of its winning record, plus the replaced paths.
func resolveCollisions(files []scanner.FileRecord) ([]scanner.FileRecord, []string) {
	last := make(map[string]int, len(files))
	for i, f := range files {
		last[f.Base()] = i
	}

	winners := make([]scanner.FileRecord, 0, len(last))
	var replaced []string
	for i, f := range files {
		if last[f.Base()] == i {
			winners = append(winners, f)
		} else {
			replaced = append(replaced, f.Path)
		}
	}
	return winners, replaced
}

func addFile(zw *zip.Writer, f scanner.FileRecord) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = f.Base()
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}
