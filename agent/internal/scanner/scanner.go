package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/docship/docship/agent/internal/fault"
)

// FileRecord describes one qualifying file. Values are never modified after
// a scan returns them.
type FileRecord struct {
	// Path is the absolute filesystem path.
	Path string `json:"path"`
	// Size is the file size in bytes.
	Size int64 `json:"size"`
	// Ext is the lowercase extension including the leading dot.
	Ext string `json:"ext"`
}

// Base returns the file name without its directory.
func (f FileRecord) Base() string { return filepath.Base(f.Path) }

// Result is the ordered output of one completed scan attempt.
type Result struct {
	Root  string
	Files []FileRecord
}

// TotalSize returns the sum of all file sizes in r.
func (r *Result) TotalSize() int64 {
	if r == nil {
		return 0
	}
	var n int64
	for _, f := range r.Files {
		n += f.Size
	}
	return n
}

// Scanner walks one directory tree and selects qualifying files.
// It only reads; the filesystem is never modified.
type Scanner struct {
	root    string
	fsys    fs.FS
	maxSize int64
	exts    map[string]struct{}
}

// New returns a Scanner over the OS directory tree at root.
// Files qualify when their size is strictly below maxSize and their lowercase
// extension is one of exts.
func New(root string, maxSize int64, exts []string) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scanner: resolve root %q: %w", root, err)
	}
	return NewFS(abs, os.DirFS(abs), maxSize, exts), nil
}

// NewFS returns a Scanner over fsys. root is only used to build the absolute
// paths reported in FileRecord.Path.
func NewFS(root string, fsys fs.FS, maxSize int64, exts []string) *Scanner {
	return &Scanner{
		root:    root,
		fsys:    fsys,
		maxSize: maxSize,
		exts:    NormalizeExtensions(exts),
	}
}

// Root returns the absolute root directory of the scan.
func (s *Scanner) Root() string { return s.root }

// Scan performs one complete traversal from the root. Every call builds a new
// Result; when the traversal fails the partial Result is dropped and a
// scan fault is returned, so a retried scan can never report a file twice.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	res := &Result{Root: s.root}

	err := fs.WalkDir(s.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(path.Ext(d.Name()))
		if _, ok := s.exts[ext]; !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		if info.Size() >= s.maxSize {
			return nil
		}

		res.Files = append(res.Files, FileRecord{
			Path: filepath.Join(s.root, filepath.FromSlash(p)),
			Size: info.Size(),
			Ext:  ext,
		})
		return nil
	})
	if err != nil {
		slog.Warn("scanner: traversal failed, discarding partial result",
			"root", s.root, "discarded", len(res.Files), "err", err)
		return nil, fault.New(fault.KindScan, "walk "+s.root, err)
	}

	slog.Debug("scanner: traversal complete",
		"root", s.root, "files", len(res.Files), "bytes", res.TotalSize())
	return res, nil
}

// NormalizeExtensions lowercases every extension and prefixes a dot where it
// is missing. Empty entries are ignored.
func NormalizeExtensions(exts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = struct{}{}
	}
	return out
}
