package cleanup

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/docship/docship/agent/internal/fault"
)

// Status is the outcome of removing one path.
type Status string

const (
	StatusRemoved Status = "removed"
	StatusAbsent  Status = "absent"
	StatusFailed  Status = "failed"
	StatusKept    Status = "kept"
)

// Entry reports on one path.
type Entry struct {
	Path   string `json:"path"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

// Report lists the outcome for every path handed to Cleanup, in order.
type Report struct {
	Entries []Entry
}

// Failed returns the number of paths that could not be removed.
func (r Report) Failed() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Coordinator removes the transient artifacts of a run.
type Coordinator struct {
	// remove deletes one path; injectable for tests.
	remove func(string) error
}

// New returns a Coordinator that deletes with os.Remove.
func New() *Coordinator {
	return &Coordinator{remove: os.Remove}
}

// Cleanup tries to delete every path independently: a failure on one path is
// logged and recorded and the remaining paths are still attempted. Paths that
// no longer exist are reported as absent. Empty paths are skipped.
func (c *Coordinator) Cleanup(paths []string) Report {
	var rep Report
	for _, p := range paths {
		if p == "" {
			continue
		}
		rep.Entries = append(rep.Entries, c.removeOne(p))
	}

	slog.Info("cleanup: finished", "paths", len(rep.Entries), "failed", rep.Failed())
	return rep
}

// Keep records paths deliberately left on disk without touching them.
func (c *Coordinator) Keep(rep *Report, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		slog.Info("cleanup: keeping artifact for inspection", "path", p)
		rep.Entries = append(rep.Entries, Entry{Path: p, Status: StatusKept})
	}
}

func (c *Coordinator) removeOne(p string) Entry {
	err := c.remove(p)
	switch {
	case err == nil:
		slog.Debug("cleanup: removed", "path", p)
		return Entry{Path: p, Status: StatusRemoved}
	case errors.Is(err, fs.ErrNotExist):
		return Entry{Path: p, Status: StatusAbsent}
	default:
		ferr := fault.New(fault.KindCleanup, "remove "+p, err)
		slog.Error("cleanup: could not remove artifact", "path", p, "err", err)
		return Entry{Path: p, Status: StatusFailed, Err: ferr}
	}
}
