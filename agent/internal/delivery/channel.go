package delivery

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docship/docship/agent/internal/archive"
	"github.com/docship/docship/agent/internal/config"
	"github.com/docship/docship/agent/internal/scanner"
)

// Payload is everything a run can hand to a channel.
type Payload struct {
	RunID string
	// Root is the scan root, used to derive object keys in files mode.
	Root string
	// Artifact is nil when no archive was built.
	Artifact *archive.Artifact
	Files    []scanner.FileRecord
	// LogPath is the run log; empty when the log is not delivered.
	LogPath string
}

// Empty reports whether there is no data to deliver. A log alone is not
// worth a delivery.
func (p Payload) Empty() bool {
	return p.Artifact == nil && len(p.Files) == 0
}

// Unit is the granularity at which a delivery is retried.
type Unit struct {
	// Name identifies the unit in logs and reports.
	Name string
	// Key is the destination name (object key, message subject).
	Key string
	// Attachments are the local files sent by this unit.
	Attachments []string
}

// Channel delivers payloads to one remote destination.
type Channel interface {
	// Kind returns the channel name used in logs and reports.
	Kind() string

	// Prepare resolves the destination. A destination that does not exist
	// and cannot be created is reported as a permanent destination fault.
	Prepare(ctx context.Context) error

	// Plan splits p into delivery units.
	Plan(p Payload) []Unit

	// Send delivers one unit. Failures are delivery faults; the caller
	// retries them.
	Send(ctx context.Context, u Unit) error
}

// New builds the Channel selected by cfg.Channel.
func New(cfg config.DeliveryConfig, creds config.Credentials) (Channel, error) {
	switch cfg.Channel {
	case "objectstore":
		return NewObjectStore(cfg.ObjectStore, creds, cfg.Mode)
	case "mail":
		return NewMail(cfg.Mail, creds)
	default:
		return nil, fmt.Errorf("delivery: unsupported channel %q", cfg.Channel)
	}
}

// relName returns path relative to root in slash form, or its basename when
// path is not under root.
func relName(root, path string) string {
	if root != "" {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(path)
}
