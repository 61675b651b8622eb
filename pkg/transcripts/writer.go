// Package transcripts persists one plain-text file per completed call.
package transcripts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/probecall/probecall/pkg/bridge"
	"github.com/probecall/probecall/pkg/errorsx"
	"github.com/probecall/probecall/pkg/logging"
	"github.com/probecall/probecall/pkg/redact"
	"github.com/probecall/probecall/pkg/scenario"
)

// FileStore writes transcripts under a single directory, one file per
// call, named <scenario_id>_<YYYYMMDD_HHMMSS>.txt.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTranscriptWrite)
	}
	return &FileStore{
		dir:    dir,
		logger: logging.NewComponentLogger(slog.Default(), "transcripts"),
	}, nil
}

func (s *FileStore) Dir() string { return s.dir }

// Write persists the conversation and returns the file path. Entries
// pass through the redaction filter, which is a no-op unless enabled.
func (s *FileStore) Write(scn scenario.Scenario, startedAt time.Time, entries []bridge.Entry) (string, error) {
	name := fmt.Sprintf("%s_%s.txt", scn.ID, startedAt.UTC().Format("20060102_150405"))
	path := filepath.Join(s.dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n", scn.Name)
	fmt.Fprintf(&b, "Started:  %s\n", startedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Turns:    %d\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "\n[%s]: %s\n", strings.ToUpper(string(e.Speaker)), redact.Text(e.Text))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscriptWrite)
	}
	s.logger.Info("transcript saved", slog.String("path", path))
	return path, nil
}
