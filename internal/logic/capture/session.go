package capture

import (
	"fmt"
	"path/filepath"
	"time"
)

// Session is the per-day capture state: where files go, how they are named
// and the next sequence number. It is rebuilt at each day rollover.
type Session struct {
	Sequence  int
	BaseName  string
	OutputDir string
}

// NewSession starts a day at sequence 0. The base name groups files by
// project and calendar date so they sort per day.
func NewSession(outputDir, project string, date time.Time) *Session {
	return &Session{
		Sequence:  0,
		BaseName:  BaseName(project, date),
		OutputDir: outputDir,
	}
}

// BaseName returns "<project>-YYYY-MM-DD-", or "YYYY-MM-DD-" without a project.
func BaseName(project string, date time.Time) string {
	day := date.Format("2006-01-02-")
	if project == "" {
		return day
	}
	return project + "-" + day
}

// FileName is the name of the image with sequence number seq.
func (s *Session) FileName(seq int) string {
	return fmt.Sprintf("%s%04d.jpg", s.BaseName, seq)
}

// NextPath is where the next successful capture will be stored.
func (s *Session) NextPath() string {
	return filepath.Join(s.OutputDir, s.FileName(s.Sequence))
}
