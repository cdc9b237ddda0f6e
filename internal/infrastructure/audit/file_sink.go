package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
)

const (
	fileDateLayout = "20060102"
	isoLayout      = "2006-01-02T15:04:05.000Z07:00"
)

var _ service.AuditSink = (*FileSink)(nil)

// FileSink appends one line per attempt to <dir>/shield-YYYYMMDD.log.
// The day is taken from the attempt's RecordedAt, in UTC.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

// NewFileSink creates the sink; dir is created on first write.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// FormatLine renders "<identity> - (<count>) - <ISO windowStart> - <path>".
func FormatLine(a *models.AttemptRecord) string {
	return fmt.Sprintf("%s - (%d) - %s - %s", a.Identity, a.Count, a.WindowStart.UTC().Format(isoLayout), a.Path)
}

// FileName returns the log file an attempt recorded at a.RecordedAt goes to.
func (s *FileSink) FileName(a *models.AttemptRecord) string {
	return filepath.Join(s.dir, "shield-"+a.RecordedAt.UTC().Format(fileDateLayout)+".log")
}

// Record implements service.AuditSink.
func (s *FileSink) Record(_ context.Context, a *models.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create attempt log dir %s: %w", s.dir, err)
	}
	f, err := os.OpenFile(s.FileName(a), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open attempt log: %w", err)
	}
	if _, err := f.WriteString(FormatLine(a) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write attempt log: %w", err)
	}
	return f.Close()
}
