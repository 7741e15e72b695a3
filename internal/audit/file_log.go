package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// FileLog appends JSON lines to a local file.
type FileLog struct {
	path   string
	mu     sync.Mutex
	logger *logging.Logger
}

// NewFileLog creates a FileLog at path. The file is created on first append.
func NewFileLog(path string, logger *logging.Logger) *FileLog {
	if logger == nil {
		logger = logging.Default()
	}
	return &FileLog{path: path, logger: logger}
}

// Append writes one line.
func (l *FileLog) Append(_ context.Context, entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", l.path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("audit: write %s: %w", l.path, err)
	}
	return f.Close()
}

// Entries returns the entries for date in file order. A missing file reads as
// empty and corrupt lines are skipped.
func (l *FileLog) Entries(_ context.Context, date string) ([]Entry, error) {
	return l.read(onDate(date))
}

// EntriesBetween returns the entries dated from..to with one read of the file.
func (l *FileLog) EntriesBetween(_ context.Context, from, to string) ([]Entry, error) {
	return l.read(between(from, to))
}

func (l *FileLog) read(keep func(date string) bool) ([]Entry, error) {
	l.mu.Lock()
	data, err := os.ReadFile(l.path)
	l.mu.Unlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: read %s: %w", l.path, err)
	}
	return decodeLines(data, keep, l.logger), nil
}

// maxLine bounds one JSONL line. Scanning stops at a longer line, so the
// entries after it are lost and the stop is logged.
const maxLine = 1024 * 1024

func decodeLines(data []byte, keep func(date string) bool, logger *logging.Logger) []Entry {
	var out []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			logger.Warn("skipping corrupt audit line", "line", lineNo, "error", err)
			continue
		}
		if keep != nil && !keep(e.Date) {
			continue
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		logger.Error("audit scan stopped early, later entries ignored", "line", lineNo+1, "error", err)
	}
	return out
}
