// package migrationlog
//
// append only record of completed transfers
package migrationlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Format : on disk layout of the log
type Format string

const (
	// FormatLegacy : json objects each followed by ", \n", the format the first version wrote
	FormatLegacy Format = "legacy"
	// FormatNDJSON : format version 2, one json object per line
	FormatNDJSON Format = "ndjson"
)

const (
	legacySeparator  = ", \n"
	legacyDateLayout = "02/01/06 15:04:05"
	formatVersion    = 2
)

// Record : one completed transfer
type Record struct {
	RunID         string
	Trigger       string
	Date          time.Time
	RowCount      int
	ExecutionTime time.Duration
}

type legacyEntry struct {
	Date                 string  `json:"date"`
	MigratedRecordsCount int     `json:"migrated_records_count"`
	ExecutionTime        float64 `json:"execution_time"`
}

type entry struct {
	FormatVersion        int     `json:"format_version"`
	RunID                string  `json:"run_id"`
	Trigger              string  `json:"trigger,omitempty"`
	Date                 string  `json:"date"`
	MigratedRecordsCount int     `json:"migrated_records_count"`
	ExecutionTime        float64 `json:"execution_time"`
}

// Log : the migration log file. Safe for concurrent use.
type Log struct {
	fs     afero.Fs
	path   string
	format Format
	mu     sync.RWMutex
}

// New : log stored at path on fs
func New(fs afero.Fs, path string, format Format) (*Log, error) {
	switch format {
	case FormatLegacy, FormatNDJSON:
	default:
		return nil, fmt.Errorf("unsupported migration log format %q", format)
	}
	if path == "" {
		return nil, errors.New("migration log path is empty")
	}
	return &Log{fs: fs, path: path, format: format}, nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) Format() Format {
	return l.format
}

// Encode : the bytes Append writes for rec
func (l *Log) Encode(rec Record) ([]byte, error) {
	seconds := rec.ExecutionTime.Seconds()
	if l.format == FormatLegacy {
		b, err := json.Marshal(legacyEntry{
			Date:                 rec.Date.Format(legacyDateLayout),
			MigratedRecordsCount: rec.RowCount,
			ExecutionTime:        seconds,
		})
		if err != nil {
			return nil, err
		}
		return append(b, legacySeparator...), nil
	}
	b, err := json.Marshal(entry{
		FormatVersion:        formatVersion,
		RunID:                rec.RunID,
		Trigger:              rec.Trigger,
		Date:                 rec.Date.UTC().Format(time.RFC3339Nano),
		MigratedRecordsCount: rec.RowCount,
		ExecutionTime:        seconds,
	})
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Append : writes rec at the end of the log in a single write
func (l *Log) Append(rec Record) error {
	b, err := l.Encode(rec)
	if err != nil {
		return fmt.Errorf("encoding migration record: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := l.fs.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening migration log: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing migration log: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing migration log: %w", err)
	}
	return f.Close()
}

// ReadAll : every raw entry line, oldest first. No log yet means no entries.
func (l *Log) ReadAll() ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, err := afero.ReadFile(l.fs, l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading migration log: %w", err)
	}
	lines := []string{}
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if sc.Text() == "" {
			continue
		}
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// ParseEntry : decodes one raw line of either format
func ParseEntry(line string) (Record, error) {
	line = strings.TrimSuffix(strings.TrimRight(line, " \n"), ",")
	var e entry
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return Record{}, fmt.Errorf("decoding migration entry: %w", err)
	}
	rec := Record{
		RunID:         e.RunID,
		Trigger:       e.Trigger,
		RowCount:      e.MigratedRecordsCount,
		ExecutionTime: time.Duration(e.ExecutionTime * float64(time.Second)),
	}
	layout := time.RFC3339Nano
	if e.FormatVersion < formatVersion {
		layout = legacyDateLayout
	}
	d, err := time.ParseInLocation(layout, e.Date, time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("decoding migration entry date: %w", err)
	}
	rec.Date = d
	return rec, nil
}
