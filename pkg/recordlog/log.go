// Package recordlog stores one append-only, newline-delimited JSON record
// file per conversation under a two-level directory shard derived from the
// conversation id's leading characters.
package recordlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"branchdb/pkg/logger"
	"branchdb/pkg/records"
)

const logExt = ".log"

// Log manages the record files under a base directory. A single Log is the
// sole writer for its directory; per-conversation appends are serialized.
type Log struct {
	base string

	mu      sync.Mutex
	writers map[string]*os.File
}

// Open prepares a record log rooted at base, creating the directory when
// missing. File handles are opened lazily on first append.
func Open(base string) (*Log, error) {
	if base == "" {
		return nil, fmt.Errorf("empty record log base dir")
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return nil, fmt.Errorf("create record log dir: %w", err)
	}
	logger.Info("record_log_opened", "base", base)
	return &Log{base: base, writers: map[string]*os.File{}}, nil
}

// Close flushes and releases every open file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for id, f := range l.writers {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(l.writers, id)
	}
	return firstErr
}

// Path returns the sharded file path for a conversation id:
// <base>/<id[0:2]>/<id[2:4]>/<id>.log. Short ids fall back to a flat file.
func (l *Log) Path(convID string) string {
	return ShardedPath(l.base, convID)
}

// ShardedPath computes the record file path for an id under base.
func ShardedPath(base, id string) string {
	if len(id) < 4 {
		return filepath.Join(base, id+logExt)
	}
	return filepath.Join(base, id[0:2], id[2:4], id+logExt)
}

// Append serializes the record and appends it as one line to the
// conversation's file, fsyncing before returning.
func (l *Log) Append(convID string, rec records.Record) error {
	line, err := rec.Encode()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.writer(convID)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		logger.Error("record_append_failed", "conversation", convID, "type", rec.Type, "error", err)
		return fmt.Errorf("append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync record log: %w", err)
	}
	logger.Debug("record_appended", "conversation", convID, "type", rec.Type)
	return nil
}

func (l *Log) writer(convID string) (*os.File, error) {
	if f, ok := l.writers[convID]; ok {
		return f, nil
	}
	path := l.Path(convID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create shard dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open record file: %w", err)
	}
	l.writers[convID] = f
	return f, nil
}

// Release closes the held handle for one conversation, if any. The
// compactor uses this to drop the live writer before rewriting a file.
func (l *Log) Release(convID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.writers[convID]
	if !ok {
		return nil
	}
	delete(l.writers, convID)
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Entry is one physical line of a record file. Rec is nil for lines that
// failed to parse; such lines are retained verbatim and skipped by replay.
type Entry struct {
	Raw []byte
	Rec *records.Record
}

// Scan reads every line of the file at path. A missing file yields an
// empty slice: a conversation with no records.
func Scan(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open record file: %w", err)
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		raw := append([]byte(nil), sc.Bytes()...)
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		rec, derr := records.Decode(raw)
		if derr != nil {
			// corrupt line: keep it, skip it
			out = append(out, Entry{Raw: raw})
			continue
		}
		out = append(out, Entry{Raw: raw, Rec: &rec})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan record file: %w", err)
	}
	return out, nil
}

// Walk visits every record file under base, calling fn with the
// conversation id (derived from the file name) and full path.
func (l *Log) Walk(fn func(convID, path string) error) error {
	return filepath.WalkDir(l.base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), logExt) {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".pre-compact.bak") {
			return nil
		}
		id := strings.TrimSuffix(d.Name(), logExt)
		return fn(id, p)
	})
}
