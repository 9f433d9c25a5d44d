package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	"branchdb/pkg/logger"
	"branchdb/pkg/models"
	"branchdb/pkg/recordlog"
	"branchdb/pkg/records"
)

// BackupSuffix is appended to the original path for pre-compaction backups.
const BackupSuffix = ".pre-compact.bak"

// BlobSink receives debug payloads offloaded from the log during
// compaction. A failure here degrades to plain stripping, never aborts.
type BlobSink interface {
	Put(data []byte) (string, error)
}

// CompactOptions controls a compaction pass.
type CompactOptions struct {
	CreateBackup              bool
	RemoveActiveBranchChanged bool
	RemoveMessageOrderChanged bool
	StripDebugData            bool
	MoveDebugToBlobs          bool

	// Blobs is required when MoveDebugToBlobs is set.
	Blobs BlobSink
	// Limiter optionally paces write throughput (bytes) so maintenance
	// sweeps do not saturate the disk under live traffic elsewhere.
	Limiter *rate.Limiter
}

// DefaultCompactOptions returns the documented defaults: backup on, both
// replayable high-volume event types removed, debug stripped in place.
func DefaultCompactOptions() CompactOptions {
	return CompactOptions{
		CreateBackup:              true,
		RemoveActiveBranchChanged: true,
		RemoveMessageOrderChanged: true,
		StripDebugData:            true,
	}
}

// CompactResult reports what a compaction pass did.
type CompactResult struct {
	OriginalBytes       int64          `json:"original_bytes"`
	CompactedBytes      int64          `json:"compacted_bytes"`
	OriginalEventCount  int            `json:"original_event_count"`
	CompactedEventCount int            `json:"compacted_event_count"`
	RemovedEvents       map[string]int `json:"removed_events"`
	DebugFieldsStripped int            `json:"debug_fields_stripped"`
	DebugMovedToBlobs   int            `json:"debug_moved_to_blobs"`
	UnparsableRetained  int            `json:"unparsable_retained"`
	BackupPath          string         `json:"backup_path,omitempty"`
}

// CompactByID compacts one conversation's record file while holding the
// store lock, so no in-process writer can race the rewrite. The held log
// file handle is released first and reopened lazily on the next append.
func (s *Store) CompactByID(ctx context.Context, convID string, opts CompactOptions) (*CompactResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[convID]; !ok {
		return nil, ErrNotFound
	}
	if err := s.log.Release(convID); err != nil {
		return nil, err
	}
	return CompactConversation(ctx, s.log.Path(convID), opts)
}

// CompactConversation rewrites the record file at path in place, dropping
// removable noise events and shrinking oversized debug payloads. The file
// must not have a live writer: an advisory exclusive lock is taken for the
// duration and a held lock fails the pass. Unparsable lines are preserved
// verbatim and counted as retained.
func CompactConversation(ctx context.Context, path string, opts CompactOptions) (*CompactResult, error) {
	lock, err := recordlog.TryLock(path)
	if err != nil {
		return nil, fmt.Errorf("compact %s: %w", path, err)
	}
	defer lock.Unlock()

	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	entries, err := recordlog.Scan(path)
	if err != nil {
		return nil, err
	}

	res := &CompactResult{
		OriginalBytes:      fi.Size(),
		OriginalEventCount: len(entries),
		RemovedEvents:      map[string]int{},
	}

	if opts.CreateBackup {
		bak := path + BackupSuffix
		if err := copyFile(path, bak); err != nil {
			return nil, fmt.Errorf("write backup: %w", err)
		}
		res.BackupPath = bak
	}

	removable := map[string]bool{}
	if opts.RemoveActiveBranchChanged {
		removable[records.TypeActiveBranchChanged] = true
	}
	if opts.RemoveMessageOrderChanged {
		removable[records.TypeMessageOrderChanged] = true
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".compact-*.tmp")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	writeLine := func(line []byte) error {
		if opts.Limiter != nil {
			if err := opts.Limiter.WaitN(ctx, len(line)+1); err != nil {
				return err
			}
		}
		if _, err := tmp.Write(append(line, '\n')); err != nil {
			return err
		}
		res.CompactedBytes += int64(len(line) + 1)
		return nil
	}

	for _, e := range entries {
		if e.Rec == nil {
			res.UnparsableRetained++
			res.CompactedEventCount++
			if err := writeLine(e.Raw); err != nil {
				tmp.Close()
				return nil, err
			}
			continue
		}
		if removable[e.Rec.Type] {
			res.RemovedEvents[e.Rec.Type]++
			compactionRemoved.WithLabelValues(e.Rec.Type).Inc()
			continue
		}

		line := e.Raw
		if e.Rec.Type == records.TypeMessageBranchUpdated && opts.StripDebugData {
			if rewritten, changed := stripDebug(*e.Rec, opts, res); changed {
				line = rewritten
			}
		}
		res.CompactedEventCount++
		if err := writeLine(line); err != nil {
			tmp.Close()
			return nil, err
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return nil, fmt.Errorf("replace record file: %w", err)
	}

	compactionRuns.Inc()
	logger.Info("compaction_complete", "path", path,
		"original_events", res.OriginalEventCount, "compacted_events", res.CompactedEventCount,
		"original_bytes", res.OriginalBytes, "compacted_bytes", res.CompactedBytes,
		"stripped", res.DebugFieldsStripped, "moved", res.DebugMovedToBlobs)
	return res, nil
}

// stripDebug removes (or offloads) the debug payload of one
// message_branch_updated record. Records without a debug payload pass
// through untouched so repeated compactions are byte-stable.
func stripDebug(rec records.Record, opts CompactOptions, res *CompactResult) ([]byte, bool) {
	var p records.MessageBranchUpdated
	if err := json.Unmarshal(rec.Data, &p); err != nil {
		return nil, false
	}
	if p.Debug == nil || (p.Debug.Request == nil && p.Debug.Response == nil) {
		return nil, false
	}

	moved := false
	if opts.MoveDebugToBlobs && opts.Blobs != nil {
		payload, merr := json.Marshal(p.Debug)
		if merr == nil {
			if ref, perr := opts.Blobs.Put(payload); perr == nil {
				p.Debug = &models.DebugData{BlobRef: ref}
				moved = true
				res.DebugMovedToBlobs++
			} else {
				// degrade to plain stripping rather than failing the pass
				logger.Warn("compaction_blob_offload_failed", "error", perr)
			}
		}
	}
	if !moved {
		p.Debug = nil
		res.DebugFieldsStripped++
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, false
	}
	rec.Data = data
	line, err := rec.Encode()
	if err != nil {
		return nil, false
	}
	return line, true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
