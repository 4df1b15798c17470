package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ludio/questplayer/internal/core"
	"github.com/ludio/questplayer/internal/storage/journal"
	"github.com/ludio/questplayer/internal/storage/snapshot"
)

const journalVersion = 1

// FileProgressStore keeps progression in a snapshot file plus an
// append-only journal. Every Save/Clear lands in the journal immediately;
// CompactJournal folds the journal into a fresh snapshot and rotates the
// old log away.
type FileProgressStore struct {
	current *core.Progress

	snapshotPath string
	journalPath  string

	log journal.AppendOnlyLog
	mu  sync.Mutex
}

func NewFileProgressStore(snapshotPath, journalPath string) (*FileProgressStore, error) {
	log, err := journal.NewFileLog(journalPath)
	if err != nil {
		return nil, err
	}
	return &FileProgressStore{
		snapshotPath: snapshotPath,
		journalPath:  journalPath,
		log:          log,
	}, nil
}

// Close closes the journal log.
func (st *FileProgressStore) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.log == nil {
		return nil
	}
	err := st.log.Close()
	st.log = nil
	return err
}

func (st *FileProgressStore) Save(ctx context.Context, p *core.Progress) error {
	if p == nil {
		return errors.New("storage: required progress")
	}
	if p.PlaylistID == "" {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	payload, err := json.Marshal(journal.ProgressSavedPayload{Progress: p})
	if err != nil {
		return fmt.Errorf("storage: cant marshal progress: %w", err)
	}
	rec := journal.Record{
		Version:   journalVersion,
		Type:      journal.RecordProgressSaved,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
	if err := st.flushAppend(ctx, rec); err != nil {
		return err
	}

	st.current = p.CloneProgress()
	return nil
}

func (st *FileProgressStore) Clear(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	rec := journal.Record{
		Version:   journalVersion,
		Type:      journal.RecordProgressCleared,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.flushAppend(ctx, rec); err != nil {
		return err
	}
	st.current = nil
	return nil
}

// Load reconstructs progress from the last snapshot plus journal replay.
// Last record wins.
func (st *FileProgressStore) Load(ctx context.Context) (*core.Progress, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	ss, err := snapshot.Read(ctx, st.snapshotPath)
	if err != nil {
		return nil, err
	}
	var current *core.Progress
	if ss != nil {
		current = ss.Progress.CloneProgress()
	}

	records, err := journal.ReadAll(ctx, st.journalPath)
	if err != nil {
		return nil, err
	}
	current, err = applyRecords(current, records)
	if err != nil {
		return nil, err
	}

	st.current = current
	return current.CloneProgress(), nil
}

// CompactJournal writes the current state as a snapshot and rotates the
// journal into old/.
func (st *FileProgressStore) CompactJournal(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.log == nil {
		return errors.New("storage: journal log not initialized")
	}

	ss := &snapshot.Snapshot{
		CreatedAt: time.Now().UTC(),
		Version:   snapshot.CurrentVersion,
		Progress:  st.current.CloneProgress(),
	}

	if err := st.log.Flush(ctx); err != nil {
		return err
	}

	if err := snapshot.Write(ctx, st.snapshotPath, ss); err != nil {
		return err
	}

	return st.backupAndResetLog()
}

func (st *FileProgressStore) flushAppend(ctx context.Context, recs ...journal.Record) error {
	if st.log == nil {
		return errors.New("storage: journal log not initialized")
	}
	if err := st.log.Append(ctx, recs...); err != nil {
		return err
	}
	return st.log.Flush(ctx)
}

func (st *FileProgressStore) backupAndResetLog() error {
	if st.log == nil {
		return errors.New("storage: stop using not initialized journal log")
	}
	if err := st.log.Close(); err != nil {
		return fmt.Errorf("storage: close journal log: %w", err)
	}

	st.log = nil

	if err := os.MkdirAll(
		filepath.Join(filepath.Dir(st.journalPath), "old"),
		0o755,
	); err != nil {
		return fmt.Errorf("storage: cant create old journal dir: %w", err)
	}

	oldPath := filepath.Join(
		filepath.Dir(st.journalPath),
		"old",
		fmt.Sprintf(
			"journal-%s.log",
			time.Now().UTC().Format("20060102T150405Z"),
		),
	)
	if err := os.Rename(st.journalPath, oldPath); err != nil {
		return fmt.Errorf("storage: cant rename journal to old: %w", err)
	}

	if nl, err := journal.NewFileLog(st.journalPath); err != nil {
		return fmt.Errorf("storage: cant create new journal log: %w", err)
	} else {
		st.log = nl
		return nil
	}
}

func applyRecords(current *core.Progress, records []journal.Record) (*core.Progress, error) {
	for _, rec := range records {
		switch rec.Type {
		case journal.RecordProgressSaved:
			p := journal.ProgressSavedPayload{}
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				return nil, fmt.Errorf("storage: decoding progress_saved: %w", err)
			}
			if p.Progress == nil {
				continue
			}
			current = p.Progress.CloneProgress()
		case journal.RecordProgressCleared:
			current = nil
		default:
			return nil, fmt.Errorf("storage: got uncaught record %v", rec.Type)
		}
	}
	return current, nil
}
