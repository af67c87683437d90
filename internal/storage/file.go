package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sew/pkg/logx"
)

// fileStore keeps everything in plain files next to cfg.Path.
//
// Files:
//   - <prefix>.runs.jsonl           (append-only run history)
//   - <prefix>.fired.snapshot.json  (periodic snapshot)
//   - <prefix>.fired.journal.jsonl  (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery writes and
// on Close.
type fileStore struct {
	log       logx.Logger
	retention time.Duration

	mu sync.Mutex

	runsFile *os.File

	snapshotPath string
	journalFile  *os.File
	fired        map[string]FiredJob

	writes int
}

const compactEvery = 500

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runs, err := os.OpenFile(prefix+".runs.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	snapPath := prefix + ".fired.snapshot.json"
	journalPath := prefix + ".fired.journal.jsonl"
	fired := map[string]FiredJob{}
	if err := loadSnapshot(snapPath, fired); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("fired snapshot unreadable", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, fired); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("fired journal unreadable", logx.String("path", journalPath), logx.Err(err))
	}
	pruneFired(fired, time.Now().Add(-cfg.retention()))

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = runs.Close()
		return nil, err
	}
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("fired", len(fired)))

	return &fileStore{
		log:          log,
		retention:    cfg.retention(),
		runsFile:     runs,
		snapshotPath: snapPath,
		journalFile:  jf,
		fired:        fired,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile != nil {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("fired compact failed", logx.Err(err))
		}
	}
	var err1, err2 error
	if s.runsFile != nil {
		err1 = s.runsFile.Close()
		s.runsFile = nil
	}
	if s.journalFile != nil {
		err2 = s.journalFile.Close()
		s.journalFile = nil
	}
	return errors.Join(err1, err2)
}

func (s *fileStore) MarkFired(ctx context.Context, j FiredJob) error {
	_ = ctx
	j.JobID = strings.TrimSpace(j.JobID)
	if j.JobID == "" {
		return nil
	}
	if j.FiredAt.IsZero() {
		j.FiredAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("fired journal closed")
	}
	s.fired[j.JobID] = j
	if err := json.NewEncoder(s.journalFile).Encode(j); err != nil {
		return err
	}
	// The ledger is only useful if it survives a crash right after firing.
	if err := s.journalFile.Sync(); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("fired compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) WasFired(ctx context.Context, jobID string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fired[strings.TrimSpace(jobID)]
	return ok, nil
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return errors.New("runs file closed")
	}
	return json.NewEncoder(s.runsFile).Encode(r)
}

func (s *fileStore) compactLocked() error {
	pruneFired(s.fired, time.Now().Add(-s.retention))

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.fired); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]FiredJob) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]FiredJob
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]FiredJob) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var j FiredJob
		// A torn last line after a crash is skipped.
		if err := json.Unmarshal(sc.Bytes(), &j); err != nil || j.JobID == "" {
			continue
		}
		out[j.JobID] = j
	}
	return sc.Err()
}

func pruneFired(m map[string]FiredJob, before time.Time) {
	for k, v := range m {
		if v.ScheduledAt.Before(before) {
			delete(m, k)
		}
	}
}
