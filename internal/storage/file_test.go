package storage

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sew/pkg/logx"
)

func openTestStore(t *testing.T, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestFiredSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sew.db")
	ctx := context.Background()
	now := time.Now()

	st := openTestStore(t, path)
	if err := st.MarkFired(ctx, FiredJob{JobID: "a1", Kind: "take_picture", ScheduledAt: now}); err != nil {
		t.Fatalf("MarkFired error: %v", err)
	}
	if ok, _ := st.WasFired(ctx, "a1"); !ok {
		t.Fatal("a1 not fired")
	}
	if ok, _ := st.WasFired(ctx, "b2"); ok {
		t.Fatal("b2 reported fired")
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	st = openTestStore(t, path)
	defer st.Close()
	if ok, _ := st.WasFired(ctx, "a1"); !ok {
		t.Fatal("a1 lost after reopen")
	}
}

func TestFiredJournalReplayWithoutCompaction(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	ctx := context.Background()

	st := openTestStore(t, path)
	_ = st.MarkFired(ctx, FiredJob{JobID: "x", ScheduledAt: time.Now()})
	// Simulate a crash: close the files without compacting.
	fs := st.(*fileStore)
	_ = fs.journalFile.Close()
	_ = fs.runsFile.Close()

	// Append a torn line.
	f, err := os.OpenFile(filepath.Join(dir, "ledger.fired.journal.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	_, _ = f.WriteString(`{"job_id":"y","sche`)
	_ = f.Close()

	st = openTestStore(t, path)
	defer st.Close()
	if ok, _ := st.WasFired(ctx, "x"); !ok {
		t.Fatal("x not replayed")
	}
	if ok, _ := st.WasFired(ctx, "y"); ok {
		t.Fatal("torn record accepted")
	}
}

func TestFiredRetention(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sew")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path, Retention: time.Hour}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	_ = st.MarkFired(ctx, FiredJob{JobID: "old", ScheduledAt: time.Now().Add(-2 * time.Hour)})
	_ = st.MarkFired(ctx, FiredJob{JobID: "new", ScheduledAt: time.Now()})
	_ = st.Close()

	st, err = Open(Config{Driver: "file", Path: path, Retention: time.Hour}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()
	if ok, _ := st.WasFired(ctx, "old"); ok {
		t.Fatal("expired record kept")
	}
	if ok, _ := st.WasFired(ctx, "new"); !ok {
		t.Fatal("fresh record pruned")
	}
}

func TestAppendRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := openTestStore(t, filepath.Join(dir, "sew.db"))
	ctx := context.Background()
	for _, errText := range []string{"", "camera busy"} {
		if err := st.AppendRun(ctx, RunRecord{JobID: "j", Kind: "take_picture", StartedAt: time.Now(), Error: errText}); err != nil {
			t.Fatalf("AppendRun error: %v", err)
		}
	}
	_ = st.Close()

	f, err := os.Open(filepath.Join(dir, "sew.runs.jsonl"))
	if err != nil {
		t.Fatalf("open runs: %v", err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	if n != 2 {
		t.Fatalf("runs lines = %d, want 2", n)
	}
	if !(RunRecord{}).OK() || (RunRecord{Error: "x"}).OK() {
		t.Fatal("OK mismatch")
	}
}
