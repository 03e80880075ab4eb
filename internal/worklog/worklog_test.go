package worklog

import (
	"os"
	"testing"

	"gitai/internal/authorship"
	"gitai/internal/linediff"
)

func tempLog(t *testing.T) *Log {
	t.Helper()
	dir, err := os.MkdirTemp("", "worklog-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return Open(dir, "main")
}

func entryFor(kind authorship.AuthorKind, agent string) *Entry {
	return &Entry{
		WallTimeMs: 1700000000000,
		Kind:       kind,
		AgentID:    agent,
		SnapshotID: "snap1",
		Files: map[string]FileChange{
			"a.txt": {BlobHash: "blob1", Spans: []linediff.Span{{Start: 1, End: 4}}},
		},
	}
}

func TestAppendAssignsContiguousSeq(t *testing.T) {
	l := tempLog(t)

	for i := 0; i < 3; i++ {
		if err := l.Append(entryFor(authorship.Human, "")); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := l.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			t.Errorf("entry %d: seq %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestRoundTripFields(t *testing.T) {
	l := tempLog(t)

	in := entryFor(authorship.Agent, "agent-x")
	in.PromptRef = "prompt-blob-hash"
	if err := l.Append(in); err != nil {
		t.Fatal(err)
	}

	entries, err := l.Entries()
	if err != nil {
		t.Fatal(err)
	}
	e := entries[0]
	if e.Kind != authorship.Agent || e.AgentID != "agent-x" {
		t.Errorf("author round trip failed: %+v", e)
	}
	if e.PromptRef != "prompt-blob-hash" {
		t.Errorf("prompt ref round trip failed: %q", e.PromptRef)
	}
	fc := e.Files["a.txt"]
	if fc.BlobHash != "blob1" || len(fc.Spans) != 1 || fc.Spans[0] != (linediff.Span{Start: 1, End: 4}) {
		t.Errorf("file change round trip failed: %+v", fc)
	}
}

func TestLastEntryUsesIndex(t *testing.T) {
	l := tempLog(t)

	if _, ok, err := l.LastEntry(); err != nil || ok {
		t.Fatalf("empty log: got ok=%v err=%v", ok, err)
	}

	l.Append(entryFor(authorship.Human, ""))
	l.Append(entryFor(authorship.Agent, "agent-x"))

	last, ok, err := l.LastEntry()
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v", ok, err)
	}
	if last.Seq != 2 || last.AgentID != "agent-x" {
		t.Errorf("wrong tail entry: %+v", last)
	}
}

func TestTruncate(t *testing.T) {
	l := tempLog(t)
	l.Append(entryFor(authorship.Human, ""))

	if err := l.Truncate(); err != nil {
		t.Fatal(err)
	}
	entries, err := l.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Errorf("after truncate: got %v, want nil", entries)
	}

	// Sequences restart after truncation.
	if err := l.Append(entryFor(authorship.Human, "")); err != nil {
		t.Fatal(err)
	}
	last, _, _ := l.LastEntry()
	if last.Seq != 1 {
		t.Errorf("seq after truncate: got %d, want 1", last.Seq)
	}
}

func TestPriorPointer(t *testing.T) {
	l := tempLog(t)

	prior, err := l.Prior()
	if err != nil || prior != "" {
		t.Fatalf("fresh log: got %q err=%v", prior, err)
	}

	if err := l.SetPrior("snapshot-abc"); err != nil {
		t.Fatal(err)
	}
	prior, err = l.Prior()
	if err != nil || prior != "snapshot-abc" {
		t.Fatalf("got %q err=%v", prior, err)
	}

	if err := l.SetPrior(""); err != nil {
		t.Fatal(err)
	}
	prior, _ = l.Prior()
	if prior != "" {
		t.Errorf("after clear: got %q", prior)
	}
}

func TestInvalidate(t *testing.T) {
	l := tempLog(t)
	l.Append(entryFor(authorship.Agent, "agent-x"))
	l.SetPrior("snap")

	if err := l.Invalidate(); err != nil {
		t.Fatal(err)
	}
	entries, _ := l.Entries()
	if entries != nil {
		t.Error("entries survived invalidation")
	}
	prior, _ := l.Prior()
	if prior != "" {
		t.Error("prior pointer survived invalidation")
	}
}

func TestBranchIsolation(t *testing.T) {
	dir, err := os.MkdirTemp("", "worklog-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	main := Open(dir, "main")
	feature := Open(dir, "feature/login")

	main.Append(entryFor(authorship.Human, ""))
	feature.Append(entryFor(authorship.Agent, "agent-x"))
	feature.Append(entryFor(authorship.Agent, "agent-x"))

	mainEntries, _ := main.Entries()
	featureEntries, _ := feature.Entries()
	if len(mainEntries) != 1 || len(featureEntries) != 2 {
		t.Errorf("got main=%d feature=%d, want 1 and 2", len(mainEntries), len(featureEntries))
	}
}

func TestCorruptRecordDetected(t *testing.T) {
	l := tempLog(t)
	l.Append(entryFor(authorship.Human, ""))

	f, err := os.OpenFile(l.logPath(), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte{0, 0, 0, 99, 'x'})
	f.Close()

	_, err = l.Entries()
	if err == nil {
		t.Fatal("corrupt journal not detected")
	}
}
