package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"gitai/internal/linediff"
	"gitai/internal/store"
)

func setup(t *testing.T) (string, *store.Store) {
	t.Helper()
	root, err := os.MkdirTemp("", "snap-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(root) })

	if err := os.MkdirAll(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(filepath.Join(root, ".git", "ai"))
	if err != nil {
		t.Fatal(err)
	}
	return root, st
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCaptureDeterministic(t *testing.T) {
	root, st := setup(t)
	writeFile(t, root, "a.txt", "one\ntwo\n")
	writeFile(t, root, "src/b.go", "package b\n")

	c, err := NewCapturer(root, st, nil)
	if err != nil {
		t.Fatal(err)
	}

	first, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("identical trees produced different ids: %s vs %s", first.ID, second.ID)
	}
	if len(first.Entries) != 2 {
		t.Errorf("got %d entries, want 2", len(first.Entries))
	}
}

func TestCaptureSkipsIgnored(t *testing.T) {
	root, st := setup(t)
	writeFile(t, root, ".gitignore", "*.log\nbuild/\n")
	writeFile(t, root, "keep.txt", "hello\n")
	writeFile(t, root, "debug.log", "noise\n")
	writeFile(t, root, "build/out.js", "artifact\n")

	c, err := NewCapturer(root, st, nil)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := snap.Lookup("debug.log"); ok {
		t.Error("ignored file was captured")
	}
	if _, ok := snap.Lookup("build/out.js"); ok {
		t.Error("ignored directory content was captured")
	}
	if _, ok := snap.Lookup("keep.txt"); !ok {
		t.Error("tracked file missing")
	}
	if _, ok := snap.Lookup(".gitignore"); !ok {
		t.Error(".gitignore itself should be captured")
	}
}

func TestCaptureMarksBinaryOpaque(t *testing.T) {
	root, st := setup(t)
	writeFile(t, root, "img.bin", "PK\x00\x03\x04binary")
	writeFile(t, root, "text.txt", "plain\n")

	c, err := NewCapturer(root, st, nil)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}

	bin, ok := snap.Lookup("img.bin")
	if !ok || bin.Kind != store.KindOpaque {
		t.Errorf("binary file: got %+v", bin)
	}
	txt, _ := snap.Lookup("text.txt")
	if txt.Kind != store.KindText {
		t.Errorf("text file: got kind %c", txt.Kind)
	}
}

func TestDiffIdenticalSnapshotsEmpty(t *testing.T) {
	root, st := setup(t)
	writeFile(t, root, "a.txt", "one\ntwo\n")

	c, _ := NewCapturer(root, st, nil)
	snap, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}

	deltas, err := Diff(st, linediff.New(), snap, snap)
	if err != nil {
		t.Fatal(err)
	}
	if len(deltas) != 0 {
		t.Errorf("identical snapshots: got %v", deltas)
	}
}

func TestDiffDetectsAppendedLines(t *testing.T) {
	root, st := setup(t)
	writeFile(t, root, "a.txt", "x\ny\nz\n")

	c, _ := NewCapturer(root, st, nil)
	before, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "a.txt", "x\ny\nz\np\nq\n")
	after, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}

	deltas, err := Diff(st, linediff.New(), before, after)
	if err != nil {
		t.Fatal(err)
	}
	delta, ok := deltas["a.txt"]
	if !ok {
		t.Fatal("no delta for a.txt")
	}
	want := linediff.Span{Start: 4, End: 6}
	if len(delta.Spans) != 1 || delta.Spans[0] != want {
		t.Errorf("got %v, want [%v]", delta.Spans, want)
	}
}

func TestDiffRenameContributesNothing(t *testing.T) {
	root, st := setup(t)
	writeFile(t, root, "old.txt", "same\ncontent\n")

	c, _ := NewCapturer(root, st, nil)
	before, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Rename(filepath.Join(root, "old.txt"), filepath.Join(root, "new.txt")); err != nil {
		t.Fatal(err)
	}
	after, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}

	deltas, err := Diff(st, linediff.New(), before, after)
	if err != nil {
		t.Fatal(err)
	}
	if len(deltas) != 0 {
		t.Errorf("pure rename: got %v, want empty", deltas)
	}
}

func TestDiffNewFileWholeInterval(t *testing.T) {
	root, st := setup(t)
	writeFile(t, root, "a.txt", "x\n")

	c, _ := NewCapturer(root, st, nil)
	before, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "fresh.txt", "a\nb\nc\n")
	after, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}

	deltas, err := Diff(st, linediff.New(), before, after)
	if err != nil {
		t.Fatal(err)
	}
	delta := deltas["fresh.txt"]
	want := linediff.Span{Start: 1, End: 4}
	if len(delta.Spans) != 1 || delta.Spans[0] != want {
		t.Errorf("got %v, want [%v]", delta.Spans, want)
	}
}

func TestCaptureSymlinkByTarget(t *testing.T) {
	root, st := setup(t)
	writeFile(t, root, "target.txt", "data\n")
	if err := os.Symlink("target.txt", filepath.Join(root, "link")); err != nil {
		t.Skip("symlinks not supported here")
	}

	c, _ := NewCapturer(root, st, nil)
	snap, err := c.Capture()
	if err != nil {
		t.Fatal(err)
	}

	link, ok := snap.Lookup("link")
	if !ok || link.Kind != store.KindSymlink {
		t.Fatalf("symlink entry: %+v", link)
	}
	content, err := st.ReadContent(link.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "target.txt" {
		t.Errorf("symlink captured as %q, want target string", content)
	}
}
