package materialize

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitai/internal/authorship"
	"gitai/internal/gitio"
	"gitai/internal/linediff"
	"gitai/internal/store"
	"gitai/internal/worklog"
)

type fixture struct {
	root  string
	repo  *gitio.Repository
	st    *store.Store
	gg    *gogit.Repository
	mater *Materializer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root, err := os.MkdirTemp("", "materialize-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(root) })

	gg, err := gogit.PlainInit(root, false)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(root, ".git", "ai"))
	require.NoError(t, err)

	f := &fixture{root: root, st: st, gg: gg}
	return f
}

func (f *fixture) commit(t *testing.T, files map[string]string, msg string) string {
	t.Helper()
	wt, err := f.gg.Worktree()
	require.NoError(t, err)

	for path, content := range files {
		full := filepath.Join(f.root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
		_, err = wt.Add(path)
		require.NoError(t, err)
	}

	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	repo, err := gitio.Open(f.root)
	require.NoError(t, err)
	f.repo = repo
	f.mater = New(repo, f.st)
	return hash.String()
}

// storeBlob puts checkpoint-time content into the content store and
// returns its hash, the way a capture would.
func (f *fixture) storeBlob(t *testing.T, content string) string {
	t.Helper()
	hash := gitio.BlobHash([]byte(content))
	require.NoError(t, f.st.WriteContent(hash, []byte(content)))
	return hash
}

func TestBasicAttribution(t *testing.T) {
	f := newFixture(t)

	final := "x\ny\nz\np\nq\n"
	commit := f.commit(t, map[string]string{"a.txt": final}, "add a.txt")

	blobHash := f.storeBlob(t, final)
	entries := []worklog.Entry{
		{
			Seq:  1,
			Kind: authorship.Agent, AgentID: "agent-x",
			Files: map[string]worklog.FileChange{
				"a.txt": {BlobHash: blobHash, Spans: []linediff.Span{{Start: 4, End: 6}}},
			},
		},
	}

	note, err := f.mater.Build(commit, entries)
	require.NoError(t, err)
	require.Len(t, note.Files, 1)

	fa := note.Files[0]
	assert.Equal(t, "a.txt", fa.Path)
	assert.Equal(t, 5, fa.LineCount)
	assert.Equal(t, []authorship.Run{
		{Len: 3, Kind: authorship.Human},
		{Len: 2, Kind: authorship.Agent, AgentID: "agent-x"},
	}, fa.Runs)
}

func TestLaterEntryWins(t *testing.T) {
	f := newFixture(t)

	content := "l1\nl2\nl3\nl4\n"
	commit := f.commit(t, map[string]string{"m.go": content}, "add m.go")
	blobHash := f.storeBlob(t, content)

	span := []linediff.Span{{Start: 2, End: 4}}
	entries := []worklog.Entry{
		{Seq: 1, Kind: authorship.Agent, AgentID: "agent-a",
			Files: map[string]worklog.FileChange{"m.go": {BlobHash: blobHash, Spans: span}}},
		{Seq: 2, Kind: authorship.Agent, AgentID: "agent-b",
			Files: map[string]worklog.FileChange{"m.go": {BlobHash: blobHash, Spans: []linediff.Span{{Start: 3, End: 4}}}}},
	}

	note, err := f.mater.Build(commit, entries)
	require.NoError(t, err)
	require.Len(t, note.Files, 1)
	assert.Equal(t, []authorship.Run{
		{Len: 1, Kind: authorship.Human},
		{Len: 1, Kind: authorship.Agent, AgentID: "agent-a"},
		{Len: 1, Kind: authorship.Agent, AgentID: "agent-b"},
		{Len: 1, Kind: authorship.Human},
	}, note.Files[0].Runs)
}

func TestStagedSubsetDropsIntervals(t *testing.T) {
	f := newFixture(t)

	// The committed blob never contained the checkpointed lines 5-7.
	committed := "a\nb\nc\n"
	commit := f.commit(t, map[string]string{"m.go": committed}, "partial stage")

	// Checkpoint saw a longer file whose tail was agent-authored.
	ckContent := "a\nb\nc\nd\nagent1\nagent2\nagent3\n"
	blobHash := f.storeBlob(t, ckContent)

	entries := []worklog.Entry{
		{Seq: 1, Kind: authorship.Agent, AgentID: "agent-x",
			Files: map[string]worklog.FileChange{"m.go": {BlobHash: blobHash, Spans: []linediff.Span{{Start: 5, End: 8}}}}},
	}

	note, err := f.mater.Build(commit, entries)
	require.NoError(t, err)
	// All surviving lines are human, so the file is absent from the note.
	assert.Empty(t, note.Files)
}

func TestRemapAfterShift(t *testing.T) {
	f := newFixture(t)

	// Commit has one extra line at the top relative to checkpoint time.
	ckContent := "agent1\nagent2\nhuman\n"
	committed := "header\nagent1\nagent2\nhuman\n"
	commit := f.commit(t, map[string]string{"f.py": committed}, "with header")
	blobHash := f.storeBlob(t, ckContent)

	entries := []worklog.Entry{
		{Seq: 1, Kind: authorship.Agent, AgentID: "agent-x",
			Files: map[string]worklog.FileChange{"f.py": {BlobHash: blobHash, Spans: []linediff.Span{{Start: 1, End: 3}}}}},
	}

	note, err := f.mater.Build(commit, entries)
	require.NoError(t, err)
	require.Len(t, note.Files, 1)
	assert.Equal(t, []authorship.Run{
		{Len: 1, Kind: authorship.Human},
		{Len: 2, Kind: authorship.Agent, AgentID: "agent-x"},
		{Len: 1, Kind: authorship.Human},
	}, note.Files[0].Runs)
}

func TestIdempotentBuild(t *testing.T) {
	f := newFixture(t)

	content := "x\ny\nz\n"
	commit := f.commit(t, map[string]string{"a.txt": content}, "add")
	blobHash := f.storeBlob(t, content)

	entries := []worklog.Entry{
		{Seq: 1, Kind: authorship.Agent, AgentID: "agent-x",
			Files: map[string]worklog.FileChange{"a.txt": {BlobHash: blobHash, Spans: []linediff.Span{{Start: 1, End: 2}}}}},
	}

	first, err := f.mater.Build(commit, entries)
	require.NoError(t, err)
	second, err := f.mater.Build(commit, entries)
	require.NoError(t, err)

	a, err := authorship.Encode(first)
	require.NoError(t, err)
	b, err := authorship.Encode(second)
	require.NoError(t, err)
	assert.Equal(t, a, b, "materialize must be byte-identical across runs")
}

func TestWholeFileAgentAuthored(t *testing.T) {
	f := newFixture(t)

	content := "g1\ng2\ng3\ng4\n"
	commit := f.commit(t, map[string]string{"gen.go": content}, "generated")
	blobHash := f.storeBlob(t, content)

	entries := []worklog.Entry{
		{Seq: 1, Kind: authorship.Agent, AgentID: "agent-x",
			Files: map[string]worklog.FileChange{"gen.go": {BlobHash: blobHash, Spans: []linediff.Span{{Start: 1, End: 5}}}}},
	}

	note, err := f.mater.Build(commit, entries)
	require.NoError(t, err)
	require.Len(t, note.Files, 1)
	assert.Equal(t, []authorship.Run{{Len: 4, Kind: authorship.Agent, AgentID: "agent-x"}}, note.Files[0].Runs)
}

func TestUntouchedFilesAbsent(t *testing.T) {
	f := newFixture(t)

	commit := f.commit(t, map[string]string{
		"touched.txt":   "a\nb\n",
		"untouched.txt": "c\nd\n",
	}, "two files")
	blobHash := f.storeBlob(t, "a\nb\n")

	entries := []worklog.Entry{
		{Seq: 1, Kind: authorship.Agent, AgentID: "agent-x",
			Files: map[string]worklog.FileChange{"touched.txt": {BlobHash: blobHash, Spans: []linediff.Span{{Start: 1, End: 2}}}}},
	}

	note, err := f.mater.Build(commit, entries)
	require.NoError(t, err)
	require.Len(t, note.Files, 1)
	assert.Equal(t, "touched.txt", note.Files[0].Path)
}
