package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gitai/internal/store"
)

func tempStore(t *testing.T) *store.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "transcript-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.Open(filepath.Join(dir, "ai"))
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestArchiveRoundTrip(t *testing.T) {
	st := tempStore(t)

	entries := []ArchiveEntry{
		{Seq: 1, AgentID: "claude/opus", Payload: json.RawMessage(`{"type":"ai_agent","transcript":{"messages":[]}}`)},
		{Seq: 3, AgentID: "cursor", Payload: json.RawMessage(`{"type":"ai_agent","x_extra":true}`)},
	}

	ref, err := Build(st, "deadbeefcafe", entries)
	if err != nil {
		t.Fatal(err)
	}
	if ref == "" {
		t.Fatal("empty archive ref")
	}

	arch, err := Load(st, ref)
	if err != nil {
		t.Fatal(err)
	}
	if arch.Commit != "deadbeefcafe" || len(arch.Entries) != 2 {
		t.Fatalf("archive: %+v", arch)
	}
	if arch.Entries[1].Seq != 3 || arch.Entries[1].AgentID != "cursor" {
		t.Errorf("entry: %+v", arch.Entries[1])
	}
	// Unknown fields survive verbatim through the archive.
	var payload map[string]interface{}
	if err := json.Unmarshal(arch.Entries[1].Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["x_extra"] != true {
		t.Errorf("unknown field lost: %v", payload)
	}
}

func TestBuildEmptyReturnsNoRef(t *testing.T) {
	st := tempStore(t)
	ref, err := Build(st, "deadbeef", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ref != "" {
		t.Errorf("got ref %q for empty archive", ref)
	}
}

func TestRefForCommit(t *testing.T) {
	st := tempStore(t)

	if _, ok := RefForCommit(st, "unknown"); ok {
		t.Error("pointer found for unknown commit")
	}

	ref, err := Build(st, "abc123", []ArchiveEntry{{Seq: 1, Payload: json.RawMessage(`{}`)}})
	if err != nil {
		t.Fatal(err)
	}

	got, ok := RefForCommit(st, "abc123")
	if !ok || got != ref {
		t.Errorf("got %q ok=%v, want %q", got, ok, ref)
	}
}

func TestStorePrompt(t *testing.T) {
	st := tempStore(t)

	raw := []byte(`{"type": "ai_agent", "agent_name": "claude"}`)
	ref, err := Store(st, raw)
	if err != nil {
		t.Fatal(err)
	}
	back, err := st.ReadContent(ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(back) != string(raw) {
		t.Errorf("prompt blob altered: %q", back)
	}
}
