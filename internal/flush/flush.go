// Package flush implements the background flusher: a detached,
// fire-and-forget child that drains pending telemetry after network
// operations.
package flush

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"gitai/internal/cache"
	"gitai/internal/logging"
	"gitai/internal/store"
)

// WallClockCap bounds a drain run; past it the flusher stops and leaves
// the remainder queued.
const WallClockCap = 30 * time.Second

const batchSize = 128

// Spawn launches `git-ai flush-logs` detached from the current process.
// The parent never waits: failures here must not surface into the
// proxied git operation.
func Spawn(repoDir string) {
	self, err := os.Executable()
	if err != nil {
		logging.Debugf("flush spawn: %v", err)
		return
	}

	cmd := exec.Command(self, "flush-logs")
	cmd.Dir = repoDir
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)

	if err := cmd.Start(); err != nil {
		logging.Debugf("flush spawn: %v", err)
		return
	}
	// Release lets the child outlive us without becoming our zombie.
	cmd.Process.Release()
}

// Drain moves queued telemetry events into the local archive file. The
// archive is the durable handoff point; shipping it anywhere is outside
// the core.
func Drain(ctx context.Context, aiDir string) error {
	ctx, cancel := context.WithTimeout(ctx, WallClockCap)
	defer cancel()

	db, err := cache.Open(aiDir)
	if err != nil {
		return err
	}
	defer db.Close()

	archive := filepath.Join(aiDir, "telemetry.log")
	for {
		if ctx.Err() != nil {
			return nil
		}
		events, err := db.DequeueEvents(batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		if err := appendArchive(archive, events); err != nil {
			return err
		}
		if len(events) < batchSize {
			return nil
		}
	}
}

func appendArchive(path string, events []cache.Event) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening telemetry archive: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range events {
		record := map[string]interface{}{
			"at":      e.CreatedAt.UnixMilli(),
			"kind":    e.Kind,
			"payload": e.Payload,
		}
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("writing telemetry record: %w", err)
		}
	}
	return nil
}

// Enqueue records an event for a later drain, opening and closing the
// queue so callers stay stateless.
func Enqueue(st *store.Store, kind, payload string) {
	db, err := cache.Open(st.Dir())
	if err != nil {
		return
	}
	defer db.Close()
	db.EnqueueEvent(kind, payload)
}
