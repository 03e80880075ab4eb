package stats

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"gitai/internal/authorship"
	"gitai/internal/gitexec"
	"gitai/internal/notes"
)

// BlameLine is one line of the augmented blame: git's origin commit
// joined with the origin commit's authorship note.
type BlameLine struct {
	Line    int                   `json:"line"`
	Commit  string                `json:"commit"`
	Kind    authorship.AuthorKind `json:"kind"`
	AgentID string                `json:"agent_id,omitempty"`
	Content string                `json:"content"`
}

// Blame delegates line origin to real git (`blame --porcelain`) and
// overlays each origin line with its note attribution. Lines whose
// origin commit carries no note read as human.
func Blame(ctx context.Context, runner *gitexec.Runner, mgr *notes.Manager, rev, path string) ([]BlameLine, error) {
	args := []string{"blame", "--porcelain"}
	if rev != "" {
		args = append(args, rev)
	}
	args = append(args, "--", path)

	out, err := runner.Output(ctx, args...)
	if err != nil {
		return nil, err
	}

	lines, err := parsePorcelain(out)
	if err != nil {
		return nil, err
	}

	// One note fetch per distinct origin commit.
	noteCache := make(map[string]*authorship.Note)
	for i := range lines {
		l := &lines[i]
		note, seen := noteCache[l.Commit]
		if !seen {
			note, err = mgr.Read(ctx, l.Commit)
			if err != nil {
				return nil, err
			}
			noteCache[l.Commit] = note
		}
		if note == nil {
			continue
		}
		if fa, ok := note.File(l.originPath); ok {
			if la, ok := fa.AuthorAt(l.originLine); ok {
				l.Kind = la.Kind
				l.AgentID = la.AgentID
			}
		}
	}

	result := make([]BlameLine, len(lines))
	for i, l := range lines {
		result[i] = l.BlameLine
	}
	return result, nil
}

type porcelainLine struct {
	BlameLine
	originLine int
	originPath string
}

// parsePorcelain walks `git blame --porcelain` output: a group header
// `<sha> <origLine> <finalLine> [<count>]`, metadata lines, and one
// tab-prefixed content line per blamed line.
func parsePorcelain(out []byte) ([]porcelainLine, error) {
	var lines []porcelainLine
	var current porcelainLine
	// filename metadata persists per origin commit within the stream.
	filenames := make(map[string]string)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "\t") {
			current.originPath = filenames[current.Commit]
			current.Content = line[1:]
			lines = append(lines, current)
			continue
		}

		if sha, orig, final, ok := parseHeader(line); ok {
			current = porcelainLine{
				BlameLine:  BlameLine{Line: final, Commit: sha},
				originLine: orig,
			}
			continue
		}

		if rest, ok := strings.CutPrefix(line, "filename "); ok {
			filenames[current.Commit] = rest
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parsing blame output: %w", err)
	}
	return lines, nil
}

func parseHeader(line string) (sha string, origLine, finalLine int, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || len(fields[0]) != 40 || !isHex(fields[0]) {
		return "", 0, 0, false
	}
	orig, err1 := strconv.Atoi(fields[1])
	final, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil {
		return "", 0, 0, false
	}
	return fields[0], orig, final, true
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
