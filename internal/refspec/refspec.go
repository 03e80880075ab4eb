// Package refspec rewrites fetch/push argument vectors to carry the
// notes refspec.
package refspec

import (
	"strings"

	"gitai/internal/notes"
)

// NoNotesFlag is the synthetic override that suppresses injection. It is
// consumed here and never reaches the real git.
const NoNotesFlag = "--no-ai-notes"

// InjectFetch appends the fetch refspec for the notes ref to a fetch or
// pull argument list, unless it is already present or suppressed.
// Idempotent. The returned slice is a copy.
func InjectFetch(args []string) []string {
	return inject(args, notes.FetchRefspec)
}

// InjectPush appends the push refspec (no force) to a push argument list,
// unless already present or suppressed. Idempotent.
func InjectPush(args []string) []string {
	return inject(args, notes.PushRefspec)
}

func inject(args []string, spec string) []string {
	out := make([]string, 0, len(args)+1)
	suppressed := false
	present := false
	for _, arg := range args {
		if arg == NoNotesFlag {
			suppressed = true
			continue
		}
		if mentionsNotesRef(arg) {
			present = true
		}
		out = append(out, arg)
	}
	if suppressed || present {
		return out
	}
	return append(out, spec)
}

// mentionsNotesRef detects any refspec that already names the notes ref,
// in either direction and regardless of force prefix.
func mentionsNotesRef(arg string) bool {
	if strings.HasPrefix(arg, "-") {
		return false
	}
	return strings.Contains(strings.TrimPrefix(arg, "+"), notes.Ref)
}
