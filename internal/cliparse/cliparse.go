// Package cliparse splits a git argument vector into global options, the
// subcommand, and the subcommand's arguments.
//
// The parser is intentionally permissive and order-preserving: it
// recognizes just enough of git's top-level option grammar to find the
// subcommand, so the proxy can dispatch hooks and rewrite argument lists
// without emulating git's own error paths.
package cliparse

import "strings"

// Invocation is a parsed `git ...` argument vector (argv after the
// executable name).
type Invocation struct {
	// GlobalArgs are recognized top-level options, values attached
	// (e.g. -C <dir>, -c key=val, --git-dir=<path>).
	GlobalArgs []string
	// Command is the subcommand, or "" when none was found
	// (e.g. `git --version`).
	Command string
	// CommandArgs is everything after the subcommand.
	CommandArgs []string
	// SawEndOfOpts records a top-level `--` between globals and command.
	SawEndOfOpts bool
	// IsHelp is true for -h/--help anywhere or the help subcommand.
	IsHelp bool
}

// Argv reconstructs the vector: globals, optional --, command, args.
func (inv *Invocation) Argv() []string {
	out := make([]string, 0, len(inv.GlobalArgs)+len(inv.CommandArgs)+2)
	out = append(out, inv.GlobalArgs...)
	if inv.SawEndOfOpts {
		out = append(out, "--")
	}
	if inv.Command != "" {
		out = append(out, inv.Command)
	}
	out = append(out, inv.CommandArgs...)
	return out
}

// WithCommandArgs returns a copy with the subcommand arguments replaced.
func (inv *Invocation) WithCommandArgs(args []string) *Invocation {
	clone := *inv
	clone.CommandArgs = args
	return &clone
}

// RepoDirFromGlobals extracts the directory a -C global option points at,
// or "" when absent. Later -C options win, matching git.
func (inv *Invocation) RepoDirFromGlobals() string {
	dir := ""
	for i := 0; i < len(inv.GlobalArgs); i++ {
		arg := inv.GlobalArgs[i]
		switch {
		case arg == "-C" && i+1 < len(inv.GlobalArgs):
			dir = inv.GlobalArgs[i+1]
			i++
		case strings.HasPrefix(arg, "-C") && len(arg) > 2:
			dir = arg[2:]
		}
	}
	return dir
}

type optKind int

const (
	optUnknown optKind = iota
	optGlobalNoValue
	optGlobalTakesValue
	optMetaNoValue // --version, --help, --html-path and friends
)

func classify(tok string) optKind {
	switch tok {
	case "-v", "--version", "-h", "--help", "--html-path", "--man-path", "--info-path":
		return optMetaNoValue
	}
	switch tok {
	case "-p", "--paginate", "-P", "--no-pager", "--no-replace-objects",
		"--no-lazy-fetch", "--no-optional-locks", "--no-advice", "--bare",
		"--literal-pathspecs", "--glob-pathspecs", "--noglob-pathspecs",
		"--icase-pathspecs":
		return optGlobalNoValue
	}

	valueOpts := []string{
		"--exec-path", "--git-dir", "--work-tree", "--namespace",
		"--config-env", "--list-cmds", "--attr-source", "--super-prefix",
	}
	for _, opt := range valueOpts {
		if tok == opt || strings.HasPrefix(tok, opt+"=") {
			return optGlobalTakesValue
		}
	}
	// Sticky short forms: -Cpath, -cname=value.
	if tok == "-C" || strings.HasPrefix(tok, "-C") {
		return optGlobalTakesValue
	}
	if tok == "-c" || strings.HasPrefix(tok, "-c") {
		return optGlobalTakesValue
	}
	return optUnknown
}

// hasAttachedValue reports whether the token already carries its value
// (--opt=VAL, -Cpath, -cname=val).
func hasAttachedValue(tok string) bool {
	if strings.HasPrefix(tok, "--") {
		return strings.Contains(tok, "=")
	}
	if strings.HasPrefix(tok, "-C") && tok != "-C" {
		return true
	}
	if strings.HasPrefix(tok, "-c") && tok != "-c" {
		return true
	}
	return false
}

// Parse splits the arguments that follow the git executable.
func Parse(args []string) *Invocation {
	inv := &Invocation{}
	var preMeta []string

	i := 0
scan:
	for i < len(args) {
		tok := args[i]

		if tok == "--" {
			inv.SawEndOfOpts = true
			i++
			break
		}

		switch classify(tok) {
		case optGlobalNoValue:
			inv.GlobalArgs = append(inv.GlobalArgs, tok)
			i++
		case optGlobalTakesValue:
			if hasAttachedValue(tok) {
				inv.GlobalArgs = append(inv.GlobalArgs, tok)
				i++
			} else if i+1 < len(args) {
				inv.GlobalArgs = append(inv.GlobalArgs, tok, args[i+1])
				i += 2
			} else {
				// Option with no value; keep it and let git complain.
				inv.GlobalArgs = append(inv.GlobalArgs, tok)
				i++
			}
		case optMetaNoValue:
			// Meta options become command args iff no subcommand appears.
			preMeta = append(preMeta, tok)
			i++
		default:
			if strings.HasPrefix(tok, "-") {
				// Unknown top-level dash option: no command; the rest
				// flows to CommandArgs below.
				break scan
			}
			// First non-dash token is the command.
			break scan
		}
	}

	if i < len(args) {
		tok := args[i]
		if inv.SawEndOfOpts || !strings.HasPrefix(tok, "-") {
			inv.Command = tok
			i++
		}
	}

	if inv.Command != "" {
		inv.CommandArgs = append(inv.CommandArgs, args[i:]...)
	} else {
		inv.CommandArgs = append(inv.CommandArgs, preMeta...)
		inv.CommandArgs = append(inv.CommandArgs, args[i:]...)
	}

	// `git --help [<cmd>]` behaves as `git help [<cmd>]`; --help wins
	// over --version.
	preHasHelp := contains(preMeta, "--help") || contains(preMeta, "-h")
	preHasVersion := contains(preMeta, "--version") || contains(preMeta, "-v")
	if preHasHelp {
		rest := inv.CommandArgs
		if inv.Command != "" {
			rest = append([]string{inv.Command}, rest...)
		}
		inv.Command = "help"
		inv.CommandArgs = dropMeta(rest)
	} else if preHasVersion {
		inv.Command = "version"
		inv.CommandArgs = dropMeta(inv.CommandArgs)
	}

	inv.IsHelp = inv.Command == "help" ||
		contains(inv.CommandArgs, "--help") || contains(inv.CommandArgs, "-h") ||
		preHasHelp
	return inv
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dropMeta(list []string) []string {
	var out []string
	for _, v := range list {
		switch v {
		case "--help", "-h", "--version", "-v":
			continue
		}
		out = append(out, v)
	}
	return out
}
