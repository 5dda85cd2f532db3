package aviron

import "strings"

// translatePath rewrites the separator characters of a local path to the
// flavor the remote daemon expects, per spec.md §4.1. The caller's string
// is never mutated; a new string is returned. SeparatorJVM/SeparatorLocal
// return the path unchanged, matching "whatever this process's OS uses"
// since local already is that flavor.
func translatePath(path string, sep FileSeparator) string {
	switch sep {
	case SeparatorUnix:
		return strings.ReplaceAll(path, `\`, "/")
	case SeparatorWindows:
		return strings.ReplaceAll(path, "/", `\`)
	default:
		return path
	}
}
