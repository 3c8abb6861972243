package artifact

import "io/fs"

// File is one entry in a deployable package: either a path to a file on the
// build machine, or inline content already in memory (used for the runtime's
// own embedded files).
type File struct {
	SourcePath string
	Inline     []byte
	Mode       fs.FileMode
}

// Files maps in-package path to its source.
type Files map[string]File

// ReservedPaths are the fixed runtime paths section 4.2 reserves: user files
// never win a collision against these, regardless of merge order.
var ReservedPaths = []string{
	"bootstrap",
	"runtime/index.rb",
	"bin/ruby",
}

// merge unions user files with runtime files. User files take precedence on
// any collision, except for the reserved runtime paths, which always win
// (spec section 4.2: "the core reserves and MUST win").
func merge(user, runtimeFiles Files) Files {
	reserved := make(map[string]bool, len(ReservedPaths))
	for _, p := range ReservedPaths {
		reserved[p] = true
	}

	out := make(Files, len(user)+len(runtimeFiles))
	for path, f := range user {
		if reserved[path] {
			continue
		}
		out[path] = f
	}
	for path, f := range runtimeFiles {
		out[path] = f
	}
	return out
}
