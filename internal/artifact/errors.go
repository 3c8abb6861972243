// Package artifact implements the Artifact Builder (spec section 4.2): it
// assembles the file set a build uploads as a deployable function package,
// merging user sources with the runtime's fixed files (bootstrap shim,
// dispatcher stub, interpreter binary).
package artifact

import "github.com/cockroachdb/errors"

// ErrDevModeUnsupported is the immediate failure section 4.2 names for
// meta.isDev builds.
var ErrDevModeUnsupported = errors.New("artifact: dev mode is not supported")
