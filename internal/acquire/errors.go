// Package acquire implements Interpreter Acquisition (spec section 4.1):
// fetching the guest-language interpreter binary for the build machine's
// architecture, extracting it from its release archive, and caching the
// result so repeat builds skip the download.
package acquire

import "github.com/cockroachdb/errors"

// DownloadFailure and ExtractFailure are the two named failures section
// 4.1's contract calls out by name.
var (
	ErrDownloadFailure = errors.New("acquire: download failed")
	ErrExtractFailure  = errors.New("acquire: archive extraction failed")
)
