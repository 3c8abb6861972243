package acquire

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// interpreterName is the leaf filename the extracted executable entry must
// match, per spec section 4.1 step 3 ("locate the single entry whose leaf
// name matches the interpreter executable").
const interpreterName = "ruby"

// Extract opens data as a zip archive, finds the interpreter executable
// entry, and writes it to <workDir>/bin/ruby with mode 0755. If more than
// one candidate entry exists, the one with the deepest path prefix wins —
// the archive convention is one top-level wrapper folder, and the real
// binary lives inside it alongside decoys or symlinked stubs.
func Extract(data []byte, workDir string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrapf(ErrExtractFailure, "not a valid zip archive: %v", err)
	}

	var best *zip.File
	bestDepth := -1
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if path.Base(f.Name) != interpreterName {
			continue
		}
		depth := strings.Count(f.Name, "/")
		if depth > bestDepth {
			best = f
			bestDepth = depth
		}
	}
	if best == nil {
		return "", errors.Wrapf(ErrExtractFailure, "no %q entry found in archive", interpreterName)
	}

	rc, err := best.Open()
	if err != nil {
		return "", errors.Wrapf(ErrExtractFailure, "opening archive entry %s: %v", best.Name, err)
	}
	defer rc.Close()

	binDir := filepath.Join(workDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", errors.Wrap(err, "acquire: failed to create bin directory")
	}
	destPath := filepath.Join(binDir, interpreterName)

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return "", errors.Wrap(err, "acquire: failed to create interpreter binary file")
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return "", errors.Wrapf(ErrExtractFailure, "writing extracted binary: %v", err)
	}
	if err := out.Chmod(0o755); err != nil {
		return "", errors.Wrap(err, "acquire: failed to chmod interpreter binary")
	}
	return destPath, nil
}
