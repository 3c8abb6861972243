package acquire

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"runtime"

	"github.com/carlmjohnson/requests"
	"github.com/cockroachdb/errors"
)

// Arch names the two architectures the interpreter is published for
// (spec section 4.1: "target architecture ... aarch64 vs x64").
type Arch string

const (
	ArchX64     Arch = "x64"
	ArchAarch64 Arch = "aarch64"
)

// HostArch maps runtime.GOARCH to the archive-naming convention used by the
// interpreter's release URLs.
func HostArch() Arch {
	if runtime.GOARCH == "arm64" {
		return ArchAarch64
	}
	return ArchX64
}

// Downloader fetches a pinned interpreter version's release archive.
type Downloader struct {
	// BaseURL is the release server, e.g. "https://interpreter-releases.example.com".
	BaseURL string
	http    *http.Client
}

// NewDownloader builds a Downloader. A nil client uses http.DefaultClient.
func NewDownloader(baseURL string, client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{BaseURL: baseURL, http: client}
}

// Fetch downloads the archive for version+arch and returns its raw bytes.
// Non-success responses are wrapped as ErrDownloadFailure (spec section 4.1).
func (d *Downloader) Fetch(ctx context.Context, version string, arch Arch) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/ruby-%s-%s.zip", d.BaseURL, version, version, arch)

	var buf bytes.Buffer
	err := requests.URL(url).
		Client(d.http).
		Header("User-Agent", "rubyruntime-acquire/"+runtime.Version()).
		CheckStatus(http.StatusOK).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrDownloadFailure, "fetching %s: %v", url, err)
	}
	return buf.Bytes(), nil
}
