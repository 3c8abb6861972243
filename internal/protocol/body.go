package protocol

import (
	"encoding/base64"

	"github.com/cockroachdb/errors"
)

// ErrUnsupportedEncoding is returned when an Event names a body encoding
// other than base64. Spec section 9 leaves other encodings as an open
// question; until the control plane's behavior is confirmed we fail the
// invocation rather than guess.
var ErrUnsupportedEncoding = errors.New("protocol: unsupported encoding")

// DecodeBody returns the raw bytes of an event body given its encoding. An
// empty encoding defaults to base64, per spec section 3.
func DecodeBody(body, encoding string) ([]byte, error) {
	if body == "" {
		return nil, nil
	}
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if encoding != DefaultEncoding {
		return nil, errors.Wrapf(ErrUnsupportedEncoding, "encoding %q", encoding)
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, errors.Wrap(err, "protocol: failed to decode base64 body")
	}
	return decoded, nil
}

// EncodeBody returns the Response body/encoding pair for raw bytes. A
// zero-length body is emitted as an empty string with no encoding field, per
// spec section 3's empty-body invariant — never `"base64"` with an empty
// string.
func EncodeBody(data []byte) (body, encoding string) {
	if len(data) == 0 {
		return "", ""
	}
	return base64.StdEncoding.EncodeToString(data), DefaultEncoding
}
