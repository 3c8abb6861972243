// Package childproc implements the out-of-process Handler described in
// SPEC_FULL.md section 1: the guest interpreter runs runtime/index.rb
// as a child process and exchanges length-prefixed CBOR frames with this
// package over a Unix domain socket. This is an internal protocol with no
// external compatibility requirement, unlike internal/protocol's JSON wire
// format, so a compact binary codec is appropriate here.
package childproc

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"
)

// ipcRequest is sent to the child for each invocation.
type ipcRequest struct {
	Method string              `cbor:"method"`
	URL    string              `cbor:"url"`
	Host   string              `cbor:"host"`
	Header map[string][]string `cbor:"header"`
	Body   []byte              `cbor:"body"`
}

// ipcResponse is the child's reply on success.
type ipcResponse struct {
	StatusCode int                 `cbor:"status_code"`
	Header     map[string][]string `cbor:"header"`
	Body       []byte              `cbor:"body"`
}

// ipcError is the child's reply when the user's handler threw, or the
// handler module could not be loaded / was the wrong shape.
type ipcError struct {
	Kind       string   `cbor:"kind"` // "not_found" | "shape_invalid" | "handler_error" | "panic"
	Type       string   `cbor:"type"`
	Message    string   `cbor:"message"`
	StackTrace []string `cbor:"stack_trace"`
}

// ipcFrame is the single message type written to the wire; exactly one of
// Request/Response/Err is set.
type ipcFrame struct {
	Request  *ipcRequest  `cbor:"request,omitempty"`
	Response *ipcResponse `cbor:"response,omitempty"`
	Err      *ipcError    `cbor:"err,omitempty"`
}

// writeFrame writes a length-prefixed CBOR-encoded frame: a 4-byte
// big-endian length followed by that many bytes of CBOR payload.
func writeFrame(w io.Writer, frame *ipcFrame) error {
	data, err := cbor.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "childproc: failed to encode ipc frame")
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "childproc: failed to write frame length")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "childproc: failed to write frame body")
	}
	return nil
}

// readFrame reads one length-prefixed CBOR frame.
func readFrame(r io.Reader) (*ipcFrame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "childproc: failed to read frame length")
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.Wrap(err, "childproc: failed to read frame body")
	}
	var frame ipcFrame
	if err := cbor.Unmarshal(data, &frame); err != nil {
		return nil, errors.Wrap(err, "childproc: failed to decode ipc frame")
	}
	return &frame, nil
}

// dialWithRetry connects to the child's Unix socket, retrying briefly since
// the child may not have bound its listener yet (cold start race).
func dialWithRetry(path string, attempts int, backoff func(n int)) (net.Conn, error) {
	var lastErr error
	for n := 0; n < attempts; n++ {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		backoff(n)
	}
	return nil, errors.Wrapf(lastErr, "childproc: failed to connect to %s after %d attempts", path, attempts)
}
