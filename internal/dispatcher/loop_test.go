package dispatcher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vercel-community/rubyruntime/internal/protocol"
	"github.com/vercel-community/rubyruntime/internal/runtimeapi"
)

// fakeControlPlane serves a fixed queue of invocations and records every
// post it receives, so loop scenarios can be asserted without an HTTP
// server. Mirrors how runtime_api_client_test.go drives handleInvoke, but
// at the Loop's ControlPlane seam instead of the wire.
type fakeControlPlane struct {
	queue []*runtimeapi.Invocation
	pos   int

	responses   []postedResponse
	invocErrors []postedError
	initErrors  []postedError
}

type postedResponse struct {
	id   string
	body []byte
}

type postedError struct {
	id        string
	errorType string
	body      []byte
}

func (f *fakeControlPlane) Next(ctx context.Context) (*runtimeapi.Invocation, error) {
	if f.pos >= len(f.queue) {
		return nil, io.EOF
	}
	inv := f.queue[f.pos]
	f.pos++
	return inv, nil
}

func (f *fakeControlPlane) PostResponse(ctx context.Context, id string, body []byte) error {
	f.responses = append(f.responses, postedResponse{id, body})
	return nil
}

func (f *fakeControlPlane) PostInvocationError(ctx context.Context, id, errorType string, body []byte) error {
	f.invocErrors = append(f.invocErrors, postedError{id, errorType, body})
	return nil
}

func (f *fakeControlPlane) PostInitError(ctx context.Context, errorType string, body []byte) error {
	f.initErrors = append(f.initErrors, postedError{"", errorType, body})
	return nil
}

func newInvocation(id string, event protocol.Event) *runtimeapi.Invocation {
	payload, _ := json.Marshal(event)
	return &runtimeapi.Invocation{
		ID:      id,
		Payload: payload,
		Headers: http.Header{runtimeapi.HeaderDeadlineMS: []string{"99999999999999"}},
	}
}

type handlerFunc func(ctx context.Context, req *Request) (*Result, error)

func (f handlerFunc) Invoke(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

func newLoopWithHandler(t *testing.T, cp *fakeControlPlane, h Handler) *Loop {
	t.Helper()
	resolver := NewCachedResolver(func(ctx context.Context) (Handler, error) { return h, nil })
	return NewLoop(cp, resolver, nil, nil, nil)
}

// TestLoop_simpleGET is scenario 1 from spec section 8.
func TestLoop_simpleGET(t *testing.T) {
	cp := &fakeControlPlane{queue: []*runtimeapi.Invocation{
		newInvocation("req-1", protocol.Event{
			Method:  "GET",
			Path:    "/ping",
			Host:    "h",
			Headers: map[string]string{"x-forwarded-proto": "https"},
		}),
	}}
	loop := newLoopWithHandler(t, cp, handlerFunc(func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": []string{"text/plain"}},
			Body:       []byte("pong"),
		}, nil
	}))

	err := loop.step(context.Background())
	require.NoError(t, err)
	require.Len(t, cp.responses, 1)

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(cp.responses[0].body, &resp))
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "base64", resp.Encoding)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("pong")), resp.Body)
}

// TestLoop_duplicateHeaders is scenario 3 from spec section 8.
func TestLoop_duplicateHeaders(t *testing.T) {
	cp := &fakeControlPlane{queue: []*runtimeapi.Invocation{
		newInvocation("req-1", protocol.Event{
			Method:  "GET",
			Path:    "/",
			Host:    "h",
			Headers: map[string]string{"x-forwarded-proto": "https"},
		}),
	}}
	loop := newLoopWithHandler(t, cp, handlerFunc(func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{
			StatusCode: 200,
			Header:     http.Header{"Set-Cookie": []string{"a=1", "b=2"}},
		}, nil
	}))

	require.NoError(t, loop.step(context.Background()))
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(cp.responses[0].body, &resp))
	assert.Equal(t, protocol.HeaderValue{"a=1", "b=2"}, resp.Headers["Set-Cookie"])
}

// TestLoop_handlerThrows is scenario 4 from spec section 8.
func TestLoop_handlerThrows(t *testing.T) {
	cp := &fakeControlPlane{queue: []*runtimeapi.Invocation{
		newInvocation("req-1", protocol.Event{
			Method:  "GET",
			Path:    "/",
			Host:    "h",
			Headers: map[string]string{"x-forwarded-proto": "https"},
		}),
	}}
	loop := newLoopWithHandler(t, cp, handlerFunc(func(ctx context.Context, req *Request) (*Result, error) {
		return nil, &HandlerError{Type: "ValidationError", Message: "bad input"}
	}))

	require.NoError(t, loop.step(context.Background()))
	require.Empty(t, cp.responses)
	require.Len(t, cp.invocErrors, 1)
	assert.Equal(t, "req-1", cp.invocErrors[0].id)

	var envelope protocol.ErrorEnvelope
	require.NoError(t, json.Unmarshal(cp.invocErrors[0].body, &envelope))
	assert.Equal(t, "ValidationError", envelope.ErrorType)
	assert.Equal(t, "bad input", envelope.ErrorMessage)
}

// TestLoop_handlerNotFound is scenario 5 from spec section 8: resolution
// failures are never cached, so a second invocation retries resolution.
func TestLoop_handlerNotFound(t *testing.T) {
	cp := &fakeControlPlane{queue: []*runtimeapi.Invocation{
		newInvocation("req-1", protocol.Event{Method: "GET", Path: "/", Host: "h", Headers: map[string]string{"x-forwarded-proto": "https"}}),
		newInvocation("req-2", protocol.Event{Method: "GET", Path: "/", Host: "h", Headers: map[string]string{"x-forwarded-proto": "https"}}),
	}}

	attempts := 0
	resolver := NewCachedResolver(func(ctx context.Context) (Handler, error) {
		attempts++
		return nil, ErrHandlerNotFound
	})
	loop := NewLoop(cp, resolver, nil, nil, nil)

	require.NoError(t, loop.step(context.Background()))
	require.NoError(t, loop.step(context.Background()))
	assert.Equal(t, 2, attempts, "a failed resolution must not be cached")
	assert.Len(t, cp.invocErrors, 2)
}

// TestLoop_panicIsFatal verifies a recovered guest panic is reported and
// marked fatal, matching section 4.4's ShouldExit behavior.
func TestLoop_panicIsFatal(t *testing.T) {
	cp := &fakeControlPlane{queue: []*runtimeapi.Invocation{
		newInvocation("req-1", protocol.Event{Method: "GET", Path: "/", Host: "h", Headers: map[string]string{"x-forwarded-proto": "https"}}),
	}}
	loop := newLoopWithHandler(t, cp, handlerFunc(func(ctx context.Context, req *Request) (*Result, error) {
		panic("kaboom")
	}))

	err := loop.step(context.Background())
	require.Error(t, err)
	require.Len(t, cp.invocErrors, 1)

	var envelope protocol.ErrorEnvelope
	require.NoError(t, json.Unmarshal(cp.invocErrors[0].body, &envelope))
	assert.NotEmpty(t, envelope.StackTrace)
}

// TestLoop_controlPlaneDownAtStartup is scenario 6 from spec section 8.
func TestLoop_controlPlaneDownAtStartup(t *testing.T) {
	cp := &fakeControlPlane{} // Next() returns io.EOF immediately, simulating failure
	loop := newLoopWithHandler(t, cp, handlerFunc(func(ctx context.Context, req *Request) (*Result, error) {
		t.Fatal("handler must not be called when fetch fails")
		return nil, nil
	}))

	require.NoError(t, loop.step(context.Background()))
	assert.Len(t, cp.initErrors, 1)
	assert.Empty(t, cp.responses)
}
