package dispatcher

import (
	"context"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
)

// Request is the native HTTP-shaped request handed to the user handler
// (spec section 4.4, "Request Translation", step 5).
type Request struct {
	Method  string
	URL     string
	Host    string
	Header  http.Header
	Body    []byte
}

// Result is the native HTTP-shaped response a handler produces.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HandlerError is a handler-level failure: either the user's code threw, or
// the handler could not be resolved at all. Type/Message/StackTrace are
// carried verbatim into the section-3 error envelope.
type HandlerError struct {
	Type       string
	Message    string
	StackTrace []string
	// Fatal marks an error that must terminate the process (spec section
	// 4.4's ShouldExit equivalent: an unrecovered guest panic).
	Fatal bool
}

func (e *HandlerError) Error() string { return e.Type + ": " + e.Message }

// ErrHandlerNotFound and ErrHandlerShapeInvalid classify handler-resolution
// failures (spec section 4.4, "Handler Resolution"). Both are
// invocation-level errors: the fetch already succeeded and a request id is
// known, so they are reported to /invocation/{id}/error, never /init/error.
var (
	ErrHandlerNotFound     = errors.New("dispatcher: handler module not found")
	ErrHandlerShapeInvalid = errors.New("dispatcher: handler is not callable as Request -> Response")
)

// Handler is anything that can serve a translated request. The concrete
// implementation (internal/childproc.Process) resolves lazily by spawning
// the guest interpreter as a child process; this interface lets the loop
// and its tests stay decoupled from that process-management concern.
type Handler interface {
	Invoke(ctx context.Context, req *Request) (*Result, error)
}

// CachedResolver resolves a Handler at most once per process lifetime,
// reusing it on every subsequent call. A failed resolution is never
// cached — spec section 4.4: "the cache stores only successful
// resolutions" — so the next invocation retries resolution from scratch.
type CachedResolver struct {
	resolve func(ctx context.Context) (Handler, error)

	mu      sync.Mutex
	handler Handler
}

// NewCachedResolver wraps a resolve function with write-once caching.
func NewCachedResolver(resolve func(ctx context.Context) (Handler, error)) *CachedResolver {
	return &CachedResolver{resolve: resolve}
}

// Resolve returns the cached handler, resolving it first if necessary.
func (r *CachedResolver) Resolve(ctx context.Context) (Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handler != nil {
		return r.handler, nil
	}
	h, err := r.resolve(ctx)
	if err != nil {
		return nil, err
	}
	r.handler = h
	return h, nil
}
