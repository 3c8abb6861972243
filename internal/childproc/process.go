package childproc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vercel-community/rubyruntime/internal/dispatcher"
)

// Process is a dispatcher.Handler backed by the guest interpreter running
// runtime/index.rb as a child process (SPEC_FULL.md section 1). It is
// spawned lazily on the first Resolve call and reused for the lifetime of
// this process, matching spec section 4.4's "Handler Resolution".
type Process struct {
	interpreterPath string
	stubPath        string
	taskRoot        string
	handlerPath     string
	socketPath      string

	// lifeCtx bounds the child process itself, not any single invocation.
	// It must never be the per-invocation context handed to Resolve: that
	// context is canceled at the end of every step (see dispatcher.Loop),
	// and exec.CommandContext kills its process the instant its context is
	// canceled, which would tear down the cached child after invocation 1.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu   sync.Mutex
	cmd  *exec.Cmd
	conn net.Conn
}

// Config names everything Process needs to spawn the child once.
type Config struct {
	InterpreterPath string // /var/task/bin/ruby
	StubPath        string // /var/task/runtime/index.rb
	TaskRoot        string // LAMBDA_TASK_ROOT, usually /var/task
	HandlerPath     string // resolved from _HANDLER
}

// New constructs a Process. It does not spawn anything yet.
func New(cfg Config) *Process {
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	return &Process{
		interpreterPath: cfg.InterpreterPath,
		stubPath:        cfg.StubPath,
		taskRoot:        cfg.TaskRoot,
		handlerPath:     cfg.HandlerPath,
		socketPath:      filepath.Join("/tmp", fmt.Sprintf("rubyruntime-%d.sock", os.Getpid())),
		lifeCtx:         lifeCtx,
		lifeCancel:      lifeCancel,
	}
}

// Resolve spawns the child and performs the ready handshake. It is the
// function handed to dispatcher.NewCachedResolver, so a failed spawn is
// never cached (spec section 4.4).
func (p *Process) Resolve(ctx context.Context) (dispatcher.Handler, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return p, nil
	}

	if _, err := os.Stat(p.interpreterPath); err != nil {
		return nil, errors.Wrapf(dispatcher.ErrHandlerNotFound, "interpreter missing at %s", p.interpreterPath)
	}
	if _, err := os.Stat(p.handlerPath); err != nil {
		return nil, errors.Wrapf(dispatcher.ErrHandlerNotFound, "handler module missing at %s", p.handlerPath)
	}

	_ = os.Remove(p.socketPath)
	// p.lifeCtx, not ctx: ctx is this one invocation's deadline context and
	// is canceled by the caller when the invocation ends, which must not
	// reach into the child's lifetime.
	cmd := exec.CommandContext(p.lifeCtx, p.interpreterPath, p.stubPath, p.socketPath, p.handlerPath)
	cmd.Dir = p.taskRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(dispatcher.ErrHandlerShapeInvalid, "failed to start guest interpreter: %v", err)
	}

	conn, err := dialWithRetry(p.socketPath, 50, func(n int) { time.Sleep(5 * time.Millisecond) })
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, errors.Wrapf(dispatcher.ErrHandlerShapeInvalid, "guest interpreter never opened its socket: %v", err)
	}

	// the handshake frame reports whether the handler module loaded and was
	// shaped as Request -> Response; a handshake failure is a resolution
	// failure, not a panic, so it must not be cached either.
	frame, err := readFrame(conn)
	if err != nil {
		_ = conn.Close()
		_ = cmd.Process.Kill()
		return nil, errors.Wrap(err, "childproc: handshake failed")
	}
	if frame.Err != nil {
		_ = conn.Close()
		_ = cmd.Process.Kill()
		switch frame.Err.Kind {
		case "not_found":
			return nil, errors.Wrapf(dispatcher.ErrHandlerNotFound, "%s", frame.Err.Message)
		default:
			return nil, errors.Wrapf(dispatcher.ErrHandlerShapeInvalid, "%s", frame.Err.Message)
		}
	}

	p.cmd = cmd
	p.conn = conn
	return p, nil
}

// Invoke sends one request frame and waits for the matching response frame.
// Exactly one invocation is ever in flight (spec section 5), so the
// connection needs no multiplexing.
func (p *Process) Invoke(ctx context.Context, req *dispatcher.Request) (*dispatcher.Result, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return nil, errors.New("childproc: handler not resolved")
	}

	if err := writeFrame(conn, &ipcFrame{Request: &ipcRequest{
		Method: req.Method,
		URL:    req.URL,
		Host:   req.Host,
		Header: map[string][]string(req.Header),
		Body:   req.Body,
	}}); err != nil {
		return nil, errors.Wrap(err, "childproc: failed to send request frame")
	}

	frame, err := readFrame(conn)
	if err != nil {
		return nil, errors.Wrap(err, "childproc: failed to read response frame")
	}
	if frame.Err != nil {
		return nil, &dispatcher.HandlerError{
			Type:       frame.Err.Type,
			Message:    frame.Err.Message,
			StackTrace: frame.Err.StackTrace,
			Fatal:      frame.Err.Kind == "panic",
		}
	}
	if frame.Response == nil {
		return nil, errors.New("childproc: empty response frame")
	}

	header := make(http.Header, len(frame.Response.Header))
	for k, v := range frame.Response.Header {
		header[k] = v
	}
	return &dispatcher.Result{
		StatusCode: frame.Response.StatusCode,
		Header:     header,
		Body:       frame.Response.Body,
	}, nil
}

// Close terminates the child process, if any.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lifeCancel()
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return os.Remove(p.socketPath)
}
