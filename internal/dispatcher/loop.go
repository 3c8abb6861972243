package dispatcher

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vercel-community/rubyruntime/internal/protocol"
	"github.com/vercel-community/rubyruntime/internal/runtimeapi"
)

// initErrorBackoff is the pause between retries when even /init/error
// fails to post (spec section 4.4's state machine: "back off briefly
// (~100 ms) and retry the loop").
const initErrorBackoff = 100 * time.Millisecond

// ControlPlane is the subset of runtimeapi.Client the loop depends on, so
// tests can substitute a fake without spinning up httptest.
type ControlPlane interface {
	Next(ctx context.Context) (*runtimeapi.Invocation, error)
	PostResponse(ctx context.Context, id string, body []byte) error
	PostInvocationError(ctx context.Context, id, errorType string, body []byte) error
	PostInitError(ctx context.Context, errorType string, body []byte) error
}

// Loop is the event loop described in spec section 4.4: fetch, translate,
// invoke, post, repeat. Exactly one invocation is in flight at a time.
type Loop struct {
	client     ControlPlane
	resolver   *CachedResolver
	classifier *StatusClassifier
	tracer     trace.Tracer
	log        *zap.Logger
}

// NewLoop builds a Loop. classifier and tracer may be nil.
func NewLoop(client ControlPlane, resolver *CachedResolver, classifier *StatusClassifier, tracer trace.Tracer, log *zap.Logger) *Loop {
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("dispatcher")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{client: client, resolver: resolver, classifier: classifier, tracer: tracer, log: log}
}

// Run processes invocations forever. It returns only on a fatal,
// unrecoverable condition (spec section 4.4's "no terminal state during
// steady operation" plus section 7's two process-termination conditions).
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := l.step(ctx); err != nil {
			return err
		}
	}
}

// step runs exactly one Idle -> ... -> Idle cycle of the state machine.
func (l *Loop) step(ctx context.Context) error {
	inv, err := l.client.Next(ctx)
	if err != nil {
		return l.reportInitError(ctx, err)
	}

	traceID := inv.Headers.Get(runtimeapi.HeaderTraceID)
	restoreTrace := setTraceEnv(traceID)
	defer restoreTrace()

	ctx, span := l.tracer.Start(ctx, "invoke")
	span.SetAttributes(attribute.String("faas.invocation_id", inv.ID))
	defer span.End()

	ctx, cancel := withDeadline(ctx, inv.Headers.Get(runtimeapi.HeaderDeadlineMS))
	defer cancel()

	result, handlerErr := l.handle(ctx, inv)
	if handlerErr != nil {
		span.SetAttributes(attribute.String("faas.error.type", handlerErr.Type))
		return l.reportInvocationError(ctx, inv.ID, handlerErr)
	}

	response := TranslateResponse(result)
	if l.classifier.IsPlatformError(result.StatusCode) {
		l.log.Warn("handler returned a status code in the configured error range",
			zap.String("request_id", inv.ID), zap.Int("status_code", result.StatusCode))
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return l.reportInvocationError(ctx, inv.ID, &HandlerError{Type: "MarshalError", Message: err.Error()})
	}
	if err := l.client.PostResponse(ctx, inv.ID, payload); err != nil {
		// spec section 7: "Response-post failures: log loudly and continue."
		l.log.Error("failed to post invocation response; the invocation is lost", zap.String("request_id", inv.ID), zap.Error(err))
		return nil
	}

	l.log.Info("invocation handled", zap.String("request_id", inv.ID), zap.Int("status_code", result.StatusCode))
	return nil
}

// handle runs Translating and Handling, recovering a guest panic into a
// HandlerError the same way error.go's lambdaPanicResponse does.
func (l *Loop) handle(ctx context.Context, inv *runtimeapi.Invocation) (result *Result, herr *HandlerError) {
	defer func() {
		if v := recover(); v != nil {
			result = nil
			herr = panicToHandlerError(v)
		}
	}()

	event, err := ParseEvent(inv.Payload)
	if err != nil {
		return nil, &HandlerError{Type: errorType(err), Message: err.Error()}
	}

	req, err := TranslateRequest(event)
	if err != nil {
		return nil, &HandlerError{Type: errorType(err), Message: err.Error()}
	}

	handler, err := l.resolver.Resolve(ctx)
	if err != nil {
		return nil, &HandlerError{Type: errorType(err), Message: err.Error()}
	}

	res, err := handler.Invoke(ctx, req)
	if err != nil {
		var he *HandlerError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, &HandlerError{Type: errorType(err), Message: err.Error()}
	}
	return res, nil
}

func (l *Loop) reportInvocationError(ctx context.Context, id string, herr *HandlerError) error {
	envelope := protocol.ErrorEnvelope{
		ErrorType:    herr.Type,
		ErrorMessage: herr.Message,
		StackTrace:   herr.StackTrace,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "dispatcher: failed to marshal invocation error envelope")
	}
	if err := l.client.PostInvocationError(ctx, id, herr.Type, body); err != nil {
		return errors.Wrap(err, "dispatcher: failed to post invocation error")
	}
	if herr.Fatal {
		return errors.Newf("dispatcher: handler invocation %s caused an unrecoverable failure, process must exit", id)
	}
	return nil
}

func (l *Loop) reportInitError(ctx context.Context, cause error) error {
	envelope := protocol.ErrorEnvelope{
		ErrorType:    errorType(cause),
		ErrorMessage: cause.Error(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "dispatcher: failed to marshal init error envelope")
	}
	if err := l.client.PostInitError(ctx, envelope.ErrorType, body); err != nil {
		l.log.Error("failed to post init error, backing off and retrying", zap.Error(err))
		time.Sleep(initErrorBackoff)
	}
	return nil
}

// setTraceEnv mirrors shogo82148/ridgenative's handling of
// _X_AMZN_TRACE_ID: set for the duration of the invocation, cleared when
// the control plane sent no trace id (spec section 4.4).
func setTraceEnv(traceID string) (restore func()) {
	if traceID == "" {
		os.Unsetenv("_X_AMZN_TRACE_ID")
		return func() {}
	}
	previous, had := os.LookupEnv("_X_AMZN_TRACE_ID")
	os.Setenv("_X_AMZN_TRACE_ID", traceID)
	return func() {
		if had {
			os.Setenv("_X_AMZN_TRACE_ID", previous)
		} else {
			os.Unsetenv("_X_AMZN_TRACE_ID")
		}
	}
}

func withDeadline(ctx context.Context, deadlineMS string) (context.Context, context.CancelFunc) {
	ms, err := strconv.ParseInt(deadlineMS, 10, 64)
	if err != nil {
		// no usable deadline: never apply a shorter timeout of our own
		// (spec section 5), just hand back a cancelable context.
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, time.UnixMilli(ms))
}

func errorType(err error) string {
	var herr *HandlerError
	if errors.As(err, &herr) {
		return herr.Type
	}
	return "Error"
}
