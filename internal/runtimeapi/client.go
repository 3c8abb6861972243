// Package runtimeapi is the control-plane client: it speaks the four
// endpoints under /2018-06-01/runtime/ described in spec section 4.4.
// It is a generalization of shogo82148/ridgenative's runtimeAPIClient,
// stripped of ridgenative's API-Gateway-proxy-shaped request/response types
// so it can carry this spec's own wire format (internal/protocol) instead.
package runtimeapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"runtime"

	"github.com/carlmjohnson/requests"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// HeaderAWSRequestID carries the invocation's opaque request id.
	HeaderAWSRequestID = "Lambda-Runtime-Aws-Request-Id"
	// HeaderDeadlineMS carries the invocation's deadline as epoch milliseconds.
	HeaderDeadlineMS = "Lambda-Runtime-Deadline-Ms"
	// HeaderTraceID carries the X-Ray trace id to propagate for the invocation.
	HeaderTraceID = "Lambda-Runtime-Trace-Id"
	// HeaderFunctionErrorType is set on error POSTs to name the failure's type.
	HeaderFunctionErrorType = "Lambda-Runtime-Function-Error-Type"

	contentTypeJSON = "application/json"

	apiVersion = "2018-06-01"
)

// ErrUnexpectedStatus names a control-plane status outside its documented
// contract (spec section 4.4's table of success statuses). Client's methods
// do not wrap it: an unexpected status is reported as the error from the
// requests library's status check, wrapped with the endpoint being called.
var ErrUnexpectedStatus = errors.New("runtimeapi: unexpected status code")

// Client talks to the control plane at AWS_LAMBDA_RUNTIME_API.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// New builds a Client for the given authority (host:port, no scheme).
func New(authority string) *Client {
	return &Client{
		baseURL:   "http://" + authority + "/" + apiVersion + "/runtime/",
		userAgent: "rubyruntime/" + runtime.Version(),
		http: &http.Client{
			// long-poll connections to the control plane never time out on
			// their own; the platform enforces maxDuration, not us.
			Timeout:   0,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Invocation is a single fetched event, not yet decoded into protocol.Event.
type Invocation struct {
	ID      string
	Payload []byte
	Headers http.Header
}

// Next performs the long-poll GET /invocation/next.
func (c *Client) Next(ctx context.Context) (*Invocation, error) {
	var buf bytes.Buffer
	var hdr http.Header
	err := requests.URL(c.baseURL + "invocation/next").
		Client(c.http).
		Header("User-Agent", c.userAgent).
		CheckStatus(http.StatusOK).
		ToHeaders(&hdr).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "runtimeapi: failed to fetch next invocation")
	}
	return &Invocation{
		ID:      hdr.Get(HeaderAWSRequestID),
		Payload: buf.Bytes(),
		Headers: hdr,
	}, nil
}

// PostResponse posts the handler's successful result for an invocation.
// An invocation is not complete until Next is called again.
func (c *Client) PostResponse(ctx context.Context, id string, body []byte) error {
	return c.post(ctx, "invocation/"+id+"/response", body, contentTypeJSON, "")
}

// PostInvocationError posts a failure that occurred after the request id was
// known (spec section 7, "Invocation failures").
func (c *Client) PostInvocationError(ctx context.Context, id string, errorType string, body []byte) error {
	return c.post(ctx, "invocation/"+id+"/error", body, contentTypeJSON, errorType)
}

// PostInitError posts a failure that occurred before any request id was
// known (spec section 7, "Initialization failures").
func (c *Client) PostInitError(ctx context.Context, errorType string, body []byte) error {
	return c.post(ctx, "init/error", body, contentTypeJSON, errorType)
}

func (c *Client) post(ctx context.Context, path string, body []byte, contentType, errorType string) error {
	builder := requests.URL(c.baseURL+path).
		Client(c.http).
		Method(http.MethodPost).
		Header("User-Agent", c.userAgent).
		ContentType(contentType).
		BodyBytes(body).
		CheckStatus(http.StatusAccepted).
		ToWriter(io.Discard)
	if errorType != "" {
		builder = builder.Header(HeaderFunctionErrorType, errorType)
	}
	if err := builder.Fetch(ctx); err != nil {
		return errors.Wrapf(err, "runtimeapi: failed to POST %s", path)
	}
	return nil
}
