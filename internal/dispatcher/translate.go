package dispatcher

import (
	"encoding/json"
	"net/http"
	"net/textproto"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/vercel-community/rubyruntime/internal/protocol"
)

// ErrMissingForwardedProto marks an event without x-forwarded-proto as
// malformed (spec section 4.4, step 2, and section 9's open question: we
// choose to fail the invocation rather than fabricate a scheme).
var ErrMissingForwardedProto = errors.New("dispatcher: event missing x-forwarded-proto header")

// ErrMalformedEvent marks a payload that is not valid JSON at all (spec
// section 4.4, step 1).
var ErrMalformedEvent = errors.New("dispatcher: malformed invocation event")

// ParseEvent decodes the raw invocation payload into protocol.Event. It
// checks for x-forwarded-proto with gjson before paying for a full
// json.Unmarshal, since a missing header is the single most common
// malformed-event shape and gjson can answer that with one pass over the
// bytes rather than building the whole struct first.
func ParseEvent(payload []byte) (*protocol.Event, error) {
	if !gjson.ValidBytes(payload) {
		return nil, ErrMalformedEvent
	}
	proto := gjson.GetBytes(payload, "headers."+protocol.HeaderProto)
	if !proto.Exists() || proto.String() == "" {
		return nil, ErrMissingForwardedProto
	}

	var event protocol.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errors.Wrap(err, "dispatcher: failed to unmarshal invocation event")
	}
	return &event, nil
}

// TranslateRequest turns a parsed Event into the native request shape the
// handler is invoked with (spec section 4.4, "Request Translation").
func TranslateRequest(event *protocol.Event) (*Request, error) {
	proto := event.Headers[protocol.HeaderProto]
	if proto == "" {
		return nil, ErrMissingForwardedProto
	}

	body, err := protocol.DecodeBody(event.Body, event.Encoding)
	if err != nil {
		return nil, errors.Wrap(err, "dispatcher: failed to decode request body")
	}

	header := make(http.Header, len(event.Headers))
	for k, v := range event.Headers {
		header.Set(textproto.CanonicalMIMEHeaderKey(k), v)
	}

	return &Request{
		Method: event.Method,
		URL:    proto + "://" + event.Host + event.Path,
		Host:   event.Host,
		Header: header,
		Body:   body,
	}, nil
}

// TranslateResponse turns the handler's native result into the control-plane
// Response shape (spec section 4.4, "Response Translation").
func TranslateResponse(result *Result) *protocol.Response {
	body, encoding := protocol.EncodeBody(result.Body)

	headers := make(map[string]protocol.HeaderValue, len(result.Header))
	for name, values := range result.Header {
		values = lo.Filter(values, func(v string, _ int) bool { return v != "" })
		if len(values) == 0 {
			// an empty-array header is never legal per spec section 9's open
			// question: emit nothing rather than guess.
			continue
		}
		headers[name] = protocol.HeaderValue(values)
	}

	return &protocol.Response{
		StatusCode: result.StatusCode,
		Headers:    headers,
		Body:       body,
		Encoding:   encoding,
	}
}
