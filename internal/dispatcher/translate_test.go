package dispatcher

import (
	"encoding/base64"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vercel-community/rubyruntime/internal/protocol"
)

func TestParseEvent_missingForwardedProto(t *testing.T) {
	_, err := ParseEvent([]byte(`{"method":"GET","path":"/ping","host":"h","headers":{}}`))
	require.ErrorIs(t, err, ErrMissingForwardedProto)
}

func TestParseEvent_malformed(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestTranslateRequest_simpleGET(t *testing.T) {
	event := &protocol.Event{
		Method: "GET",
		Path:   "/ping",
		Host:   "h",
		Headers: map[string]string{
			protocol.HeaderProto: "https",
		},
	}
	req, err := TranslateRequest(event)
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "https://h/ping", req.URL)
	assert.Empty(t, req.Body)
}

func TestTranslateRequest_binaryBody(t *testing.T) {
	raw := []byte{0x00, 0xFF, 0x10}
	event := &protocol.Event{
		Method:   "POST",
		Path:     "/echo",
		Host:     "h",
		Headers:  map[string]string{protocol.HeaderProto: "https"},
		Body:     base64.StdEncoding.EncodeToString(raw),
		Encoding: "base64",
	}
	req, err := TranslateRequest(event)
	require.NoError(t, err)
	if diff := cmp.Diff(raw, req.Body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateResponse_emptyBody(t *testing.T) {
	resp := TranslateResponse(&Result{StatusCode: 204})
	assert.Empty(t, resp.Body)
	assert.Empty(t, resp.Encoding)
	assert.Equal(t, 204, resp.StatusCode)
}

func TestTranslateResponse_duplicateHeaders(t *testing.T) {
	header := make(map[string][]string)
	header["Set-Cookie"] = []string{"a=1", "b=2"}
	resp := TranslateResponse(&Result{StatusCode: 200, Header: header})
	require.Contains(t, resp.Headers, "Set-Cookie")
	assert.Equal(t, protocol.HeaderValue{"a=1", "b=2"}, resp.Headers["Set-Cookie"])

	data, err := jsonMarshalForTest(resp.Headers["Set-Cookie"])
	require.NoError(t, err)
	assert.Equal(t, `["a=1","b=2"]`, string(data))
}

func jsonMarshalForTest(h protocol.HeaderValue) ([]byte, error) {
	return h.MarshalJSON()
}
