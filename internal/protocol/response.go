package protocol

// Response is posted back to the control plane once a handler has produced
// a result. HeaderValues holds either a single string or an ordered slice of
// strings so that repeated headers (e.g. Set-Cookie) round-trip in order.
type Response struct {
	StatusCode int                    `json:"statusCode"`
	Headers    map[string]HeaderValue `json:"headers,omitempty"`
	Body       string                 `json:"body,omitempty"`
	Encoding   string                 `json:"encoding,omitempty"`
}

// HeaderValue marshals as a bare string when it carries one value, and as a
// JSON array when it carries more than one. A header with no values is
// omitted entirely rather than emitted as an empty array (spec section 9,
// open question on empty-array legality: we choose to never emit one).
type HeaderValue []string
