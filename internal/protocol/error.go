package protocol

// ErrorEnvelope is posted to /init/error or /invocation/{id}/error. It
// preserves the failing error's native type name, message, and stack frames
// verbatim — never swallowed, never rewritten (spec section 7).
type ErrorEnvelope struct {
	ErrorType    string   `json:"errorType"`
	ErrorMessage string   `json:"errorMessage"`
	StackTrace   []string `json:"stackTrace,omitempty"`
}
