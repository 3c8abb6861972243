package protocol

import "encoding/json"

// MarshalJSON emits a bare string for a single value and a JSON array for
// more than one, matching the control plane's documented shape for
// multi-value headers such as Set-Cookie.
func (h HeaderValue) MarshalJSON() ([]byte, error) {
	if len(h) == 1 {
		return json.Marshal(h[0])
	}
	return json.Marshal([]string(h))
}

// UnmarshalJSON accepts either shape, so the same type can be used to decode
// events we construct ourselves in tests.
func (h *HeaderValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*h = HeaderValue{single}
		return nil
	}
	var multi []string
	if err := json.Unmarshal(data, &multi); err != nil {
		return err
	}
	*h = HeaderValue(multi)
	return nil
}
