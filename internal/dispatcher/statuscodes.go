package dispatcher

import (
	intervals "github.com/MawKKe/integer-interval-expressions-go"

	"github.com/cockroachdb/errors"
)

// rangeMatcher is satisfied by whatever intervals.ParseExpression returns,
// pointer or value, so this package never has to assume which.
type rangeMatcher interface {
	Matches(code int) bool
}

// StatusClassifier optionally flags response status codes that an operator
// considers platform-visible errors (e.g. "500-599"), using the same range
// syntax advdv-bhttp validates AWS_LWA_ERROR_STATUS_CODES against. This is
// additive observability only: it never changes which control-plane
// endpoint a response is posted to, so it cannot regress the golden-path
// behavior spec.md section 8 tests. A nil *StatusClassifier (the default,
// when no range is configured) always reports false.
type StatusClassifier struct {
	expr rangeMatcher
}

// NewStatusClassifier compiles a range expression such as "500-599" or
// "500,502-504". An empty string disables classification.
func NewStatusClassifier(rangeExpr string) (*StatusClassifier, error) {
	if rangeExpr == "" {
		return nil, nil
	}
	expr, err := intervals.ParseExpression(rangeExpr)
	if err != nil {
		return nil, errors.Wrapf(err, "dispatcher: invalid status range %q", rangeExpr)
	}
	return &StatusClassifier{expr: expr}, nil
}

// IsPlatformError reports whether statusCode falls inside the configured
// range. Safe to call on a nil receiver.
func (c *StatusClassifier) IsPlatformError(statusCode int) bool {
	if c == nil || c.expr == nil {
		return false
	}
	return c.expr.Matches(statusCode)
}
