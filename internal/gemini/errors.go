package gemini

import "fmt"

// ErrorKind classifies an upstream failure so handlers can decide between
// retry, key rotation and a canned user-facing reply without matching raw
// response text.
type ErrorKind int

const (
	// KindTransport covers timeouts, connection failures and 5xx responses
	// that survived the retry budget
	KindTransport ErrorKind = iota
	// KindInvalid is a 400: bad request parameters, not retried
	KindInvalid
	// KindAuth is a 401/403: bad or exhausted key, triggers key rotation
	KindAuth
	// KindQuota is a 429 that survived the retry budget
	KindQuota
	// KindSafety is a content-policy rejection, never retried
	KindSafety
	// KindMalformed is an empty or non-JSON response body, typically a
	// relay/proxy misconfiguration
	KindMalformed
)

// APIError is the single error type returned by the client for upstream
// failures
type APIError struct {
	Kind     ErrorKind
	Status   int
	Message  string
	Category RejectionCategory
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gemini API error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gemini API error: %s", e.Message)
}

// IsAuthError reports whether err is an auth-class APIError
func IsAuthError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Kind == KindAuth
}

// IsSafetyError reports whether err is a content-policy rejection
func IsSafetyError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Kind == KindSafety
}

// kindForStatus maps a terminal HTTP status to an error kind
func kindForStatus(status int) ErrorKind {
	switch status {
	case 400:
		return KindInvalid
	case 401, 403:
		return KindAuth
	case 429:
		return KindQuota
	default:
		return KindTransport
	}
}
