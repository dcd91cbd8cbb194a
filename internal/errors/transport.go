package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTransport matches every TransportError through errors.Is.
var ErrTransport = errors.New("transport error")

const genericFailureMessage = "request failed"

// TransportError is a failed round trip to the task service. StatusCode is
// zero when no response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// UserMessage returns the server supplied message or a generic fallback.
func UserMessage(err error) string {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if msg := strings.TrimSpace(transportErr.Message); msg != "" {
			return msg
		}
		return genericFailureMessage
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	var configErr *ConfigurationError
	if errors.As(err, &configErr) {
		return configErr.Error()
	}
	var exception *Exception
	if errors.As(err, &exception) {
		return exception.Message
	}
	if err == nil {
		return ""
	}
	return genericFailureMessage
}
