package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies what went wrong with a vendor exchange. Kinds are
// stable strings so they can travel through logs and API payloads.
type ErrorKind string

const (
	// KindHTTP is a non-2xx response to a chat request.
	KindHTTP ErrorKind = "http"
	// KindCatalog is a failed model-catalog fetch.
	KindCatalog ErrorKind = "catalog"
	// KindNoBody means the vendor answered 2xx with no response body to
	// stream from.
	KindNoBody ErrorKind = "no_body"
	// KindStream is a transport failure after streaming began.
	KindStream ErrorKind = "stream"
	// KindSystemPrompt is the recoverable rejection of the system role by
	// models that do not accept one. The caller resolves it by resending
	// without the system prompt.
	KindSystemPrompt ErrorKind = "system_prompt_unsupported"
)

// ErrNoResponseBody is the cause attached to KindNoBody errors.
var ErrNoResponseBody = errors.New("response has no body")

// Error is the typed error every adapter surfaces. Message holds the
// vendor's own wording (status text or error body), which is the only
// diagnostic the user ever gets about the remote side.
type Error struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: %s %d: %s", e.Provider, e.Kind, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s %d", e.Provider, e.Kind, e.Status)
	case e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsSystemPromptUnsupported reports whether err is the recoverable
// system-role rejection.
func IsSystemPromptUnsupported(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindSystemPrompt
}

// IsCatalogError reports whether err came from a failed catalog fetch.
func IsCatalogError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindCatalog
}
