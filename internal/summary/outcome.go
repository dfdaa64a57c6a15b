// Package summary requests work item summaries from the remote service.
//
// One network attempt yields exactly one Outcome. The Orchestrator owns the
// retry and auth state machine around attempts; Classify is the pure
// decision table that maps a raw response to an Outcome.
package summary

import (
	"errors"
	"fmt"
	"strings"
)

// Descriptor identifies one request in a chain. Attempt only grows on
// transient-error retries; AuthRetry is fixed for the whole chain.
type Descriptor struct {
	SubjectKey string
	AuthRetry  bool
	Attempt    int
}

func (d Descriptor) next() Descriptor {
	d.Attempt++
	return d
}

// Outcome is one of Success, Redirect, AuthRequired, RetryableError or
// *FatalError.
type Outcome interface {
	outcome()
}

type Success struct {
	Body string
}

type Redirect struct {
	Location string
}

type AuthRequired struct {
	LoginURL   string
	SubjectKey string
}

type RetryableError struct {
	Status int
}

func (Success) outcome()        {}
func (Redirect) outcome()       {}
func (AuthRequired) outcome()   {}
func (RetryableError) outcome() {}
func (*FatalError) outcome()    {}

var (
	ErrTransport          = errors.New("transport failure")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrUnknownOutcome     = errors.New("unknown outcome")
	ErrHTTPStatus         = errors.New("http error status")
)

// FatalError ends a chain. Message is what the caller is shown; Kind is one
// of the Err* sentinels and Err the underlying cause, if any.
type FatalError struct {
	Message string
	Kind    error
	Status  int
	Err     error
}

func (e *FatalError) Error() string {
	if e == nil {
		return "summary error"
	}
	return e.Message
}

func (e *FatalError) Unwrap() []error {
	var out []error
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func fatal(kind error, status int, message string, cause error) *FatalError {
	return &FatalError{Message: message, Kind: kind, Status: status, Err: cause}
}

// StatusError records a non-OK response as the server sent it.
type StatusError struct {
	Status       int
	BodySnippet  string
	RetryAfterMs int64
}

func (e *StatusError) Error() string {
	if e == nil {
		return "summary http error"
	}
	if strings.TrimSpace(e.BodySnippet) == "" {
		return fmt.Sprintf("summary http %d", e.Status)
	}
	return fmt.Sprintf("summary http %d: %s", e.Status, e.BodySnippet)
}

// OutcomeName is a short label for logs and events.
func OutcomeName(o Outcome) string {
	switch o.(type) {
	case Success:
		return "success"
	case Redirect:
		return "redirect"
	case AuthRequired:
		return "auth_required"
	case RetryableError:
		return "retryable_error"
	case *FatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}
