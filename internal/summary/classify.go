package summary

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Response is a completed network attempt reduced to what classification
// needs.
type Response struct {
	Status       int
	Location     string
	HasLocation  bool
	Body         []byte
	BodyErr      error
	RetryAfterMs int64
}

// DefaultMaxRetries bounds transient-error retries per chain.
const DefaultMaxRetries = 1

// Classifier maps responses to outcomes. LoginURL is configured, never read
// from the response.
type Classifier struct {
	LoginURL   string
	MaxRetries int
}

type rule struct {
	name  string
	apply func(c Classifier, r Response, d Descriptor) (Outcome, bool)
}

// Evaluated in order; the first rule that matches wins.
var rules = []rule{
	{name: "redirect", apply: redirectRule},
	{name: "auth_challenge", apply: authRule},
	{name: "non_ok", apply: nonOKRule},
	{name: "success", apply: successRule},
}

// Classify applies the ordered rule list. A response no rule matches is
// reported as an unknown outcome rather than dropped.
func (c Classifier) Classify(r Response, d Descriptor) Outcome {
	for _, rl := range rules {
		if o, ok := rl.apply(c, r, d); ok {
			return o
		}
	}
	return fatal(ErrUnknownOutcome, r.Status, "unknown response from summary service", nil)
}

func redirectRule(_ Classifier, r Response, _ Descriptor) (Outcome, bool) {
	if r.Status >= 300 && r.Status < 400 && r.HasLocation {
		return Redirect{Location: r.Location}, true
	}
	return nil, false
}

func authRule(c Classifier, r Response, d Descriptor) (Outcome, bool) {
	if r.Status != http.StatusUnauthorized || d.AuthRetry {
		return nil, false
	}
	return AuthRequired{LoginURL: c.LoginURL, SubjectKey: d.SubjectKey}, true
}

func nonOKRule(c Classifier, r Response, d Descriptor) (Outcome, bool) {
	if r.Status >= 200 && r.Status < 300 {
		return nil, false
	}
	if r.Status == http.StatusServiceUnavailable && d.Attempt < c.MaxRetries {
		return RetryableError{Status: r.Status}, true
	}

	kind := ErrHTTPStatus
	switch r.Status {
	case http.StatusUnauthorized:
		kind = ErrUnauthorized
	case http.StatusServiceUnavailable:
		kind = ErrServiceUnavailable
	}
	body := strings.TrimSpace(string(r.Body))
	cause := &StatusError{Status: r.Status, BodySnippet: snippet(body), RetryAfterMs: r.RetryAfterMs}
	return fatal(kind, r.Status, errorMessage(r.Status, body), cause), true
}

func successRule(_ Classifier, r Response, _ Descriptor) (Outcome, bool) {
	if r.Status < 200 || r.Status >= 300 {
		return nil, false
	}
	if r.BodyErr != nil {
		return fatal(ErrMalformedResponse, r.Status, "read response: "+r.BodyErr.Error(), r.BodyErr), true
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return fatal(ErrMalformedResponse, r.Status, "malformed response: "+err.Error(), err), true
	}
	raw, ok := env["data"]
	if !ok || string(raw) == "null" {
		return fatal(ErrMalformedResponse, r.Status, "unexpected response shape", nil), true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		// Non-string payloads are shown as their JSON text.
		return Success{Body: string(raw)}, true
	}
	return Success{Body: text}, true
}

func errorMessage(status int, body string) string {
	if body != "" {
		return body
	}
	if txt := http.StatusText(status); txt != "" {
		return txt
	}
	return fmt.Sprintf("HTTP error %d", status)
}

func snippet(s string) string {
	const limit = 512
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
