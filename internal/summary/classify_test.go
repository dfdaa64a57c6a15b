package summary

import (
	"errors"
	"testing"
)

const testLoginURL = "http://login.example/top"

func testClassifier() Classifier {
	return Classifier{LoginURL: testLoginURL, MaxRetries: DefaultMaxRetries}
}

func TestClassifyRedirectTakesPrecedence(t *testing.T) {
	t.Parallel()

	c := testClassifier()
	for status := 300; status < 400; status++ {
		for _, authRetry := range []bool{false, true} {
			for _, attempt := range []int{0, 1, 5} {
				r := Response{Status: status, HasLocation: true, Location: "http://next"}
				d := Descriptor{SubjectKey: "ABC-1", AuthRetry: authRetry, Attempt: attempt}
				got, ok := c.Classify(r, d).(Redirect)
				if !ok || got.Location != "http://next" {
					t.Fatalf("status %d authRetry=%v attempt=%d: got %#v", status, authRetry, attempt, c.Classify(r, d))
				}
			}
		}
	}
}

func TestClassify3xxWithoutLocationIsFatal(t *testing.T) {
	t.Parallel()

	out := testClassifier().Classify(Response{Status: 302}, Descriptor{SubjectKey: "K"})
	fe, ok := out.(*FatalError)
	if !ok {
		t.Fatalf("got %#v, want fatal", out)
	}
	if !errors.Is(fe, ErrHTTPStatus) {
		t.Errorf("kind = %v", fe.Kind)
	}
	if fe.Message != "Found" {
		t.Errorf("message = %q, want status text", fe.Message)
	}
}

func TestClassifyAuthChallenge(t *testing.T) {
	t.Parallel()

	c := testClassifier()
	out := c.Classify(Response{Status: 401}, Descriptor{SubjectKey: "ABC-1"})
	auth, ok := out.(AuthRequired)
	if !ok {
		t.Fatalf("got %#v, want AuthRequired", out)
	}
	if auth.LoginURL != testLoginURL || auth.SubjectKey != "ABC-1" {
		t.Errorf("auth = %#v", auth)
	}

	again := c.Classify(Response{Status: 401, Body: []byte("no session")}, Descriptor{SubjectKey: "ABC-1", AuthRetry: true})
	fe, ok := again.(*FatalError)
	if !ok {
		t.Fatalf("auth retry got %#v, want fatal", again)
	}
	if !errors.Is(fe, ErrUnauthorized) {
		t.Errorf("kind = %v, want unauthorized", fe.Kind)
	}
	if fe.Message != "no session" {
		t.Errorf("message = %q", fe.Message)
	}
}

func TestClassifyServiceUnavailable(t *testing.T) {
	t.Parallel()

	c := testClassifier()
	out := c.Classify(Response{Status: 503}, Descriptor{SubjectKey: "K", Attempt: 0})
	if r, ok := out.(RetryableError); !ok || r.Status != 503 {
		t.Fatalf("attempt 0 got %#v", out)
	}

	out = c.Classify(Response{Status: 503}, Descriptor{SubjectKey: "K", Attempt: 1})
	fe, ok := out.(*FatalError)
	if !ok {
		t.Fatalf("attempt 1 got %#v, want fatal", out)
	}
	if !errors.Is(fe, ErrServiceUnavailable) || fe.Message != "Service Unavailable" {
		t.Errorf("fatal = %#v", fe)
	}
	var se *StatusError
	if !errors.As(fe, &se) || se.Status != 503 {
		t.Errorf("status error = %#v", se)
	}

	noRetry := Classifier{LoginURL: testLoginURL, MaxRetries: 0}
	if _, ok := noRetry.Classify(Response{Status: 503}, Descriptor{}).(*FatalError); !ok {
		t.Error("max retries 0 still retried")
	}
}

func TestClassifyErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		resp   Response
		want   string
		status int
	}{
		{name: "body text wins", resp: Response{Status: 500, Body: []byte(" boom \n")}, want: "boom", status: 500},
		{name: "status text fallback", resp: Response{Status: 404}, want: "Not Found", status: 404},
		{name: "unknown status", resp: Response{Status: 599}, want: "HTTP error 599", status: 599},
		{name: "informational", resp: Response{Status: 102}, want: "Processing", status: 102},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fe, ok := testClassifier().Classify(tt.resp, Descriptor{SubjectKey: "K"}).(*FatalError)
			if !ok {
				t.Fatal("want fatal error")
			}
			if fe.Message != tt.want || fe.Status != tt.status {
				t.Errorf("got %q/%d, want %q/%d", fe.Message, fe.Status, tt.want, tt.status)
			}
		})
	}
}

func TestClassifySuccessBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{name: "string data", body: `{"data":"Done"}`, want: "Done"},
		{name: "empty string data", body: `{"data":""}`, want: ""},
		{name: "object data", body: `{"data":{"a":1}}`, want: `{"a":1}`},
		{name: "missing field", body: `{"summary":"x"}`, wantErr: ErrMalformedResponse},
		{name: "null data", body: `{"data":null}`, wantErr: ErrMalformedResponse},
		{name: "not json", body: `<html>`, wantErr: ErrMalformedResponse},
		{name: "empty body", body: ``, wantErr: ErrMalformedResponse},
		{name: "array", body: `["data"]`, wantErr: ErrMalformedResponse},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := testClassifier().Classify(Response{Status: 200, Body: []byte(tt.body)}, Descriptor{SubjectKey: "K"})
			if tt.wantErr != nil {
				fe, ok := out.(*FatalError)
				if !ok || !errors.Is(fe, tt.wantErr) {
					t.Fatalf("got %#v, want %v", out, tt.wantErr)
				}
				return
			}
			s, ok := out.(Success)
			if !ok || s.Body != tt.want {
				t.Fatalf("got %#v, want success %q", out, tt.want)
			}
		})
	}
}

func TestClassifyMissingShapeMessage(t *testing.T) {
	t.Parallel()

	fe, ok := testClassifier().Classify(Response{Status: 200, Body: []byte(`{}`)}, Descriptor{}).(*FatalError)
	if !ok || fe.Message != "unexpected response shape" {
		t.Fatalf("got %#v", fe)
	}
}

func TestClassifyBodyReadError(t *testing.T) {
	t.Parallel()

	readErr := errors.New("connection reset")
	fe, ok := testClassifier().Classify(Response{Status: 200, BodyErr: readErr}, Descriptor{}).(*FatalError)
	if !ok {
		t.Fatal("want fatal error")
	}
	if !errors.Is(fe, ErrMalformedResponse) || !errors.Is(fe, readErr) {
		t.Errorf("fatal = %#v", fe)
	}
}
