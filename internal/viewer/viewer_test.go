package viewer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"worksummary/internal/reveal"
	"worksummary/internal/summary"
)

type scriptedClient struct {
	mu      sync.Mutex
	replies []summary.Message
	seen    []summary.Request
}

func (c *scriptedClient) Handle(_ context.Context, req summary.Request) summary.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, req)
	if len(c.replies) == 0 {
		return summary.Message{}
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r
}

func (c *scriptedClient) Dispatch(ctx context.Context, req summary.Request) <-chan summary.Message {
	ch := make(chan summary.Message, 1)
	ch <- c.Handle(ctx, req)
	close(ch)
	return ch
}

// silentClient closes the reply channel without answering.
type silentClient struct{}

func (silentClient) Dispatch(context.Context, summary.Request) <-chan summary.Message {
	ch := make(chan summary.Message)
	close(ch)
	return ch
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(c Client, opts ...Option) *Service {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(c, reveal.NewScheduler(reveal.ModeMarkup, time.Microsecond), opts...)
}

func run(t *testing.T, s *Service, key string) ResponseMsg {
	t.Helper()
	cmd := s.Trigger(context.Background(), key)
	if cmd == nil {
		t.Fatalf("Trigger(%q) returned no command", key)
	}
	msg, ok := cmd().(ResponseMsg)
	if !ok {
		t.Fatal("command did not produce a ResponseMsg")
	}
	return msg
}

func strPtr(s string) *string { return &s }

func TestAuthPromptThenRetryWithFlag(t *testing.T) {
	t.Parallel()

	c := &scriptedClient{replies: []summary.Message{
		{AuthURL: "http://login/top", SubjectKey: "ABC-1"},
		{Error: "Unauthorized"},
	}}
	s := newService(c)

	msg := run(t, s, "ABC-1")
	if s.Phase() != PhaseLoading {
		t.Fatalf("phase while pending = %v", s.Phase())
	}
	s.Resolve(msg)
	if s.Phase() != PhaseAuth || s.PromptedKey() != "ABC-1" {
		t.Fatalf("after auth: phase %v, prompted %q", s.Phase(), s.PromptedKey())
	}
	doc := s.Document()
	if !strings.Contains(doc.String(), "Sign in at the login page") {
		t.Errorf("auth message = %q", doc.String())
	}
	var href string
	for _, ln := range doc.Lines() {
		for _, sp := range ln.Spans {
			if sp.Href != "" {
				href = sp.Href
			}
		}
	}
	if href != "http://login/top" {
		t.Errorf("login link = %q", href)
	}

	s.Resolve(run(t, s, "ABC-1"))
	if len(c.seen) != 2 || c.seen[0].AuthRetry || !c.seen[1].AuthRetry {
		t.Fatalf("requests = %#v", c.seen)
	}
	if s.Phase() != PhaseError || s.PromptedKey() != "" {
		t.Fatalf("after retry: phase %v, prompted %q", s.Phase(), s.PromptedKey())
	}
	if got := doc.String(); got != "Error: Unauthorized" {
		t.Errorf("surface = %q", got)
	}
}

func TestAuthRetryOnlyForSameKey(t *testing.T) {
	t.Parallel()

	c := &scriptedClient{replies: []summary.Message{
		{AuthURL: "http://login/top", SubjectKey: "ABC-1"},
		{Summary: strPtr("ok")},
	}}
	s := newService(c)
	s.Resolve(run(t, s, "ABC-1"))
	s.Resolve(run(t, s, "XYZ-2"))

	if c.seen[1].AuthRetry {
		t.Fatal("auth retry set for a different key")
	}
	if s.PromptedKey() != "" {
		t.Errorf("prompted key not cleared: %q", s.PromptedKey())
	}
}

func TestStaleReplyIsDropped(t *testing.T) {
	t.Parallel()

	c := &scriptedClient{replies: []summary.Message{
		{Summary: strPtr("old")},
		{Error: "boom"},
	}}
	s := newService(c)

	first := run(t, s, "A-1")
	second := run(t, s, "B-2")

	if cmd := s.Resolve(first); cmd != nil {
		t.Fatal("stale reply started a reveal")
	}
	if s.Phase() != PhaseLoading || !s.Pending() || s.PendingKey() != "B-2" {
		t.Fatalf("stale reply changed state: phase %v pending %q", s.Phase(), s.PendingKey())
	}
	s.Resolve(second)
	if s.Phase() != PhaseError || s.LastError() != "boom" {
		t.Fatalf("phase %v, error %q", s.Phase(), s.LastError())
	}
}

func TestSummaryRevealsThroughTicks(t *testing.T) {
	t.Parallel()

	c := &scriptedClient{replies: []summary.Message{{Summary: strPtr("- H\nx")}}}
	s := newService(c)

	cmd := s.Resolve(run(t, s, "K-1"))
	if cmd == nil {
		t.Fatal("summary did not schedule a tick")
	}
	if s.Phase() != PhaseSummary || !s.Revealing() {
		t.Fatalf("phase %v revealing %v", s.Phase(), s.Revealing())
	}
	if !s.Document().Empty() {
		t.Fatalf("surface written before first tick: %q", s.Document().String())
	}

	gen := s.sched.Generation()
	steps := 0
	for {
		next, handled := s.Update(reveal.TickMsg{Generation: gen})
		if !handled {
			t.Fatal("tick not handled")
		}
		steps++
		if next == nil {
			break
		}
		if steps > 10 {
			t.Fatal("reveal did not finish")
		}
	}
	if got := s.Document().String(); got != "H\nx" {
		t.Fatalf("document = %q", got)
	}
	if !s.Document().Lines()[0].Heading {
		t.Error("first line not a heading")
	}
	if s.Revealing() {
		t.Error("still revealing")
	}
}

func TestRedirectOpensLocation(t *testing.T) {
	t.Parallel()

	var opened []string
	c := &scriptedClient{replies: []summary.Message{
		{AuthURL: "http://login/top", SubjectKey: "K"},
		{RedirectURL: "http://sso/start?a=1&b=2"},
	}}
	s := newService(c, WithOpener(OpenerFunc(func(u string) error {
		opened = append(opened, u)
		return nil
	})))
	s.Resolve(run(t, s, "K"))
	s.Resolve(run(t, s, "K"))

	if len(opened) != 1 || opened[0] != "http://sso/start?a=1&b=2" {
		t.Fatalf("opened = %v", opened)
	}
	if s.Phase() != PhaseRedirect || s.PromptedKey() != "" {
		t.Fatalf("phase %v prompted %q", s.Phase(), s.PromptedKey())
	}
	if !strings.Contains(s.Document().String(), "the opened page") {
		t.Errorf("redirect message = %q", s.Document().String())
	}
}

func TestFailuresWithoutRequest(t *testing.T) {
	t.Parallel()

	c := &scriptedClient{}
	s := newService(c)

	if cmd := s.Trigger(context.Background(), "   "); cmd != nil {
		t.Fatal("empty key produced a request")
	}
	if s.LastError() != "subject key not found" || len(c.seen) != 0 {
		t.Fatalf("error %q, requests %d", s.LastError(), len(c.seen))
	}
}

func TestEmptyKeyKeepsAuthPrompt(t *testing.T) {
	t.Parallel()

	c := &scriptedClient{replies: []summary.Message{
		{AuthURL: "http://login/top", SubjectKey: "A-1"},
		{Summary: strPtr("Done")},
	}}
	s := newService(c)

	s.Resolve(run(t, s, "A-1"))
	if s.PromptedKey() != "A-1" {
		t.Fatalf("prompted key = %q", s.PromptedKey())
	}

	if cmd := s.Trigger(context.Background(), ""); cmd != nil {
		t.Fatal("empty key produced a request")
	}
	if s.Phase() != PhaseError || s.PromptedKey() != "A-1" {
		t.Fatalf("phase %v, prompted key %q after empty key", s.Phase(), s.PromptedKey())
	}

	s.Resolve(run(t, s, "A-1"))
	if len(c.seen) != 2 || !c.seen[1].AuthRetry {
		t.Fatalf("requests = %#v", c.seen)
	}
	if s.PromptedKey() != "" {
		t.Errorf("prompted key not cleared by summary: %q", s.PromptedKey())
	}
}

func TestUnknownAndMissingReplies(t *testing.T) {
	t.Parallel()

	s := newService(&scriptedClient{replies: []summary.Message{
		{AuthURL: "http://login/top", SubjectKey: "K"},
		{},
	}})
	s.Resolve(run(t, s, "K"))

	s.Resolve(run(t, s, "K"))
	if s.LastError() != "unknown response" || s.PromptedKey() != "" {
		t.Fatalf("unknown reply: error %q prompted %q", s.LastError(), s.PromptedKey())
	}

	silent := newService(silentClient{})
	silent.Resolve(run(t, silent, "K"))
	if silent.LastError() != "no response" || silent.Phase() != PhaseError {
		t.Fatalf("missing reply: error %q phase %v", silent.LastError(), silent.Phase())
	}
}

func TestErrorTextIsNotParsedAsMarkup(t *testing.T) {
	t.Parallel()

	s := newService(&scriptedClient{replies: []summary.Message{{Error: `<a href="x">y</a>`}}})
	s.Resolve(run(t, s, "K"))

	if got := s.Document().String(); got != `Error: <a href="x">y</a>` {
		t.Fatalf("surface = %q", got)
	}
}

func TestCloseStopsRevealAndDropsLateReply(t *testing.T) {
	t.Parallel()

	s := newService(&scriptedClient{replies: []summary.Message{
		{Summary: strPtr("abc")},
		{Summary: strPtr("late")},
	}})
	s.Resolve(run(t, s, "K"))
	gen := s.sched.Generation()
	s.Update(reveal.TickMsg{Generation: gen})

	late := run(t, s, "K")
	s.Close()

	if cmd, _ := s.Update(reveal.TickMsg{Generation: gen}); cmd != nil {
		t.Error("tick after close scheduled more work")
	}
	if cmd := s.Resolve(late); cmd != nil {
		t.Error("reply after close started a reveal")
	}
	if !s.Document().Empty() || s.Phase() != PhaseIdle {
		t.Fatalf("after close: phase %v surface %q", s.Phase(), s.Document().String())
	}
}

func TestDoStreamsToWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := &scriptedClient{replies: []summary.Message{{Summary: strPtr(`- T` + "\n" + `see <a href="http://x">here</a>`)}}}
	s := newService(c, WithSurface(reveal.NewWriter(&buf)))

	if err := s.Do(context.Background(), "K"); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := buf.String(); got != "T\nsee here <http://x>" {
		t.Fatalf("output = %q", got)
	}
	if s.Document() != nil {
		t.Error("writer surface reported as document")
	}
}

func TestPlainModeStillLinksMessages(t *testing.T) {
	t.Parallel()

	s := New(&scriptedClient{replies: []summary.Message{{AuthURL: "http://login", SubjectKey: "K"}}},
		reveal.NewScheduler(reveal.ModePlain, time.Microsecond), WithLogger(quietLogger()))
	s.Resolve(run(t, s, "K"))

	if strings.Contains(s.Document().String(), "<a") {
		t.Fatalf("raw markup on surface: %q", s.Document().String())
	}
}

func TestPhaseString(t *testing.T) {
	t.Parallel()

	if PhaseRedirect.String() != "redirect" || Phase(99).String() != "unknown" {
		t.Fatal("phase names")
	}
}

func TestBrowserCommand(t *testing.T) {
	t.Parallel()

	if name, _ := browserCommand("linux"); name != "xdg-open" {
		t.Errorf("linux = %q", name)
	}
	if name, _ := browserCommand("darwin"); name != "open" {
		t.Errorf("darwin = %q", name)
	}
	if _, args := browserCommand("windows"); len(args) != 1 {
		t.Errorf("windows args = %v", args)
	}
}
