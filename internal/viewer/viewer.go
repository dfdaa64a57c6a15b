// Package viewer is the single entry point a UI uses to request a summary
// and show the result. It owns the display surface and the auth prompt
// state for one display area.
package viewer

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"worksummary/internal/eventlog"
	"worksummary/internal/markup"
	"worksummary/internal/reveal"
	"worksummary/internal/summary"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSummary
	PhaseError
	PhaseAuth
	PhaseRedirect
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSummary:
		return "summary"
	case PhaseError:
		return "error"
	case PhaseAuth:
		return "auth"
	case PhaseRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Client answers GET_SUMMARY requests across an asynchronous boundary. The
// channel carries at most one reply and is then closed. *summary.Handler
// implements it.
type Client interface {
	Dispatch(ctx context.Context, req summary.Request) <-chan summary.Message
}

// ResponseMsg carries the reply for the request identified by ID. A nil
// Reply means the client produced no response at all.
type ResponseMsg struct {
	ID    string
	Key   string
	Reply *summary.Message
}

type Service struct {
	client  Client
	sched   *reveal.Scheduler
	surface reveal.Surface
	opener  Opener
	log     *slog.Logger
	events  *eventlog.Logger

	phase       Phase
	promptedKey string
	requestID   string
	requestKey  string
	lastError   string
}

type Option func(*Service)

// WithSurface replaces the default in-memory Document.
func WithSurface(s reveal.Surface) Option {
	return func(svc *Service) { svc.surface = s }
}

func WithOpener(o Opener) Option {
	return func(svc *Service) { svc.opener = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) { svc.log = l }
}

// WithPromptedKey seeds the auth prompt state, for callers that keep it
// across processes.
func WithPromptedKey(key string) Option {
	return func(svc *Service) { svc.promptedKey = strings.TrimSpace(key) }
}

func WithEvents(l *eventlog.Logger) Option {
	return func(svc *Service) { svc.events = l }
}

func New(client Client, sched *reveal.Scheduler, opts ...Option) *Service {
	s := &Service{
		client:  client,
		sched:   sched,
		surface: &reveal.Document{},
		opener:  NopOpener{},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

func (s *Service) Phase() Phase            { return s.phase }
func (s *Service) PromptedKey() string     { return s.promptedKey }
func (s *Service) LastError() string       { return s.lastError }
func (s *Service) Pending() bool           { return s.requestID != "" }
func (s *Service) Surface() reveal.Surface { return s.surface }

// RequestID identifies the request whose reply may still change the
// display. It is empty when nothing is in flight.
func (s *Service) RequestID() string { return s.requestID }

// PendingKey is the subject key of the request currently in flight.
func (s *Service) PendingKey() string {
	if s.requestID == "" {
		return ""
	}
	return s.requestKey
}

// Document returns the surface when it is the default in-memory document.
func (s *Service) Document() *reveal.Document {
	d, _ := s.surface.(*reveal.Document)
	return d
}

// Revealing reports whether a summary is still being written out.
func (s *Service) Revealing() bool {
	sess := s.sched.Current()
	return sess != nil && !sess.Done()
}

// Trigger starts a request for key and returns the command that performs
// it. Any earlier request still in flight is superseded: its reply will be
// dropped. An empty key fails immediately and returns nil; it is not a
// reply, so a pending auth prompt survives it.
func (s *Service) Trigger(ctx context.Context, key string) tea.Cmd {
	key = strings.TrimSpace(key)
	if key == "" {
		s.requestID = ""
		s.showError("subject key not found")
		return nil
	}

	req := summary.Request{
		Type:       summary.TypeGetSummary,
		SubjectKey: key,
		AuthRetry:  key == s.promptedKey,
	}
	id := uuid.NewString()
	s.requestID = id
	s.requestKey = key
	s.lastError = ""
	s.setPhase(PhaseLoading)
	s.sched.Invalidate()
	s.surface.Clear()

	s.log.LogAttrs(ctx, slog.LevelInfo, "summary requested",
		slog.String("request_id", id),
		slog.String("subject_key", key),
		slog.Bool("auth_retry", req.AuthRetry))
	s.events.Append("viewer", "summary.requested", req, id, "")

	client := s.client
	return func() tea.Msg {
		msg := ResponseMsg{ID: id, Key: key}
		if reply, ok := <-client.Dispatch(ctx, req); ok {
			msg.Reply = &reply
		}
		return msg
	}
}

// Resolve applies a reply to the display. Replies for anything other than
// the most recent request are ignored. The returned command drives the
// summary reveal, if there is one.
func (s *Service) Resolve(msg ResponseMsg) tea.Cmd {
	if msg.ID == "" || msg.ID != s.requestID {
		s.log.LogAttrs(context.Background(), slog.LevelDebug, "stale summary reply dropped",
			slog.String("request_id", msg.ID),
			slog.String("current_id", s.requestID))
		return nil
	}
	s.requestID = ""

	reply := msg.Reply
	if reply == nil {
		s.promptedKey = ""
		s.showError("no response")
		s.record(msg, "none")
		return nil
	}

	if reply.AuthURL != "" {
		key := reply.SubjectKey
		if key == "" {
			key = msg.Key
		}
		s.promptedKey = key
		s.setPhase(PhaseAuth)
		s.showMarkup(authMessage(reply.AuthURL))
		s.record(msg, "auth")
		return nil
	}

	s.promptedKey = ""
	switch {
	case reply.RedirectURL != "":
		s.setPhase(PhaseRedirect)
		if err := s.opener.Open(reply.RedirectURL); err != nil {
			s.log.LogAttrs(context.Background(), slog.LevelWarn, "open redirect target failed",
				slog.String("url", reply.RedirectURL),
				slog.String("error", err.Error()))
		}
		s.showMarkup(redirectMessage(reply.RedirectURL))
		s.record(msg, "redirect")
		return nil
	case reply.Error != "":
		s.showError(reply.Error)
		s.record(msg, "error")
		return nil
	case reply.Summary != nil:
		s.setPhase(PhaseSummary)
		sess := s.sched.Start(*reply.Summary, s.surface)
		s.record(msg, "summary")
		return sess.Tick()
	default:
		s.showError("unknown response")
		s.record(msg, "unknown")
		return nil
	}
}

// Update routes the facade's own messages. It reports whether msg was one
// of them.
func (s *Service) Update(msg tea.Msg) (tea.Cmd, bool) {
	switch m := msg.(type) {
	case ResponseMsg:
		return s.Resolve(m), true
	case reveal.TickMsg:
		return s.sched.Advance(m), true
	}
	return nil, false
}

// Do runs one request to completion on the calling goroutine, including
// the summary reveal.
func (s *Service) Do(ctx context.Context, key string) error {
	cmd := s.Trigger(ctx, key)
	if cmd == nil {
		return nil
	}
	msg, ok := cmd().(ResponseMsg)
	if !ok {
		return errors.New("unexpected message from request command")
	}
	s.Resolve(msg)
	if s.phase != PhaseSummary {
		return nil
	}
	if sess := s.sched.Current(); sess != nil {
		return sess.Run(ctx)
	}
	return nil
}

// Close tears down the display area: the running reveal stops and any
// reply still in flight is ignored.
func (s *Service) Close() {
	s.sched.Invalidate()
	s.surface.Clear()
	s.requestID = ""
	s.setPhase(PhaseIdle)
}

func (s *Service) setPhase(p Phase) {
	s.phase = p
}

// showError replaces the surface with the message. Server bodies may
// contain markup, so the text is shown verbatim.
func (s *Service) showError(message string) {
	s.lastError = message
	s.setPhase(PhaseError)
	s.sched.StartPlain("Error: "+message, s.surface).Flush()
}

// showMarkup writes a fixed message at once, links included, in either
// reveal mode.
func (s *Service) showMarkup(text string) {
	s.sched.StartTokens(markup.Tokenize(text), s.surface).Flush()
}

func (s *Service) record(msg ResponseMsg, outcome string) {
	s.log.LogAttrs(context.Background(), slog.LevelInfo, "summary resolved",
		slog.String("request_id", msg.ID),
		slog.String("subject_key", msg.Key),
		slog.String("outcome", outcome))
	s.events.Append("viewer", "summary.resolved", map[string]string{
		"subject_key": msg.Key,
		"outcome":     outcome,
		"phase":       s.phase.String(),
	}, msg.ID, "")
}

func authMessage(loginURL string) string {
	return "Authentication is required.\n" +
		`Sign in at <a href="` + attr(loginURL) + `">the login page</a>, then request the summary again.`
}

func redirectMessage(location string) string {
	return "The server redirected the request.\n" +
		`Finish signing in at <a href="` + attr(location) + `">the opened page</a>, then request the summary again.`
}

func attr(u string) string {
	return strings.ReplaceAll(u, `"`, "%22")
}
