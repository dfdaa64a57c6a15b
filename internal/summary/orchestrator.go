package summary

import (
	"context"
	"log/slog"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateRequesting
	StateRedirected
	StateAuthChallenged
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateRedirected:
		return "redirected"
	case StateAuthChallenged:
		return "auth_challenged"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether control returns to the caller in this state.
func (s State) Terminal() bool {
	switch s {
	case StateRedirected, StateAuthChallenged, StateSucceeded, StateFailed:
		return true
	default:
		return false
	}
}

func stateFor(o Outcome) State {
	switch o.(type) {
	case Success:
		return StateSucceeded
	case Redirect:
		return StateRedirected
	case AuthRequired:
		return StateAuthChallenged
	case RetryableError:
		return StateRetrying
	default:
		return StateFailed
	}
}

// Transition is one edge of the request state machine. Outcome is set when
// an attempt was classified; Delay is set when entering StateRetrying.
type Transition struct {
	From       State
	To         State
	Descriptor Descriptor
	Outcome    Outcome
	Delay      time.Duration
}

// Transport performs one network attempt with redirects disabled.
type Transport interface {
	Send(ctx context.Context, d Descriptor) (Response, error)
}

const DefaultRetryDelay = 2 * time.Second

type Orchestrator struct {
	transport  Transport
	classifier Classifier
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	observe    func(Transition)
	log        *slog.Logger
}

type Option func(*Orchestrator)

func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryDelay = d }
}

// WithSleep replaces the wait between a transient failure and its retry.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithObserver receives every transition in order.
func WithObserver(fn func(Transition)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func NewOrchestrator(t Transport, c Classifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport:  t,
		classifier: c,
		retryDelay: DefaultRetryDelay,
		sleep:      sleepContext,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.classifier.MaxRetries < 0 {
		o.classifier.MaxRetries = 0
	}
	return o
}

// Attempt performs a single network attempt and classifies it. Transport
// failures are fatal and never retried.
func (o *Orchestrator) Attempt(ctx context.Context, d Descriptor) Transition {
	resp, err := o.transport.Send(ctx, d)
	if err != nil {
		return Transition{
			From:       StateRequesting,
			To:         StateFailed,
			Descriptor: d,
			Outcome:    fatal(ErrTransport, 0, err.Error(), err),
		}
	}
	out := o.classifier.Classify(resp, d)
	tr := Transition{From: StateRequesting, To: stateFor(out), Descriptor: d, Outcome: out}
	if tr.To == StateRetrying {
		tr.Delay = o.retryDelay
	}
	return tr
}

// Request runs the chain for d and returns exactly one terminal outcome,
// however many retries happened on the way.
func (o *Orchestrator) Request(ctx context.Context, d Descriptor) Outcome {
	o.emit(Transition{From: StateIdle, To: StateRequesting, Descriptor: d})
	for {
		tr := o.Attempt(ctx, d)
		o.emit(tr)
		// Classify stops returning RetryableError once Attempt reaches MaxRetries.
		if tr.To != StateRetrying {
			return tr.Outcome
		}

		o.log.LogAttrs(ctx, slog.LevelInfo, "summary retry scheduled",
			slog.String("subject_key", d.SubjectKey),
			slog.Int("attempt", d.Attempt+1),
			slog.Int("max_retries", o.classifier.MaxRetries),
			slog.Duration("delay", tr.Delay))
		if err := o.sleep(ctx, tr.Delay); err != nil {
			out := fatal(ErrTransport, 0, err.Error(), err)
			o.emit(Transition{From: StateRetrying, To: StateFailed, Descriptor: d, Outcome: out})
			return out
		}
		d = d.next()
		o.emit(Transition{From: StateRetrying, To: StateRequesting, Descriptor: d})
	}
}

func (o *Orchestrator) emit(tr Transition) {
	attrs := []slog.Attr{
		slog.String("from", tr.From.String()),
		slog.String("to", tr.To.String()),
		slog.String("subject_key", tr.Descriptor.SubjectKey),
		slog.Int("attempt", tr.Descriptor.Attempt),
		slog.Bool("auth_retry", tr.Descriptor.AuthRetry),
	}
	o.log.LogAttrs(context.Background(), slog.LevelDebug, "summary transition", attrs...)
	if fe, ok := tr.Outcome.(*FatalError); ok {
		o.log.LogAttrs(context.Background(), slog.LevelWarn, "summary request failed",
			slog.String("subject_key", tr.Descriptor.SubjectKey),
			slog.Int("status", fe.Status),
			slog.String("error", fe.Message))
	}
	if o.observe != nil {
		o.observe(tr)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
