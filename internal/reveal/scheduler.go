// Package reveal materializes render units onto a surface one tick at a time.
//
// A Scheduler owns a generation counter. Every Start bumps it, and every
// session compares its captured generation with the current one before
// touching the surface, so a superseded session stops silently at its next
// tick and can never interleave with the newer one.
package reveal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"worksummary/internal/markup"
)

type Mode int

const (
	// ModeMarkup interprets line breaks, bold heading lines and links.
	ModeMarkup Mode = iota
	// ModePlain reveals raw characters with no markup awareness.
	ModePlain
)

func (m Mode) String() string {
	switch m {
	case ModeMarkup:
		return "markup"
	case ModePlain:
		return "plain"
	default:
		return "unknown"
	}
}

// ParseMode accepts "markup" or "plain".
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "markup", "":
		return ModeMarkup, true
	case "plain":
		return ModePlain, true
	default:
		return ModeMarkup, false
	}
}

const (
	DefaultDelay      = 10 * time.Millisecond
	DefaultPlainDelay = 25 * time.Millisecond
)

// Surface receives units from the currently valid session.
type Surface interface {
	Clear()
	Put(u Unit)
}

// Finisher is implemented by surfaces that need to close open state (an
// open hyperlink, a pending line) once a session has emitted its last unit.
type Finisher interface {
	Finish()
}

type Scheduler struct {
	mode  Mode
	delay time.Duration

	gen atomic.Uint64

	mu  sync.Mutex
	cur *Session
}

func NewScheduler(mode Mode, delay time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
		if mode == ModePlain {
			delay = DefaultPlainDelay
		}
	}
	return &Scheduler{mode: mode, delay: delay}
}

func (s *Scheduler) Mode() Mode           { return s.mode }
func (s *Scheduler) Delay() time.Duration { return s.delay }
func (s *Scheduler) Generation() uint64   { return s.gen.Load() }

// Start begins a reveal of text using the scheduler's mode.
func (s *Scheduler) Start(text string, surface Surface) *Session {
	if s.mode == ModePlain {
		return s.start(PlainUnits(text), surface)
	}
	return s.StartTokens(markup.Tokenize(text), surface)
}

// StartTokens begins a markup reveal of already tokenized text.
func (s *Scheduler) StartTokens(tokens []markup.Token, surface Surface) *Session {
	return s.start(Units(tokens), surface)
}

// StartPlain begins a reveal that shows text verbatim regardless of mode.
func (s *Scheduler) StartPlain(text string, surface Surface) *Session {
	return s.start(PlainUnits(text), surface)
}

func (s *Scheduler) start(units []Unit, surface Surface) *Session {
	sess := &Session{
		sched:   s,
		units:   units,
		surface: surface,
		delay:   s.delay,
	}
	s.mu.Lock()
	sess.gen = s.gen.Add(1)
	s.cur = sess
	s.mu.Unlock()
	surface.Clear()
	return sess
}

// Invalidate abandons the current session without starting a new one, for
// example when the display area is torn down.
func (s *Scheduler) Invalidate() {
	s.mu.Lock()
	s.gen.Add(1)
	s.cur = nil
	s.mu.Unlock()
}

// Current returns the session that may still write, or nil.
func (s *Scheduler) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// TickMsg schedules the next unit of the session with the same generation.
type TickMsg struct {
	Generation uint64
}

// Advance handles a TickMsg on the bubbletea event loop. Ticks from older
// generations are dropped.
func (s *Scheduler) Advance(msg TickMsg) tea.Cmd {
	sess := s.Current()
	if sess == nil || sess.gen != msg.Generation {
		return nil
	}
	if !sess.Step() {
		return nil
	}
	return sess.Tick()
}

// Session is one reveal run: the unit sequence, a cursor into it and the
// generation it was started with.
type Session struct {
	sched   *Scheduler
	gen     uint64
	units   []Unit
	cursor  int
	surface Surface
	delay   time.Duration
	done    bool
}

func (ss *Session) Generation() uint64 { return ss.gen }
func (ss *Session) Len() int           { return len(ss.units) }

// Valid reports whether no newer session has been started.
func (ss *Session) Valid() bool {
	return ss.sched.gen.Load() == ss.gen
}

// Done reports whether every unit has been written.
func (ss *Session) Done() bool {
	return ss.cursor >= len(ss.units)
}

// Step writes the next unit. It returns false without touching the surface
// when the session is finished or has been superseded.
func (ss *Session) Step() bool {
	if !ss.Valid() || ss.Done() {
		return false
	}
	ss.surface.Put(ss.units[ss.cursor])
	ss.cursor++
	if ss.Done() {
		ss.finish()
	}
	return true
}

// Flush writes every remaining unit at once, still checking the fence
// before each one.
func (ss *Session) Flush() {
	for ss.Step() {
	}
}

func (ss *Session) finish() {
	if ss.done {
		return
	}
	ss.done = true
	if f, ok := ss.surface.(Finisher); ok {
		f.Finish()
	}
}

// Tick schedules the next step on the bubbletea loop. It returns nil once
// there is nothing left to do.
func (ss *Session) Tick() tea.Cmd {
	if !ss.Valid() || ss.Done() {
		return nil
	}
	gen := ss.gen
	return tea.Tick(ss.delay, func(time.Time) tea.Msg { return TickMsg{Generation: gen} })
}

// Run drives the session from the calling goroutine until it is finished,
// superseded or ctx is cancelled.
func (ss *Session) Run(ctx context.Context) error {
	timer := time.NewTimer(ss.delay)
	defer timer.Stop()
	for ss.Step() {
		if ss.Done() {
			return nil
		}
		timer.Reset(ss.delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
