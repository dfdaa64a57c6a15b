package reveal

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"worksummary/internal/markup"
)

func TestUnitsTrackBoldScope(t *testing.T) {
	t.Parallel()

	units := Units(markup.Tokenize("- Hi\nyo"))
	want := []Unit{
		{Kind: UnitBoldOpen, Bold: true},
		{Kind: UnitRune, Rune: 'H', Bold: true},
		{Kind: UnitRune, Rune: 'i', Bold: true},
		{Kind: UnitLineBreak},
		{Kind: UnitRune, Rune: 'y'},
		{Kind: UnitRune, Rune: 'o'},
	}
	if len(units) != len(want) {
		t.Fatalf("got %d units, want %d: %#v", len(units), len(want), units)
	}
	for i := range want {
		if units[i] != want[i] {
			t.Errorf("unit %d = %#v, want %#v", i, units[i], want[i])
		}
	}
}

func TestUnitsLinkLabelPerCharacter(t *testing.T) {
	t.Parallel()

	units := Units(markup.Tokenize(`<a href="u">ab</a><a href="u">c</a>`))
	if len(units) != 3 {
		t.Fatalf("got %d units, want 3", len(units))
	}
	if units[0].Href != "u" || units[0].LinkID != 1 || units[1].LinkID != 1 {
		t.Errorf("first link units = %#v", units[:2])
	}
	if units[2].LinkID != 2 {
		t.Errorf("second link id = %d, want 2", units[2].LinkID)
	}
}

func TestPlainUnitsIgnoreMarkup(t *testing.T) {
	t.Parallel()

	text := "- <a href=\"x\">y</a>"
	units := PlainUnits(text)
	if len(units) != len([]rune(text)) {
		t.Fatalf("got %d units, want one per rune", len(units))
	}
	for _, u := range units {
		if u.Bold || u.Href != "" {
			t.Fatalf("plain unit carries markup context: %#v", u)
		}
	}
}

func TestSessionStepMaterializesOneUnitPerTick(t *testing.T) {
	t.Parallel()

	s := NewScheduler(ModeMarkup, time.Millisecond)
	doc := &Document{}
	sess := s.Start("- Head\nbody", doc)

	if !doc.Empty() {
		t.Fatalf("document not empty after start: %q", doc.String())
	}
	steps := 0
	for sess.Step() {
		steps++
	}
	if steps != sess.Len() {
		t.Fatalf("steps = %d, want %d", steps, sess.Len())
	}
	if got := doc.String(); got != "Head\nbody" {
		t.Fatalf("document = %q", got)
	}
	lines := doc.Lines()
	if !lines[0].Heading || !lines[0].Spans[0].Bold {
		t.Errorf("first line not bold: %#v", lines[0])
	}
	if lines[1].Heading || lines[1].Spans[0].Bold {
		t.Errorf("second line bold: %#v", lines[1])
	}
}

func TestGenerationFenceStopsSupersededSession(t *testing.T) {
	t.Parallel()

	s := NewScheduler(ModeMarkup, time.Millisecond)
	doc := &Document{}

	a := s.Start("AAAAAAAA", doc)
	a.Step()
	a.Step()

	b := s.Start("bbb", doc)
	if a.Valid() {
		t.Fatal("session A still valid after B started")
	}
	if a.Step() {
		t.Fatal("session A wrote after being superseded")
	}

	for b.Step() {
		if a.Step() {
			t.Fatal("session A interleaved with B")
		}
	}
	if got := doc.String(); got != "bbb" {
		t.Fatalf("document = %q, want only B's text", got)
	}
	if b.Generation() <= a.Generation() {
		t.Fatalf("generations not increasing: a=%d b=%d", a.Generation(), b.Generation())
	}
}

func TestAdvanceDropsStaleTicks(t *testing.T) {
	t.Parallel()

	s := NewScheduler(ModeMarkup, time.Millisecond)
	doc := &Document{}

	a := s.Start("old", doc)
	staleTick := TickMsg{Generation: a.Generation()}
	b := s.Start("new", doc)

	if cmd := s.Advance(staleTick); cmd != nil {
		t.Fatal("stale tick scheduled more work")
	}
	if !doc.Empty() {
		t.Fatalf("stale tick wrote %q", doc.String())
	}

	tick := TickMsg{Generation: b.Generation()}
	for i := 0; i < 3; i++ {
		s.Advance(tick)
	}
	if got := doc.String(); got != "new" {
		t.Fatalf("document = %q", got)
	}
	if cmd := s.Advance(tick); cmd != nil {
		t.Fatal("finished session scheduled another tick")
	}
}

func TestSessionTickReturnsGenerationMessage(t *testing.T) {
	t.Parallel()

	s := NewScheduler(ModeMarkup, time.Millisecond)
	sess := s.Start("x", &Document{})
	cmd := sess.Tick()
	if cmd == nil {
		t.Fatal("expected a tick command")
	}
	msg, ok := cmd().(TickMsg)
	if !ok {
		t.Fatalf("tick produced %T", cmd())
	}
	if msg.Generation != sess.Generation() {
		t.Fatalf("tick generation = %d, want %d", msg.Generation, sess.Generation())
	}
}

func TestInvalidateAbandonsCurrentSession(t *testing.T) {
	t.Parallel()

	s := NewScheduler(ModeMarkup, time.Millisecond)
	doc := &Document{}
	sess := s.Start("abc", doc)
	s.Invalidate()

	if sess.Step() {
		t.Fatal("invalidated session wrote")
	}
	if s.Current() != nil {
		t.Fatal("current session survived invalidate")
	}
	if sess.Tick() != nil {
		t.Fatal("invalidated session scheduled a tick")
	}
}

func TestRunRevealsEverything(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	s := NewScheduler(ModeMarkup, time.Microsecond)
	sess := s.Start("- T\nsee <a href=\"http://x\">here</a>", w)

	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := w.Err(); err != nil {
		t.Fatalf("writer: %v", err)
	}
	if got := buf.String(); got != "T\nsee here <http://x>" {
		t.Fatalf("output = %q", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := NewScheduler(ModePlain, time.Hour)
	doc := &Document{}
	sess := s.Start("abcdef", doc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sess.Run(ctx); err == nil {
		t.Fatal("expected context error")
	}
	if got := doc.String(); got != "a" {
		t.Fatalf("document = %q, want first unit only", got)
	}
}

func TestPlainModeKeepsRawMarkup(t *testing.T) {
	t.Parallel()

	s := NewScheduler(ModePlain, 0)
	if s.Delay() != DefaultPlainDelay {
		t.Fatalf("plain delay = %v", s.Delay())
	}
	doc := &Document{}
	s.Start("- <b>x</b>", doc).Flush()
	if got := doc.String(); got != "- <b>x</b>" {
		t.Fatalf("document = %q", got)
	}
}

func TestRenderWrapsLinksAndBold(t *testing.T) {
	t.Parallel()

	doc := &Document{}
	NewScheduler(ModeMarkup, 0).Start("- Head\n<a href=\"http://x\">go</a>", doc).Flush()

	st := DefaultStyles()
	st.Hyperlinks = true
	out := doc.Render(st, 0)
	if !strings.Contains(out, "Head") || !strings.Contains(out, "go") {
		t.Fatalf("render lost text: %q", out)
	}
	if !strings.Contains(out, "http://x") {
		t.Fatalf("render lost hyperlink target: %q", out)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{"": ModeMarkup, "markup": ModeMarkup, "plain": ModePlain} {
		got, ok := ParseMode(in)
		if !ok || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseMode("html"); ok {
		t.Error("ParseMode accepted html")
	}
}
