package reveal

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Span is a run of characters that share styling.
type Span struct {
	Text   string
	Bold   bool
	Href   string
	LinkID int
}

type Line struct {
	Spans   []Span
	Heading bool
}

// Document is an in-memory surface. It is not safe for concurrent use; the
// bubbletea loop is its only writer.
type Document struct {
	lines []Line
}

func (d *Document) Clear() {
	d.lines = nil
}

func (d *Document) Put(u Unit) {
	if len(d.lines) == 0 {
		d.lines = append(d.lines, Line{})
	}
	ln := &d.lines[len(d.lines)-1]
	switch u.Kind {
	case UnitLineBreak:
		d.lines = append(d.lines, Line{})
	case UnitBoldOpen:
		ln.Heading = true
	case UnitRune:
		if n := len(ln.Spans); n > 0 {
			last := &ln.Spans[n-1]
			if last.Bold == u.Bold && last.Href == u.Href && last.LinkID == u.LinkID {
				last.Text += string(u.Rune)
				return
			}
		}
		ln.Spans = append(ln.Spans, Span{Text: string(u.Rune), Bold: u.Bold, Href: u.Href, LinkID: u.LinkID})
	}
}

// Lines returns a copy of the current lines.
func (d *Document) Lines() []Line {
	out := make([]Line, len(d.lines))
	for i, ln := range d.lines {
		out[i] = Line{Spans: append([]Span(nil), ln.Spans...), Heading: ln.Heading}
	}
	return out
}

func (d *Document) Empty() bool {
	return len(d.lines) == 0
}

// String returns the visible text without styling.
func (d *Document) String() string {
	parts := make([]string, len(d.lines))
	for i, ln := range d.lines {
		var b strings.Builder
		for _, sp := range ln.Spans {
			b.WriteString(sp.Text)
		}
		parts[i] = b.String()
	}
	return strings.Join(parts, "\n")
}

// Styles controls how Render decorates spans.
type Styles struct {
	Text lipgloss.Style
	Bold lipgloss.Style
	Link lipgloss.Style
	// Hyperlinks wraps link spans in OSC 8 sequences.
	Hyperlinks bool
}

func DefaultStyles() Styles {
	return Styles{
		Text:       lipgloss.NewStyle(),
		Bold:       lipgloss.NewStyle().Bold(true),
		Link:       lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("#00FFFF")),
		Hyperlinks: true,
	}
}

// Render draws the document, wrapping each line to width when width > 0.
func (d *Document) Render(st Styles, width int) string {
	out := make([]string, len(d.lines))
	for i, ln := range d.lines {
		var b strings.Builder
		for _, sp := range ln.Spans {
			style := st.Text
			if sp.Bold {
				style = st.Bold
			}
			if sp.Href != "" {
				style = style.Inherit(st.Link)
				text := style.Render(sp.Text)
				if st.Hyperlinks {
					text = termenv.Hyperlink(sp.Href, text)
				}
				b.WriteString(text)
				continue
			}
			b.WriteString(style.Render(sp.Text))
		}
		line := b.String()
		if width > 0 {
			line = lipgloss.NewStyle().Width(width).Render(line)
		}
		out[i] = line
	}
	return strings.Join(out, "\n")
}
