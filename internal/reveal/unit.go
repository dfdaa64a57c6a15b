package reveal

import "worksummary/internal/markup"

type UnitKind int

const (
	UnitRune UnitKind = iota
	UnitLineBreak
	UnitBoldOpen
)

// Unit is the smallest piece a session materializes per tick.
//
// Runes carry their context: Bold is set inside a heading line, Href and
// LinkID are set for characters of a link label. LinkID distinguishes two
// adjacent links that share a URL.
type Unit struct {
	Kind   UnitKind
	Rune   rune
	Bold   bool
	Href   string
	LinkID int
}

// Units expands markup tokens into reveal units, tracking the implicit bold
// scope that runs from BoldLineOpen to the next LineBreak.
func Units(tokens []markup.Token) []Unit {
	out := make([]Unit, 0, len(tokens)*8)
	bold := false
	links := 0
	for _, t := range tokens {
		switch t.Kind {
		case markup.LineBreak:
			bold = false
			out = append(out, Unit{Kind: UnitLineBreak})
		case markup.BoldLineOpen:
			bold = true
			out = append(out, Unit{Kind: UnitBoldOpen, Bold: true})
		case markup.Text:
			for _, r := range t.Content {
				out = append(out, Unit{Kind: UnitRune, Rune: r, Bold: bold})
			}
		case markup.Hyperlink:
			links++
			for _, r := range t.Label {
				out = append(out, Unit{Kind: UnitRune, Rune: r, Bold: bold, Href: t.URL, LinkID: links})
			}
		}
	}
	return out
}

// PlainUnits reveals text character by character with no markup awareness.
// Newlines still break lines so the surface keeps its shape.
func PlainUnits(text string) []Unit {
	out := make([]Unit, 0, len(text))
	for _, r := range text {
		if r == '\n' {
			out = append(out, Unit{Kind: UnitLineBreak})
			continue
		}
		out = append(out, Unit{Kind: UnitRune, Rune: r})
	}
	return out
}
