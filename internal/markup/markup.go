// Package markup turns summary text into a flat sequence of render tokens.
//
// Only a small inline subset is recognised: newlines, "- " heading lines
// (rendered bold up to the next newline) and <a href="...">label</a> links.
// Everything else is plain text.
package markup

import (
	"regexp"
	"strings"
)

type Kind int

const (
	Text Kind = iota
	LineBreak
	BoldLineOpen
	Hyperlink
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case LineBreak:
		return "line_break"
	case BoldLineOpen:
		return "bold_line_open"
	case Hyperlink:
		return "hyperlink"
	default:
		return "unknown"
	}
}

// Token is one render token. Content is set for Text, URL and Label for
// Hyperlink; structural tokens carry no payload.
type Token struct {
	Kind    Kind
	Content string
	URL     string
	Label   string
}

const boldPrefix = "- "

var linkPattern = regexp.MustCompile(`(?i)<a\s+(?:[^>]*?\s+)?href="([^"]*)"[^>]*>(.*?)</a>`)

// Tokenize scans text left to right. Bold scope is implicit: a BoldLineOpen
// covers every token up to the next LineBreak.
func Tokenize(text string) []Token {
	var out []Token
	pos := 0
	lineStart := true
	for pos < len(text) {
		rest := text[pos:]

		if rest[0] == '\n' {
			out = append(out, Token{Kind: LineBreak})
			pos++
			lineStart = true
			continue
		}

		if lineStart && strings.HasPrefix(rest, boldPrefix) {
			out = append(out, Token{Kind: BoldLineOpen})
			pos += len(boldPrefix)
			lineStart = false
			continue
		}
		lineStart = false

		// Links never span lines, so the search stops at the line end.
		end := len(rest)
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			end = nl
		}
		line := rest[:end]
		loc := linkPattern.FindStringSubmatchIndex(line)
		if loc != nil && loc[0] == 0 {
			out = append(out, Token{
				Kind:  Hyperlink,
				URL:   line[loc[2]:loc[3]],
				Label: line[loc[4]:loc[5]],
			})
			pos += loc[1]
			continue
		}
		if loc != nil {
			end = loc[0]
		}
		out = append(out, Token{Kind: Text, Content: rest[:end]})
		pos += end
	}
	return out
}

// PlainText reassembles the visible text of tokens: text runs, link labels
// and newlines. Bold markers and link syntax are dropped.
func PlainText(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		switch t.Kind {
		case Text:
			b.WriteString(t.Content)
		case Hyperlink:
			b.WriteString(t.Label)
		case LineBreak:
			b.WriteByte('\n')
		}
	}
	return b.String()
}
