package reveal

import (
	"io"

	"github.com/muesli/termenv"
)

// Writer streams units to an io.Writer as they arrive. A stream cannot be
// rewound, so Clear is a no-op; headless callers start one session per
// writer.
//
// On a colour terminal headings are bold and links use OSC 8. Otherwise the
// link target is appended in angle brackets after the label.
type Writer struct {
	w    io.Writer
	out  *termenv.Output
	href string
	err  error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, out: termenv.NewOutput(w)}
}

func (wr *Writer) styled() bool {
	return wr.out.Profile != termenv.Ascii
}

func (wr *Writer) Clear() {}

func (wr *Writer) Put(u Unit) {
	if u.Kind == UnitBoldOpen {
		return
	}
	if u.Href != wr.href {
		wr.closeLink()
		if u.Href != "" {
			wr.href = u.Href
			if wr.styled() {
				wr.write("\x1b]8;;" + u.Href + "\x1b\\")
			}
		}
	}
	if u.Kind == UnitLineBreak {
		wr.write("\n")
		return
	}
	s := string(u.Rune)
	if u.Bold && wr.styled() {
		s = wr.out.String(s).Bold().String()
	}
	wr.write(s)
}

func (wr *Writer) Finish() {
	wr.closeLink()
}

// Err returns the first write error, if any.
func (wr *Writer) Err() error {
	return wr.err
}

func (wr *Writer) closeLink() {
	if wr.href == "" {
		return
	}
	if wr.styled() {
		wr.write("\x1b]8;;\x1b\\")
	} else {
		wr.write(" <" + wr.href + ">")
	}
	wr.href = ""
}

func (wr *Writer) write(s string) {
	if wr.err != nil {
		return
	}
	_, wr.err = io.WriteString(wr.w, s)
}
