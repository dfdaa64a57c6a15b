package summary

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
)

const TypeGetSummary = "GET_SUMMARY"

// Request is the message a UI collaborator sends to ask for a summary.
type Request struct {
	Type       string `json:"type"`
	SubjectKey string `json:"subjectKey"`
	AuthRetry  bool   `json:"authRetry,omitempty"`
}

// Message is the single reply to a Request. Exactly one of Summary, Error,
// AuthURL (with SubjectKey) or RedirectURL is set. Summary is a pointer
// because an empty summary is still a summary.
type Message struct {
	Summary     *string `json:"summary,omitempty"`
	Error       string  `json:"error,omitempty"`
	AuthURL     string  `json:"authUrl,omitempty"`
	SubjectKey  string  `json:"subjectKey,omitempty"`
	RedirectURL string  `json:"redirectUrl,omitempty"`
}

// MessageFor converts a terminal outcome into the caller-facing shape.
func MessageFor(o Outcome) Message {
	switch v := o.(type) {
	case Success:
		body := v.Body
		return Message{Summary: &body}
	case Redirect:
		return Message{RedirectURL: v.Location}
	case AuthRequired:
		return Message{AuthURL: v.LoginURL, SubjectKey: v.SubjectKey}
	case *FatalError:
		return Message{Error: v.Error()}
	case RetryableError:
		return Message{Error: "Service Unavailable"}
	default:
		return Message{Error: "unknown outcome"}
	}
}

// Requester runs a full request chain.
type Requester interface {
	Request(ctx context.Context, d Descriptor) Outcome
}

type Handler struct {
	req Requester
	log *slog.Logger
}

func NewHandler(r Requester, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{req: r, log: log}
}

// Handle answers one request. It always returns a message; nothing is
// swallowed.
func (h *Handler) Handle(ctx context.Context, req Request) Message {
	if req.Type != TypeGetSummary {
		h.log.LogAttrs(ctx, slog.LevelWarn, "unknown message type", slog.String("type", req.Type))
		return Message{Error: "unknown message type: " + req.Type}
	}
	key := strings.TrimSpace(req.SubjectKey)
	if key == "" {
		return Message{Error: "subject key not found"}
	}
	out := h.req.Request(ctx, Descriptor{SubjectKey: key, AuthRetry: req.AuthRetry})
	h.log.LogAttrs(ctx, slog.LevelInfo, "summary outcome",
		slog.String("subject_key", key),
		slog.Bool("auth_retry", req.AuthRetry),
		slog.String("outcome", OutcomeName(out)))
	return MessageFor(out)
}

// Dispatch runs Handle on its own goroutine. The channel delivers exactly
// one message and is then closed.
func (h *Handler) Dispatch(ctx context.Context, req Request) <-chan Message {
	ch := make(chan Message, 1)
	go func() {
		defer close(ch)
		ch <- h.Handle(ctx, req)
	}()
	return ch
}

// maxRequestLine bounds one request line in Serve.
const maxRequestLine = 1 << 20

// Serve reads requests as JSON lines from r and writes one JSON line reply
// per request to w, in order. Malformed or oversized lines get an error
// reply and serving continues.
func (h *Handler) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	enc := json.NewEncoder(w)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, tooLong, readErr := readLine(br, maxRequestLine)
		text := strings.TrimSpace(string(line))
		if tooLong || text != "" {
			if err := enc.Encode(h.answerLine(ctx, text, tooLong)); err != nil {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func (h *Handler) answerLine(ctx context.Context, text string, tooLong bool) Message {
	if tooLong {
		return Message{Error: "malformed request: line too long"}
	}
	var req Request
	if err := json.Unmarshal([]byte(text), &req); err != nil {
		return Message{Error: "malformed request: " + err.Error()}
	}
	return h.Handle(ctx, req)
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed to its end and reported as tooLong with no content.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, isPrefix, rerr := br.ReadLine()
		if rerr != nil {
			return line, tooLong, rerr
		}
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if !isPrefix {
			return line, tooLong, nil
		}
	}
}
