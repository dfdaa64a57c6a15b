package viewer

import (
	"context"
	"os/exec"
	"runtime"
)

// Opener hands a URL to something that can show it, such as a browser.
type Opener interface {
	Open(url string) error
}

type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error { return f(url) }

// NopOpener leaves opening to the user; the message on the surface still
// carries the link.
type NopOpener struct{}

func (NopOpener) Open(string) error { return nil }

// BrowserOpener starts the platform's URL handler.
type BrowserOpener struct {
	Ctx context.Context
}

func (b BrowserOpener) Open(url string) error {
	ctx := b.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	name, args := browserCommand(runtime.GOOS)
	cmd := exec.CommandContext(ctx, name, append(args, url)...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func browserCommand(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return "xdg-open", nil
	}
}
