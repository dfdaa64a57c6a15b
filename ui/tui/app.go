package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"worksummary/internal/config"
	"worksummary/internal/reveal"
	"worksummary/internal/viewer"
)

const applicationVersion = "v1.0.0"

func main() {
	var smoke bool
	var serve bool
	var sessionOverride string
	var configPath string
	flag.BoolVar(&smoke, "smoke", false, "run deterministic non-interactive smoke simulation against an in-process server")
	flag.BoolVar(&serve, "serve", false, "run headless command-bus driven session (for CLI/devops control)")
	flag.StringVar(&sessionOverride, "session-id", "", "override session id (for dev sessions)")
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	stateDir := cfg.StateDir

	sessionID := strings.TrimSpace(sessionOverride)
	if sessionID == "" {
		// Default behavior: start a new session unless explicitly asked to resume.
		if envBool("WORKSUMMARY_RESUME") {
			sid, _ := getOrCreateSessionID(stateDir)
			sessionID = sid
		} else {
			sid, _ := createNewSessionID(stateDir)
			_ = setCurrentSessionID(stateDir, sid)
			sessionID = sid
		}
	}

	log, closeLog := openSessionLog(stateDir, sessionID, cfg.Level())
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if smoke {
		outDir := os.Getenv("WORKSUMMARY_TUI_SMOKE_OUT_DIR")
		if strings.TrimSpace(outDir) == "" {
			outDir = filepath.Join(stateDir, "verify", "tui", fmt.Sprintf("run_%d", time.Now().UnixMilli()))
		}
		_ = os.MkdirAll(outDir, 0o755)
		report := runSmoke(ctx, stateDir, sessionID, log)
		_ = os.WriteFile(filepath.Join(outDir, "view.txt"), []byte(report.view+"\n"), 0o644)
		_ = os.WriteFile(filepath.Join(outDir, "summary.json"), []byte(report.json+"\n"), 0o644)
		writeSessionSummary(report.final)
		if !report.ok {
			fmt.Fprintln(os.Stderr, "tui-smoke-failed")
			os.Exit(1)
		}
		fmt.Println("tui-smoke-ok")
		return
	}

	var opener viewer.Opener = viewer.NopOpener{}
	if !serve && !envBool("WORKSUMMARY_NO_BROWSER") {
		opener = viewer.BrowserOpener{Ctx: ctx}
	}
	m := newAppModel(appConfig{
		ctx:           ctx,
		stateDir:      stateDir,
		sessionID:     sessionID,
		applicationV:  applicationVersion,
		summaryURL:    cfg.SummaryURL,
		commandsPath:  filepath.Join(stateDir, sessionID, "commands.jsonl"),
		responsesPath: filepath.Join(stateDir, sessionID, "summary.responses.jsonl"),
		client:        cfg.NewHandler(log),
		scheduler:     cfg.NewScheduler(),
		opener:        opener,
		log:           log,
	})

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if serve {
		opts = []tea.ProgramOption{
			tea.WithContext(ctx),
			tea.WithoutRenderer(),
			tea.WithInput(bytes.NewReader(nil)),
			tea.WithOutput(io.Discard),
		}
	}
	p := tea.NewProgram(m, opts...)
	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if am, ok := finalModel.(appModel); ok {
		am.svc.Close()
		writeSessionSummary(am)
	}
}

func envBool(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

// openSessionLog sends structured logs to <stateDir>/<session>/tui.log; the
// terminal belongs to the renderer.
func openSessionLog(stateDir string, sessionID string, level slog.Level) (*slog.Logger, func()) {
	dir := filepath.Join(stateDir, sessionID)
	_ = os.MkdirAll(dir, 0o755)
	f, err := os.OpenFile(filepath.Join(dir, "tui.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}
	}
	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})).
		With(slog.String("session", sessionID))
	return log, func() { _ = f.Close() }
}

type smokeReport struct {
	ok    bool
	view  string
	json  string
	final appModel
}

// smokeServer answers the first request with 401, the second with 503 and
// every later one with a summary.
func smokeServer() (*httptest.Server, func() []string) {
	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			JiraKey string `json:"jiraKey"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		keys = append(keys, body.JiraKey)
		n := len(keys)
		mu.Unlock()

		switch n {
		case 1:
			w.WriteHeader(http.StatusUnauthorized)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			text := "- Summary for " + body.JiraKey + "\n" +
				`Work is on track. See <a href="https://tracker.invalid/browse/` + body.JiraKey + `">the issue</a>.`
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"data": text})
		}
	}))
	seen := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), keys...)
	}
	return srv, seen
}

func runSmoke(ctx context.Context, stateDir string, sessionID string, log *slog.Logger) smokeReport {
	srv, seen := smokeServer()
	defer srv.Close()

	cfg := config.Default()
	cfg.SummaryURL = srv.URL
	cfg.AuthURL = srv.URL + "/login"
	cfg.RetryDelay = 20 * time.Millisecond
	cfg.RevealDelay = time.Millisecond

	m := newAppModel(appConfig{
		ctx:           ctx,
		stateDir:      stateDir,
		sessionID:     sessionID,
		applicationV:  applicationVersion,
		summaryURL:    cfg.SummaryURL,
		responsesPath: filepath.Join(stateDir, sessionID, "summary.responses.jsonl"),
		client:        cfg.NewHandler(log),
		scheduler:     cfg.NewScheduler(),
		opener:        viewer.NopOpener{},
		log:           log,
	})

	var model tea.Model = m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	// Empty submit reports a missing key without a request.
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	emptyKeyRejected := false
	if am, ok := model.(appModel); ok {
		emptyKeyRejected = am.svc.LastError() == "subject key not found" && len(seen()) == 0
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("SMOKE-1")})

	// First submit: 401 becomes a sign-in prompt.
	model, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = settle(model, cmd)
	authShown := false
	if am, ok := model.(appModel); ok {
		authShown = am.svc.Phase() == viewer.PhaseAuth && am.svc.PromptedKey() == "SMOKE-1"
	}

	// Second submit for the same key: 503, one retry, then the summary.
	model, cmd = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = settle(model, cmd)

	am, _ := model.(appModel)
	summaryShown := false
	if doc := am.svc.Document(); doc != nil {
		summaryShown = am.svc.Phase() == viewer.PhaseSummary &&
			!am.svc.Revealing() &&
			strings.HasPrefix(doc.String(), "Summary for SMOKE-1\nWork is on track. See the issue.")
	}
	requests := seen()
	ok := emptyKeyRejected && authShown && summaryShown && len(requests) == 3

	view := am.View()
	report := map[string]any{
		"version":          1,
		"ok":               ok,
		"sessionId":        am.sessionID,
		"phase":            am.svc.Phase().String(),
		"emptyKeyRejected": emptyKeyRejected,
		"authShown":        authShown,
		"summaryShown":     summaryShown,
		"requests":         len(requests),
		"alerts":           len(am.alerts),
	}
	b, _ := json.Marshal(report)
	return smokeReport{ok: ok, view: view, json: string(b), final: am}
}

// settle runs cmd and feeds summary replies and reveal ticks back into the
// model until nothing is left. Other messages are dropped.
func settle(model tea.Model, cmd tea.Cmd) tea.Model {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case viewer.ResponseMsg, reveal.TickMsg:
			var next tea.Cmd
			model, next = model.Update(msg)
			queue = append(queue, next)
		}
	}
	return model
}

func getOrCreateSessionID(stateDir string) (string, error) {
	currentPath := filepath.Join(stateDir, "state", "current.json")
	_ = os.MkdirAll(filepath.Dir(currentPath), 0o755)

	var current map[string]any
	if raw, err := os.ReadFile(currentPath); err == nil {
		_ = json.Unmarshal(raw, &current)
	}
	if current == nil {
		current = map[string]any{"schemaVersion": 1}
	}

	if v, ok := current["sessionId"].(string); ok && strings.TrimSpace(v) != "" {
		return v, nil
	}

	id := newSessionID()
	current["sessionId"] = id
	current["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
	b, _ := json.MarshalIndent(current, "", "  ")
	if err := os.WriteFile(currentPath, append(b, '\n'), 0o644); err != nil {
		return id, err
	}
	return id, nil
}

func createNewSessionID(stateDir string) (string, error) {
	id := newSessionID()
	// Ensure directory exists eagerly.
	_ = os.MkdirAll(filepath.Join(stateDir, id), 0o755)
	return id, nil
}

func setCurrentSessionID(stateDir string, sessionID string) error {
	currentPath := filepath.Join(stateDir, "state", "current.json")
	_ = os.MkdirAll(filepath.Dir(currentPath), 0o755)

	var current map[string]any
	if raw, err := os.ReadFile(currentPath); err == nil {
		_ = json.Unmarshal(raw, &current)
	}
	if current == nil {
		current = map[string]any{"schemaVersion": 1}
	}
	current["sessionId"] = sessionID
	current["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
	b, _ := json.MarshalIndent(current, "", "  ")
	return os.WriteFile(currentPath, append(b, '\n'), 0o644)
}

func newSessionID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "sess_" + hex.EncodeToString(buf)
}
