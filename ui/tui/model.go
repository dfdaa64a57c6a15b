package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"worksummary/internal/eventlog"
	"worksummary/internal/reveal"
	"worksummary/internal/viewer"
)

type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlayQuitConfirm
)

func (o overlay) String() string {
	switch o {
	case overlayNone:
		return "none"
	case overlayHelp:
		return "help"
	case overlayQuitConfirm:
		return "quit_confirm"
	default:
		return "unknown"
	}
}

type appConfig struct {
	ctx           context.Context
	stateDir      string
	sessionID     string
	applicationV  string
	summaryURL    string
	commandsPath  string
	responsesPath string

	client    viewer.Client
	scheduler *reveal.Scheduler
	opener    viewer.Opener
	log       *slog.Logger
}

type appModel struct {
	cfg appConfig
	th  theme

	width  int
	height int

	sessionID string

	overlays []overlay

	input textinput.Model
	spin  spinner.Model
	vp    viewport.Model

	svc    *viewer.Service
	styles reveal.Styles

	alerts         []eventlog.Alert
	recentCommands []string
	requests       int
	lastOutcome    string

	events *eventlog.Logger
	log    *slog.Logger

	now              time.Time
	commandBusPath   string
	commandBusOffset int64
	responsesPath    string
	actionSource     string // tui|cli
	quitRequested    bool
}

func newAppModel(cfg appConfig) appModel {
	if cfg.ctx == nil {
		cfg.ctx = context.Background()
	}
	if cfg.log == nil {
		cfg.log = slog.Default()
	}
	th := defaultTheme()
	events := eventlog.New(cfg.stateDir, cfg.sessionID)

	in := textinput.New()
	in.Prompt = "Key: "
	in.Placeholder = "ABC-123"
	in.CharLimit = 64
	in.PromptStyle = th.Accent
	in.TextStyle = th.Input
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = th.Accent

	m := appModel{
		cfg:            cfg,
		th:             th,
		sessionID:      cfg.sessionID,
		input:          in,
		spin:           sp,
		vp:             viewport.New(72, 12),
		styles:         th.revealStyles(),
		alerts:         []eventlog.Alert{},
		recentCommands: []string{},
		events:         events,
		log:            cfg.log,
		commandBusPath: cfg.commandsPath,
		responsesPath:  cfg.responsesPath,
		actionSource:   "tui",
	}
	m.svc = viewer.New(cfg.client, cfg.scheduler,
		viewer.WithOpener(cfg.opener),
		viewer.WithLogger(cfg.log),
		viewer.WithEvents(events))
	m.commandBusOffset = initCommandBus(cfg.commandsPath)
	initResponseBus(cfg.responsesPath)
	m = m.layout()
	m.systemAlert(eventlog.SeverityInfo, "worksummary.started", "Summary viewer started", nil)
	return m
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), textinput.Blink)
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch t := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = t.Width
		m.height = t.Height
		m = m.layout()
		m = m.refreshViewport()
		return m, nil
	case viewer.ResponseMsg:
		current := t.ID != "" && t.ID == m.svc.RequestID()
		cmd := m.svc.Resolve(t)
		if current {
			m = m.recordOutcome(t)
		}
		m = m.refreshViewport()
		return m, cmd
	case reveal.TickMsg:
		cmd, _ := m.svc.Update(t)
		m = m.refreshViewport()
		return m, cmd
	case spinner.TickMsg:
		if m.svc.Phase() != viewer.PhaseLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(t)
		return m, cmd
	case time.Time:
		return m.onTick(t)
	case tea.KeyMsg:
		if t.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if t.String() == "esc" {
			return m.handleEsc()
		}
		switch m.currentOverlay() {
		case overlayQuitConfirm:
			return m.updateQuitConfirm(t)
		case overlayHelp:
			m = m.closeOverlay()
			return m, nil
		}
		switch t.Type {
		case tea.KeyEnter:
			return m.submit(m.input.Value())
		case tea.KeyF1:
			m = m.openOverlay(overlayHelp)
			return m, nil
		case tea.KeyUp, tea.KeyDown, tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(t)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return t })
}

// submit asks for the summary of key. The returned command batches the
// request with the loading spinner.
func (m appModel) submit(raw string) (appModel, tea.Cmd) {
	key := strings.TrimSpace(raw)
	m.emitEvent("ui.submit", m.actionSource, map[string]any{"subject_key": key}, "", "")

	wasLoading := m.svc.Phase() == viewer.PhaseLoading
	req := m.svc.Trigger(m.cfg.ctx, key)
	m = m.refreshViewport()
	if req == nil {
		m.systemAlert(eventlog.SeverityWarn, "summary.invalid_key", "Subject key not found", nil)
		return m, nil
	}

	m.requests++
	m.recentCommands = append(m.recentCommands, key)
	if len(m.recentCommands) > 20 {
		m.recentCommands = m.recentCommands[len(m.recentCommands)-20:]
	}
	if wasLoading {
		return m, req
	}
	return m, tea.Batch(req, m.spin.Tick)
}

func (m appModel) recordOutcome(t viewer.ResponseMsg) appModel {
	phase := m.svc.Phase()
	m.lastOutcome = phase.String()

	ctx := map[string]any{"subject_key": t.Key}
	switch phase {
	case viewer.PhaseSummary:
		m.systemAlert(eventlog.SeverityInfo, "summary.ready", "Summary received", ctx)
	case viewer.PhaseAuth:
		m.systemAlert(eventlog.SeverityWarn, "summary.auth_required", "Sign in, then request the summary again", ctx)
	case viewer.PhaseRedirect:
		m.systemAlert(eventlog.SeverityWarn, "summary.redirect", "Request was redirected", ctx)
	case viewer.PhaseError:
		ctx["error"] = m.svc.LastError()
		m.systemAlert(eventlog.SeverityError, "summary.failed", "Summary request failed", ctx)
	}

	r := summaryResponse{
		CorrelationID: t.ID,
		SubjectKey:    t.Key,
		Phase:         phase.String(),
		At:            time.Now().UTC().Format(time.RFC3339Nano),
	}
	if t.Reply != nil {
		r.Reply = *t.Reply
	}
	if err := appendSummaryResponse(m.responsesPath, r); err != nil {
		m.log.LogAttrs(m.cfg.ctx, slog.LevelWarn, "append summary response failed", slog.String("error", err.Error()))
	}
	return m
}

func (m appModel) refreshViewport() appModel {
	doc := m.svc.Document()
	if doc == nil {
		return m
	}
	m.vp.SetContent(doc.Render(m.styles, m.vp.Width))
	if m.svc.Revealing() {
		m.vp.GotoBottom()
	}
	return m
}

func (m appModel) layout() appModel {
	w, h := m.effectiveSize()
	m.vp.Width = max(10, w-8)
	m.vp.Height = max(3, h-10)
	m.input.Width = max(10, w-12)
	return m
}

func (m appModel) currentOverlay() overlay {
	if len(m.overlays) == 0 {
		return overlayNone
	}
	return m.overlays[len(m.overlays)-1]
}

func (m appModel) openOverlay(o overlay) appModel {
	m.overlays = append(m.overlays, o)
	m.emitEvent("ui.overlay.open", m.actionSource, map[string]any{"overlay": o.String(), "depth": len(m.overlays)}, "", "")
	return m
}

func (m appModel) closeOverlay() appModel {
	if len(m.overlays) == 0 {
		return m
	}
	popped := m.overlays[len(m.overlays)-1]
	m.overlays = m.overlays[:len(m.overlays)-1]
	m.emitEvent("ui.overlay.close", m.actionSource, map[string]any{"overlay": popped.String(), "depth": len(m.overlays)}, "", "")
	return m
}

func (m appModel) closeAllOverlays() appModel {
	for len(m.overlays) > 0 {
		m = m.closeOverlay()
	}
	return m
}

func (m appModel) handleEsc() (tea.Model, tea.Cmd) {
	// Priority:
	// 1) Close top overlay
	// 2) Abandon the pending request or running reveal
	// 3) Clear the input
	// 4) Quit confirmation
	if m.currentOverlay() != overlayNone {
		m = m.closeOverlay()
		return m, nil
	}
	if m.svc.Pending() || m.svc.Revealing() {
		m.svc.Close()
		m = m.refreshViewport()
		m.systemAlert(eventlog.SeverityInfo, "summary.cancelled", "Display cleared", nil)
		m.emitEvent("command.cancel.requested", m.actionSource, map[string]any{"kind": "summary"}, "", "")
		return m, nil
	}
	if m.input.Value() != "" {
		m.input.Reset()
		return m, nil
	}
	m = m.openOverlay(overlayQuitConfirm)
	return m, nil
}

func (m appModel) updateQuitConfirm(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(k.String()) {
	case "y", "enter":
		m.quitRequested = true
		return m, tea.Quit
	default:
		m = m.closeOverlay()
		return m, nil
	}
}

func (m appModel) emitEvent(eventType string, source string, payload any, correlationID string, causationID string) {
	if m.events == nil {
		return
	}
	m.events.Append(source, eventType, payload, correlationID, causationID)
}

func (m *appModel) systemAlert(sev eventlog.Severity, code string, message string, context map[string]any) {
	a := eventlog.NewAlert(sev, code, message, context)
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > 50 {
		m.alerts = m.alerts[len(m.alerts)-50:]
	}
	m.emitEvent("system.alert", "system", map[string]any{
		"severity":       string(sev),
		"code":           code,
		"message":        message,
		"context":        context,
		"correlation_id": a.CorrelationID,
	}, a.CorrelationID, "")
}

func (m appModel) onTick(now time.Time) (tea.Model, tea.Cmd) {
	m.now = now

	var busCmd tea.Cmd
	m, busCmd = m.consumeCommandBus()
	if m.quitRequested {
		return m, tea.Quit
	}
	if busCmd == nil {
		return m, tickCmd()
	}
	return m, tea.Batch(tickCmd(), busCmd)
}

func (m appModel) View() string {
	w, h := m.effectiveSize()
	// If the terminal is extremely small, render a stable hint instead of a broken layout.
	if w < 20 || h < 8 {
		return m.viewTooSmall(w, h)
	}

	inner := w - 4
	lines := []string{
		renderHeader(m.th, m.cfg.applicationV, m.cfg.summaryURL, m.sessionID),
		"",
		m.input.View(),
		m.viewStatus(inner),
		m.th.Panel.Width(max(1, w-6)).Render(m.vp.View()),
		m.viewLastAlert(inner),
		m.th.Muted.Render(truncate("[Enter] Summarize    [Up/Down/PgUp/PgDn] Scroll    [F1] Help    [Esc] Back", inner)),
	}
	frame := m.th.Frame
	if w >= 4 {
		frame = frame.Width(w - 2)
	}
	base := frame.Render(strings.Join(lines, "\n"))

	switch m.currentOverlay() {
	case overlayHelp:
		return renderOverlay(m.th, base, m.viewHelp())
	case overlayQuitConfirm:
		return renderOverlay(m.th, base, m.viewQuitConfirm())
	default:
		return base
	}
}

func (m appModel) viewStatus(width int) string {
	switch m.svc.Phase() {
	case viewer.PhaseLoading:
		return m.spin.View() + " " + m.th.Accent.Render(truncate("Requesting summary for "+m.svc.PendingKey(), width-2))
	case viewer.PhaseSummary:
		if m.svc.Revealing() {
			return m.th.Accent.Render("Receiving summary...")
		}
		return m.th.Success.Render("Summary ready")
	case viewer.PhaseAuth:
		return m.th.Alert.Render(truncate("Sign-in required for "+m.svc.PromptedKey()+"; press Enter again after signing in", width))
	case viewer.PhaseRedirect:
		return m.th.Alert.Render("Redirected")
	case viewer.PhaseError:
		return m.th.Danger.Render("Error")
	default:
		return m.th.Muted.Render(truncate("Enter a work item key and press Enter", width))
	}
}

func (m appModel) viewLastAlert(width int) string {
	if len(m.alerts) == 0 {
		return ""
	}
	a := m.alerts[len(m.alerts)-1]
	text := truncate(fmt.Sprintf("[%s] %s", a.Severity, a.Message), width)
	switch a.Severity {
	case eventlog.SeverityError:
		return m.th.Danger.Render(text)
	case eventlog.SeverityWarn:
		return m.th.Alert.Render(text)
	default:
		return m.th.Muted.Render(text)
	}
}

func (m appModel) viewHelp() string {
	lines := []string{
		m.th.Header.Render("HELP"),
		"Type a work item key (for example ABC-123) and press Enter.",
		"If sign-in is required, sign in with the link shown, then press Enter",
		"again with the same key.",
		"",
		m.th.Muted.Render("Esc while loading clears the display. Any key closes this help."),
	}
	return m.th.OverlayBox.Render(strings.Join(lines, "\n"))
}

func (m appModel) viewQuitConfirm() string {
	return m.th.OverlayBox.Render(m.th.Alert.Render("Quit?") + "  " + m.th.Muted.Render("[y/Enter] Yes    [any other key] No"))
}

func renderHeader(th theme, version string, endpoint string, sessionID string) string {
	line := fmt.Sprintf("WORK SUMMARY %s", version)
	if endpoint != "" {
		line += fmt.Sprintf(" [ %s ]", endpoint)
	}
	return th.Header.Render(line) + "\n" + th.Muted.Render(fmt.Sprintf("Session: %s", sessionID))
}

func renderOverlay(th theme, base string, overlay string) string {
	dim := th.Overlay.Render(base)
	return dim + "\n\n" + overlay
}

func (m appModel) effectiveSize() (int, int) {
	w := m.width
	h := m.height
	// Smoke runs and headless sessions may not deliver a WindowSizeMsg; assume a sane default.
	if w <= 0 {
		w = 80
	}
	if h <= 0 {
		h = 24
	}
	return w, h
}

func (m appModel) viewTooSmall(w, h int) string {
	lines := []string{
		m.th.Header.Render("WORK SUMMARY"),
		m.th.Alert.Render("Terminal too small"),
		m.th.Muted.Render(fmt.Sprintf("Minimum: 20x8. Current: %dx%d", w, h)),
		m.th.Muted.Render("Tip: resize the terminal window."),
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func nonEmpty(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
