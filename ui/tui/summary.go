package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

func writeSessionSummary(m appModel) {
	if m.cfg.stateDir == "" || m.sessionID == "" {
		return
	}
	dir := filepath.Join(m.cfg.stateDir, m.sessionID)
	_ = os.MkdirAll(dir, 0o755)

	alerts := m.alerts
	if len(alerts) > 10 {
		alerts = alerts[len(alerts)-10:]
	}
	keys := m.recentCommands
	if len(keys) > 10 {
		keys = keys[len(keys)-10:]
	}

	out := map[string]any{
		"version":      1,
		"updatedAt":    time.Now().UTC().Format(time.RFC3339Nano),
		"sessionId":    m.sessionID,
		"endpoint":     m.cfg.summaryURL,
		"phase":        m.svc.Phase().String(),
		"lastOutcome":  nonEmpty(m.lastOutcome, "none"),
		"promptedKey":  m.svc.PromptedKey(),
		"requests":     m.requests,
		"recentKeys":   keys,
		"recentAlerts": alerts,
		"overlay":      m.currentOverlay().String(),
		"eventsPath":   m.events.Path(),
		"eventCount":   m.events.Count(),
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, "summary.json"), append(b, '\n'), 0o644)
}
