package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"worksummary/internal/summary"
)

// summaryResponse is appended to the response bus for every reply that
// reached the display, so a headless driver can follow a serve session.
type summaryResponse struct {
	Version       int             `json:"version"`
	Type          string          `json:"type"` // summary.result
	CorrelationID string          `json:"correlationId"`
	SubjectKey    string          `json:"subjectKey"`
	Phase         string          `json:"phase"`
	Reply         summary.Message `json:"reply"`
	At            string          `json:"at,omitempty"`
}

func initResponseBus(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	if _, err := os.Stat(path); err != nil {
		_ = os.WriteFile(path, []byte{}, 0o644)
	}
}

func appendSummaryResponse(path string, r summaryResponse) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if r.Version == 0 {
		r.Version = 1
	}
	if r.Type == "" {
		r.Type = "summary.result"
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}
