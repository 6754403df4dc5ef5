package model

import (
	"strings"
	"time"
)

type TriggerMode string

const (
	TriggerScheduled TriggerMode = "scheduled"
	TriggerManual    TriggerMode = "manual"
)

func (m TriggerMode) String() string { return string(m) }

// ParseTriggerMode normalizes input; empty => manual.
func ParseTriggerMode(s string) (TriggerMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual":
		return TriggerManual, true
	case "scheduled", "cron":
		return TriggerScheduled, true
	default:
		return TriggerManual, false
	}
}

// RunSummary is the outcome of one broadcast run. Succeeded+Failed == Attempted.
type RunSummary struct {
	RunID      string      `json:"runId"`
	Mode       TriggerMode `json:"mode"`
	Message    string      `json:"message,omitempty"`
	Attempted  int         `json:"attempted"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
}
