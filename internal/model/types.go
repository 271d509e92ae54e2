package model

import "time"

type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFail    Outcome = "FAIL"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

const CategoryBruteForce = "Brute Force"

// Event is one authentication attempt as produced by the parser.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	SourceID  string    `json:"ip"`
	Subject   string    `json:"user"`
	Outcome   Outcome   `json:"status"`
}

// Alert is a single brute-force finding. WindowStart and WindowEnd are the
// timestamps of the first and last counted attempt, inclusive.
type Alert struct {
	SourceID      string    `json:"ip"`
	Category      string    `json:"type"`
	Severity      Severity  `json:"severity"`
	AttemptCount  int       `json:"attempts"`
	WindowMinutes int       `json:"window_minutes"`
	WindowStart   time.Time `json:"start_time"`
	WindowEnd     time.Time `json:"end_time"`
}

// Run describes one detection pass over a batch of events.
type Run struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	Events        int       `json:"events"`
	Alerts        int       `json:"alerts"`
	Threshold     int       `json:"threshold"`
	WindowMinutes int       `json:"window_minutes"`
}

// SourceStats is a running per-source tally kept by the streaming pipeline.
type SourceStats struct {
	SourceID  string    `json:"ip"`
	Failures  int       `json:"failures"`
	Successes int       `json:"successes"`
	LastSeen  time.Time `json:"last_seen"`
}
