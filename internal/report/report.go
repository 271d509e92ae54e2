// Package report renders detection results for people (console) and for
// machines (JSON report file).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"sentinelforge/internal/model"
)

// ISOLayout is the timestamp format used in JSON reports.
const ISOLayout = "2006-01-02T15:04:05"

const ruleWidth = 60

// AlertRecord is the serialized form of an alert.
type AlertRecord struct {
	IP            string `json:"ip"`
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	Attempts      int    `json:"attempts"`
	WindowMinutes int    `json:"window_minutes"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

func Serialize(alerts []model.Alert) []AlertRecord {
	out := make([]AlertRecord, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, AlertRecord{
			IP:            a.SourceID,
			Type:          a.Category,
			Severity:      string(a.Severity),
			Attempts:      a.AttemptCount,
			WindowMinutes: a.WindowMinutes,
			StartTime:     a.WindowStart.Format(ISOLayout),
			EndTime:       a.WindowEnd.Format(ISOLayout),
		})
	}
	return out
}

func EncodeJSON(w io.Writer, alerts []model.Alert) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Serialize(alerts))
}

// WriteJSON writes the alerts to path, creating parent directories and
// replacing any previous report.
func WriteJSON(path string, alerts []model.Alert) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(Serialize(alerts), "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// Console prints the parse summary followed by one block per alert.
func Console(w io.Writer, parsed int, alerts []model.Alert) error {
	rule := strings.Repeat("=", ruleWidth)
	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "SentinelForge — Log Parsing Summary")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Total parsed log entries: %d\n\n", parsed)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "SentinelForge — Security Alerts")
	fmt.Fprintln(&b, rule)
	if len(alerts) == 0 {
		fmt.Fprintln(&b, "No brute-force activity detected.")
	}
	for _, a := range alerts {
		fmt.Fprintf(&b, "[%s] %s detected\n", a.Severity, a.Category)
		fmt.Fprintf(&b, "IP Address   : %s\n", a.SourceID)
		fmt.Fprintf(&b, "Attempts     : %d in %d minutes\n", a.AttemptCount, a.WindowMinutes)
		fmt.Fprintf(&b, "Time Window  : %s → %s\n",
			a.WindowStart.Format("2006-01-02 15:04:05"), a.WindowEnd.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(&b, strings.Repeat("-", ruleWidth))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
