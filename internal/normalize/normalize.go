package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"sentinelforge/internal/model"
)

var (
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidSource    = errors.New("invalid source")
	ErrInvalidSubject   = errors.New("invalid subject")
	ErrInvalidOutcome   = errors.New("invalid outcome")
)

// EventFields holds the raw string values pulled out of one log record
// before validation.
type EventFields struct {
	Timestamp string
	SourceID  string
	Subject   string
	Outcome   string
	Raw       string
}

var (
	reSource  = regexp.MustCompile(`^[A-Za-z0-9.:_%\-]+$`)
	reSubject = regexp.MustCompile(`^[A-Za-z0-9_\-.@]+$`)
)

// Normalize validates fields and builds an Event. Any violation returns an
// error so the caller can drop the record.
func Normalize(fields EventFields, loc *time.Location) (model.Event, error) {
	if loc == nil {
		loc = time.UTC
	}
	ts, err := ParseTimestamp(fields.Timestamp, loc)
	if err != nil {
		return model.Event{}, err
	}
	source := strings.TrimSpace(fields.SourceID)
	if source == "" || !reSource.MatchString(source) {
		return model.Event{}, fmt.Errorf("%w: %q", ErrInvalidSource, fields.SourceID)
	}
	subject := strings.TrimSpace(fields.Subject)
	if subject == "" || !reSubject.MatchString(subject) {
		return model.Event{}, fmt.Errorf("%w: %q", ErrInvalidSubject, fields.Subject)
	}
	outcome, err := ParseOutcome(fields.Outcome)
	if err != nil {
		return model.Event{}, err
	}
	return model.Event{
		Timestamp: ts,
		SourceID:  source,
		Subject:   subject,
		Outcome:   outcome,
	}, nil
}

func ParseOutcome(value string) (model.Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "success", "succeeded", "ok":
		return model.OutcomeSuccess, nil
	case "fail", "failure", "failed":
		return model.OutcomeFail, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, value)
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05.000",
}

// ParseTimestamp accepts the layouts above. Values without a zone are read
// in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidTimestamp, value)
}
