package ingest

import (
	"encoding/csv"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"sentinelforge/internal/model"
	"sentinelforge/internal/normalize"
)

var (
	ErrBlankLine = errors.New("blank line")
	ErrMalformed = errors.New("malformed line")
)

// 2026-01-18 10:32:11 | IP=192.168.1.10 | user=admin | status=FAIL
var reAuthLine = regexp.MustCompile(
	`^(?P<timestamp>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})` +
		` \| IP=(?P<ip>[\d.]+)` +
		` \| user=(?P<user>[A-Za-z0-9_\-]+)` +
		` \| status=(?P<status>SUCCESS|FAIL)$`)

type Parser struct {
	loc *time.Location
	csv *CSVParser
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc, csv: NewCSVParser()}
}

// ParseLine extracts raw fields from one line. Blank lines and CSV header rows
// return nil fields and a nil error.
func (p *Parser) ParseLine(line string) (*normalize.EventFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if m := reAuthLine.FindStringSubmatch(trim); m != nil {
		return &normalize.EventFields{
			Timestamp: m[reAuthLine.SubexpIndex("timestamp")],
			SourceID:  m[reAuthLine.SubexpIndex("ip")],
			Subject:   m[reAuthLine.SubexpIndex("user")],
			Outcome:   m[reAuthLine.SubexpIndex("status")],
			Raw:       line,
		}, nil
	}
	if looksLikeJSON(trim) {
		fields, err := ParseJSONBytes([]byte(trim))
		if err != nil {
			return nil, ErrMalformed
		}
		fields.Raw = line
		return fields, nil
	}
	if strings.Contains(trim, ",") {
		fields, err := p.csv.Parse(trim)
		if err != nil {
			return nil, ErrMalformed
		}
		if fields == nil {
			return nil, nil
		}
		fields.Raw = line
		return fields, nil
	}
	return nil, ErrMalformed
}

// ParseEvent parses and validates one line. Lines that carry no record
// return ErrBlankLine.
func (p *Parser) ParseEvent(line string) (model.Event, error) {
	fields, err := p.ParseLine(line)
	if err != nil {
		return model.Event{}, err
	}
	if fields == nil {
		return model.Event{}, ErrBlankLine
	}
	return normalize.Normalize(*fields, p.loc)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

type CSVParser struct {
	mu     sync.Mutex
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.EventFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	fields := &normalize.EventFields{}
	if p.header != nil {
		for i, name := range p.header {
			if i >= len(record) {
				break
			}
			assignField(fields, name, record[i])
		}
		return fields, nil
	}
	if len(record) != 4 {
		return nil, ErrMalformed
	}
	fields.Timestamp = record[0]
	fields.SourceID = record[1]
	fields.Subject = record[2]
	fields.Outcome = record[3]
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "timestamp", "time", "ts", "ip", "source", "src_ip", "user", "username", "subject", "status", "outcome", "result":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func assignField(fields *normalize.EventFields, name string, value string) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "timestamp", "time", "ts":
		fields.Timestamp = value
	case "ip", "source", "src_ip", "source_ip":
		fields.SourceID = value
	case "user", "username", "subject":
		fields.Subject = value
	case "status", "outcome", "result":
		fields.Outcome = value
	}
}
