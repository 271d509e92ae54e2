package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"sentinelforge/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.EventFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

func ParseJSONMap(obj map[string]interface{}) *normalize.EventFields {
	values := make(map[string]string, len(obj))
	for key, val := range obj {
		if val == nil {
			continue
		}
		values[strings.ToLower(key)] = fmt.Sprint(val)
	}
	return &normalize.EventFields{
		Timestamp: firstNonEmpty(values, "timestamp", "time", "ts"),
		SourceID:  firstNonEmpty(values, "ip", "source", "src_ip", "source_ip"),
		Subject:   firstNonEmpty(values, "user", "username", "subject"),
		Outcome:   firstNonEmpty(values, "status", "outcome", "result"),
	}
}
