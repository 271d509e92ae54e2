package engine

import (
	"sort"
	"time"

	"sentinelforge/internal/model"
)

type sourceGroup struct {
	sourceID   string
	timestamps []time.Time
}

// groupFailures collects failed-attempt timestamps per source, keeping sources
// in order of first appearance. The timestamp slices are fresh copies.
func groupFailures(events []model.Event) []*sourceGroup {
	index := make(map[string]int)
	groups := make([]*sourceGroup, 0)
	for _, ev := range events {
		if ev.Outcome != model.OutcomeFail {
			continue
		}
		i, ok := index[ev.SourceID]
		if !ok {
			i = len(groups)
			index[ev.SourceID] = i
			groups = append(groups, &sourceGroup{sourceID: ev.SourceID})
		}
		groups[i].timestamps = append(groups[i].timestamps, ev.Timestamp)
	}
	return groups
}

// scanGroup finds the earliest start index whose forward window holds at
// least FailureThreshold attempts. The window upper bound is inclusive.
func scanGroup(cfg Config, g *sourceGroup) (model.Alert, bool) {
	ts := g.timestamps
	if len(ts) < cfg.FailureThreshold {
		return model.Alert{}, false
	}
	sort.SliceStable(ts, func(i, j int) bool {
		return ts[i].Before(ts[j])
	})

	span := cfg.window()
	end := 0
	for start := range ts {
		if end < start {
			end = start
		}
		bound := ts[start].Add(span)
		// end only moves forward: the bound grows with start.
		for end < len(ts) && !ts[end].After(bound) {
			end++
		}
		count := end - start
		if count >= cfg.FailureThreshold {
			return newAlert(cfg, g.sourceID, ts[start], ts[end-1], count), true
		}
	}
	return model.Alert{}, false
}
