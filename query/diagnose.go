package query

import (
	"fmt"
	"sort"
	"strings"
)

// Diagnose scans all cached raw payloads for known failure signatures,
// regardless of correlation id, and returns the distinct reasons joined by
// "; ". Checked signatures:
//
//   - base_01/*/transport/response with success=false
//   - master/logs/execute_planned_path mentioning "Transport failed"
//   - master/logs/search_for_box_in_starting_module_workspace mentioning
//     "No box found"
func (t *Tools) Diagnose() (string, error) {
	type entry struct {
		topic   string
		payload map[string]any
	}
	var entries []entry
	t.store.Range(func(topic string, payload map[string]any) bool {
		entries = append(entries, entry{topic, payload})
		return true
	})
	// Stable output regardless of map iteration order.
	sort.Slice(entries, func(i, j int) bool { return entries[i].topic < entries[j].topic })

	var reasons []string
	seen := make(map[string]struct{})
	add := func(r string) {
		if _, dup := seen[r]; dup {
			return
		}
		seen[r] = struct{}{}
		reasons = append(reasons, r)
	}

	for _, e := range entries {
		switch {
		case strings.HasPrefix(e.topic, "base_01/") && strings.HasSuffix(e.topic, "/transport/response"):
			if success, ok := e.payload["success"].(bool); ok && !success {
				add(fmt.Sprintf("Transport failure reported in %s.", e.topic))
			}
		case e.topic == "master/logs/execute_planned_path":
			if msg, _ := e.payload["message"].(string); strings.Contains(msg, "Transport failed") {
				add("Transport failed at a module during execution.")
			}
		case e.topic == "master/logs/search_for_box_in_starting_module_workspace":
			if msg, _ := e.payload["message"].(string); strings.Contains(msg, "No box found") {
				add("No box found in starting module workspace.")
			}
		}
	}

	if len(reasons) == 0 {
		return "", fmt.Errorf("no known failure messages in relevant topics: %w", ErrNotFound)
	}
	return strings.Join(reasons, "; "), nil
}
