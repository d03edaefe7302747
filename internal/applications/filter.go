package applications

import "strings"

// Filter returns the records matching both the free-text query and the status
// filter, in input order. The query is a case-insensitive substring match
// against company, position and status; a blank query matches everything.
// statusFilter is StatusAll (or empty) or a status compared case-insensitively.
func Filter(records []Record, query, statusFilter string) []Record {
	q := strings.ToLower(query)
	matchAllText := strings.TrimSpace(query) == ""
	matchAllStatus := statusFilter == "" || strings.EqualFold(statusFilter, StatusAll)

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !matchAllText && !matchesQuery(r, q) {
			continue
		}
		if !matchAllStatus && !strings.EqualFold(r.Status, statusFilter) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesQuery(r Record, q string) bool {
	return strings.Contains(strings.ToLower(r.Company), q) ||
		strings.Contains(strings.ToLower(r.Position), q) ||
		strings.Contains(strings.ToLower(r.Status), q)
}
