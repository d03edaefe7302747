package applications

import (
	"log/slog"
	"strings"
	"time"
)

// CountByStatus counts records per known status. Unknown statuses are ignored
// rather than given a bucket of their own.
func CountByStatus(records []Record) StatusCounts {
	counts := make(StatusCounts, len(KnownStatuses))
	for _, st := range KnownStatuses {
		counts[st] = 0
	}
	for _, r := range records {
		st := Status(strings.ToLower(r.Status))
		if _, ok := counts[st]; ok {
			counts[st]++
		}
	}
	return counts
}

// CountByMonth buckets records by the month of their applied date, ignoring the
// year. Results are in calendar order and months without records are omitted.
// Records whose date does not parse are logged and skipped.
func CountByMonth(records []Record, log *slog.Logger) []MonthCount {
	if log == nil {
		log = slog.Default()
	}

	var buckets [12]int
	for _, r := range records {
		t, err := r.AppliedTime()
		if err != nil {
			log.Warn("skipping record in monthly counts", "id", r.ID, "error", err)
			continue
		}
		buckets[t.Month()-1]++
	}

	var out []MonthCount
	for i, n := range buckets {
		if n == 0 {
			continue
		}
		out = append(out, MonthCount{
			Month: monthLabel(time.Month(i + 1)),
			Count: n,
		})
	}
	return out
}

func monthLabel(m time.Month) string {
	return m.String()[:3]
}

// Summarize computes the dashboard headline numbers.
func Summarize(records []Record) Summary {
	counts := CountByStatus(records)
	s := Summary{
		Total:        len(records),
		Interviewing: counts[StatusInterviewing],
		Offered:      counts[StatusOffered],
		Rejected:     counts[StatusRejected],
		Pending:      counts[StatusApplied],
	}
	if known := counts.Total(); known > 0 {
		s.ResponseRate = (known - counts[StatusApplied]) * 100 / known
	}
	return s
}
