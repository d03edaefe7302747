package applications

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(status string, n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{Status: status, AppliedDate: "2025-01-15"}
	}
	return out
}

func scenarioRecords() []Record {
	var records []Record
	records = append(records, repeat("applied", 3)...)
	records = append(records, repeat("interviewing", 2)...)
	records = append(records, repeat("offered", 1)...)
	records = append(records, repeat("rejected", 4)...)
	return records
}

func TestCountByStatus(t *testing.T) {
	counts := CountByStatus(scenarioRecords())

	assert.Equal(t, StatusCounts{
		StatusApplied:      3,
		StatusInterviewing: 2,
		StatusOffered:      1,
		StatusRejected:     4,
	}, counts)
}

func TestCountByStatusUnknownIgnored(t *testing.T) {
	records := []Record{
		{Status: "Applied"},
		{Status: "ghosted"},
		{Status: ""},
		{Status: "REJECTED"},
	}

	counts := CountByStatus(records)

	require.Len(t, counts, 4)
	assert.Equal(t, 1, counts[StatusApplied])
	assert.Equal(t, 1, counts[StatusRejected])
	assert.Equal(t, 0, counts[StatusOffered])
	assert.LessOrEqual(t, counts.Total(), len(records))
	assert.Equal(t, 2, counts.Total())
}

func TestCountByStatusEmpty(t *testing.T) {
	counts := CountByStatus(nil)
	for _, st := range KnownStatuses {
		v, ok := counts[st]
		assert.True(t, ok, "bucket %s missing", st)
		assert.Zero(t, v)
	}
}

func TestCountByMonth(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	records := []Record{
		{ID: "a", AppliedDate: "2025-03-10"},
		{ID: "b", AppliedDate: "2024-03-01T12:00:00Z"},
		{ID: "c", AppliedDate: "2025-01-05T08:15:00.123456"},
		{ID: "d", AppliedDate: "2025-12-24"},
		{ID: "e", AppliedDate: "yesterday"},
		{ID: "f", AppliedDate: ""},
	}

	got := CountByMonth(records, log)

	assert.Equal(t, []MonthCount{
		{Month: "Jan", Count: 1},
		{Month: "Mar", Count: 2},
		{Month: "Dec", Count: 1},
	}, got)
	assert.Equal(t, 2, strings.Count(buf.String(), "skipping record in monthly counts"))
	assert.Contains(t, buf.String(), "id=e")
}

func TestCountByMonthOmitsEmptyMonths(t *testing.T) {
	got := CountByMonth(sampleRecords(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	for _, m := range got {
		assert.Positive(t, m.Count)
	}
	assert.Equal(t, []MonthCount{{Month: "Feb", Count: 2}, {Month: "Mar", Count: 1}}, got)
}

func TestCountByMonthNilLogger(t *testing.T) {
	assert.Empty(t, CountByMonth(nil, nil))
}

func TestSummarize(t *testing.T) {
	s := Summarize(scenarioRecords())

	assert.Equal(t, Summary{
		Total:        10,
		Interviewing: 2,
		Offered:      1,
		Rejected:     4,
		Pending:      3,
		ResponseRate: 70,
	}, s)

	assert.Equal(t, Summary{}, Summarize(nil))
}
