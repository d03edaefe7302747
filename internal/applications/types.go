package applications

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle stage of an application
type Status string

const (
	StatusApplied      Status = "applied"
	StatusInterviewing Status = "interviewing"
	StatusOffered      Status = "offered"
	StatusRejected     Status = "rejected"
)

// StatusAll is the filter sentinel that matches every status
const StatusAll = "all"

// KnownStatuses lists the bucketed statuses in display order
var KnownStatuses = []Status{StatusApplied, StatusInterviewing, StatusOffered, StatusRejected}

// ParseStatus normalizes s and reports whether it is one of the known statuses.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusApplied, StatusInterviewing, StatusOffered, StatusRejected:
		return st, true
	}
	return st, false
}

// Label returns the capitalized display form
func (s Status) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Record is one tracked application as returned by the record store.
// Status is kept verbatim so unknown values still display.
type Record struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id,omitempty"`
	Company     string `json:"company"`
	Position    string `json:"position"`
	Status      string `json:"status"`
	AppliedDate string `json:"applied_date"`
	Location    string `json:"location,omitempty"`
	Salary      string `json:"salary,omitempty"`
	JobURL      string `json:"job_url,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// AppliedTime parses AppliedDate.
func (r Record) AppliedTime() (time.Time, error) {
	s := strings.TrimSpace(r.AppliedDate)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable applied date %q", r.AppliedDate)
}

// StatusCounts maps each known status to its record count
type StatusCounts map[Status]int

// Total sums the known buckets.
func (c StatusCounts) Total() int {
	n := 0
	for _, st := range KnownStatuses {
		n += c[st]
	}
	return n
}

// MonthCount is one bar of the monthly chart
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Summary backs the dashboard stats cards
type Summary struct {
	Total        int `json:"total"`
	Interviewing int `json:"interviewing"`
	Offered      int `json:"offered"`
	Rejected     int `json:"rejected"`
	Pending      int `json:"pending"`
	ResponseRate int `json:"responseRate"` // percent
}

// CreateInput is the input for creating an application
type CreateInput struct {
	Company     string `json:"company" validate:"required,max=200"`
	Position    string `json:"position" validate:"required,max=200"`
	Status      string `json:"status" validate:"omitempty,oneof=applied interviewing offered rejected"`
	AppliedDate string `json:"applied_date" validate:"omitempty,applieddate"`
	Location    string `json:"location,omitempty" validate:"max=200"`
	Salary      string `json:"salary,omitempty" validate:"max=100"`
	JobURL      string `json:"job_url,omitempty" validate:"omitempty,url"`
	Notes       string `json:"notes,omitempty" validate:"max=10000"`
}

// SyncResult reports what an email sync added
type SyncResult struct {
	Message       string `json:"message"`
	JobsProcessed int    `json:"jobs_processed"`
}
