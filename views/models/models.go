package models

import (
	"time"

	"github.com/a-h/templ"
)

// ApplicationView is one table row
type ApplicationView struct {
	ID          string
	Company     string
	Position    string
	Status      string
	StatusLabel string
	StatusClass string
	Applied     string // "Mar 10"
	Location    string
	Salary      string
	JobURL      string
	// NotesHTML is rendered markdown and is written out unescaped
	NotesHTML   string
}

// StatusTab is one filter button with its count
type StatusTab struct {
	Value  string
	Label  string
	Count  int
	Active bool
}

// StatCard backs one headline number
type StatCard struct {
	Title string
	Value string
	Note  string
}

// ConnectionView describes the email connection for the header badge
type ConnectionView struct {
	State     string
	Label     string
	Error     string
	Since     time.Time
	CanSync   bool
	CanLink   bool
	CanUnlink bool
	Available bool // false when the record store cannot scan mail
}

// Layout carries what every dashboard page shares
type Layout struct {
	Title      string
	Email      string
	Anonymous  bool
	Connection ConnectionView
	Flash      string
	Error      string
}

// DashboardView is the overview page
type DashboardView struct {
	Layout
	Stats      []StatCard
	MonthChart templ.Component
	FlowChart  templ.Component
	Recent     []ApplicationView
}

// ApplicationsView is the list page and its HTMX fragment
type ApplicationsView struct {
	Layout
	Query    string
	Status   string
	Tabs     []StatusTab
	Stats    []StatCard
	Rows     []ApplicationView
	Total    int
	Filtered bool
}

// FormView is the new-application form
type FormView struct {
	Layout
	Values   map[string]string
	Statuses []StatusTab
}

// AuthView is the login/signup form
type AuthView struct {
	Title   string
	Action  string
	Email   string
	Error   string
	Message string
}

// FlowView is the flow graph handed to the chart
type FlowView struct {
	Empty bool
	Nodes []FlowNodeView
	Edges []FlowEdgeView
}

type FlowNodeView struct {
	ID   string
	Name string
}

type FlowEdgeView struct {
	Source string
	Target string
	Weight int
}

// MonthBar is one bar of the monthly chart
type MonthBar struct {
	Label string
	Count int
}
