package applications

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"maestro/internal/connection"
	"maestro/internal/identity"
	"maestro/views/components"
	"maestro/views/models"
	"maestro/views/pages"
)

// Authenticator is the identity provider used by the login and signup forms
type Authenticator interface {
	Signup(ctx context.Context, email, password string) error
	Login(ctx context.Context, email, password string) (*identity.Tokens, error)
	Logout(ctx context.Context, accessToken string) error
}

// MailLinker starts the mailbox authorization round trip. Record stores that
// cannot scan email have none.
type MailLinker interface {
	AuthorizationURL(ctx context.Context) (string, error)
}

var (
	errNotConnected  = errors.New("email is not connected")
	errSyncThrottled = errors.New("an email sync ran recently, try again later")
)

const recentLimit = 5

type Handler struct {
	svc      *Service
	sessions *identity.Sessions
	auth     Authenticator
	linker   MailLinker
	log      *slog.Logger
}

// NewHandler wires the HTTP surface. auth may be nil when sessions are
// anonymous; linker may be nil when the record store has no email sync.
func NewHandler(svc *Service, sessions *identity.Sessions, auth Authenticator, linker MailLinker, log *slog.Logger) *Handler {
	return &Handler{svc: svc, sessions: sessions, auth: auth, linker: linker, log: log}
}

// --- REST API Handlers ---

// ListApplications handles GET /api/applications
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := h.svc.List(r.Context(), q.Get("q"), q.Get("status"))
	if h.expired(w, r, err) {
		return
	}
	if err != nil {
		h.log.Error("failed to list applications", "error", err)
		h.jsonError(w, "record store unavailable", http.StatusBadGateway)
		return
	}

	h.jsonResponse(w, records, http.StatusOK)
}

// CreateApplication handles POST /api/applications
func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	rec, err := h.svc.Create(r.Context(), input)
	if h.expired(w, r, err) {
		return
	}
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		h.jsonError(w, invalid.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("failed to create application", "error", err)
		h.jsonError(w, "record store unavailable", http.StatusBadGateway)
		return
	}

	h.jsonResponse(w, rec, http.StatusCreated)
}

type statsResponse struct {
	Counts  StatusCounts `json:"counts"`
	Months  []MonthCount `json:"months"`
	Summary Summary      `json:"summary"`
}

// Stats handles GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Dashboard(r.Context(), "", StatusAll)
	if h.expired(w, r, err) {
		return
	}
	if err != nil {
		h.log.Error("failed to load stats", "error", err)
		h.jsonError(w, "record store unavailable", http.StatusBadGateway)
		return
	}

	h.jsonResponse(w, statsResponse{
		Counts:  data.Counts,
		Months:  data.Months,
		Summary: data.Summary,
	}, http.StatusOK)
}

// Flow handles GET /api/flow
func (h *Handler) Flow(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Dashboard(r.Context(), "", StatusAll)
	if h.expired(w, r, err) {
		return
	}
	if err != nil {
		h.log.Error("failed to load flow", "error", err)
		h.jsonError(w, "record store unavailable", http.StatusBadGateway)
		return
	}

	h.jsonResponse(w, data.Flow, http.StatusOK)
}

// Sync handles POST /api/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	sess, ok := identity.SessionFrom(r)
	if !ok {
		h.jsonError(w, "not signed in", http.StatusUnauthorized)
		return
	}

	res, err := h.runSync(r.Context(), sess)
	if h.expired(w, r, err) {
		return
	}
	switch {
	case errors.Is(err, ErrSyncUnsupported):
		h.jsonError(w, err.Error(), http.StatusNotImplemented)
	case errors.Is(err, errNotConnected):
		h.jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, errSyncThrottled):
		h.jsonError(w, err.Error(), http.StatusTooManyRequests)
	case err != nil:
		h.jsonError(w, "email sync failed", http.StatusBadGateway)
	default:
		h.jsonResponse(w, res, http.StatusOK)
	}
}

// runSync only syncs from the connected state. A failed sync moves the
// connection to error so the user is asked to reconnect.
func (h *Handler) runSync(ctx context.Context, sess *identity.Session) (*SyncResult, error) {
	if h.linker == nil {
		return nil, ErrSyncUnsupported
	}
	if !sess.Conn.View().Connected() {
		return nil, errNotConnected
	}
	if !sess.AllowSync() {
		return nil, errSyncThrottled
	}

	res, err := h.svc.SyncEmails(ctx)
	if errors.Is(err, identity.ErrSessionExpired) {
		return nil, err
	}
	if err != nil {
		h.log.Error("email sync failed", "error", err)
		if ferr := sess.Conn.Fail(ctx, err); ferr != nil {
			h.log.Warn("failed to record sync failure", "error", ferr)
		}
		return nil, err
	}
	h.log.Info("email sync finished", "jobs", res.JobsProcessed)
	return res, nil
}

// --- Helper methods ---

func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// expired ends the session when the record store rejected its access token.
// Anonymous sessions have no token to renew, so the error is handled like
// any other store failure.
func (h *Handler) expired(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil || h.sessions.Anonymous() || !errors.Is(err, identity.ErrSessionExpired) {
		return false
	}
	h.log.Info("record store rejected access token", "path", r.URL.Path, "error", err)
	h.sessions.Expire(w, r)
	return true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		h.log.Error("failed to render page", "path", r.URL.Path, "error", err)
	}
}

// --- View model converters ---

var notices = map[string]string{
	"created":      "Application added.",
	"disconnected": "Email disconnected.",
}

var alerts = map[string]string{
	"sync_failed":    "Email sync failed. Reconnect your inbox and try again.",
	"sync_throttled": "An email sync ran recently. Please wait a minute before syncing again.",
	"not_connected":  "Connect your inbox before syncing.",
	"connect_failed": "Could not start the email connection. Please try again.",
	"unsupported":    "Email sync is not available with this record store.",
}

const loadError = "Couldn't load your applications. Please try again."

func (h *Handler) layout(r *http.Request, title string) models.Layout {
	q := r.URL.Query()
	l := models.Layout{
		Title:     title,
		Anonymous: h.sessions.Anonymous(),
		Flash:     notices[q.Get("notice")],
		Error:     alerts[q.Get("notice")],
	}
	if q.Get("notice") == "synced" {
		n, _ := strconv.Atoi(q.Get("n"))
		l.Flash = fmt.Sprintf("Email sync finished. %d new applications found.", n)
	}

	sess, ok := identity.SessionFrom(r)
	if !ok {
		return l
	}
	l.Email = sess.Principal().Email
	l.Connection = h.connectionView(sess.Conn.View())
	return l
}

var connectionLabels = map[string]string{
	connection.Disconnected: "Email not connected",
	connection.Connecting:   "Connecting…",
	connection.Connected:    "Email connected",
	connection.Failed:       "Connection error",
}

func (h *Handler) connectionView(v connection.View) models.ConnectionView {
	if h.linker == nil {
		return models.ConnectionView{State: "manual", Label: "Manual entry"}
	}
	return models.ConnectionView{
		State:     v.State,
		Label:     connectionLabels[v.State],
		Error:     v.Error,
		Since:     v.Since,
		CanSync:   v.Connected(),
		CanLink:   v.State == connection.Disconnected || v.State == connection.Failed,
		CanUnlink: v.State != connection.Disconnected,
		Available: true,
	}
}

func statusClass(status string) string {
	if st, ok := ParseStatus(status); ok {
		return "status-" + string(st)
	}
	return "status-unknown"
}

func (h *Handler) applicationViews(records []Record) []models.ApplicationView {
	views := make([]models.ApplicationView, len(records))
	for i, rec := range records {
		applied := rec.AppliedDate
		if t, err := rec.AppliedTime(); err == nil {
			applied = t.Format("Jan 2, 2006")
		}
		var notes string
		if strings.TrimSpace(rec.Notes) != "" {
			notes = h.svc.RenderMarkdown(rec.Notes)
		}
		views[i] = models.ApplicationView{
			ID:          rec.ID,
			Company:     rec.Company,
			Position:    rec.Position,
			Status:      rec.Status,
			StatusLabel: Status(strings.ToLower(rec.Status)).Label(),
			StatusClass: statusClass(rec.Status),
			Applied:     applied,
			Location:    rec.Location,
			Salary:      rec.Salary,
			JobURL:      rec.JobURL,
			NotesHTML:   notes,
		}
	}
	return views
}

func statCards(s Summary) []models.StatCard {
	return []models.StatCard{
		{Title: "Total Applications", Value: strconv.Itoa(s.Total)},
		{Title: "Interviews", Value: strconv.Itoa(s.Interviewing), Note: "in progress"},
		{Title: "Offers", Value: strconv.Itoa(s.Offered)},
		{Title: "Pending", Value: strconv.Itoa(s.Pending), Note: "awaiting response"},
		{Title: "Response Rate", Value: strconv.Itoa(s.ResponseRate) + "%"},
	}
}

func statusTabs(counts StatusCounts, all int, active string) []models.StatusTab {
	tabs := []models.StatusTab{{
		Value:  StatusAll,
		Label:  "All",
		Count:  all,
		Active: active == "" || strings.EqualFold(active, StatusAll),
	}}
	for _, st := range KnownStatuses {
		tabs = append(tabs, models.StatusTab{
			Value:  string(st),
			Label:  st.Label(),
			Count:  counts[st],
			Active: strings.EqualFold(active, string(st)),
		})
	}
	return tabs
}

func monthBars(months []MonthCount) []models.MonthBar {
	bars := make([]models.MonthBar, len(months))
	for i, m := range months {
		bars[i] = models.MonthBar{Label: m.Month, Count: m.Count}
	}
	return bars
}

func flowView(g FlowGraph) models.FlowView {
	v := models.FlowView{Empty: g.Empty}
	for _, n := range g.Nodes {
		v.Nodes = append(v.Nodes, models.FlowNodeView{ID: n.ID, Name: n.Name})
	}
	for _, e := range g.Edges {
		v.Edges = append(v.Edges, models.FlowEdgeView{Source: e.Source, Target: e.Target, Weight: e.Weight})
	}
	return v
}

// recent returns the newest records by applied date. Undated records sort
// last.
func recent(records []Record, n int) []Record {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Record) int {
		ta, errA := a.AppliedTime()
		tb, errB := b.AppliedTime()
		switch {
		case errA != nil && errB != nil:
			return 0
		case errA != nil:
			return 1
		case errB != nil:
			return -1
		}
		return tb.Compare(ta)
	})
	return sorted[:min(n, len(sorted))]
}

// --- HTMX Web Handlers ---

// LandingPage handles GET /
func (h *Handler) LandingPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.Get(r); ok && !h.sessions.Anonymous() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, pages.Landing(models.Layout{
		Title:     "Internship tracker",
		Anonymous: h.sessions.Anonymous(),
	}))
}

// LoginPage handles GET /login
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, pages.Login(models.AuthView{}))
}

// Login handles POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		h.render(w, r, http.StatusBadRequest, pages.Login(models.AuthView{
			Email: email,
			Error: "Email and password are required.",
		}))
		return
	}

	tok, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		h.log.Warn("login failed", "email", email, "error", err)
		status := http.StatusBadRequest
		if errors.Is(err, identity.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		}
		h.render(w, r, status, pages.Login(models.AuthView{Email: email, Error: identity.Message(err)}))
		return
	}

	p := tok.Principal(email, time.Now())
	h.sessions.Create(w, p)
	h.log.Info("user signed in", "user", p.UserID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// SignupPage handles GET /signup
func (h *Handler) SignupPage(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, pages.Signup(models.AuthView{}))
}

// Signup handles POST /signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		h.render(w, r, http.StatusBadRequest, pages.Signup(models.AuthView{
			Email: email,
			Error: "Email and password are required.",
		}))
		return
	}

	if err := h.auth.Signup(r.Context(), email, password); err != nil {
		h.log.Warn("signup failed", "email", email, "error", err)
		h.render(w, r, http.StatusBadRequest, pages.Signup(models.AuthView{Email: email, Error: identity.Message(err)}))
		return
	}

	h.render(w, r, http.StatusOK, pages.Signup(models.AuthView{
		Email:   email,
		Message: "Check your email for a confirmation link, then log in.",
	}))
}

// Logout handles POST /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Delete(w, r)
	if sess != nil && h.auth != nil && sess.Principal().AccessToken != "" {
		if err := h.auth.Logout(r.Context(), sess.Principal().AccessToken); err != nil {
			h.log.Warn("provider logout failed", "error", err)
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// DashboardPage handles GET /dashboard. The record store's mailbox
// authorization redirects back here with ?auth=success or ?auth=error.
func (h *Handler) DashboardPage(w http.ResponseWriter, r *http.Request) {
	if sess, ok := identity.SessionFrom(r); ok && h.linker != nil {
		h.completeConnect(r, sess)
	}

	l := h.layout(r, "Dashboard")
	data, err := h.svc.Dashboard(r.Context(), "", StatusAll)
	if h.expired(w, r, err) {
		return
	}
	if err != nil {
		h.log.Error("failed to load dashboard", "error", err)
		l.Error = loadError
		data = h.svc.Derive(nil, "", StatusAll)
	}

	h.render(w, r, http.StatusOK, pages.Dashboard(models.DashboardView{
		Layout:     l,
		Stats:      statCards(data.Summary),
		MonthChart: components.MonthChart(monthBars(data.Months)),
		FlowChart:  components.FlowChart(flowView(data.Flow)),
		Recent:     h.applicationViews(recent(data.Records, recentLimit)),
	}))
}

func (h *Handler) completeConnect(r *http.Request, sess *identity.Session) {
	ctx := r.Context()
	switch r.URL.Query().Get("auth") {
	case "success":
		if sess.Conn.Current() == connection.Connected {
			return
		}
		if err := sess.Conn.Established(ctx); err != nil {
			h.log.Warn("failed to mark email connected", "error", err)
		}
	case "error":
		cause := cmp.Or(r.URL.Query().Get("message"), "authorization was not completed")
		if err := sess.Conn.Fail(ctx, errors.New(cause)); err != nil {
			h.log.Warn("failed to record connection error", "error", err)
		}
	}
}

func (h *Handler) applicationsView(r *http.Request) (models.ApplicationsView, error) {
	q := r.URL.Query()
	query, status := q.Get("q"), q.Get("status")

	v := models.ApplicationsView{
		Layout: h.layout(r, "Applications"),
		Query:  query,
		Status: cmp.Or(status, StatusAll),
	}

	data, err := h.svc.Dashboard(r.Context(), query, status)
	if err != nil {
		h.log.Error("failed to list applications", "error", err)
		v.Error = loadError
		data = h.svc.Derive(nil, query, status)
	}

	v.Tabs = statusTabs(data.Counts, len(data.Records), status)
	v.Stats = statCards(data.Summary)
	v.Rows = h.applicationViews(data.Filtered)
	v.Total = len(data.Records)
	v.Filtered = len(data.Filtered) != len(data.Records)
	return v, err
}

// ApplicationsPage handles GET /dashboard/applications
func (h *Handler) ApplicationsPage(w http.ResponseWriter, r *http.Request) {
	v, err := h.applicationsView(r)
	if h.expired(w, r, err) {
		return
	}
	h.render(w, r, http.StatusOK, pages.Applications(v))
}

// ApplicationsFragment handles GET /fragments/applications (HTMX partial)
func (h *Handler) ApplicationsFragment(w http.ResponseWriter, r *http.Request) {
	v, err := h.applicationsView(r)
	if h.expired(w, r, err) {
		return
	}
	h.render(w, r, http.StatusOK, pages.ApplicationList(v))
}

var formFields = []string{"company", "position", "status", "applied_date", "location", "salary", "job_url", "notes"}

func statusOptions(selected string) []models.StatusTab {
	selected = cmp.Or(strings.ToLower(selected), string(StatusApplied))
	opts := make([]models.StatusTab, len(KnownStatuses))
	for i, st := range KnownStatuses {
		opts[i] = models.StatusTab{Value: string(st), Label: st.Label(), Active: string(st) == selected}
	}
	return opts
}

// NewApplicationPage handles GET /dashboard/applications/new
func (h *Handler) NewApplicationPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pages.NewApplication(models.FormView{
		Layout:   h.layout(r, "Add application"),
		Values:   map[string]string{},
		Statuses: statusOptions(""),
	}))
}

// SubmitApplication handles POST /dashboard/applications
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	values := make(map[string]string, len(formFields))
	for _, f := range formFields {
		values[f] = r.PostForm.Get(f)
	}

	_, err := h.svc.Create(r.Context(), CreateInput{
		Company:     values["company"],
		Position:    values["position"],
		Status:      values["status"],
		AppliedDate: values["applied_date"],
		Location:    values["location"],
		Salary:      values["salary"],
		JobURL:      values["job_url"],
		Notes:       values["notes"],
	})
	if err == nil {
		http.Redirect(w, r, "/dashboard/applications?notice=created", http.StatusSeeOther)
		return
	}
	if h.expired(w, r, err) {
		return
	}

	v := models.FormView{
		Layout:   h.layout(r, "Add application"),
		Values:   values,
		Statuses: statusOptions(values["status"]),
	}
	status := http.StatusBadRequest
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		v.Error = invalid.Error()
	} else {
		h.log.Error("failed to create application", "error", err)
		v.Error = "Couldn't save the application. Please try again."
		status = http.StatusBadGateway
	}
	h.render(w, r, status, pages.NewApplication(v))
}

// Connect handles GET /dashboard/connect. It starts the mailbox
// authorization and sends the browser to the provider.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	sess, ok := identity.SessionFrom(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if h.linker == nil {
		http.Redirect(w, r, "/dashboard?notice=unsupported", http.StatusSeeOther)
		return
	}

	// an abandoned round trip leaves the state at connecting; retrying is fine
	ctx := r.Context()
	if sess.Conn.Current() != connection.Connecting {
		if err := sess.Conn.Connect(ctx); err != nil {
			h.log.Warn("cannot start email connection", "state", sess.Conn.Current(), "error", err)
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
	}

	authURL, err := h.linker.AuthorizationURL(ctx)
	if h.expired(w, r, err) {
		return
	}
	if err != nil {
		h.log.Error("failed to get authorization URL", "error", err)
		if ferr := sess.Conn.Fail(ctx, err); ferr != nil {
			h.log.Warn("failed to record connection error", "error", ferr)
		}
		http.Redirect(w, r, "/dashboard?notice=connect_failed", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// SyncForm handles POST /dashboard/sync
func (h *Handler) SyncForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := identity.SessionFrom(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	res, err := h.runSync(r.Context(), sess)
	if h.expired(w, r, err) {
		return
	}
	notice := url.Values{}
	switch {
	case errors.Is(err, ErrSyncUnsupported):
		notice.Set("notice", "unsupported")
	case errors.Is(err, errNotConnected):
		notice.Set("notice", "not_connected")
	case errors.Is(err, errSyncThrottled):
		notice.Set("notice", "sync_throttled")
	case err != nil:
		notice.Set("notice", "sync_failed")
	default:
		notice.Set("notice", "synced")
		notice.Set("n", strconv.Itoa(res.JobsProcessed))
	}
	http.Redirect(w, r, "/dashboard?"+notice.Encode(), http.StatusSeeOther)
}

// Disconnect handles POST /dashboard/disconnect. It forgets the mailbox
// link for this session; records already synced stay.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	sess, ok := identity.SessionFrom(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if h.linker == nil {
		http.Redirect(w, r, "/dashboard?notice=unsupported", http.StatusSeeOther)
		return
	}
	if sess.Conn.Current() == connection.Disconnected {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	if err := sess.Conn.Disconnect(r.Context()); err != nil {
		h.log.Warn("cannot disconnect email", "state", sess.Conn.Current(), "error", err)
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.log.Info("email disconnected")
	http.Redirect(w, r, "/dashboard?notice=disconnected", http.StatusSeeOther)
}
