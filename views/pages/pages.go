package pages

import (
	"context"
	"net/url"

	"github.com/a-h/templ"

	"maestro/views/models"
)

func Landing(v models.Layout) templ.Component {
	return component(func(ctx context.Context, h *html) {
		docOpen(h, v.Title)
		h.raw(`<main class="landing">` + "\n<h1>Maestro</h1>\n")
		h.raw("<p>Track every internship application in one place. Maestro reads your inbox, files each application, and shows where your search stands.</p>\n")
		h.raw(`<div class="actions">`)
		if v.Anonymous {
			h.raw(`<a class="button primary" href="/dashboard">Open dashboard</a>`)
		} else {
			h.raw(`<a class="button primary" href="/signup">Get started</a> <a class="button" href="/login">Log in</a>`)
		}
		h.raw("</div>\n</main>\n")
		docClose(h)
	})
}

func Login(v models.AuthView) templ.Component {
	v.Title, v.Action = "Log in", "/login"
	return authForm(v)
}

func Signup(v models.AuthView) templ.Component {
	v.Title, v.Action = "Sign up", "/signup"
	return authForm(v)
}

func authForm(v models.AuthView) templ.Component {
	return component(func(ctx context.Context, h *html) {
		docOpen(h, v.Title)
		h.raw(`<main class="auth">` + "\n<h1>")
		h.text(v.Title)
		h.raw("</h1>\n")
		banner(h, "error", v.Error)
		banner(h, "flash", v.Message)
		h.raw(`<form method="post" action="`)
		h.text(v.Action)
		h.raw(`">` + "\n")
		h.raw(`<label>Email <input type="email" name="email" value="`)
		h.text(v.Email)
		h.raw(`" required autofocus></label>` + "\n")
		h.raw(`<label>Password <input type="password" name="password" required minlength="6"></label>` + "\n")
		h.raw(`<button class="primary" type="submit">`)
		h.text(v.Title)
		h.raw("</button>\n</form>\n")
		if v.Action == "/login" {
			h.raw(`<p>No account yet? <a href="/signup">Sign up</a></p>`)
		} else {
			h.raw(`<p>Already registered? <a href="/login">Log in</a></p>`)
		}
		h.raw("\n</main>\n")
		docClose(h)
	})
}

func Dashboard(v models.DashboardView) templ.Component {
	return component(dashboardPage(v.Layout, func(ctx context.Context, h *html) {
		statCards(h, v.Stats)
		h.raw(`<section class="charts">` + "\n")
		h.raw(`<div class="panel"><h2>Applications per month</h2>`)
		h.render(ctx, v.MonthChart)
		h.raw("</div>\n")
		h.raw(`<div class="panel wide"><h2>Application flow</h2>`)
		h.render(ctx, v.FlowChart)
		h.raw("</div>\n</section>\n")
		h.raw(`<section class="panel">` + "\n")
		h.raw(`<h2>Recent applications <a class="more" href="/dashboard/applications">View all</a></h2>` + "\n")
		applicationTable(h, v.Recent)
		h.raw("</section>\n")
	}))
}

func Applications(v models.ApplicationsView) templ.Component {
	return component(dashboardPage(v.Layout, func(ctx context.Context, h *html) {
		h.raw(`<section class="toolbar">` + "\n")
		h.raw(`<input type="search" name="q" value="`)
		h.text(v.Query)
		h.raw(`" placeholder="Search company, position or status" hx-get="/fragments/applications" hx-trigger="input changed delay:300ms, search" hx-target="#application-list" hx-include="[name='status']">` + "\n")
		h.raw(`<input type="hidden" name="status" value="`)
		h.text(v.Status)
		h.raw(`">` + "\n")
		h.raw(`<a class="button primary" href="/dashboard/applications/new">Add application</a>` + "\n")
		h.raw("</section>\n")

		h.raw(`<nav class="tabs">` + "\n")
		for _, t := range v.Tabs {
			h.raw(`<a class="tab`)
			if t.Active {
				h.raw(" active")
			}
			h.raw(`" href="`)
			h.url("/dashboard/applications?" + url.Values{"status": {t.Value}, "q": {v.Query}}.Encode())
			h.raw(`">`)
			h.text(t.Label)
			h.raw(` <span class="count">`)
			h.num(t.Count)
			h.raw("</span></a>\n")
		}
		h.raw("</nav>\n")

		h.raw(`<div id="application-list">` + "\n")
		applicationList(h, v)
		h.raw("</div>\n")
	}))
}

// ApplicationList is the HTMX fragment swapped in by the search box
func ApplicationList(v models.ApplicationsView) templ.Component {
	return component(func(ctx context.Context, h *html) {
		banner(h, "error", v.Error)
		applicationList(h, v)
	})
}

func applicationList(h *html, v models.ApplicationsView) {
	h.raw(`<p class="summary">`)
	if v.Filtered {
		h.raw("Showing ")
		h.num(len(v.Rows))
		h.raw(" of ")
		h.num(v.Total)
		h.raw(" applications")
	} else {
		h.num(v.Total)
		h.raw(" applications")
	}
	h.raw("</p>\n")
	applicationTable(h, v.Rows)
}

var formInputs = []struct {
	label, name, kind string
	required          bool
}{
	{"Company", "company", "text", true},
	{"Position", "position", "text", true},
	{"Applied on", "applied_date", "date", false},
	{"Location", "location", "text", false},
	{"Salary", "salary", "text", false},
	{"Job posting", "job_url", "url", false},
}

func NewApplication(v models.FormView) templ.Component {
	return component(dashboardPage(v.Layout, func(ctx context.Context, h *html) {
		h.raw(`<section class="panel form">` + "\n<h2>Add application</h2>\n")
		h.raw(`<form method="post" action="/dashboard/applications">` + "\n")
		for i, in := range formInputs {
			if i == 2 {
				statusSelect(h, v.Statuses)
			}
			h.raw("<label>")
			h.text(in.label)
			h.raw(` <input type="` + in.kind + `" name="` + in.name + `" value="`)
			h.text(v.Values[in.name])
			h.raw(`"`)
			if in.required {
				h.raw(` required maxlength="200"`)
			}
			h.raw("></label>\n")
		}
		h.raw(`<label>Notes (markdown) <textarea name="notes" rows="5">`)
		h.text(v.Values["notes"])
		h.raw("</textarea></label>\n")
		h.raw(`<div class="actions"><button class="primary" type="submit">Save</button> <a class="button" href="/dashboard/applications">Cancel</a></div>` + "\n")
		h.raw("</form>\n</section>\n")
	}))
}

func statusSelect(h *html, opts []models.StatusTab) {
	h.raw(`<label>Status <select name="status">`)
	for _, o := range opts {
		h.raw(`<option value="`)
		h.text(o.Value)
		h.raw(`"`)
		if o.Active {
			h.raw(" selected")
		}
		h.raw(">")
		h.text(o.Label)
		h.raw("</option>")
	}
	h.raw("</select></label>\n")
}
