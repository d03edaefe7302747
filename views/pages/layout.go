package pages

import (
	"context"

	"maestro/views/models"
)

func docOpen(h *html, title string) {
	h.raw("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	h.raw(`<meta charset="utf-8">` + "\n")
	h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">` + "\n")
	h.raw("<title>")
	h.text(title)
	h.raw(" · Maestro</title>\n")
	h.raw(`<link rel="stylesheet" href="/static/app.css">` + "\n")
	h.raw(`<script src="https://unpkg.com/htmx.org@1.9.12"></script>` + "\n")
	h.raw("</head>\n<body>\n")
}

func docClose(h *html) {
	h.raw("</body>\n</html>\n")
}

// dashboardPage wraps body in the signed-in chrome: top bar, connection
// badge and notices.
func dashboardPage(l models.Layout, body func(ctx context.Context, h *html)) func(ctx context.Context, h *html) {
	return func(ctx context.Context, h *html) {
		docOpen(h, l.Title)
		topbar(h, l)
		h.raw("<main>\n")
		if l.Connection.Error != "" {
			h.raw(`<div class="banner error">Email connection failed: `)
			h.text(l.Connection.Error)
			h.raw("</div>\n")
		}
		banner(h, "flash", l.Flash)
		banner(h, "error", l.Error)
		body(ctx, h)
		h.raw("</main>\n")
		docClose(h)
	}
}

func banner(h *html, class, msg string) {
	if msg == "" {
		return
	}
	h.raw(`<div class="banner ` + class + `">`)
	h.text(msg)
	h.raw("</div>\n")
}

func topbar(h *html, l models.Layout) {
	h.raw(`<header class="topbar">` + "\n")
	h.raw(`<a class="brand" href="/dashboard">Maestro</a>` + "\n")
	h.raw(`<nav><a href="/dashboard">Overview</a> <a href="/dashboard/applications">Applications</a> <a href="/dashboard/applications/new">Add application</a></nav>` + "\n")
	connectionBadge(h, l.Connection)
	if !l.Anonymous {
		h.raw(`<form class="account" method="post" action="/logout"><span>`)
		h.text(l.Email)
		h.raw(`</span> <button type="submit">Log out</button></form>` + "\n")
	}
	h.raw("</header>\n")
}

func connectionBadge(h *html, c models.ConnectionView) {
	h.raw(`<div class="conn conn-`)
	h.text(c.State)
	h.raw(`"`)
	if !c.Since.IsZero() {
		h.raw(` title="Since `)
		h.text(c.Since.Format("Jan 2, 15:04"))
		h.raw(`"`)
	}
	h.raw(`><span class="dot"></span>`)
	h.text(c.Label)

	if c.Available {
		switch {
		case c.CanSync:
			h.raw(` <form method="post" action="/dashboard/sync"><button type="submit">Sync emails</button></form>`)
		case c.CanLink:
			h.raw(` <a class="button" href="/dashboard/connect">Connect Gmail</a>`)
		}
		if c.CanUnlink {
			h.raw(` <form method="post" action="/dashboard/disconnect"><button type="submit">Disconnect</button></form>`)
		}
	}
	h.raw("</div>\n")
}

func statCards(h *html, cards []models.StatCard) {
	h.raw(`<section class="stats">` + "\n")
	for _, c := range cards {
		h.raw(`<div class="card"><h3>`)
		h.text(c.Title)
		h.raw(`</h3><p class="value">`)
		h.text(c.Value)
		h.raw(`</p>`)
		if c.Note != "" {
			h.raw(`<p class="note">`)
			h.text(c.Note)
			h.raw(`</p>`)
		}
		h.raw("</div>\n")
	}
	h.raw("</section>\n")
}

func applicationTable(h *html, rows []models.ApplicationView) {
	if len(rows) == 0 {
		h.raw(`<p class="empty">No applications found.</p>` + "\n")
		return
	}
	h.raw(`<table class="applications">` + "\n")
	h.raw("<thead><tr><th>Company</th><th>Position</th><th>Status</th><th>Applied</th><th>Location</th><th>Salary</th></tr></thead>\n")
	h.raw("<tbody>\n")
	for _, r := range rows {
		h.raw("<tr><td>")
		if r.JobURL != "" {
			h.raw(`<a href="`)
			h.url(r.JobURL)
			h.raw(`" target="_blank" rel="noopener">`)
			h.text(r.Company)
			h.raw("</a>")
		} else {
			h.text(r.Company)
		}
		h.raw("</td><td>")
		h.text(r.Position)
		h.raw(`</td><td><span class="badge `)
		h.text(r.StatusClass)
		h.raw(`">`)
		h.text(r.StatusLabel)
		h.raw("</span></td><td>")
		h.text(r.Applied)
		h.raw("</td><td>")
		h.text(r.Location)
		h.raw("</td><td>")
		h.text(r.Salary)
		h.raw("</td></tr>\n")
		if r.NotesHTML != "" {
			h.raw(`<tr class="notes"><td colspan="6">`)
			h.raw(r.NotesHTML)
			h.raw("</td></tr>\n")
		}
	}
	h.raw("</tbody>\n</table>\n")
}
