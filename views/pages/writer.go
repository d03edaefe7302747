package pages

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// html writes markup and keeps the first write error
type html struct {
	w   io.Writer
	err error
}

// raw writes s unescaped
func (h *html) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

// text writes s escaped for element content and attribute values
func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *html) num(n int) {
	h.raw(strconv.Itoa(n))
}

// url writes an href value, replacing unsafe schemes such as javascript:
func (h *html) url(s string) {
	h.text(string(templ.URL(s)))
}

func (h *html) render(ctx context.Context, c templ.Component) {
	if h.err != nil || c == nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

// component turns a writer func into a templ.Component
func component(fn func(ctx context.Context, h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		fn(ctx, h)
		return h.err
	})
}
