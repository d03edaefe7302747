package components

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"maestro/views/models"
)

const (
	barWidth   = 600
	barHeight  = 220
	barPadding = 24
)

// MonthChart draws one bar per month that has applications.
func MonthChart(bars []models.MonthBar) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<svg class="month-chart" viewBox="0 0 %d %d" role="img" aria-label="Applications per month">`, barWidth, barHeight); err != nil {
			return err
		}
		if len(bars) == 0 {
			_, err := fmt.Fprintf(w, `<text x="%d" y="%d" text-anchor="middle" fill="#a3a3a3" font-size="14">No applications yet</text></svg>`, barWidth/2, barHeight/2)
			return err
		}

		peak := 1
		for _, b := range bars {
			peak = max(peak, b.Count)
		}

		plotH := float64(barHeight - 2*barPadding)
		slot := float64(barWidth-2*barPadding) / float64(len(bars))
		width := slot * 0.6
		for i, b := range bars {
			h := plotH * float64(b.Count) / float64(peak)
			x := float64(barPadding) + slot*float64(i) + (slot-width)/2
			y := float64(barHeight-barPadding) - h
			_, err := fmt.Fprintf(w,
				`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" rx="3" fill="#3B82F6"><title>%s: %d</title></rect>`+
					`<text x="%.1f" y="%.1f" text-anchor="middle" fill="#e6e6e6" font-size="11">%d</text>`+
					`<text x="%.1f" y="%d" text-anchor="middle" fill="#a3a3a3" font-size="11">%s</text>`,
				x, y, width, h, templ.EscapeString(b.Label), b.Count,
				x+width/2, y-4, b.Count,
				x+width/2, barHeight-barPadding/3, templ.EscapeString(b.Label),
			)
			if err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</svg>`)
		return err
	})
}
