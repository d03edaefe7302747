package components

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/a-h/templ"

	"maestro/views/models"
)

const (
	flowWidth     = 800
	flowHeight    = 300
	flowMarginX   = 100
	flowMarginY   = 30
	flowNodeWidth = 20
	flowNodePad   = 30
)

// columns and colors by stage id
var stageColumn = map[string]int{
	"start":        0,
	"applied":      1,
	"interviewing": 2,
	"pending":      2,
	"offered":      3,
	"rejected":     3,
}

var stageColor = map[string]string{
	"start":        "#8B5CF6",
	"applied":      "#3B82F6",
	"interviewing": "#F59E0B",
	"offered":      "#10B981",
	"rejected":     "#EF4444",
	"pending":      "#6B7280",
}

type flowBox struct {
	node      models.FlowNodeView
	value     int
	x, y, h   float64
	outY, inY float64
}

// FlowChart draws the estimated application funnel as an SVG Sankey-style
// diagram. An empty graph renders a placeholder message.
func FlowChart(g models.FlowView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		totalW := flowWidth + 2*flowMarginX
		totalH := flowHeight + 2*flowMarginY
		if _, err := fmt.Fprintf(w, `<svg class="flow-chart" viewBox="0 0 %d %d" role="img" aria-label="Application flow">`, totalW, totalH); err != nil {
			return err
		}

		if g.Empty || len(g.Edges) == 0 {
			_, err := fmt.Fprintf(w, `<text x="%d" y="%d" text-anchor="middle" fill="#a3a3a3" font-size="16">No application data available</text></svg>`, totalW/2, totalH/2)
			return err
		}

		boxes, order := layoutFlow(g)

		if _, err := fmt.Fprintf(w, `<g transform="translate(%d,%d)">`, flowMarginX, flowMarginY); err != nil {
			return err
		}

		scale := flowScale(boxes)
		for _, e := range g.Edges {
			src, dst := boxes[e.Source], boxes[e.Target]
			if src == nil || dst == nil {
				continue
			}
			th := math.Max(1, float64(e.Weight)*scale)
			sy := src.outY + th/2
			ty := dst.inY + th/2
			src.outY += th
			dst.inY += th

			x0 := src.x + flowNodeWidth
			x1 := dst.x
			mid := (x0 + x1) / 2
			_, err := fmt.Fprintf(w,
				`<path d="M%.1f,%.1fC%.1f,%.1f %.1f,%.1f %.1f,%.1f" fill="none" stroke="%s" stroke-opacity="0.6" stroke-width="%.1f"><title>%s → %s: %d</title></path>`,
				x0, sy, mid, sy, mid, ty, x1, ty,
				stageColor[e.Target], th,
				templ.EscapeString(src.node.Name), templ.EscapeString(dst.node.Name), e.Weight,
			)
			if err != nil {
				return err
			}
		}

		for _, id := range order {
			b := boxes[id]
			labelX, anchor := b.x-6, "end"
			if stageColumn[id] > 0 {
				labelX, anchor = b.x+flowNodeWidth+6, "start"
			}
			_, err := fmt.Fprintf(w,
				`<rect x="%.1f" y="%.1f" width="%d" height="%.1f" fill="%s" rx="2"><title>%s: %d</title></rect>`+
					`<text x="%.1f" y="%.1f" dy="0.35em" text-anchor="%s" fill="#e6e6e6" font-size="12">%s (%d)</text>`,
				b.x, b.y, flowNodeWidth, b.h, stageColor[id], templ.EscapeString(b.node.Name), b.value,
				labelX, b.y+b.h/2, anchor, templ.EscapeString(b.node.Name), b.value,
			)
			if err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</g></svg>`)
		return err
	})
}

// layoutFlow sizes and positions every node that carries flow.
func layoutFlow(g models.FlowView) (map[string]*flowBox, []string) {
	in := map[string]int{}
	out := map[string]int{}
	for _, e := range g.Edges {
		out[e.Source] += e.Weight
		in[e.Target] += e.Weight
	}

	boxes := map[string]*flowBox{}
	var order []string
	for _, n := range g.Nodes {
		v := max(in[n.ID], out[n.ID])
		if v == 0 {
			continue
		}
		boxes[n.ID] = &flowBox{node: n, value: v}
		order = append(order, n.ID)
	}

	scale := flowScale(boxes)
	columns := 1
	for _, id := range order {
		columns = max(columns, stageColumn[id]+1)
	}
	step := 0.0
	if columns > 1 {
		step = float64(flowWidth-flowNodeWidth) / float64(columns-1)
	}

	nextY := map[int]float64{}
	for _, id := range order {
		b := boxes[id]
		col := stageColumn[id]
		b.x = float64(col) * step
		b.h = math.Max(1, float64(b.value)*scale)
		b.y = nextY[col]
		b.outY, b.inY = b.y, b.y
		nextY[col] = b.y + b.h + flowNodePad
	}
	return boxes, order
}

// flowScale is the pixel height of one application, chosen so the fullest
// column fits the chart.
func flowScale(boxes map[string]*flowBox) float64 {
	sum := map[int]int{}
	count := map[int]int{}
	for id, b := range boxes {
		sum[stageColumn[id]] += b.value
		count[stageColumn[id]]++
	}

	scale := math.Inf(1)
	for col, total := range sum {
		avail := float64(flowHeight - flowNodePad*(count[col]-1))
		scale = math.Min(scale, avail/float64(total))
	}
	if math.IsInf(scale, 1) {
		return 1
	}
	return scale
}
