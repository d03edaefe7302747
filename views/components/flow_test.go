package components

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/views/models"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

func node(id, name string) models.FlowNodeView {
	return models.FlowNodeView{ID: id, Name: name}
}

// allApplied is what the estimator returns when nothing has moved past applied
func allApplied(n int) models.FlowView {
	return models.FlowView{
		Nodes: []models.FlowNodeView{node("start", "Start"), node("applied", "Applied"), node("pending", "Pending")},
		Edges: []models.FlowEdgeView{
			{Source: "start", Target: "applied", Weight: n},
			{Source: "applied", Target: "pending", Weight: n},
		},
	}
}

func funnel() models.FlowView {
	return models.FlowView{
		Nodes: []models.FlowNodeView{
			node("start", "Start"), node("applied", "Applied"), node("interviewing", "Interviewing"),
			node("offered", "Offered"), node("rejected", "Rejected"),
		},
		Edges: []models.FlowEdgeView{
			{Source: "start", Target: "applied", Weight: 10},
			{Source: "applied", Target: "interviewing", Weight: 3},
			{Source: "applied", Target: "rejected", Weight: 2},
			{Source: "interviewing", Target: "offered", Weight: 1},
			{Source: "interviewing", Target: "rejected", Weight: 3},
		},
	}
}

func TestLayoutFlowAllApplied(t *testing.T) {
	boxes, order := layoutFlow(allApplied(4))
	require.Equal(t, []string{"start", "applied", "pending"}, order)

	xs := map[float64]bool{}
	for _, b := range boxes {
		xs[b.x] = true
	}
	assert.Len(t, xs, 3)
	assert.Equal(t, 0.0, boxes["start"].x)
	assert.Equal(t, float64(flowWidth-flowNodeWidth)/2, boxes["applied"].x)
	assert.Equal(t, float64(flowWidth-flowNodeWidth), boxes["pending"].x)

	for id, b := range boxes {
		assert.Equal(t, 4, b.value, id)
		assert.InDelta(t, float64(flowHeight), b.h, 1e-9, id)
	}
}

func TestLayoutFlowSkipsNodesWithoutFlow(t *testing.T) {
	g := funnel()
	g.Edges = g.Edges[:3] // nothing reaches offered

	boxes, order := layoutFlow(g)
	assert.NotContains(t, order, "offered")
	assert.Nil(t, boxes["offered"])
	assert.Equal(t, 2, boxes["rejected"].value)

	out := render(t, FlowChart(g))
	assert.NotContains(t, out, "Offered (")
	assert.Contains(t, out, "Rejected (2)")
}

func TestLayoutFlowFitsChart(t *testing.T) {
	for name, g := range map[string]models.FlowView{
		"funnel":      funnel(),
		"all applied": allApplied(37),
		"one":         allApplied(1),
	} {
		t.Run(name, func(t *testing.T) {
			boxes, _ := layoutFlow(g)
			require.NotEmpty(t, boxes)
			for id, b := range boxes {
				assert.GreaterOrEqual(t, b.y, 0.0, id)
				assert.LessOrEqual(t, b.y+b.h, float64(flowHeight)+1e-9, id)
				assert.GreaterOrEqual(t, b.x, 0.0, id)
				assert.LessOrEqual(t, b.x+flowNodeWidth, float64(flowWidth)+1e-9, id)
			}
		})
	}
}

func TestLayoutFlowStacksSharedColumn(t *testing.T) {
	boxes, _ := layoutFlow(funnel())

	offered, rejected := boxes["offered"], boxes["rejected"]
	assert.Equal(t, offered.x, rejected.x)
	assert.Equal(t, 0.0, offered.y)
	assert.InDelta(t, offered.y+offered.h+flowNodePad, rejected.y, 1e-9)
}

func TestFlowChartPlaceholder(t *testing.T) {
	out := render(t, FlowChart(models.FlowView{Empty: true}))
	assert.Contains(t, out, "No application data available")
	assert.NotContains(t, out, "<path")

	out = render(t, FlowChart(models.FlowView{Nodes: []models.FlowNodeView{node("start", "Start")}}))
	assert.Contains(t, out, "No application data available")
}

func TestFlowChartEscapesNames(t *testing.T) {
	g := allApplied(2)
	g.Nodes[2].Name = `<script>alert("x")</script>`

	out := render(t, FlowChart(g))
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Equal(t, 2, strings.Count(out, "<path "))
	assert.Equal(t, 3, strings.Count(out, "<rect "))
}
