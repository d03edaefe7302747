package components

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"maestro/views/models"
)

func TestMonthChartOrder(t *testing.T) {
	out := render(t, MonthChart([]models.MonthBar{
		{Label: "Jan", Count: 1},
		{Label: "Feb", Count: 4},
		{Label: "Mar", Count: 2},
	}))

	jan := strings.Index(out, ">Jan<")
	feb := strings.Index(out, ">Feb<")
	mar := strings.Index(out, ">Mar<")
	assert.True(t, jan >= 0 && jan < feb && feb < mar, "bars out of order: %d %d %d", jan, feb, mar)
	assert.Equal(t, 3, strings.Count(out, "<rect "))
	assert.Contains(t, out, "<title>Feb: 4</title>")
}

func TestMonthChartTallestBarFillsPlot(t *testing.T) {
	out := render(t, MonthChart([]models.MonthBar{{Label: "Jan", Count: 2}, {Label: "Feb", Count: 1}}))

	// the plot is barHeight-2*barPadding = 172 tall
	assert.Contains(t, out, `y="24.0" width="165.6" height="172.0"`)
	assert.Contains(t, out, `height="86.0"`)
}

func TestMonthChartEscapesLabels(t *testing.T) {
	out := render(t, MonthChart([]models.MonthBar{{Label: "<b>Mar</b>", Count: 1}}))
	assert.NotContains(t, out, "<b>")
	assert.Contains(t, out, "&lt;b&gt;Mar&lt;/b&gt;")
}

func TestMonthChartEmpty(t *testing.T) {
	out := render(t, MonthChart(nil))
	assert.Contains(t, out, "No applications yet")
	assert.NotContains(t, out, "<rect")
	assert.True(t, strings.HasSuffix(out, "</svg>"))
}
