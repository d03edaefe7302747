package applications

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestEstimateFlowEmpty(t *testing.T) {
	got := EstimateFlow(CountByStatus(nil), DefaultFlowConfig())

	assert.True(t, got.Empty)
	assert.Empty(t, got.Nodes)
	assert.Empty(t, got.Edges)
}

func TestEstimateFlowUnknownOnlyIsEmpty(t *testing.T) {
	got := EstimateFlow(CountByStatus([]Record{{Status: "ghosted"}}), DefaultFlowConfig())
	assert.True(t, got.Empty)
}

func TestEstimateFlowAllApplied(t *testing.T) {
	records := repeat("applied", 7)

	got := EstimateFlow(CountByStatus(records), DefaultFlowConfig())

	want := FlowGraph{
		Nodes: []FlowNode{
			{ID: StageStart, Name: "Applications"},
			{ID: StageApplied, Name: "Applied"},
			{ID: StagePending, Name: "Pending"},
		},
		Edges: []FlowEdge{
			{Source: StageStart, Target: StageApplied, Weight: 7},
			{Source: StageApplied, Target: StagePending, Weight: 7},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EstimateFlow mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimateFlowScenario(t *testing.T) {
	got := EstimateFlow(CountByStatus(scenarioRecords()), DefaultFlowConfig())

	want := []FlowEdge{
		{Source: StageStart, Target: StageApplied, Weight: 10},
		{Source: StageApplied, Target: StageInterviewing, Weight: 3},
		{Source: StageApplied, Target: StageRejected, Weight: 2},
		{Source: StageInterviewing, Target: StageOffered, Weight: 1},
		{Source: StageInterviewing, Target: StageRejected, Weight: 3},
	}
	assert.False(t, got.Empty)
	assert.Len(t, got.Nodes, 5)
	if diff := cmp.Diff(want, got.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimateFlowNoRejections(t *testing.T) {
	counts := StatusCounts{StatusApplied: 2, StatusInterviewing: 0, StatusOffered: 1, StatusRejected: 0}

	got := EstimateFlow(counts, DefaultFlowConfig())

	want := []FlowEdge{
		{Source: StageStart, Target: StageApplied, Weight: 3},
		{Source: StageApplied, Target: StageInterviewing, Weight: 1},
		{Source: StageInterviewing, Target: StageOffered, Weight: 1},
	}
	if diff := cmp.Diff(want, got.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimateFlowClampEmptyEdges(t *testing.T) {
	cfg := DefaultFlowConfig()
	cfg.ClampEmptyEdges = true
	counts := StatusCounts{StatusApplied: 2, StatusOffered: 1}

	got := EstimateFlow(counts, cfg)

	assert.Contains(t, got.Edges, FlowEdge{Source: StageApplied, Target: StageRejected, Weight: 1})
	assert.Contains(t, got.Edges, FlowEdge{Source: StageInterviewing, Target: StageRejected, Weight: 1})
}

func TestEstimateFlowSingleRejection(t *testing.T) {
	// floor(0.7) and floor(0.3) are both 0, lifted to the minimum because a
	// rejection exists
	counts := StatusCounts{StatusApplied: 1, StatusRejected: 1}

	got := EstimateFlow(counts, DefaultFlowConfig())

	want := []FlowEdge{
		{Source: StageStart, Target: StageApplied, Weight: 2},
		{Source: StageApplied, Target: StageRejected, Weight: 1},
		{Source: StageInterviewing, Target: StageRejected, Weight: 1},
	}
	if diff := cmp.Diff(want, got.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimateFlowCustomShares(t *testing.T) {
	cfg := FlowConfig{DirectRejectShare: 0.5, InterviewRejectShare: 0.5, MinEdgeWeight: 2}
	counts := StatusCounts{StatusInterviewing: 1, StatusRejected: 10}

	got := EstimateFlow(counts, cfg)

	assert.Contains(t, got.Edges, FlowEdge{Source: StageApplied, Target: StageRejected, Weight: 5})
	assert.Contains(t, got.Edges, FlowEdge{Source: StageInterviewing, Target: StageRejected, Weight: 6})
	for _, e := range got.Edges {
		assert.Positive(t, e.Weight)
	}
}
