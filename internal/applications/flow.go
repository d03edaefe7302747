package applications

import "math"

// Stage identifiers used as flow graph node ids
const (
	StageStart        = "start"
	StageApplied      = "applied"
	StageInterviewing = "interviewing"
	StageOffered      = "offered"
	StageRejected     = "rejected"
	StagePending      = "pending"
)

var stageNames = map[string]string{
	StageStart:        "Applications",
	StageApplied:      "Applied",
	StageInterviewing: "Interviewing",
	StageOffered:      "Offered",
	StageRejected:     "Rejected",
	StagePending:      "Pending",
}

// FlowConfig tunes the heuristic split of rejections. Records only carry their
// current status, so how many rejections happened before or after an interview
// is an assumption, not a measurement.
type FlowConfig struct {
	// DirectRejectShare is the fraction of rejections attributed to the
	// applied stage.
	DirectRejectShare float64
	// InterviewRejectShare is the fraction attributed to the interview stage.
	InterviewRejectShare float64
	// MinEdgeWeight is the floor applied to both rejection edges.
	MinEdgeWeight int
	// ClampEmptyEdges applies MinEdgeWeight even when nothing was rejected,
	// which draws rejection edges that have no records behind them.
	ClampEmptyEdges bool
}

// DefaultFlowConfig returns the 70/30 split with a minimum edge weight of 1.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{
		DirectRejectShare:    0.7,
		InterviewRejectShare: 0.3,
		MinEdgeWeight:        1,
	}
}

// FlowNode is a stage in the flow graph
type FlowNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FlowEdge is an estimated transition volume between two stages
type FlowEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// FlowGraph is the estimated funnel. Empty is set when there is nothing to
// draw; the renderer shows a placeholder instead.
type FlowGraph struct {
	Empty bool       `json:"empty"`
	Nodes []FlowNode `json:"nodes"`
	Edges []FlowEdge `json:"edges"`
}

// EstimateFlow reconstructs a plausible stage funnel from current status
// counts. Zero-weight edges are dropped.
func EstimateFlow(counts StatusCounts, cfg FlowConfig) FlowGraph {
	total := counts.Total()
	if total == 0 {
		return FlowGraph{Empty: true}
	}

	applied := counts[StatusApplied]
	interviewing := counts[StatusInterviewing]
	offered := counts[StatusOffered]
	rejected := counts[StatusRejected]

	if applied == total {
		return FlowGraph{
			Nodes: nodes(StageStart, StageApplied, StagePending),
			Edges: []FlowEdge{
				{Source: StageStart, Target: StageApplied, Weight: total},
				{Source: StageApplied, Target: StagePending, Weight: total},
			},
		}
	}

	edges := []FlowEdge{
		{Source: StageStart, Target: StageApplied, Weight: total},
		{Source: StageApplied, Target: StageInterviewing, Weight: interviewing + offered},
		{Source: StageApplied, Target: StageRejected, Weight: cfg.clamp(share(cfg.DirectRejectShare, rejected), rejected > 0)},
		{Source: StageInterviewing, Target: StageOffered, Weight: offered},
		{Source: StageInterviewing, Target: StageRejected, Weight: cfg.clamp(interviewing+share(cfg.InterviewRejectShare, rejected), rejected > 0)},
	}

	kept := edges[:0]
	for _, e := range edges {
		if e.Weight > 0 {
			kept = append(kept, e)
		}
	}

	return FlowGraph{
		Nodes: nodes(StageStart, StageApplied, StageInterviewing, StageOffered, StageRejected),
		Edges: kept,
	}
}

func (c FlowConfig) clamp(w int, anyRejected bool) int {
	if !anyRejected && !c.ClampEmptyEdges {
		return w
	}
	return max(c.MinEdgeWeight, w)
}

func share(fraction float64, n int) int {
	return int(math.Floor(fraction * float64(n)))
}

func nodes(ids ...string) []FlowNode {
	out := make([]FlowNode, len(ids))
	for i, id := range ids {
		out[i] = FlowNode{ID: id, Name: stageNames[id]}
	}
	return out
}
