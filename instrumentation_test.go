package ilp

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_treeLogger_recordsDecisions(t *testing.T) {
	tl := &treeLogger{}

	s1 := nodeSummary{id: 0, parent: 0, lowerBound: -2.75, x: []float64{0, 1.25, 1.5}, bIdx: -1}
	s2 := nodeSummary{id: 1, parent: 0, lowerBound: -2.25, x: []float64{0, 1.25, 1}, bIdx: 2, bDir: branchDown}
	s3 := nodeSummary{id: 2, parent: 0, lowerBound: math.Inf(1), bIdx: 2, bDir: branchUp}

	tl.ProcessDecision(s1, BETTER_THAN_INCUMBENT_BRANCHING)
	tl.ProcessDecision(s2, BETTER_THAN_INCUMBENT_FEASIBLE)
	tl.ProcessDecision(s3, SUBPROBLEM_NOT_FEASIBLE)

	assert.Equal(t, []loggedNode{
		{summary: s1, decision: BETTER_THAN_INCUMBENT_BRANCHING},
		{summary: s2, decision: BETTER_THAN_INCUMBENT_FEASIBLE},
		{summary: s3, decision: SUBPROBLEM_NOT_FEASIBLE},
	}, tl.nodes)
}

func Test_treeLogger_toDOT(t *testing.T) {
	tl := &treeLogger{}
	tl.ProcessDecision(nodeSummary{id: 0, parent: 0, lowerBound: -2.75, bIdx: -1},
		BETTER_THAN_INCUMBENT_BRANCHING)
	tl.ProcessDecision(nodeSummary{id: 1, parent: 0, lowerBound: -2.25, bIdx: 2, bDir: branchDown},
		BETTER_THAN_INCUMBENT_FEASIBLE)

	var buf bytes.Buffer
	require.NoError(t, tl.toDOT(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "digraph"))
	assert.Contains(t, out, "0 -> 1")
	assert.Contains(t, out, "x2 down")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "}"))
}

func Test_treeLogger_toDOT_skipsSearchLevelDecisions(t *testing.T) {
	tl := &treeLogger{}
	tl.ProcessDecision(nodeSummary{id: 0, parent: 0, lowerBound: -2.75, bIdx: -1},
		BETTER_THAN_INCUMBENT_BRANCHING)
	tl.ProcessDecision(nodeSummary{id: -1, parent: -1, bIdx: -1}, SEARCH_BUDGET_EXHAUSTED)

	var buf bytes.Buffer
	require.NoError(t, tl.toDOT(&buf))

	out := buf.String()
	assert.NotContains(t, out, "-1")
	assert.Equal(t, 1, strings.Count(out, "0 [label"), "the root gets exactly one label")
}

func Test_searchReportsEveryNodeToMiddleware(t *testing.T) {
	tl := &treeLogger{}

	_, err := smallBranchProblem(t).Solve(SolveOptions{Middleware: tl})
	require.NoError(t, err)

	require.NotEmpty(t, tl.nodes)

	// the root branches, an incumbent appears, and the up branch on x3 is
	// pruned as infeasible
	seen := map[bnbDecision]bool{}
	for _, ln := range tl.nodes {
		seen[ln.decision] = true
	}
	assert.True(t, seen[BETTER_THAN_INCUMBENT_BRANCHING])
	assert.True(t, seen[BETTER_THAN_INCUMBENT_FEASIBLE])
	assert.True(t, seen[SUBPROBLEM_NOT_FEASIBLE])
}
