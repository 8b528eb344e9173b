package ilp

import (
	"fmt"
	"io"
)

type bnbMiddleware interface {

	// Receives a summary of each processed node and the corresponding decision
	ProcessDecision(nodeSummary, bnbDecision)
}

type dummyMiddleware struct{}

func (d dummyMiddleware) ProcessDecision(nodeSummary, bnbDecision) {}

// nodeSummary carries what instrumentation needs from a node. We do not hand
// out the node itself: holding references to processed nodes would keep their
// relaxation matrices alive long after the search discarded them.
type nodeSummary struct {
	id     int64
	parent int64
	depth  int

	// bound the node carried while queued, inherited from its parent
	queuedBound float64

	lowerBound float64
	x          []float64
	bIdx       int
	bDir       branchDirection
}

func summarize(n *node) nodeSummary {
	return nodeSummary{
		id:          n.id,
		parent:      n.parent,
		depth:       n.depth,
		queuedBound: n.parentBound,
		lowerBound:  n.lowerBound,
		x:           n.x,
		bIdx:        n.bIdx,
		bDir:        n.bDir,
	}
}

// treeLogger records every decision of a search for later inspection. It
// contains no algorithm business logic to ensure loose coupling.
type treeLogger struct {
	nodes []loggedNode
}

type loggedNode struct {
	summary  nodeSummary
	decision bnbDecision
}

func (tl *treeLogger) ProcessDecision(s nodeSummary, d bnbDecision) {
	tl.nodes = append(tl.nodes, loggedNode{summary: s, decision: d})
}

// toDOT renders the enumeration tree in graphviz dot format.
func (tl *treeLogger) toDOT(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph enumeration {"); err != nil {
		return err
	}

	for _, ln := range tl.nodes {
		s := ln.summary
		if s.id < 0 {
			// search-level decisions belong to no node
			continue
		}
		if _, err := fmt.Fprintf(w, "\t%d [label=\"bound %.4g\\n%s\"];\n",
			s.id, s.lowerBound, ln.decision); err != nil {
			return err
		}
		if s.id != s.parent {
			label := ""
			if s.bIdx >= 0 {
				label = fmt.Sprintf(" [label=\"x%d %s\"]", s.bIdx, s.bDir)
			}
			if _, err := fmt.Fprintf(w, "\t%d -> %d%s;\n", s.parent, s.id, label); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}
