package dag

import (
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

// the maximum depth of the logical graph
const defaultMaximalDepth = 100

// Walker walks a logical graph downstream and calls the callback for each
// vertex. A struct is used instead of a bare function so that later graph
// algorithms can extend it.
type Walker struct {
	dag          *LogicalDAG
	children     map[int64][]int64
	visited      map[int64]struct{}
	onVertex     func(*LogicalVertex) error
	maximalDepth int
}

// NewWalker creates a Walker over dag. The visited set is shared across
// WalkFrom calls, so walking from every source visits each vertex once.
func NewWalker(dag *LogicalDAG, onVertex func(*LogicalVertex) error) *Walker {
	children := make(map[int64][]int64, len(dag.Vertexes))
	for _, e := range dag.Edges {
		children[e.From] = append(children[e.From], e.To)
	}
	return &Walker{
		dag:          dag,
		children:     children,
		visited:      make(map[int64]struct{}),
		onVertex:     onVertex,
		maximalDepth: defaultMaximalDepth,
	}
}

// WalkFrom walks downstream starting at rootID.
func (w *Walker) WalkFrom(rootID int64) error {
	return w.doWalk(rootID, 0)
}

func (w *Walker) doWalk(id int64, depth int) error {
	if depth > w.maximalDepth {
		return derror.ErrLogicalDAGCorrupted.GenWithStack("walk exceeds maximal depth %d", w.maximalDepth)
	}
	if _, ok := w.visited[id]; ok {
		return nil
	}
	vertex := w.dag.VertexByID(id)
	if vertex == nil {
		return derror.ErrLogicalDAGCorrupted.GenWithStack("walk reached unknown vertex %d", id)
	}
	if err := w.onVertex(vertex); err != nil {
		return err
	}
	w.visited[id] = struct{}{}
	for _, next := range w.children[id] {
		if err := w.doWalk(next, depth+1); err != nil {
			return err
		}
	}
	return nil
}
