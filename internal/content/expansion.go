package content

import (
	"sort"
	"sync"
)

type NodeState int

const (
	Collapsed NodeState = iota
	Expanding
	Expanded
)

func (s NodeState) String() string {
	switch s {
	case Expanding:
		return "expanding"
	case Expanded:
		return "expanded"
	default:
		return "collapsed"
	}
}

type Toggle struct {
	ID       int64 `json:"id"`
	Expanded bool  `json:"expanded"`
}

// ExpansionTracker holds the expanded node ids of one tree level.
type ExpansionTracker struct {
	mu    sync.Mutex
	nodes map[int64]NodeState
}

func NewExpansionTracker() *ExpansionTracker {
	return &ExpansionTracker{nodes: make(map[int64]NodeState)}
}

// Toggle flips a node. A collapsed node becomes expanding until Settle is
// called; an expanding or expanded node becomes collapsed.
func (t *ExpansionTracker) Toggle(id int64) Toggle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[id]; ok {
		delete(t.nodes, id)
		return Toggle{ID: id, Expanded: false}
	}
	t.nodes[id] = Expanding
	return Toggle{ID: id, Expanded: true}
}

// Settle marks an expanding node as expanded. Nodes collapsed in the
// meantime stay collapsed.
func (t *ExpansionTracker) Settle(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nodes[id] == Expanding {
		t.nodes[id] = Expanded
	}
}

func (t *ExpansionTracker) State(id int64) NodeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodes[id]
}

func (t *ExpansionTracker) IsExpanded(id int64) bool {
	return t.State(id) != Collapsed
}

func (t *ExpansionTracker) Collapse(id int64) {
	t.mu.Lock()
	delete(t.nodes, id)
	t.mu.Unlock()
}

func (t *ExpansionTracker) Clear() {
	t.mu.Lock()
	t.nodes = make(map[int64]NodeState)
	t.mu.Unlock()
}

// IDs returns every expanding or expanded id in ascending order.
func (t *ExpansionTracker) IDs() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int64, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
