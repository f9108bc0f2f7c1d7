package graph

import (
	"cmp"
	"fmt"
	"slices"
)

// NodeID identifies a node within one Graph. IDs are allocated from a
// monotonic counter and never reused, even after RemoveNode.
type NodeID uint32

// Node is one operation instance in the graph.
type Node struct {
	ID      NodeID
	Name    string
	Kind    Kind
	Enabled bool
	Inputs  []string
	Outputs []string
	Params  Params
}

// HasInput reports whether port is one of the node's input ports.
func (n *Node) HasInput(port string) bool { return slices.Contains(n.Inputs, port) }

// HasOutput reports whether port is one of the node's output ports.
func (n *Node) HasOutput(port string) bool { return slices.Contains(n.Outputs, port) }

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	From     NodeID
	FromPort string
	To       NodeID
	ToPort   string
}

// Graph is a directed acyclic graph of processing nodes.
//
// Nodes and connections are stored by id in flat collections; there are no
// pointers between nodes. Acyclicity is enforced by Connect, so a Graph that
// was only mutated through its methods always has a topological order.
//
// Graph is not safe for concurrent use. It is meant to be built, executed
// and discarded by a single goroutine.
type Graph struct {
	nodes       map[NodeID]*Node
	connections []Connection
	input       NodeID
	output      NodeID
	hasInput    bool
	hasOutput   bool
	nextID      NodeID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode allocates a node of the given kind with its default ports and
// params and returns its id. Adding an Input or Output node designates it
// as the graph's input or output.
func (g *Graph) AddNode(name string, kind Kind) NodeID {
	id := g.nextID
	g.nextID++

	g.nodes[id] = &Node{
		ID:      id,
		Name:    name,
		Kind:    kind,
		Enabled: true,
		Inputs:  kind.InputPorts(),
		Outputs: kind.OutputPorts(),
		Params:  DefaultParams(kind),
	}

	switch kind {
	case KindInput:
		g.input, g.hasInput = id, true
	case KindOutput:
		g.output, g.hasOutput = id, true
	}
	return id
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns copies of all nodes ordered by id.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, *n)
	}
	slices.SortFunc(out, func(a, b Node) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Connections returns a copy of the connection list in insertion order.
func (g *Graph) Connections() []Connection {
	return slices.Clone(g.connections)
}

// InputNode returns the designated input node, if any.
func (g *Graph) InputNode() (NodeID, bool) { return g.input, g.hasInput }

// OutputNode returns the designated output node, if any.
func (g *Graph) OutputNode() (NodeID, bool) { return g.output, g.hasOutput }

// SetParams replaces the params of a node. The params kind must match the
// node kind.
func (g *Graph) SetParams(id NodeID, p Params) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	if p == nil || p.Kind() != n.Kind {
		return fmt.Errorf("%w: node %d is %s", ErrParamsMismatch, id, n.Kind)
	}
	n.Params = p
	return nil
}

// SetEnabled toggles a node. Disabled nodes are skipped during execution
// and pass their input through unchanged.
func (g *Graph) SetEnabled(id NodeID, enabled bool) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	n.Enabled = enabled
	return nil
}

// Connect adds an edge from (from, fromPort) to (to, toPort).
//
// It fails if either node or port does not exist, or if to already reaches
// from, which would close a cycle. On success any prior connection into
// (to, toPort) is replaced.
func (g *Graph) Connect(from NodeID, fromPort string, to NodeID, toPort string) error {
	src, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, from)
	}
	dst, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, to)
	}
	if !src.HasOutput(fromPort) {
		return fmt.Errorf("%w: %s has no output %q", ErrPortNotFound, src.Kind, fromPort)
	}
	if !dst.HasInput(toPort) {
		return fmt.Errorf("%w: %s has no input %q", ErrPortNotFound, dst.Kind, toPort)
	}
	if from == to || g.canReach(to, from) {
		return fmt.Errorf("%w: %d -> %d", ErrCycle, from, to)
	}

	g.Disconnect(to, toPort)
	g.connections = append(g.connections, Connection{
		From: from, FromPort: fromPort,
		To: to, ToPort: toPort,
	})
	return nil
}

// Disconnect removes the connection into (to, toPort) and reports whether
// one existed.
func (g *Graph) Disconnect(to NodeID, toPort string) bool {
	for i, c := range g.connections {
		if c.To == to && c.ToPort == toPort {
			g.connections = slices.Delete(g.connections, i, i+1)
			return true
		}
	}
	return false
}

// Source returns the connection feeding (to, toPort).
func (g *Graph) Source(to NodeID, toPort string) (Connection, bool) {
	for _, c := range g.connections {
		if c.To == to && c.ToPort == toPort {
			return c, true
		}
	}
	return Connection{}, false
}

// RemoveNode deletes a node and every connection touching it.
func (g *Graph) RemoveNode(id NodeID) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	delete(g.nodes, id)
	g.connections = slices.DeleteFunc(g.connections, func(c Connection) bool {
		return c.From == id || c.To == id
	})
	if g.hasInput && g.input == id {
		g.input, g.hasInput = 0, false
	}
	if g.hasOutput && g.output == id {
		g.output, g.hasOutput = 0, false
	}
	return nil
}

// ExecutionOrder returns every node id in topological order using Kahn's
// algorithm. Ready nodes are taken in ascending id order, so the result is
// deterministic.
//
// Connect already rejects cycles, so an ErrCycle from here means the graph
// state is inconsistent.
func (g *Graph) ExecutionOrder() ([]NodeID, error) {
	inDegree := make(map[NodeID]int, len(g.nodes))
	adj := make(map[NodeID][]NodeID, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = 0
	}
	for _, c := range g.connections {
		adj[c.From] = append(adj[c.From], c.To)
		inDegree[c.To]++
	}

	ready := make([]NodeID, 0, len(g.nodes))
	for id, d := range inDegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]NodeID, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var released []NodeID
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				released = append(released, next)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			slices.Sort(ready)
		}
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("%w: ordered %d of %d nodes", ErrCycle, len(order), len(g.nodes))
	}
	return order, nil
}

// canReach reports whether a directed path leads from start to target.
func (g *Graph) canReach(start, target NodeID) bool {
	visited := make(map[NodeID]bool, len(g.nodes))
	stack := []NodeID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, c := range g.connections {
			if c.From == id && !visited[c.To] {
				stack = append(stack, c.To)
			}
		}
	}
	return false
}
