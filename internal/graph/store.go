package graph

import (
	"blastradius/internal/domain"
)

type edgeKey struct {
	nodeID   string
	edgeType domain.EdgeType
}

// Store is an in-memory directed graph of nodes and typed edges, indexed by
// (node id, edge type) in both directions so traversals never copy adjacency
// lists. It is mutated only during load; all resolution reads are lock-free
// against the immutable snapshot.
type Store struct {
	nodes map[string]*domain.Node
	out   map[edgeKey][]*domain.Edge
	in    map[edgeKey][]*domain.Edge
	kinds map[domain.NodeKind][]*domain.Node
}

// NewStore returns an empty graph store
func NewStore() *Store {
	return &Store{
		nodes: make(map[string]*domain.Node),
		out:   make(map[edgeKey][]*domain.Edge),
		in:    make(map[edgeKey][]*domain.Edge),
		kinds: make(map[domain.NodeKind][]*domain.Node),
	}
}

// AddNode inserts a node. Node ids are unique across the whole graph;
// a second insert of the same id fails with DuplicateNodeError.
func (s *Store) AddNode(node *domain.Node) error {
	if _, exists := s.nodes[node.ID]; exists {
		return &domain.DuplicateNodeError{ID: node.ID}
	}
	s.nodes[node.ID] = node
	s.kinds[node.Kind] = append(s.kinds[node.Kind], node)
	return nil
}

// AddEdge inserts a directed edge. Endpoints must already exist, except
// that a GRANTS edge may leave To empty: its target is the resource pattern
// in the attached statement, not a concrete node.
func (s *Store) AddEdge(edge *domain.Edge) error {
	if _, ok := s.nodes[edge.From]; !ok {
		return &domain.DanglingEdgeError{From: edge.From, To: edge.To, Type: edge.Type}
	}
	patternTarget := edge.Type == domain.EdgeTypeGrants && edge.To == ""
	if !patternTarget {
		if _, ok := s.nodes[edge.To]; !ok {
			return &domain.DanglingEdgeError{From: edge.From, To: edge.To, Type: edge.Type}
		}
	}
	outKey := edgeKey{nodeID: edge.From, edgeType: edge.Type}
	s.out[outKey] = append(s.out[outKey], edge)
	if !patternTarget {
		inKey := edgeKey{nodeID: edge.To, edgeType: edge.Type}
		s.in[inKey] = append(s.in[inKey], edge)
	}
	return nil
}

// Node returns the node with the given id, or NotFoundError
func (s *Store) Node(id string) (*domain.Node, error) {
	node, ok := s.nodes[id]
	if !ok {
		return nil, &domain.NotFoundError{ID: id}
	}
	return node, nil
}

// HasNode reports whether a node id exists
func (s *Store) HasNode(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// Out returns the outgoing edges of the given type from a node. The returned
// slice is the store's index; callers must not mutate it.
func (s *Store) Out(nodeID string, edgeType domain.EdgeType) []*domain.Edge {
	return s.out[edgeKey{nodeID: nodeID, edgeType: edgeType}]
}

// In returns the incoming edges of the given type to a node
func (s *Store) In(nodeID string, edgeType domain.EdgeType) []*domain.Edge {
	return s.in[edgeKey{nodeID: nodeID, edgeType: edgeType}]
}

// NodesOfKind returns all nodes of one kind, in insertion order
func (s *Store) NodesOfKind(kind domain.NodeKind) []*domain.Node {
	return s.kinds[kind]
}

// NodeCount returns the total number of nodes
func (s *Store) NodeCount() int {
	return len(s.nodes)
}
