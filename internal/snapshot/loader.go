// Package snapshot loads permission graph snapshots from their JSON
// interchange format into a graph store. The snapshot is produced by an
// external connector (directory export, cloud IAM export) and is treated as
// already normalized; only the structural invariants are enforced here.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"blastradius/internal/domain"
	"blastradius/internal/graph"
	"blastradius/internal/logging"
)

// Document is the on-disk snapshot schema
type Document struct {
	Nodes []*domain.Node `json:"nodes"`
	Edges []*domain.Edge `json:"edges"`
}

// Load reads a snapshot document and builds a graph store. Invariant
// violations (duplicate node ids, dangling edges, unknown kinds or edge
// types) abort the load; a snapshot that fails to load is not partially
// usable.
func Load(r io.Reader) (*graph.Store, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return Build(&doc)
}

// LoadFile loads a snapshot from a file path
func LoadFile(path string) (*graph.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Build validates a decoded document into a graph store
func Build(doc *Document) (*graph.Store, error) {
	store := graph.NewStore()

	for _, node := range doc.Nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("snapshot node with empty id")
		}
		if !validKind(node.Kind) {
			return nil, fmt.Errorf("snapshot node %q has unknown kind %q", node.ID, node.Kind)
		}
		if err := store.AddNode(node); err != nil {
			return nil, err
		}
	}

	for _, edge := range doc.Edges {
		if !validEdgeType(edge.Type) {
			return nil, fmt.Errorf("snapshot edge %q -> %q has unknown type %q", edge.From, edge.To, edge.Type)
		}
		if edge.Type == domain.EdgeTypeGrants && edge.Statement == nil {
			return nil, fmt.Errorf("GRANTS edge %q -> %q has no policy statement", edge.From, edge.To)
		}
		if err := store.AddEdge(edge); err != nil {
			return nil, err
		}
	}

	logging.LogDebug(fmt.Sprintf("Loaded snapshot: %d nodes, %d edges", len(doc.Nodes), len(doc.Edges)))
	return store, nil
}

func validKind(kind domain.NodeKind) bool {
	switch kind {
	case domain.NodeKindIdentity, domain.NodeKindGroup, domain.NodeKindRole,
		domain.NodeKindResource, domain.NodeKindBoundary:
		return true
	}
	return false
}

func validEdgeType(edgeType domain.EdgeType) bool {
	switch edgeType {
	case domain.EdgeTypeMemberOf, domain.EdgeTypeGrants,
		domain.EdgeTypeContains, domain.EdgeTypeTrusts:
		return true
	}
	return false
}
