package graph

import (
	"errors"
	"testing"

	"blastradius/internal/domain"
)

// =============================================================================
// AddNode TESTS
// =============================================================================

func TestAddNodeDuplicate(t *testing.T) {
	store := NewStore()

	if err := store.AddNode(&domain.Node{ID: "alice", Kind: domain.NodeKindIdentity}); err != nil {
		t.Fatalf("first AddNode failed: %v", err)
	}

	err := store.AddNode(&domain.Node{ID: "alice", Kind: domain.NodeKindIdentity})
	if err == nil {
		t.Fatal("expected DuplicateNodeError, got nil")
	}

	var dup *domain.DuplicateNodeError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateNodeError, got %T", err)
	}
	if dup.ID != "alice" {
		t.Errorf("expected id alice, got %s", dup.ID)
	}
}

func TestNodesOfKind(t *testing.T) {
	store := NewStore()

	nodes := []*domain.Node{
		{ID: "alice", Kind: domain.NodeKindIdentity},
		{ID: "admins", Kind: domain.NodeKindGroup},
		{ID: "bob", Kind: domain.NodeKindIdentity},
		{ID: "db/customers", Kind: domain.NodeKindResource},
	}
	for _, n := range nodes {
		if err := store.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", n.ID, err)
		}
	}

	identities := store.NodesOfKind(domain.NodeKindIdentity)
	if len(identities) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(identities))
	}
	if identities[0].ID != "alice" || identities[1].ID != "bob" {
		t.Errorf("expected insertion order [alice bob], got [%s %s]", identities[0].ID, identities[1].ID)
	}
}

// =============================================================================
// AddEdge TESTS
// =============================================================================

func TestAddEdgeDangling(t *testing.T) {
	store := NewStore()
	if err := store.AddNode(&domain.Node{ID: "alice", Kind: domain.NodeKindIdentity}); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	tests := []struct {
		name string
		edge *domain.Edge
	}{
		{
			name: "missing target",
			edge: &domain.Edge{From: "alice", To: "ghosts", Type: domain.EdgeTypeMemberOf},
		},
		{
			name: "missing source",
			edge: &domain.Edge{From: "ghost", To: "alice", Type: domain.EdgeTypeMemberOf},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.AddEdge(tt.edge)
			var dangling *domain.DanglingEdgeError
			if !errors.As(err, &dangling) {
				t.Fatalf("expected DanglingEdgeError, got %v", err)
			}
		})
	}
}

func TestEdgeIndexBothDirections(t *testing.T) {
	store := NewStore()
	for _, id := range []string{"alice", "admins", "ops"} {
		kind := domain.NodeKindGroup
		if id == "alice" {
			kind = domain.NodeKindIdentity
		}
		if err := store.AddNode(&domain.Node{ID: id, Kind: kind}); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", id, err)
		}
	}

	edges := []*domain.Edge{
		{From: "alice", To: "admins", Type: domain.EdgeTypeMemberOf},
		{From: "alice", To: "ops", Type: domain.EdgeTypeMemberOf},
	}
	for _, e := range edges {
		if err := store.AddEdge(e); err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
	}

	out := store.Out("alice", domain.EdgeTypeMemberOf)
	if len(out) != 2 {
		t.Fatalf("expected 2 outgoing MEMBER_OF edges, got %d", len(out))
	}

	in := store.In("admins", domain.EdgeTypeMemberOf)
	if len(in) != 1 || in[0].From != "alice" {
		t.Fatalf("expected 1 incoming edge from alice, got %d", len(in))
	}

	// No CONTAINS edges were added
	if got := store.Out("alice", domain.EdgeTypeContains); len(got) != 0 {
		t.Errorf("expected no CONTAINS edges, got %d", len(got))
	}
}

// =============================================================================
// Node lookup TESTS
// =============================================================================

func TestNodeNotFound(t *testing.T) {
	store := NewStore()

	_, err := store.Node("missing")
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
