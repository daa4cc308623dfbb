package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
)

// memoResult is what one closure evaluation produces: the grants contributed
// by a set of nodes, independent of which identity reached them.
type memoResult struct {
	grants   []sourcedGrant
	warnings []string
}

type entry struct {
	res   memoResult
	ready chan struct{}
}

// Memo is a run-scoped compute-once cache for closure evaluations. Many
// identities share ancestor groups; the second concurrent request for the
// same key waits on the first's result instead of recomputing. Append-only
// for the life of one run.
type Memo struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemo returns an empty memo cache scoped to one resolution run
func NewMemo() *Memo {
	return &Memo{entries: make(map[string]*entry)}
}

// Do returns the cached result for key, computing it via fn exactly once
func (m *Memo) Do(key string, fn func() memoResult) (memoResult, bool) {
	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		m.mu.Unlock()
		<-e.ready
		return e.res, true
	}
	e := &entry{ready: make(chan struct{})}
	m.entries[key] = e
	m.mu.Unlock()

	e.res = fn()
	close(e.ready)
	return e.res, false
}

// Len returns the number of cached closure evaluations
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// memoKey derives a stable signature from the closure node set, the
// requested actions, and the request context. The node set is sorted so the
// signature is independent of traversal order.
func memoKey(nodeIDs []string, actions []string, reqCtx map[string]string) string {
	sorted := make([]string, len(nodeIDs))
	copy(sorted, nodeIDs)
	sort.Strings(sorted)

	ctxKeys := make([]string, 0, len(reqCtx))
	for k := range reqCtx {
		ctxKeys = append(ctxKeys, k)
	}
	sort.Strings(ctxKeys)

	var b strings.Builder
	for _, id := range sorted {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	b.WriteByte('\x00')
	for _, a := range actions {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	b.WriteByte('\x00')
	for _, k := range ctxKeys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(reqCtx[k])
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
