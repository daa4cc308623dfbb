package logging

import (
	"sync"
	"time"
)

// Metrics tracks traversal work, cache effectiveness, and per-identity
// outcomes across one process lifetime
type Metrics struct {
	StartTime          time.Time                   `json:"start_time"`
	EndTime            time.Time                   `json:"end_time"`
	Duration           string                      `json:"duration"`
	Identities         map[string]IdentityMetrics  `json:"identities"`
	Operations         map[string]OperationMetrics `json:"operations"`
	NodesVisited       int                         `json:"nodes_visited"`
	GrantsEvaluated    int                         `json:"grants_evaluated"`
	ResourcesExpanded  int                         `json:"resources_expanded"`
	CacheHits          int                         `json:"cache_hits"`
	IdentitiesResolved int                         `json:"identities_resolved"`
	IdentitiesFailed   int                         `json:"identities_failed"`
	mu                 sync.RWMutex
}

// IdentityMetrics tracks metrics for resolving a specific identity
type IdentityMetrics struct {
	Duration      time.Duration `json:"duration"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
	FindingsCount int           `json:"findings_count"`
	Incomplete    bool          `json:"incomplete,omitempty"`
}

// OperationMetrics tracks metrics for high-level operations
type OperationMetrics struct {
	Duration       time.Duration `json:"duration"`
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	ItemsProcessed int           `json:"items_processed"`
	ItemsFound     int           `json:"items_found"`
}

var globalMetrics *Metrics
var metricsOnce sync.Once

// GetMetrics returns the global metrics instance (singleton)
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			StartTime:  time.Now(),
			Identities: make(map[string]IdentityMetrics),
			Operations: make(map[string]OperationMetrics),
		}
	})
	return globalMetrics
}

// RecordNodesVisited adds to the traversal node counter
func (m *Metrics) RecordNodesVisited(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NodesVisited += count
}

// RecordGrantsEvaluated adds to the evaluated grant counter
func (m *Metrics) RecordGrantsEvaluated(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GrantsEvaluated += count
}

// RecordResourcesExpanded adds to the expanded resource counter
func (m *Metrics) RecordResourcesExpanded(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResourcesExpanded += count
}

// RecordCacheHit records a memo cache hit
func (m *Metrics) RecordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits++
}

// RecordIdentity records the outcome of resolving one identity
func (m *Metrics) RecordIdentity(identityID string, duration time.Duration, success, incomplete bool, findingsCount int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	im := IdentityMetrics{
		Duration:      duration,
		Success:       success,
		FindingsCount: findingsCount,
		Incomplete:    incomplete,
	}
	if err != nil {
		im.Error = err.Error()
	}
	m.Identities[identityID] = im

	if success {
		m.IdentitiesResolved++
	} else {
		m.IdentitiesFailed++
	}
}

// RecordOperation records a high-level operation
func (m *Metrics) RecordOperation(operationName string, duration time.Duration, success bool, itemsProcessed, itemsFound int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opMetrics := OperationMetrics{
		Duration:       duration,
		Success:        success,
		ItemsProcessed: itemsProcessed,
		ItemsFound:     itemsFound,
	}
	if err != nil {
		opMetrics.Error = err.Error()
	}
	m.Operations[operationName] = opMetrics
}
