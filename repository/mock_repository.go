package repository

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockRepository implements Repository in memory. It backs tests and the
// "memory" storage driver. Transactions work on a private copy of the table
// and swap it in on commit, so a failed unit of work leaves no trace.
type MockRepository struct {
	mu    sync.RWMutex
	txMu  sync.Mutex // serializes writers, transactional or not
	nodes nodeTable

	callsMu  sync.Mutex
	calls    map[string]int
	failures map[string]injectedFailure
}

type injectedFailure struct {
	after int
	err   error
}

// NewMockRepository creates a new mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{
		nodes:    make(nodeTable),
		calls:    make(map[string]int),
		failures: make(map[string]injectedFailure),
	}
}

// Initialize performs any necessary setup
func (m *MockRepository) Initialize(ctx context.Context) error {
	return nil
}

// Cleanup drops every stored node
func (m *MockRepository) Cleanup(ctx context.Context) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = make(nodeTable)
	return nil
}

// InjectFailure makes the named operation fail with err once it has been
// called more than after times. Operation names are the Store method names.
func (m *MockRepository) InjectFailure(op string, after int, err error) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.failures[op] = injectedFailure{after: after, err: err}
}

// CallCount returns how many times the named Store operation ran
func (m *MockRepository) CallCount(op string) int {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	return m.calls[op]
}

// ResetCalls clears call counters and injected failures
func (m *MockRepository) ResetCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.calls = make(map[string]int)
	m.failures = make(map[string]injectedFailure)
}

func (m *MockRepository) record(op string) error {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.calls[op]++
	if f, ok := m.failures[op]; ok && m.calls[op] > f.after {
		return f.err
	}
	return nil
}

// GetNode retrieves a node by ID
func (m *MockRepository) GetNode(ctx context.Context, id string) (*Node, error) {
	if err := m.record("GetNode"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes.get(id)
}

// GetNodes retrieves the nodes with the given IDs
func (m *MockRepository) GetNodes(ctx context.Context, ids []string) ([]*Node, error) {
	if err := m.record("GetNodes"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes.getMany(ids), nil
}

// GetChildrenOf retrieves the children of every given parent
func (m *MockRepository) GetChildrenOf(ctx context.Context, parentIDs []string) ([]*Node, error) {
	if err := m.record("GetChildrenOf"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes.childrenOf(parentIDs), nil
}

// GetNodesByOwner retrieves all nodes of one owner
func (m *MockRepository) GetNodesByOwner(ctx context.Context, ownerID string) ([]*Node, error) {
	if err := m.record("GetNodesByOwner"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes.byOwner(ownerID), nil
}

// CreateNodes stores new nodes
func (m *MockRepository) CreateNodes(ctx context.Context, nodes []*Node) error {
	if err := m.record("CreateNodes"); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes.create(nodes)
}

// UpdateNodes applies a patch to the given nodes
func (m *MockRepository) UpdateNodes(ctx context.Context, ids []string, patch NodePatch) (int64, error) {
	if err := m.record("UpdateNodes"); err != nil {
		return 0, err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes.update(ids, patch), nil
}

// DeleteNodes removes the given nodes
func (m *MockRepository) DeleteNodes(ctx context.Context, ids []string) (int64, error) {
	if err := m.record("DeleteNodes"); err != nil {
		return 0, err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes.remove(ids), nil
}

// WithTransaction runs fn against a copy of the table and publishes the copy
// only when fn succeeds
func (m *MockRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	working := m.nodes.clone()
	m.mu.RUnlock()

	tx := &mockTx{repo: m, nodes: working}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.nodes = working
	m.mu.Unlock()
	return nil
}

// mockTx is the Store handed to a MockRepository transaction
type mockTx struct {
	repo  *MockRepository
	nodes nodeTable
}

func (t *mockTx) GetNode(ctx context.Context, id string) (*Node, error) {
	if err := t.repo.record("GetNode"); err != nil {
		return nil, err
	}
	return t.nodes.get(id)
}

func (t *mockTx) GetNodes(ctx context.Context, ids []string) ([]*Node, error) {
	if err := t.repo.record("GetNodes"); err != nil {
		return nil, err
	}
	return t.nodes.getMany(ids), nil
}

func (t *mockTx) GetChildrenOf(ctx context.Context, parentIDs []string) ([]*Node, error) {
	if err := t.repo.record("GetChildrenOf"); err != nil {
		return nil, err
	}
	return t.nodes.childrenOf(parentIDs), nil
}

func (t *mockTx) GetNodesByOwner(ctx context.Context, ownerID string) ([]*Node, error) {
	if err := t.repo.record("GetNodesByOwner"); err != nil {
		return nil, err
	}
	return t.nodes.byOwner(ownerID), nil
}

func (t *mockTx) CreateNodes(ctx context.Context, nodes []*Node) error {
	if err := t.repo.record("CreateNodes"); err != nil {
		return err
	}
	return t.nodes.create(nodes)
}

func (t *mockTx) UpdateNodes(ctx context.Context, ids []string, patch NodePatch) (int64, error) {
	if err := t.repo.record("UpdateNodes"); err != nil {
		return 0, err
	}
	return t.nodes.update(ids, patch), nil
}

func (t *mockTx) DeleteNodes(ctx context.Context, ids []string) (int64, error) {
	if err := t.repo.record("DeleteNodes"); err != nil {
		return 0, err
	}
	return t.nodes.remove(ids), nil
}

// nodeTable is an unsynchronized id -> node map. Callers hold the locks.
// Nodes handed out are copies.
type nodeTable map[string]*Node

func (t nodeTable) clone() nodeTable {
	c := make(nodeTable, len(t))
	for id, n := range t {
		c[id] = n.Clone()
	}
	return c
}

func (t nodeTable) get(id string) (*Node, error) {
	n, ok := t[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n.Clone(), nil
}

func (t nodeTable) getMany(ids []string) []*Node {
	result := make([]*Node, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		if n, ok := t[id]; ok {
			result = append(result, n.Clone())
		}
	}
	return result
}

func (t nodeTable) childrenOf(parentIDs []string) []*Node {
	parents := make(map[string]struct{}, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = struct{}{}
	}
	var result []*Node
	for _, n := range t {
		if n.ParentID == nil {
			continue
		}
		if _, ok := parents[*n.ParentID]; ok {
			result = append(result, n.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if *result[i].ParentID != *result[j].ParentID {
			return *result[i].ParentID < *result[j].ParentID
		}
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (t nodeTable) byOwner(ownerID string) []*Node {
	var result []*Node
	for _, n := range t {
		if n.OwnerID == ownerID {
			result = append(result, n.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Level != result[j].Level {
			return result[i].Level < result[j].Level
		}
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (t nodeTable) create(nodes []*Node) error {
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			return ErrInvalidInput
		}
		if _, exists := t[n.ID]; exists {
			return ErrDuplicateNode
		}
	}
	now := time.Now().UTC()
	for _, n := range nodes {
		c := n.Clone()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		t[c.ID] = c
	}
	return nil
}

func (t nodeTable) update(ids []string, patch NodePatch) int64 {
	var affected int64
	now := time.Now().UTC()
	for _, id := range uniqueIDs(ids) {
		n, ok := t[id]
		if !ok {
			continue
		}
		patch.Apply(n)
		n.UpdatedAt = now
		affected++
	}
	return affected
}

func (t nodeTable) remove(ids []string) int64 {
	var affected int64
	for _, id := range uniqueIDs(ids) {
		if _, ok := t[id]; ok {
			delete(t, id)
			affected++
		}
	}
	return affected
}
