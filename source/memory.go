package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arloliu/fillsched/types"
)

// MemoryCanisters implements types.CanisterStore and types.AssignmentCommitter in memory.
//
// Commit replaces every canister of the commit under one lock, so readers
// never observe a partially applied commit.
type MemoryCanisters struct {
	mu        sync.RWMutex
	canisters map[types.CanisterID]types.Canister
	commits   []types.Commit
	commitErr error
}

var (
	_ types.CanisterStore       = (*MemoryCanisters)(nil)
	_ types.AssignmentCommitter = (*MemoryCanisters)(nil)
)

// NewMemoryCanisters creates an empty canister store.
func NewMemoryCanisters(initial ...types.Canister) *MemoryCanisters {
	m := &MemoryCanisters{canisters: make(map[types.CanisterID]types.Canister, len(initial))}
	for _, c := range initial {
		m.canisters[c.ID] = c.Clone()
	}

	return m
}

// Status returns the canister status.
func (m *MemoryCanisters) Status(_ context.Context, id types.CanisterID) (types.CanisterStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.canisters[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrCanisterNotFound, id)
	}

	return c.Status, nil
}

// SetStatus overwrites the canister status.
func (m *MemoryCanisters) SetStatus(_ context.Context, id types.CanisterID, status types.CanisterStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.canisters[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrCanisterNotFound, id)
	}
	c.Status = status
	m.canisters[id] = c

	return nil
}

// Canister returns a copy of the canister record.
func (m *MemoryCanisters) Canister(_ context.Context, id types.CanisterID) (types.Canister, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.canisters[id]
	if !ok {
		return types.Canister{}, fmt.Errorf("%w: %s", types.ErrCanisterNotFound, id)
	}

	return c.Clone(), nil
}

// SaveCanister creates or replaces the canister record.
func (m *MemoryCanisters) SaveCanister(_ context.Context, c types.Canister) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.canisters[c.ID] = c.Clone()

	return nil
}

// CanistersOnTrolley returns the canisters whose home trolley is trolley, ordered by ID.
func (m *MemoryCanisters) CanistersOnTrolley(_ context.Context, trolley types.TrolleyID) ([]types.Canister, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []types.Canister
	for _, c := range m.canisters {
		if c.TrolleyID != nil && *c.TrolleyID == trolley {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

// Commit writes every canister of the commit atomically.
//
// A run ID that was committed before is rejected with types.ErrRunAlreadyCommitted.
func (m *MemoryCanisters) Commit(_ context.Context, commit types.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commitErr != nil {
		err := m.commitErr
		m.commitErr = nil

		return err
	}
	for _, prev := range m.commits {
		if prev.RunID == commit.RunID {
			return fmt.Errorf("%w: %s", types.ErrRunAlreadyCommitted, commit.RunID)
		}
	}

	for _, c := range commit.Canisters {
		m.canisters[c.ID] = c.Clone()
	}
	m.commits = append(m.commits, commit)

	return nil
}

// HighWater returns the highest stored order number and trolley sequence.
func (m *MemoryCanisters) HighWater(_ context.Context) (int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var order, trip int64
	for _, c := range m.canisters {
		if c.OrderNo != nil && *c.OrderNo > order {
			order = *c.OrderNo
		}
		if c.TrolleySequence != nil && *c.TrolleySequence > trip {
			trip = *c.TrolleySequence
		}
	}

	return order, trip, nil
}

// FailNextCommit makes the next Commit return err without writing anything.
func (m *MemoryCanisters) FailNextCommit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commitErr = err
}

// Commits returns the commits applied so far.
func (m *MemoryCanisters) Commits() []types.Commit {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]types.Commit(nil), m.commits...)
}

// All returns every stored canister ordered by ID.
func (m *MemoryCanisters) All() []types.Canister {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]types.Canister, 0, len(m.canisters))
	for _, c := range m.canisters {
		result = append(result, c.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result
}

type document struct {
	data     []byte
	revision uint64
}

// MemoryDocuments implements types.DocumentStore in memory.
//
// Revisions start at 1 and increase by one per successful Put.
type MemoryDocuments struct {
	mu   sync.Mutex
	docs map[string]document
}

var _ types.DocumentStore = (*MemoryDocuments)(nil)

// NewMemoryDocuments creates an empty document store.
func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string]document)}
}

// Get returns the document and its revision.
func (d *MemoryDocuments) Get(_ context.Context, key string) ([]byte, uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, ok := d.docs[key]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, key)
	}

	return append([]byte(nil), doc.data...), doc.revision, nil
}

// Put writes doc if the stored revision equals revision.
func (d *MemoryDocuments) Put(_ context.Context, key string, doc []byte, revision uint64) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.docs[key]
	if current.revision != revision {
		return 0, fmt.Errorf("%w: %s at revision %d, expected %d", types.ErrRevisionConflict, key, current.revision, revision)
	}

	next := document{data: append([]byte(nil), doc...), revision: current.revision + 1}
	d.docs[key] = next

	return next.revision, nil
}

// Keys returns the stored keys in sorted order.
func (d *MemoryDocuments) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]string, 0, len(d.docs))
	for k := range d.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
