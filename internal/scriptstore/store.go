// Package scriptstore defines the script-store plugin contract (spec.md
// §6.3) the core calls into, plus a Memory reference implementation used
// by tests; the CLI uses the JSON-file-backed FileStore.
package scriptstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kt3k/vmsync/internal/model"
)

// Store is the outbound contract to the script-store plugin. It exclusively
// owns local scripts; the core only ever calls this interface.
type Store interface {
	List() []*model.Script
	Get(id string) (string, error)
	Update(data *model.Script) error
	Remove(id string) error
	SortScripts() bool
	UpdateScriptInfo(id string, patch ScriptInfoPatch) error
}

// ScriptInfoPatch is a partial update to a script's props, used by
// updateLocal (position-only updates never touch the script body).
type ScriptInfoPatch struct {
	Position *int
}

// Memory is a reference Store implementation backed by an in-process map,
// guarded by a mutex the same way the reference's LocalStore guards its
// filesystem state.
type Memory struct {
	mu      sync.RWMutex
	scripts map[string]*model.Script
	nextID  int
}

// NewMemory creates an empty in-memory script store.
func NewMemory() *Memory {
	return &Memory{scripts: map[string]*model.Script{}}
}

// Seed inserts a script with a freshly minted ID, for test setup.
func (m *Memory) Seed(s *model.Script) *model.Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = fmt.Sprintf("s%d", m.nextID)
	cp := *s
	m.scripts[s.ID] = &cp
	return &cp
}

// List implements Store.
func (m *Memory) List() []*model.Script {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Script, 0, len(m.scripts))
	for _, s := range m.scripts {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Props.Position < out[j].Props.Position })
	return out
}

// Get implements Store.
func (m *Memory) Get(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[id]
	if !ok {
		return "", fmt.Errorf("script %s: %w", id, errNotFound)
	}
	return s.Code, nil
}

// Update implements Store. If data.ID is empty, a new ID is minted
// (covers putLocal creating a script that has never existed locally).
func (m *Memory) Update(data *model.Script) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data.ID == "" {
		m.nextID++
		data.ID = fmt.Sprintf("s%d", m.nextID)
	}
	cp := *data
	m.scripts[data.ID] = &cp
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[id]; !ok {
		return fmt.Errorf("script %s: %w", id, errNotFound)
	}
	delete(m.scripts, id)
	return nil
}

// SortScripts re-normalizes positions to a dense 0..n-1 range ordered by
// current position, reporting whether anything changed.
func (m *Memory) SortScripts() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.scripts))
	for id := range m.scripts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.scripts[ids[i]].Props.Position < m.scripts[ids[j]].Props.Position
	})

	changed := false
	for i, id := range ids {
		if m.scripts[id].Props.Position != i {
			m.scripts[id].Props.Position = i
			changed = true
		}
	}
	return changed
}

// UpdateScriptInfo implements Store, touching only props (never the body).
func (m *Memory) UpdateScriptInfo(id string, patch ScriptInfoPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scripts[id]
	if !ok {
		return fmt.Errorf("script %s: %w", id, errNotFound)
	}
	if patch.Position != nil {
		s.Props.Position = *patch.Position
	}
	return nil
}

var errNotFound = errors.New("not found")
