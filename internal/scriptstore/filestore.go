package scriptstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kt3k/vmsync/internal/model"
)

const (
	fileStoreDirPerm  = 0o750
	fileStoreFilePerm = 0o600
)

// FileStore is a JSON-file-backed Store, the persistent counterpart to
// Memory for the CLI/gitprovider demo: without it every "local script"
// would vanish between process runs and the demo's sync path would never
// have anything real to reconcile.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	scripts map[string]*model.Script
	nextID  int
	logger  *slog.Logger
}

type fileStoreDoc struct {
	NextID  int                       `json:"nextId"`
	Scripts map[string]*model.Script `json:"scripts"`
}

// NewFileStore loads path (creating an empty store if it doesn't exist).
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{path: path, scripts: map[string]*model.Script{}, logger: logger}

	raw, err := os.ReadFile(path) //nolint:gosec // path is application controlled
	switch {
	case err == nil:
		var doc fileStoreDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("scriptstore: parse %s: %w", path, err)
		}
		s.nextID = doc.NextID
		if doc.Scripts != nil {
			s.scripts = doc.Scripts
		}
	case os.IsNotExist(err):
		// Fresh store; persisted on first mutation.
	default:
		return nil, fmt.Errorf("scriptstore: read %s: %w", path, err)
	}
	return s, nil
}

// Seed inserts a script with a freshly minted ID, mirroring Memory.Seed for
// CLI bootstrap ("import" of an existing file into the store).
func (s *FileStore) Seed(sc *model.Script) *model.Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sc.ID = fmt.Sprintf("s%d", s.nextID)
	cp := *sc
	s.scripts[sc.ID] = &cp
	s.persist()
	return &cp
}

// List implements Store.
func (s *FileStore) List() []*model.Script {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Script, 0, len(s.scripts))
	for _, sc := range s.scripts {
		cp := *sc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Props.Position < out[j].Props.Position })
	return out
}

// Get implements Store.
func (s *FileStore) Get(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scripts[id]
	if !ok {
		return "", fmt.Errorf("script %s: %w", id, errNotFound)
	}
	return sc.Code, nil
}

// Update implements Store.
func (s *FileStore) Update(data *model.Script) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data.ID == "" {
		s.nextID++
		data.ID = fmt.Sprintf("s%d", s.nextID)
	}
	cp := *data
	s.scripts[data.ID] = &cp
	s.persist()
	return nil
}

// Remove implements Store.
func (s *FileStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scripts[id]; !ok {
		return fmt.Errorf("script %s: %w", id, errNotFound)
	}
	delete(s.scripts, id)
	s.persist()
	return nil
}

// SortScripts implements Store.
func (s *FileStore) SortScripts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.scripts))
	for id := range s.scripts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.scripts[ids[i]].Props.Position < s.scripts[ids[j]].Props.Position
	})

	changed := false
	for i, id := range ids {
		if s.scripts[id].Props.Position != i {
			s.scripts[id].Props.Position = i
			changed = true
		}
	}
	if changed {
		s.persist()
	}
	return changed
}

// UpdateScriptInfo implements Store.
func (s *FileStore) UpdateScriptInfo(id string, patch ScriptInfoPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scripts[id]
	if !ok {
		return fmt.Errorf("script %s: %w", id, errNotFound)
	}
	if patch.Position != nil {
		sc.Props.Position = *patch.Position
	}
	s.persist()
	return nil
}

// persist rewrites the whole file. Caller must hold s.mu.
func (s *FileStore) persist() {
	data, err := json.MarshalIndent(fileStoreDoc{NextID: s.nextID, Scripts: s.scripts}, "", "  ")
	if err != nil {
		s.logger.Error("scriptstore: marshal store", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), fileStoreDirPerm); err != nil {
		s.logger.Error("scriptstore: create store dir", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, fileStoreFilePerm); err != nil {
		s.logger.Error("scriptstore: write store", "path", s.path, "error", err)
	}
}

var _ Store = (*FileStore)(nil)
