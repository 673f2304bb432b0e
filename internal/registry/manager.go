// Package registry implements SyncManager, the process-wide dispatcher that
// owns every registered provider service, tracks which one is "current",
// and serializes all sync work onto a single FIFO chain (spec.md §4.5).
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kt3k/vmsync/internal/apperrors"
	"github.com/kt3k/vmsync/internal/provider"
	"github.com/kt3k/vmsync/internal/reconcile"
	"github.com/kt3k/vmsync/internal/statecell"
	"github.com/kt3k/vmsync/internal/syncconfig"
)

// ServiceState is a snapshot of one service's auth/sync state, returned by
// GetStates for display or the notify broadcaster (spec.md §4.5).
type ServiceState struct {
	Name        string
	DisplayName string
	Auth        statecell.AuthState
	Sync        statecell.SyncState
	LastSync    int64
	Progress    provider.Progress
	Properties  map[string]any
	UserConfig  map[string]any
}

// SyncManager registers provider services, tracks the current one, and
// implements provider.Coordinator so a BaseService's debounced StartSync
// can enqueue work here instead of running unserialized.
type SyncManager struct {
	mu       sync.RWMutex
	services map[string]*provider.BaseService
	config   *syncconfig.Facade
	logger   *slog.Logger

	work chan func()

	changedMu sync.Mutex
	onChanged func()
}

// NewSyncManager creates an empty manager. Call Register for each provider
// service, then Start to launch the work chain and each service's debounce
// loop.
func NewSyncManager(config *syncconfig.Facade, logger *slog.Logger) *SyncManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncManager{
		services: map[string]*provider.BaseService{},
		config:   config,
		logger:   logger,
		work:     make(chan func(), 16),
	}
}

// Register adds a named service. It is an error to register the same name
// twice.
func (m *SyncManager) Register(name string, svc *provider.BaseService) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.services[name]; exists {
		return apperrors.ErrAlreadyRegistered
	}
	m.services[name] = svc
	return nil
}

// Start launches the single-worker FIFO work chain and every registered
// service's debounce loop. It returns once ctx is canceled.
func (m *SyncManager) Start(ctx context.Context) {
	m.mu.RLock()
	services := make([]*provider.BaseService, 0, len(m.services))
	for _, svc := range m.services {
		services = append(services, svc)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, svc := range services {
		wg.Add(1)
		go func(s *provider.BaseService) {
			defer wg.Done()
			s.Run(ctx)
		}(svc)
	}

	m.runWorkChain(ctx)
	wg.Wait()
}

// runWorkChain drains m.work sequentially, guaranteeing at most one sync
// task executes at a time process-wide.
func (m *SyncManager) runWorkChain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-m.work:
			task()
		}
	}
}

// Enqueue implements provider.Coordinator.
func (m *SyncManager) Enqueue(task func()) {
	select {
	case m.work <- task:
	default:
		// Work chain is saturated; run inline rather than drop the sync
		// request, same tradeoff the teacher's worker makes by favoring a
		// buffered channel of size 1 over dropping notifications silently.
		task()
	}
}

// IsCurrent implements provider.Coordinator.
func (m *SyncManager) IsCurrent(name string) bool {
	current, ok := m.Current()
	return ok && current == name
}

// NotifyChanged implements provider.Coordinator.
func (m *SyncManager) NotifyChanged() {
	m.changedMu.Lock()
	cb := m.onChanged
	m.changedMu.Unlock()
	if cb != nil {
		cb()
	}
}

// OnChanged registers the callback NotifyChanged invokes, typically wiring
// to internal/notify's debounced broadcaster.
func (m *SyncManager) OnChanged(fn func()) {
	m.changedMu.Lock()
	defer m.changedMu.Unlock()
	m.onChanged = fn
}

// Current returns the name of the currently active service.
func (m *SyncManager) Current() (string, bool) {
	name := m.config.GetString("", "current")
	if name == "" {
		return "", false
	}
	m.mu.RLock()
	_, ok := m.services[name]
	m.mu.RUnlock()
	return name, ok
}

// SetCurrent switches the active service, validating it is registered.
func (m *SyncManager) SetCurrent(name string) error {
	m.mu.RLock()
	_, ok := m.services[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("set current %q: %w", name, apperrors.ErrProviderNotFound)
	}
	m.config.Set(name, "current")
	m.NotifyChanged()
	return nil
}

// lookup returns the named service or ErrProviderNotFound.
func (m *SyncManager) lookup(name string) (*provider.BaseService, error) {
	m.mu.RLock()
	svc, ok := m.services[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, apperrors.ErrProviderNotFound)
	}
	return svc, nil
}

// TriggerSync requests a debounced sync on the named service. It errors if
// the service isn't registered or isn't the current one.
func (m *SyncManager) TriggerSync(name string) error {
	svc, err := m.lookup(name)
	if err != nil {
		return err
	}
	if !m.IsCurrent(name) {
		return fmt.Errorf("trigger sync %q: %w", name, apperrors.ErrNotCurrent)
	}
	svc.StartSync()
	return nil
}

// CheckSyncNow runs a synchronous, non-debounced sync on the current
// service, for CLI-driven "sync now" calls.
func (m *SyncManager) CheckSyncNow(ctx context.Context) error {
	name, ok := m.Current()
	if !ok {
		return apperrors.ErrNoCurrentProvider
	}
	svc, err := m.lookup(name)
	if err != nil {
		return err
	}
	_, err = svc.CheckSync(ctx)
	return err
}

// PlanCurrent computes, without applying, what a sync on the current
// service would do — the read-only half CheckSyncNow's --dry-run variant
// needs.
func (m *SyncManager) PlanCurrent(ctx context.Context) (*reconcile.Plan, error) {
	name, ok := m.Current()
	if !ok {
		return nil, apperrors.ErrNoCurrentProvider
	}
	svc, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return svc.PlanSync(ctx)
}

// CheckAuthURL delegates to the named service's Authenticator; it returns
// "" and no error for a service without one. It does not call Prepare.
func (m *SyncManager) CheckAuthURL(ctx context.Context, name string) (string, error) {
	svc, err := m.lookup(name)
	if err != nil {
		return "", err
	}
	auth, ok := svc.Authenticator()
	if !ok {
		return "", nil
	}
	return auth.CheckAuthURL(ctx)
}

// Authorize completes the named service's auth flow.
func (m *SyncManager) Authorize(ctx context.Context, name, credential string) error {
	svc, err := m.lookup(name)
	if err != nil {
		return err
	}
	auth, ok := svc.Authenticator()
	if !ok {
		return fmt.Errorf("authorize %q: %w", name, apperrors.ErrNotAuthorized)
	}
	if err := auth.Authorize(ctx, credential); err != nil {
		return err
	}
	svc.AuthState().Set(statecell.AuthAuthorized)
	m.NotifyChanged()
	return nil
}

// Revoke forgets the named service's stored credential.
func (m *SyncManager) Revoke(ctx context.Context, name string) error {
	svc, err := m.lookup(name)
	if err != nil {
		return err
	}
	auth, ok := svc.Authenticator()
	if !ok {
		return nil
	}
	if err := auth.Revoke(ctx); err != nil {
		return err
	}
	svc.AuthState().Set(statecell.AuthUnauthorized)
	m.NotifyChanged()
	return nil
}

// GetStates returns a snapshot of every registered service's auth/sync
// state, for CLI display or an SSE payload.
func (m *SyncManager) GetStates() []ServiceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServiceState, 0, len(m.services))
	for name, svc := range m.services {
		out = append(out, ServiceState{
			Name:        name,
			DisplayName: svc.DisplayName(),
			Auth:        svc.AuthState().Get(),
			Sync:        svc.SyncState().Get(),
			LastSync:    svc.LastSync(),
			Progress:    svc.Progress(),
			Properties:  svc.Properties(),
			UserConfig:  svc.GetUserConfig(),
		})
	}
	return out
}
