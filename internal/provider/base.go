package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kt3k/vmsync/internal/apperrors"
	"github.com/kt3k/vmsync/internal/model"
	"github.com/kt3k/vmsync/internal/reconcile"
	"github.com/kt3k/vmsync/internal/scriptstore"
	"github.com/kt3k/vmsync/internal/statecell"
)

// minSyncCoalesceWindow is the minimum time StartSync waits collecting
// further requests before actually running a sync.
const minSyncCoalesceWindow = 10 * time.Second

// autoSyncInterval is the hourly debounced re-trigger spec.md §4.4 arms
// after every public sync() entry, independent of the 10s coalescing
// window: a service with no activity for an hour re-checks on its own.
const autoSyncInterval = time.Hour

// Progress is a per-run fetch counter (spec.md §4.4/§4.5): total is the
// number of remote calls issued so far this sync round, finished the number
// that have completed (successfully or not).
type Progress struct {
	Finished int
	Total    int
}

// BaseService wraps a Provider with rate limiting (mirrors
// internal/notion.Client's rate.Limiter), auth/sync state cells, and a
// debounced/coalescing StartSync entry point (mirrors
// internal/webhook.SyncWorker's notify-channel loop).
type BaseService struct {
	name             string
	provider         Provider
	limiter          *rate.Limiter
	logger           *slog.Logger
	local            scriptstore.Store
	localMeta        reconcile.LocalMetaStore
	coord            Coordinator
	syncDelay        time.Duration
	autoSyncInterval time.Duration
	syncScriptStatus func() bool

	authState *statecell.Cell[statecell.AuthState]
	syncState *statecell.Cell[statecell.SyncState]

	mu            sync.Mutex
	requested     time.Time // zero when no sync is pending
	notify        chan struct{}
	autoSyncTimer *time.Timer
	progress      Progress
	lastSync      int64
}

// New builds a BaseService around a Provider. local and localMeta back the
// reconciler; coord is the process-wide dispatcher a running StartSync
// enqueues onto.
func New(p Provider, local scriptstore.Store, localMeta reconcile.LocalMetaStore, coord Coordinator, logger *slog.Logger) *BaseService {
	if logger == nil {
		logger = slog.Default()
	}
	delay := p.RateLimitDelay()
	var limiter *rate.Limiter
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &BaseService{
		name:             p.Name(),
		provider:         p,
		limiter:          limiter,
		logger:           logger.With("service", p.Name()),
		local:            local,
		localMeta:        localMeta,
		coord:            coord,
		syncDelay:        minSyncCoalesceWindow,
		autoSyncInterval: autoSyncInterval,
		authState: statecell.New("auth:"+p.Name(), statecell.AuthIdle, []statecell.AuthState{
			statecell.AuthIdle, statecell.AuthInitializing, statecell.AuthAuthorizing,
			statecell.AuthAuthorized, statecell.AuthUnauthorized, statecell.AuthError,
		}),
		syncState: statecell.New("sync:"+p.Name(), statecell.SyncIdle, []statecell.SyncState{
			statecell.SyncIdle, statecell.SyncReady, statecell.SyncSyncing, statecell.SyncError,
		}),
		notify: make(chan struct{}, 1),
	}
}

// SetSyncScriptStatus wires the global syncScriptStatus option (spec.md
// §6.4) into every future sync round. fn is read fresh on each Sync/Plan
// call; a nil fn (the default) behaves as if the option were true.
func (b *BaseService) SetSyncScriptStatus(fn func() bool) {
	b.syncScriptStatus = fn
}

// AuthState exposes the auth state cell for callers that need to observe or
// react to transitions (e.g. internal/notify's broadcaster).
func (b *BaseService) AuthState() *statecell.Cell[statecell.AuthState] { return b.authState }

// Authenticator returns the wrapped provider's Authenticator capability, if
// it has one.
func (b *BaseService) Authenticator() (Authenticator, bool) {
	auth, ok := b.provider.(Authenticator)
	return auth, ok
}

// SyncState exposes the sync state cell.
func (b *BaseService) SyncState() *statecell.Cell[statecell.SyncState] { return b.syncState }

// DisplayName delegates to the wrapped provider (spec.md §4.5 getStates).
func (b *BaseService) DisplayName() string { return b.provider.DisplayName() }

// Properties delegates to the wrapped provider.
func (b *BaseService) Properties() map[string]any { return b.provider.Properties() }

// GetUserConfig delegates to the wrapped provider.
func (b *BaseService) GetUserConfig() map[string]any { return b.provider.GetUserConfig() }

// LastSync returns the epoch-millisecond timestamp of the most recently
// completed sync round, or 0 if none has run yet.
func (b *BaseService) LastSync() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSync
}

// Progress returns a snapshot of the current (or most recent) sync round's
// fetch counter (spec.md §4.4/§4.5).
func (b *BaseService) Progress() Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress
}

// Prepare moves the service through AuthInitializing into its auth state.
// A provider without an Authenticator becomes AuthAuthorized. Otherwise
// CheckAuthURL decides: an error gives AuthError (and a KindUnauthorized
// error), a non-empty URL gives AuthUnauthorized, an empty one
// AuthAuthorized.
func (b *BaseService) Prepare(ctx context.Context) error {
	b.authState.Set(statecell.AuthInitializing)

	auth, ok := b.provider.(Authenticator)
	if !ok {
		b.authState.Set(statecell.AuthAuthorized)
		return nil
	}

	url, err := auth.CheckAuthURL(ctx)
	if err != nil {
		b.authState.Set(statecell.AuthError)
		return apperrors.New(apperrors.KindUnauthorized, err)
	}
	if url != "" {
		b.authState.Set(statecell.AuthUnauthorized)
		return nil
	}

	b.authState.Set(statecell.AuthAuthorized)
	return nil
}

// CheckSync runs one reconciliation round synchronously, bypassing the
// debounce window. This is what the coordinator's work chain, and manual
// CLI syncs, actually invoke.
func (b *BaseService) CheckSync(ctx context.Context) (*reconcile.Result, error) {
	b.syncState.Set(statecell.SyncSyncing)
	b.mu.Lock()
	b.progress = Progress{}
	b.mu.Unlock()
	defer func() {
		if b.syncState.Get() == statecell.SyncSyncing {
			b.syncState.Set(statecell.SyncReady)
		}
	}()

	r := &reconcile.Reconciler{
		Remote:           b,
		Local:            b.local,
		LocalMeta:        b.localMeta,
		Now:              func() int64 { return time.Now().UnixMilli() },
		SyncScriptStatus: b.syncScriptStatus,
	}

	result, err := r.Sync(ctx)
	if result != nil {
		b.mu.Lock()
		b.lastSync = result.LocalMeta.LastSync
		b.mu.Unlock()
	}
	if err != nil {
		b.syncState.Set(statecell.SyncError)
		b.logger.ErrorContext(ctx, "sync failed", "error", err)
		return result, err
	}

	b.logger.InfoContext(ctx, "sync completed", "items", result.Items)
	if b.coord != nil {
		b.coord.NotifyChanged()
	}
	return result, nil
}

// PlanSync computes what a sync round would do without applying or
// persisting anything, for a CLI's --dry-run preview.
func (b *BaseService) PlanSync(ctx context.Context) (*reconcile.Plan, error) {
	r := &reconcile.Reconciler{
		Remote:           b,
		Local:            b.local,
		LocalMeta:        b.localMeta,
		Now:              func() int64 { return time.Now().UnixMilli() },
		SyncScriptStatus: b.syncScriptStatus,
	}
	return r.Plan(ctx)
}

// StartSync requests a sync, coalescing repeated calls within
// minSyncCoalesceWindow into a single run (spec.md §4.4). It never blocks.
func (b *BaseService) StartSync() {
	b.mu.Lock()
	b.requested = time.Now()
	b.resetAutoSyncTimerLocked()
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// resetAutoSyncTimerLocked (re)arms the hourly debounced re-trigger
// (spec.md §4.4 Auto-sync): any StartSync call, whether user-driven or the
// timer firing itself, pushes the next automatic re-trigger a full interval
// out. Caller must hold b.mu.
func (b *BaseService) resetAutoSyncTimerLocked() {
	if b.autoSyncTimer != nil {
		b.autoSyncTimer.Stop()
	}
	b.autoSyncTimer = time.AfterFunc(b.autoSyncInterval, b.StartSync)
}

// Run drives the debounce loop until ctx is canceled. Callers start this
// once per service in a goroutine.
func (b *BaseService) Run(ctx context.Context) {
	b.logger.InfoContext(ctx, "sync service started", "coalesce_window", b.syncDelay)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.notify:
			if !b.waitForQuiet(ctx) {
				return
			}
			if b.coord != nil && !b.coord.IsCurrent(b.name) {
				b.logger.DebugContext(ctx, "dropping sync request for non-current service")
				continue
			}
			b.dispatch(ctx)
		}
	}
}

// waitForQuiet blocks until the debounce window has elapsed since the most
// recent StartSync call, re-reading the deadline on every wakeup so a fresh
// call extends the wait rather than racing a firing timer.
func (b *BaseService) waitForQuiet(ctx context.Context) bool {
	for {
		b.mu.Lock()
		remaining := b.syncDelay - time.Since(b.requested)
		b.mu.Unlock()

		if remaining <= 0 {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(remaining):
			continue
		case <-b.notify:
			continue
		}
	}
}

func (b *BaseService) dispatch(ctx context.Context) {
	if b.coord != nil {
		b.coord.Enqueue(func() {
			if _, err := b.CheckSync(ctx); err != nil {
				b.logger.WarnContext(ctx, "background sync failed", "error", err)
			}
		})
		return
	}
	if _, err := b.CheckSync(ctx); err != nil {
		b.logger.WarnContext(ctx, "background sync failed", "error", err)
	}
}

// The following methods satisfy reconcile.RemoteClient, funneling every
// remote call through the shared rate limiter (mirrors
// internal/notion.Client.do's rateLimiter.Wait).

func (b *BaseService) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// fetchStart increments progress.total at enqueue and notifies; fetchDone
// increments progress.finished at completion (success or failure) and
// notifies again (spec.md §4.4).
func (b *BaseService) fetchStart() {
	b.mu.Lock()
	b.progress.Total++
	b.mu.Unlock()
	if b.coord != nil {
		b.coord.NotifyChanged()
	}
}

func (b *BaseService) fetchDone() {
	b.mu.Lock()
	b.progress.Finished++
	b.mu.Unlock()
	if b.coord != nil {
		b.coord.NotifyChanged()
	}
}

func (b *BaseService) List(ctx context.Context) ([]model.RemoteObject, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.fetchStart()
	defer b.fetchDone()
	return b.provider.List(ctx)
}

func (b *BaseService) GetMeta(ctx context.Context) (*model.Meta, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.fetchStart()
	defer b.fetchDone()
	return b.provider.GetMeta(ctx)
}

func (b *BaseService) PutMeta(ctx context.Context, meta *model.Meta) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.fetchStart()
	defer b.fetchDone()
	return b.provider.PutMeta(ctx, meta)
}

func (b *BaseService) FetchScript(ctx context.Context, obj model.RemoteObject) (model.ScriptData, error) {
	if err := b.wait(ctx); err != nil {
		return model.ScriptData{}, err
	}
	b.fetchStart()
	defer b.fetchDone()
	return b.provider.FetchScript(ctx, obj)
}

func (b *BaseService) PutScript(ctx context.Context, uri string, data model.ScriptData) (model.RemoteObject, error) {
	if err := b.wait(ctx); err != nil {
		return model.RemoteObject{}, err
	}
	b.fetchStart()
	defer b.fetchDone()
	return b.provider.PutScript(ctx, uri, data)
}

func (b *BaseService) DeleteScript(ctx context.Context, obj model.RemoteObject) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.fetchStart()
	defer b.fetchDone()
	return b.provider.DeleteScript(ctx, obj)
}

var _ reconcile.RemoteClient = (*BaseService)(nil)
