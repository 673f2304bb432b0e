package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kt3k/vmsync/internal/model"
	"github.com/kt3k/vmsync/internal/scriptstore"
)

// LocalMetaStore persists the local sync bookkeeping (spec.md's
// localMeta.timestamp / lastSync), separate from the scripts themselves.
type LocalMetaStore interface {
	Load(ctx context.Context) (model.LocalMeta, error)
	Save(ctx context.Context, m model.LocalMeta) error
}

// Locker is an optional capability a RemoteClient may implement to guard a
// sync round against concurrent writers on the remote side (mirrors the
// reference store's BeginTx/Lock/Unlock pair).
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Clock returns the current time in epoch milliseconds. Tests supply a
// fixed clock; production wires time.Now().
type Clock func() int64

// Reconciler ties normalization, classification and application into the
// three explicit phases spec.md §9 calls for: classify, apply, finalize.
type Reconciler struct {
	Remote           RemoteClient
	Local            scriptstore.Store
	LocalMeta        LocalMetaStore
	Now              Clock
	GlobalModTime    func() int64 // last-modified across all local scripts, for the position-conflict check
	SyncScriptStatus func() bool  // the global syncScriptStatus option; nil means true (spec.md §6.4)
}

// Result summarizes one Sync call, for logging and tests.
type Result struct {
	Plan      *Plan
	Items     int
	LocalMeta model.LocalMeta
}

// Sync runs one full reconciliation round: fetch remote state, normalize
// and classify it against local state, apply the resulting plan, then
// persist whatever changed. A failure in any single item does not abort
// the round; it is folded into the returned error via errors.Join.
func (r *Reconciler) Sync(ctx context.Context) (*Result, error) {
	if locker, ok := r.Remote.(Locker); ok {
		if err := locker.Lock(ctx); err != nil {
			return nil, fmt.Errorf("reconcile: lock: %w", err)
		}
		defer func() {
			if err := locker.Unlock(ctx); err != nil {
				slog.Warn("reconcile: unlock failed", "error", err)
			}
		}()
	}

	remoteList, err := r.Remote.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list remote: %w", err)
	}

	rawMeta, err := r.Remote.GetMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: get meta: %w", err)
	}

	now := r.now()
	normalized, metaChanged := NormalizeMeta(rawMeta, remoteList, now)

	localMeta, err := r.LocalMeta.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load local meta: %w", err)
	}

	localList := r.Local.List()

	var globalLastModified int64
	if r.GlobalModTime != nil {
		globalLastModified = r.GlobalModTime()
	}

	plan := Classify(normalized, metaChanged, remoteList, localList, localMeta, globalLastModified, now)

	syncScriptStatus := true
	if r.SyncScriptStatus != nil {
		syncScriptStatus = r.SyncScriptStatus()
	}
	applyErr := Apply(ctx, plan, r.Remote, r.Local, now, syncScriptStatus)

	if r.Local.SortScripts() {
		slog.Debug("reconcile: local positions renormalized after sync")
		plan.RemoteChanged = true
		for _, s := range r.Local.List() {
			if entry, ok := plan.Meta.Info[s.Props.URI]; ok {
				entry.Position = s.Props.Position
			}
		}
	}

	if plan.RemoteChanged {
		plan.Meta.Timestamp = now
		if err := r.Remote.PutMeta(ctx, plan.Meta); err != nil {
			applyErr = joinErr(applyErr, fmt.Errorf("reconcile: put meta: %w", err))
		}
	}

	// localMeta.timestamp advances unconditionally, even if a remote write
	// above failed: a partial sync still moves the local clock forward so
	// the next round doesn't re-treat everything as first sync.
	localMeta.Timestamp = now
	localMeta.LastSync = now
	if err := r.LocalMeta.Save(ctx, localMeta); err != nil {
		applyErr = joinErr(applyErr, fmt.Errorf("reconcile: save local meta: %w", err))
	}

	return &Result{Plan: plan, Items: len(plan.Items), LocalMeta: localMeta}, applyErr
}

// Plan runs classification only, without applying or persisting anything —
// the read-only half of Sync, for a CLI's --dry-run preview.
func (r *Reconciler) Plan(ctx context.Context) (*Plan, error) {
	remoteList, err := r.Remote.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list remote: %w", err)
	}

	rawMeta, err := r.Remote.GetMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: get meta: %w", err)
	}

	now := r.now()
	normalized, metaChanged := NormalizeMeta(rawMeta, remoteList, now)

	localMeta, err := r.LocalMeta.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load local meta: %w", err)
	}

	localList := r.Local.List()

	var globalLastModified int64
	if r.GlobalModTime != nil {
		globalLastModified = r.GlobalModTime()
	}

	return Classify(normalized, metaChanged, remoteList, localList, localMeta, globalLastModified, now), nil
}

func (r *Reconciler) now() int64 {
	if r.Now != nil {
		return r.Now()
	}
	return 0
}

func joinErr(a, b error) error {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return fmt.Errorf("%w; %w", a, b)
}
