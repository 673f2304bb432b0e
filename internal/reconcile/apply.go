package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kt3k/vmsync/internal/model"
	"github.com/kt3k/vmsync/internal/scriptstore"
)

// RemoteClient is the outbound contract a Reconciler needs from a provider.
// Implementations are expected to already be rate-limited (see
// internal/provider.BaseService), so Apply issues calls freely and lets the
// client throttle them.
type RemoteClient interface {
	List(ctx context.Context) ([]model.RemoteObject, error)
	GetMeta(ctx context.Context) (*model.Meta, error)
	PutMeta(ctx context.Context, meta *model.Meta) error
	FetchScript(ctx context.Context, obj model.RemoteObject) (model.ScriptData, error)
	PutScript(ctx context.Context, uri string, data model.ScriptData) (model.RemoteObject, error)
	DeleteScript(ctx context.Context, obj model.RemoteObject) error
}

// maxConcurrentApply bounds how many bucket items run at once, mirroring the
// reference webhook worker's preference for a handful of in-flight
// operations over an unbounded fan-out.
const maxConcurrentApply = 4

// Apply executes every item in the plan against remote and local, and
// returns the aggregate of every failure encountered. It keeps going after
// individual item failures so one bad script doesn't block the rest of the
// sync (spec.md invariant: a single item failure must not abort the batch).
func Apply(ctx context.Context, plan *Plan, remote RemoteClient, local scriptstore.Store, nowMillis int64, syncScriptStatus bool) error {
	sem := make(chan struct{}, maxConcurrentApply)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	run := func(fn func() error) {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	for _, it := range plan.Items {
		it := it
		switch it.Bucket {
		case BucketPutLocal:
			run(func() error { return applyPutLocal(ctx, it, remote, local, syncScriptStatus) })
		case BucketPutRemote:
			run(func() error { return applyPutRemote(ctx, it, remote, local, plan, nowMillis) })
		case BucketDelRemote:
			run(func() error { return applyDelRemote(ctx, it, remote) })
		case BucketDelLocal:
			run(func() error { return applyDelLocal(ctx, it, local) })
		case BucketUpdateLocal:
			run(func() error { return applyUpdateLocal(ctx, it, local) })
		default:
			slog.Warn("reconcile: skipping item with unknown bucket", "uri", it.URI, "bucket", it.Bucket)
		}
	}

	wg.Wait()
	return errors.Join(errs...)
}

func applyPutLocal(ctx context.Context, it Item, remote RemoteClient, local scriptstore.Store, syncScriptStatus bool) error {
	data, err := remote.FetchScript(ctx, it.Remote)
	if err != nil {
		return fmt.Errorf("putLocal %s: fetch: %w", it.URI, err)
	}
	if data.Code == "" {
		return nil
	}

	s := &model.Script{
		Props: model.ScriptProps{
			URI: it.URI,
		},
		Custom: data.Custom,
		Config: data.Config,
		Code:   data.Code,
	}
	if it.Local != nil {
		s.ID = it.Local.ID
		s.Props.Position = it.Local.Props.Position
	}
	if it.MetaEntry != nil {
		if it.MetaEntry.Modified != 0 {
			s.Props.LastModified = it.MetaEntry.Modified
		}
		if it.MetaEntry.Position > 0 {
			s.Props.Position = it.MetaEntry.Position
		}
	}
	if !syncScriptStatus {
		s.Config = stripEnabled(s.Config)
	}

	if err := local.Update(s); err != nil {
		return fmt.Errorf("putLocal %s: store: %w", it.URI, err)
	}
	return nil
}

// stripEnabled returns a copy of config with the "enabled" key removed, so a
// downloaded script's enablement never overrides the local device's own
// setting when syncScriptStatus is off (spec.md §4.6 putLocal).
func stripEnabled(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	if _, ok := config["enabled"]; !ok {
		return config
	}
	out := make(map[string]any, len(config)-1)
	for k, v := range config {
		if k == "enabled" {
			continue
		}
		out[k] = v
	}
	return out
}

func applyPutRemote(ctx context.Context, it Item, remote RemoteClient, local scriptstore.Store, plan *Plan, nowMillis int64) error {
	if it.Local == nil {
		return fmt.Errorf("putRemote %s: missing local script", it.URI)
	}
	data := model.ScriptData{
		Custom: it.Local.Custom,
		Config: it.Local.Config,
		Props:  model.PayloadProps{LastUpdated: it.Local.Props.LastModified},
		Code:   it.Local.Code,
	}
	if data.Props.LastUpdated == 0 {
		data.Props.LastUpdated = nowMillis
	}
	// PutScript's returned RemoteObject carries only Name/URI, and Name is
	// re-derived from a directory listing on every List call, so there is
	// nothing here worth caching against the plan.
	if _, err := remote.PutScript(ctx, it.URI, data); err != nil {
		return fmt.Errorf("putRemote %s: %w", it.URI, err)
	}
	if it.Local.Props.LastModified == 0 {
		it.Local.Props.LastModified = data.Props.LastUpdated
		if err := local.Update(it.Local); err != nil {
			return fmt.Errorf("putRemote %s: stamping local: %w", it.URI, err)
		}
	}
	return nil
}

func applyDelRemote(ctx context.Context, it Item, remote RemoteClient) error {
	if err := remote.DeleteScript(ctx, it.Remote); err != nil {
		return fmt.Errorf("delRemote %s: %w", it.URI, err)
	}
	return nil
}

func applyDelLocal(ctx context.Context, it Item, local scriptstore.Store) error {
	if it.Local == nil {
		return nil
	}
	if err := local.Remove(it.Local.ID); err != nil {
		return fmt.Errorf("delLocal %s: %w", it.URI, err)
	}
	return nil
}

func applyUpdateLocal(ctx context.Context, it Item, local scriptstore.Store) error {
	if it.Local == nil {
		return nil
	}
	pos := it.Position
	if err := local.UpdateScriptInfo(it.Local.ID, scriptstore.ScriptInfoPatch{Position: &pos}); err != nil {
		return fmt.Errorf("updateLocal %s: %w", it.URI, err)
	}
	return nil
}
