package provider

import (
	"context"
	"testing"
	"time"

	"github.com/kt3k/vmsync/internal/model"
	"github.com/kt3k/vmsync/internal/scriptstore"
	"github.com/kt3k/vmsync/internal/statecell"
)

type fakeProvider struct {
	name    string
	objects map[string]model.ScriptData
	meta    *model.Meta
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, objects: map[string]model.ScriptData{}, meta: &model.Meta{Info: map[string]*model.MetaEntry{}}}
}

func (f *fakeProvider) Name() string                       { return f.name }
func (f *fakeProvider) RateLimitDelay() time.Duration       { return 0 }
func (f *fakeProvider) List(ctx context.Context) ([]model.RemoteObject, error) {
	out := make([]model.RemoteObject, 0, len(f.objects))
	for uri := range f.objects {
		out = append(out, model.RemoteObject{Name: "vm@2-" + uri, URI: uri})
	}
	return out, nil
}
func (f *fakeProvider) GetMeta(ctx context.Context) (*model.Meta, error) { return f.meta.Clone(), nil }
func (f *fakeProvider) PutMeta(ctx context.Context, meta *model.Meta) error {
	f.meta = meta.Clone()
	return nil
}
func (f *fakeProvider) FetchScript(ctx context.Context, obj model.RemoteObject) (model.ScriptData, error) {
	return f.objects[obj.URI], nil
}
func (f *fakeProvider) PutScript(ctx context.Context, uri string, data model.ScriptData) (model.RemoteObject, error) {
	f.objects[uri] = data
	return model.RemoteObject{Name: "vm@2-" + uri, URI: uri}, nil
}
func (f *fakeProvider) DeleteScript(ctx context.Context, obj model.RemoteObject) error {
	delete(f.objects, obj.URI)
	return nil
}
func (f *fakeProvider) DisplayName() string           { return f.name }
func (f *fakeProvider) Properties() map[string]any    { return map[string]any{} }
func (f *fakeProvider) GetUserConfig() map[string]any { return map[string]any{} }

type fakeLocalMetaStore struct{ meta model.LocalMeta }

func (f *fakeLocalMetaStore) Load(ctx context.Context) (model.LocalMeta, error) { return f.meta, nil }
func (f *fakeLocalMetaStore) Save(ctx context.Context, m model.LocalMeta) error {
	f.meta = m
	return nil
}

type fakeCoordinator struct {
	current  string
	enqueued int
}

func (c *fakeCoordinator) IsCurrent(name string) bool { return c.current == name }
func (c *fakeCoordinator) Enqueue(task func())        { c.enqueued++; task() }
func (c *fakeCoordinator) NotifyChanged()             {}

func TestBaseServiceCheckSyncUploadsLocalScript(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("demo")
	local := scriptstore.NewMemory()
	local.Seed(&model.Script{Props: model.ScriptProps{URI: "a"}, Code: "x"})

	svc := New(p, local, &fakeLocalMetaStore{}, nil, nil)

	result, err := svc.CheckSync(context.Background())
	if err != nil {
		t.Fatalf("CheckSync: %v", err)
	}
	if result.Items != 1 {
		t.Fatalf("expected 1 item, got %d", result.Items)
	}
	if svc.SyncState().Get() != statecell.SyncReady {
		t.Errorf("expected sync state ready, got %s", svc.SyncState().Get())
	}
	if _, ok := p.objects["a"]; !ok {
		t.Error("expected script uploaded to provider")
	}
}

func TestBaseServiceStartSyncCoalescesAndDispatchesOnce(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("demo")
	local := scriptstore.NewMemory()
	coord := &fakeCoordinator{current: "demo"}

	svc := New(p, local, &fakeLocalMetaStore{}, coord, nil)
	svc.syncDelay = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.Run(ctx)

	svc.StartSync()
	time.Sleep(5 * time.Millisecond)
	svc.StartSync() // should extend the debounce window rather than firing twice

	deadline := time.After(500 * time.Millisecond)
	for coord.enqueued == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for debounced sync to dispatch")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if coord.enqueued != 1 {
		t.Errorf("expected exactly 1 dispatch, got %d", coord.enqueued)
	}
}

func TestBaseServiceProgressCountsFetchesPerRun(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("demo")
	local := scriptstore.NewMemory()
	local.Seed(&model.Script{Props: model.ScriptProps{URI: "a"}, Code: "x"})

	svc := New(p, local, &fakeLocalMetaStore{}, nil, nil)

	result, err := svc.CheckSync(context.Background())
	if err != nil {
		t.Fatalf("CheckSync: %v", err)
	}
	progress := svc.Progress()
	if progress.Total == 0 || progress.Finished != progress.Total {
		t.Fatalf("expected a fully-drained progress counter, got %+v (items=%d)", progress, result.Items)
	}
}

func TestBaseServiceLastSyncPopulatedAfterCheckSync(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("demo")
	local := scriptstore.NewMemory()
	svc := New(p, local, &fakeLocalMetaStore{}, nil, nil)

	if svc.LastSync() != 0 {
		t.Fatalf("expected zero LastSync before any sync, got %d", svc.LastSync())
	}
	if _, err := svc.CheckSync(context.Background()); err != nil {
		t.Fatalf("CheckSync: %v", err)
	}
	if svc.LastSync() == 0 {
		t.Error("expected LastSync to be populated after a sync round")
	}
}

func TestBaseServiceStartSyncArmsHourlyAutoSyncTimer(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("demo")
	local := scriptstore.NewMemory()
	coord := &fakeCoordinator{current: "demo"}

	svc := New(p, local, &fakeLocalMetaStore{}, coord, nil)
	svc.syncDelay = 5 * time.Millisecond
	svc.autoSyncInterval = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	svc.StartSync()

	deadline := time.After(500 * time.Millisecond)
	for coord.enqueued < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for hourly re-trigger to dispatch a second sync, got %d dispatches", coord.enqueued)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBaseServiceStartSyncDroppedWhenNotCurrent(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("demo")
	local := scriptstore.NewMemory()
	coord := &fakeCoordinator{current: "other"}

	svc := New(p, local, &fakeLocalMetaStore{}, coord, nil)
	svc.syncDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.Run(ctx)
	svc.StartSync()
	time.Sleep(100 * time.Millisecond)

	if coord.enqueued != 0 {
		t.Errorf("expected no dispatch for non-current service, got %d", coord.enqueued)
	}
}
