package registry

import (
	"context"
	"testing"
	"time"

	"github.com/kt3k/vmsync/internal/model"
	"github.com/kt3k/vmsync/internal/provider"
	"github.com/kt3k/vmsync/internal/scriptstore"
	"github.com/kt3k/vmsync/internal/syncconfig"
)

type fakeProvider struct {
	name    string
	objects map[string]model.ScriptData
	meta    *model.Meta
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, objects: map[string]model.ScriptData{}, meta: &model.Meta{Info: map[string]*model.MetaEntry{}}}
}

func (f *fakeProvider) Name() string                 { return f.name }
func (f *fakeProvider) RateLimitDelay() time.Duration { return 0 }
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

func TestSyncManagerRegisterRejectsDuplicate(t *testing.T) {
	t.Parallel()

	store := syncconfig.NewMemoryOptionStore()
	config := syncconfig.NewFacade(store)
	m := NewSyncManager(config, nil)

	svc := provider.New(newFakeProvider("demo"), scriptstore.NewMemory(), syncconfig.NewLocalMetaStore(config.ForService("demo")), m, nil)
	if err := m.Register("demo", svc); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := m.Register("demo", svc); err == nil {
		t.Error("expected second Register of the same name to fail")
	}
}

func TestSyncManagerSetCurrentValidatesRegistration(t *testing.T) {
	t.Parallel()

	store := syncconfig.NewMemoryOptionStore()
	config := syncconfig.NewFacade(store)
	m := NewSyncManager(config, nil)

	if err := m.SetCurrent("missing"); err == nil {
		t.Error("expected SetCurrent to fail for an unregistered service")
	}

	svc := provider.New(newFakeProvider("demo"), scriptstore.NewMemory(), syncconfig.NewLocalMetaStore(config.ForService("demo")), m, nil)
	if err := m.Register("demo", svc); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.SetCurrent("demo"); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}

	current, ok := m.Current()
	if !ok || current != "demo" {
		t.Fatalf("expected current=demo, got %q ok=%v", current, ok)
	}
	if !m.IsCurrent("demo") {
		t.Error("expected IsCurrent(demo) true")
	}
}

func TestSyncManagerTriggerSyncRequiresCurrent(t *testing.T) {
	t.Parallel()

	store := syncconfig.NewMemoryOptionStore()
	config := syncconfig.NewFacade(store)
	m := NewSyncManager(config, nil)

	svc := provider.New(newFakeProvider("demo"), scriptstore.NewMemory(), syncconfig.NewLocalMetaStore(config.ForService("demo")), m, nil)
	if err := m.Register("demo", svc); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := m.TriggerSync("demo"); err == nil {
		t.Error("expected TriggerSync to fail before the service is current")
	}

	if err := m.SetCurrent("demo"); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if err := m.TriggerSync("demo"); err != nil {
		t.Errorf("TriggerSync after SetCurrent: %v", err)
	}
}

func TestSyncManagerCheckSyncNowUsesCurrent(t *testing.T) {
	t.Parallel()

	store := syncconfig.NewMemoryOptionStore()
	config := syncconfig.NewFacade(store)
	m := NewSyncManager(config, nil)

	local := scriptstore.NewMemory()
	local.Seed(&model.Script{Props: model.ScriptProps{URI: "a"}, Code: "x"})

	fp := newFakeProvider("demo")
	svc := provider.New(fp, local, syncconfig.NewLocalMetaStore(config.ForService("demo")), m, nil)
	if err := m.Register("demo", svc); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.SetCurrent("demo"); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}

	if err := m.CheckSyncNow(context.Background()); err != nil {
		t.Fatalf("CheckSyncNow: %v", err)
	}
	if _, ok := fp.objects["a"]; !ok {
		t.Error("expected CheckSyncNow to have uploaded the local script")
	}
}

func TestSyncManagerGetStatesReportsFullSnapshot(t *testing.T) {
	t.Parallel()

	store := syncconfig.NewMemoryOptionStore()
	config := syncconfig.NewFacade(store)
	m := NewSyncManager(config, nil)

	local := scriptstore.NewMemory()
	local.Seed(&model.Script{Props: model.ScriptProps{URI: "a"}, Code: "x"})

	fp := newFakeProvider("demo")
	svc := provider.New(fp, local, syncconfig.NewLocalMetaStore(config.ForService("demo")), m, nil)
	if err := m.Register("demo", svc); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.SetCurrent("demo"); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if err := m.CheckSyncNow(context.Background()); err != nil {
		t.Fatalf("CheckSyncNow: %v", err)
	}

	states := m.GetStates()
	if len(states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(states))
	}
	s := states[0]
	if s.Name != "demo" || s.DisplayName != "demo" {
		t.Errorf("unexpected name/displayName: %+v", s)
	}
	if s.LastSync == 0 {
		t.Error("expected LastSync to be populated after CheckSyncNow")
	}
	if s.Progress.Total == 0 || s.Progress.Finished != s.Progress.Total {
		t.Errorf("expected a drained progress counter, got %+v", s.Progress)
	}
	if s.Properties == nil || s.UserConfig == nil {
		t.Errorf("expected non-nil Properties/UserConfig maps, got %+v", s)
	}
}
