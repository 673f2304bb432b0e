package syncconfig

import "testing"

func TestServiceFacadeScopesKeys(t *testing.T) {
	t.Parallel()

	store := NewMemoryOptionStore()
	root := NewFacade(store)
	svc := root.ForService("mydrive")

	svc.Set("tok123", "token")
	if got := svc.GetString("", "token"); got != "tok123" {
		t.Errorf("got %q, want tok123", got)
	}

	if _, ok := store.Get("sync.services.mydrive.token"); !ok {
		t.Error("expected underlying key sync.services.mydrive.token to be set")
	}

	// Root facade must not see the service-scoped key at its own path.
	if got := root.GetString("missing", "token"); got != "missing" {
		t.Errorf("root facade leaked service key: got %q", got)
	}
}

func TestFacadeSetPatch(t *testing.T) {
	t.Parallel()

	store := NewMemoryOptionStore()
	svc := NewFacade(store).ForService("mydrive")

	svc.SetPatch(map[string]any{"meta": map[string]any{"timestamp": int64(5)}})
	v := svc.Get(nil, "meta")
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", v)
	}
	if m["timestamp"] != int64(5) {
		t.Errorf("got %v", m["timestamp"])
	}
}

func TestFacadeClearWipesServiceSubtreeOnly(t *testing.T) {
	t.Parallel()

	store := NewMemoryOptionStore()
	root := NewFacade(store)
	svc := root.ForService("mydrive")
	svc.Set("tok", "token")
	root.Set("mydrive", "current")

	svc.Clear()

	if _, ok := store.Get("sync.services.mydrive.token"); ok {
		t.Error("expected service token to be cleared")
	}
	if got := root.GetString("", "current"); got != "mydrive" {
		t.Error("root current should survive service clear")
	}
}

func TestNewFacadeEnsuresServicesRoot(t *testing.T) {
	t.Parallel()

	store := NewMemoryOptionStore()
	NewFacade(store)
	if _, ok := store.Get("sync.services"); !ok {
		t.Error("expected sync.services to be initialized")
	}
}
