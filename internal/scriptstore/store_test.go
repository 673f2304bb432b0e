package scriptstore

import (
	"testing"

	"github.com/kt3k/vmsync/internal/model"
)

func TestMemorySortScripts(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	a := m.Seed(&model.Script{Props: model.ScriptProps{URI: "a", Position: 5}})
	b := m.Seed(&model.Script{Props: model.ScriptProps{URI: "b", Position: 1}})

	if !m.SortScripts() {
		t.Fatal("expected SortScripts to report a change")
	}

	list := m.List()
	if len(list) != 2 || list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("unexpected order after sort: %+v", list)
	}

	if m.SortScripts() {
		t.Error("expected second SortScripts call to be a no-op")
	}
}

func TestMemoryUpdateScriptInfoPositionOnly(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	s := m.Seed(&model.Script{Props: model.ScriptProps{URI: "a", Position: 0}, Code: "// keep me"})

	newPos := 7
	if err := m.UpdateScriptInfo(s.ID, ScriptInfoPatch{Position: &newPos}); err != nil {
		t.Fatalf("UpdateScriptInfo: %v", err)
	}

	code, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if code != "// keep me" {
		t.Errorf("expected code untouched, got %q", code)
	}

	list := m.List()
	if list[0].Props.Position != 7 {
		t.Errorf("expected position 7, got %d", list[0].Props.Position)
	}
}

func TestMemoryRemoveMissingErrors(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	if err := m.Remove("missing"); err == nil {
		t.Error("expected error removing missing script")
	}
}
