package syncconfig

import (
	"context"
	"testing"

	"github.com/kt3k/vmsync/internal/model"
)

func TestLocalMetaStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryOptionStore()
	facade := NewFacade(store).ForService("mydrive")
	lm := NewLocalMetaStore(facade)

	got, err := lm.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != (model.LocalMeta{}) {
		t.Fatalf("expected zero value before first save, got %+v", got)
	}

	want := model.LocalMeta{Timestamp: 1234, LastSync: 1200}
	if err := lm.Save(context.Background(), want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err = lm.Load(context.Background())
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
