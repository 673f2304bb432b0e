package syncconfig

import (
	"context"

	"github.com/kt3k/vmsync/internal/model"
)

// LocalMetaStore persists a service's local sync bookkeeping
// (model.LocalMeta) under its config facade, structurally implementing
// internal/reconcile.LocalMetaStore without importing that package.
type LocalMetaStore struct {
	facade *Facade
}

// NewLocalMetaStore wraps a service-scoped facade as a LocalMetaStore.
func NewLocalMetaStore(facade *Facade) *LocalMetaStore {
	return &LocalMetaStore{facade: facade}
}

// Load implements reconcile.LocalMetaStore.
func (l *LocalMetaStore) Load(ctx context.Context) (model.LocalMeta, error) {
	return model.LocalMeta{
		Timestamp: l.facade.GetInt64(0, "meta", "timestamp"),
		LastSync:  l.facade.GetInt64(0, "meta", "lastSync"),
	}, nil
}

// Save implements reconcile.LocalMetaStore.
func (l *LocalMetaStore) Save(ctx context.Context, m model.LocalMeta) error {
	l.facade.Set(m.Timestamp, "meta", "timestamp")
	l.facade.Set(m.LastSync, "meta", "lastSync")
	return nil
}
