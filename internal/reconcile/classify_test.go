package reconcile

import (
	"testing"

	"github.com/kt3k/vmsync/internal/model"
)

func newScript(uri string, lastModified int64, position int) *model.Script {
	return &model.Script{
		ID:    "local-" + uri,
		Props: model.ScriptProps{URI: uri, LastModified: lastModified, Position: position},
		Code:  "code:" + uri,
	}
}

func TestClassifyFirstSyncPutsEverythingLocalOrRemote(t *testing.T) {
	t.Parallel()

	meta := &model.Meta{Info: map[string]*model.MetaEntry{
		"remote-only": {Modified: 100},
	}}
	remoteList := []model.RemoteObject{{Name: "vm@2-remote-only", URI: "remote-only"}}
	localList := []*model.Script{newScript("local-only", 50, 0)}

	normalized, changed := NormalizeMeta(meta, remoteList, 200)
	plan := Classify(normalized, changed, remoteList, localList, model.LocalMeta{}, 0, 200)

	if !plan.FirstSync {
		t.Fatal("expected FirstSync true when localMeta.Timestamp == 0")
	}

	var sawPutLocal, sawPutRemote bool
	for _, it := range plan.Items {
		switch {
		case it.URI == "remote-only" && it.Bucket == BucketPutLocal:
			sawPutLocal = true
		case it.URI == "local-only" && it.Bucket == BucketPutRemote:
			sawPutRemote = true
		}
	}
	if !sawPutLocal {
		t.Error("expected remote-only script to be putLocal on first sync")
	}
	if !sawPutRemote {
		t.Error("expected local-only script to be putRemote on first sync")
	}
}

func TestClassifyPutLocalWhenRemoteNewer(t *testing.T) {
	t.Parallel()

	meta := &model.Meta{Timestamp: 1000, Info: map[string]*model.MetaEntry{
		"a": {Modified: 900},
	}}
	remoteList := []model.RemoteObject{{Name: "vm@2-a", URI: "a"}}
	localList := []*model.Script{newScript("a", 500, 0)}
	localMeta := model.LocalMeta{Timestamp: 800, LastSync: 800}

	normalized, changed := NormalizeMeta(meta, remoteList, 2000)
	plan := Classify(normalized, changed, remoteList, localList, localMeta, 0, 2000)

	if len(plan.Items) != 1 || plan.Items[0].Bucket != BucketPutLocal {
		t.Fatalf("expected single putLocal item, got %+v", plan.Items)
	}
}

func TestClassifyPutRemoteWhenLocalNewer(t *testing.T) {
	t.Parallel()

	meta := &model.Meta{Timestamp: 1000, Info: map[string]*model.MetaEntry{
		"a": {Modified: 500},
	}}
	remoteList := []model.RemoteObject{{Name: "vm@2-a", URI: "a"}}
	localList := []*model.Script{newScript("a", 900, 0)}
	localMeta := model.LocalMeta{Timestamp: 800, LastSync: 800}

	normalized, changed := NormalizeMeta(meta, remoteList, 2000)
	plan := Classify(normalized, changed, remoteList, localList, localMeta, 0, 2000)

	if len(plan.Items) != 1 || plan.Items[0].Bucket != BucketPutRemote {
		t.Fatalf("expected single putRemote item, got %+v", plan.Items)
	}
	if !plan.RemoteChanged {
		t.Error("expected RemoteChanged after bumping a script's modified stamp")
	}
}

func TestClassifyDelLocalWhenOutdatedAndScriptPredatesRemote(t *testing.T) {
	t.Parallel()

	// Remote has moved on since local's last sync (outdated), and the
	// local-only script is older than remote's timestamp, so it's treated
	// as a deletion that already happened upstream.
	meta := &model.Meta{Timestamp: 1000, Info: map[string]*model.MetaEntry{}}
	remoteList := []model.RemoteObject{}
	localList := []*model.Script{newScript("gone", 100, 0)}
	localMeta := model.LocalMeta{Timestamp: 500, LastSync: 500}

	normalized, changed := NormalizeMeta(meta, remoteList, 2000)
	plan := Classify(normalized, changed, remoteList, localList, localMeta, 0, 2000)

	if len(plan.Items) != 1 || plan.Items[0].Bucket != BucketDelLocal {
		t.Fatalf("expected single delLocal item, got %+v", plan.Items)
	}
}

func TestClassifyPutRemoteWhenNotOutdatedRecreatesMissingRemote(t *testing.T) {
	t.Parallel()

	// Remote hasn't changed since local's last sync (not outdated), so a
	// local script with no remote entry is pushed rather than deleted.
	meta := &model.Meta{Timestamp: 1000, Info: map[string]*model.MetaEntry{}}
	remoteList := []model.RemoteObject{}
	localList := []*model.Script{newScript("new-here", 100, 0)}
	localMeta := model.LocalMeta{Timestamp: 1000, LastSync: 1000}

	normalized, changed := NormalizeMeta(meta, remoteList, 2000)
	plan := Classify(normalized, changed, remoteList, localList, localMeta, 0, 2000)

	if len(plan.Items) != 1 || plan.Items[0].Bucket != BucketPutRemote {
		t.Fatalf("expected single putRemote item, got %+v", plan.Items)
	}
}

func TestClassifyDelRemoteWhenLocalRemovedScriptAndNotOutdated(t *testing.T) {
	t.Parallel()

	meta := &model.Meta{Timestamp: 1000, Info: map[string]*model.MetaEntry{
		"gone": {Modified: 900},
	}}
	remoteList := []model.RemoteObject{{Name: "vm@2-gone", URI: "gone"}}
	localList := []*model.Script{} // local no longer has this script
	localMeta := model.LocalMeta{Timestamp: 1000, LastSync: 1000}

	normalized, changed := NormalizeMeta(meta, remoteList, 2000)
	plan := Classify(normalized, changed, remoteList, localList, localMeta, 0, 2000)

	if len(plan.Items) != 1 || plan.Items[0].Bucket != BucketDelRemote {
		t.Fatalf("expected single delRemote item, got %+v", plan.Items)
	}
	if _, ok := plan.Meta.Info["gone"]; ok {
		t.Error("expected deleted entry to be dropped from returned meta")
	}
}

func TestClassifyUpdateLocalOnPositionMismatchOnly(t *testing.T) {
	t.Parallel()

	meta := &model.Meta{Timestamp: 1000, Info: map[string]*model.MetaEntry{
		"a": {Modified: 500, Position: 3},
	}}
	remoteList := []model.RemoteObject{{Name: "vm@2-a", URI: "a"}}
	localList := []*model.Script{newScript("a", 500, 1)}
	localMeta := model.LocalMeta{Timestamp: 1000, LastSync: 1000}

	normalized, changed := NormalizeMeta(meta, remoteList, 2000)
	plan := Classify(normalized, changed, remoteList, localList, localMeta, 0, 2000)

	if len(plan.Items) != 1 || plan.Items[0].Bucket != BucketUpdateLocal || plan.Items[0].Position != 3 {
		t.Fatalf("expected single updateLocal(position=3) item, got %+v", plan.Items)
	}
}
