// Package reconcile implements the diff-and-apply reconciliation algorithm
// (spec.md §4.6): given a remote meta index, a remote object list, and a
// local script list, it classifies every script into one of five buckets
// and applies the resulting plan.
package reconcile

import "github.com/kt3k/vmsync/internal/model"

// NormalizeMeta rebuilds meta.Info from the current remote listing per
// spec.md §4.6: every remote URI gets an entry (synthesizing {} if
// missing), any key with no corresponding remote object is dropped by the
// rebuild, and any entry missing "modified" gets nowMillis stamped in.
// It never mutates meta; it returns a normalized copy plus whether a
// meaningful change occurred.
func NormalizeMeta(meta *model.Meta, remoteList []model.RemoteObject, nowMillis int64) (*model.Meta, bool) {
	changed := false
	originalCount := 0
	if meta != nil {
		originalCount = len(meta.Info)
	}

	out := &model.Meta{Info: map[string]*model.MetaEntry{}}
	if meta != nil {
		out.Timestamp = meta.Timestamp
	}

	for _, obj := range remoteList {
		var entry model.MetaEntry
		if meta != nil {
			if existing, ok := meta.Info[obj.URI]; ok {
				entry = *existing
			} else {
				changed = true
			}
		} else {
			changed = true
		}
		if entry.Modified == 0 {
			entry.Modified = nowMillis
			changed = true
		}
		out.Info[obj.URI] = &entry
	}

	if out.Timestamp == 0 || originalCount != len(remoteList) {
		changed = true
	}

	return out, changed
}
