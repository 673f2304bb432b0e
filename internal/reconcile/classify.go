package reconcile

import "github.com/kt3k/vmsync/internal/model"

// Bucket names the five classification outcomes of spec.md §4.6.
type Bucket int

// The five buckets.
const (
	BucketPutLocal Bucket = iota
	BucketPutRemote
	BucketDelRemote
	BucketDelLocal
	BucketUpdateLocal
)

// String returns the bucket's name for display purposes (CLI dry-run
// output, logging).
func (b Bucket) String() string {
	switch b {
	case BucketPutLocal:
		return "putLocal"
	case BucketPutRemote:
		return "putRemote"
	case BucketDelRemote:
		return "delRemote"
	case BucketDelLocal:
		return "delLocal"
	case BucketUpdateLocal:
		return "updateLocal"
	default:
		return "unknown"
	}
}

// Item is one script or remote object placed into a bucket.
type Item struct {
	Bucket    Bucket
	URI       string
	Local     *model.Script      // set for putRemote, delLocal, updateLocal, and putLocal-of-a-known-local-script
	Remote    model.RemoteObject // set for putLocal, delRemote, and putRemote-over-existing
	Position  int                // target position for updateLocal
	MetaEntry *model.MetaEntry   // the remote meta record backing a putLocal, for info.modified/info.position
}

// Plan is the classifier's output, ready for Apply.
type Plan struct {
	Meta          *model.Meta
	RemoteChanged bool
	FirstSync     bool
	Items         []Item
}

// Classify implements the five-bucket classification of spec.md §4.6. meta
// must already be the normalized remote meta (see NormalizeMeta); metaChanged
// is that normalization's changed flag, folded into the returned Plan.
func Classify(
	meta *model.Meta,
	metaChanged bool,
	remoteList []model.RemoteObject,
	localList []*model.Script,
	localMeta model.LocalMeta,
	globalLastModified int64,
	nowMillis int64,
) *Plan {
	plan := &Plan{Meta: meta.Clone(), RemoteChanged: metaChanged}

	remoteByURI := make(map[string]model.RemoteObject, len(remoteList))
	for _, obj := range remoteList {
		remoteByURI[obj.URI] = obj
	}
	remaining := make(map[string]model.RemoteObject, len(remoteByURI))
	for k, v := range remoteByURI {
		remaining[k] = v
	}

	firstSync := localMeta.Timestamp == 0
	plan.FirstSync = firstSync
	remoteTimestamp := plan.Meta.Timestamp
	outdated := firstSync || remoteTimestamp > localMeta.Timestamp

	for _, local := range localList {
		uri := local.Props.URI
		entry, hasRemote := plan.Meta.Info[uri]

		if hasRemote {
			delete(remaining, uri)

			if firstSync || local.Props.LastModified == 0 || entry.Modified > local.Props.LastModified {
				plan.Items = append(plan.Items, Item{
					Bucket:    BucketPutLocal,
					URI:       uri,
					Local:     local,
					Remote:    remoteByURI[uri],
					MetaEntry: entry,
				})
				continue
			}

			if entry.Modified < local.Props.LastModified {
				plan.Items = append(plan.Items, Item{
					Bucket: BucketPutRemote,
					URI:    uri,
					Local:  local,
					Remote: remoteByURI[uri],
				})
				entry.Modified = local.Props.LastModified
				plan.RemoteChanged = true
			}

			if entry.Position != local.Props.Position {
				if entry.Position != 0 && globalLastModified <= remoteTimestamp {
					plan.Items = append(plan.Items, Item{
						Bucket:   BucketUpdateLocal,
						URI:      uri,
						Local:    local,
						Position: entry.Position,
					})
				} else {
					entry.Position = local.Props.Position
					plan.RemoteChanged = true
				}
			}
			continue
		}

		// No remote entry for this local script.
		if firstSync || !outdated || local.Props.LastModified > remoteTimestamp {
			plan.Items = append(plan.Items, Item{
				Bucket: BucketPutRemote,
				URI:    uri,
				Local:  local,
			})
			modified := local.Props.LastModified
			if modified == 0 {
				modified = nowMillis
			}
			plan.Meta.Info[uri] = &model.MetaEntry{Modified: modified, Position: local.Props.Position}
			plan.RemoteChanged = true
		} else {
			plan.Items = append(plan.Items, Item{
				Bucket: BucketDelLocal,
				URI:    uri,
				Local:  local,
			})
		}
	}

	for uri, obj := range remaining {
		if outdated {
			plan.Items = append(plan.Items, Item{
				Bucket:    BucketPutLocal,
				URI:       uri,
				Remote:    obj,
				MetaEntry: plan.Meta.Info[uri],
			})
		} else {
			plan.Items = append(plan.Items, Item{
				Bucket: BucketDelRemote,
				URI:    uri,
				Remote: obj,
			})
			delete(plan.Meta.Info, uri)
			plan.RemoteChanged = true
		}
	}

	return plan
}

// ByBucket groups a Plan's items by bucket, for callers that want to run
// each bucket as its own concurrent batch.
func (p *Plan) ByBucket() map[Bucket][]Item {
	out := map[Bucket][]Item{}
	for _, it := range p.Items {
		out[it.Bucket] = append(out[it.Bucket], it)
	}
	return out
}
