// Package index is the transactional layer over a bleve index directory.
//
// An Index buffers changes in memory until they are committed as a single
// bleve batch, so readers never observe a half-applied store. Writers are
// serialised per directory through a RecordOwnerLockFactory whose lock file
// also lets Status tell a live writer from a crashed one. Open readers are
// bounded by an LRU cache owned by the Registry; evicted directories have
// their bleve index closed and reopened on demand.
//
// Basic usage:
//
//	reg := index.NewRegistry(index.DefaultOptions())
//	defer reg.Close()
//
//	idx, err := reg.Open("/var/lib/app/idx")
//	if err != nil {
//		return err
//	}
//	changes := index.NewChanges(items, nil, toDocument, nil)
//	if _, err := idx.Store(ctx, changes, false); err != nil {
//		return err
//	}
package index
