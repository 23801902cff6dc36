package drawitems

import "sync"

// ChangeTracker hands out versions for the state draw items depend on.
// Versions start at 1 and only grow; a cached value built against a
// version is current while the version is unchanged.
type ChangeTracker struct {
	mu sync.Mutex

	rprimIndexVersion uint64
	renderTagVersion  uint64

	collections  map[string]uint64
	renderTags   map[string]uint64
	materialTags map[string]uint64
	reprs        map[string]uint64
}

// NewChangeTracker returns a tracker with every version at 1.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{
		rprimIndexVersion: 1,
		renderTagVersion:  1,
		collections:       make(map[string]uint64),
		renderTags:        make(map[string]uint64),
		materialTags:      make(map[string]uint64),
		reprs:             make(map[string]uint64),
	}
}

// MarkRprimIndexDirty records an rprim insertion or removal. Every
// collection version changes.
func (t *ChangeTracker) MarkRprimIndexDirty() {
	t.mu.Lock()
	t.rprimIndexVersion++
	t.mu.Unlock()
}

// MarkCollectionDirty invalidates one named collection.
func (t *ChangeTracker) MarkCollectionDirty(name string) {
	t.mu.Lock()
	t.collections[name]++
	t.mu.Unlock()
}

// CollectionVersion returns the version of the named collection.
func (t *ChangeTracker) CollectionVersion(name string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.collections[name] + t.rprimIndexVersion
}

// MarkRenderTagDirty records a change to the prims carrying tag.
func (t *ChangeTracker) MarkRenderTagDirty(tag string) {
	t.mu.Lock()
	t.renderTags[tag]++
	t.renderTagVersion++
	t.mu.Unlock()
}

// RenderTagVersion returns the combined version of tags. An empty tag set
// stands for every tag.
func (t *ChangeTracker) RenderTagVersion(tags []string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renderTagVersionLocked(tags)
}

func (t *ChangeTracker) renderTagVersionLocked(tags []string) uint64 {
	if len(tags) == 0 {
		return t.renderTagVersion
	}
	// Versions only grow, so the sum changes iff one of them does.
	v := uint64(1)
	for _, tag := range tags {
		v += t.renderTags[tag]
	}
	return v
}

// MarkMaterialTagDirty records a change to the prims in a material tag
// bucket, such as a display style edit.
func (t *ChangeTracker) MarkMaterialTagDirty(tag string) {
	t.mu.Lock()
	t.materialTags[tag]++
	t.mu.Unlock()
}

// MaterialTagVersion returns the version of a material tag bucket.
func (t *ChangeTracker) MaterialTagVersion(tag string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.materialTags[tag] + 1
}

// MarkReprDirty records a change to the draw items of repr.
func (t *ChangeTracker) MarkReprDirty(repr string) {
	t.mu.Lock()
	t.reprs[repr]++
	t.mu.Unlock()
}

// ReprVersion returns the version of repr.
func (t *ChangeTracker) ReprVersion(repr string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reprs[repr] + 1
}

// versions is the dependency stamp of one cache entry.
type versions struct {
	collection  uint64
	renderTags  uint64
	materialTag uint64
	repr        uint64
}

func (t *ChangeTracker) snapshot(collection string, renderTags []string, materialTag, repr string) versions {
	t.mu.Lock()
	defer t.mu.Unlock()
	return versions{
		collection:  t.collections[collection] + t.rprimIndexVersion,
		renderTags:  t.renderTagVersionLocked(renderTags),
		materialTag: t.materialTags[materialTag] + 1,
		repr:        t.reprs[repr] + 1,
	}
}
