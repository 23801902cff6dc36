package drawitems

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/storm"
)

// Render tags used by most scenes.
const (
	TagGeometry = "geometry"
	TagGuide    = "guide"
	TagProxy    = "proxy"
	TagRender   = "render"
)

// DefaultMaterialTag is the material tag of opaque prims.
const DefaultMaterialTag = "defaultMaterialTag"

// DisplayStyle controls how a prim is drawn.
type DisplayStyle struct {
	RefineLevel    int
	FlatShading    bool
	DisplacementOn bool
}

// Rprim is a renderable primitive in the render index.
type Rprim struct {
	// ID is the scene path of the prim, e.g. "/world/cube".
	ID          string
	RenderTag   string
	MaterialTag string
	// Reprs maps a repr name to the number of draw items it produces.
	Reprs        map[string]int
	DisplayStyle DisplayStyle
	// Ranges holds the buffer array ranges the draw items read from.
	Ranges *storm.RangeContainer
}

// DrawItem is one renderable unit of an rprim under a repr.
type DrawItem struct {
	RprimID     string
	Repr        string
	Index       int
	MaterialTag string
	Style       DisplayStyle
	Ranges      *storm.RangeContainer
}

func (d DrawItem) String() string {
	return fmt.Sprintf("%s[%s:%d]", d.RprimID, d.Repr, d.Index)
}

// RenderIndex holds the rprims of a scene and tracks their changes.
// It is safe for concurrent use.
type RenderIndex struct {
	mu      sync.RWMutex
	prims   map[string]*Rprim
	tracker *ChangeTracker
}

// NewRenderIndex returns an empty render index.
func NewRenderIndex() *RenderIndex {
	return &RenderIndex{
		prims:   make(map[string]*Rprim),
		tracker: NewChangeTracker(),
	}
}

// Tracker returns the index's change tracker.
func (x *RenderIndex) Tracker() *ChangeTracker {
	return x.tracker
}

// InsertRprim adds p, replacing any prim with the same ID.
func (x *RenderIndex) InsertRprim(p Rprim) {
	if p.RenderTag == "" {
		p.RenderTag = TagGeometry
	}
	if p.MaterialTag == "" {
		p.MaterialTag = DefaultMaterialTag
	}
	reprs := make(map[string]int, len(p.Reprs))
	for k, v := range p.Reprs {
		reprs[k] = v
	}
	p.Reprs = reprs

	x.mu.Lock()
	x.prims[p.ID] = &p
	x.mu.Unlock()
	x.tracker.MarkRprimIndexDirty()
}

// RemoveRprim removes the prim at id and reports whether it existed.
func (x *RenderIndex) RemoveRprim(id string) bool {
	x.mu.Lock()
	_, ok := x.prims[id]
	delete(x.prims, id)
	x.mu.Unlock()
	if ok {
		x.tracker.MarkRprimIndexDirty()
	}
	return ok
}

// Rprim returns a copy of the prim at id.
func (x *RenderIndex) Rprim(id string) (Rprim, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	p, ok := x.prims[id]
	if !ok {
		return Rprim{}, false
	}
	out := *p
	out.Reprs = make(map[string]int, len(p.Reprs))
	for k, v := range p.Reprs {
		out.Reprs[k] = v
	}
	return out, true
}

// Len returns the number of prims.
func (x *RenderIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.prims)
}

// SetDisplayStyle changes the display style of a prim. Draw items in the
// prim's material tag bucket go stale.
func (x *RenderIndex) SetDisplayStyle(id string, style DisplayStyle) bool {
	x.mu.Lock()
	p, ok := x.prims[id]
	if !ok || p.DisplayStyle == style {
		x.mu.Unlock()
		return false
	}
	p.DisplayStyle = style
	tag := p.MaterialTag
	x.mu.Unlock()

	x.tracker.MarkMaterialTagDirty(tag)
	return true
}

// SetRenderTag moves a prim to another render tag. Both tags go stale.
func (x *RenderIndex) SetRenderTag(id, tag string) bool {
	x.mu.Lock()
	p, ok := x.prims[id]
	if !ok || p.RenderTag == tag {
		x.mu.Unlock()
		return false
	}
	old := p.RenderTag
	p.RenderTag = tag
	x.mu.Unlock()

	x.tracker.MarkRenderTagDirty(old)
	x.tracker.MarkRenderTagDirty(tag)
	return true
}

// SetMaterialTag moves a prim to another material tag bucket. Both
// buckets go stale.
func (x *RenderIndex) SetMaterialTag(id, tag string) bool {
	x.mu.Lock()
	p, ok := x.prims[id]
	if !ok || p.MaterialTag == tag {
		x.mu.Unlock()
		return false
	}
	old := p.MaterialTag
	p.MaterialTag = tag
	x.mu.Unlock()

	x.tracker.MarkMaterialTagDirty(old)
	x.tracker.MarkMaterialTagDirty(tag)
	return true
}

// SetReprDrawItems sets how many draw items a prim produces for repr.
// A count of 0 removes the repr from the prim.
func (x *RenderIndex) SetReprDrawItems(id, repr string, n int) bool {
	x.mu.Lock()
	p, ok := x.prims[id]
	if !ok || p.Reprs[repr] == n {
		x.mu.Unlock()
		return false
	}
	if n <= 0 {
		delete(p.Reprs, repr)
	} else {
		p.Reprs[repr] = n
	}
	x.mu.Unlock()

	x.tracker.MarkReprDirty(repr)
	return true
}

// collect walks the index and returns the draw items of every prim in
// coll with a matching render tag, material tag and repr, ordered by prim
// ID. Empty renderTags match every tag.
func (x *RenderIndex) collect(coll Collection, renderTags []string, materialTag, repr string) []DrawItem {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]string, 0, len(x.prims))
	for id, p := range x.prims {
		if p.MaterialTag != materialTag || p.Reprs[repr] == 0 {
			continue
		}
		if len(renderTags) > 0 && !containsTag(renderTags, p.RenderTag) {
			continue
		}
		if !coll.Contains(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var items []DrawItem
	for _, id := range ids {
		p := x.prims[id]
		for i := 0; i < p.Reprs[repr]; i++ {
			items = append(items, DrawItem{
				RprimID:     id,
				Repr:        repr,
				Index:       i,
				MaterialTag: p.MaterialTag,
				Style:       p.DisplayStyle,
				Ranges:      p.Ranges,
			})
		}
	}
	return items
}

// containsTag reports whether sorted tags contains tag.
func containsTag(tags []string, tag string) bool {
	i := sort.SearchStrings(tags, tag)
	return i < len(tags) && tags[i] == tag
}

// normalizeTags returns tags sorted without duplicates.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := append([]string(nil), tags...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
