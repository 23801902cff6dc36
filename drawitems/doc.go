// Package drawitems resolves the draw items of render passes and caches
// them between frames.
//
// A RenderIndex holds the scene's rprims. Each render pass asks a Cache
// for the draw items of a Collection under a material tag and a repr:
//
//	index := drawitems.NewRenderIndex()
//	index.InsertRprim(drawitems.Rprim{ID: "/world/cube", Reprs: map[string]int{"hull": 1}})
//
//	c := drawitems.NewCache(index)
//	coll := drawitems.Collection{Name: "geometry", RootPaths: []string{"/"}}
//	items := c.GetDrawItems(coll, []string{drawitems.TagGeometry}, drawitems.DefaultMaterialTag, "hull")
//
// Entries are keyed by collection digest, material tag, repr and the
// normalized render tag filter, so consumers that differ only in tag filter
// keep separate entries. The first lookup of a key is a miss. Later lookups
// are hits while the
// index's ChangeTracker reports no change to the collection, the requested
// render tags, the material tag or the repr, and stale otherwise. Stale
// entries are recomputed in place. Outcomes are counted in perflog under
// drawItemsCacheHit, drawItemsCacheMiss and drawItemsCacheStale.
//
// The package logs through storm.Logger.
package drawitems
