// Package tile produces Mapbox Vector Tiles via ST_AsMVT/ST_AsMVTGeom, the
// way pgmvt/makemvt.go builds a tile's SQL, generalized from the teacher's
// per-layer-table cache (a "<table>mvt" side table keyed by x/y/z) to a
// single in-process cache guarded by a map-level lock, per the streaming
// dataset's mutation-driven invalidation requirement.
package tile

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/paulmach/orb"
	"gorm.io/gorm"
)

// Extent is the MVT tile extent used for every generated tile.
const Extent = 4096

// Key identifies one cached tile.
type Key struct {
	Z, X, Y int
}

// Meta is the sidecar recorded alongside a generated tile: its layer names
// and feature count, reported by the meta endpoint without requiring a
// regeneration of the tile itself.
type Meta struct {
	Layers       []string `json:"layers"`
	FeatureCount int64    `json:"feature_count"`
}

type entry struct {
	mvt   []byte
	bound orb.Bound
	meta  Meta
}

// Cache is a concurrent-map tile cache, invalidated either explicitly by
// key or by bounding-box intersection when a mutation touches the dataset.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[Key]entry)}
}

func (c *Cache) get(k Key) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	return e.mvt, true
}

func (c *Cache) put(k Key, mvt []byte, b orb.Bound, meta Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = entry{mvt: mvt, bound: b, meta: meta}
}

// Meta returns the sidecar recorded for a cached tile, and false if the
// tile is not currently cached (a cache-miss indicator, as opposed to
// generating the tile just to describe it).
func (c *Cache) Meta(k Key) (Meta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	if !ok {
		return Meta{}, false
	}
	return e.meta, true
}

// Delete evicts a single tile. The DELETE /api/tiles endpoint does not use
// it; that endpoint clears the whole cache through InvalidateAll.
func (c *Cache) Delete(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}

// InvalidateBounds evicts every cached tile whose bound intersects any of
// the given bounds, the concurrent-map equivalent of pgmvt's DelMVT walking
// the tile grid a changed feature falls into.
func (c *Cache) InvalidateBounds(bounds []orb.Bound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		for _, b := range bounds {
			if boundsIntersect(e.bound, b) {
				delete(c.entries, k)
				break
			}
		}
	}
}

// InvalidateAll clears the entire cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]entry)
}

func boundsIntersect(a, b orb.Bound) bool {
	if !a.IsEmpty() {
		return a.Intersects(b)
	}
	return true
}

// Engine generates and caches tiles for the live geo table.
type Engine struct {
	DB    *gorm.DB
	Cache *Cache
}

// Get returns the cached tile if present, else generates, caches, and
// returns it. A nil, nil result means the tile has no features.
func (e *Engine) Get(ctx context.Context, k Key) ([]byte, error) {
	if mvt, ok := e.Cache.get(k); ok {
		return mvt, nil
	}
	return e.Regenerate(ctx, k)
}

// Regenerate always recomputes the tile from the database, replacing any
// cached copy.
func (e *Engine) Regenerate(ctx context.Context, k Key) ([]byte, error) {
	b := tileBound(k.X, k.Y, k.Z)

	const q = `
		SELECT ST_AsMVT(tile, 'data', ?, 'geom') AS mvt, COUNT(*) AS feature_count FROM (
			SELECT id, key, properties,
				ST_AsMVTGeom(
					ST_Transform(geom, 3857),
					ST_Transform(ST_MakeEnvelope(?, ?, ?, ?, 4326), 3857),
					?, 64, TRUE
				) AS geom
			FROM geo
			WHERE deleted = FALSE AND geom && ST_MakeEnvelope(?, ?, ?, ?, 4326)
		) AS tile WHERE geom IS NOT NULL`

	var mvt []byte
	var featureCount int64
	err := e.DB.WithContext(ctx).Raw(q,
		Extent,
		b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y(),
		Extent,
		b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y(),
	).Row().Scan(&mvt, &featureCount)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to generate tile", err)
	}

	e.Cache.put(k, mvt, b, Meta{Layers: []string{"data"}, FeatureCount: featureCount})
	return mvt, nil
}

// tileBound is the geographic bounding box of an XYZ tile, the vector form
// of pgmvt's XyzLonLat helper.
func tileBound(x, y, z int) orb.Bound {
	min := xyzLonLat(float64(x), float64(y+1), float64(z))
	max := xyzLonLat(float64(x+1), float64(y), float64(z))
	return orb.Bound{Min: orb.Point{min[0], min[1]}, Max: orb.Point{max[0], max[1]}}
}

func xyzLonLat(x, y, z float64) []float64 {
	n := math.Pow(2, z)
	lonDeg := (x/n)*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - (2*y)/n)))
	latDeg := (180 * latRad) / math.Pi
	return []float64{lonDeg, latDeg}
}

// MetaKey renders a cache key's canonical string form, used in the tile
// meta sidecar response.
func MetaKey(k Key) string {
	return fmt.Sprintf("%d/%d/%d", k.Z, k.X, k.Y)
}
