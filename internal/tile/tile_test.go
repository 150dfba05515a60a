package tile

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestCacheGetPutDelete(t *testing.T) {
	c := NewCache()
	k := Key{Z: 1, X: 2, Y: 3}

	_, ok := c.get(k)
	assert.False(t, ok)

	c.put(k, []byte("tile"), orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, Meta{Layers: []string{"data"}, FeatureCount: 3})
	mvt, ok := c.get(k)
	assert.True(t, ok)
	assert.Equal(t, []byte("tile"), mvt)

	meta, ok := c.Meta(k)
	assert.True(t, ok)
	assert.Equal(t, int64(3), meta.FeatureCount)

	c.Delete(k)
	_, ok = c.get(k)
	assert.False(t, ok)
	_, ok = c.Meta(k)
	assert.False(t, ok)
}

func TestCacheMetaMissWhenUncached(t *testing.T) {
	c := NewCache()
	_, ok := c.Meta(Key{Z: 9, X: 9, Y: 9})
	assert.False(t, ok)
}

func TestCacheInvalidateBounds(t *testing.T) {
	c := NewCache()
	k1 := Key{Z: 1, X: 0, Y: 0}
	k2 := Key{Z: 1, X: 5, Y: 5}
	c.put(k1, []byte("a"), orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, Meta{})
	c.put(k2, []byte("b"), orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{51, 51}}, Meta{})

	c.InvalidateBounds([]orb.Bound{{Min: orb.Point{0.5, 0.5}, Max: orb.Point{0.6, 0.6}}})

	_, ok1 := c.get(k1)
	_, ok2 := c.get(k2)
	assert.False(t, ok1)
	assert.True(t, ok2)
}

func TestCacheInvalidateAll(t *testing.T) {
	c := NewCache()
	c.put(Key{Z: 1}, []byte("a"), orb.Bound{}, Meta{})
	c.InvalidateAll()
	_, ok := c.get(Key{Z: 1})
	assert.False(t, ok)
}

func TestTileBoundZoomZero(t *testing.T) {
	b := tileBound(0, 0, 0)
	assert.InDelta(t, -180, b.Min.X(), 0.001)
	assert.InDelta(t, 180, b.Max.X(), 0.001)
}

func TestMetaKey(t *testing.T) {
	assert.Equal(t, "3/1/2", MetaKey(Key{Z: 3, X: 1, Y: 2}))
}
