package geocodec

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsCollection(t *testing.T) {
	coll := orb.Collection{orb.Point{0, 0}}
	err := Validate(coll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported-geometry")
}

func TestValidateRejectsNil(t *testing.T) {
	err := Validate(nil)
	require.Error(t, err)
}

func TestValidateAcceptsSupportedTypes(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{1, 2},
		orb.MultiPoint{{1, 2}, {3, 4}},
		orb.LineString{{0, 0}, {1, 1}},
		orb.MultiLineString{{{0, 0}, {1, 1}}},
		orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
	}
	for _, g := range geoms {
		assert.NoError(t, Validate(g), g.GeoJSONType())
	}
}

func TestRoundTripPreservesRingOrientation(t *testing.T) {
	// A clockwise outer ring, which is the "wrong" winding for GeoJSON's
	// right-hand rule — the codec must not rewind it.
	poly := orb.Polygon{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}}

	hexStr, err := EncodeWKBHex(poly)
	require.NoError(t, err)

	decoded, err := DecodeWKBHex(hexStr)
	require.NoError(t, err)

	got, ok := decoded.(orb.Polygon)
	require.True(t, ok)
	assert.Equal(t, poly[0], got[0])
}

func TestEncodeRejectsUnsupported(t *testing.T) {
	_, err := EncodeWKBHex(orb.Collection{orb.Point{0, 0}})
	require.Error(t, err)
}
