package bounds

import (
	"testing"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGeometryAcceptsPolygon(t *testing.T) {
	assert.NoError(t, validateGeometry(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}))
}

func TestValidateGeometryAcceptsMultiPolygon(t *testing.T) {
	assert.NoError(t, validateGeometry(orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}))
}

func TestValidateGeometryRejectsPoint(t *testing.T) {
	err := validateGeometry(orb.Point{0, 0})
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUnsupportedGeometry, ae.Kind)
}
