package feature

import (
	"testing"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/appmodels"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point() geojson.Geometry {
	return geojson.Geometry{Coordinates: orb.Point{1, 2}}
}

func TestValidateCreateRejectsID(t *testing.T) {
	id := int64(5)
	f := MutationFeature{Action: appmodels.ActionCreate, ID: &id, Geometry: point(), Properties: map[string]interface{}{"a": 1}}
	err := Validate(f, nil)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindActionPrecondition, ae.Kind)
}

func TestValidateCreateOK(t *testing.T) {
	f := MutationFeature{Action: appmodels.ActionCreate, Geometry: point(), Properties: map[string]interface{}{"a": 1}}
	assert.NoError(t, Validate(f, nil))
}

func TestValidateCreateForceRequiresKey(t *testing.T) {
	f := MutationFeature{Action: appmodels.ActionCreate, Force: true, Geometry: point(), Properties: map[string]interface{}{"a": 1}}
	err := Validate(f, nil)
	require.Error(t, err)
}

func TestValidateModifyRequiresIDAndVersion(t *testing.T) {
	f := MutationFeature{Action: appmodels.ActionModify, Geometry: point(), Properties: map[string]interface{}{"a": 1}}
	err := Validate(f, nil)
	require.Error(t, err)
}

func TestValidateDeleteIgnoresGeometry(t *testing.T) {
	id := int64(1)
	ver := int32(1)
	f := MutationFeature{Action: appmodels.ActionDelete, ID: &id, Version: &ver}
	assert.NoError(t, Validate(f, nil))
}

func TestValidateRejectsUnsupportedGeometry(t *testing.T) {
	f := MutationFeature{
		Action:     appmodels.ActionCreate,
		Geometry:   geojson.Geometry{Coordinates: orb.Collection{orb.Point{0, 0}}},
		Properties: map[string]interface{}{},
	}
	err := Validate(f, nil)
	require.Error(t, err)
	ae, _ := apperr.As(err)
	assert.Equal(t, apperr.KindUnsupportedGeometry, ae.Kind)
}

type fakeValidator struct{ err error }

func (f fakeValidator) Validate(map[string]interface{}) error { return f.err }

func TestValidateAppliesSchemaOnlyWhenPropertiesRequired(t *testing.T) {
	id := int64(1)
	ver := int32(1)
	f := MutationFeature{Action: appmodels.ActionDelete, ID: &id, Version: &ver}
	assert.NoError(t, Validate(f, fakeValidator{err: assert.AnError}))
}

func TestValidateSchemaViolation(t *testing.T) {
	f := MutationFeature{Action: appmodels.ActionCreate, Geometry: point(), Properties: map[string]interface{}{"a": 1}}
	err := Validate(f, fakeValidator{err: assert.AnError})
	require.Error(t, err)
	ae, _ := apperr.As(err)
	assert.Equal(t, apperr.KindSchemaViolation, ae.Kind)
}

func TestParseOneRequiresMessage(t *testing.T) {
	_, err := ParseOne([]byte(`{"type":"Feature","action":"create"}`))
	require.Error(t, err)
}

func TestParseManyRequiresFeatures(t *testing.T) {
	_, err := ParseMany([]byte(`{"type":"FeatureCollection","message":"m","features":[]}`))
	require.Error(t, err)
}
