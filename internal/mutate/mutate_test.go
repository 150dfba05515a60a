package mutate

import (
	"errors"
	"testing"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullableKey(t *testing.T) {
	assert.Nil(t, nullableKey(nil))
	k := "abc"
	assert.Equal(t, "abc", nullableKey(&k))
}

func TestMarshalPropertiesNil(t *testing.T) {
	b, err := marshalProperties(nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestMarshalPropertiesRoundTrip(t *testing.T) {
	b, err := marshalProperties(map[string]interface{}{"a": 1, "b": "x"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"a":1`)
	assert.Contains(t, string(b), `"b":"x"`)
}

func TestTranslateConstraintErrorPassesThroughAppErr(t *testing.T) {
	original := apperr.New(apperr.KindNotFound, "gone")
	got := translateConstraintError(original)
	assert.Same(t, original, got)
}

func TestTranslateConstraintErrorWrapsUnknown(t *testing.T) {
	got := translateConstraintError(errors.New("boom"))
	ae, ok := apperr.As(got)
	require.True(t, ok)
	assert.Equal(t, apperr.KindInternal, ae.Kind)
}

func TestTranslateConstraintErrorNil(t *testing.T) {
	assert.NoError(t, translateConstraintError(nil))
}
