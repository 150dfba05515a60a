package stream

import (
	"bytes"
	"testing"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSandboxSQLAllowsSelectOnGeo(t *testing.T) {
	assert.NoError(t, ValidateSandboxSQL("SELECT id, properties FROM geo WHERE deleted = FALSE"))
}

func TestValidateSandboxSQLRejectsNonSelect(t *testing.T) {
	err := ValidateSandboxSQL("DELETE FROM geo")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindSandboxViolation, ae.Kind)
}

func TestValidateSandboxSQLRejectsOtherTable(t *testing.T) {
	err := ValidateSandboxSQL("SELECT * FROM users")
	require.Error(t, err)
	ae, _ := apperr.As(err)
	assert.Equal(t, apperr.KindSandboxViolation, ae.Kind)
}

func TestValidateSandboxSQLRejectsMultipleStatements(t *testing.T) {
	err := ValidateSandboxSQL("SELECT * FROM geo; DROP TABLE geo;")
	require.Error(t, err)
}

func TestValidateSandboxSQLAllowsJoinOnGeoOnly(t *testing.T) {
	assert.NoError(t, ValidateSandboxSQL("SELECT g.id FROM geo g JOIN geo h ON g.id = h.id"))
}

func TestColumnIndexCaseInsensitive(t *testing.T) {
	idx, ok := columnIndex([]string{"id", "Geometry", "properties"}, "geometry")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = columnIndex([]string{"id", "geometry"}, "properties")
	assert.False(t, ok)
}

func TestWriterWritesEOTTerminator(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFeature(Feature{Type: "Feature", ID: 1, Version: 1}))
	require.NoError(t, w.Close())
	assert.Equal(t, byte(EOT), buf.Bytes()[buf.Len()-1])
}
