package osmshim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableCreateAssignsIncreasingIDs(t *testing.T) {
	tbl := NewTable()
	a := tbl.Create()
	b := tbl.Create()
	assert.Greater(t, b, a)
}

func TestTableCloseUnknownChangeset(t *testing.T) {
	tbl := NewTable()
	err := tbl.Close(999)
	require.Error(t, err)
}

func TestTableCloseMarksClosed(t *testing.T) {
	tbl := NewTable()
	id := tbl.Create()
	require.NoError(t, tbl.Close(id))
	cs, err := tbl.get(id)
	require.NoError(t, err)
	assert.True(t, cs.closed)
}

func TestNodePropertiesFromTags(t *testing.T) {
	n := node{Tags: []tag{{K: "amenity", V: "cafe"}}}
	props := n.properties()
	assert.Equal(t, "cafe", props["amenity"])
}

func TestTagsFromJSON(t *testing.T) {
	tags := tagsFromJSON([]byte(`{"amenity":"cafe"}`))
	require.Len(t, tags, 1)
	assert.Equal(t, "amenity", tags[0].K)
	assert.Equal(t, "cafe", tags[0].V)
}

func TestTagsFromJSONEmpty(t *testing.T) {
	assert.Nil(t, tagsFromJSON(nil))
}
