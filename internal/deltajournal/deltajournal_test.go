package deltajournal

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListOptionsLimitDefault(t *testing.T) {
	assert.Equal(t, defaultLimit, ListOptions{}.limit())
}

func TestListOptionsLimitClampsToMax(t *testing.T) {
	assert.Equal(t, maxLimit, ListOptions{Limit: 5000}.limit())
}

func TestListOptionsLimitHonorsExplicit(t *testing.T) {
	assert.Equal(t, 7, ListOptions{Limit: 7}.limit())
}

func TestNullInt32(t *testing.T) {
	assert.Nil(t, nullInt32(sql.NullInt32{}))
	got := nullInt32(sql.NullInt32{Int32: 3, Valid: true})
	if assert.NotNil(t, got) {
		assert.Equal(t, int32(3), *got)
	}
}
