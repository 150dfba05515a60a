package osmshim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotStoreRecordCreateAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changesets.db")
	store, err := OpenSnapshotStore(path)
	require.NoError(t, err)

	store.RecordCreate(1)
	store.RecordClose(1, "fixed a road")

	var row changesetSnapshot
	require.NoError(t, store.db.First(&row, 1).Error)
	require.True(t, row.Closed)
	require.JSONEq(t, `{"comment":"fixed a road"}`, string(row.Meta))
}

func TestSnapshotStoreNilReceiverIsNoOp(t *testing.T) {
	var store *SnapshotStore
	store.RecordCreate(1)
	store.RecordClose(1, "")
}

func TestTableUsesSnapshotWhenConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changesets.db")
	store, err := OpenSnapshotStore(path)
	require.NoError(t, err)

	tbl := NewTable()
	tbl.Snapshot = store
	id := tbl.Create()
	require.NoError(t, tbl.Close(id))

	var row changesetSnapshot
	require.NoError(t, store.db.First(&row, id).Error)
	require.True(t, row.Closed)
}
