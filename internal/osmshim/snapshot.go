package osmshim

import (
	"encoding/json"
	"time"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// changesetSnapshot is a local mirror row surviving process restarts, since
// the changeset table itself is in-memory only per spec.md §5. It is a
// secondary/optional store, never read back into Table at startup by the
// core — recovery of open changeset ids after a restart is an operational
// concern outside this package's scope.
type changesetSnapshot struct {
	ID        int64          `gorm:"primaryKey"`
	Closed    bool
	Meta      datatypes.JSON
	CreatedAt time.Time
}

// SnapshotStore persists a best-effort audit trail of changeset lifecycle
// events to a local SQLite file, mirroring the way config/database.go opens
// a secondary sqlite handle alongside the primary Postgres connection.
type SnapshotStore struct {
	db *gorm.DB
}

// OpenSnapshotStore opens (creating if absent) a SQLite-backed changeset
// snapshot mirror at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to open changeset snapshot store", err)
	}
	if err := db.AutoMigrate(&changesetSnapshot{}); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to migrate changeset snapshot store", err)
	}
	return &SnapshotStore{db: db}, nil
}

// RecordCreate mirrors a newly opened changeset.
func (s *SnapshotStore) RecordCreate(id int64) {
	if s == nil {
		return
	}
	s.db.Create(&changesetSnapshot{ID: id, CreatedAt: time.Now().UTC()})
}

// RecordClose mirrors a closed changeset, storing its upload comment (if
// any) as the snapshot's Meta payload.
func (s *SnapshotStore) RecordClose(id int64, comment string) {
	if s == nil {
		return
	}
	meta, err := json.Marshal(map[string]string{"comment": comment})
	if err != nil {
		return
	}
	s.db.Model(&changesetSnapshot{}).Where("id = ?", id).Updates(map[string]interface{}{
		"closed": true,
		"meta":   datatypes.JSON(meta),
	})
}
