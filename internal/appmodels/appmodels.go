// Package appmodels holds the row-shaped Go types that mirror the DDL in
// cmd/geofeatured/schema.sql. Reads and writes against these go through raw SQL
// (gorm's Raw/Exec), the way models/core.go and pgmvt/makemvt.go drive the
// teacher's store, rather than through gorm's model-CRUD/AutoMigrate path —
// PostGIS geometry columns and partial unique indexes don't map cleanly onto
// gorm struct tags.
package appmodels

import (
	"database/sql"
	"time"
)

// Action is the mutation action carried on a feature in a mutation request.
type Action string

const (
	ActionCreate  Action = "create"
	ActionModify  Action = "modify"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
)

// FeatureRow is a row of the live `geo` table.
type FeatureRow struct {
	ID         int64
	Version    int32
	Key        sql.NullString
	GeomWKB    []byte // NULL for a deleted feature
	Properties []byte // raw JSON, NULL for a deleted feature
	Deleted    bool
}

// HistoryRow is a row of the append-only `geo_history` table.
type HistoryRow struct {
	ID         int64
	Version    int32
	GeomWKB    []byte
	Properties []byte
	Key        sql.NullString
	Action     Action
	DeltaID    int64
}

// DeltaRow is a row of the `deltas` table, without its tuple list.
type DeltaRow struct {
	ID        int64
	UserID    int64
	Message   string
	CreatedAt time.Time
}

// DeltaTuple is one (feature-id, old-version-or-null, new-version-or-null)
// entry in a delta's ordered change list.
type DeltaTuple struct {
	DeltaID    int64
	FeatureID  int64
	OldVersion sql.NullInt32
	NewVersion sql.NullInt32
}

// BoundsRow is a row of the `bounds` table — name is the primary key.
type BoundsRow struct {
	Name     string
	GeomWKB  []byte
	GeomType string
}

// UserRow is a row of the `users` table; the core treats it as opaque
// author identity, authentication/authorization living outside the core.
type UserRow struct {
	ID       int64
	Username string
}
