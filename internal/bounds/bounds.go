// Package bounds manages named Polygon/MultiPolygon regions used to scope
// exports and statistics, spec.md §4.H, grounded on pgmvt/BoundsExtractor.go
// reading a boundary geometry out of Postgres the same raw-SQL way.
package bounds

import (
	"context"
	"encoding/json"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/appmodels"
	"github.com/GrainArc/geofeatured/internal/geocodec"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
)

// Region is a named bounds region.
type Region struct {
	Name     string          `json:"name"`
	Geometry json.RawMessage `json:"geometry"`
}

// Stats summarizes the live features intersecting a region, broken down
// per geometry type.
type Stats struct {
	Name   string           `json:"name"`
	Counts map[string]int64 `json:"counts"`
}

func validateGeometry(geom orb.Geometry) error {
	switch geom.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return nil
	default:
		return apperr.New(apperr.KindUnsupportedGeometry, "bounds regions must be Polygon or MultiPolygon")
	}
}

// List returns every configured bounds region name.
func List(ctx context.Context, db *gorm.DB) ([]string, error) {
	rows, err := db.WithContext(ctx).Raw("SELECT name FROM bounds ORDER BY name").Rows()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list bounds", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan bounds row", err)
		}
		names = append(names, name)
	}
	return names, nil
}

// Get returns a single named region's geometry.
func Get(ctx context.Context, db *gorm.DB, name string) (*Region, error) {
	var row appmodels.BoundsRow
	err := db.WithContext(ctx).Raw(
		"SELECT name, ST_AsBinary(geom), geom_type FROM bounds WHERE name = ?", name,
	).Row().Scan(&row.Name, &row.GeomWKB, &row.GeomType)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "bounds region not found")
	}

	geom, err := geocodec.DecodeWKB(row.GeomWKB)
	if err != nil {
		return nil, err
	}
	gj, err := json.Marshal(geojson.Geometry{Coordinates: geom})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to marshal bounds geometry", err)
	}

	return &Region{Name: row.Name, Geometry: gj}, nil
}

// Put creates or replaces a named bounds region.
func Put(ctx context.Context, db *gorm.DB, name string, geom orb.Geometry) error {
	if err := validateGeometry(geom); err != nil {
		return err
	}
	wkbHex, err := geocodec.EncodeWKBHex(geom)
	if err != nil {
		return err
	}

	const upsertSQL = `
		INSERT INTO bounds (name, geom, geom_type) VALUES (?, ST_GeomFromWKB(decode(?, 'hex')), ?)
		ON CONFLICT (name) DO UPDATE SET geom = EXCLUDED.geom, geom_type = EXCLUDED.geom_type`
	if err := db.WithContext(ctx).Exec(upsertSQL, name, wkbHex, geom.GeoJSONType()).Error; err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to save bounds region", err)
	}
	return nil
}

// Delete removes a named bounds region.
func Delete(ctx context.Context, db *gorm.DB, name string) error {
	res := db.WithContext(ctx).Exec("DELETE FROM bounds WHERE name = ?", name)
	if res.Error != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to delete bounds region", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "bounds region not found")
	}
	return nil
}

// GetStats reports, per geometry type, the count of live features
// intersecting a region.
func GetStats(ctx context.Context, db *gorm.DB, name string) (*Stats, error) {
	if _, err := Get(ctx, db, name); err != nil {
		return nil, err
	}

	rows, err := db.WithContext(ctx).Raw(`
		SELECT ST_GeometryType(g.geom), COUNT(*) FROM geo g, bounds b
		WHERE g.deleted = FALSE AND b.name = ? AND ST_Intersects(g.geom, b.geom)
		GROUP BY ST_GeometryType(g.geom)`, name,
	).Rows()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to compute bounds stats", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var geomType string
		var count int64
		if err := rows.Scan(&geomType, &count); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan bounds stats row", err)
		}
		counts[geomType] = count
	}
	return &Stats{Name: name, Counts: counts}, nil
}
