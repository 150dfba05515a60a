// Package deltajournal serves the append-only audit trail of committed
// mutations, spec.md §4.E, the way models/EditRecord.go exposes the
// teacher's edit-session history through raw SQL queries against its own
// audit table.
package deltajournal

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/appmodels"
	"github.com/GrainArc/geofeatured/internal/geocodec"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Tuple is one entry in a delta's ordered change list. Geometry/Properties
// carry the full payload of the new version, joined from geo_history, and
// are absent when that history row stores them as null (a delete's new
// version has no geometry or properties to show).
type Tuple struct {
	FeatureID  int64                  `json:"id"`
	OldVersion *int32                 `json:"old_version,omitempty"`
	NewVersion *int32                 `json:"new_version,omitempty"`
	Geometry   json.RawMessage        `json:"geometry,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Summary is a delta listed without its tuple list, spec.md §4.E's
// offset/time-range listing shape (geometry is never included in a listing).
type Summary struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Detail is a single delta with its full ordered tuple list, spec.md §4.E's
// point-lookup shape.
type Detail struct {
	Summary
	Tuples []Tuple `json:"features"`
}

// ListOptions selects offset-mode or time-range-mode listing. Setting Since
// or Until (either one, or both) switches to time-range mode, and Offset is
// then ignored.
type ListOptions struct {
	Offset int64
	Since  *time.Time
	Until  *time.Time
	Limit  int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return defaultLimit
	}
	if o.Limit > maxLimit {
		return maxLimit
	}
	return o.Limit
}

// List returns delta summaries in descending id order.
func List(ctx context.Context, db *gorm.DB, opts ListOptions) ([]Summary, error) {
	limit := opts.limit()
	q := db.WithContext(ctx).Table("deltas")

	if opts.Since != nil || opts.Until != nil {
		if opts.Since != nil {
			q = q.Where("created_at >= ?", *opts.Since)
		}
		if opts.Until != nil {
			q = q.Where("created_at <= ?", *opts.Until)
		}
	} else if opts.Offset > 0 {
		q = q.Where("id < ?", opts.Offset)
	}

	rows, err := q.Order("id DESC").Limit(limit).Rows()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list deltas", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var d appmodels.DeltaRow
		if err := rows.Scan(&d.ID, &d.UserID, &d.Message, &d.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan delta", err)
		}
		out = append(out, Summary{ID: d.ID, UserID: d.UserID, Message: d.Message, CreatedAt: d.CreatedAt})
	}
	return out, nil
}

// Get returns a single delta with its ordered tuple list.
func Get(ctx context.Context, db *gorm.DB, id int64) (*Detail, error) {
	var d appmodels.DeltaRow
	err := db.WithContext(ctx).Raw(
		"SELECT id, user_id, message, created_at FROM deltas WHERE id = ?", id,
	).Row().Scan(&d.ID, &d.UserID, &d.Message, &d.CreatedAt)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "delta not found")
	}

	const tuplesSQL = `
		SELECT dt.feature_id, dt.old_version, dt.new_version,
			ST_AsBinary(h.geom), h.properties
		FROM delta_tuples dt
		LEFT JOIN geo_history h ON h.id = dt.feature_id AND h.version = dt.new_version
		WHERE dt.delta_id = ?
		ORDER BY dt.seq ASC`
	rows, err := db.WithContext(ctx).Raw(tuplesSQL, id).Rows()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list delta tuples", err)
	}
	defer rows.Close()

	var tuples []Tuple
	for rows.Next() {
		var t appmodels.DeltaTuple
		var geomWKB []byte
		var propsJSON []byte
		if err := rows.Scan(&t.FeatureID, &t.OldVersion, &t.NewVersion, &geomWKB, &propsJSON); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan delta tuple", err)
		}

		tup := Tuple{
			FeatureID:  t.FeatureID,
			OldVersion: nullInt32(t.OldVersion),
			NewVersion: nullInt32(t.NewVersion),
		}
		if len(geomWKB) > 0 {
			geom, err := geocodec.DecodeWKB(geomWKB)
			if err != nil {
				return nil, err
			}
			gj, err := json.Marshal(geojson.Geometry{Coordinates: geom})
			if err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "failed to marshal geometry", err)
			}
			tup.Geometry = gj
		}
		if len(propsJSON) > 0 {
			var props map[string]interface{}
			if err := json.Unmarshal(propsJSON, &props); err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "failed to decode properties", err)
			}
			tup.Properties = props
		}

		tuples = append(tuples, tup)
	}

	return &Detail{
		Summary: Summary{ID: d.ID, UserID: d.UserID, Message: d.Message, CreatedAt: d.CreatedAt},
		Tuples:  tuples,
	}, nil
}

func nullInt32(v sql.NullInt32) *int32 {
	if !v.Valid {
		return nil
	}
	n := v.Int32
	return &n
}
