// Package stream serves the newline-delimited GeoJSON reader endpoints
// (clone, bbox/point query, bounds export, sandboxed SQL), spec.md §4.F, the
// way views/geoview.go streams query results row by row instead of
// buffering a whole result set, generalized onto a database/sql cursor and
// terminated by an EOT byte instead of a fixed record count.
package stream

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/geocodec"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
)

// EOT is the byte that terminates a streamed response body, marking a clean
// end distinguishable from a truncated connection.
const EOT = 0x04

// Feature is one line of a streamed response.
type Feature struct {
	Type       string                 `json:"type"`
	ID         int64                  `json:"id"`
	Version    int32                  `json:"version"`
	Key        *string                `json:"key,omitempty"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Writer streams Features as newline-delimited GeoJSON followed by EOT. It
// wraps a bufio.Writer the way encoding/json.Encoder wraps an io.Writer,
// but line-oriented rather than whitespace-separated.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (sw *Writer) WriteFeature(f Feature) error {
	b, err := json.Marshal(f)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to marshal feature", err)
	}
	if _, err := sw.w.Write(b); err != nil {
		return err
	}
	return sw.w.WriteByte('\n')
}

// Close writes the EOT terminator and flushes.
func (sw *Writer) Close() error {
	if err := sw.w.WriteByte(EOT); err != nil {
		return err
	}
	return sw.w.Flush()
}

func rowToFeature(id int64, version int32, key sql.NullString, geomWKB []byte, propsJSON []byte) (Feature, error) {
	f := Feature{Type: "Feature", ID: id, Version: version}
	if key.Valid {
		k := key.String
		f.Key = &k
	}
	if len(geomWKB) > 0 {
		geom, err := geocodec.DecodeWKB(geomWKB)
		if err != nil {
			return Feature{}, err
		}
		gj, err := geojsonMarshal(geom)
		if err != nil {
			return Feature{}, err
		}
		f.Geometry = gj
	}
	if len(propsJSON) > 0 {
		var props map[string]interface{}
		if err := json.Unmarshal(propsJSON, &props); err != nil {
			return Feature{}, apperr.Wrap(apperr.KindInternal, "failed to decode properties", err)
		}
		f.Properties = props
	}
	return f, nil
}

// Clone streams every live feature (spec.md's full-dataset export).
func Clone(ctx context.Context, db *gorm.DB, sw *Writer) error {
	return streamQuery(ctx, db, sw, "SELECT id, version, key, ST_AsBinary(geom), properties FROM geo WHERE deleted = FALSE")
}

// BBox streams live features intersecting the given bounding box.
func BBox(ctx context.Context, db *gorm.DB, sw *Writer, b orb.Bound) error {
	const q = `
		SELECT id, version, key, ST_AsBinary(geom), properties FROM geo
		WHERE deleted = FALSE AND geom && ST_MakeEnvelope(?, ?, ?, ?, 4326)`
	return streamQuery(ctx, db, sw, q, b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
}

// Point streams every live feature intersecting the given point (a feature
// whose boundary passes through the point still matches — ST_Intersects,
// not ST_Contains, which would exclude boundary points).
func Point(ctx context.Context, db *gorm.DB, sw *Writer, lon, lat float64) error {
	const q = `
		SELECT id, version, key, ST_AsBinary(geom), properties FROM geo
		WHERE deleted = FALSE AND ST_Intersects(geom, ST_SetSRID(ST_MakePoint(?, ?), 4326))`
	return streamQuery(ctx, db, sw, q, lon, lat)
}

// BoundsExport streams live features intersecting a named bounds region. It
// 404s on an unknown name rather than silently streaming zero rows.
func BoundsExport(ctx context.Context, db *gorm.DB, sw *Writer, name string) error {
	var exists int
	err := db.WithContext(ctx).Raw("SELECT 1 FROM bounds WHERE name = ?", name).Row().Scan(&exists)
	if err != nil {
		return apperr.New(apperr.KindNotFound, "bounds region not found")
	}

	const q = `
		SELECT g.id, g.version, g.key, ST_AsBinary(g.geom), g.properties FROM geo g, bounds b
		WHERE g.deleted = FALSE AND b.name = ? AND ST_Intersects(g.geom, b.geom)`
	return streamQuery(ctx, db, sw, q, name)
}

func streamQuery(ctx context.Context, db *gorm.DB, sw *Writer, query string, args ...interface{}) error {
	rows, err := db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "query failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var version int32
		var key sql.NullString
		var geomWKB []byte
		var propsJSON []byte
		if err := rows.Scan(&id, &version, &key, &geomWKB, &propsJSON); err != nil {
			return apperr.Wrap(apperr.KindInternal, "row scan failed", err)
		}
		f, err := rowToFeature(id, version, key, geomWKB, propsJSON)
		if err != nil {
			return err
		}
		if err := sw.WriteFeature(f); err != nil {
			// client disconnected mid-stream; nothing further to write.
			return err
		}
	}
	return sw.Close()
}

var selectOnly = regexp.MustCompile(`(?is)^\s*SELECT\b`)

// otherTable matches every FROM/JOIN table reference; ValidateSandboxSQL
// reports a sandbox violation for any match that is not the geo table.
var otherTable = regexp.MustCompile(`(?is)\b(from|join)\s+(?:"?)([a-zA-Z_][a-zA-Z0-9_]*)`)

// ValidateSandboxSQL rejects anything but a single read-only SELECT
// referencing only the geo table, per spec.md's sandbox-violation rule. It
// is a syntactic guard on top of the database role's own read-only grant,
// not a substitute for it.
func ValidateSandboxSQL(query string) error {
	trimmed := strings.TrimSpace(query)
	if strings.Contains(trimmed, ";") && !strings.HasSuffix(strings.TrimRight(trimmed, " \t\n"), ";") {
		return apperr.New(apperr.KindSandboxViolation, "multiple statements are not allowed")
	}
	if strings.Count(trimmed, ";") > 1 {
		return apperr.New(apperr.KindSandboxViolation, "multiple statements are not allowed")
	}
	if !selectOnly.MatchString(trimmed) {
		return apperr.New(apperr.KindSandboxViolation, "only SELECT statements are allowed")
	}
	for _, m := range otherTable.FindAllStringSubmatch(trimmed, -1) {
		if !strings.EqualFold(m[2], "geo") {
			return apperr.New(apperr.KindSandboxViolation, "queries may only reference the geo table")
		}
	}
	return nil
}

// Query streams the rows returned by an arbitrary sandboxed SELECT against
// the geo table. If the result columns include both geometry and properties,
// each row is assembled into a GeoJSON Feature; otherwise the raw row is
// serialized as a JSON object. limit, if positive, caps the row count
// regardless of what the query itself requests.
func Query(ctx context.Context, db *gorm.DB, sw *Writer, query string, limit int) error {
	if err := ValidateSandboxSQL(query); err != nil {
		return err
	}

	effective := query
	if limit > 0 {
		inner := strings.TrimSuffix(strings.TrimSpace(query), ";")
		effective = fmt.Sprintf("SELECT * FROM (%s) AS sandboxed_query LIMIT %d", inner, limit)
	}

	rows, err := db.WithContext(ctx).Raw(effective).Rows()
	if err != nil {
		return apperr.Wrap(apperr.KindSandboxViolation, "query failed", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to read columns", err)
	}

	geomIdx, hasGeom := columnIndex(cols, "geometry")
	propsIdx, hasProps := columnIndex(cols, "properties")
	idIdx, hasID := columnIndex(cols, "id")
	versionIdx, hasVersion := columnIndex(cols, "version")
	assembleFeature := hasGeom && hasProps

	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return apperr.Wrap(apperr.KindInternal, "row scan failed", err)
		}

		var b []byte
		if assembleFeature {
			f := Feature{Type: "Feature"}
			if hasID {
				if v, ok := vals[idIdx].(int64); ok {
					f.ID = v
				}
			}
			if hasVersion {
				switch v := vals[versionIdx].(type) {
				case int64:
					f.Version = int32(v)
				case int32:
					f.Version = v
				}
			}
			if raw, ok := vals[geomIdx].([]byte); ok && len(raw) > 0 {
				geom, err := geocodec.DecodeWKB(raw)
				if err != nil {
					return err
				}
				gj, err := geojsonMarshal(geom)
				if err != nil {
					return err
				}
				f.Geometry = gj
			}
			if raw, ok := vals[propsIdx].([]byte); ok && len(raw) > 0 {
				var props map[string]interface{}
				if err := json.Unmarshal(raw, &props); err != nil {
					return apperr.Wrap(apperr.KindInternal, "failed to decode properties", err)
				}
				f.Properties = props
			}
			b, err = json.Marshal(f)
		} else {
			obj := make(map[string]interface{}, len(cols))
			for i, c := range cols {
				obj[c] = vals[i]
			}
			b, err = json.Marshal(obj)
		}
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to marshal row", err)
		}

		if _, err := sw.w.Write(b); err != nil {
			return err
		}
		if err := sw.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return sw.Close()
}

func columnIndex(cols []string, name string) (int, bool) {
	for i, c := range cols {
		if strings.EqualFold(c, name) {
			return i, true
		}
	}
	return 0, false
}

// GetByID returns a single live feature by id.
func GetByID(ctx context.Context, db *gorm.DB, id int64) (*Feature, error) {
	return getOne(ctx, db, "SELECT id, version, key, ST_AsBinary(geom), properties FROM geo WHERE id = ? AND deleted = FALSE", id)
}

// GetByKey returns a single live feature by key.
func GetByKey(ctx context.Context, db *gorm.DB, key string) (*Feature, error) {
	return getOne(ctx, db, "SELECT id, version, key, ST_AsBinary(geom), properties FROM geo WHERE key = ? AND deleted = FALSE", key)
}

// GetByPoint returns the first live feature intersecting the given point.
func GetByPoint(ctx context.Context, db *gorm.DB, lon, lat float64) (*Feature, error) {
	const q = `
		SELECT id, version, key, ST_AsBinary(geom), properties FROM geo
		WHERE deleted = FALSE AND ST_Intersects(geom, ST_SetSRID(ST_MakePoint(?, ?), 4326)) LIMIT 1`
	return getOne(ctx, db, q, lon, lat)
}

func getOne(ctx context.Context, db *gorm.DB, query string, args ...interface{}) (*Feature, error) {
	var id int64
	var version int32
	var key sql.NullString
	var geomWKB []byte
	var propsJSON []byte
	err := db.WithContext(ctx).Raw(query, args...).Row().Scan(&id, &version, &key, &geomWKB, &propsJSON)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "feature not found")
	}
	f, err := rowToFeature(id, version, key, geomWKB, propsJSON)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// HistoryEntry is one version of a feature's history.
type HistoryEntry struct {
	Version  int32           `json:"version"`
	Action   string          `json:"action"`
	DeltaID  int64           `json:"delta_id"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

// GetHistory returns every recorded version of a feature, oldest first.
func GetHistory(ctx context.Context, db *gorm.DB, id int64) ([]HistoryEntry, error) {
	rows, err := db.WithContext(ctx).Raw(
		"SELECT version, action, delta_id, ST_AsBinary(geom) FROM geo_history WHERE id = ? ORDER BY version ASC", id,
	).Rows()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query feature history", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var geomWKB []byte
		if err := rows.Scan(&h.Version, &h.Action, &h.DeltaID, &geomWKB); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan history row", err)
		}
		if len(geomWKB) > 0 {
			geom, err := geocodec.DecodeWKB(geomWKB)
			if err == nil {
				if gj, err := geojsonMarshal(geom); err == nil {
					h.Geometry = gj
				}
			}
		}
		out = append(out, h)
	}
	if len(out) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "feature not found")
	}
	return out, nil
}

func geojsonMarshal(geom orb.Geometry) (json.RawMessage, error) {
	b, err := json.Marshal(geojson.Geometry{Coordinates: geom})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to marshal geometry", err)
	}
	return b, nil
}
