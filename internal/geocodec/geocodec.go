// Package geocodec converts between GeoJSON geometries and the spatial
// database's WKB binary form, the way methods/geojson.go does it for the
// teacher's layer tables, generalized to the six geometry types this store
// supports.
package geocodec

import (
	"encoding/hex"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Supported reports whether geom is one of the six GeoJSON geometry types
// this store accepts. GeometryCollection (orb.Collection) is explicitly
// rejected, per spec.
func Supported(geom orb.Geometry) bool {
	switch geom.(type) {
	case orb.Point, orb.MultiPoint, orb.LineString, orb.MultiLineString, orb.Polygon, orb.MultiPolygon:
		return true
	default:
		return false
	}
}

// Validate returns an unsupported-geometry error if geom is nil, a
// GeometryCollection, or any other type outside the six supported ones.
func Validate(geom orb.Geometry) error {
	if geom == nil {
		return apperr.New(apperr.KindUnsupportedGeometry, "geometry is required")
	}
	if _, ok := geom.(orb.Collection); ok {
		return apperr.New(apperr.KindUnsupportedGeometry, "GeometryCollection is not supported")
	}
	if !Supported(geom) {
		return apperr.New(apperr.KindUnsupportedGeometry, "geometry type "+geom.GeoJSONType()+" is not supported")
	}
	return nil
}

// EncodeWKBHex encodes geom to WKB and returns it as a hex string, suitable
// for ST_GeomFromWKB(decode(?, 'hex')) the way the teacher's GeoJsonToWKB
// feeds SavaGeojsonToTable. Unlike the teacher, it does not rewind a Polygon
// into a MultiPolygon — ring orientation and coordinate order are preserved
// exactly as received.
func EncodeWKBHex(geom orb.Geometry) (string, error) {
	if err := Validate(geom); err != nil {
		return "", err
	}
	raw, err := wkb.Marshal(geom)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "wkb encode failed", err)
	}
	return hex.EncodeToString(raw), nil
}

// DecodeWKBHex decodes a hex-encoded WKB payload (as PostGIS's ST_AsBinary
// or ST_AsHEXEWKB returns) back into an orb.Geometry.
func DecodeWKBHex(hexStr string) (orb.Geometry, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "invalid wkb hex", err)
	}
	geom, err := wkb.Unmarshal(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "wkb decode failed", err)
	}
	return geom, nil
}

// DecodeWKB decodes raw WKB bytes, as returned by a bytea column scan.
func DecodeWKB(raw []byte) (orb.Geometry, error) {
	geom, err := wkb.Unmarshal(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "wkb decode failed", err)
	}
	return geom, nil
}

// GeoJSONType returns the GeoJSON type name for geom, or "" for nil.
func GeoJSONType(geom orb.Geometry) string {
	if geom == nil {
		return ""
	}
	return geom.GeoJSONType()
}

// Bound returns the geographic bounding box of geom.
func Bound(geom orb.Geometry) orb.Bound {
	return geom.Bound()
}
