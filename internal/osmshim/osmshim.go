// Package osmshim translates a JOSM-compatible subset of the OSM v0.6 wire
// protocol into mutation-engine calls, spec.md §4.I. Changeset scoping
// follows the original hecate (Rust) implementation's model of an
// independent, per-entry-locked in-memory table, since spec.md itself is
// silent on changeset storage.
package osmshim

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/appmodels"
	"github.com/GrainArc/geofeatured/internal/feature"
	"github.com/GrainArc/geofeatured/internal/geocodec"
	"github.com/GrainArc/geofeatured/internal/mutate"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
)

const Capabilities = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="geofeatured">
  <api>
    <version minimum="0.6" maximum="0.6"/>
    <area maximum="0.25"/>
    <waynodes maximum="2000"/>
    <changesets maximum_elements="10000"/>
    <timeout seconds="300"/>
  </api>
</osm>
`

// changeset is an open transaction-like container distinct from a delta;
// closing it does not itself create a delta — each successful upload does.
type changeset struct {
	mu      sync.Mutex
	id      int64
	closed  bool
	comment string
}

// Table is the in-memory changeset table, keyed by id, each entry
// independently locked per spec.md §5. Snapshot, if set, mirrors lifecycle
// events to a local store for operational visibility; it is never
// consulted to reconstruct Table's state.
type Table struct {
	mu       sync.Mutex
	next     int64
	entries  map[int64]*changeset
	Snapshot *SnapshotStore
}

func NewTable() *Table {
	return &Table{entries: make(map[int64]*changeset)}
}

// Create opens a new changeset and returns its id.
func (t *Table) Create() int64 {
	t.mu.Lock()
	id := atomic.AddInt64(&t.next, 1)
	t.entries[id] = &changeset{id: id}
	t.mu.Unlock()
	t.Snapshot.RecordCreate(id)
	return id
}

// Close marks a changeset closed; subsequent uploads to it fail.
func (t *Table) Close(id int64) error {
	t.mu.Lock()
	cs, ok := t.entries[id]
	t.mu.Unlock()
	if !ok {
		return apperr.New(apperr.KindNotFound, "changeset not found")
	}
	cs.mu.Lock()
	cs.closed = true
	comment := cs.comment
	cs.mu.Unlock()
	t.Snapshot.RecordClose(id, comment)
	return nil
}

func (t *Table) get(id int64) (*changeset, error) {
	t.mu.Lock()
	cs, ok := t.entries[id]
	t.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "changeset not found")
	}
	return cs, nil
}

// --- upload diff parsing ---

type osmChange struct {
	XMLName xml.Name  `xml:"osmChange"`
	Create  []wrapper `xml:"create"`
	Modify  []wrapper `xml:"modify"`
	Delete  []wrapper `xml:"delete"`
}

type wrapper struct {
	Nodes     []node `xml:"node"`
	Ways      []stub `xml:"way"`
	Relations []stub `xml:"relation"`
}

type stub struct{}

type node struct {
	ID   int64  `xml:"id,attr"`
	Lon  float64 `xml:"lon,attr"`
	Lat  float64 `xml:"lat,attr"`
	Version *int32 `xml:"version,attr"`
	Tags []tag  `xml:"tag"`
}

type tag struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

func (n node) properties() map[string]interface{} {
	props := make(map[string]interface{}, len(n.Tags))
	for _, t := range n.Tags {
		props[t.K] = t.V
	}
	return props
}

// Upload parses an OSM diff and applies it through the mutation engine as
// a single delta, using the changeset comment (or a default) as its
// message. Way and Relation elements in the upload direction are rejected.
func Upload(ctx context.Context, engine *mutate.Engine, table *Table, changesetID int64, comment string, body []byte, userID int64) (*mutate.DeltaResult, error) {
	cs, err := table.get(changesetID)
	if err != nil {
		return nil, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return nil, apperr.New(apperr.KindActionPrecondition, "changeset is closed")
	}
	cs.comment = comment

	var diff osmChange
	if err := xml.Unmarshal(body, &diff); err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedInput, "invalid OSM changeset XML", err)
	}

	for _, w := range diff.Create {
		if len(w.Ways) > 0 || len(w.Relations) > 0 {
			return nil, apperr.New(apperr.KindActionPrecondition, "way and relation uploads are not supported")
		}
	}
	for _, w := range diff.Modify {
		if len(w.Ways) > 0 || len(w.Relations) > 0 {
			return nil, apperr.New(apperr.KindActionPrecondition, "way and relation uploads are not supported")
		}
	}
	for _, w := range diff.Delete {
		if len(w.Ways) > 0 || len(w.Relations) > 0 {
			return nil, apperr.New(apperr.KindActionPrecondition, "way and relation uploads are not supported")
		}
	}

	var features []feature.MutationFeature
	for _, w := range diff.Create {
		for _, n := range w.Nodes {
			props := n.properties()
			features = append(features, feature.MutationFeature{
				Action:     appmodels.ActionCreate,
				Geometry:   geojson.Geometry{Coordinates: orb.Point{n.Lon, n.Lat}},
				Properties: props,
			})
		}
	}
	for _, w := range diff.Modify {
		for _, n := range w.Nodes {
			id := n.ID
			ver := n.Version
			props := n.properties()
			features = append(features, feature.MutationFeature{
				Action:     appmodels.ActionModify,
				ID:         &id,
				Version:    ver,
				Geometry:   geojson.Geometry{Coordinates: orb.Point{n.Lon, n.Lat}},
				Properties: props,
			})
		}
	}
	for _, w := range diff.Delete {
		for _, n := range w.Nodes {
			id := n.ID
			ver := n.Version
			features = append(features, feature.MutationFeature{
				Action:  appmodels.ActionDelete,
				ID:      &id,
				Version: ver,
			})
		}
	}

	if len(features) == 0 {
		return nil, apperr.New(apperr.KindMalformedInput, "changeset upload contained no node operations")
	}

	message := comment
	if message == "" {
		message = "OSM changeset upload"
	}

	return engine.Mutate(ctx, features, message, userID, false)
}

// --- map export ---

type osmDoc struct {
	XMLName   xml.Name    `xml:"osm"`
	Version   string      `xml:"version,attr"`
	Generator string      `xml:"generator,attr"`
	Nodes     []xmlNode   `xml:"node"`
	Relations []xmlRelation `xml:"relation"`
}

type xmlNode struct {
	ID      int64   `xml:"id,attr"`
	Lat     float64 `xml:"lat,attr"`
	Lon     float64 `xml:"lon,attr"`
	Version int32   `xml:"version,attr"`
	Tags    []tag   `xml:"tag"`
}

type xmlRelation struct {
	ID      int64       `xml:"id,attr"`
	Version int32       `xml:"version,attr"`
	Type    string      `xml:"-"`
	Members []xmlMember `xml:"member"`
	Tags    []tag       `xml:"tag"`
}

type xmlMember struct {
	Type string `xml:"type,attr"`
	Ref  int64  `xml:"ref,attr"`
	Role string `xml:"role,attr"`
}

// Map renders OSM XML for every live feature intersecting bbox. MultiPoint
// lowers to a relation of type multipoint, MultiLineString to a relation of
// type multilinestring, following spec.md §4.I.
func Map(ctx context.Context, db *gorm.DB, b orb.Bound) ([]byte, error) {
	doc := osmDoc{Version: "0.6", Generator: "geofeatured"}

	const q = `
		SELECT id, version, key, ST_AsBinary(geom), properties FROM geo
		WHERE deleted = FALSE AND geom && ST_MakeEnvelope(?, ?, ?, ?, 4326)`
	rows, err := db.WithContext(ctx).Raw(q, b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()).Rows()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "map export query failed", err)
	}
	defer rows.Close()

	memberID := int64(-1)
	for rows.Next() {
		var id int64
		var version int32
		var key *string
		var geomWKB []byte
		var propsJSON []byte
		if err := rows.Scan(&id, &version, &key, &geomWKB, &propsJSON); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "map export scan failed", err)
		}
		geom, err := geocodec.DecodeWKB(geomWKB)
		if err != nil {
			return nil, err
		}
		tags := tagsFromJSON(propsJSON)

		switch g := geom.(type) {
		case orb.Point:
			doc.Nodes = append(doc.Nodes, xmlNode{ID: id, Lat: g.Y(), Lon: g.X(), Version: version, Tags: tags})
		case orb.MultiPoint:
			doc.Relations = append(doc.Relations, lowerMultiPoint(id, version, g, tags, &memberID, &doc.Nodes))
		case orb.MultiLineString:
			doc.Relations = append(doc.Relations, xmlRelation{ID: id, Version: version, Type: "multilinestring", Tags: append(tags, tag{K: "type", V: "multilinestring"})})
		default:
			// LineString/Polygon/MultiPolygon export as a single node placeholder
			// at the center of their bounding box: the JOSM point-editing subset this shim targets
			// does not round-trip way/area geometry.
			c := geom.Bound().Center()
			doc.Nodes = append(doc.Nodes, xmlNode{ID: id, Lat: c.Y(), Lon: c.X(), Version: version, Tags: tags})
		}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to marshal OSM XML", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func lowerMultiPoint(id int64, version int32, mp orb.MultiPoint, tags []tag, memberID *int64, nodes *[]xmlNode) xmlRelation {
	rel := xmlRelation{ID: id, Version: version, Type: "multipoint", Tags: append(tags, tag{K: "type", V: "multipoint"})}
	for _, pt := range mp {
		nid := *memberID
		*memberID--
		*nodes = append(*nodes, xmlNode{ID: nid, Lat: pt.Y(), Lon: pt.X(), Version: 1})
		rel.Members = append(rel.Members, xmlMember{Type: "node", Ref: nid, Role: ""})
	}
	return rel
}

func tagsFromJSON(propsJSON []byte) []tag {
	if len(propsJSON) == 0 {
		return nil
	}
	var props map[string]interface{}
	if err := json.Unmarshal(propsJSON, &props); err != nil {
		return nil
	}
	tags := make([]tag, 0, len(props))
	for k, v := range props {
		tags = append(tags, tag{K: k, V: fmt.Sprintf("%v", v)})
	}
	return tags
}
