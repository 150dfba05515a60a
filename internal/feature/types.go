// Package feature parses the GeoJSON mutation envelope (spec.md §4.B) and
// enforces the per-action preconditions and optional JSON-Schema property
// validation before a feature ever reaches the mutation engine.
package feature

import (
	"encoding/json"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/appmodels"
	"github.com/paulmach/orb/geojson"
)

// MutationFeature is one feature carrying mutation intent, per spec.md §4.B.
type MutationFeature struct {
	Type       string                 `json:"type,omitempty"`
	ID         *int64                 `json:"id,omitempty"`
	Version    *int32                 `json:"version,omitempty"`
	Key        *string                `json:"key,omitempty"`
	Action     appmodels.Action       `json:"action,omitempty"`
	Force      bool                   `json:"force,omitempty"`
	Geometry   geojson.Geometry       `json:"geometry"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Envelope is the top-level request body for both mutate-one and
// mutate-many: a GeoJSON Feature or FeatureCollection carrying the required
// "message" member that becomes the delta's description.
type Envelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	MutationFeature
	Features []MutationFeature `json:"features,omitempty"`
}

// ParseOne decodes a single-feature mutation request body (POST
// /api/data/feature).
func ParseOne(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedInput, "invalid JSON body", err)
	}
	if env.Message == "" {
		return nil, apperr.New(apperr.KindMalformedInput, "message is required")
	}
	if env.Type != "" && env.Type != "Feature" {
		return nil, apperr.New(apperr.KindMalformedInput, "expected a Feature")
	}
	return &env, nil
}

// ParseMany decodes a batch mutation request body (POST /api/data/features).
func ParseMany(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedInput, "invalid JSON body", err)
	}
	if env.Message == "" {
		return nil, apperr.New(apperr.KindMalformedInput, "message is required")
	}
	if env.Type != "" && env.Type != "FeatureCollection" {
		return nil, apperr.New(apperr.KindMalformedInput, "expected a FeatureCollection")
	}
	if len(env.Features) == 0 {
		return nil, apperr.New(apperr.KindMalformedInput, "features must be non-empty")
	}
	return &env, nil
}
