// Package mutate is the mutation engine, spec.md §4.D — the heart of the
// system. It executes create/modify/delete/restore with version checks, key
// uniqueness, and id allocation, producing an auditable delta, the way the
// teacher's views/EdView.go writes a models.GeoRecord audit row alongside
// every AddGeoToSchema/DelGeoToSchema/ChangeGeoToSchema call, generalized
// into one transactional batch instead of one handler per action.
package mutate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/appmodels"
	"github.com/GrainArc/geofeatured/internal/feature"
	"github.com/GrainArc/geofeatured/internal/geocodec"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/paulmach/orb"
	"gorm.io/gorm"
)

// FeatureResult is the outcome of one mutated feature within a delta.
type FeatureResult struct {
	ID         int64
	OldVersion *int32
	NewVersion *int32
	Action     appmodels.Action
}

// DeltaResult is the outcome of a committed mutation batch.
type DeltaResult struct {
	DeltaID  int64
	Features []FeatureResult
}

// Engine is the mutation engine bound to a single write pool connection.
type Engine struct {
	DB        *gorm.DB
	Validator feature.SchemaValidator
	// OnCommit is notified with the bounding boxes of every touched
	// feature (old and new) after a successful commit, the hook the tile
	// engine (§4.G) uses to invalidate affected cache entries.
	OnCommit func(touched []orb.Bound)
}

// Mutate executes features as a single atomic transaction on the write
// pool: all commit together or none do. adminAuthorized reflects an
// authorization decision made outside the core (spec.md §1); it gates
// force-mode creates.
func (e *Engine) Mutate(ctx context.Context, features []feature.MutationFeature, message string, userID int64, adminAuthorized bool) (*DeltaResult, error) {
	if message == "" {
		return nil, apperr.New(apperr.KindMalformedInput, "message is required")
	}
	if len(features) == 0 {
		return nil, apperr.New(apperr.KindMalformedInput, "at least one feature is required")
	}

	var result DeltaResult
	var touched []orb.Bound

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deltaID, err := insertDelta(tx, userID, message)
		if err != nil {
			return err
		}
		result.DeltaID = deltaID

		for _, f := range features {
			if err := feature.Validate(f, e.Validator); err != nil {
				return err
			}

			fr, bounds, err := e.applyOne(tx, f, adminAuthorized)
			if err != nil {
				return translateConstraintError(err)
			}

			result.Features = append(result.Features, fr)
			touched = append(touched, bounds...)

			if err := insertDeltaTuple(tx, deltaID, fr); err != nil {
				return translateConstraintError(err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.OnCommit != nil && len(touched) > 0 {
		e.OnCommit(touched)
	}

	return &result, nil
}

func (e *Engine) applyOne(tx *gorm.DB, f feature.MutationFeature, adminAuthorized bool) (FeatureResult, []orb.Bound, error) {
	switch f.Action {
	case appmodels.ActionCreate:
		return applyCreate(tx, f, adminAuthorized)
	case appmodels.ActionModify:
		return applyModify(tx, f)
	case appmodels.ActionDelete:
		return applyDelete(tx, f)
	case appmodels.ActionRestore:
		return applyRestore(tx, f)
	default:
		return FeatureResult{}, nil, apperr.New(apperr.KindActionPrecondition, "unknown action")
	}
}

func applyCreate(tx *gorm.DB, f feature.MutationFeature, adminAuthorized bool) (FeatureResult, []orb.Bound, error) {
	if f.Force {
		if !adminAuthorized {
			return FeatureResult{}, nil, apperr.New(apperr.KindForbiddenForce, "force requires admin authorization")
		}
		existing, found, err := liveByKeyForUpdate(tx, *f.Key)
		if err != nil {
			return FeatureResult{}, nil, err
		}
		if found {
			return overwriteExisting(tx, existing, f)
		}
	}

	id, err := nextFeatureID(tx)
	if err != nil {
		return FeatureResult{}, nil, err
	}

	wkbHex, err := geocodec.EncodeWKBHex(f.Geometry.Geometry())
	if err != nil {
		return FeatureResult{}, nil, err
	}
	propsJSON, err := marshalProperties(f.Properties)
	if err != nil {
		return FeatureResult{}, nil, err
	}

	const insertSQL = `
		INSERT INTO geo (id, version, key, geom, properties, deleted)
		VALUES (?, 1, ?, ST_GeomFromWKB(decode(?, 'hex')), ?, FALSE)`
	if err := tx.Exec(insertSQL, id, nullableKey(f.Key), wkbHex, propsJSON).Error; err != nil {
		return FeatureResult{}, nil, err
	}
	if err := insertHistory(tx, id, 1, f.Key, wkbHex, propsJSON, appmodels.ActionCreate, -1); err != nil {
		return FeatureResult{}, nil, err
	}

	newVersion := int32(1)
	bounds := []orb.Bound{geocodec.Bound(f.Geometry.Geometry())}
	return FeatureResult{ID: id, NewVersion: &newVersion, Action: appmodels.ActionCreate}, bounds, nil
}

func overwriteExisting(tx *gorm.DB, existing appmodels.FeatureRow, f feature.MutationFeature) (FeatureResult, []orb.Bound, error) {
	newVersion := existing.Version + 1

	wkbHex, err := geocodec.EncodeWKBHex(f.Geometry.Geometry())
	if err != nil {
		return FeatureResult{}, nil, err
	}
	propsJSON, err := marshalProperties(f.Properties)
	if err != nil {
		return FeatureResult{}, nil, err
	}

	const updateSQL = `
		UPDATE geo SET version = ?, geom = ST_GeomFromWKB(decode(?, 'hex')),
			properties = ?, deleted = FALSE
		WHERE id = ?`
	if err := tx.Exec(updateSQL, newVersion, wkbHex, propsJSON, existing.ID).Error; err != nil {
		return FeatureResult{}, nil, err
	}
	if err := insertHistory(tx, existing.ID, newVersion, f.Key, wkbHex, propsJSON, appmodels.ActionCreate, -1); err != nil {
		return FeatureResult{}, nil, err
	}

	old := existing.Version
	var oldBound orb.Bound
	haveOldBound := false
	if len(existing.GeomWKB) > 0 {
		if g, err := geocodec.DecodeWKB(existing.GeomWKB); err == nil {
			oldBound = geocodec.Bound(g)
			haveOldBound = true
		}
	}

	bounds := []orb.Bound{geocodec.Bound(f.Geometry.Geometry())}
	if haveOldBound {
		bounds = append(bounds, oldBound)
	}

	return FeatureResult{ID: existing.ID, OldVersion: &old, NewVersion: &newVersion, Action: appmodels.ActionCreate}, bounds, nil
}

func applyModify(tx *gorm.DB, f feature.MutationFeature) (FeatureResult, []orb.Bound, error) {
	existing, found, err := liveByIDForUpdate(tx, *f.ID)
	if err != nil {
		return FeatureResult{}, nil, err
	}
	if !found {
		return FeatureResult{}, nil, apperr.New(apperr.KindNotFound, "feature not found")
	}
	if existing.Deleted {
		return FeatureResult{}, nil, apperr.New(apperr.KindActionPrecondition, "feature is deleted")
	}
	if existing.Version != *f.Version {
		return FeatureResult{}, nil, apperr.New(apperr.KindVersionMismatch, "version mismatch")
	}

	key := f.Key
	if key == nil && existing.Key.Valid {
		key = &existing.Key.String
	}

	newVersion := existing.Version + 1
	wkbHex, err := geocodec.EncodeWKBHex(f.Geometry.Geometry())
	if err != nil {
		return FeatureResult{}, nil, err
	}
	propsJSON, err := marshalProperties(f.Properties)
	if err != nil {
		return FeatureResult{}, nil, err
	}

	const updateSQL = `
		UPDATE geo SET version = ?, key = ?, geom = ST_GeomFromWKB(decode(?, 'hex')), properties = ?
		WHERE id = ? AND version = ?`
	res := tx.Exec(updateSQL, newVersion, nullableKey(key), wkbHex, propsJSON, existing.ID, existing.Version)
	if res.Error != nil {
		return FeatureResult{}, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return FeatureResult{}, nil, apperr.New(apperr.KindVersionMismatch, "version mismatch")
	}
	if err := insertHistory(tx, existing.ID, newVersion, key, wkbHex, propsJSON, appmodels.ActionModify, -1); err != nil {
		return FeatureResult{}, nil, err
	}

	old := existing.Version
	bounds := []orb.Bound{geocodec.Bound(f.Geometry.Geometry())}
	if len(existing.GeomWKB) > 0 {
		if g, err := geocodec.DecodeWKB(existing.GeomWKB); err == nil {
			bounds = append(bounds, geocodec.Bound(g))
		}
	}

	return FeatureResult{ID: existing.ID, OldVersion: &old, NewVersion: &newVersion, Action: appmodels.ActionModify}, bounds, nil
}

func applyDelete(tx *gorm.DB, f feature.MutationFeature) (FeatureResult, []orb.Bound, error) {
	existing, found, err := liveByIDForUpdate(tx, *f.ID)
	if err != nil {
		return FeatureResult{}, nil, err
	}
	if !found {
		return FeatureResult{}, nil, apperr.New(apperr.KindNotFound, "feature not found")
	}
	if existing.Deleted {
		return FeatureResult{}, nil, apperr.New(apperr.KindActionPrecondition, "feature already deleted")
	}
	if existing.Version != *f.Version {
		return FeatureResult{}, nil, apperr.New(apperr.KindVersionMismatch, "version mismatch")
	}

	newVersion := existing.Version + 1
	const updateSQL = `
		UPDATE geo SET version = ?, geom = NULL, properties = NULL, deleted = TRUE
		WHERE id = ? AND version = ?`
	res := tx.Exec(updateSQL, newVersion, existing.ID, existing.Version)
	if res.Error != nil {
		return FeatureResult{}, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return FeatureResult{}, nil, apperr.New(apperr.KindVersionMismatch, "version mismatch")
	}

	var key *string
	if existing.Key.Valid {
		key = &existing.Key.String
	}
	if err := insertHistory(tx, existing.ID, newVersion, key, "", nil, appmodels.ActionDelete, -1); err != nil {
		return FeatureResult{}, nil, err
	}

	old := existing.Version
	var bounds []orb.Bound
	if len(existing.GeomWKB) > 0 {
		if g, err := geocodec.DecodeWKB(existing.GeomWKB); err == nil {
			bounds = append(bounds, geocodec.Bound(g))
		}
	}

	return FeatureResult{ID: existing.ID, OldVersion: &old, NewVersion: &newVersion, Action: appmodels.ActionDelete}, bounds, nil
}

func applyRestore(tx *gorm.DB, f feature.MutationFeature) (FeatureResult, []orb.Bound, error) {
	existing, found, err := liveByIDForUpdate(tx, *f.ID)
	if err != nil {
		return FeatureResult{}, nil, err
	}
	if !found {
		return FeatureResult{}, nil, apperr.New(apperr.KindNotFound, "feature not found")
	}
	if !existing.Deleted {
		return FeatureResult{}, nil, apperr.New(apperr.KindActionPrecondition, "feature is not deleted")
	}
	if existing.Version != *f.Version {
		return FeatureResult{}, nil, apperr.New(apperr.KindVersionMismatch, "version mismatch")
	}

	key := f.Key
	if key == nil && existing.Key.Valid {
		key = &existing.Key.String
	}

	newVersion := existing.Version + 1
	wkbHex, err := geocodec.EncodeWKBHex(f.Geometry.Geometry())
	if err != nil {
		return FeatureResult{}, nil, err
	}
	propsJSON, err := marshalProperties(f.Properties)
	if err != nil {
		return FeatureResult{}, nil, err
	}

	const updateSQL = `
		UPDATE geo SET version = ?, key = ?, geom = ST_GeomFromWKB(decode(?, 'hex')),
			properties = ?, deleted = FALSE
		WHERE id = ? AND version = ?`
	res := tx.Exec(updateSQL, newVersion, nullableKey(key), wkbHex, propsJSON, existing.ID, existing.Version)
	if res.Error != nil {
		return FeatureResult{}, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return FeatureResult{}, nil, apperr.New(apperr.KindVersionMismatch, "version mismatch")
	}
	if err := insertHistory(tx, existing.ID, newVersion, key, wkbHex, propsJSON, appmodels.ActionRestore, -1); err != nil {
		return FeatureResult{}, nil, err
	}

	old := existing.Version
	bounds := []orb.Bound{geocodec.Bound(f.Geometry.Geometry())}
	return FeatureResult{ID: existing.ID, OldVersion: &old, NewVersion: &newVersion, Action: appmodels.ActionRestore}, bounds, nil
}

func nextFeatureID(tx *gorm.DB) (int64, error) {
	var id int64
	if err := tx.Raw("SELECT nextval('feature_id_seq')").Scan(&id).Error; err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "id allocation failed", err)
	}
	return id, nil
}

func insertDelta(tx *gorm.DB, userID int64, message string) (int64, error) {
	var id int64
	if err := tx.Raw("SELECT nextval('delta_id_seq')").Scan(&id).Error; err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "delta id allocation failed", err)
	}
	if err := tx.Exec("INSERT INTO deltas (id, user_id, message, created_at) VALUES (?, ?, ?, ?)",
		id, userID, message, time.Now().UTC()).Error; err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to insert delta", err)
	}
	return id, nil
}

func insertDeltaTuple(tx *gorm.DB, deltaID int64, fr FeatureResult) error {
	return tx.Exec("INSERT INTO delta_tuples (delta_id, feature_id, old_version, new_version) VALUES (?, ?, ?, ?)",
		deltaID, fr.ID, fr.OldVersion, fr.NewVersion).Error
}

func insertHistory(tx *gorm.DB, id int64, version int32, key *string, wkbHex string, propsJSON []byte, action appmodels.Action, _ int64) error {
	var geomExpr interface{}
	if wkbHex != "" {
		geomExpr = gorm.Expr("ST_GeomFromWKB(decode(?, 'hex'))", wkbHex)
	}
	return tx.Exec(
		"INSERT INTO geo_history (id, version, key, geom, properties, action, delta_id) VALUES (?, ?, ?, ?, ?, ?, currval('delta_id_seq'))",
		id, version, nullableKey(key), geomExpr, propsJSON, string(action),
	).Error
}

func liveByIDForUpdate(tx *gorm.DB, id int64) (appmodels.FeatureRow, bool, error) {
	var row appmodels.FeatureRow
	err := tx.Raw(
		"SELECT id, version, key, ST_AsBinary(geom) AS geom_wkb, properties, deleted FROM geo WHERE id = ? FOR UPDATE",
		id,
	).Row().Scan(&row.ID, &row.Version, &row.Key, &row.GeomWKB, &row.Properties, &row.Deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appmodels.FeatureRow{}, false, nil
		}
		return appmodels.FeatureRow{}, false, apperr.Wrap(apperr.KindInternal, "failed to read feature", err)
	}
	return row, true, nil
}

func liveByKeyForUpdate(tx *gorm.DB, key string) (appmodels.FeatureRow, bool, error) {
	var row appmodels.FeatureRow
	err := tx.Raw(
		"SELECT id, version, key, ST_AsBinary(geom) AS geom_wkb, properties, deleted FROM geo WHERE key = ? AND deleted = FALSE FOR UPDATE",
		key,
	).Row().Scan(&row.ID, &row.Version, &row.Key, &row.GeomWKB, &row.Properties, &row.Deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appmodels.FeatureRow{}, false, nil
		}
		return appmodels.FeatureRow{}, false, apperr.Wrap(apperr.KindInternal, "failed to read feature", err)
	}
	return row, true, nil
}

func nullableKey(key *string) interface{} {
	if key == nil {
		return nil
	}
	return *key
}

func marshalProperties(props map[string]interface{}) ([]byte, error) {
	if props == nil {
		return nil, nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to marshal properties", err)
	}
	return b, nil
}

// translateConstraintError turns a Postgres unique-violation (the key
// uniqueness constraint) into a key-conflict apperr; every other error
// passes through unchanged so the transaction aborts with whatever kind the
// failure already carries.
func translateConstraintError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Wrap(apperr.KindKeyConflict, "key already in use", err)
	}
	return apperr.Wrap(apperr.KindInternal, "mutation failed", err)
}
