package feature

import (
	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/appmodels"
	"github.com/GrainArc/geofeatured/internal/geocodec"
)

// SchemaValidator validates a feature's properties against a configured
// JSON-Schema document. A nil SchemaValidator skips validation, matching
// spec.md §4.B's "if a JSON schema is configured".
type SchemaValidator interface {
	Validate(properties map[string]interface{}) error
}

// Validate enforces the per-action precondition table from spec.md §4.B and,
// when sv is non-nil, validates Properties against the configured schema.
func Validate(f MutationFeature, sv SchemaValidator) error {
	switch f.Action {
	case appmodels.ActionCreate:
		if err := validateCreate(f); err != nil {
			return err
		}
	case appmodels.ActionModify:
		if err := validateModify(f); err != nil {
			return err
		}
	case appmodels.ActionDelete:
		if err := validateDelete(f); err != nil {
			return err
		}
	case appmodels.ActionRestore:
		if err := validateRestore(f); err != nil {
			return err
		}
	default:
		return apperr.New(apperr.KindActionPrecondition, "action must be one of create, modify, delete, restore")
	}

	if needsProperties(f.Action) && sv != nil {
		if err := sv.Validate(f.Properties); err != nil {
			return apperr.Wrap(apperr.KindSchemaViolation, "properties failed schema validation", err)
		}
	}

	return nil
}

func needsProperties(a appmodels.Action) bool {
	return a == appmodels.ActionCreate || a == appmodels.ActionModify || a == appmodels.ActionRestore
}

func validateCreate(f MutationFeature) error {
	if f.ID != nil {
		return apperr.New(apperr.KindActionPrecondition, "create must not carry an id")
	}
	if f.Version != nil {
		return apperr.New(apperr.KindActionPrecondition, "create must not carry a version")
	}
	if f.Geometry.Coordinates == nil {
		return apperr.New(apperr.KindActionPrecondition, "create requires a geometry")
	}
	if err := geocodec.Validate(f.Geometry.Geometry()); err != nil {
		return err
	}
	if f.Properties == nil {
		return apperr.New(apperr.KindActionPrecondition, "create requires properties")
	}
	if f.Force && (f.Key == nil || *f.Key == "") {
		return apperr.New(apperr.KindActionPrecondition, "force requires a non-null key")
	}
	return nil
}

func validateModify(f MutationFeature) error {
	if f.ID == nil {
		return apperr.New(apperr.KindActionPrecondition, "modify requires an id")
	}
	if f.Version == nil {
		return apperr.New(apperr.KindActionPrecondition, "modify requires a version")
	}
	if f.Geometry.Coordinates == nil {
		return apperr.New(apperr.KindActionPrecondition, "modify requires a geometry")
	}
	if err := geocodec.Validate(f.Geometry.Geometry()); err != nil {
		return err
	}
	if f.Properties == nil {
		return apperr.New(apperr.KindActionPrecondition, "modify requires properties")
	}
	return nil
}

func validateDelete(f MutationFeature) error {
	if f.ID == nil {
		return apperr.New(apperr.KindActionPrecondition, "delete requires an id")
	}
	if f.Version == nil {
		return apperr.New(apperr.KindActionPrecondition, "delete requires a version")
	}
	return nil
}

func validateRestore(f MutationFeature) error {
	if f.ID == nil {
		return apperr.New(apperr.KindActionPrecondition, "restore requires an id")
	}
	if f.Version == nil {
		return apperr.New(apperr.KindActionPrecondition, "restore requires a version")
	}
	if f.Geometry.Coordinates == nil {
		return apperr.New(apperr.KindActionPrecondition, "restore requires a geometry")
	}
	if err := geocodec.Validate(f.Geometry.Geometry()); err != nil {
		return err
	}
	if f.Properties == nil {
		return apperr.New(apperr.KindActionPrecondition, "restore requires properties")
	}
	return nil
}
