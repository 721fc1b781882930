package migration

import (
	"context"

	"github.com/bcgsc/graphkb/pkg/schema"
	"github.com/bcgsc/graphkb/pkg/store"
)

// CreateIndexStep builds a step that creates one index, tolerating one
// already existing (graceful=true), per the "create indices on declared
// properties" example shape of spec §4.3.
func CreateIndexStep(name string, desc schema.IndexDescriptor) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, sess *store.Session) error {
			_, err := sess.CreateIndex(ctx, desc, true)
			return err
		},
	}
}

// AddPropertyWithDefaultStep adds a new property to class, backfilling
// every existing record without it with defaultValue.
func AddPropertyWithDefaultStep(name, class string, desc schema.PropertyDescriptor, defaultValue any) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, sess *store.Session) error {
			if err := sess.CreateProperty(ctx, class, desc); err != nil {
				return err
			}
			rows, err := sess.QueryPaged(ctx, store.SelectSpec{Class: class}, store.DefaultPageOptions())
			if err != nil {
				return err
			}
			for _, r := range rows {
				if _, ok := r[desc.Name]; ok {
					continue // idempotent: already backfilled by a partial prior run
				}
				if err := sess.Update(ctx, class, r.Rid(), map[string]any{desc.Name: defaultValue}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// RenamePropertyStep copies every record's oldName value to newName and
// leaves oldName in place (the store adapter has no property-drop DDL;
// dropping a stale property column is deferred to the next full schema
// rebuild, matching the "not exhaustive" scope spec §4.3 gives these
// example step shapes).
func RenamePropertyStep(name, class, oldName, newName string, desc schema.PropertyDescriptor) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, sess *store.Session) error {
			if err := sess.CreateProperty(ctx, class, desc); err != nil {
				return err
			}
			rows, err := sess.QueryPaged(ctx, store.SelectSpec{Class: class}, store.DefaultPageOptions())
			if err != nil {
				return err
			}
			for _, r := range rows {
				if _, ok := r[newName]; ok {
					continue
				}
				old, ok := r[oldName]
				if !ok {
					continue
				}
				if err := sess.Update(ctx, class, r.Rid(), map[string]any{newName: old}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// permissionsFor derives a permissions string from a class's abstract/edge
// flags, per spec §4.3's "add a new permissions column" example: ALL for
// regular vertex classes, READ for abstract classes, READ|CREATE|DELETE
// for edge classes.
func permissionsFor(desc *schema.ClassDescriptor, isEdge bool) string {
	switch {
	case isEdge:
		return "READ|CREATE|DELETE"
	case desc.Abstract:
		return "READ"
	default:
		return "ALL"
	}
}

// SeedPermissionsColumnStep adds a "permissions" property to each class named
// in classes, backfilling existing records per class's abstract/edge flags as
// recorded in reg.
func SeedPermissionsColumnStep(name string, reg *schema.Registry, classes []string) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, sess *store.Session) error {
			for _, className := range classes {
				desc, err := reg.GetClass(className)
				if err != nil {
					return err
				}
				isEdge, err := reg.IsEdgeClass(className)
				if err != nil {
					return err
				}
				perm := permissionsFor(desc, isEdge)
				if err := sess.CreateProperty(ctx, className, schema.PropertyDescriptor{Name: "permissions", Type: schema.TypeString}); err != nil {
					return err
				}
				rows, err := sess.QueryPaged(ctx, store.SelectSpec{Class: className}, store.DefaultPageOptions())
				if err != nil {
					return err
				}
				for _, r := range rows {
					if _, ok := r["permissions"]; ok {
						continue
					}
					if err := sess.Update(ctx, className, r.Rid(), map[string]any{"permissions": perm}); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// RecreateFulltextIndexStep drops is not supported by the store adapter's
// DDL surface, so this recreates (graceful, idempotent) a full-text index
// over the given properties.
func RecreateFulltextIndexStep(name, class string, properties []string) Step {
	desc := schema.IndexDescriptor{Name: name, Type: schema.IndexFulltext, Class: class, Properties: properties}
	return CreateIndexStep(name, desc)
}

// EULAClass and EULARecordName back the default end-user license seed step
// supplemented from SPEC_FULL.md §9.1.
const (
	EULAClass      = "EULA"
	EULARecordName = "GRAPHKB_EULA_ACCEPTED"
)

// SeedDefaultLicenseStep inserts a single end-user license acceptance
// record if one is not already present, per spec §4.3's "seed a default
// end-user license row" example and SPEC_FULL.md §9.1.
func SeedDefaultLicenseStep(name, version string) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, sess *store.Session) error {
			rows, err := sess.Query(ctx, store.SelectSpec{Class: EULAClass})
			if err != nil {
				return err
			}
			for _, r := range rows {
				if r["name"] == EULARecordName {
					return nil // idempotent: already seeded
				}
			}
			_, err = sess.Insert(ctx, EULAClass, map[string]any{
				"name":    EULARecordName,
				"version": version,
			})
			return err
		},
	}
}

// Migrate2From2xTo3x is intentionally a no-op: the source left this
// transition's data migration unimplemented. Kept as a placeholder step so
// the version chain stays monotonic.
func Migrate2From2xTo3x(minVersion, maxVersion string) Step {
	return Step{
		Name:       "migrate2from2xto3x",
		MinVersion: minVersion,
		MaxVersion: maxVersion,
		Run: func(ctx context.Context, sess *store.Session) error {
			return nil
		},
	}
}
