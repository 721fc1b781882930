// Package migration implements the C3 schema migration runner: it reads
// the current schema version recorded in the store, compares it to the
// application's target version, and executes a linear chain of ordered
// migration steps until the two versions are compatible, appending an
// audit history row for every transition.
//
// Grounded on the teacher's pkg/config/feature_flags.go versioned-table
// dispatch (an ordered table of ranges matched against one input) and
// pkg/storage/wal.go's append-only log record shape, generalized here to
// an ordered semver range table and a SchemaHistory append log.
package migration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
	"github.com/bcgsc/graphkb/pkg/store"
)

// SchemaHistoryClass is the class name the runner reads/appends, per
// spec §6.3.
const SchemaHistoryClass = "SchemaHistory"

// StepFunc runs one migration step against session. It must be tolerant of
// partial prior execution and must not assume any specific starting data:
// it either leaves the store in a consistent state or fails loud. The
// runner does not implement rollback.
type StepFunc func(ctx context.Context, sess *store.Session) error

// Step is one entry of the migration table. Its semver range is
// [MinVersion, MaxVersion); Run executes when the current version falls in
// that range, after which the history log records MaxVersion as the new
// current version.
type Step struct {
	Name       string
	MinVersion string
	MaxVersion string
	Run        StepFunc
}

func (s Step) constraint() (*semver.Constraints, error) {
	return semver.NewConstraint(fmt.Sprintf(">=%s, <%s", s.MinVersion, s.MaxVersion))
}

// Runner walks Table to bring the store's recorded schema version into
// ~MAJOR.MINOR compatibility with Target.
type Runner struct {
	Table  []Step
	Target string

	mu sync.Mutex // serializes concurrent migration invocations, per spec §5
}

// NewRunner sorts table by ascending MinVersion (spec's documented
// tie-break rule) and returns a Runner targeting target.
func NewRunner(table []Step, target string) *Runner {
	sorted := append([]Step(nil), table...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return semver.MustParse(sorted[i].MinVersion).LessThan(semver.MustParse(sorted[j].MinVersion))
	})
	return &Runner{Table: sorted, Target: target}
}

// CurrentVersion reads the SchemaHistory row with the greatest createdAt.
// An empty history (fresh store) reads as version "0.0.0".
func CurrentVersion(ctx context.Context, sess *store.Session) (string, error) {
	rows, err := sess.Query(ctx, store.SelectSpec{Class: SchemaHistoryClass})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "0.0.0", nil
	}
	best := rows[0]
	bestCreated := createdAt(best)
	for _, r := range rows[1:] {
		if c := createdAt(r); c > bestCreated {
			best, bestCreated = r, c
		}
	}
	version, _ := best["version"].(string)
	if version == "" {
		return "", graphkberr.New(graphkberr.KindInternal, "migration.CurrentVersion", "SchemaHistory row missing version")
	}
	return version, nil
}

func createdAt(rec store.Record) int64 {
	switch v := rec["createdAt"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func appendHistory(ctx context.Context, sess *store.Session, version string) error {
	_, err := sess.Insert(ctx, SchemaHistoryClass, map[string]any{
		"name":      "graphkb",
		"version":   version,
		"createdAt": time.Now().UnixNano(),
	})
	return err
}

// compatible reports whether current and target share a major.minor
// version — the compatibility test of spec §6.4 (patch differences never
// trigger migration).
func compatible(current, target string) (bool, error) {
	cv, err := semver.NewVersion(current)
	if err != nil {
		return false, graphkberr.Wrap(graphkberr.KindValidation, "migration.compatible", "parsing current version", err)
	}
	tv, err := semver.NewVersion(target)
	if err != nil {
		return false, graphkberr.Wrap(graphkberr.KindValidation, "migration.compatible", "parsing target version", err)
	}
	return cv.Major() == tv.Major() && cv.Minor() == tv.Minor(), nil
}

func (r *Runner) findStep(current string) (*Step, error) {
	cv, err := semver.NewVersion(current)
	if err != nil {
		return nil, graphkberr.Wrap(graphkberr.KindValidation, "migration.findStep", "parsing current version", err)
	}
	for i := range r.Table {
		step := r.Table[i]
		c, err := step.constraint()
		if err != nil {
			return nil, graphkberr.Wrap(graphkberr.KindInternal, "migration.findStep", "invalid step range "+step.Name, err)
		}
		if c.Check(cv) {
			return &step, nil
		}
	}
	return nil, nil
}

// Migrate runs the algorithm of spec §4.3: a no-op short-circuit when
// current and target are already ~MAJOR.MINOR compatible (property 10);
// otherwise, when checkOnly is set, MigrationRequiredError; otherwise walk
// the step chain, logging one history row per step, until compatible, then
// stamp target exactly if the chain's last step didn't land on it exactly.
func (r *Runner) Migrate(ctx context.Context, sess *store.Session, checkOnly bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := CurrentVersion(ctx, sess)
	if err != nil {
		return err
	}

	isCompatible, err := compatible(current, r.Target)
	if err != nil {
		return err
	}
	if isCompatible {
		return nil
	}
	if checkOnly {
		return graphkberr.New(graphkberr.KindMigrationRequired, "migration.Migrate",
			fmt.Sprintf("store at %s requires migration to %s", current, r.Target))
	}

	for !isCompatible {
		if err := ctx.Err(); err != nil {
			return graphkberr.Wrap(graphkberr.KindConnection, "migration.Migrate", "context cancelled", err)
		}
		// current may exceed the highest step's range once it no longer
		// needs a transition; findStep only runs while incompatible, so a
		// nil match here means the table has a genuine gap.
		step, err := r.findStep(current)
		if err != nil {
			return err
		}
		if step == nil {
			return graphkberr.New(graphkberr.KindNoMigrationPath, "migration.Migrate",
				fmt.Sprintf("no migration step covers version %s", current))
		}
		if err := step.Run(ctx, sess); err != nil {
			return graphkberr.Wrap(graphkberr.KindInternal, "migration.Migrate", "step "+step.Name+" failed", err)
		}
		if err := appendHistory(ctx, sess, step.MaxVersion); err != nil {
			return err
		}
		current = step.MaxVersion

		isCompatible, err = compatible(current, r.Target)
		if err != nil {
			return err
		}
	}

	if current != r.Target {
		if err := appendHistory(ctx, sess, r.Target); err != nil {
			return err
		}
	}
	return nil
}
