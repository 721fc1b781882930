package migration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
	"github.com/bcgsc/graphkb/pkg/store"
)

func newSession(t *testing.T) *store.Session {
	t.Helper()
	eng := store.NewMemEngine()
	_, err := eng.CreateClass(context.Background(), SchemaHistoryClass, nil, false)
	require.NoError(t, err)
	pool := store.NewPool(eng, 2)
	sess, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	return sess
}

func stepTo(name, min, max string) Step {
	return Step{
		Name: name, MinVersion: min, MaxVersion: max,
		Run: func(ctx context.Context, sess *store.Session) error {
			return nil
		},
	}
}

func threeStepTable() []Step {
	return []Step{
		stepTo("to-1.7.0", "1.6.0", "1.7.0"),
		stepTo("to-1.8.0", "1.7.0", "1.8.0"),
		stepTo("to-1.9.0", "1.8.0", "1.9.0"),
	}
}

func seedCurrentVersion(t *testing.T, sess *store.Session, version string) {
	t.Helper()
	require.NoError(t, appendHistory(context.Background(), sess, version))
}

func TestMigrateScenario6Chain(t *testing.T) {
	sess := newSession(t)
	seedCurrentVersion(t, sess, "1.6.2")

	runner := NewRunner(threeStepTable(), "1.9.0")
	err := runner.Migrate(context.Background(), sess, false)
	require.NoError(t, err)

	rows, err := sess.Query(context.Background(), store.SelectSpec{Class: SchemaHistoryClass})
	require.NoError(t, err)
	var versions []string
	for _, r := range rows {
		versions = append(versions, r["version"].(string))
	}
	assert.Equal(t, []string{"1.6.2", "1.7.0", "1.8.0", "1.9.0"}, versions)

	current, err := CurrentVersion(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "1.9.0", current)
}

func TestMigrateScenario6NoOp(t *testing.T) {
	sess := newSession(t)
	seedCurrentVersion(t, sess, "1.8.0")

	runner := NewRunner(threeStepTable(), "1.8.3")
	err := runner.Migrate(context.Background(), sess, false)
	require.NoError(t, err)

	rows, err := sess.Query(context.Background(), store.SelectSpec{Class: SchemaHistoryClass})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "no additional history row: property 10")
}

func TestMigrateCheckOnlyRefuses(t *testing.T) {
	sess := newSession(t)
	seedCurrentVersion(t, sess, "1.6.2")

	runner := NewRunner(threeStepTable(), "1.9.0")
	err := runner.Migrate(context.Background(), sess, true)
	require.Error(t, err)
	assert.True(t, graphkberr.Is(err, graphkberr.KindMigrationRequired))
}

func TestMigrateNoPathFails(t *testing.T) {
	sess := newSession(t)
	seedCurrentVersion(t, sess, "2.0.0")

	runner := NewRunner(threeStepTable(), "1.9.0")
	err := runner.Migrate(context.Background(), sess, false)
	require.Error(t, err)
	assert.True(t, graphkberr.Is(err, graphkberr.KindNoMigrationPath))
}

func TestMigrateStampsTargetWhenChainUndershoots(t *testing.T) {
	sess := newSession(t)
	seedCurrentVersion(t, sess, "1.6.2")

	runner := NewRunner(threeStepTable(), "1.9.5")
	err := runner.Migrate(context.Background(), sess, false)
	require.NoError(t, err)

	current, err := CurrentVersion(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "1.9.5", current)
}

func TestMigrateSerializesConcurrentInvocations(t *testing.T) {
	sess := newSession(t)
	seedCurrentVersion(t, sess, "1.6.2")
	runner := NewRunner(threeStepTable(), "1.9.0")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = runner.Migrate(context.Background(), sess, false)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	current, err := CurrentVersion(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "1.9.0", current)
}
