package metrics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/access"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/realtime"
	"github.com/autobrr/litebase/internal/schema"
	"github.com/autobrr/litebase/internal/scheduler"
)

func TestLitebaseCollectorWithNilDependencies(t *testing.T) {
	c := NewLitebaseCollector(nil, nil, nil)
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestLitebaseCollectorReportsMetricsBeforeAnyJobRuns(t *testing.T) {
	eng, err := engine.Open(filepath.Join(t.TempDir(), "metrics-test.db"), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	ctx := context.Background()
	_, err = eng.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	sc := schema.New(eng)
	require.NoError(t, sc.Reload(ctx))
	ev := access.New(eng)
	hub := realtime.New(eng, sc, ev)
	require.NoError(t, hub.Start())
	t.Cleanup(hub.Stop)

	reg := scheduler.New()
	require.NoError(t, reg.Register("@every 1h", scheduler.JobFunc{
		JobName: "failing",
		Fn:      func(context.Context) error { return errors.New("boom") },
	}, false))

	c := NewLitebaseCollector(eng, hub, reg)
	count := testutil.CollectAndCount(c)
	assert.Greater(t, count, 0, "should report engine metrics even before any job has run")
}
