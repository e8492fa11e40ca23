package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegistersEnabledJob(t *testing.T) {
	r := New()
	job := JobFunc{JobName: "tick", Fn: func(ctx context.Context) error { return nil }}

	require.NoError(t, r.Register("@every 1h", job, true))
	assert.Len(t, r.cron.Entries(), 1)
}

func TestRegistryRejectsDuplicateJobName(t *testing.T) {
	r := New()
	job := JobFunc{JobName: "dup", Fn: func(ctx context.Context) error { return nil }}

	require.NoError(t, r.Register("@every 1h", job, false))
	err := r.Register("@every 1h", job, false)
	assert.Error(t, err)
}

func TestRegistryRunDirectlyRecordsResult(t *testing.T) {
	r := New()
	wantErr := errors.New("boom")
	job := JobFunc{JobName: "failing", Fn: func(ctx context.Context) error { return wantErr }}

	require.NoError(t, r.Register("@every 1h", job, false))
	r.run(job)

	res, ok := r.LastResult("failing")
	require.True(t, ok)
	assert.ErrorIs(t, res.Err, wantErr)
	assert.True(t, res.Duration >= 0)
}

func TestRegistryEnableDisable(t *testing.T) {
	r := New()
	job := JobFunc{JobName: "toggle", Fn: func(ctx context.Context) error { return nil }}

	require.NoError(t, r.Register("@every 1h", job, false))
	require.NoError(t, r.Enable("toggle", "@every 1h"))
	r.Disable("toggle")

	err := r.Enable("toggle", "@every 1h")
	assert.NoError(t, err)
}

func TestRegistryStartStop(t *testing.T) {
	r := New()
	var ran atomic.Bool
	job := JobFunc{JobName: "startstop", Fn: func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}}
	require.NoError(t, r.Register("@every 1s", job, true))

	r.Start()
	time.Sleep(1200 * time.Millisecond)
	r.Stop()

	assert.True(t, ran.Load())
}
