package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/match-lifecycle/internal/config"
	"github.com/match-lifecycle/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSweeper struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *countingSweeper) RunSweep(context.Context) ([]domain.Match, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	return nil, nil
}

func TestSweepWorker_TriggerRunsSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	w := NewSweepWorker(sweeper, &config.SweepConfig{}, discardLogger())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	w.Trigger()
	require.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSweepWorker_TriggersCoalesce(t *testing.T) {
	sweeper := &countingSweeper{release: make(chan struct{})}
	w := NewSweepWorker(sweeper, &config.SweepConfig{}, discardLogger())
	require.NoError(t, w.Start(context.Background()))

	w.Trigger()
	require.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// the first sweep is blocked; these collapse into a single pending run
	for range 10 {
		w.Trigger()
	}
	sweeper.release <- struct{}{}
	require.Eventually(t, func() bool { return sweeper.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	sweeper.release <- struct{}{}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), sweeper.calls.Load())
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}

func TestSweepWorker_Interval(t *testing.T) {
	sweeper := &countingSweeper{}
	w := NewSweepWorker(sweeper, &config.SweepConfig{Interval: 10 * time.Millisecond}, discardLogger())
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

type staticSource map[string]map[string]int

func (s staticSource) GraduatedRatings(context.Context) (map[string]map[string]int, error) {
	return s, nil
}

type recordingIndex struct {
	mu      sync.Mutex
	rebuilt map[string]map[string]int
	failOn  string
}

func (r *recordingIndex) Rebuild(_ context.Context, region string, ratings map[string]int) error {
	if region == r.failOn {
		return errors.New("redis down")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rebuilt == nil {
		r.rebuilt = make(map[string]map[string]int)
	}
	r.rebuilt[region] = ratings
	return nil
}

func TestRebuildRankings(t *testing.T) {
	source := staticSource{
		"catalonia/barcelona": {"ana": 1200, "bea": 1400},
		"madrid/madrid":       {"carla": 900},
	}

	index := &recordingIndex{}
	require.NoError(t, RebuildRankings(context.Background(), source, index, discardLogger()))
	assert.Equal(t, map[string]map[string]int(source), index.rebuilt)

	index = &recordingIndex{failOn: "madrid/madrid"}
	err := RebuildRankings(context.Background(), source, index, discardLogger())
	assert.ErrorContains(t, err, "1 of 2")
	assert.Contains(t, index.rebuilt, "catalonia/barcelona")
}
