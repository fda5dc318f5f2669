package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabcalc/tablang/internal/config"
)

func testConfig() config.Scheduler {
	return config.Scheduler{
		HighDelay:   20 * time.Millisecond,
		MediumDelay: 30 * time.Millisecond,
		LowDelay:    40 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
		MinDelay:    5 * time.Millisecond,
		BatchSize:   3,
	}
}

func TestCriticalRunsImmediately(t *testing.T) {
	s := New(testConfig())
	defer s.FlushAll()

	start := time.Now()
	outcome := <-s.Schedule(context.Background(), Request{
		Type: TypeDiagnostics,
		URI:  "file:///a.twbl",
		Handler: func(ctx context.Context) (any, error) {
			return "done", nil
		},
	})

	require.NoError(t, outcome.Err)
	assert.Equal(t, "done", outcome.Value)
	assert.Less(t, time.Since(start), 15*time.Millisecond, "critical requests must not debounce")
}

func TestDebouncedRequestEventuallyRuns(t *testing.T) {
	s := New(testConfig())
	defer s.FlushAll()

	outcome := <-s.Schedule(context.Background(), Request{
		Type:        TypeHover,
		URI:         "file:///a.twbl",
		PositionKey: "1:1",
		Handler: func(ctx context.Context) (any, error) {
			return 42, nil
		},
	})

	require.NoError(t, outcome.Err)
	assert.Equal(t, 42, outcome.Value)
}

func TestCoalescingOnlyLatestSurvives(t *testing.T) {
	s := New(testConfig())
	defer s.FlushAll()

	var runs atomic.Int32
	handler := func(ctx context.Context) (any, error) {
		runs.Add(1)
		return nil, nil
	}

	req := Request{Type: TypeHover, URI: "file:///a.twbl", PositionKey: "1:1", Handler: handler}

	first := s.Schedule(context.Background(), req)
	second := s.Schedule(context.Background(), req)

	firstOutcome := <-first
	assert.ErrorIs(t, firstOutcome.Err, ErrSuperseded)

	secondOutcome := <-second
	assert.NoError(t, secondOutcome.Err)

	// give any stray timer a chance to misfire
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "at most one handler invocation per debounce window")
}

func TestDifferentPositionsDoNotCoalesce(t *testing.T) {
	s := New(testConfig())
	defer s.FlushAll()

	var runs atomic.Int32
	handler := func(ctx context.Context) (any, error) {
		runs.Add(1)
		return nil, nil
	}

	a := s.Schedule(context.Background(), Request{Type: TypeHover, URI: "file:///a.twbl", PositionKey: "1:1", Handler: handler})
	b := s.Schedule(context.Background(), Request{Type: TypeHover, URI: "file:///a.twbl", PositionKey: "2:2", Handler: handler})

	require.NoError(t, (<-a).Err)
	require.NoError(t, (<-b).Err)
	assert.Equal(t, int32(2), runs.Load())
}

func TestClearDocumentRequests(t *testing.T) {
	s := New(testConfig())
	defer s.FlushAll()

	target := s.Schedule(context.Background(), Request{
		Type: TypeCompletion, URI: "file:///a.twbl", PositionKey: "1:1",
		Handler: func(ctx context.Context) (any, error) { return nil, nil },
	})
	other := s.Schedule(context.Background(), Request{
		Type: TypeCompletion, URI: "file:///b.twbl", PositionKey: "1:1",
		Handler: func(ctx context.Context) (any, error) { return "ok", nil },
	})

	s.ClearDocumentRequests("file:///a.twbl")

	assert.ErrorIs(t, (<-target).Err, ErrCancelled)
	assert.NoError(t, (<-other).Err, "other documents' requests are unaffected")
}

func TestHandlerFailureIsIsolated(t *testing.T) {
	s := New(testConfig())
	defer s.FlushAll()

	failing := s.Schedule(context.Background(), Request{
		Type: TypeHover, URI: "file:///a.twbl", PositionKey: "1:1",
		Handler: func(ctx context.Context) (any, error) {
			return nil, errors.New("boom")
		},
	})
	healthy := s.Schedule(context.Background(), Request{
		Type: TypeHover, URI: "file:///a.twbl", PositionKey: "9:9",
		Handler: func(ctx context.Context) (any, error) {
			return "fine", nil
		},
	})

	assert.Error(t, (<-failing).Err)

	outcome := <-healthy
	require.NoError(t, outcome.Err)
	assert.Equal(t, "fine", outcome.Value)
}

func TestPanicBecomesError(t *testing.T) {
	s := New(testConfig())
	defer s.FlushAll()

	outcome := <-s.Schedule(context.Background(), Request{
		Type: TypeDiagnostics, URI: "file:///a.twbl",
		Handler: func(ctx context.Context) (any, error) {
			panic("unexpected")
		},
	})
	assert.Error(t, outcome.Err)
}

func TestCancelledContextSkipsHandler(t *testing.T) {
	s := New(testConfig())
	defer s.FlushAll()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := <-s.Schedule(ctx, Request{
		Type: TypeDiagnostics, URI: "file:///a.twbl",
		Handler: func(ctx context.Context) (any, error) {
			t.Error("handler must not run after cancellation")
			return nil, nil
		},
	})
	assert.ErrorIs(t, outcome.Err, context.Canceled)
}

func TestBatchDispatchAtThreshold(t *testing.T) {
	s := New(testConfig())
	defer s.FlushAll()

	var runs atomic.Int32
	handler := func(ctx context.Context) (any, error) {
		runs.Add(1)
		return nil, nil
	}

	start := time.Now()
	var waiters []<-chan Outcome
	for i := 0; i < 3; i++ {
		waiters = append(waiters, s.Schedule(context.Background(), Request{
			Type:        TypeSemanticTokens,
			URI:         "file:///a.twbl",
			PositionKey: string(rune('a' + i)),
			Handler:     handler,
		}))
	}

	for _, w := range waiters {
		require.NoError(t, (<-w).Err)
	}
	assert.Equal(t, int32(3), runs.Load())
	assert.Less(t, time.Since(start), 35*time.Millisecond,
		"reaching the batch size dispatches without waiting out the low-priority delay")
}

func TestFlushAllRunsEverythingAndShutsDown(t *testing.T) {
	s := New(testConfig())

	var runs atomic.Int32
	waiter := s.Schedule(context.Background(), Request{
		Type: TypeHover, URI: "file:///a.twbl", PositionKey: "1:1",
		Handler: func(ctx context.Context) (any, error) {
			runs.Add(1)
			return nil, nil
		},
	})

	s.FlushAll()
	require.NoError(t, (<-waiter).Err)
	assert.Equal(t, int32(1), runs.Load())

	outcome := <-s.Schedule(context.Background(), Request{
		Type: TypeHover, URI: "file:///a.twbl", PositionKey: "1:1",
		Handler: func(ctx context.Context) (any, error) { return nil, nil },
	})
	assert.ErrorIs(t, outcome.Err, ErrShutdown)
}

func TestAdaptiveDelayGrowsUnderRapidFire(t *testing.T) {
	s := New(testConfig())
	defer s.FlushAll()

	// rapid repeats for the same (type, uri) stretch the delay
	base := s.baseDelay(TypeHover)
	req := Request{Type: TypeHover, URI: "file:///a.twbl", Handler: func(ctx context.Context) (any, error) { return nil, nil }}

	s.mu.Lock()
	first := s.nextDelayLocked(req)
	second := s.nextDelayLocked(req)
	s.mu.Unlock()

	assert.Equal(t, base, first)
	assert.Greater(t, second, first)
	assert.LessOrEqual(t, second, s.cfg.MaxDelay)
}
