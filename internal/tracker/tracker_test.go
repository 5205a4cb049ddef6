package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Unix(1700000000, 0).UTC()}
}

type recordingSink struct {
	mu  sync.Mutex
	ops []Operation
}

func (s *recordingSink) Consume(_ context.Context, op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
	return nil
}

func (s *recordingSink) Close(context.Context) error { return nil }

func (s *recordingSink) snapshots() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Operation, len(s.ops))
	copy(out, s.ops)
	return out
}

func TestRegisterAndApply(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	tr := New(newFixedClock(), nil, sink)
	ctx := context.Background()

	op, err := tr.Register(ctx, "pid-1", "https://example.com", KindCrawl)
	require.NoError(t, err)
	require.Equal(t, StatusPending, op.Status)

	require.NoError(t, tr.Apply(ctx, Update{
		ProgressID: "pid-1",
		Status:     StatusRunning,
		Percent:    40,
		Message:    "crawling",
	}))

	got, ok := tr.Get("pid-1")
	require.True(t, ok)
	require.Equal(t, StatusRunning, got.Status)
	require.Equal(t, 40, got.Percent)
	require.Equal(t, "crawling", got.Message)
	require.Len(t, sink.snapshots(), 2)
}

func TestRegisterDuplicateProgressID(t *testing.T) {
	t.Parallel()

	tr := New(newFixedClock(), nil)
	ctx := context.Background()
	_, err := tr.Register(ctx, "pid-1", "a", KindCrawl)
	require.NoError(t, err)
	_, err = tr.Register(ctx, "pid-1", "b", KindCrawl)
	require.ErrorIs(t, err, ErrDuplicateProgressID)
}

func TestApplyUnknownOperation(t *testing.T) {
	t.Parallel()

	tr := New(newFixedClock(), nil)
	err := tr.Apply(context.Background(), Update{ProgressID: "nope", Status: StatusRunning})
	require.ErrorIs(t, err, ErrUnknownOperation)
}

func TestApplyRejectsInvalidUpdate(t *testing.T) {
	t.Parallel()

	tr := New(newFixedClock(), nil)
	require.Error(t, tr.Apply(context.Background(), Update{Status: StatusRunning}))
	require.Error(t, tr.Apply(context.Background(), Update{ProgressID: "p", Status: "weird"}))
	require.Error(t, tr.Apply(context.Background(), Update{ProgressID: "p", Status: StatusRunning, Percent: 150}))
}

func TestUpdatesAfterTerminalIgnored(t *testing.T) {
	t.Parallel()

	tr := New(newFixedClock(), nil)
	ctx := context.Background()
	_, err := tr.Register(ctx, "pid-1", "src", KindUpload)
	require.NoError(t, err)

	require.NoError(t, tr.Apply(ctx, Update{ProgressID: "pid-1", Status: StatusCompleted, Percent: 100}))
	require.NoError(t, tr.Apply(ctx, Update{ProgressID: "pid-1", Status: StatusRunning, Percent: 10}))

	got, _ := tr.Get("pid-1")
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 100, got.Percent)
}

func TestReCrawlDisplacesDisplayedOperation(t *testing.T) {
	t.Parallel()

	tr := New(newFixedClock(), nil)
	ctx := context.Background()

	_, err := tr.Register(ctx, "pid-1", "https://example.com", KindCrawl)
	require.NoError(t, err)
	_, err = tr.Register(ctx, "pid-2", "https://example.com", KindCrawl)
	require.NoError(t, err)

	displayed, ok := tr.DisplayedForSource("https://example.com")
	require.True(t, ok)
	require.Equal(t, "pid-2", displayed.ProgressID)

	// Both records remain independently observable.
	_, ok = tr.Get("pid-1")
	require.True(t, ok)
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()

	tr := New(newFixedClock(), nil)
	ctx := context.Background()
	_, err := tr.Register(ctx, "pid-1", "a", KindCrawl)
	require.NoError(t, err)
	_, err = tr.Register(ctx, "pid-2", "b", KindCrawl)
	require.NoError(t, err)

	ops := tr.List()
	require.Len(t, ops, 2)
	require.Equal(t, "pid-2", ops[0].ProgressID)
}

type scriptedSource struct {
	mu      sync.Mutex
	updates []Update
	idx     int
}

func (s *scriptedSource) Progress(_ context.Context, _ string) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.updates) {
		return s.updates[len(s.updates)-1], nil
	}
	u := s.updates[s.idx]
	s.idx++
	return u, nil
}

func TestWatchStopsAtTerminal(t *testing.T) {
	t.Parallel()

	tr := New(newFixedClock(), nil)
	ctx := context.Background()
	_, err := tr.Register(ctx, "pid-1", "src", KindCrawl)
	require.NoError(t, err)

	src := &scriptedSource{updates: []Update{
		{Status: StatusRunning, Percent: 30},
		{Status: StatusRunning, Percent: 70},
		{Status: StatusCompleted, Percent: 100, Message: "done"},
	}}

	require.NoError(t, tr.Watch(ctx, src, "pid-1", 5*time.Millisecond))

	got, _ := tr.Get("pid-1")
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "done", got.Message)
}

func TestWatchHonorsContext(t *testing.T) {
	t.Parallel()

	tr := New(newFixedClock(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tr.Register(ctx, "pid-1", "src", KindCrawl)
	require.NoError(t, err)

	src := &scriptedSource{updates: []Update{{Status: StatusRunning, Percent: 1}}}
	err = tr.Watch(ctx, src, "pid-1", 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
