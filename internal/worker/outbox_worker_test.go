package worker

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/servicedesk/internal/domain"
)

type effectState struct {
	state    domain.EffectState
	attempts int
	lastErr  string
}

type fakeStore struct {
	mu      sync.Mutex
	states  map[string]effectState
	claimed map[string]time.Time
	clock   time.Time
	stale   []domain.OutboxEffect
	claims  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:  make(map[string]effectState),
		claimed: make(map[string]time.Time),
		clock:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

// stamp advances the claim of id; callers hold mu.
func (s *fakeStore) stamp(id string) time.Time {
	s.clock = s.clock.Add(time.Second)
	s.claimed[id] = s.clock
	return s.clock
}

// insert records a new PROCESSING effect the way the mutation commit does.
func (s *fakeStore) insert(effect domain.OutboxEffect) domain.OutboxEffect {
	s.mu.Lock()
	defer s.mu.Unlock()
	effect.State = domain.EffectStateProcessing
	effect.ClaimedAt = s.stamp(effect.ID)
	return effect
}

func (s *fakeStore) Claim(_ context.Context, id string, claimedAt time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok && st.state != domain.EffectStateProcessing {
		return time.Time{}, false, nil
	}
	if current, ok := s.claimed[id]; ok && !current.Equal(claimedAt) {
		return time.Time{}, false, nil
	}
	return s.stamp(id), true, nil
}

func (s *fakeStore) MarkDone(_ context.Context, id string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = effectState{state: domain.EffectStateDone, attempts: attempts}
	return nil
}

func (s *fakeStore) RecordAttempt(_ context.Context, id string, attempts int, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = effectState{state: domain.EffectStateProcessing, attempts: attempts, lastErr: lastErr}
	s.stamp(id)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id string, attempts int, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = effectState{state: domain.EffectStateFailed, attempts: attempts, lastErr: lastErr}
	return nil
}

func (s *fakeStore) ClaimStale(_ context.Context, _ time.Time, _ int, once []domain.EffectKind) ([]domain.OutboxEffect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	var out []domain.OutboxEffect
	for _, effect := range s.stale {
		st, known := s.states[effect.ID]
		if known {
			if st.state != domain.EffectStateProcessing {
				continue
			}
			effect.Attempts = st.attempts
		}
		if effect.Attempts >= 1 && slices.Contains(once, effect.Kind) {
			continue
		}
		effect.ClaimedAt = s.stamp(effect.ID)
		out = append(out, effect)
	}
	s.stale = nil
	return out, nil
}

func (s *fakeStore) get(id string) (effectState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	return st, ok
}

func (s *fakeStore) settled(id string) func() bool {
	return func() bool {
		st, ok := s.get(id)
		return ok && st.state != domain.EffectStateProcessing
	}
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) OutboxEffect(kind, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[kind+"/"+result]++
}

func (m *countingMetrics) get(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func testOptions() Options {
	return Options{Workers: 2, QueueSize: 8, MaxAttempts: 3, Backoff: time.Millisecond}
}

func startPool(t *testing.T, store Store, opts Options, metrics MetricsRecorder) *Pool {
	t.Helper()
	pool := NewPool(store, opts, zaptest.NewLogger(t), metrics)
	t.Cleanup(pool.Stop)
	return pool
}

func TestPoolRetriesUntilSuccess(t *testing.T) {
	store := newFakeStore()
	metrics := &countingMetrics{}
	pool := startPool(t, store, testOptions(), metrics)

	var mu sync.Mutex
	calls := 0
	pool.Handle(domain.EffectSyncVendor, func(context.Context, domain.OutboxEffect) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("vendor store unavailable")
		}
		return nil
	}, true)
	pool.Start(context.Background())

	require.Equal(t, 1, pool.Enqueue(domain.OutboxEffect{ID: "e1", Kind: domain.EffectSyncVendor}))
	require.Eventually(t, store.settled("e1"), time.Second, 5*time.Millisecond)

	st, _ := store.get("e1")
	assert.Equal(t, domain.EffectStateDone, st.state)
	assert.Equal(t, 3, st.attempts)
	assert.Equal(t, 2, metrics.get("SYNC_VENDOR/retry"))
	assert.Equal(t, 1, metrics.get("SYNC_VENDOR/done"))
}

func TestPoolMarksFailedAfterMaxAttempts(t *testing.T) {
	store := newFakeStore()
	pool := startPool(t, store, testOptions(), nil)
	pool.Handle(domain.EffectSyncExternal, func(context.Context, domain.OutboxEffect) error {
		return errors.New("connection refused")
	}, true)
	pool.Start(context.Background())

	pool.Enqueue(domain.OutboxEffect{ID: "e2", Kind: domain.EffectSyncExternal})
	require.Eventually(t, store.settled("e2"), time.Second, 5*time.Millisecond)

	st, _ := store.get("e2")
	assert.Equal(t, domain.EffectStateFailed, st.state)
	assert.Equal(t, 3, st.attempts)
	assert.Equal(t, "connection refused", st.lastErr)
}

func TestPoolDoesNotRetryWithoutRetryFlag(t *testing.T) {
	store := newFakeStore()
	pool := startPool(t, store, testOptions(), nil)

	var mu sync.Mutex
	calls := 0
	pool.Handle(domain.EffectNotify, func(context.Context, domain.OutboxEffect) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("smtp down")
	}, false)
	pool.Start(context.Background())

	pool.Enqueue(domain.OutboxEffect{ID: "e3", Kind: domain.EffectNotify})
	require.Eventually(t, store.settled("e3"), time.Second, 5*time.Millisecond)

	st, _ := store.get("e3")
	assert.Equal(t, domain.EffectStateFailed, st.state)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestPoolResumesAttemptCountOfReclaimedEffect(t *testing.T) {
	store := newFakeStore()
	pool := startPool(t, store, testOptions(), nil)
	pool.Handle(domain.EffectAudit, func(context.Context, domain.OutboxEffect) error {
		return errors.New("still failing")
	}, true)
	pool.Start(context.Background())

	pool.Enqueue(domain.OutboxEffect{ID: "e4", Kind: domain.EffectAudit, Attempts: 2})
	require.Eventually(t, store.settled("e4"), time.Second, 5*time.Millisecond)

	st, _ := store.get("e4")
	assert.Equal(t, domain.EffectStateFailed, st.state)
	assert.Equal(t, 3, st.attempts)
}

func TestPoolRecoversHandlerPanic(t *testing.T) {
	store := newFakeStore()
	opts := testOptions()
	opts.MaxAttempts = 1
	pool := startPool(t, store, opts, nil)
	pool.Handle(domain.EffectAudit, func(context.Context, domain.OutboxEffect) error {
		panic("boom")
	}, true)
	pool.Start(context.Background())

	pool.Enqueue(domain.OutboxEffect{ID: "e5", Kind: domain.EffectAudit})
	require.Eventually(t, store.settled("e5"), time.Second, 5*time.Millisecond)
	st, _ := store.get("e5")
	assert.Equal(t, domain.EffectStateFailed, st.state)
}

func TestPoolFailsUnknownKind(t *testing.T) {
	store := newFakeStore()
	pool := startPool(t, store, testOptions(), nil)
	pool.Start(context.Background())

	pool.Enqueue(domain.OutboxEffect{ID: "e6", Kind: "UNKNOWN"})
	require.Eventually(t, store.settled("e6"), time.Second, 5*time.Millisecond)
}

func TestEnqueueWhenQueueFull(t *testing.T) {
	store := newFakeStore()
	opts := testOptions()
	opts.QueueSize = 1
	pool := NewPool(store, opts, zaptest.NewLogger(t), nil)

	// Workers are not started, so the single slot stays occupied.
	assert.Equal(t, 1, pool.Enqueue(domain.OutboxEffect{ID: "a"}, domain.OutboxEffect{ID: "b"}))
	assert.Equal(t, 0, pool.Enqueue(domain.OutboxEffect{ID: "a"}), "in-flight ids are skipped")
}

func TestEnqueueAfterStop(t *testing.T) {
	pool := NewPool(newFakeStore(), testOptions(), zaptest.NewLogger(t), nil)
	pool.Start(context.Background())
	pool.Stop()
	assert.Equal(t, 0, pool.Enqueue(domain.OutboxEffect{ID: "late"}))
}

func TestSweepOnceEnqueuesStaleEffects(t *testing.T) {
	store := newFakeStore()
	store.stale = []domain.OutboxEffect{{ID: "s1", Kind: domain.EffectAudit, Attempts: 1}}
	pool := startPool(t, store, testOptions(), nil)

	seen := make(chan string, 1)
	pool.Handle(domain.EffectAudit, func(_ context.Context, effect domain.OutboxEffect) error {
		seen <- effect.ID
		return nil
	}, true)
	pool.Start(context.Background())

	assert.Equal(t, 1, pool.SweepOnce(context.Background()))
	select {
	case id := <-seen:
		assert.Equal(t, "s1", id)
	case <-time.After(time.Second):
		t.Fatal("stale effect was not processed")
	}
	require.Eventually(t, store.settled("s1"), time.Second, 5*time.Millisecond)
	st, _ := store.get("s1")
	assert.Equal(t, 2, st.attempts)
}

func TestSweeperRunsOnInterval(t *testing.T) {
	store := newFakeStore()
	opts := testOptions()
	opts.SweepInterval = 5 * time.Millisecond
	pool := startPool(t, store, opts, nil)
	pool.Start(context.Background())

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.claims >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestBackoffDoubles(t *testing.T) {
	pool := NewPool(newFakeStore(), Options{Backoff: 100 * time.Millisecond}, nil, nil)
	assert.Equal(t, 100*time.Millisecond, pool.backoff(1))
	assert.Equal(t, 200*time.Millisecond, pool.backoff(2))
	assert.Equal(t, 400*time.Millisecond, pool.backoff(3))
}

type recordingEffects struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingEffects) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recordingEffects) RecordAudit(_ context.Context, effectID string, _ domain.MutationEvent) error {
	r.add("audit:" + effectID)
	return nil
}

func (r *recordingEffects) Notify(context.Context, domain.MutationEvent) { r.add("notify") }

func (r *recordingEffects) SyncVendor(context.Context, domain.MutationEvent) error {
	r.add("vendor")
	return nil
}

func (r *recordingEffects) PushExternal(context.Context, domain.MutationEvent) error {
	r.add("external")
	return nil
}

func TestRegisterEffectsRoutesEveryKind(t *testing.T) {
	store := newFakeStore()
	pool := startPool(t, store, testOptions(), nil)
	rec := &recordingEffects{}
	RegisterEffects(pool, rec, rec, rec)
	pool.Start(context.Background())

	pool.Enqueue(
		domain.OutboxEffect{ID: "a1", Kind: domain.EffectAudit},
		domain.OutboxEffect{ID: "n1", Kind: domain.EffectNotify},
		domain.OutboxEffect{ID: "v1", Kind: domain.EffectSyncVendor},
		domain.OutboxEffect{ID: "x1", Kind: domain.EffectSyncExternal},
	)
	for _, id := range []string{"a1", "n1", "v1", "x1"} {
		require.Eventually(t, store.settled(id), time.Second, 5*time.Millisecond)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.ElementsMatch(t, []string{"audit:a1", "notify", "vendor", "external"}, rec.calls)
}

func TestReclaimedEffectIsDroppedByOriginalPool(t *testing.T) {
	store := newFakeStore()
	opts := testOptions()
	opts.Workers = 1
	metrics := &countingMetrics{}

	var mu sync.Mutex
	notifyRuns := 0
	notify := func(context.Context, domain.OutboxEffect) error {
		mu.Lock()
		defer mu.Unlock()
		notifyRuns++
		return nil
	}

	first := startPool(t, store, opts, metrics)
	started := make(chan struct{})
	release := make(chan struct{})
	first.Handle(domain.EffectAudit, func(ctx context.Context, _ domain.OutboxEffect) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, true)
	first.Handle(domain.EffectNotify, notify, false)
	first.Start(context.Background())

	blocker := store.insert(domain.OutboxEffect{ID: "b1", Kind: domain.EffectAudit})
	queued := store.insert(domain.OutboxEffect{ID: "n1", Kind: domain.EffectNotify})
	require.Equal(t, 2, first.Enqueue(blocker, queued))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("blocking effect did not start")
	}

	// Another replica finds n1 stale while it still waits in the first queue.
	second := startPool(t, store, opts, nil)
	second.Handle(domain.EffectNotify, notify, false)
	second.Start(context.Background())
	store.mu.Lock()
	store.stale = []domain.OutboxEffect{queued}
	store.mu.Unlock()
	require.Equal(t, 1, second.SweepOnce(context.Background()))
	require.Eventually(t, store.settled("n1"), time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return metrics.get("NOTIFY/skipped") == 1 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, notifyRuns)
	assert.Equal(t, 0, metrics.get("NOTIFY/done"))
}

func TestStartedNotifyIsNotReclaimed(t *testing.T) {
	store := newFakeStore()
	first := startPool(t, store, testOptions(), nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	first.Handle(domain.EffectNotify, func(ctx context.Context, _ domain.OutboxEffect) error {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, false)
	first.Start(context.Background())

	effect := store.insert(domain.OutboxEffect{ID: "n2", Kind: domain.EffectNotify})
	require.Equal(t, 1, first.Enqueue(effect))
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("notify effect did not start")
	}
	st, _ := store.get("n2")
	assert.Equal(t, 1, st.attempts)

	second := startPool(t, store, testOptions(), nil)
	second.Handle(domain.EffectNotify, func(context.Context, domain.OutboxEffect) error {
		t.Error("notify effect ran on a second replica")
		return nil
	}, false)
	second.Start(context.Background())
	store.mu.Lock()
	store.stale = []domain.OutboxEffect{effect}
	store.mu.Unlock()
	assert.Equal(t, 0, second.SweepOnce(context.Background()))

	close(release)
	require.Eventually(t, store.settled("n2"), time.Second, 5*time.Millisecond)
	st, _ = store.get("n2")
	assert.Equal(t, domain.EffectStateDone, st.state)
}

func TestOnceKindsListsNonRetryRegistrations(t *testing.T) {
	pool := NewPool(newFakeStore(), testOptions(), nil, nil)
	rec := &recordingEffects{}
	RegisterEffects(pool, rec, rec, rec)
	assert.Equal(t, []domain.EffectKind{domain.EffectNotify}, pool.onceKinds())
}
