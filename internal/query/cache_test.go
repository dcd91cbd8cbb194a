package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskboard.com/taskboard/pkg/constants"
)

func TestTasksKey_Canonical(t *testing.T) {
	a := TasksKey(Filters{IncludeSubtasks: true, Page: 1, Limit: 100, Status: constants.StatusToDo})
	b := TasksKey(Filters{Status: constants.StatusToDo, Limit: 100, IncludeSubtasks: true, Page: 0})
	if a.id() != b.id() {
		t.Fatalf("expected identical keys, got %v and %v", a, b)
	}
	if got := a[1]; got != "include=subtasks&limit=100&page=1&status=TO_DO" {
		t.Errorf("unexpected canonical query %q", got)
	}
	if TasksKey(DefaultFilters()).id() == TasksKey(ParentFilters()).id() {
		t.Error("different limits must not share an entry")
	}
	if got := TasksKey(Filters{Status: "BOGUS", Assignee: 3})[1]; got != "assignee=3&limit=50&page=1" {
		t.Errorf("unexpected query for invalid status %q", got)
	}
}

func TestKey_HasPrefix(t *testing.T) {
	key := TasksKey(DefaultFilters())
	if !key.HasPrefix(TasksPrefix()) {
		t.Error("task key should match tasks prefix")
	}
	if !key.HasPrefix(key) {
		t.Error("key should match itself")
	}
	if UsersKey().HasPrefix(TasksPrefix()) {
		t.Error("users key should not match tasks prefix")
	}
	if TasksPrefix().HasPrefix(key) {
		t.Error("shorter key cannot have a longer prefix")
	}
}

func TestCache_GetCoalescesConcurrentFetches(t *testing.T) {
	cache := New[int]()
	defer cache.Close()

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	key := TasksKey(DefaultFilters())
	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := cache.Get(context.Background(), key, fetch)
			if err != nil {
				t.Errorf("get: %v", err)
			}
			results[i] = snap.Data
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected one fetch, got %d", got)
	}
	for i, r := range results {
		if r != 42 {
			t.Errorf("caller %d got %d", i, r)
		}
	}
}

func TestCache_FreshDataIsServedFromCache(t *testing.T) {
	now := time.Unix(1000, 0)
	cache := New[string](WithClock(func() time.Time { return now }))
	defer cache.Close()

	var calls int32
	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "tasks", nil
	}
	key := TasksKey(DefaultFilters())

	if _, err := cache.Get(context.Background(), key, fetch); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Second)
	if _, err := cache.Get(context.Background(), key, fetch); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected cached hit within stale time, got %d fetches", got)
	}

	now = now.Add(2 * time.Second)
	if _, err := cache.Get(context.Background(), key, fetch); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected refetch after stale time, got %d fetches", got)
	}
}

func TestCache_ForeverStaysFreshUntilInvalidated(t *testing.T) {
	now := time.Unix(1000, 0)
	cache := New[string](WithStaleTime(Forever), WithClock(func() time.Time { return now }))
	defer cache.Close()

	var calls int32
	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "users", nil
	}
	cache.Get(context.Background(), UsersKey(), fetch)
	now = now.Add(24 * time.Hour)
	cache.Get(context.Background(), UsersKey(), fetch)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one fetch, got %d", got)
	}
	if n := cache.Invalidate(UsersKey()); n != 1 {
		t.Fatalf("expected one entry invalidated, got %d", n)
	}
	cache.Get(context.Background(), UsersKey(), fetch)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected refetch after invalidation, got %d", got)
	}
}

func TestCache_FailedRefetchKeepsLastGoodData(t *testing.T) {
	cache := New[string]()
	defer cache.Close()

	fail := false
	fetch := func(ctx context.Context) (string, error) {
		if fail {
			return "", errors.New("server down")
		}
		return "v1", nil
	}
	key := TasksKey(DefaultFilters())
	if _, err := cache.Get(context.Background(), key, fetch); err != nil {
		t.Fatal(err)
	}

	fail = true
	cache.Invalidate(TasksPrefix())
	snap, err := cache.Get(context.Background(), key, fetch)
	if err == nil {
		t.Fatal("expected error from failed refetch")
	}
	if !snap.HasData || snap.Data != "v1" {
		t.Errorf("expected last good data, got %+v", snap)
	}
	if snap.Err == nil {
		t.Error("expected snapshot to carry the error")
	}
}

func TestCache_ObserverRefetchesOnInvalidate(t *testing.T) {
	cache := New[int]()
	defer cache.Close()

	var version int32
	gate := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		<-gate
		return int(atomic.AddInt32(&version, 1)), nil
	}
	obs := cache.Observe(TasksKey(DefaultFilters()), fetch)
	defer obs.Close()

	first := obs.Snapshot()
	if first.HasData || !first.IsLoading {
		t.Fatalf("expected loading state before first fetch, got %+v", first)
	}
	close(gate)
	snap := waitFor(t, obs, func(s Snapshot[int]) bool { return s.HasData && !s.IsLoading })
	if snap.Data != 1 {
		t.Fatalf("expected first version, got %d", snap.Data)
	}

	cache.Invalidate(TasksPrefix())
	snap = waitFor(t, obs, func(s Snapshot[int]) bool { return s.Data == 2 && !s.IsLoading })
	if snap.Err != nil {
		t.Errorf("unexpected error %v", snap.Err)
	}
}

func TestCache_StaleValueVisibleDuringRefetch(t *testing.T) {
	cache := New[string]()
	defer cache.Close()

	release := make(chan struct{})
	var calls int32
	fetch := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "old", nil
		}
		<-release
		return "new", nil
	}
	obs := cache.Observe(TasksKey(DefaultFilters()), fetch)
	defer obs.Close()
	waitFor(t, obs, func(s Snapshot[string]) bool { return s.HasData && !s.IsLoading })

	cache.Invalidate(TasksPrefix())
	snap := waitFor(t, obs, func(s Snapshot[string]) bool { return s.IsLoading })
	if snap.Data != "old" || !snap.HasData {
		t.Errorf("expected stale data while loading, got %+v", snap)
	}
	close(release)
	waitFor(t, obs, func(s Snapshot[string]) bool { return s.Data == "new" })
}

func TestCache_InvalidationDuringFetchRefetchesLatest(t *testing.T) {
	cache := New[int]()
	defer cache.Close()

	var server, calls int32 = 1, 0
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		value := atomic.LoadInt32(&server)
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
		return int(value), nil
	}
	obs := cache.Observe(TasksKey(DefaultFilters()), fetch)
	defer obs.Close()

	<-started
	atomic.StoreInt32(&server, 2)
	cache.Invalidate(TasksPrefix())
	time.Sleep(20 * time.Millisecond)
	close(release)

	waitFor(t, obs, func(s Snapshot[int]) bool { return s.Data == 2 && !s.IsLoading })
	if s := obs.Snapshot(); s.Err != nil {
		t.Errorf("unexpected error %v", s.Err)
	}
	if _, err := cache.Get(context.Background(), TasksKey(DefaultFilters()), fetch); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected one follow-up fetch and a fresh entry afterwards, got %d calls", got)
	}
}

func TestCache_InvalidationsDuringFetchShareOneFollowUp(t *testing.T) {
	cache := New[int]()
	defer cache.Close()

	var server, calls int32 = 1, 0
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		value := atomic.LoadInt32(&server)
		if atomic.AddInt32(&calls, 1) == 2 {
			started <- struct{}{}
			<-release
		}
		return int(value), nil
	}
	obs := cache.Observe(TasksKey(DefaultFilters()), fetch)
	defer obs.Close()
	waitFor(t, obs, func(s Snapshot[int]) bool { return s.HasData && !s.IsLoading })

	cache.Invalidate(TasksPrefix())
	<-started
	atomic.StoreInt32(&server, 3)
	cache.Invalidate(TasksPrefix())
	cache.Invalidate(TasksPrefix())
	time.Sleep(20 * time.Millisecond)
	close(release)

	waitFor(t, obs, func(s Snapshot[int]) bool { return s.Data == 3 && !s.IsLoading })
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected initial fetch, one refetch and one follow-up, got %d", got)
	}
}

func TestCache_InvalidateOnlyMatchingPrefix(t *testing.T) {
	cache := New[string]()
	defer cache.Close()

	fetch := func(ctx context.Context) (string, error) { return "x", nil }
	cache.Get(context.Background(), TasksKey(DefaultFilters()), fetch)
	cache.Get(context.Background(), TasksKey(ParentFilters()), fetch)
	cache.Get(context.Background(), UsersKey(), fetch)

	if n := cache.Invalidate(TasksPrefix()); n != 2 {
		t.Errorf("expected 2 task entries invalidated, got %d", n)
	}
}

func TestCache_PeekDoesNotFetch(t *testing.T) {
	cache := New[string]()
	defer cache.Close()

	if _, ok := cache.Peek(UsersKey()); ok {
		t.Fatal("expected no entry")
	}
	cache.Get(context.Background(), UsersKey(), func(ctx context.Context) (string, error) { return "ada", nil })
	snap, ok := cache.Peek(UsersKey())
	if !ok || snap.Data != "ada" {
		t.Fatalf("unexpected peek %+v %v", snap, ok)
	}
}

func TestCache_GetHonorsCallerContext(t *testing.T) {
	cache := New[string]()
	defer func() {
		cache.Close()
	}()

	release := make(chan struct{})
	defer close(release)
	fetch := func(ctx context.Context) (string, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "late", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := cache.Get(ctx, UsersKey(), fetch); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func waitFor[T any](t *testing.T, obs *Observer[T], cond func(Snapshot[T]) bool) Snapshot[T] {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap := obs.Snapshot()
		if cond(snap) {
			return snap
		}
		select {
		case <-obs.Changes():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("condition not met, last snapshot %+v", snap)
			return snap
		}
	}
}
