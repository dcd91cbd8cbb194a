package query

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"taskboard.com/taskboard/internal/logging"
)

const (
	// DefaultStaleTime is how long fetched data counts as fresh.
	DefaultStaleTime = 2 * time.Second

	// Forever never lets data go stale on its own; only Invalidate does.
	Forever time.Duration = math.MaxInt64
)

// Fetcher loads the data of one entry.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Snapshot is the observable state of an entry.
type Snapshot[T any] struct {
	Data      T
	HasData   bool
	IsLoading bool
	Err       error
	UpdatedAt time.Time
}

type entry[T any] struct {
	key         Key
	fetch       Fetcher[T]
	data        T
	hasData     bool
	err         error
	updatedAt   time.Time
	invalidated bool
	generation  uint64
	fetching    bool
	observers   map[*Observer[T]]struct{}
}

// Cache holds keyed query results. Concurrent fetches of one key are
// coalesced and invalidation refetches every observed entry it marks.
type Cache[T any] struct {
	mu        sync.Mutex
	entries   map[string]*entry[T]
	group     singleflight.Group
	staleTime time.Duration
	now       func() time.Time
	logger    logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type options struct {
	staleTime time.Duration
	now       func() time.Time
	logger    logging.Logger
}

// Option configures a Cache.
type Option func(*options)

// WithStaleTime sets the freshness window. Forever disables time-based staleness.
func WithStaleTime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleTime = d
		}
	}
}

// WithClock replaces time.Now (for testing).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger logs failed fetches to l.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.logger = logging.OrNop(l)
	}
}

// New creates an empty cache. Background refetches run until Close.
func New[T any](opts ...Option) *Cache[T] {
	o := options{staleTime: DefaultStaleTime, now: time.Now, logger: logging.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache[T]{
		entries:   make(map[string]*entry[T]),
		staleTime: o.staleTime,
		now:       o.now,
		logger:    o.logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Get returns fresh cached data or fetches it. Concurrent callers for the
// same key share one fetch. On failure the previous data, if any, is
// returned alongside the error.
func (c *Cache[T]) Get(ctx context.Context, key Key, fetch Fetcher[T]) (Snapshot[T], error) {
	c.mu.Lock()
	e := c.entryLocked(key, fetch)
	if c.freshLocked(e) {
		snap := c.snapshotLocked(e)
		c.mu.Unlock()
		return snap, nil
	}
	c.mu.Unlock()

	err := c.load(ctx, e)

	c.mu.Lock()
	snap := c.snapshotLocked(e)
	c.mu.Unlock()
	return snap, err
}

// Observe registers interest in key. A background fetch starts when the
// entry is missing or stale; the observer is signalled on every change.
func (c *Cache[T]) Observe(key Key, fetch Fetcher[T]) *Observer[T] {
	o := &Observer[T]{cache: c, key: key, changes: make(chan struct{}, 1)}

	c.mu.Lock()
	e := c.entryLocked(key, fetch)
	e.observers[o] = struct{}{}
	start := !c.freshLocked(e) && !e.fetching
	if start {
		// Mark loading now so the first snapshot never reads as idle and empty.
		e.fetching = true
	}
	c.mu.Unlock()

	if start {
		c.refetch(e)
	}
	return o
}

// Invalidate marks every entry under prefix stale and refetches the ones
// that are observed. It returns the number of entries marked.
func (c *Cache[T]) Invalidate(prefix Key) int {
	c.mu.Lock()
	var observed []*entry[T]
	marked := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		e.generation++
		marked++
		if len(e.observers) > 0 {
			observed = append(observed, e)
		}
	}
	c.mu.Unlock()

	for _, e := range observed {
		c.refetch(e)
	}
	if marked > 0 {
		c.logger.Printf("query: invalidated %d entries under %q", marked, prefix.String())
	}
	return marked
}

// Peek returns the current state of key without fetching.
func (c *Cache[T]) Peek(key Key) (Snapshot[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return Snapshot[T]{}, false
	}
	return c.snapshotLocked(e), true
}

// Close cancels background refetches and waits for them to return.
func (c *Cache[T]) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Cache[T]) refetch(e *entry[T]) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.load(c.ctx, e)
	}()
}

// load runs the entry's fetcher through the singleflight group. The fetch
// itself runs on the cache context so one caller giving up does not fail the
// others waiting on the same call. Invalidations that arrive while a fetch
// is running join it; the fetch then counts as stale and observed entries
// get one follow-up fetch shared by all of them.
func (c *Cache[T]) load(ctx context.Context, e *entry[T]) error {
	c.mu.Lock()
	wasFetching := e.fetching
	e.fetching = true
	fetch := e.fetch
	c.mu.Unlock()
	if !wasFetching {
		c.notify(e)
	}

	id := e.key.id()
	ch := c.group.DoChan(id, func() (any, error) {
		c.mu.Lock()
		gen := e.generation
		c.mu.Unlock()

		data, err := fetch(c.ctx)
		if c.store(e, data, err, gen) {
			c.group.Forget(id)
			c.refetch(e)
		}
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// store records a fetch that started at generation gen. It reports whether
// the entry was invalidated meanwhile and is observed, in which case it stays
// loading and must be fetched again.
func (c *Cache[T]) store(e *entry[T], data T, err error, gen uint64) bool {
	c.mu.Lock()
	superseded := e.generation != gen
	again := superseded && len(e.observers) > 0 && c.ctx.Err() == nil
	e.fetching = again
	if err != nil {
		e.err = err
	} else {
		e.data = data
		e.hasData = true
		e.err = nil
		e.updatedAt = c.now()
		e.invalidated = superseded
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Printf("query: fetch %q failed: %v", e.key.String(), err)
	}
	c.notify(e)
	return again
}

func (c *Cache[T]) notify(e *entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for o := range e.observers {
		select {
		case o.changes <- struct{}{}:
		default:
		}
	}
}

func (c *Cache[T]) entryLocked(key Key, fetch Fetcher[T]) *entry[T] {
	id := key.id()
	e, ok := c.entries[id]
	if !ok {
		e = &entry[T]{
			key:       append(Key(nil), key...),
			observers: make(map[*Observer[T]]struct{}),
		}
		c.entries[id] = e
	}
	if fetch != nil {
		e.fetch = fetch
	}
	return e
}

func (c *Cache[T]) freshLocked(e *entry[T]) bool {
	if !e.hasData || e.invalidated {
		return false
	}
	if c.staleTime == Forever {
		return true
	}
	return c.now().Sub(e.updatedAt) < c.staleTime
}

func (c *Cache[T]) snapshotLocked(e *entry[T]) Snapshot[T] {
	return Snapshot[T]{
		Data:      e.data,
		HasData:   e.hasData,
		IsLoading: e.fetching,
		Err:       e.err,
		UpdatedAt: e.updatedAt,
	}
}

func (c *Cache[T]) detach(o *Observer[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[o.key.id()]; ok {
		if _, attached := e.observers[o]; attached {
			delete(e.observers, o)
			close(o.changes)
		}
	}
}

// Observer follows one cache entry.
type Observer[T any] struct {
	cache   *Cache[T]
	key     Key
	changes chan struct{}
}

// Key returns the observed key.
func (o *Observer[T]) Key() Key {
	return o.key
}

// Snapshot returns the current state without blocking.
func (o *Observer[T]) Snapshot() Snapshot[T] {
	snap, _ := o.cache.Peek(o.key)
	return snap
}

// Changes receives a value after each state change. It is closed by Close.
func (o *Observer[T]) Changes() <-chan struct{} {
	return o.changes
}

// Refresh invalidates the observed entry and refetches it.
func (o *Observer[T]) Refresh() {
	o.cache.Invalidate(o.key)
}

// Close detaches the observer. The entry and its data stay cached.
func (o *Observer[T]) Close() {
	o.cache.detach(o)
}
