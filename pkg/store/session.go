package store

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
	"github.com/bcgsc/graphkb/pkg/schema"
)

// meterName is the instrumentation scope name for pool metrics, mirroring
// the convention of naming a meter after the owning Go package path.
const meterName = "github.com/bcgsc/graphkb/pkg/store"

// poolMetrics holds the OpenTelemetry instruments recording pool
// contention. NewPool creates them from the global otel MeterProvider, so a
// process without a configured MeterProvider gets otel's no-op instruments
// rather than nil ones.
type poolMetrics struct {
	acquireWait metric.Float64Histogram
	inUse       metric.Int64UpDownCounter
}

func newPoolMetrics() poolMetrics {
	meter := otel.Meter(meterName)
	acquireWait, _ := meter.Float64Histogram(
		"graphkb.pool.acquire_wait",
		metric.WithDescription("Time spent waiting for a free session slot."),
		metric.WithUnit("s"),
	)
	inUse, _ := meter.Int64UpDownCounter(
		"graphkb.pool.sessions_in_use",
		metric.WithDescription("Number of sessions currently checked out of the pool."),
	)
	return poolMetrics{acquireWait: acquireWait, inUse: inUse}
}

// Session is a request's sole handle on the backing store, acquired from a
// Pool and released on every exit path. It is the only suspension point at
// this layer besides the query/DDL calls it proxies — acquiring blocks only
// when the pool is momentarily exhausted.
type Session struct {
	pool   *Pool
	engine Engine
}

// Query runs a class-scoped select, unbounded by pagination.
func (s *Session) Query(ctx context.Context, spec SelectSpec) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, graphkberr.Wrap(graphkberr.KindConnection, "session.Query", "context cancelled", err)
	}
	recs, _, _, err := s.engine.Select(ctx, spec, "", 1<<31-1)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// QueryPaged iterates Select in pages, appending the cursor rewrite
// described in spec §4.2: continue while a full page was returned, stop at
// maxSize, concatenate pages. Default page/max sizes per DefaultPageOptions.
func (s *Session) QueryPaged(ctx context.Context, spec SelectSpec, opts PageOptions) ([]Record, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageOptions().PageSize
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultPageOptions().MaxSize
	}

	var all []Record
	var cursor RID
	for {
		if err := ctx.Err(); err != nil {
			return nil, graphkberr.Wrap(graphkberr.KindConnection, "session.QueryPaged", "context cancelled", err)
		}
		page, next, more, err := s.engine.Select(ctx, spec, cursor, opts.PageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(all) >= opts.MaxSize || !more || len(page) < opts.PageSize {
			break
		}
		cursor = next
	}
	if len(all) > opts.MaxSize {
		all = all[:opts.MaxSize]
	}
	return all, nil
}

// Traverse proxies to the backing Engine.
func (s *Session) Traverse(ctx context.Context, spec TraverseSpec) (map[RID]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, graphkberr.Wrap(graphkberr.KindConnection, "session.Traverse", "context cancelled", err)
	}
	return s.engine.Traverse(ctx, spec)
}

// GetRecord proxies to the backing Engine.
func (s *Session) GetRecord(ctx context.Context, rid RID) (Record, bool, error) {
	return s.engine.GetRecord(ctx, rid)
}

// Update proxies to the backing Engine, used by migration steps.
func (s *Session) Update(ctx context.Context, class string, rid RID, set map[string]any) error {
	return s.engine.Update(ctx, class, rid, set)
}

// Insert proxies to the backing Engine, used by migration steps.
func (s *Session) Insert(ctx context.Context, class string, fields map[string]any) (RID, error) {
	return s.engine.Insert(ctx, class, fields)
}

func (s *Session) CreateClass(ctx context.Context, name string, extends []string, abstract bool) (ClassHandle, error) {
	return s.engine.CreateClass(ctx, name, extends, abstract)
}

func (s *Session) CreateProperty(ctx context.Context, class string, desc schema.PropertyDescriptor) error {
	return s.engine.CreateProperty(ctx, class, desc)
}

func (s *Session) CreateIndex(ctx context.Context, desc schema.IndexDescriptor, graceful bool) (bool, error) {
	return s.engine.CreateIndex(ctx, desc, graceful)
}

func (s *Session) GetClass(ctx context.Context, name string) (ClassHandle, error) {
	return s.engine.GetClass(ctx, name)
}

// Release returns the session to its pool. Safe to call multiple times.
func (s *Session) Release() {
	if s == nil || s.pool == nil {
		return
	}
	p := s.pool
	s.pool = nil
	p.put(s)
}

// Pool is the process-wide session pool: the single shared mutable resource
// per spec §5. A sync.Pool-backed free list of *Session wrappers amortizes
// allocation, mirroring the teacher's pkg/pool object-pooling pattern, while
// a buffered channel enforces the configured capacity (acquiring blocks,
// never grows unbounded).
type Pool struct {
	engine  Engine
	tokens  chan struct{}
	free    sync.Pool
	metrics poolMetrics
}

// NewPool constructs a pool of the given capacity over engine. capacity<=0
// is treated as 1.
func NewPool(engine Engine, capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	p := &Pool{engine: engine, tokens: make(chan struct{}, capacity), metrics: newPoolMetrics()}
	p.free.New = func() any { return &Session{} }
	for i := 0; i < capacity; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

// Acquire blocks until a session slot is free or ctx is cancelled/times
// out, per spec §5's cancellation contract.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	start := time.Now()
	select {
	case <-p.tokens:
	case <-ctx.Done():
		return nil, graphkberr.Wrap(graphkberr.KindConnection, "pool.Acquire", "cancelled waiting for session", ctx.Err())
	}
	if p.metrics.acquireWait != nil {
		p.metrics.acquireWait.Record(ctx, time.Since(start).Seconds())
	}
	if p.metrics.inUse != nil {
		p.metrics.inUse.Add(ctx, 1)
	}
	s := p.free.Get().(*Session)
	s.pool = p
	s.engine = p.engine
	return s, nil
}

func (p *Pool) put(s *Session) {
	s.engine = nil
	p.free.Put(s)
	if p.metrics.inUse != nil {
		p.metrics.inUse.Add(context.Background(), -1)
	}
	select {
	case p.tokens <- struct{}{}:
	default:
	}
}

// WithDeadline wraps ctx with the adapter's per-query deadline, per spec
// §5's timeout requirement. A session call made after the deadline has
// passed fails with a KindConnection error wrapping
// context.DeadlineExceeded; no KindTimeout error is produced.
func WithDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
