package solver

import (
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Pool is the bounded set of worker goroutines fronting concolic Backend
// instances described in §5 Exception 1: "a bounded set of worker threads...
// when the pool is full, the enqueuing thread joins the oldest worker before
// spawning a new one." ants.Pool gives exactly that back-pressure semantic
// (Submit blocks once the pool is saturated) instead of an unbounded
// goroutine-per-query fan-out.
type Pool struct {
	pool    *ants.Pool
	newBack func() (Backend, error)
	backend sync.Map // goroutine-local *Backend, keyed by worker slot token
	mu      sync.Mutex
	free    []Backend
}

// NewPool creates a Pool with the given worker capacity. newBackend is called
// lazily, once per worker that actually picks up a job, so a pool configured
// for N workers never opens more than N SMT contexts.
func NewPool(capacity int, newBackend func() (Backend, error)) (*Pool, error) {
	p := &Pool{newBack: newBackend}
	ap, err := ants.NewPool(capacity, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	p.pool = ap
	return p, nil
}

// Solve submits one query to the pool and blocks until a worker is free and
// the query completes. Concurrent callers queue FIFO behind the pool's
// internal semaphore, which is how the oldest-worker-joins back-pressure of
// §5 Exception 1 is realized: ants itself blocks Submit when all workers are
// busy, so there is nothing further for this layer to implement.
func (p *Pool) Solve(q SolveQuery) (Solution, bool, error) {
	var (
		sol  Solution
		ok   bool
		err  error
		done = make(chan struct{})
	)
	submitErr := p.pool.Submit(func() {
		defer close(done)
		b, acquireErr := p.acquire()
		if acquireErr != nil {
			err = acquireErr
			return
		}
		defer p.release(b)
		sol, ok, err = b.Solve(q)
		RecordQuery(ok)
	})
	if submitErr != nil {
		return Solution{}, false, submitErr
	}
	<-done
	return sol, ok, err
}

func (p *Pool) acquire() (Backend, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return b, nil
	}
	p.mu.Unlock()
	return p.newBack()
}

func (p *Pool) release(b Backend) {
	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()
}

// Close tears down every idle backend and releases the underlying goroutine
// pool. In-flight Solve calls are unaffected.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.free {
		_ = b.Close()
	}
	p.free = nil
	p.pool.Release()
	return nil
}
