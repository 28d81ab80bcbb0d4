// Package resource is the shared loading state used by every screen:
// one fetch at a time, a {Status, Data, Err} snapshot, and stale results
// dropped instead of applied.
package resource

import (
	"context"
	"errors"
	"sync"
)

type Status int

const (
	Idle Status = iota
	Loading
	Success
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrStale is returned by Load when a newer Load or an Invalidate
// happened while the fetch was in flight. Nothing was applied.
var ErrStale = errors.New("resource: superseded by a newer load")

type State[T any] struct {
	Key    string
	Status Status
	Data   T
	Err    error
}

type Func[T any] func(ctx context.Context) (T, error)

type Resource[T any] struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	state  State[T]
}

func New[T any]() *Resource[T] {
	return &Resource[T]{}
}

func (r *Resource[T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Load cancels any fetch in flight, runs fn and commits its outcome if
// no newer Load started meanwhile. The commit callbacks run under the
// resource lock together with the staleness check, so they observe the
// outcome atomically; they must not call back into r.
//
// While loading, Data keeps the previous value.
func (r *Resource[T]) Load(ctx context.Context, key string, fn Func[T], commit ...func(State[T])) (State[T], error) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	if r.cancel != nil {
		r.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.state.Key = key
	r.state.Status = Loading
	r.state.Err = nil
	r.mu.Unlock()

	data, err := fn(fetchCtx)

	r.mu.Lock()
	defer r.mu.Unlock()
	cancel()
	if gen != r.gen {
		return State[T]{Key: key, Status: Failed, Err: ErrStale}, ErrStale
	}
	r.cancel = nil

	if err != nil {
		var zero T
		r.state = State[T]{Key: key, Status: Failed, Data: zero, Err: err}
	} else {
		r.state = State[T]{Key: key, Status: Success, Data: data}
	}
	for _, c := range commit {
		c(r.state)
	}
	return r.state, err
}

// Invalidate makes the fetch in flight, if any, stale and cancels it.
// The last committed state is kept.
func (r *Resource[T]) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.state.Status == Loading {
		r.state.Status = Idle
	}
}
