package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSuccessAndFailure(t *testing.T) {
	r := New[[]string]()
	assert.Equal(t, Idle, r.State().Status)

	var committed []State[[]string]
	st, err := r.Load(context.Background(), "top-airing", func(ctx context.Context) ([]string, error) {
		assert.Equal(t, Loading, r.State().Status)
		return []string{"one-piece"}, nil
	}, func(s State[[]string]) { committed = append(committed, s) })
	require.NoError(t, err)
	assert.Equal(t, Success, st.Status)
	assert.Equal(t, []string{"one-piece"}, st.Data)
	assert.Equal(t, "top-airing", r.State().Key)

	boom := errors.New("boom")
	st, err = r.Load(context.Background(), "search", func(ctx context.Context) ([]string, error) {
		// previous data stays visible while loading
		assert.Equal(t, []string{"one-piece"}, r.State().Data)
		return nil, boom
	}, func(s State[[]string]) { committed = append(committed, s) })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, st.Status)
	assert.Nil(t, st.Data)
	require.Len(t, committed, 2)
	assert.Equal(t, Failed, committed[1].Status)
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	r := New[string]()
	releaseA := make(chan struct{})
	startedA := make(chan struct{})

	type result struct {
		st  State[string]
		err error
	}
	doneA := make(chan result, 1)
	var commits []string

	go func() {
		st, err := r.Load(context.Background(), "episode-a", func(ctx context.Context) (string, error) {
			close(startedA)
			<-releaseA
			return "a", nil
		}, func(s State[string]) { commits = append(commits, s.Data) })
		doneA <- result{st, err}
	}()
	<-startedA

	st, err := r.Load(context.Background(), "episode-b", func(ctx context.Context) (string, error) {
		return "b", nil
	}, func(s State[string]) { commits = append(commits, s.Data) })
	require.NoError(t, err)
	assert.Equal(t, "b", st.Data)

	close(releaseA)
	resA := <-doneA
	assert.ErrorIs(t, resA.err, ErrStale)

	assert.Equal(t, "b", r.State().Data)
	assert.Equal(t, "episode-b", r.State().Key)
	assert.Equal(t, []string{"b"}, commits)
}

func TestNewerLoadCancelsContext(t *testing.T) {
	r := New[int]()
	started := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := r.Load(context.Background(), "slow", func(ctx context.Context) (int, error) {
			close(started)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(5 * time.Second):
				return 1, nil
			}
		})
		done <- err
	}()
	<-started

	_, err := r.Load(context.Background(), "fast", func(ctx context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("slow load was not cancelled")
	}
	assert.Equal(t, 2, r.State().Data)
}

func TestInvalidate(t *testing.T) {
	r := New[int]()
	_, err := r.Load(context.Background(), "first", func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := r.Load(context.Background(), "second", func(ctx context.Context) (int, error) {
			close(started)
			<-ctx.Done()
			return 0, ctx.Err()
		})
		done <- err
	}()
	<-started

	r.Invalidate()
	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, Idle, r.State().Status)
	assert.Equal(t, 1, r.State().Data)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "unknown", Status(42).String())
}
