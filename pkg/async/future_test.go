package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlesOnce(t *testing.T) {
	f := New[int]()
	assert.True(t, f.Resolve(1))
	assert.False(t, f.Resolve(2))
	assert.False(t, f.Reject(errors.New("late")))

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCallbacksRunOnceInOrder(t *testing.T) {
	f := New[string]()
	var got []string
	f.OnComplete(func(v string, _ error) { got = append(got, "a:"+v) })
	f.OnComplete(func(v string, _ error) { got = append(got, "b:"+v) })

	f.Resolve("x")
	f.Resolve("y")
	f.OnComplete(func(v string, _ error) { got = append(got, "late:"+v) })

	assert.Equal(t, []string{"a:x", "b:x", "late:x"}, got)
}

func TestCancelledCallbackNeverRuns(t *testing.T) {
	f := New[int]()
	called := false
	cancel := f.OnComplete(func(int, error) { called = true })
	cancel()
	f.Resolve(1)
	cancel()

	assert.False(t, called)
}

func TestRejectedCarriesError(t *testing.T) {
	boom := errors.New("boom")
	f := Rejected[int](boom)

	_, err, ok := f.Result()
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestAwaitHonoursContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentSettlementHasOneWinner(t *testing.T) {
	f := New[int]()
	var wg sync.WaitGroup
	wins := make(chan int, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.Resolve(i) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
	<-f.Done()
}
