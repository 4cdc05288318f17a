package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_RunsInSubmitOrder(t *testing.T) {
	q := New(nil)
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 50; i++ {
		q.Submit("write", func(ctx context.Context) error {
			// Earlier writes are slower; order must still hold.
			if i%2 == 0 {
				time.Sleep(time.Millisecond)
			}
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		})
	}
	q.Wait()

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueue_ReportsFailuresAndKeepsGoing(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []string
	)
	q := New(func(op string, err error) {
		mu.Lock()
		failed = append(failed, op)
		mu.Unlock()
	})

	ran := false
	q.Submit("broken", func(ctx context.Context) error { return errors.New("disk full") })
	q.Submit("panics", func(ctx context.Context) error { panic("boom") })
	q.Submit("ok", func(ctx context.Context) error { ran = true; return nil })
	q.Wait()

	assert.Equal(t, []string{"broken", "panics"}, failed)
	assert.True(t, ran)
}

func TestQueue_RestartsAfterIdle(t *testing.T) {
	q := New(nil)
	n := 0
	q.Submit("a", func(ctx context.Context) error { n++; return nil })
	q.Wait()
	q.Submit("b", func(ctx context.Context) error { n++; return nil })
	q.Wait()
	assert.Equal(t, 2, n)
}
