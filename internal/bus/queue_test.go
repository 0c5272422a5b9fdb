package bus

import (
	"sync"
	"testing"

	"tradecore/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestQueueTryPublish(t *testing.T) {
	q := NewQueue[int](2)
	require.NoError(t, q.TryPublish(1))
	require.NoError(t, q.TryPublish(2))
	assert.True(t, errors.Is(q.TryPublish(3), exception.ErrQueueFull))
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, []int{1, 2}, q.Drain())
	assert.Equal(t, 0, q.Len())

	q.Close()
	q.Close()
	assert.True(t, errors.Is(q.TryPublish(4), exception.ErrQueueClosed))
}

func TestQueueRun(t *testing.T) {
	q := NewQueue[string](4)
	require.NoError(t, q.TryPublish("a"))
	require.NoError(t, q.TryPublish("b"))
	q.Close()

	var got []string
	q.Run(t.Context(), func(s string) {
		got = append(got, s)
	})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestQueueCloseRacesPublish(t *testing.T) {
	for range 50 {
		q := NewQueue[int](8)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range 16 {
					err := q.TryPublish(i*16 + j)
					if err != nil {
						assert.True(t, errors.Is(err, exception.ErrQueueFull) || errors.Is(err, exception.ErrQueueClosed), "%+v", err)
					}
				}
			}()
		}
		q.Close()
		wg.Wait()
		assert.True(t, errors.Is(q.TryPublish(0), exception.ErrQueueClosed))
	}
}
