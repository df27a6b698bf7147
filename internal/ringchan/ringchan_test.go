package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_OverwritesOldest(t *testing.T) {
	// GOAL: Verify a full channel keeps only the most recent values
	//
	// TEST SCENARIO: Capacity 3, send 10 values → only last 3 remain → metrics count drops

	rc := New[int](3)
	for i := 0; i < 10; i++ {
		rc.Send(i)
	}

	var got []int
	for rc.Len() > 0 {
		v, ok := rc.TryReceive()
		require.True(t, ok)
		got = append(got, v)
	}

	assert.Equal(t, []int{7, 8, 9}, got, "MUST keep the last 3 values in order")
	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestRingChannel_SendReportsDrop(t *testing.T) {
	rc := New[string](1)
	assert.False(t, rc.Send("a"))
	assert.True(t, rc.Send("b"), "second send into a full channel MUST report a drop")

	v, ok := rc.TryReceive()
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestRingChannel_CloseIsIdempotentAndStopsSends(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Close()
	rc.Close()

	assert.NotPanics(t, func() { rc.Send(2) }, "send after close MUST be ignored")

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1}, got)
}

func TestRingChannel_ConcurrentWriters(t *testing.T) {
	rc := New[int](8)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rc.Send(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, rc.Len(), "buffer MUST be full and never exceed capacity")
	m := rc.GetMetrics()
	assert.Equal(t, int64(4000), m.Written)
	assert.Equal(t, int64(4000-8), m.Overwritten)
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
