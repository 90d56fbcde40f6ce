package sshexec

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFanOutRunsAllItems(t *testing.T) {
	tests := []struct {
		name        string
		items       []int
		concurrency int
		failOn      map[int]bool
	}{
		{
			name:        "all succeed",
			items:       []int{1, 2, 3, 4},
			concurrency: 2,
			failOn:      map[int]bool{},
		},
		{
			name:        "some fail",
			items:       []int{1, 2, 3},
			concurrency: 3,
			failOn:      map[int]bool{2: true},
		},
		{
			name:        "unbounded concurrency",
			items:       []int{1, 2, 3, 4, 5},
			concurrency: 0,
			failOn:      map[int]bool{},
		},
		{
			name:        "empty items",
			items:       []int{},
			concurrency: 2,
			failOn:      map[int]bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			errs := FanOut(context.Background(), tt.items, tt.concurrency, func(ctx context.Context, item int) error {
				atomic.AddInt32(&calls, 1)
				if tt.failOn[item] {
					return fmt.Errorf("item %d failed", item)
				}
				return nil
			})

			assert.Len(t, errs, len(tt.items))
			assert.Equal(t, int32(len(tt.items)), atomic.LoadInt32(&calls))

			for i, item := range tt.items {
				if tt.failOn[item] {
					assert.Error(t, errs[i])
				} else {
					assert.NoError(t, errs[i])
				}
			}
		})
	}
}

func TestFanOutRespectsConcurrencyLimit(t *testing.T) {
	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	var inFlight, maxInFlight int32
	FanOut(context.Background(), items, 3, func(ctx context.Context, item int) error {
		current := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)

		for {
			max := atomic.LoadInt32(&maxInFlight)
			if current <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxInFlight)), 3)
}
