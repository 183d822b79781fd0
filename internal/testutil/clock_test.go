package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClock_StartsAtStart(t *testing.T) {
	clock := NewStepClock(Epoch, time.Second)
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, int64(1), clock.Calls())
}

func TestStepClock_Advances(t *testing.T) {
	clock := NewStepClock(Epoch, time.Minute)

	clock.Now()
	assert.Equal(t, Epoch.Add(time.Minute), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Minute), clock.Now())
}

func TestStepClock_Reset(t *testing.T) {
	clock := NewStepClock(Epoch, time.Second)
	clock.Now()
	clock.Now()

	clock.Reset()

	assert.Equal(t, Epoch, clock.Now())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(Epoch, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), clock.Calls())
}

func TestSequenceIDs(t *testing.T) {
	ids := NewSequenceIDs("drive")
	assert.Equal(t, "drive-0001", ids.Generate())
	assert.Equal(t, "drive-0002", ids.Generate())

	assert.Equal(t, "id-0001", NewSequenceIDs("").Generate())
}
