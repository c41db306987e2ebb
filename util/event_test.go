package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventNotifyOnce(t *testing.T) {
	e := NewEvent()
	assert.False(t, e.HasBeenNotified())
	assert.False(t, e.WaitTimeout(10*time.Millisecond))

	e.Notify()
	e.Notify()
	e.Wait()
	assert.True(t, e.HasBeenNotified())
	assert.True(t, e.WaitTimeout(time.Millisecond))
}

func TestEventWakesWaiter(t *testing.T) {
	e := NewEvent()
	go func() {
		time.Sleep(5 * time.Millisecond)
		e.Notify()
	}()
	assert.True(t, e.WaitTimeout(time.Second))
}
