package runtime

import (
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// CheckpointTimer paces the issuance of checkpoints. The runtime resets it
// whenever a batch rolls a checkpoint of its own, so timer-driven checkpoints
// only appear when the runtime is otherwise idle. Without them, callers of an
// idle runtime would eventually hold nothing but expired references.
type CheckpointTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the timer
	stopCh       chan struct{}      //receives instruction to stop the timer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
	set          bool
}

// NewCheckpointTimer creates a CheckpointTimer with a custom timerFactory.
func NewCheckpointTimer(timerFactory timerFactory) *CheckpointTimer {
	return &CheckpointTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewConstantCheckpointTimer creates a CheckpointTimer whose underlying timer
// fires after a constant duration.
func NewConstantCheckpointTimer() *CheckpointTimer {
	constantTimeout := func(t time.Duration) <-chan time.Time {
		if t == 0 {
			return nil
		}
		return time.After(t)
	}
	return NewCheckpointTimer(constantTimeout)
}

// Run starts the timer's loop. It does not return until Shutdown is called.
func (c *CheckpointTimer) Run(init time.Duration) {

	setTimer := func(t time.Duration) <-chan time.Time {
		c.set = true
		return c.timerFactory(t)
	}

	timer := setTimer(init)
	for {
		select {
		case <-timer:
			c.tickCh <- struct{}{}
			c.set = false
		case t := <-c.resetCh:
			timer = setTimer(t)
		case <-c.stopCh:
			timer = nil
			c.set = false
		case <-c.shutdownCh:
			c.set = false
			return
		}
	}
}

// Shutdown exits the Run loop.
func (c *CheckpointTimer) Shutdown() {
	close(c.shutdownCh)
}
