package gossip

import (
	"math/rand"
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer drives the periodic gossip rounds. It can be reset to a new
// interval, stopped, and shut down, and its timer source is injectable for
// tests.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to the round-running process
	resetCh      chan time.Duration //receives instruction to reset the timer
	stopCh       chan struct{}      //receives instruction to stop the timer
	shutdownCh   chan struct{}      //receives instruction to exit the Run loop
	set          bool
}

// NewControlTimer ...
func NewControlTimer(factory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: factory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewJitterControlTimer returns a ControlTimer whose interval is stretched by
// a random amount of up to a quarter of the base interval, so that nodes
// started together do not gossip in lockstep.
func NewJitterControlTimer() *ControlTimer {
	jitterTimeout := func(base time.Duration) <-chan time.Time {
		if base == 0 {
			return nil
		}
		var extra time.Duration
		if quarter := base / 4; quarter > 0 {
			extra = time.Duration(rand.Int63()) % quarter
		}
		return time.After(base + extra)
	}
	return NewControlTimer(jitterTimeout)
}

// TickCh returns the channel that fires once per interval.
func (c *ControlTimer) TickCh() <-chan struct{} {
	return c.tickCh
}

// Run loops until Shutdown, firing TickCh every interval.
func (c *ControlTimer) Run(init time.Duration) {
	setTimer := func(t time.Duration) <-chan time.Time {
		c.set = true
		return c.timerFactory(t)
	}

	timer := setTimer(init)
	for {
		select {
		case <-timer:
			// The receiver may be gone by the time the tick fires; never
			// commit to the send beyond a Shutdown.
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				c.set = false
				return
			}
			timer = setTimer(init)
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

// Reset restarts the timer with a new interval.
func (c *ControlTimer) Reset(t time.Duration) {
	c.resetCh <- t
}

// Stop pauses the timer without exiting the Run loop.
func (c *ControlTimer) Stop() {
	c.stopCh <- struct{}{}
}

// Shutdown exits the Run loop. It must be called at most once.
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
