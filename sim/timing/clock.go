// Package timing drives every component with one global, lock-step clock.
//
// During a tick each registered Ticker reads only state that was committed at
// the previous tick boundary. Values produced during the tick are published by
// the registered Committers when the tick ends, so the result of a tick does
// not depend on the order in which tickers run.
package timing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/delaymem/sim/hooking"
)

// VTimeInCycle is the simulated time, counted in clock cycles.
type VTimeInCycle uint64

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() VTimeInCycle
}

// A Ticker is an object that updates states with ticks.
type Ticker interface {
	Tick() bool
}

// A Committer publishes the values produced during a tick. It returns true if
// anything was published.
type Committer interface {
	Commit() bool
}

// A Watcher inspects the committed state after every tick. A non-nil error
// stops the clock.
type Watcher interface {
	Check(now VTimeInCycle) error
}

// An Engine owns the simulated time and the set of objects that advance with
// it.
type Engine interface {
	TimeTeller

	RegisterTicker(t Ticker)
	RegisterCommitter(cm Committer)
	RegisterWatcher(w Watcher)
}

// A Waiter is a committer or watcher that can tell whether it still waits
// for a response. A clock never treats the system as quiescent while a
// Waiter is waiting.
type Waiter interface {
	Waiting() bool
}

// DefaultIdleLimit is the number of idle cycles Run waits for a Waiter before
// reporting a deadlock.
const DefaultIdleLimit = 100000

// HookPosBeforeTick is triggered before the tickers run.
var HookPosBeforeTick = &hooking.HookPos{Name: "BeforeTick"}

// HookPosAfterTick is triggered after the tick has been committed.
var HookPosAfterTick = &hooking.HookPos{Name: "AfterTick"}

// ErrCycleLimit is returned by RunUntil when the condition is not met within
// the given number of cycles.
var ErrCycleLimit = errors.New("cycle limit reached")

// ErrDeadlock is returned by Run when nothing moves while a Waiter still
// waits.
var ErrDeadlock = errors.New("deadlock")

// Clock is a serial, lock-step engine.
type Clock struct {
	hooking.HookableBase

	timeLock sync.RWMutex
	now      VTimeInCycle

	tickers    []Ticker
	committers []Committer
	watchers   []Watcher

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex
	idleLimit     uint64
}

// NewClock creates a Clock at cycle 0.
func NewClock() *Clock {
	return &Clock{idleLimit: DefaultIdleLimit}
}

// SetIdleLimit sets how many idle cycles Run tolerates while a Waiter is
// waiting.
func (c *Clock) SetIdleLimit(n uint64) {
	c.idleLimit = n
}

// Name returns the name of the clock.
func (c *Clock) Name() string {
	return "Clock"
}

// RegisterTicker adds a ticker. Tickers run in registration order.
func (c *Clock) RegisterTicker(t Ticker) {
	c.tickers = append(c.tickers, t)
}

// RegisterCommitter adds a committer.
func (c *Clock) RegisterCommitter(cm Committer) {
	c.committers = append(c.committers, cm)
}

// RegisterWatcher adds a watcher.
func (c *Clock) RegisterWatcher(w Watcher) {
	c.watchers = append(c.watchers, w)
}

// CurrentTime returns the cycle that is about to be (or being) simulated.
func (c *Clock) CurrentTime() VTimeInCycle {
	c.timeLock.RLock()
	defer c.timeLock.RUnlock()

	return c.now
}

// Step simulates exactly one cycle. It returns whether any ticker made
// progress or any committer published a value.
func (c *Clock) Step() (bool, error) {
	c.pauseLock.Lock()
	defer c.pauseLock.Unlock()

	return c.step()
}

func (c *Clock) step() (bool, error) {
	now := c.CurrentTime()

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosBeforeTick,
			Item:   now,
		})
	}

	madeProgress := false
	for _, t := range c.tickers {
		madeProgress = t.Tick() || madeProgress
	}

	for _, cm := range c.committers {
		madeProgress = cm.Commit() || madeProgress
	}

	c.timeLock.Lock()
	c.now++
	c.timeLock.Unlock()

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosAfterTick,
			Item:   now,
		})
	}

	for _, w := range c.watchers {
		if err := w.Check(now + 1); err != nil {
			return madeProgress, fmt.Errorf("cycle %d: %w", now, err)
		}
	}

	return madeProgress, nil
}

// Run ticks until the system is quiescent: a full cycle in which no ticker
// made progress, nothing was committed, and no Waiter is waiting. Idle cycles
// with a waiting Waiter keep the watchers running, so a stall surfaces as
// their error. ErrDeadlock is returned after the idle limit.
func (c *Clock) Run() error {
	c.singleRunLock.Lock()
	defer c.singleRunLock.Unlock()

	var idle uint64

	for {
		progress, err := c.Step()
		if err != nil {
			return err
		}

		if progress {
			idle = 0
			continue
		}

		if !c.waiting() {
			return nil
		}

		idle++
		if idle > c.idleLimit {
			return fmt.Errorf("cycle %d: idle for %d cycles: %w",
				c.CurrentTime(), idle-1, ErrDeadlock)
		}
	}
}

func (c *Clock) waiting() bool {
	for _, cm := range c.committers {
		if w, ok := cm.(Waiter); ok && w.Waiting() {
			return true
		}
	}

	for _, wt := range c.watchers {
		if w, ok := wt.(Waiter); ok && w.Waiting() {
			return true
		}
	}

	return false
}

// RunFor ticks exactly n cycles unless a watcher reports an error.
func (c *Clock) RunFor(n uint64) error {
	c.singleRunLock.Lock()
	defer c.singleRunLock.Unlock()

	for i := uint64(0); i < n; i++ {
		if _, err := c.Step(); err != nil {
			return err
		}
	}

	return nil
}

// RunUntil ticks until cond returns true. It gives up with ErrCycleLimit after
// limit cycles.
func (c *Clock) RunUntil(cond func() bool, limit uint64) error {
	c.singleRunLock.Lock()
	defer c.singleRunLock.Unlock()

	for i := uint64(0); i < limit; i++ {
		if cond() {
			return nil
		}

		if _, err := c.Step(); err != nil {
			return err
		}
	}

	if cond() {
		return nil
	}

	return fmt.Errorf("after %d cycles: %w", limit, ErrCycleLimit)
}

// Pause prevents the clock from stepping until Continue is called.
func (c *Clock) Pause() {
	c.isPausedLock.Lock()
	defer c.isPausedLock.Unlock()

	if c.isPaused {
		return
	}

	c.pauseLock.Lock()
	c.isPaused = true
}

// Continue resumes a paused clock.
func (c *Clock) Continue() {
	c.isPausedLock.Lock()
	defer c.isPausedLock.Unlock()

	if !c.isPaused {
		return
	}

	c.pauseLock.Unlock()
	c.isPaused = false
}
