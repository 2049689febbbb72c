package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/marcut/runtime-bridge/engine"
	"github.com/marcut/runtime-bridge/errors"
)

// Canceller coordinates cooperative cancellation. It holds an internal
// flag plus an optional per-job predicate; either one makes the job
// cancelled. Requesting cancellation also signals the runtime's
// interrupt mechanism so a blocked foreign call unwinds at its next
// checkpoint. Advisory, not instantaneous: a foreign call that never
// yields cannot be cancelled until it does.
type Canceller struct {
	mu        sync.Mutex
	flagged   bool
	source    string
	predicate func() bool

	log *zap.Logger
	eng *engine.Engine
}

func NewCanceller(log *zap.Logger, eng *engine.Engine) *Canceller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Canceller{log: log, eng: eng}
}

// Request flags cancellation and interrupts the runtime. The first
// source wins; later requests are no-ops.
func (c *Canceller) Request(source string) {
	c.mu.Lock()
	if c.flagged {
		c.mu.Unlock()
		return
	}
	c.flagged = true
	c.source = source
	eng := c.eng
	c.mu.Unlock()

	c.log.Info("cancellation requested", zap.String("source", source))
	if eng != nil {
		eng.Interrupt()
	}
}

// SetPredicate installs a per-job external cancellation condition,
// polled on top of the internal flag. Cleared with the job.
func (c *Canceller) SetPredicate(fn func() bool) {
	c.mu.Lock()
	c.predicate = fn
	c.mu.Unlock()
}

// Cancelled reports whether cancellation has been requested, by flag or
// by predicate. The predicate runs outside the lock; it is caller code.
func (c *Canceller) Cancelled() bool {
	c.mu.Lock()
	flagged := c.flagged
	predicate := c.predicate
	c.mu.Unlock()

	if flagged {
		return true
	}
	return predicate != nil && predicate()
}

// Check returns the cancellation error if cancellation was requested.
func (c *Canceller) Check() error {
	if !c.Cancelled() {
		return nil
	}
	c.mu.Lock()
	source := c.source
	c.mu.Unlock()
	if source == "" {
		source = "external"
	}
	return errors.Cancelled(source)
}

// Clear resets the flag, source and predicate at job end.
func (c *Canceller) Clear() {
	c.mu.Lock()
	c.flagged = false
	c.source = ""
	c.predicate = nil
	c.mu.Unlock()
}
