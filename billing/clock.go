package billing

import "time"

// Clock supplies the timestamps written to the status ledger and audit
// log. Injecting it keeps ledger ordering deterministic in tests; the
// server wires SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock returns a programmable sequence of instants. Each call to
// Now advances by Step so consecutive ledger rows never collide on the
// timestamp tie-break.
type FixedClock struct {
	Current time.Time
	Step    time.Duration
}

func (c *FixedClock) Now() time.Time {
	now := c.Current
	step := c.Step
	if step == 0 {
		step = time.Second
	}
	c.Current = c.Current.Add(step)
	return now
}
