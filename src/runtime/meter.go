package runtime

import "errors"

// ErrBudgetExhausted is returned by Meter.Charge when a handler runs over its
// execution budget. The dispatcher turns it into a ResourceExhausted
// rejection.
var ErrBudgetExhausted = errors.New("execution budget exhausted")

// Meter tracks the resource budget of one dispatch. Handlers charge it for
// the work they do; when the budget runs out the handler must stop and
// propagate the error. An external gas or static-analysis stage is assumed
// to have bounded programs at load time, so the meter is the runtime's last
// line of defense, not its accounting system.
type Meter struct {
	budget uint64
	spent  uint64
}

// NewMeter creates a Meter with the given budget.
func NewMeter(budget uint64) *Meter {
	return &Meter{
		budget: budget,
	}
}

// Charge consumes units from the budget. It returns ErrBudgetExhausted, and
// consumes the rest of the budget, if fewer than units remain.
func (m *Meter) Charge(units uint64) error {
	if units > m.budget-m.spent {
		m.spent = m.budget
		return ErrBudgetExhausted
	}
	m.spent += units
	return nil
}

// Budget returns the meter's total budget.
func (m *Meter) Budget() uint64 {
	return m.budget
}

// Spent returns the units consumed so far.
func (m *Meter) Spent() uint64 {
	return m.spent
}

// Remaining returns the units left in the budget.
func (m *Meter) Remaining() uint64 {
	return m.budget - m.spent
}
