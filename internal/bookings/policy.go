package bookings

// Decision is the outcome of the admission policy.
type Decision int

const (
	Admit Decision = iota
	RejectCapacityExceeded
)

// Err returns nil for Admit and the matching sentinel error otherwise.
func (d Decision) Err() error {
	if d == RejectCapacityExceeded {
		return ErrCapacityExceeded
	}
	return nil
}

// Evaluate decides whether requested more seats fit on top of occupancy.
// A nil capacity is unlimited. requested must already be validated as
// positive; Evaluate does no input checking.
func Evaluate(capacity *int, occupancy, requested int) Decision {
	if capacity == nil {
		return Admit
	}
	if occupancy+requested <= *capacity {
		return Admit
	}
	return RejectCapacityExceeded
}
